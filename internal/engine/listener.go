package engine

// Match describes one rule firing.
type Match struct {
	// Rule is the package-qualified rule name ("package-name").
	Rule    string
	Package string
	Name    string

	// Facts are the matched facts in pattern order.
	Facts   []Fact
	Handles []int64

	// SessionID identifies the session that fired the rule.
	SessionID string

	// ClockTime is the pseudo-clock position when the rule fired.
	ClockTime int64
}

// AgendaEventListener observes rule firings on a session.
type AgendaEventListener interface {
	AfterMatchFired(m Match)
}

// ListenerFunc adapts a function to AgendaEventListener.
type ListenerFunc func(m Match)

// AfterMatchFired calls f(m).
func (f ListenerFunc) AfterMatchFired(m Match) {
	f(m)
}

// DisposeListener is implemented by listeners that want to be told when a
// session they are attached to is disposed. Errors are returned by Dispose.
type DisposeListener interface {
	SessionDisposed(sessionID string) error
}

// Subscription is the handle returned by AddEventListener.
// Subscriptions are session-scoped: they end when the session is disposed.
type Subscription struct {
	id int64
}

// Consequence is Go code attached to a rule on a specific session.
// A non-nil error stops FireAllRules and is returned unchanged.
type Consequence func(m Match) error

type subscription struct {
	id       int64
	listener AgendaEventListener
}
