package ir

// Fact roles for declared types.
const (
	RoleEvent = "event"
	RoleFact  = "fact"
)

// Clock types understood by session configuration.
const (
	ClockPseudo   = "pseudo"
	ClockRealtime = "realtime"
)

// Event processing modes.
const (
	EventModeStream = "stream"
	EventModeCloud  = "cloud"
)

// RuleBase is a compiled, immutable collection of rules plus the fact types
// they reference. Rules are kept in declaration order.
type RuleBase struct {
	Name    string      `json:"name"`
	Types   []TypeDecl  `json:"types,omitempty"`
	Rules   []Rule      `json:"rules,omitempty"`
	Session SessionSpec `json:"session"`
}

// TypeDecl declares a fact type the rule base can reason about.
type TypeDecl struct {
	Name      string `json:"name"`                 // fully-qualified type name, e.g. "model.SimpleEvent"
	Role      string `json:"role"`                 // "event" or "fact"
	ExpiresMS int64  `json:"expires_ms,omitempty"` // 0 = never expires
}

// Rule is a single when/then rule.
type Rule struct {
	Package  string      `json:"package"`
	Name     string      `json:"name"`
	Salience int64       `json:"salience,omitempty"`
	When     []Pattern   `json:"when,omitempty"`
	Then     Consequence `json:"then"`
}

// Key returns the package-qualified rule name used for fire accounting.
func (r Rule) Key() string {
	return RuleKey(r.Package, r.Name)
}

// RuleKey joins a package and rule name as "package-name".
func RuleKey(pkg, name string) string {
	return pkg + "-" + name
}

// Pattern matches one fact in a rule's left-hand side.
//
// A positive pattern binds the matched fact under Bind. A negative pattern
// (Not) asserts that no fact of Type satisfies After relative to the bound
// fact named in After.Of.
type Pattern struct {
	Bind  string    `json:"bind,omitempty"`
	Type  string    `json:"type"`
	Not   bool      `json:"not,omitempty"`
	After *Temporal `json:"after,omitempty"`
}

// Temporal is the "this after[min,max] of" constraint:
// this.timestamp - of.timestamp must lie in [MinMS, MaxMS].
type Temporal struct {
	Of    string `json:"of"`
	MinMS int64  `json:"min_ms"`
	MaxMS int64  `json:"max_ms"`
}

// Consequence is the right-hand side of a rule.
type Consequence struct {
	Log string `json:"log,omitempty"`
}

// SessionSpec is the session template attached to a rule base.
type SessionSpec struct {
	Name      string `json:"name"`
	Clock     string `json:"clock"`
	EventMode string `json:"event_mode"`
}

// SessionConfig is the runtime configuration of a session, including the
// pseudo clock position. It is written as the second snapshot section.
type SessionConfig struct {
	Name      string `json:"name"`
	ClockType string `json:"clock_type"`
	EventMode string `json:"event_mode"`
	ClockTime int64  `json:"clock_time"` // ms since epoch
}

// DefaultSessionConfig derives the initial configuration from a session spec.
func DefaultSessionConfig(spec SessionSpec) SessionConfig {
	cfg := SessionConfig{
		Name:      spec.Name,
		ClockType: spec.Clock,
		EventMode: spec.EventMode,
	}
	if cfg.ClockType == "" {
		cfg.ClockType = ClockPseudo
	}
	if cfg.EventMode == "" {
		cfg.EventMode = EventModeStream
	}
	return cfg
}

// Type returns the declaration for name, if present.
func (rb *RuleBase) Type(name string) (TypeDecl, bool) {
	for _, t := range rb.Types {
		if t.Name == name {
			return t, true
		}
	}
	return TypeDecl{}, false
}
