package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/cepsnap/internal/ir"
)

// Session is a live working memory bound to a RuleBase.
//
// A session owns its facts, agenda and clock exclusively and shares the rule
// base. It is created by NewSession or RestoreSession, disposed explicitly
// with Dispose, and never resurrected.
//
// Thread-safety: none. See package documentation.
type Session struct {
	id     string
	rb     *RuleBase
	cfg    ir.SessionConfig
	clock  *PseudoClock
	logger *slog.Logger

	handles    map[int64]*FactHandle
	byType     map[string][]*FactHandle // insertion order
	nextHandle int64
	nextSeq    int64

	agenda  agenda
	pending map[string]bool     // tuple keys on the agenda or waiting on a timer
	fired   map[string]*firing  // refraction: tuples that already fired

	listeners    []subscription
	nextSub      int64
	consequences map[string]Consequence

	disposed bool
}

// firing records a tuple that fired.
type firing struct {
	rule  *compiledRule
	tuple []*FactHandle
}

// SessionOption configures a session.
type SessionOption func(*Session)

// WithLogger sets the session logger. Default: slog.Default().
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = l
	}
}

// WithSessionID sets a fixed session identifier. Default: a fresh UUIDv7.
func WithSessionID(id string) SessionOption {
	return func(s *Session) {
		s.id = id
	}
}

// NewSession creates an empty session.
//
// Only the pseudo clock is supported; any other clock type, or a negative
// clock position, is a CONFIG error.
func NewSession(rb *RuleBase, cfg ir.SessionConfig, opts ...SessionOption) (*Session, error) {
	if rb == nil {
		return nil, Errorf(ErrCodeContract, "new session", "rule base is nil")
	}
	if cfg.ClockType != ir.ClockPseudo {
		return nil, Errorf(ErrCodeConfig, "new session", "unsupported clock type %q (only %q)", cfg.ClockType, ir.ClockPseudo)
	}
	if cfg.ClockTime < 0 {
		return nil, Errorf(ErrCodeConfig, "new session", "negative clock time %d", cfg.ClockTime)
	}

	s := &Session{
		rb:           rb,
		cfg:          cfg,
		clock:        NewPseudoClockAt(cfg.ClockTime),
		handles:      make(map[int64]*FactHandle),
		byType:       make(map[string][]*FactHandle),
		nextHandle:   1,
		nextSeq:      1,
		pending:      make(map[string]bool),
		fired:        make(map[string]*firing),
		consequences: make(map[string]Consequence),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.Must(uuid.NewV7()).String()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.clock.onDue = s.runTimer

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// RuleBase returns the rule base the session evaluates.
func (s *Session) RuleBase() *RuleBase {
	return s.rb
}

// Clock returns the session's pseudo clock.
func (s *Session) Clock() *PseudoClock {
	return s.clock
}

// Configuration returns the session configuration with the current clock
// position embedded.
func (s *Session) Configuration() ir.SessionConfig {
	cfg := s.cfg
	cfg.ClockTime = s.clock.Current()
	return cfg
}

// Disposed reports whether Dispose has been called.
func (s *Session) Disposed() bool {
	return s.disposed
}

// AddEventListener subscribes l to rule firings on this session.
func (s *Session) AddEventListener(l AgendaEventListener) (Subscription, error) {
	if s.disposed {
		return Subscription{}, disposedError("add listener")
	}
	if l == nil {
		return Subscription{}, Errorf(ErrCodeContract, "add listener", "listener is nil")
	}
	s.nextSub++
	s.listeners = append(s.listeners, subscription{id: s.nextSub, listener: l})
	return Subscription{id: s.nextSub}, nil
}

// RemoveEventListener cancels a subscription. Unknown subscriptions are ignored.
func (s *Session) RemoveEventListener(sub Subscription) {
	for i, l := range s.listeners {
		if l.id == sub.id {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

// SetConsequence attaches Go code to a rule key on this session.
func (s *Session) SetConsequence(ruleKey string, c Consequence) error {
	if s.disposed {
		return disposedError("set consequence")
	}
	if !s.rb.HasRule(ruleKey) {
		return Errorf(ErrCodeContract, "set consequence", "unknown rule %q", ruleKey)
	}
	s.consequences[ruleKey] = c
	return nil
}

// Insert adds a fact to working memory and propagates it.
//
// The fact's type must be declared in the rule base. Facts of role "event"
// must implement Event; their timestamp drives temporal operators.
func (s *Session) Insert(f Fact) (*FactHandle, error) {
	if s.disposed {
		return nil, disposedError("insert")
	}
	if f == nil {
		return nil, Errorf(ErrCodeContract, "insert", "fact is nil")
	}

	decl, ok := s.rb.DeclaredType(f.FactType())
	if !ok {
		return nil, Errorf(ErrCodeContract, "insert", "type %q is not declared in rule base %q", f.FactType(), s.rb.Name())
	}

	ts := s.clock.Current()
	if decl.Role == ir.RoleEvent {
		ev, ok := f.(Event)
		if !ok {
			return nil, Errorf(ErrCodeContract, "insert", "type %q is declared as event but %T has no Timestamp", decl.Name, f)
		}
		ts = ev.Timestamp().UnixMilli()
	}

	h := &FactHandle{id: s.nextHandle, factType: decl.Name, timestamp: ts, fact: f}
	s.nextHandle++
	s.addHandle(h)

	s.logger.Debug("fact inserted",
		"session", s.id,
		"handle", h.id,
		"type", h.factType,
		"timestamp", h.timestamp,
		"clock", s.clock.Current(),
	)

	for _, r := range s.rb.byType[h.factType] {
		s.propagate(r, h)
	}
	s.scheduleExpiry(h, decl)

	return h, nil
}

// Delete retracts a fact. Pending activations and timers that reference it
// are cancelled.
func (s *Session) Delete(h *FactHandle) error {
	if s.disposed {
		return disposedError("delete")
	}
	if h == nil || s.handles[h.id] != h {
		return Errorf(ErrCodeContract, "delete", "unknown fact handle")
	}
	s.retract(h)
	return nil
}

// Facts returns the live fact handles in insertion order.
func (s *Session) Facts() []*FactHandle {
	out := make([]*FactHandle, 0, len(s.handles))
	for id := int64(1); id < s.nextHandle; id++ {
		if h, ok := s.handles[id]; ok {
			out = append(out, h)
		}
	}
	return out
}

// AgendaSize returns the number of activations waiting to fire.
func (s *Session) AgendaSize() int {
	return s.agenda.size()
}

// PendingTimers returns the number of scheduled timers.
func (s *Session) PendingTimers() int {
	return len(s.clock.pending())
}

// FireAllRules runs due timers, then fires activations until the agenda is
// empty. Returns the number of rules fired.
//
// A consequence error stops firing and is returned as-is; activations not yet
// fired stay on the agenda.
func (s *Session) FireAllRules() (int, error) {
	if s.disposed {
		return 0, disposedError("fire all rules")
	}
	s.clock.runDue()

	count := 0
	for {
		a := s.agenda.pop()
		if a == nil {
			break
		}
		key := a.key()
		delete(s.pending, key)
		s.fired[key] = &firing{rule: a.rule, tuple: a.tuple}

		m := s.newMatch(a.rule, a.tuple)
		if msg := a.rule.def.Then.Log; msg != "" {
			s.logger.Info(msg, "rule", m.Rule, "handles", m.Handles, "clock", m.ClockTime)
		}
		if c, ok := s.consequences[a.rule.key]; ok {
			if err := c(m); err != nil {
				return count, err
			}
		}

		s.logger.Debug("rule fired",
			"session", s.id,
			"rule", m.Rule,
			"handles", m.Handles,
			"clock", m.ClockTime,
		)
		for _, l := range s.listeners {
			l.listener.AfterMatchFired(m)
		}
		count++
	}
	return count, nil
}

// Dispose releases the session's working memory and subscriptions.
// Calling Dispose more than once is a no-op. Errors reported by
// DisposeListener implementations are joined and returned.
func (s *Session) Dispose() error {
	if s.disposed {
		return nil
	}
	s.disposed = true

	var errs []error
	for _, l := range s.listeners {
		if dl, ok := l.listener.(DisposeListener); ok {
			if err := dl.SessionDisposed(s.id); err != nil {
				errs = append(errs, fmt.Errorf("listener %d: %w", l.id, err))
			}
		}
	}

	s.listeners = nil
	s.handles = nil
	s.byType = nil
	s.agenda = agenda{}
	s.pending = nil
	s.fired = nil
	s.consequences = nil
	s.clock.reset()

	s.logger.Debug("session disposed", "session", s.id)
	return errors.Join(errs...)
}

func (s *Session) newMatch(r *compiledRule, tuple []*FactHandle) Match {
	facts := make([]Fact, len(tuple))
	for i, h := range tuple {
		facts[i] = h.fact
	}
	return Match{
		Rule:      r.key,
		Package:   r.def.Package,
		Name:      r.def.Name,
		Facts:     facts,
		Handles:   handleIDs(tuple),
		SessionID: s.id,
		ClockTime: s.clock.Current(),
	}
}

func (s *Session) addHandle(h *FactHandle) {
	s.handles[h.id] = h
	s.byType[h.factType] = append(s.byType[h.factType], h)
}

func (s *Session) nextSequence() int64 {
	seq := s.nextSeq
	s.nextSeq++
	return seq
}

// scheduleExpiry queues retraction of an event with a declared expiration.
func (s *Session) scheduleExpiry(h *FactHandle, decl ir.TypeDecl) {
	if decl.Role != ir.RoleEvent || decl.ExpiresMS <= 0 {
		return
	}
	s.clock.schedule(&timer{
		kind:     timerExpire,
		deadline: h.timestamp + decl.ExpiresMS,
		seq:      s.nextSequence(),
		tuple:    []*FactHandle{h},
	})
}

// runTimer is the PseudoClock callback for due timers.
func (s *Session) runTimer(t *timer) {
	if s.disposed {
		return
	}
	switch t.kind {
	case timerExpire:
		h := t.tuple[0]
		if s.handles[h.id] == h {
			s.logger.Debug("event expired", "session", s.id, "handle", h.id, "clock", s.clock.Current())
			s.retract(h)
		}
	case timerNegation:
		key := t.key()
		delete(s.pending, key)
		if s.blocked(t.rule, t.tuple) {
			s.logger.Debug("negation blocked", "session", s.id, "rule", t.rule.key, "handles", handleIDs(t.tuple))
			return
		}
		s.activate(t.rule, t.tuple, s.nextSequence())
	}
}

// retract removes a fact and everything that depends on it.
func (s *Session) retract(h *FactHandle) {
	delete(s.handles, h.id)
	list := s.byType[h.factType]
	for i, other := range list {
		if other == h {
			s.byType[h.factType] = append(list[:i:i], list[i+1:]...)
			break
		}
	}

	for _, a := range s.agenda.items {
		if !a.cancelled && a.references(h) {
			a.cancelled = true
			delete(s.pending, a.key())
		}
	}
	for _, t := range s.clock.timers {
		if t.cancelled || !t.references(h) {
			continue
		}
		t.cancelled = true
		if t.kind == timerNegation {
			delete(s.pending, t.key())
		}
	}
	for key, f := range s.fired {
		for _, fh := range f.tuple {
			if fh == h {
				delete(s.fired, key)
				break
			}
		}
	}
}
