package engine

import (
	"slices"

	"github.com/roach88/cepsnap/internal/ir"
)

// SessionState is the working memory of a session in plain values.
//
// It is what the marshaller persists: facts with their handles, the agenda,
// the refraction set and pending negation timers. Expiration timers are not
// part of the state; they are derived from type declarations on restore.
type SessionState struct {
	// Rules lists the rule keys the state was captured against.
	Rules []string

	Facts  []FactRecord
	Agenda []TupleRecord
	Fired  []TupleRecord
	Timers []TimerRecord

	NextHandle int64
	NextSeq    int64
}

// FactRecord is one fact in working memory.
type FactRecord struct {
	Handle    int64
	Type      string
	Timestamp int64
	Fact      Fact
}

// TupleRecord is a rule applied to a tuple of fact handles.
type TupleRecord struct {
	Rule    string
	Handles []int64
	Seq     int64
}

// TimerRecord is a pending negation timer.
type TimerRecord struct {
	Rule     string
	Handles  []int64
	Deadline int64
	Seq      int64
}

// State captures the session's working memory. Facts are ordered by handle,
// agenda entries in firing order, timers in run order and fired tuples by
// sequence, so equal sessions produce equal states.
func (s *Session) State() (*SessionState, error) {
	if s.disposed {
		return nil, disposedError("state")
	}

	st := &SessionState{
		Rules:      s.rb.RuleKeys(),
		Facts:      []FactRecord{},
		Agenda:     []TupleRecord{},
		Fired:      []TupleRecord{},
		Timers:     []TimerRecord{},
		NextHandle: s.nextHandle,
		NextSeq:    s.nextSeq,
	}
	for _, h := range s.Facts() {
		st.Facts = append(st.Facts, FactRecord{
			Handle:    h.id,
			Type:      h.factType,
			Timestamp: h.timestamp,
			Fact:      h.fact,
		})
	}
	for _, a := range s.agenda.pending() {
		st.Agenda = append(st.Agenda, TupleRecord{Rule: a.rule.key, Handles: handleIDs(a.tuple), Seq: a.seq})
	}
	for _, t := range s.clock.pending() {
		if t.kind != timerNegation {
			continue
		}
		st.Timers = append(st.Timers, TimerRecord{
			Rule:     t.rule.key,
			Handles:  handleIDs(t.tuple),
			Deadline: t.deadline,
			Seq:      t.seq,
		})
	}

	keys := make([]string, 0, len(s.fired))
	for k := range s.fired {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for i, k := range keys {
		f := s.fired[k]
		st.Fired = append(st.Fired, TupleRecord{Rule: f.rule.key, Handles: handleIDs(f.tuple), Seq: int64(i)})
	}
	return st, nil
}

// RestoreSession rebuilds a session from a captured state against rb.
//
// rb may differ from the rule base the state was captured against:
//   - agenda entries, fired tuples and timers of rules rb no longer has are dropped
//   - rules in rb that the state did not know are propagated over every
//     restored fact, as if they had been present from the start
//   - a fact whose type rb does not declare is a SCHEMA error
//
// A record that references a handle absent from the fact list is an
// ENCODING error.
func RestoreSession(rb *RuleBase, cfg ir.SessionConfig, st *SessionState, opts ...SessionOption) (*Session, error) {
	if st == nil {
		return nil, Errorf(ErrCodeContract, "restore", "state is nil")
	}
	s, err := NewSession(rb, cfg, opts...)
	if err != nil {
		return nil, err
	}

	var maxHandle int64
	for _, fr := range st.Facts {
		if fr.Fact == nil {
			return nil, Errorf(ErrCodeEncoding, "restore", "fact %d has no value", fr.Handle)
		}
		if _, ok := rb.DeclaredType(fr.Type); !ok {
			return nil, Errorf(ErrCodeSchema, "restore", "fact %d: type %q is not declared in rule base %q", fr.Handle, fr.Type, rb.Name())
		}
		if fr.Fact.FactType() != fr.Type {
			return nil, Errorf(ErrCodeSchema, "restore", "fact %d: recorded type %q but value is %q", fr.Handle, fr.Type, fr.Fact.FactType())
		}
		if fr.Handle <= 0 || s.handles[fr.Handle] != nil {
			return nil, Errorf(ErrCodeEncoding, "restore", "invalid or duplicate fact handle %d", fr.Handle)
		}
		s.addHandle(&FactHandle{id: fr.Handle, factType: fr.Type, timestamp: fr.Timestamp, fact: fr.Fact})
		maxHandle = max(maxHandle, fr.Handle)
	}
	// byType must follow handle order regardless of record order.
	for _, list := range s.byType {
		slices.SortFunc(list, func(a, b *FactHandle) int { return int(a.id - b.id) })
	}
	s.nextHandle = max(st.NextHandle, maxHandle+1)

	known := make(map[string]bool, len(st.Rules))
	for _, k := range st.Rules {
		known[k] = true
	}

	var maxSeq int64
	for _, rec := range st.Agenda {
		r, tuple, ok, err := s.resolve(rec.Rule, rec.Handles, known)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		s.activate(r, tuple, rec.Seq)
		maxSeq = max(maxSeq, rec.Seq)
	}
	for _, rec := range st.Timers {
		r, tuple, ok, err := s.resolve(rec.Rule, rec.Handles, known)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if r.negative == nil {
			return nil, Errorf(ErrCodeSchema, "restore", "timer for rule %q which has no negation", r.key)
		}
		s.pending[tupleKey(r.key, tuple)] = true
		s.clock.schedule(&timer{kind: timerNegation, deadline: rec.Deadline, seq: rec.Seq, rule: r, tuple: tuple})
		maxSeq = max(maxSeq, rec.Seq)
	}
	for _, rec := range st.Fired {
		r, tuple, ok, err := s.resolve(rec.Rule, rec.Handles, known)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		s.fired[tupleKey(r.key, tuple)] = &firing{rule: r, tuple: tuple}
	}
	s.nextSeq = max(st.NextSeq, maxSeq+1)

	for _, r := range rb.rules {
		if known[r.key] {
			continue
		}
		s.logger.Debug("propagating new rule over restored facts", "session", s.id, "rule", r.key)
		s.propagateAll(r)
	}
	for _, h := range s.Facts() {
		decl, _ := rb.DeclaredType(h.factType)
		s.scheduleExpiry(h, decl)
	}

	return s, nil
}

// resolve maps a persisted (rule, handles) pair onto the live rule base.
// ok is false when the record belongs to a rule that should be dropped.
func (s *Session) resolve(ruleKey string, handles []int64, known map[string]bool) (*compiledRule, []*FactHandle, bool, error) {
	if !known[ruleKey] {
		return nil, nil, false, Errorf(ErrCodeEncoding, "restore", "record references rule %q outside the captured rule list", ruleKey)
	}
	r, ok := s.rb.byKey[ruleKey]
	if !ok {
		s.logger.Debug("dropping record of removed rule", "session", s.id, "rule", ruleKey)
		return nil, nil, false, nil
	}
	if len(handles) != len(r.positives) {
		return nil, nil, false, Errorf(ErrCodeSchema, "restore", "rule %q: record has %d facts, rule binds %d", ruleKey, len(handles), len(r.positives))
	}
	tuple := make([]*FactHandle, len(handles))
	for i, id := range handles {
		h, ok := s.handles[id]
		if !ok {
			return nil, nil, false, Errorf(ErrCodeEncoding, "restore", "rule %q references unknown fact handle %d", ruleKey, id)
		}
		tuple[i] = h
	}
	return r, tuple, true, nil
}
