package marshal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/cepsnap/internal/engine"
	"github.com/roach88/cepsnap/internal/ir"
)

// SectionWorkingMemory is the kind of the working-memory section.
const SectionWorkingMemory = "working_memory"

// Marshaller writes and reads working memory for sessions of one rule base.
type Marshaller struct {
	rb         *engine.RuleBase
	strategies []Strategy
}

// NewMarshaller creates a marshaller bound to rb. Without strategies it uses
// a serialize strategy accepting "*.*".
func NewMarshaller(rb *engine.RuleBase, strategies ...Strategy) *Marshaller {
	if len(strategies) == 0 {
		strategies = []Strategy{NewSerializeStrategy(NewClassFilterAcceptor(DefaultPattern))}
	}
	return &Marshaller{rb: rb, strategies: strategies}
}

type workingMemory struct {
	Kind       string      `json:"kind"`
	Version    string      `json:"version"`
	RuleBase   string      `json:"rule_base"`
	Rules      []string    `json:"rules"`
	Facts      []factEntry `json:"facts"`
	Agenda     []tuple     `json:"agenda"`
	Fired      []tuple     `json:"fired"`
	Timers     []timer     `json:"timers"`
	NextHandle int64       `json:"next_handle"`
	NextSeq    int64       `json:"next_seq"`
}

type factEntry struct {
	Handle    int64           `json:"handle"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Strategy  string          `json:"strategy"`
	Payload   json.RawMessage `json:"payload"`
}

type tuple struct {
	Rule    string  `json:"rule"`
	Handles []int64 `json:"handles"`
	Seq     int64   `json:"seq"`
}

type timer struct {
	Rule     string  `json:"rule"`
	Handles  []int64 `json:"handles"`
	Deadline int64   `json:"deadline"`
	Seq      int64   `json:"seq"`
}

// Marshal writes the working memory of s as one canonical JSON value.
func (m *Marshaller) Marshal(w io.Writer, s *engine.Session) error {
	st, err := s.State()
	if err != nil {
		return err
	}

	wm := workingMemory{
		Kind:       SectionWorkingMemory,
		Version:    ir.SnapshotVersion,
		RuleBase:   s.RuleBase().Fingerprint(),
		Rules:      st.Rules,
		Facts:      make([]factEntry, 0, len(st.Facts)),
		Agenda:     tuples(st.Agenda),
		Fired:      tuples(st.Fired),
		Timers:     make([]timer, 0, len(st.Timers)),
		NextHandle: st.NextHandle,
		NextSeq:    st.NextSeq,
	}
	if wm.Rules == nil {
		wm.Rules = []string{}
	}
	for _, fr := range st.Facts {
		strat := m.strategyFor(fr.Type)
		if strat == nil {
			return engine.Errorf(engine.ErrCodeSchema, "marshal", "no marshalling strategy accepts type %q", fr.Type)
		}
		payload, err := strat.Write(fr.Fact)
		if err != nil {
			return engine.WrapError(engine.ErrCodeEncoding, "marshal", err, fmt.Sprintf("fact %d", fr.Handle))
		}
		wm.Facts = append(wm.Facts, factEntry{
			Handle:    fr.Handle,
			Type:      fr.Type,
			Timestamp: fr.Timestamp,
			Strategy:  strat.Name(),
			Payload:   payload,
		})
	}
	for _, t := range st.Timers {
		wm.Timers = append(wm.Timers, timer{Rule: t.Rule, Handles: t.Handles, Deadline: t.Deadline, Seq: t.Seq})
	}

	data, err := ir.Canonicalize(wm)
	if err != nil {
		return engine.WrapError(engine.ErrCodeEncoding, "marshal", err, "working memory")
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write working memory: %w", err)
	}
	return nil
}

// Unmarshal reads one working-memory section from r and restores a session
// with configuration cfg against the marshaller's rule base. Anything after
// the section is an ENCODING error.
func (m *Marshaller) Unmarshal(r io.Reader, cfg ir.SessionConfig, opts ...engine.SessionOption) (*engine.Session, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var wm workingMemory
	if err := dec.Decode(&wm); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, engine.Errorf(engine.ErrCodeEncoding, "unmarshal", "working memory section missing")
		}
		return nil, engine.WrapError(engine.ErrCodeEncoding, "unmarshal", err, "working memory section")
	}
	if wm.Kind != SectionWorkingMemory {
		return nil, engine.Errorf(engine.ErrCodeEncoding, "unmarshal", "expected %s section, got %q", SectionWorkingMemory, wm.Kind)
	}
	if wm.Version != ir.SnapshotVersion {
		return nil, engine.Errorf(engine.ErrCodeEncoding, "unmarshal", "unsupported working memory version %q", wm.Version)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, engine.Errorf(engine.ErrCodeEncoding, "unmarshal", "trailing data after working memory")
	}

	st := &engine.SessionState{
		Rules:      wm.Rules,
		Facts:      make([]engine.FactRecord, 0, len(wm.Facts)),
		Agenda:     records(wm.Agenda),
		Fired:      records(wm.Fired),
		Timers:     make([]engine.TimerRecord, 0, len(wm.Timers)),
		NextHandle: wm.NextHandle,
		NextSeq:    wm.NextSeq,
	}
	for _, fe := range wm.Facts {
		strat := m.strategyNamed(fe.Strategy, fe.Type)
		if strat == nil {
			return nil, engine.Errorf(engine.ErrCodeSchema, "unmarshal", "fact %d: no %q strategy accepts type %q", fe.Handle, fe.Strategy, fe.Type)
		}
		f, err := strat.Read(fe.Type, fe.Payload)
		if err != nil {
			return nil, err
		}
		if ev, ok := f.(engine.Event); ok && ev.Timestamp().UnixMilli() != fe.Timestamp {
			return nil, engine.Errorf(engine.ErrCodeEncoding, "unmarshal", "fact %d: timestamp %d does not match event timestamp %d", fe.Handle, fe.Timestamp, ev.Timestamp().UnixMilli())
		}
		st.Facts = append(st.Facts, engine.FactRecord{Handle: fe.Handle, Type: fe.Type, Timestamp: fe.Timestamp, Fact: f})
	}
	for _, t := range wm.Timers {
		st.Timers = append(st.Timers, engine.TimerRecord{Rule: t.Rule, Handles: t.Handles, Deadline: t.Deadline, Seq: t.Seq})
	}

	return engine.RestoreSession(m.rb, cfg, st, opts...)
}

func (m *Marshaller) strategyFor(typeName string) Strategy {
	for _, s := range m.strategies {
		if s.Accept(typeName) {
			return s
		}
	}
	return nil
}

func (m *Marshaller) strategyNamed(name, typeName string) Strategy {
	for _, s := range m.strategies {
		if s.Name() == name && s.Accept(typeName) {
			return s
		}
	}
	return nil
}

func tuples(recs []engine.TupleRecord) []tuple {
	out := make([]tuple, len(recs))
	for i, r := range recs {
		out[i] = tuple{Rule: r.Rule, Handles: r.Handles, Seq: r.Seq}
	}
	return out
}

func records(ts []tuple) []engine.TupleRecord {
	out := make([]engine.TupleRecord, len(ts))
	for i, t := range ts {
		out[i] = engine.TupleRecord{Rule: t.Rule, Handles: t.Handles, Seq: t.Seq}
	}
	return out
}
