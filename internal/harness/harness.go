package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/cepsnap/internal/container"
	"github.com/roach88/cepsnap/internal/engine"
	"github.com/roach88/cepsnap/internal/listener"
	"github.com/roach88/cepsnap/internal/snapshot"
	"github.com/roach88/cepsnap/internal/store"
	"github.com/roach88/cepsnap/internal/testutil"
)

// InsertAndAdvance inserts ev and moves the session clock forward to the
// event's timestamp. The clock never rewinds: an event older than the clock
// is inserted and the clock is left where it is.
//
// Timers that become due while advancing run immediately; their activations
// fire on the next FireAllRules.
func InsertAndAdvance(s *engine.Session, ev engine.Event) (*engine.FactHandle, error) {
	h, err := s.Insert(ev)
	if err != nil {
		return nil, err
	}
	clock := s.Clock()
	clock.Advance(ev.Timestamp().UnixMilli() - clock.Current())
	return h, nil
}

// Option configures a run.
type Option func(*Harness)

// WithListeners attaches extra listeners to both sessions of a run.
func WithListeners(ls ...engine.AgendaEventListener) Option {
	return func(h *Harness) { h.extra = append(h.extra, ls...) }
}

// WithLogger sets the logger handed to the engine and codec. Runs are
// silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithSnapshotCopy writes a copy of the snapshot bytes taken between the
// two batches to w.
func WithSnapshotCopy(w io.Writer) Option {
	return func(h *Harness) { h.snapshotCopy = w }
}

// Harness is the state of one scenario run.
type Harness struct {
	container *container.Container
	journal   *store.Journal
	tally     *listener.RulesFired
	ids       *testutil.SessionIDs
	extra     []engine.AgendaEventListener
	logger    *slog.Logger

	snapshotCopy io.Writer

	// sessions are disposed on every exit path.
	sessions []*engine.Session
}

// Run executes a scenario and returns the result.
//
// Each run gets a fresh container and in-memory journal. An error is
// returned when the run itself cannot complete (bad rules, codec failure,
// engine contract violation); failed assertions are reported in the
// Result.
//
// Execution flow:
// 1. Load the rules directory and open the journal
// 2. Create the first session and attach the tally and journal
// 3. Feed before_snapshot
// 4. Snapshot, restore (optionally against restore_rule_base), re-attach
// 5. Dispose the first session and feed after_snapshot
// 6. Dispose the restored session and evaluate assertions
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	c, err := container.Load(scenario.Rules)
	if err != nil {
		return nil, err
	}

	st, err := store.OpenMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		container: c,
		tally:     listener.NewRulesFired(),
		ids:       testutil.NewSessionIDs(scenario.Name),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}

	ctx := context.Background()
	h.journal = store.NewJournal(ctx, st, h.logger)

	result := NewResult()
	runErr := h.run(scenario, result)
	disposeErr := h.disposeAll()
	if runErr != nil {
		if disposeErr != nil {
			h.logger.Warn("dispose after failed run", "scenario", scenario.Name, "error", disposeErr)
		}
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, runErr)
	}
	if disposeErr != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, disposeErr)
	}

	result.Counts = h.tally.Counts()
	result.Trace, err = st.Firings(ctx)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) run(scenario *Scenario, result *Result) error {
	sessOpts := func() []engine.SessionOption {
		return []engine.SessionOption{
			engine.WithSessionID(h.ids.Next()),
			engine.WithLogger(h.logger),
		}
	}

	var (
		first *engine.Session
		err   error
	)
	if scenario.RuleBase == "" {
		first, err = h.container.NewSession(sessOpts()...)
	} else {
		first, err = h.container.NewSessionFor(scenario.RuleBase, sessOpts()...)
	}
	if err != nil {
		return err
	}
	h.sessions = append(h.sessions, first)
	if err := h.attach(first); err != nil {
		return err
	}
	if err := h.feed(first, "before_snapshot", scenario.BeforeSnapshot); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := snapshot.Save(&buf, first, snapshot.WithLogger(h.logger)); err != nil {
		return err
	}
	if h.snapshotCopy != nil {
		if _, err := h.snapshotCopy.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("copy snapshot: %w", err)
		}
	}

	var rb *engine.RuleBase
	if scenario.RestoreRuleBase != "" {
		if rb, err = h.container.RuleBase(scenario.RestoreRuleBase); err != nil {
			return err
		}
	}
	restored, err := snapshot.Load(&buf, rb,
		snapshot.WithLogger(h.logger),
		snapshot.WithSessionOptions(sessOpts()...),
	)
	if err != nil {
		return err
	}
	h.sessions = append(h.sessions, restored)
	if err := h.attach(restored); err != nil {
		return err
	}
	if err := first.Dispose(); err != nil {
		return err
	}

	if err := h.feed(restored, "after_snapshot", scenario.AfterSnapshot); err != nil {
		return err
	}
	result.FinalClock = restored.Clock().Current()
	return restored.Dispose()
}

// attach subscribes the tally, journal and extra listeners to s.
func (h *Harness) attach(s *engine.Session) error {
	if _, err := s.AddEventListener(h.tally); err != nil {
		return err
	}
	if _, err := h.journal.Attach(s); err != nil {
		return err
	}
	for _, l := range h.extra {
		if _, err := s.AddEventListener(l); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) feed(s *engine.Session, section string, steps []EventStep) error {
	for i, step := range steps {
		ev, err := step.Event()
		if err != nil {
			return fmt.Errorf("%s[%d]: %w", section, i, err)
		}
		if _, err := InsertAndAdvance(s, ev); err != nil {
			return fmt.Errorf("%s[%d]: %w", section, i, err)
		}
		if _, err := s.FireAllRules(); err != nil {
			return fmt.Errorf("%s[%d]: %w", section, i, err)
		}
	}
	return nil
}

// disposeAll disposes every session of the run. Dispose is idempotent, so
// sessions the run already disposed are skipped without error.
func (h *Harness) disposeAll() error {
	var errs []error
	for _, s := range h.sessions {
		if s.Disposed() {
			continue
		}
		if err := s.Dispose(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
