package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/cepsnap/internal/engine"
	"github.com/roach88/cepsnap/internal/ir"
)

// Journal is an agenda listener that writes firings to the store.
//
// Listener callbacks cannot return errors, so write failures are logged and
// held until the session is disposed, where SessionDisposed reports them.
type Journal struct {
	store  *Store
	ctx    context.Context
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*engine.Session
	errs     map[string][]error
}

// NewJournal creates a journal writing to st. ctx bounds every write.
func NewJournal(ctx context.Context, st *Store, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		store:    st,
		ctx:      ctx,
		logger:   logger,
		sessions: make(map[string]*engine.Session),
		errs:     make(map[string][]error),
	}
}

// Attach records s and subscribes the journal to its firings.
func (j *Journal) Attach(s *engine.Session) (engine.Subscription, error) {
	rb := s.RuleBase()
	_, err := j.store.db.ExecContext(j.ctx, `
		INSERT INTO sessions (id, rule_base, fingerprint, attached_clock)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, s.ID(), rb.Name(), rb.Fingerprint(), s.Clock().Current())
	if err != nil {
		return engine.Subscription{}, fmt.Errorf("journal attach: %w", err)
	}

	sub, err := s.AddEventListener(j)
	if err != nil {
		return engine.Subscription{}, err
	}

	j.mu.Lock()
	j.sessions[s.ID()] = s
	j.mu.Unlock()
	return sub, nil
}

// AfterMatchFired implements engine.AgendaEventListener.
func (j *Journal) AfterMatchFired(m engine.Match) {
	if err := j.writeFiring(m); err != nil {
		j.logger.Error("journal write failed", "session", m.SessionID, "rule", m.Rule, "error", err)
		j.mu.Lock()
		j.errs[m.SessionID] = append(j.errs[m.SessionID], err)
		j.mu.Unlock()
	}
}

func (j *Journal) writeFiring(m engine.Match) error {
	handles, err := ir.Canonicalize(m.Handles)
	if err != nil {
		return fmt.Errorf("write firing: handles: %w", err)
	}
	ids := make([]string, len(m.Facts))
	for i, f := range m.Facts {
		ids[i] = FactID(f)
	}
	factIDs, err := ir.Canonicalize(ids)
	if err != nil {
		return fmt.Errorf("write firing: fact ids: %w", err)
	}

	_, err = j.store.db.ExecContext(j.ctx, `
		INSERT INTO firings (session_id, rule, package, name, handles, fact_ids, clock_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		m.SessionID,
		m.Rule,
		m.Package,
		m.Name,
		string(handles),
		string(factIDs),
		m.ClockTime,
	)
	if err != nil {
		return fmt.Errorf("write firing: %w", err)
	}
	return nil
}

// SessionDisposed implements engine.DisposeListener. It marks the session
// disposed and returns any write errors seen on it.
func (j *Journal) SessionDisposed(sessionID string) error {
	j.mu.Lock()
	s := j.sessions[sessionID]
	errs := j.errs[sessionID]
	delete(j.sessions, sessionID)
	delete(j.errs, sessionID)
	j.mu.Unlock()

	var clock int64
	if s != nil {
		clock = s.Clock().Current()
	}
	_, err := j.store.db.ExecContext(j.ctx, `
		UPDATE sessions SET disposed = 1, disposed_clock = ? WHERE id = ?
	`, clock, sessionID)
	if err != nil {
		errs = append(errs, fmt.Errorf("journal dispose: %w", err))
	}
	return errors.Join(errs...)
}

// FactID identifies a fact in the journal: its ID() when it has one,
// otherwise its string form.
func FactID(f engine.Fact) string {
	if idf, ok := f.(interface{ ID() string }); ok {
		return idf.ID()
	}
	return fmt.Sprint(f)
}
