package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Firing is one journal row.
type Firing struct {
	Seq       int64    `json:"seq"`
	SessionID string   `json:"session_id"`
	Rule      string   `json:"rule"`
	Package   string   `json:"package"`
	Name      string   `json:"name"`
	Handles   []int64  `json:"handles"`
	FactIDs   []string `json:"fact_ids"`
	ClockTime int64    `json:"clock_time"`
}

// SessionRecord is one journaled session.
type SessionRecord struct {
	ID            string
	RuleBase      string
	Fingerprint   string
	AttachedClock int64
	Disposed      bool
	DisposedClock int64
}

// Firings returns every firing in journal order.
// Returns an empty slice (not nil) when nothing fired.
func (s *Store) Firings(ctx context.Context) ([]Firing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, session_id, rule, package, name, handles, fact_ids, clock_time
		FROM firings
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query firings: %w", err)
	}
	defer rows.Close()

	firings := []Firing{}
	for rows.Next() {
		f, err := scanFiring(rows)
		if err != nil {
			return nil, err
		}
		firings = append(firings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate firings: %w", err)
	}
	return firings, nil
}

func scanFiring(rows *sql.Rows) (Firing, error) {
	var f Firing
	var handles, factIDs string
	if err := rows.Scan(&f.Seq, &f.SessionID, &f.Rule, &f.Package, &f.Name, &handles, &factIDs, &f.ClockTime); err != nil {
		return f, fmt.Errorf("scan firing: %w", err)
	}
	if err := json.Unmarshal([]byte(handles), &f.Handles); err != nil {
		return f, fmt.Errorf("firing %d handles: %w", f.Seq, err)
	}
	if err := json.Unmarshal([]byte(factIDs), &f.FactIDs); err != nil {
		return f, fmt.Errorf("firing %d fact ids: %w", f.Seq, err)
	}
	return f, nil
}

// CountByRule returns the number of firings per rule key.
func (s *Store) CountByRule(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule, COUNT(*) FROM firings GROUP BY rule ORDER BY rule
	`)
	if err != nil {
		return nil, fmt.Errorf("count firings: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var rule string
		var n int
		if err := rows.Scan(&rule, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[rule] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

// FiredFor returns how often rule fired with a fact identified by factID in
// its tuple.
func (s *Store) FiredFor(ctx context.Context, rule, factID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM firings
		WHERE rule = ?
		  AND EXISTS (SELECT 1 FROM json_each(firings.fact_ids) WHERE json_each.value = ?)
	`, rule, factID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("fired for %s/%s: %w", rule, factID, err)
	}
	return n, nil
}

// Sessions returns the journaled sessions in attach order.
func (s *Store) Sessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rule_base, fingerprint, attached_clock, disposed, COALESCE(disposed_clock, 0)
		FROM sessions
		ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := []SessionRecord{}
	for rows.Next() {
		var r SessionRecord
		if err := rows.Scan(&r.ID, &r.RuleBase, &r.Fingerprint, &r.AttachedClock, &r.Disposed, &r.DisposedClock); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}
