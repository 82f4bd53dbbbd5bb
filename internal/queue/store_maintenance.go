package queue

import (
	"context"
	"fmt"
	"time"
)

// Stats returns a count of leads grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM leads GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("lead stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ensureContext(ctx)); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Decision is one entry in a lead's decision log.
type Decision struct {
	LeadID    string
	Status    Status
	DecidedAt time.Time
}

// Decisions returns the decision log for a lead, oldest first.
func (s *Store) Decisions(ctx context.Context, id string) ([]Decision, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT lead_id, decision, decided_at FROM lead_decisions WHERE lead_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("lead decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var (
			decision Decision
			raw      string
		)
		if err := rows.Scan(&decision.LeadID, &decision.Status, &raw); err != nil {
			return nil, err
		}
		if decided, err := parseTimeString(raw); err == nil {
			decision.DecidedAt = decided
		}
		out = append(out, decision)
	}
	return out, rows.Err()
}
