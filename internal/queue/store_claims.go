package queue

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// TryClaim conditionally takes the claim on one pending lead.
func (s *Store) TryClaim(ctx context.Context, id, worker string, now, cutoff time.Time) (bool, error) {
	if strings.TrimSpace(worker) == "" {
		return false, fmt.Errorf("try claim %s: worker is required", id)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE leads
		 SET claimed_by = ?, claimed_at = ?
		 WHERE id = ? AND status = ?
		   AND (claimed_by IS NULL OR claimed_by = ? OR claimed_at <= ?)`,
		worker,
		formatTime(now),
		id,
		StatusPending,
		worker,
		formatTime(cutoff),
	)
	if err != nil {
		return false, fmt.Errorf("try claim %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("try claim %s rows affected: %w", id, err)
	}
	return affected == 1, nil
}

// RenewClaims refreshes claimed_at for leads still held by worker.
func (s *Store) RenewClaims(ctx context.Context, ids []string, worker string, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ts := formatTime(now)
	args := []any{ts, worker, ts}
	args = append(args, stringArgs(ids)...)
	query := fmt.Sprintf(
		`UPDATE leads SET claimed_at = ?
		 WHERE claimed_by = ? AND claimed_at <= ? AND id IN (%s)`,
		makePlaceholders(len(ids)),
	)
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("renew claims: %w", err)
	}
	return res.RowsAffected()
}

// ReleaseClaims clears claims held by worker, limited to ids when provided.
func (s *Store) ReleaseClaims(ctx context.Context, worker string, ids []string) (int64, error) {
	query := `UPDATE leads SET claimed_by = NULL, claimed_at = NULL WHERE claimed_by = ?`
	args := []any{worker}
	if len(ids) > 0 {
		query += fmt.Sprintf(" AND id IN (%s)", makePlaceholders(len(ids)))
		args = append(args, stringArgs(ids)...)
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("release claims: %w", err)
	}
	return res.RowsAffected()
}

// ActiveClaims lists claims on pending leads refreshed after cutoff.
func (s *Store) ActiveClaims(ctx context.Context, cutoff time.Time) ([]Claim, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, username, claimed_by, claimed_at FROM leads
		 WHERE status = ? AND claimed_by IS NOT NULL AND claimed_at > ?
		 ORDER BY claimed_at, id`,
		StatusPending,
		formatTime(cutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("active claims: %w", err)
	}
	defer rows.Close()

	var claims []Claim
	for rows.Next() {
		var (
			claim      Claim
			claimedRaw string
		)
		if err := rows.Scan(&claim.LeadID, &claim.Username, &claim.Worker, &claimedRaw); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		if claimedAt, err := parseTimeString(claimedRaw); err == nil {
			claim.ClaimedAt = claimedAt
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}
