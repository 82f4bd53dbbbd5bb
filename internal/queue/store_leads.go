package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Eligible returns leads matching q in priority order (karma desc, id asc)
// with their posts attached.
func (s *Store) Eligible(ctx context.Context, q EligibleQuery) ([]*Lead, error) {
	ctx = ensureContext(ctx)
	status := q.Status
	if status == "" {
		status = StatusPending
	}
	if _, ok := statusSet[status]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	var (
		where = []string{"status = ?"}
		args  = []any{status}
	)
	if status == StatusPending && q.Worker != "" {
		where = append(where, "(claimed_by IS NULL OR claimed_by = ? OR claimed_at <= ?)")
		args = append(args, q.Worker, formatTime(q.Cutoff))
	}
	if groups := NormalizeGroups(q.ExcludedGroups); len(groups) > 0 {
		// Keep leads without grouped posts, or with at least one post outside
		// the excluded groups.
		where = append(where, fmt.Sprintf(
			`(NOT EXISTS (SELECT 1 FROM lead_posts p WHERE p.lead_id = leads.id AND p.group_name IS NOT NULL)
			  OR EXISTS (SELECT 1 FROM lead_posts p WHERE p.lead_id = leads.id AND p.group_name IS NOT NULL
			             AND lower(p.group_name) NOT IN (%s)))`,
			makePlaceholders(len(groups)),
		))
		args = append(args, stringArgs(groups)...)
	}

	query := "SELECT " + leadColumns + " FROM leads WHERE " + strings.Join(where, " AND ") +
		" ORDER BY karma DESC, id ASC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	leads, err := s.queryLeads(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("eligible leads: %w", err)
	}
	if err := s.attachPosts(ctx, leads); err != nil {
		return nil, err
	}
	return leads, nil
}

// List returns leads in a status, most recently updated first.
func (s *Store) List(ctx context.Context, status Status, limit int) ([]*Lead, error) {
	ctx = ensureContext(ctx)
	if _, ok := statusSet[status]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	query := "SELECT " + leadColumns + " FROM leads WHERE status = ? ORDER BY updated_at DESC, id ASC"
	args := []any{status}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	leads, err := s.queryLeads(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	if err := s.attachPosts(ctx, leads); err != nil {
		return nil, err
	}
	return leads, nil
}

// GetByID fetches a lead by identifier. A missing lead returns (nil, nil).
func (s *Store) GetByID(ctx context.Context, id string) (*Lead, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+leadColumns+" FROM leads WHERE id = ?", id)
	lead, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get lead %s: %w", id, err)
	}
	if err := s.attachPosts(ctx, []*Lead{lead}); err != nil {
		return nil, err
	}
	return lead, nil
}

func (s *Store) queryLeads(ctx context.Context, query string, args ...any) ([]*Lead, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leads []*Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

func (s *Store) attachPosts(ctx context.Context, leads []*Lead) error {
	if len(leads) == 0 {
		return nil
	}
	byID := make(map[string]*Lead, len(leads))
	for _, lead := range leads {
		byID[lead.ID] = lead
	}
	query := fmt.Sprintf(
		`SELECT lead_id, id, group_name, title, upvotes, num_comments, posted_at
		 FROM lead_posts WHERE lead_id IN (%s) ORDER BY lead_id, posted_at, id`,
		makePlaceholders(len(leads)),
	)
	rows, err := s.db.QueryContext(ctx, query, stringArgs(IDs(leads))...)
	if err != nil {
		return fmt.Errorf("load posts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			leadID    string
			post      Post
			group     sql.NullString
			title     sql.NullString
			postedRaw sql.NullString
		)
		if err := rows.Scan(&leadID, &post.ID, &group, &title, &post.Upvotes, &post.NumComments, &postedRaw); err != nil {
			return fmt.Errorf("scan post: %w", err)
		}
		post.Group = group.String
		post.Title = title.String
		post.PostedAt = parseNullableTime(postedRaw)
		if lead := byID[leadID]; lead != nil {
			lead.Posts = append(lead.Posts, post)
		}
	}
	return rows.Err()
}

// SetStatus writes a lead's status. Leaving pending clears the claim; every
// change is appended to the decision log in the same transaction.
func (s *Store) SetStatus(ctx context.Context, id string, status Status, now time.Time) error {
	if _, ok := statusSet[status]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return setStatusTx(ctx, tx, id, status, now)
	})
	if err != nil {
		return fmt.Errorf("set status %s: %w", id, err)
	}
	return nil
}

// MarkContacted moves a lead to contacted and records the contact notes.
func (s *Store) MarkContacted(ctx context.Context, id, notes string, now time.Time) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE leads SET contacted_at = ?, notes = COALESCE(?, notes) WHERE id = ?`,
			formatTime(now), nullableString(notes), id,
		); err != nil {
			return err
		}
		return setStatusTx(ctx, tx, id, StatusContacted, now)
	})
	if err != nil {
		return fmt.Errorf("mark contacted %s: %w", id, err)
	}
	return nil
}

// UpdateNotes replaces a lead's notes.
func (s *Store) UpdateNotes(ctx context.Context, id, notes string, now time.Time) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE leads SET notes = ?, updated_at = ? WHERE id = ?`,
		nullableString(notes), formatTime(now), id,
	)
	if err != nil {
		return fmt.Errorf("update notes %s: %w", id, err)
	}
	if err := requireAffected(res, id); err != nil {
		return fmt.Errorf("update notes: %w", err)
	}
	return nil
}

func setStatusTx(ctx context.Context, tx *sql.Tx, id string, status Status, now time.Time) error {
	ts := formatTime(now)
	query := `UPDATE leads SET status = ?, updated_at = ? WHERE id = ?`
	if status.IsTerminal() {
		query = `UPDATE leads SET status = ?, updated_at = ?, claimed_by = NULL, claimed_at = NULL WHERE id = ?`
	}
	res, err := tx.ExecContext(ctx, query, status, ts, id)
	if err != nil {
		return err
	}
	if err := requireAffected(res, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO lead_decisions (lead_id, decision, decided_at) VALUES (?, ?, ?)`,
		id, status, ts,
	); err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// Upsert inserts or refreshes a lead's descriptive fields and posts. Status,
// notes, and claim fields of an existing lead are left alone. An empty ID is
// assigned a new UUID. now stamps updated_at, and created_at when unset.
func (s *Store) Upsert(ctx context.Context, lead *Lead, now time.Time) error {
	if lead == nil {
		return errors.New("upsert lead: nil lead")
	}
	if strings.TrimSpace(lead.Username) == "" {
		return errors.New("upsert lead: username is required")
	}
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.Status == "" {
		lead.Status = StatusPending
	}
	if _, ok := statusSet[lead.Status]; !ok {
		return fmt.Errorf("upsert lead: %w: %q", ErrInvalidStatus, lead.Status)
	}
	now = now.UTC()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	lead.UpdatedAt = now

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO leads (id, username, profile_url, karma, comment_karma, status, notes, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   username = excluded.username,
			   profile_url = excluded.profile_url,
			   karma = excluded.karma,
			   comment_karma = excluded.comment_karma,
			   updated_at = excluded.updated_at`,
			lead.ID,
			lead.Username,
			nullableString(lead.ProfileURL),
			lead.Karma,
			lead.CommentKarma,
			lead.Status,
			nullableString(lead.Notes),
			formatTime(lead.CreatedAt),
			formatTime(lead.UpdatedAt),
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM lead_posts WHERE lead_id = ?`, lead.ID); err != nil {
			return err
		}
		for i := range lead.Posts {
			post := &lead.Posts[i]
			if post.ID == "" {
				post.ID = uuid.NewString()
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO lead_posts (lead_id, id, group_name, title, upvotes, num_comments, posted_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				lead.ID,
				post.ID,
				nullableString(post.Group),
				nullableString(post.Title),
				post.Upvotes,
				post.NumComments,
				nullableTime(post.PostedAt),
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert lead %s: %w", lead.ID, err)
	}
	return nil
}
