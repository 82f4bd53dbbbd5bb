package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"leadswiper/internal/queue"
)

//go:embed schema.sql
var schemaDDL string

// Store is a queue.LeaseStore backed by PostgreSQL, for teams sharing one
// queue across machines.
type Store struct {
	db *sql.DB
}

var _ queue.LeaseStore = (*Store)(nil)

// Open connects to dsn, verifies the connection, and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection pool without touching the schema.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (s *Store) exec(ctx context.Context, build func() (string, []any, error)) (int64, error) {
	query, args, err := build()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TryClaim conditionally claims a pending lead for worker.
func (s *Store) TryClaim(ctx context.Context, id, worker string, now, cutoff time.Time) (bool, error) {
	if strings.TrimSpace(worker) == "" {
		return false, fmt.Errorf("try claim %s: worker is required", id)
	}
	affected, err := s.exec(ctx, func() (string, []any, error) {
		return tryClaimQuery(id, worker, now.UTC(), cutoff.UTC())
	})
	if err != nil {
		return false, fmt.Errorf("try claim %s: %w", id, err)
	}
	return affected == 1, nil
}

// RenewClaims refreshes claimed_at for ids still held by worker.
func (s *Store) RenewClaims(ctx context.Context, ids []string, worker string, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	affected, err := s.exec(ctx, func() (string, []any, error) {
		return renewQuery(ids, worker, now.UTC())
	})
	if err != nil {
		return 0, fmt.Errorf("renew claims: %w", err)
	}
	return affected, nil
}

// ReleaseClaims clears worker's claims on ids, or on every lead when ids is
// empty.
func (s *Store) ReleaseClaims(ctx context.Context, worker string, ids []string) (int64, error) {
	affected, err := s.exec(ctx, func() (string, []any, error) {
		return releaseQuery(worker, ids)
	})
	if err != nil {
		return 0, fmt.Errorf("release claims: %w", err)
	}
	return affected, nil
}

// ActiveClaims lists pending leads whose claim was refreshed after cutoff.
func (s *Store) ActiveClaims(ctx context.Context, cutoff time.Time) ([]queue.Claim, error) {
	query, args, err := activeClaimsQuery(cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("active claims: %w", err)
	}
	defer rows.Close()

	var claims []queue.Claim
	for rows.Next() {
		var claim queue.Claim
		if err := rows.Scan(&claim.LeadID, &claim.Username, &claim.Worker, &claim.ClaimedAt); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		claim.ClaimedAt = claim.ClaimedAt.UTC()
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

// Eligible returns leads matching q in priority order with posts attached.
func (s *Store) Eligible(ctx context.Context, q queue.EligibleQuery) ([]*queue.Lead, error) {
	if q.Status != "" {
		if _, ok := queue.ParseStatus(string(q.Status)); !ok {
			return nil, fmt.Errorf("%w: %q", queue.ErrInvalidStatus, q.Status)
		}
	}
	q.Cutoff = q.Cutoff.UTC()
	query, args, err := eligibleQuery(q)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
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

// List returns leads in status, most recently updated first.
func (s *Store) List(ctx context.Context, status queue.Status, limit int) ([]*queue.Lead, error) {
	if _, ok := queue.ParseStatus(string(status)); !ok {
		return nil, fmt.Errorf("%w: %q", queue.ErrInvalidStatus, status)
	}
	query, args, err := listQuery(status, limit)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
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

// GetByID fetches a lead. A missing lead returns (nil, nil).
func (s *Store) GetByID(ctx context.Context, id string) (*queue.Lead, error) {
	query, args, err := psql.Select(leadColumns...).From("leads").Where("id = ?", id).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	lead, err := scanLead(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get lead %s: %w", id, err)
	}
	if err := s.attachPosts(ctx, []*queue.Lead{lead}); err != nil {
		return nil, err
	}
	return lead, nil
}

// SetStatus writes a status and appends it to the decision log.
func (s *Store) SetStatus(ctx context.Context, id string, status queue.Status, now time.Time) error {
	if _, ok := queue.ParseStatus(string(status)); !ok {
		return fmt.Errorf("%w: %q", queue.ErrInvalidStatus, status)
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return setStatusTx(ctx, tx, id, status, now.UTC())
	})
	if err != nil {
		return fmt.Errorf("set status %s: %w", id, err)
	}
	return nil
}

// MarkContacted moves a lead to contacted and records notes when given.
func (s *Store) MarkContacted(ctx context.Context, id, notes string, now time.Time) error {
	now = now.UTC()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		query, args, err := psql.Update("leads").
			Set("contacted_at", now).
			Set("notes", sqExprCoalesce(notes)).
			Where("id = ?", id).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
		return setStatusTx(ctx, tx, id, queue.StatusContacted, now)
	})
	if err != nil {
		return fmt.Errorf("mark contacted %s: %w", id, err)
	}
	return nil
}

// UpdateNotes replaces a lead's notes.
func (s *Store) UpdateNotes(ctx context.Context, id, notes string, now time.Time) error {
	affected, err := s.exec(ctx, func() (string, []any, error) {
		return psql.Update("leads").
			Set("notes", nullString(notes)).
			Set("updated_at", now.UTC()).
			Where("id = ?", id).
			ToSql()
	})
	if err != nil {
		return fmt.Errorf("update notes %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("update notes: %w: %s", queue.ErrNotFound, id)
	}
	return nil
}

// Stats counts leads per status.
func (s *Store) Stats(ctx context.Context) (map[queue.Status]int, error) {
	query, args, err := psql.Select("status", "COUNT(1)").From("leads").GroupBy("status").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lead stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[queue.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[queue.Status(status)] = count
	}
	return stats, rows.Err()
}

// Upsert inserts or refreshes a lead's descriptive fields and replaces its
// posts. Status, notes, and claim fields of an existing lead are kept.
func (s *Store) Upsert(ctx context.Context, lead *queue.Lead, now time.Time) error {
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
		lead.Status = queue.StatusPending
	}
	if _, ok := queue.ParseStatus(string(lead.Status)); !ok {
		return fmt.Errorf("upsert lead: %w: %q", queue.ErrInvalidStatus, lead.Status)
	}
	now = now.UTC()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	lead.UpdatedAt = now
	for i := range lead.Posts {
		if lead.Posts[i].ID == "" {
			lead.Posts[i].ID = uuid.NewString()
		}
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		query, args, err := upsertLeadQuery(lead)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM lead_posts WHERE lead_id = $1`, lead.ID); err != nil {
			return err
		}
		if len(lead.Posts) == 0 {
			return nil
		}
		query, args, err = insertPostsQuery(lead.ID, lead.Posts)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert lead %s: %w", lead.ID, err)
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func setStatusTx(ctx context.Context, tx *sql.Tx, id string, status queue.Status, now time.Time) error {
	query, args, err := setStatusQuery(id, status, now)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", queue.ErrNotFound, id)
	}
	query, args, err = decisionInsert(id, status, now)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

func (s *Store) queryLeads(ctx context.Context, query string, args ...any) ([]*queue.Lead, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leads []*queue.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

func (s *Store) attachPosts(ctx context.Context, leads []*queue.Lead) error {
	if len(leads) == 0 {
		return nil
	}
	byID := make(map[string]*queue.Lead, len(leads))
	for _, lead := range leads {
		byID[lead.ID] = lead
	}
	query, args, err := postsQuery(queue.IDs(leads))
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("load posts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			leadID string
			post   queue.Post
			group  sql.NullString
			title  sql.NullString
			posted sql.NullTime
		)
		if err := rows.Scan(&leadID, &post.ID, &group, &title, &post.Upvotes, &post.NumComments, &posted); err != nil {
			return fmt.Errorf("scan post: %w", err)
		}
		post.Group = group.String
		post.Title = title.String
		post.PostedAt = timePtr(posted)
		if lead := byID[leadID]; lead != nil {
			lead.Posts = append(lead.Posts, post)
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (*queue.Lead, error) {
	var (
		lead       queue.Lead
		status     string
		profileURL sql.NullString
		notes      sql.NullString
		contacted  sql.NullTime
		claimedBy  sql.NullString
		claimedAt  sql.NullTime
	)
	if err := row.Scan(
		&lead.ID,
		&lead.Username,
		&profileURL,
		&lead.Karma,
		&lead.CommentKarma,
		&status,
		&notes,
		&contacted,
		&claimedBy,
		&claimedAt,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		return nil, err
	}
	lead.Status = queue.Status(status)
	lead.ProfileURL = profileURL.String
	lead.Notes = notes.String
	lead.ContactedAt = timePtr(contacted)
	lead.ClaimedBy = claimedBy.String
	lead.ClaimedAt = timePtr(claimedAt)
	lead.CreatedAt = lead.CreatedAt.UTC()
	lead.UpdatedAt = lead.UpdatedAt.UTC()
	return &lead, nil
}

func timePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}
