package postgres

import (
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"leadswiper/internal/queue"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var leadColumns = []string{
	"id", "username", "profile_url", "karma", "comment_karma", "status", "notes",
	"contacted_at", "claimed_by", "claimed_at", "created_at", "updated_at",
}

// claimablePredicate matches leads with no claim, a claim already held by
// worker, or a claim last refreshed at or before cutoff.
func claimablePredicate(worker string, cutoff time.Time) sq.Sqlizer {
	return sq.Or{
		sq.Eq{"claimed_by": nil},
		sq.Eq{"claimed_by": worker},
		sq.LtOrEq{"claimed_at": cutoff},
	}
}

func tryClaimQuery(id, worker string, now, cutoff time.Time) (string, []any, error) {
	return psql.Update("leads").
		Set("claimed_by", worker).
		Set("claimed_at", now).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"status": string(queue.StatusPending)}).
		Where(claimablePredicate(worker, cutoff)).
		ToSql()
}

func renewQuery(ids []string, worker string, now time.Time) (string, []any, error) {
	return psql.Update("leads").
		Set("claimed_at", now).
		Where(sq.Eq{"claimed_by": worker}).
		Where(sq.LtOrEq{"claimed_at": now}).
		Where("id = ANY(?)", pq.StringArray(ids)).
		ToSql()
}

func releaseQuery(worker string, ids []string) (string, []any, error) {
	builder := psql.Update("leads").
		Set("claimed_by", nil).
		Set("claimed_at", nil).
		Where(sq.Eq{"claimed_by": worker})
	if len(ids) > 0 {
		builder = builder.Where("id = ANY(?)", pq.StringArray(ids))
	}
	return builder.ToSql()
}

func activeClaimsQuery(cutoff time.Time) (string, []any, error) {
	return psql.Select("id", "username", "claimed_by", "claimed_at").
		From("leads").
		Where(sq.Eq{"status": string(queue.StatusPending)}).
		Where(sq.NotEq{"claimed_by": nil}).
		Where(sq.Gt{"claimed_at": cutoff}).
		OrderBy("claimed_at", "id").
		ToSql()
}

func eligibleQuery(q queue.EligibleQuery) (string, []any, error) {
	status := q.Status
	if status == "" {
		status = queue.StatusPending
	}
	builder := psql.Select(leadColumns...).
		From("leads").
		Where(sq.Eq{"status": string(status)})
	if status == queue.StatusPending && q.Worker != "" {
		builder = builder.Where(claimablePredicate(q.Worker, q.Cutoff))
	}
	if groups := queue.NormalizeGroups(q.ExcludedGroups); len(groups) > 0 {
		// Keep leads without grouped posts, or with at least one post outside
		// the excluded groups.
		builder = builder.Where(sq.Or{
			sq.Expr("NOT EXISTS (SELECT 1 FROM lead_posts p WHERE p.lead_id = leads.id AND p.group_name IS NOT NULL)"),
			sq.Expr("EXISTS (SELECT 1 FROM lead_posts p WHERE p.lead_id = leads.id AND p.group_name IS NOT NULL AND lower(p.group_name) <> ALL(?))",
				pq.StringArray(groups)),
		})
	}
	builder = builder.OrderBy("karma DESC", "id ASC")
	if q.Limit > 0 {
		builder = builder.Limit(uint64(q.Limit))
	}
	return builder.ToSql()
}

func listQuery(status queue.Status, limit int) (string, []any, error) {
	builder := psql.Select(leadColumns...).
		From("leads").
		Where(sq.Eq{"status": string(status)}).
		OrderBy("updated_at DESC", "id ASC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	return builder.ToSql()
}

func postsQuery(ids []string) (string, []any, error) {
	return psql.Select("lead_id", "id", "group_name", "title", "upvotes", "num_comments", "posted_at").
		From("lead_posts").
		Where("lead_id = ANY(?)", pq.StringArray(ids)).
		OrderBy("lead_id", "posted_at", "id").
		ToSql()
}

func setStatusQuery(id string, status queue.Status, now time.Time) (string, []any, error) {
	builder := psql.Update("leads").
		Set("status", string(status)).
		Set("updated_at", now)
	if status.IsTerminal() {
		builder = builder.Set("claimed_by", nil).Set("claimed_at", nil)
	}
	return builder.Where(sq.Eq{"id": id}).ToSql()
}

func decisionInsert(id string, status queue.Status, now time.Time) (string, []any, error) {
	return psql.Insert("lead_decisions").
		Columns("lead_id", "decision", "decided_at").
		Values(id, string(status), now).
		ToSql()
}

func upsertLeadQuery(lead *queue.Lead) (string, []any, error) {
	return psql.Insert("leads").
		Columns("id", "username", "profile_url", "karma", "comment_karma", "status", "notes", "created_at", "updated_at").
		Values(lead.ID, lead.Username, nullString(lead.ProfileURL), lead.Karma, lead.CommentKarma,
			string(lead.Status), nullString(lead.Notes), lead.CreatedAt, lead.UpdatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			profile_url = EXCLUDED.profile_url,
			karma = EXCLUDED.karma,
			comment_karma = EXCLUDED.comment_karma,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
}

func insertPostsQuery(leadID string, posts []queue.Post) (string, []any, error) {
	builder := psql.Insert("lead_posts").
		Columns("lead_id", "id", "group_name", "title", "upvotes", "num_comments", "posted_at")
	for _, post := range posts {
		builder = builder.Values(leadID, post.ID, nullString(post.Group), nullString(post.Title),
			post.Upvotes, post.NumComments, post.PostedAt)
	}
	return builder.ToSql()
}

// sqExprCoalesce keeps the existing column value when notes is empty.
func sqExprCoalesce(notes string) sq.Sqlizer {
	return sq.Expr("COALESCE(?, notes)", nullString(notes))
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
