package queue

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const leadColumns = "id, username, profile_url, karma, comment_karma, status, notes, contacted_at, claimed_by, claimed_at, created_at, updated_at"

// timestampLayout is fixed width so stored values compare correctly as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

func scanLead(scanner interface{ Scan(dest ...any) error }) (*Lead, error) {
	var (
		id           string
		username     string
		profileURL   sql.NullString
		karma        sql.NullInt64
		commentKarma sql.NullInt64
		statusStr    string
		notes        sql.NullString
		contactedRaw sql.NullString
		claimedBy    sql.NullString
		claimedRaw   sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&username,
		&profileURL,
		&karma,
		&commentKarma,
		&statusStr,
		&notes,
		&contactedRaw,
		&claimedBy,
		&claimedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	lead := &Lead{
		ID:           id,
		Username:     username,
		ProfileURL:   profileURL.String,
		Karma:        karma.Int64,
		CommentKarma: commentKarma.Int64,
		Status:       Status(statusStr),
		Notes:        notes.String,
		ContactedAt:  parseNullableTime(contactedRaw),
	}
	if claimedBy.Valid && claimedRaw.Valid {
		if claimedAt, err := parseTimeString(claimedRaw.String); err == nil {
			lead.ClaimedBy = claimedBy.String
			lead.ClaimedAt = &claimedAt
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		lead.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		lead.UpdatedAt = updated
	}
	return lead, nil
}

func parseNullableTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	parsed, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

// requireAffected reports ErrNotFound when res touched no row for id.
func requireAffected(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}

func stringArgs(values []string) []any {
	args := make([]any, 0, len(values))
	for _, v := range values {
		args = append(args, v)
	}
	return args
}

// NormalizeGroups lower-cases and trims group names for exclusion matching.
func NormalizeGroups(groups []string) []string {
	out := make([]string, 0, len(groups))
	for _, group := range groups {
		if trimmed := strings.ToLower(strings.TrimSpace(group)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
