package api

import (
	"fmt"
	"strings"
	"time"

	"leadswiper/internal/queue"
)

// FormatTime renders t in the API timestamp format. Zero times render empty.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// ParseTime parses an API timestamp. Empty input yields the zero time.
func ParseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatTime(*t)
}

func parseTimePtr(value string) (*time.Time, error) {
	t, err := ParseTime(value)
	if err != nil || t.IsZero() {
		return nil, err
	}
	return &t, nil
}

// FromLead converts a queue lead to its API representation.
func FromLead(lead *queue.Lead) Lead {
	if lead == nil {
		return Lead{}
	}
	dto := Lead{
		ID:           lead.ID,
		Username:     lead.Username,
		ProfileURL:   lead.ProfileURL,
		Karma:        lead.Karma,
		CommentKarma: lead.CommentKarma,
		Status:       string(lead.Status),
		Notes:        lead.Notes,
		ContactedAt:  formatTimePtr(lead.ContactedAt),
		ClaimedBy:    lead.ClaimedBy,
		ClaimedAt:    formatTimePtr(lead.ClaimedAt),
		CreatedAt:    FormatTime(lead.CreatedAt),
		UpdatedAt:    FormatTime(lead.UpdatedAt),
	}
	if len(lead.Posts) > 0 {
		dto.Posts = make([]Post, len(lead.Posts))
		for i, post := range lead.Posts {
			dto.Posts[i] = Post{
				ID:          post.ID,
				Group:       post.Group,
				Title:       post.Title,
				Upvotes:     post.Upvotes,
				NumComments: post.NumComments,
				PostedAt:    formatTimePtr(post.PostedAt),
			}
		}
	}
	return dto
}

// FromLeads converts a slice of queue leads.
func FromLeads(leads []*queue.Lead) []Lead {
	out := make([]Lead, 0, len(leads))
	for _, lead := range leads {
		out = append(out, FromLead(lead))
	}
	return out
}

// ToLead converts an API lead back into the queue model.
func ToLead(dto Lead) (*queue.Lead, error) {
	lead := &queue.Lead{
		ID:           dto.ID,
		Username:     dto.Username,
		ProfileURL:   dto.ProfileURL,
		Karma:        dto.Karma,
		CommentKarma: dto.CommentKarma,
		Status:       queue.Status(dto.Status),
		Notes:        dto.Notes,
		ClaimedBy:    dto.ClaimedBy,
	}
	var err error
	if lead.ContactedAt, err = parseTimePtr(dto.ContactedAt); err != nil {
		return nil, err
	}
	if lead.ClaimedAt, err = parseTimePtr(dto.ClaimedAt); err != nil {
		return nil, err
	}
	if lead.CreatedAt, err = ParseTime(dto.CreatedAt); err != nil {
		return nil, err
	}
	if lead.UpdatedAt, err = ParseTime(dto.UpdatedAt); err != nil {
		return nil, err
	}
	for _, post := range dto.Posts {
		postedAt, err := parseTimePtr(post.PostedAt)
		if err != nil {
			return nil, err
		}
		lead.Posts = append(lead.Posts, queue.Post{
			ID:          post.ID,
			Group:       post.Group,
			Title:       post.Title,
			Upvotes:     post.Upvotes,
			NumComments: post.NumComments,
			PostedAt:    postedAt,
		})
	}
	return lead, nil
}

// ToLeads converts a slice of API leads.
func ToLeads(dtos []Lead) ([]*queue.Lead, error) {
	out := make([]*queue.Lead, 0, len(dtos))
	for _, dto := range dtos {
		lead, err := ToLead(dto)
		if err != nil {
			return nil, err
		}
		out = append(out, lead)
	}
	return out, nil
}

// FromClaims converts live claims.
func FromClaims(claims []queue.Claim) []Claim {
	out := make([]Claim, 0, len(claims))
	for _, claim := range claims {
		out = append(out, Claim{
			LeadID:    claim.LeadID,
			Username:  claim.Username,
			Worker:    claim.Worker,
			ClaimedAt: FormatTime(claim.ClaimedAt),
		})
	}
	return out
}

// ToClaims converts API claims back into the queue model.
func ToClaims(dtos []Claim) ([]queue.Claim, error) {
	out := make([]queue.Claim, 0, len(dtos))
	for _, dto := range dtos {
		claimedAt, err := ParseTime(dto.ClaimedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, queue.Claim{
			LeadID:    dto.LeadID,
			Username:  dto.Username,
			Worker:    dto.Worker,
			ClaimedAt: claimedAt,
		})
	}
	return out, nil
}

// StatsFromCounts converts per-status counts for transport.
func StatsFromCounts(counts map[queue.Status]int) StatsResponse {
	out := make(map[string]int, len(counts))
	for status, count := range counts {
		out[string(status)] = count
	}
	return StatsResponse{Counts: out}
}

// CountsFromStats converts a stats payload back to per-status counts.
func CountsFromStats(resp StatsResponse) map[queue.Status]int {
	out := make(map[queue.Status]int, len(resp.Counts))
	for status, count := range resp.Counts {
		out[queue.Status(status)] = count
	}
	return out
}
