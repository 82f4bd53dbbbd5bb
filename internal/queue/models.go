package queue

import (
	"strings"
	"time"
)

// Status represents the review lifecycle of a lead.
type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusSuperliked Status = "superliked"
	StatusContacted  Status = "contacted"
)

var allStatuses = []Status{
	StatusPending,
	StatusApproved,
	StatusRejected,
	StatusSuperliked,
	StatusContacted,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// Post is one history record attached to a lead.
type Post struct {
	ID          string
	Group       string
	Title       string
	Upvotes     int64
	NumComments int64
	PostedAt    *time.Time
}

// Lead is a reviewable work item. ClaimedBy and ClaimedAt are either both
// set or both empty.
type Lead struct {
	ID           string
	Username     string
	ProfileURL   string
	Karma        int64
	CommentKarma int64
	Status       Status
	Notes        string
	ContactedAt  *time.Time
	ClaimedBy    string
	ClaimedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Posts        []Post
}

// Claim describes a live lease held on a pending lead.
type Claim struct {
	LeadID    string
	Username  string
	Worker    string
	ClaimedAt time.Time
}

// EligibleQuery selects leads a worker may take. The claim predicate only
// applies to pending leads when Worker is set: leads claimed by another worker
// after Cutoff are skipped.
type EligibleQuery struct {
	Worker         string
	Status         Status
	ExcludedGroups []string
	Cutoff         time.Time
	Limit          int

	// Now is the caller's clock when Cutoff was computed. Local stores ignore
	// it; the gateway client forwards it so the gateway can rebase Cutoff.
	Now time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether leaving pending for this status releases a claim.
func (s Status) IsTerminal() bool {
	_, known := statusSet[s]
	return known && s != StatusPending
}

// IsClaimed reports whether the lead carries claim fields.
func (l *Lead) IsClaimed() bool {
	return l != nil && l.ClaimedBy != "" && l.ClaimedAt != nil
}

// ClaimLiveAt reports whether the lead holds a claim that has not expired at
// now under the given lease duration.
func (l *Lead) ClaimLiveAt(now time.Time, lease time.Duration) bool {
	if !l.IsClaimed() || l.Status != StatusPending {
		return false
	}
	return now.Sub(*l.ClaimedAt) < lease
}

// Clone returns a deep copy safe to hand across goroutines.
func (l *Lead) Clone() *Lead {
	if l == nil {
		return nil
	}
	cp := *l
	if l.ContactedAt != nil {
		t := *l.ContactedAt
		cp.ContactedAt = &t
	}
	if l.ClaimedAt != nil {
		t := *l.ClaimedAt
		cp.ClaimedAt = &t
	}
	if l.Posts != nil {
		cp.Posts = make([]Post, len(l.Posts))
		for i, post := range l.Posts {
			cp.Posts[i] = post
			if post.PostedAt != nil {
				t := *post.PostedAt
				cp.Posts[i].PostedAt = &t
			}
		}
	}
	return &cp
}

// IDs extracts lead identifiers in order.
func IDs(leads []*Lead) []string {
	ids := make([]string, 0, len(leads))
	for _, lead := range leads {
		if lead != nil {
			ids = append(ids, lead.ID)
		}
	}
	return ids
}
