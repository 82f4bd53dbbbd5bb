package ranking

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"leadswiper/internal/queue"
)

// Key names a derived metric leads can be ordered by.
type Key string

const (
	KeyAvgUpvotes  Key = "avg_upvotes"
	KeyPostsPerDay Key = "posts_per_day"
	KeyTotalKarma  Key = "total_karma"
)

// DefaultKey orders by engagement.
const DefaultKey = KeyAvgUpvotes

var keys = []Key{KeyAvgUpvotes, KeyPostsPerDay, KeyTotalKarma}

// Keys returns the supported ranking keys.
func Keys() []Key {
	return slices.Clone(keys)
}

// ParseKey validates a ranking key name.
func ParseKey(value string) (Key, error) {
	key := Key(strings.ToLower(strings.TrimSpace(value)))
	if slices.Contains(keys, key) {
		return key, nil
	}
	return "", fmt.Errorf("unknown sort key %q (want one of %v)", value, keys)
}

// Rank returns a new slice of leads ordered by key, highest first. Ties keep
// their input order. Unknown keys return the input order unchanged. now is
// the reference time for time-based keys.
func Rank(leads []*queue.Lead, key Key, now time.Time) []*queue.Lead {
	out := slices.Clone(leads)
	score := scorer(key)
	if score == nil {
		return out
	}
	scores := make(map[*queue.Lead]float64, len(out))
	for _, lead := range out {
		scores[lead] = score(lead, now)
	}
	slices.SortStableFunc(out, func(a, b *queue.Lead) int {
		sa, sb := scores[a], scores[b]
		switch {
		case sa > sb:
			return -1
		case sa < sb:
			return 1
		default:
			return 0
		}
	})
	return out
}

// Score returns the value Rank sorts lead by under key.
func Score(lead *queue.Lead, key Key, now time.Time) float64 {
	if score := scorer(key); score != nil {
		return score(lead, now)
	}
	return 0
}

func scorer(key Key) func(*queue.Lead, time.Time) float64 {
	switch key {
	case KeyAvgUpvotes:
		return func(lead *queue.Lead, _ time.Time) float64 { return AvgUpvotes(lead) }
	case KeyPostsPerDay:
		return PostsPerDay
	case KeyTotalKarma:
		return func(lead *queue.Lead, _ time.Time) float64 { return TotalKarma(lead) }
	default:
		return nil
	}
}

// AvgUpvotes is the mean upvote count across a lead's posts.
func AvgUpvotes(lead *queue.Lead) float64 {
	if lead == nil || len(lead.Posts) == 0 {
		return 0
	}
	var total int64
	for _, post := range lead.Posts {
		total += post.Upvotes
	}
	return float64(total) / float64(len(lead.Posts))
}

// PostsPerDay divides the post count by the days elapsed between the lead's
// creation and now, floored at one day. Leads with no posts or no creation
// time score zero.
func PostsPerDay(lead *queue.Lead, now time.Time) float64 {
	if lead == nil || len(lead.Posts) == 0 || lead.CreatedAt.IsZero() {
		return 0
	}
	days := now.Sub(lead.CreatedAt).Hours() / 24
	if days < 1 {
		days = 1
	}
	return float64(len(lead.Posts)) / days
}

// TotalKarma sums post and comment karma.
func TotalKarma(lead *queue.Lead) float64 {
	if lead == nil {
		return 0
	}
	return float64(lead.Karma + lead.CommentKarma)
}
