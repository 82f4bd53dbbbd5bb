package ranking_test

import (
	"fmt"
	"testing"
	"time"

	"leadswiper/internal/queue"
	"leadswiper/internal/ranking"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func postsAt(offsets ...time.Duration) []queue.Post {
	posts := make([]queue.Post, 0, len(offsets))
	for i, off := range offsets {
		at := day0.Add(off)
		posts = append(posts, queue.Post{ID: fmt.Sprint(i), PostedAt: &at})
	}
	return posts
}

func withUpvotes(upvotes ...int64) []queue.Post {
	posts := make([]queue.Post, 0, len(upvotes))
	for i, up := range upvotes {
		posts = append(posts, queue.Post{ID: fmt.Sprint(i), Upvotes: up})
	}
	return posts
}

func TestRankByAverageUpvotesIsStableDescending(t *testing.T) {
	leads := []*queue.Lead{
		{ID: "A", Posts: withUpvotes(5, 5)},
		{ID: "B", Posts: withUpvotes(10)},
		{ID: "C", Posts: withUpvotes(4, 6)},
		{ID: "D"},
	}
	ranked := ranking.Rank(leads, ranking.KeyAvgUpvotes, day0)
	if got := fmt.Sprint(queue.IDs(ranked)); got != "[B A C D]" {
		t.Fatalf("unexpected order %s", got)
	}
	if got := fmt.Sprint(queue.IDs(leads)); got != "[A B C D]" {
		t.Fatalf("Rank must not reorder its input, got %s", got)
	}
}

func TestPostsPerDay(t *testing.T) {
	now := day0.Add(10 * 24 * time.Hour)
	tests := []struct {
		name    string
		created time.Time
		posts   []queue.Post
		want    float64
	}{
		{name: "no posts", created: day0, want: 0},
		{name: "unknown creation time", posts: postsAt(0, time.Hour), want: 0},
		{name: "burst of posts counts against lead age", created: day0, posts: postsAt(0, time.Hour, 2*time.Hour, 3*time.Hour), want: 0.4},
		{name: "single post", created: now.Add(-48 * time.Hour), posts: postsAt(9 * 24 * time.Hour), want: 0.5},
		{name: "age floors at one day", created: now.Add(-time.Hour), posts: postsAt(0, time.Hour, 2*time.Hour), want: 3},
		{
			name:    "undated posts still count",
			created: now.Add(-4 * 24 * time.Hour),
			posts:   append(postsAt(0), queue.Post{ID: "undated"}),
			want:    0.5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ranking.PostsPerDay(&queue.Lead{CreatedAt: tt.created, Posts: tt.posts}, now)
			if got != tt.want {
				t.Fatalf("PostsPerDay = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRankByCadenceAndKarma(t *testing.T) {
	now := day0.Add(20 * 24 * time.Hour)
	leads := []*queue.Lead{
		{ID: "old", Karma: 900, CreatedAt: day0, Posts: postsAt(0, time.Hour, 2*time.Hour, 3*time.Hour)},
		{ID: "fresh", Karma: 10, CommentKarma: 5, CreatedAt: now.Add(-2 * 24 * time.Hour), Posts: postsAt(0, time.Hour)},
		{ID: "chatty", Karma: 100, CommentKarma: 2000, CreatedAt: day0},
	}
	if got := fmt.Sprint(queue.IDs(ranking.Rank(leads, ranking.KeyPostsPerDay, now))); got != "[fresh old chatty]" {
		t.Fatalf("unexpected cadence order %s", got)
	}
	if got := fmt.Sprint(queue.IDs(ranking.Rank(leads, ranking.KeyTotalKarma, now))); got != "[chatty old fresh]" {
		t.Fatalf("unexpected karma order %s", got)
	}
	if got := ranking.Score(leads[0], ranking.KeyPostsPerDay, now); got != 0.2 {
		t.Fatalf("Score(old) = %v, want 0.2", got)
	}
}

func TestParseKey(t *testing.T) {
	key, err := ranking.ParseKey(" Posts_Per_Day ")
	if err != nil || key != ranking.KeyPostsPerDay {
		t.Fatalf("ParseKey = %q, %v", key, err)
	}
	if _, err := ranking.ParseKey("followers"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestRankDoesNotTouchClaims(t *testing.T) {
	claimedAt := day0
	lead := &queue.Lead{ID: "x", ClaimedBy: "A", ClaimedAt: &claimedAt, Posts: withUpvotes(3)}
	ranked := ranking.Rank([]*queue.Lead{lead}, ranking.KeyAvgUpvotes, day0)
	if ranked[0] != lead || lead.ClaimedBy != "A" || !lead.ClaimedAt.Equal(day0) {
		t.Fatalf("ranking must hand back the same claimed lead, got %#v", ranked[0])
	}
}
