package api

// dateTimeFormat is used for timestamps in API payloads. Claim timestamps
// must round-trip exactly, so fractional seconds keep nanosecond precision.
const dateTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Post describes one history record of a lead.
type Post struct {
	ID          string `json:"id"`
	Group       string `json:"group,omitempty"`
	Title       string `json:"title,omitempty"`
	Upvotes     int64  `json:"upvotes"`
	NumComments int64  `json:"numComments"`
	PostedAt    string `json:"postedAt,omitempty"`
}

// Lead describes a reviewable lead in a transport-friendly format.
type Lead struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	ProfileURL   string `json:"profileUrl,omitempty"`
	Karma        int64  `json:"karma"`
	CommentKarma int64  `json:"commentKarma"`
	Status       string `json:"status"`
	Notes        string `json:"notes,omitempty"`
	ContactedAt  string `json:"contactedAt,omitempty"`
	ClaimedBy    string `json:"claimedBy,omitempty"`
	ClaimedAt    string `json:"claimedAt,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
	Posts        []Post `json:"posts,omitempty"`
}

// Claim describes a live lease.
type Claim struct {
	LeadID    string `json:"leadId"`
	Username  string `json:"username"`
	Worker    string `json:"worker"`
	ClaimedAt string `json:"claimedAt"`
}

// TryClaimRequest asks the gateway to claim one lead. Now and Cutoff carry
// the client's lease window; the gateway keeps the window and swaps in its
// own clock.
type TryClaimRequest struct {
	ID     string `json:"id"`
	Worker string `json:"worker"`
	Now    string `json:"now"`
	Cutoff string `json:"cutoff"`
}

// TryClaimResponse reports whether the worker holds the claim.
type TryClaimResponse struct {
	Claimed bool `json:"claimed"`
}

// RenewRequest refreshes the worker's claims on IDs.
type RenewRequest struct {
	IDs    []string `json:"ids"`
	Worker string   `json:"worker"`
	Now    string   `json:"now"`
}

// ReleaseRequest clears the worker's claims on IDs, or all of them when IDs
// is empty.
type ReleaseRequest struct {
	Worker string   `json:"worker"`
	IDs    []string `json:"ids,omitempty"`
}

// CountResponse reports how many rows an operation touched.
type CountResponse struct {
	Count int64 `json:"count"`
}

// EligibleRequest selects leads a worker may take.
type EligibleRequest struct {
	Worker         string   `json:"worker,omitempty"`
	Status         string   `json:"status,omitempty"`
	ExcludedGroups []string `json:"excludedGroups,omitempty"`
	Now            string   `json:"now,omitempty"`
	Cutoff         string   `json:"cutoff,omitempty"`
	Limit          int      `json:"limit,omitempty"`
}

// StatusRequest sets a lead's status.
type StatusRequest struct {
	Status string `json:"status"`
	Now    string `json:"now,omitempty"`
}

// NotesRequest carries notes for contact and notes updates.
type NotesRequest struct {
	Notes string `json:"notes"`
	Now   string `json:"now,omitempty"`
}

// LeadResponse wraps a single lead.
type LeadResponse struct {
	Lead Lead `json:"lead"`
}

// LeadListResponse wraps a collection of leads.
type LeadListResponse struct {
	Leads []Lead `json:"leads"`
}

// ClaimListResponse wraps the live claims.
type ClaimListResponse struct {
	Claims []Claim `json:"claims"`
}

// StatsResponse provides lead counts keyed by status.
type StatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// HealthResponse reports gateway and store health.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Detail string `json:"detail,omitempty"`
}

// ErrorResponse is the body of every non-2xx gateway response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Error codes let clients map gateway failures back to sentinel errors.
const (
	CodeNotFound      = "not_found"
	CodeInvalidStatus = "invalid_status"
	CodeBadRequest    = "bad_request"
)
