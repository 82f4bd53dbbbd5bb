package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"leadswiper/internal/api"
	"leadswiper/internal/queue"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxErrorBody       = 4 << 10
)

// Config captures the settings required to reach a gateway.
type Config struct {
	BaseURL        string
	Token          string
	TimeoutSeconds int
}

// Client is a queue.LeaseStore backed by a remote gateway.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New constructs a gateway client.
func New(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("gateway url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		baseURL:    base,
		token:      strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

var _ queue.LeaseStore = (*Client)(nil)

// HTTPStatusError reports a non-2xx gateway response that does not map to a
// queue sentinel.
type HTTPStatusError struct {
	StatusCode int
	Message    string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("gateway: http %d: %s", e.StatusCode, strings.TrimSpace(e.Message))
}

func (c *Client) TryClaim(ctx context.Context, id, worker string, now, cutoff time.Time) (bool, error) {
	var resp api.TryClaimResponse
	err := c.do(ctx, http.MethodPost, "/api/claims/try", api.TryClaimRequest{
		ID:     id,
		Worker: worker,
		Now:    api.FormatTime(now),
		Cutoff: api.FormatTime(cutoff),
	}, &resp)
	if err != nil {
		return false, fmt.Errorf("try claim %s: %w", id, err)
	}
	return resp.Claimed, nil
}

func (c *Client) RenewClaims(ctx context.Context, ids []string, worker string, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var resp api.CountResponse
	err := c.do(ctx, http.MethodPost, "/api/claims/renew", api.RenewRequest{
		IDs:    ids,
		Worker: worker,
		Now:    api.FormatTime(now),
	}, &resp)
	if err != nil {
		return 0, fmt.Errorf("renew claims: %w", err)
	}
	return resp.Count, nil
}

func (c *Client) ReleaseClaims(ctx context.Context, worker string, ids []string) (int64, error) {
	var resp api.CountResponse
	if err := c.do(ctx, http.MethodPost, "/api/claims/release", api.ReleaseRequest{Worker: worker, IDs: ids}, &resp); err != nil {
		return 0, fmt.Errorf("release claims: %w", err)
	}
	return resp.Count, nil
}

// ActiveClaims lists live claims. The gateway judges liveness against its
// own clock and configured lease, so cutoff is not sent.
func (c *Client) ActiveClaims(ctx context.Context, _ time.Time) ([]queue.Claim, error) {
	var resp api.ClaimListResponse
	if err := c.do(ctx, http.MethodGet, "/api/claims", nil, &resp); err != nil {
		return nil, fmt.Errorf("active claims: %w", err)
	}
	return api.ToClaims(resp.Claims)
}

func (c *Client) SetStatus(ctx context.Context, id string, status queue.Status, now time.Time) error {
	path := "/api/leads/" + url.PathEscape(id) + "/status"
	if err := c.do(ctx, http.MethodPost, path, api.StatusRequest{Status: string(status), Now: api.FormatTime(now)}, nil); err != nil {
		return fmt.Errorf("set status %s: %w", id, err)
	}
	return nil
}

func (c *Client) MarkContacted(ctx context.Context, id, notes string, now time.Time) error {
	path := "/api/leads/" + url.PathEscape(id) + "/contact"
	if err := c.do(ctx, http.MethodPost, path, api.NotesRequest{Notes: notes, Now: api.FormatTime(now)}, nil); err != nil {
		return fmt.Errorf("mark contacted %s: %w", id, err)
	}
	return nil
}

func (c *Client) UpdateNotes(ctx context.Context, id, notes string, now time.Time) error {
	path := "/api/leads/" + url.PathEscape(id) + "/notes"
	if err := c.do(ctx, http.MethodPost, path, api.NotesRequest{Notes: notes, Now: api.FormatTime(now)}, nil); err != nil {
		return fmt.Errorf("update notes %s: %w", id, err)
	}
	return nil
}

func (c *Client) Eligible(ctx context.Context, q queue.EligibleQuery) ([]*queue.Lead, error) {
	req := api.EligibleRequest{
		Worker:         q.Worker,
		Status:         string(q.Status),
		ExcludedGroups: q.ExcludedGroups,
		Now:            api.FormatTime(q.Now),
		Cutoff:         api.FormatTime(q.Cutoff),
		Limit:          q.Limit,
	}
	var resp api.LeadListResponse
	if err := c.do(ctx, http.MethodPost, "/api/leads/eligible", req, &resp); err != nil {
		return nil, fmt.Errorf("eligible leads: %w", err)
	}
	return api.ToLeads(resp.Leads)
}

func (c *Client) List(ctx context.Context, status queue.Status, limit int) ([]*queue.Lead, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", string(status))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/leads"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp api.LeadListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return api.ToLeads(resp.Leads)
}

// GetByID returns (nil, nil) for an unknown id, matching the local stores.
func (c *Client) GetByID(ctx context.Context, id string) (*queue.Lead, error) {
	var resp api.LeadResponse
	err := c.do(ctx, http.MethodGet, "/api/leads/"+url.PathEscape(id), nil, &resp)
	if errors.Is(err, queue.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get lead %s: %w", id, err)
	}
	return api.ToLead(resp.Lead)
}

func (c *Client) Stats(ctx context.Context) (map[queue.Status]int, error) {
	var resp api.StatsResponse
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &resp); err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return api.CountsFromStats(resp), nil
}

// Upsert sends lead to the gateway, which stamps it with its own clock; now
// is not forwarded.
func (c *Client) Upsert(ctx context.Context, lead *queue.Lead, _ time.Time) error {
	if lead == nil {
		return errors.New("upsert lead: nil lead")
	}
	var resp api.LeadResponse
	if err := c.do(ctx, http.MethodPost, "/api/leads", api.FromLead(lead), &resp); err != nil {
		return fmt.Errorf("upsert lead: %w", err)
	}
	if lead.ID == "" {
		lead.ID = resp.Lead.ID
	}
	return nil
}

// Ping calls the gateway health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	var resp api.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &resp); err != nil {
		return fmt.Errorf("gateway health: %w", err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("gateway health: %s", resp.Status)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusAccepted {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload api.ErrorResponse
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(raw))
	}
	switch payload.Code {
	case api.CodeNotFound:
		return fmt.Errorf("%w: %s", queue.ErrNotFound, payload.Error)
	case api.CodeInvalidStatus:
		return fmt.Errorf("%w: %s", queue.ErrInvalidStatus, payload.Error)
	}
	return &HTTPStatusError{StatusCode: resp.StatusCode, Message: payload.Error}
}
