// Package hiker is a client for the HikerAPI Instagram data service. It
// covers the three operations the pipeline needs: account search, profile
// lookup and reel listing.
package hiker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/reelrank/internal/bypass"
	"github.com/FranksOps/reelrank/internal/metrics"
	"github.com/FranksOps/reelrank/internal/model"
	"github.com/FranksOps/reelrank/internal/retry"
	"github.com/FranksOps/reelrank/pkg/httpclient"
	"github.com/FranksOps/reelrank/pkg/ratelimit"
)

// DefaultBaseURL is the public HikerAPI endpoint.
const DefaultBaseURL = "https://api.hikerapi.com"

// Operation names, used for errors, logs and metrics.
const (
	OpSearch  = "search"
	OpProfile = "profile"
	OpReels   = "reels"
)

const (
	searchPath  = "/v3/fbsearch/accounts"
	profilePath = "/v2/user/by/id"
	reelsPath   = "/v1/user/clips/chunk"

	maxBodyBytes = 16 << 20
	// maxPages guards against a server that keeps returning has_more.
	maxPages = 200
	// maxReelPrealloc caps the up-front capacity of a reel listing.
	maxReelPrealloc = 64
)

// detectors recognize bot-protection pages served instead of API errors.
var detectors = bypass.DefaultDetectors()

// Config configures a Client.
type Config struct {
	BaseURL string
	Token   string
	// RequestTimeout bounds each HTTP attempt, not the whole retried call.
	RequestTimeout time.Duration
	Retry          retry.Policy
	// Transport is the shared connection layer; nil uses the default.
	Transport http.RoundTripper
	// Limiter paces attempts across all operations; nil disables pacing.
	Limiter *ratelimit.Limiter
	Logger  *slog.Logger
}

// Client talks to HikerAPI. It is safe for concurrent use.
type Client struct {
	base    *url.URL
	http    *httpclient.Client
	timeout time.Duration
	policy  retry.Policy
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrMissingToken
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("hiker: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("hiker: base url %q must be absolute", cfg.BaseURL)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	hc, err := httpclient.New(httpclient.Config{
		// per-attempt deadlines come from the context; this is a backstop
		Timeout:      cfg.RequestTimeout + 5*time.Second,
		MaxRedirects: 3,
		Transport:    cfg.Transport,
		Header: http.Header{
			"X-Access-Key": {cfg.Token},
			"Accept":       {"application/json"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("hiker: %w", err)
	}

	return &Client{
		base:    base,
		http:    hc,
		timeout: cfg.RequestTimeout,
		policy:  cfg.Retry,
		limiter: cfg.Limiter,
		logger:  cfg.Logger,
	}, nil
}

// SearchAccounts returns up to limit candidates for query, following
// pagination. If a page fails after earlier pages succeeded, the candidates
// gathered so far are returned together with the error. limit <= 0 means no cap.
func (c *Client) SearchAccounts(ctx context.Context, query string, limit int) ([]model.AccountCandidate, error) {
	var out []model.AccountCandidate
	var pageToken string

	for page := 0; page < maxPages; page++ {
		params := url.Values{"query": {query}}
		if pageToken != "" {
			params.Set("page_token", pageToken)
		}

		body, err := c.call(ctx, OpSearch, searchPath, params)
		if err != nil {
			return out, err
		}
		res, ok := body.(map[string]any)
		if !ok {
			return out, &Error{Op: OpSearch, Kind: KindDecode, Message: fmt.Sprintf("unexpected %T payload", body)}
		}

		users, _ := res["users"].([]any)
		for _, u := range users {
			raw, ok := u.(map[string]any)
			if !ok {
				continue
			}
			// some responses wrap each hit as {"user": {...}}
			if inner, ok := raw["user"].(map[string]any); ok {
				raw = inner
			}
			cand, ok := NormalizeCandidate(raw)
			if !ok {
				continue
			}
			out = append(out, cand)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}

		next := firstString(res, "page_token", "next_page_token")
		if !boolean(res["has_more"]) || next == "" || next == pageToken || len(users) == 0 {
			return out, nil
		}
		pageToken = next
	}

	c.logger.Warn("search pagination stopped at page limit", "query", query, "pages", maxPages)
	return out, nil
}

// GetProfile fetches the full profile for id.
func (c *Client) GetProfile(ctx context.Context, id string) (model.Account, error) {
	body, err := c.call(ctx, OpProfile, profilePath, url.Values{"id": {id}})
	if err != nil {
		return model.Account{}, err
	}
	res, ok := body.(map[string]any)
	if !ok {
		return model.Account{}, &Error{Op: OpProfile, Kind: KindDecode, Message: fmt.Sprintf("unexpected %T payload", body)}
	}

	inner := res
	for _, key := range []string{"user", "data"} {
		if m, ok := res[key].(map[string]any); ok && len(m) > 0 {
			inner = m
			break
		}
	}
	return NormalizeAccount(inner, id), nil
}

// ListReels returns up to limit raw reel items for the account id, following
// cursor pagination. Any page failure fails the whole listing.
func (c *Client) ListReels(ctx context.Context, id string, limit int) ([]RawReel, error) {
	if limit <= 0 {
		return []RawReel{}, nil
	}

	out := make([]RawReel, 0, min(limit, maxReelPrealloc))
	var cursor string

	for page := 0; page < maxPages; page++ {
		params := url.Values{"user_id": {id}}
		if cursor != "" {
			params.Set("end_cursor", cursor)
		}

		body, err := c.call(ctx, OpReels, reelsPath, params)
		if err != nil {
			return nil, err
		}
		items, next, err := parseChunk(body)
		if err != nil {
			return nil, err
		}

		for _, it := range items {
			out = append(out, it)
			if len(out) >= limit {
				return out, nil
			}
		}
		if next == "" || next == cursor || len(items) == 0 {
			return out, nil
		}
		cursor = next
	}
	return out, nil
}

// parseChunk accepts both the [items, cursor] tuple form and an object with
// items and a cursor field.
func parseChunk(body any) ([]RawReel, string, error) {
	var rawItems []any
	var cursor string

	switch t := body.(type) {
	case []any:
		if len(t) > 0 {
			rawItems, _ = t[0].([]any)
		}
		if len(t) > 1 {
			cursor = str(t[1])
		}
	case map[string]any:
		rawItems, _ = first(t, "items", "clips", "response").([]any)
		cursor = firstString(t, "next_page_id", "end_cursor", "next_max_id")
		if more, ok := t["more_available"].(bool); ok && !more {
			cursor = ""
		}
	default:
		return nil, "", &Error{Op: OpReels, Kind: KindDecode, Message: fmt.Sprintf("unexpected %T payload", body)}
	}

	items := make([]RawReel, 0, len(rawItems))
	for _, it := range rawItems {
		if m, ok := it.(map[string]any); ok {
			items = append(items, RawReel(m))
		}
	}
	return items, cursor, nil
}

// call performs one logical operation with retries and returns the decoded body.
func (c *Client) call(ctx context.Context, op, path string, params url.Values) (any, error) {
	policy := c.policy
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		metrics.RecordRetry(op)
		c.logger.Debug("retrying api call", "op", op, "attempt", attempt, "wait", wait, "err", err)
	}

	var body any
	attempts, err := retry.Do(ctx, policy, IsTransient, func(ctx context.Context) error {
		v, err := c.attempt(ctx, op, path, params)
		if err != nil {
			return err
		}
		body = v
		return nil
	})
	if err != nil {
		var apiErr *Error
		if !errors.As(err, &apiErr) {
			apiErr = transportError(ctx, op, err)
		}
		apiErr.Attempts = attempts
		return nil, apiErr
	}
	return body, nil
}

// attempt performs a single HTTP request under its own timeout.
func (c *Client) attempt(ctx context.Context, op, path string, params url.Values) (any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &Error{Op: op, Kind: KindCanceled, Err: err}
	}

	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.base.JoinPath(path)
	u.RawQuery = params.Encode()
	req, err := http.NewRequestWithContext(actx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &Error{Op: op, Kind: KindBadRequest, Err: err}
	}

	start := time.Now()
	v, apiErr := c.roundTrip(ctx, actx, op, req)
	outcome := "ok"
	if apiErr != nil {
		outcome = string(apiErr.Kind)
	}
	metrics.RecordRequest(op, outcome, time.Since(start))
	if apiErr != nil {
		return nil, apiErr
	}
	return v, nil
}

func (c *Client) roundTrip(parent, actx context.Context, op string, req *http.Request) (any, *Error) {
	resp, err := c.http.Do(actx, req)
	if err != nil {
		return nil, transportError(parent, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, transportError(parent, op, err)
	}

	if resp.StatusCode >= 400 {
		res := bypass.Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}
		if blocked, source := bypass.Detect(res, detectors); blocked {
			return nil, &Error{Op: op, Kind: KindBlocked, StatusCode: resp.StatusCode, Message: "challenge page from " + source}
		}
		return nil, statusError(op, resp.StatusCode, errorMessage(data))
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &Error{Op: op, Kind: KindDecode, StatusCode: resp.StatusCode, Err: err}
	}

	if m, ok := v.(map[string]any); ok {
		if state, ok := m["state"].(bool); ok && !state {
			e := softError(op, m)
			e.StatusCode = resp.StatusCode
			return nil, e
		}
	}
	return v, nil
}

// errorMessage extracts a short description from an error response body:
// a JSON detail field, an HTML page title, or the truncated raw body.
func errorMessage(data []byte) string {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err == nil {
		if s := firstString(m, "detail", "error", "message", "exc_type"); s != "" {
			return s
		}
	}
	if title := bypass.PageTitle(data); title != "" {
		return title
	}
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
