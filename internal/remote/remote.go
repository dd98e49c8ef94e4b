// Package remote is the HTTP client for the hosted REST data API. Each
// mirrored collection maps to a table resource; rows travel as JSON
// objects keyed by snake_case column names.
//
// Errors are classified so the sync engine can decide between retrying
// (transient) and burning a retry against a real rejection (invalid,
// auth). The client itself never retries.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"
)

// ErrorKind classifies a remote failure for retry decisions.
type ErrorKind string

const (
	// KindTransient covers network failures, timeouts, and 5xx/429
	// responses. Worth retrying.
	KindTransient ErrorKind = "transient"

	// KindAuth covers 401/403. Retrying without a new session is futile.
	KindAuth ErrorKind = "auth"

	// KindInvalid covers 4xx rejections of the request itself.
	KindInvalid ErrorKind = "invalid"
)

// Error is a classified remote failure.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("remote %s error (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("remote %s error: %s", e.Kind, e.Message)
}

// IsTransient reports whether err is a retryable remote failure.
func IsTransient(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == KindTransient
}

// TokenSource supplies the bearer token attached to every request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client talks to one remote data API instance.
type Client struct {
	baseURL string
	apiKey  string
	tokens  TokenSource
	http    *http.Client
	logger  *log.Logger
}

// New creates a client for the API at baseURL. tokens may be nil for
// anonymous access (the API key alone authenticates reads in that case).
func New(baseURL, apiKey string, tokens TokenSource) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		tokens:  tokens,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  log.New(os.Stderr, "[remote] ", log.LstdFlags),
	}
}

// Record is a remote row keyed by column name.
type Record = map[string]any

// Insert creates rows in table. Fails with KindInvalid on key conflicts.
func (c *Client) Insert(ctx context.Context, table string, rows []Record) error {
	return c.write(ctx, http.MethodPost, table, nil, rows, "")
}

// Upsert creates or replaces rows in table, merging on the primary key.
func (c *Client) Upsert(ctx context.Context, table string, rows []Record) error {
	return c.write(ctx, http.MethodPost, table, nil, rows, "resolution=merge-duplicates")
}

// Update patches rows matching filter with the given columns. A column
// explicitly set to nil clears the remote value.
func (c *Client) Update(ctx context.Context, table string, filter map[string]string, patch Record) error {
	return c.write(ctx, http.MethodPatch, table, filter, patch, "")
}

// Delete removes rows matching filter.
func (c *Client) Delete(ctx context.Context, table string, filter map[string]string) error {
	return c.write(ctx, http.MethodDelete, table, filter, nil, "")
}

// Select fetches rows matching filter. sel names the column projection
// (PostgREST syntax, e.g. "*,photos(*)"); empty means all columns.
func (c *Client) Select(ctx context.Context, table, sel string, filter map[string]string) ([]Record, error) {
	req, err := c.newRequest(ctx, http.MethodGet, table, filter, nil)
	if err != nil {
		return nil, err
	}
	if sel != "" {
		q := req.URL.Query()
		q.Set("select", sel)
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	if err := classify(resp); err != nil {
		return nil, err
	}

	var rows []Record
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, &Error{Kind: KindTransient, Message: fmt.Sprintf("failed to decode response: %v", err)}
	}
	return rows, nil
}

// Ping issues a minimal read to check reachability and session validity.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodHead, "projects", map[string]string{"limit": "1"}, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: KindTransient, Message: err.Error()}
	}
	defer resp.Body.Close()
	return classify(resp)
}

func (c *Client) write(ctx context.Context, method, table string, filter map[string]string, body any, prefer string) error {
	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindInvalid, Message: fmt.Sprintf("failed to encode request: %v", err)}
		}
		payload = bytes.NewReader(buf)
	}

	req, err := c.newRequest(ctx, method, table, filter, payload)
	if err != nil {
		return err
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: KindTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	if err := classify(resp); err != nil {
		c.logger.Printf("%s %s failed: %v", method, table, err)
		return err
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, table string, filter map[string]string, body io.Reader) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + "/rest/v1/" + table)
	if err != nil {
		return nil, &Error{Kind: KindInvalid, Message: fmt.Sprintf("bad base URL: %v", err)}
	}
	q := u.Query()
	for col, val := range filter {
		if col == "limit" {
			q.Set("limit", val)
			continue
		}
		q.Set(col, "eq."+val)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, &Error{Kind: KindInvalid, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	token := c.apiKey
	if c.tokens != nil {
		t, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, &Error{Kind: KindAuth, Message: fmt.Sprintf("no session token: %v", err)}
		}
		token = t
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func classify(resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &Error{Kind: KindAuth, Status: resp.StatusCode, Message: readBody(resp)}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &Error{Kind: KindTransient, Status: resp.StatusCode, Message: readBody(resp)}
	default:
		return &Error{Kind: KindInvalid, Status: resp.StatusCode, Message: readBody(resp)}
	}
}

func readBody(resp *http.Response) string {
	buf, err := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if err != nil || len(buf) == 0 {
		return resp.Status
	}
	return string(buf)
}
