// Package messageapi is the REST client for the message API collaborator.
// The server side is out of scope; this package owns the wire contract the
// timeline engine depends on: page fetches, send acceptance, and read marks.
package messageapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/seamchat/seam/internal/logging"
	"github.com/seamchat/seam/internal/timeline"
)

// Page is one backward page of a scope's history, newest first.
type Page struct {
	Items   []timeline.Message
	HasMore bool
}

// SendRequest is an accepted-only write. The confirmed message arrives later
// through the push feed, not from this call, because the two can race.
type SendRequest struct {
	Channel    timeline.Channel     `json:"channel"`
	Kind       timeline.Kind        `json:"kind,omitempty"`
	Content    string               `json:"content,omitempty"`
	Buttons    []timeline.Button    `json:"buttons,omitempty"`
	Attachment *timeline.Attachment `json:"attachment,omitempty"`
	ReplyTo    *timeline.ReplyRef   `json:"reply_to,omitempty"`
}

// Client is the message API contract the engine consumes.
type Client interface {
	// FetchPage returns up to limit messages with sort keys strictly before
	// the cursor, descending. A zero cursor fetches the newest page.
	FetchPage(ctx context.Context, scopeID string, limit int, before time.Time) (Page, error)

	// Send submits a write for the scope. A nil error means accepted, not
	// confirmed.
	Send(ctx context.Context, scopeID string, req SendRequest) error

	// MarkRead marks the scope read for the current viewer.
	MarkRead(ctx context.Context, scopeID string) error
}

// HTTPClient implements Client over REST+JSON.
type HTTPClient struct {
	base *url.URL
	http *http.Client
	log  zerolog.Logger
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient swaps the underlying http.Client, e.g. to set timeouts.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClient) {
		if c != nil {
			h.http = c
		}
	}
}

// NewHTTPClient creates a client rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) (*HTTPClient, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q missing scheme or host", baseURL)
	}
	c := &HTTPClient{
		base: base,
		http: &http.Client{Timeout: 15 * time.Second},
		log:  logging.Component("messageapi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type pageResponse struct {
	Messages []timeline.Message `json:"messages"`
	HasMore  bool               `json:"has_more"`
}

// FetchPage implements Client.
func (c *HTTPClient) FetchPage(ctx context.Context, scopeID string, limit int, before time.Time) (Page, error) {
	endpoint := c.endpoint("scopes", scopeID, "messages")
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if !before.IsZero() {
		q.Set("before", before.UTC().Format(time.RFC3339Nano))
	}
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return Page{}, err
	}

	var body pageResponse
	if err := c.do(req, &body); err != nil {
		return Page{}, fmt.Errorf("fetch page: %w", err)
	}

	for i := range body.Messages {
		body.Messages[i].State = timeline.StateConfirmed
		if err := body.Messages[i].Validate(); err != nil {
			// A bad item poisons the whole page; the store must never see a
			// partial merge.
			return Page{}, fmt.Errorf("fetch page: item %d: %w", i, err)
		}
	}

	c.log.Debug().
		Str("scope", scopeID).
		Int("count", len(body.Messages)).
		Bool("has_more", body.HasMore).
		Msg("fetched page")
	return Page{Items: body.Messages, HasMore: body.HasMore}, nil
}

// Send implements Client.
func (c *HTTPClient) Send(ctx context.Context, scopeID string, sendReq SendRequest) error {
	payload, err := json.Marshal(sendReq)
	if err != nil {
		return fmt.Errorf("encode send: %w", err)
	}

	endpoint := c.endpoint("scopes", scopeID, "messages")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// MarkRead implements Client.
func (c *HTTPClient) MarkRead(ctx context.Context, scopeID string) error {
	endpoint := c.endpoint("scopes", scopeID, "read")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), nil)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (c *HTTPClient) endpoint(parts ...string) *url.URL {
	return c.base.JoinPath(parts...)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Status: resp.StatusCode, Body: string(snippet)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is a non-2xx response from the message API.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("message api: status %d", e.Status)
	}
	return fmt.Sprintf("message api: status %d: %s", e.Status, e.Body)
}
