package messageapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/seamchat/seam/internal/timeline"
)

// AttachmentStore uploads raw bytes and hands back an opaque reference. The
// timeline engine only ever carries the reference.
type AttachmentStore interface {
	Store(ctx context.Context, name, mime string, r io.Reader) (timeline.Attachment, error)
}

// HTTPAttachmentStore implements AttachmentStore against the attachment
// endpoint of the message API host.
type HTTPAttachmentStore struct {
	c *HTTPClient
}

// NewHTTPAttachmentStore creates an attachment uploader rooted at baseURL.
// The base URL is validated the same way as for the message client.
func NewHTTPAttachmentStore(baseURL string, opts ...HTTPOption) (*HTTPAttachmentStore, error) {
	c, err := NewHTTPClient(baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &HTTPAttachmentStore{c: c}, nil
}

// Store implements AttachmentStore.
func (s *HTTPAttachmentStore) Store(ctx context.Context, name, mime string, r io.Reader) (timeline.Attachment, error) {
	endpoint := s.c.endpoint("attachments")
	q := url.Values{}
	if name != "" {
		q.Set("name", name)
	}
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), r)
	if err != nil {
		return timeline.Attachment{}, err
	}
	if mime != "" {
		req.Header.Set("Content-Type", mime)
	}

	resp, err := s.c.http.Do(req)
	if err != nil {
		return timeline.Attachment{}, fmt.Errorf("store attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return timeline.Attachment{}, fmt.Errorf("store attachment: %w",
			&StatusError{Status: resp.StatusCode, Body: string(snippet)})
	}

	var att timeline.Attachment
	if err := json.NewDecoder(resp.Body).Decode(&att); err != nil {
		return timeline.Attachment{}, fmt.Errorf("store attachment: decode: %w", err)
	}
	if att.Ref == "" {
		return timeline.Attachment{}, fmt.Errorf("store attachment: response missing ref")
	}
	return att, nil
}
