// Package outbox coordinates optimistic local writes: a provisional entry is
// visible in the timeline before the network round trip starts, and the final
// confirmation is left to the reconciler because the send response and the
// push delivery can race in either order.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/seamchat/seam/internal/logging"
	"github.com/seamchat/seam/internal/messageapi"
	"github.com/seamchat/seam/internal/timeline"
)

var (
	// ErrNotFailed marks a retry or dismissal aimed at an entry that is not
	// in the failed state.
	ErrNotFailed = errors.New("outbox: entry is not failed")
)

// Sender is the slice of the message API the coordinator needs.
type Sender interface {
	Send(ctx context.Context, scopeID string, req messageapi.SendRequest) error
}

// SendInput describes one user send.
type SendInput struct {
	Channel    timeline.Channel
	Kind       timeline.Kind
	Content    string
	Buttons    []timeline.Button
	Attachment *timeline.Attachment
	ReplyTo    *timeline.ReplyRef
	AuthorID   string
	AuthorRole string
}

// Coordinator inserts provisional entries and dispatches the network write.
//
// spawn runs the dispatch off the session loop; post hands its completion
// back onto the loop. Both default to synchronous execution, which is what
// unit tests want.
type Coordinator struct {
	store *timeline.Store
	api   Sender
	spawn func(func())
	post  func(func())
	now   func() time.Time
	newID func() string
	log   zerolog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithNow injects the clock used for provisional sort keys.
func WithNow(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator injects the provisional id generator.
func WithIDGenerator(gen func() string) Option {
	return func(c *Coordinator) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// WithExecutors wires the async dispatch and loop completion hooks.
func WithExecutors(spawn, post func(func())) Option {
	return func(c *Coordinator) {
		if spawn != nil {
			c.spawn = spawn
		}
		if post != nil {
			c.post = post
		}
	}
}

// New creates a coordinator writing into store and sending through api.
func New(store *timeline.Store, api Sender, opts ...Option) *Coordinator {
	c := &Coordinator{
		store: store,
		api:   api,
		spawn: func(fn func()) { fn() },
		post:  func(fn func()) { fn() },
		now:   func() time.Time { return time.Now().UTC() },
		newID: timeline.NewProvisionalID,
		log:   logging.Component("outbox"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send inserts a pending entry at the head of the timeline and dispatches
// the network write without blocking on it.
//
// Rejection transitions the same entry to failed; it stays visible until the
// user retries or dismisses it. Acceptance changes nothing: the confirmed
// message arrives through the push path and is reconciled there.
func (c *Coordinator) Send(ctx context.Context, scopeID string, in SendInput) (timeline.Message, error) {
	kind := in.Kind
	if kind == "" {
		kind = timeline.KindText
	}

	m := timeline.Message{
		ID:         c.newID(),
		Channel:    in.Channel,
		SortKey:    c.now(),
		AuthorID:   in.AuthorID,
		AuthorRole: in.AuthorRole,
		Kind:       kind,
		Content:    in.Content,
		Buttons:    in.Buttons,
		Attachment: in.Attachment,
		ReplyTo:    in.ReplyTo,
	}

	// Capture the reply preview from the loaded window so the UI can render
	// it before the server confirms anything.
	if preview, ok := c.store.PreviewReply(m); ok && !preview.Placeholder {
		m.Snapshot = &timeline.ReplySnapshot{AuthorID: preview.AuthorID, Preview: preview.Preview}
	}

	if err := c.store.InsertPending(m); err != nil {
		return timeline.Message{}, fmt.Errorf("insert pending: %w", err)
	}

	key := m.Key()
	req := messageapi.SendRequest{
		Channel:    m.Channel,
		Kind:       m.Kind,
		Content:    m.Content,
		Buttons:    m.Buttons,
		Attachment: m.Attachment,
		ReplyTo:    m.ReplyTo,
	}

	c.spawn(func() {
		err := c.api.Send(ctx, scopeID, req)
		c.post(func() {
			if err == nil {
				// Accepted. Still pending: confirmation comes via push.
				return
			}
			if c.store.MarkFailed(key) {
				c.log.Warn().Err(err).Str("scope", scopeID).Str("id", key.ID).Msg("send rejected")
			}
		})
	})

	return m, nil
}

// Retry replaces a failed entry with a fresh provisional send of the same
// content. Retry is always a new send with a new id, never a resurrection of
// the old entry.
func (c *Coordinator) Retry(ctx context.Context, scopeID string, key timeline.Key) (timeline.Message, error) {
	entry, ok := c.store.Get(key)
	if !ok {
		return timeline.Message{}, timeline.ErrNotFound
	}
	if entry.State != timeline.StateFailed {
		return timeline.Message{}, fmt.Errorf("%w: %s/%s", ErrNotFailed, key.Channel, key.ID)
	}
	c.store.Remove(key)

	return c.Send(ctx, scopeID, SendInput{
		Channel:    entry.Channel,
		Kind:       entry.Kind,
		Content:    entry.Content,
		Buttons:    entry.Buttons,
		Attachment: entry.Attachment,
		ReplyTo:    entry.ReplyTo,
		AuthorID:   entry.AuthorID,
		AuthorRole: entry.AuthorRole,
	})
}

// Dismiss removes a failed entry after the user acknowledged the failure.
func (c *Coordinator) Dismiss(key timeline.Key) error {
	entry, ok := c.store.Get(key)
	if !ok {
		return timeline.ErrNotFound
	}
	if entry.State != timeline.StateFailed {
		return fmt.Errorf("%w: %s/%s", ErrNotFailed, key.Channel, key.ID)
	}
	c.store.Remove(key)
	return nil
}
