// Package bridge routes push-transport events into the timeline engine. It
// owns the per-scope subscription registry and normalizes every inbound wire
// event to a canonical delivery before the reconciler sees it.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/seamchat/seam/internal/logging"
	"github.com/seamchat/seam/internal/timeline"
)

// EventKind distinguishes fresh messages from updates to stored ones.
type EventKind string

const (
	EventNew     EventKind = "new"
	EventUpdated EventKind = "updated"
)

// RawEvent is the wire shape the push transport delivers. Delivery is
// at-least-once with no ordering guarantee relative to REST responses.
type RawEvent struct {
	Type    string          `json:"type"`
	Scope   string          `json:"scope"`
	Channel string          `json:"channel,omitempty"`
	Message json.RawMessage `json:"message"`
}

// Delivery is the canonical form handed to the engine.
type Delivery struct {
	ScopeKey string
	Kind     EventKind
	Message  timeline.Message
}

// Transport is the push-transport client contract: at-least-once, unordered,
// duplicates possible. The server side is a collaborator out of scope.
type Transport interface {
	Subscribe(scopeKey string, handler func(RawEvent)) error
	Unsubscribe(scopeKey string) error
}

// Sink receives normalized deliveries.
type Sink func(Delivery)

// ErrMalformedEvent marks an inbound event that cannot be routed or decoded.
// Such events are logged and dropped, never fatal.
var ErrMalformedEvent = errors.New("bridge: malformed push event")

// Bridge binds the active conversation's scope keys to the push transport.
// A conversation usually needs more than one key (a thread scope and a
// contact scope) because the two channels tag their events differently.
//
// Activate and Deactivate must be called from the session loop; the registry
// is not locked.
type Bridge struct {
	transport Transport
	sink      Sink
	log       zerolog.Logger
	active    []string
}

// New creates a bridge that forwards normalized deliveries to sink.
func New(transport Transport, sink Sink) *Bridge {
	return &Bridge{
		transport: transport,
		sink:      sink,
		log:       logging.Component("bridge"),
	}
}

// Active returns the currently subscribed scope keys.
func (b *Bridge) Active() []string {
	out := make([]string, len(b.active))
	copy(out, b.active)
	return out
}

// Activate subscribes the given scope keys, fully unsubscribing any previous
// ones first so no event can cross between conversations. On a partial
// subscribe failure the already subscribed keys are rolled back.
func (b *Bridge) Activate(scopeKeys ...string) error {
	if err := b.Deactivate(); err != nil {
		return err
	}

	for i, key := range scopeKeys {
		if err := b.transport.Subscribe(key, b.handle); err != nil {
			for _, done := range scopeKeys[:i] {
				if uerr := b.transport.Unsubscribe(done); uerr != nil {
					b.log.Warn().Err(uerr).Str("scope_key", done).Msg("rollback unsubscribe failed")
				}
			}
			return fmt.Errorf("subscribe %s: %w", key, err)
		}
	}

	b.active = append([]string(nil), scopeKeys...)
	b.log.Debug().Strs("scope_keys", b.active).Msg("bridge activated")
	return nil
}

// Deactivate unsubscribes every active scope key.
func (b *Bridge) Deactivate() error {
	var firstErr error
	for _, key := range b.active {
		if err := b.transport.Unsubscribe(key); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("unsubscribe %s: %w", key, err)
		}
	}
	b.active = nil
	return firstErr
}

// handle normalizes one wire event and forwards it. Malformed events are
// dropped here so they can never poison the store.
func (b *Bridge) handle(ev RawEvent) {
	delivery, err := Normalize(ev)
	if err != nil {
		b.log.Warn().Err(err).Str("scope_key", ev.Scope).Msg("dropping push event")
		return
	}
	b.sink(delivery)
}

// Normalize converts a wire event into a canonical delivery.
func Normalize(ev RawEvent) (Delivery, error) {
	if strings.TrimSpace(ev.Scope) == "" {
		return Delivery{}, fmt.Errorf("%w: missing scope tag", ErrMalformedEvent)
	}

	var kind EventKind
	switch EventKind(ev.Type) {
	case EventNew, EventUpdated:
		kind = EventKind(ev.Type)
	default:
		return Delivery{}, fmt.Errorf("%w: type %q", ErrMalformedEvent, ev.Type)
	}

	if len(ev.Message) == 0 {
		return Delivery{}, fmt.Errorf("%w: missing message", ErrMalformedEvent)
	}
	var msg timeline.Message
	if err := json.Unmarshal(ev.Message, &msg); err != nil {
		return Delivery{}, fmt.Errorf("%w: decode message: %v", ErrMalformedEvent, err)
	}

	// Events relayed for the client stream may tag the channel at the
	// envelope level instead of inside the message.
	if msg.Channel == "" {
		msg.Channel = timeline.Channel(ev.Channel)
	}
	msg.State = timeline.StateConfirmed

	if err := msg.Validate(); err != nil {
		return Delivery{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	return Delivery{ScopeKey: ev.Scope, Kind: kind, Message: msg}, nil
}
