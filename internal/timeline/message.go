// Package timeline owns the merged conversation timeline: the ordered
// in-memory message store, its backward-pagination cursor, the reconciliation
// of confirmed deliveries against optimistic entries, and reply resolution
// across the two channel id namespaces.
package timeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Channel identifies which of the two source streams produced a message.
type Channel string

const (
	// ChannelClient is the external/customer stream relayed through the
	// messaging bridge.
	ChannelClient Channel = "client"

	// ChannelInternal is the team-only annotation stream.
	ChannelInternal Channel = "internal"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelClient || c == ChannelInternal
}

// DeliveryState tracks a message through the optimistic-write lifecycle.
type DeliveryState string

const (
	StatePending   DeliveryState = "pending"
	StateConfirmed DeliveryState = "confirmed"
	StateFailed    DeliveryState = "failed"
)

// Kind tags the message payload variant. Each variant carries exactly the
// fields it needs: file and voice messages carry an Attachment, text messages
// may carry Buttons.
type Kind string

const (
	KindText   Kind = "text"
	KindFile   Kind = "file"
	KindVoice  Kind = "voice"
	KindSystem Kind = "system"
)

// Valid reports whether k is a known payload kind.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindFile, KindVoice, KindSystem:
		return true
	}
	return false
}

// Reaction is a single emoji reaction. The timeline treats reactions as
// append-only; removal is a higher-level policy.
type Reaction struct {
	Emoji    string    `json:"emoji"`
	AuthorID string    `json:"author_id"`
	At       time.Time `json:"at"`
}

// Attachment is an opaque reference into the attachment store plus the
// metadata needed to render it. The timeline never carries raw bytes.
type Attachment struct {
	Ref      string        `json:"ref"`
	Name     string        `json:"name,omitempty"`
	MIME     string        `json:"mime,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Button is one entry of a structured quick-reply payload. It is an explicit
// field rather than JSON smuggled inside Content, so literal user text can
// never be misparsed as a button payload.
type Button struct {
	Label string `json:"label"`
	Value string `json:"value,omitempty"`
}

// ReplyRef points at another message by its native id. The channel tag scopes
// the lookup: client-channel and internal-channel ids live in disjoint
// namespaces and are never cross-matched.
type ReplyRef struct {
	Channel  Channel `json:"channel"`
	NativeID string  `json:"native_id"`
}

// ReplySnapshot is a locally captured preview of the replied-to message,
// attached to optimistic sends so the reply renders before the server
// confirms.
type ReplySnapshot struct {
	AuthorID string `json:"author_id"`
	Preview  string `json:"preview"`
}

// Key is the identity of a stored entry. Ids are unique only within their
// channel, so identity is always the (id, channel) pair.
type Key struct {
	ID      string
	Channel Channel
}

// Message is the unit of the timeline.
type Message struct {
	ID         string         `json:"id"`
	Channel    Channel        `json:"channel"`
	SortKey    time.Time      `json:"sort_key"`
	AuthorID   string         `json:"author_id,omitempty"`
	AuthorRole string         `json:"author_role,omitempty"`
	Kind       Kind           `json:"kind,omitempty"`
	Content    string         `json:"content,omitempty"`
	Buttons    []Button       `json:"buttons,omitempty"`
	Attachment *Attachment    `json:"attachment,omitempty"`
	ReplyTo    *ReplyRef      `json:"reply_to,omitempty"`
	Snapshot   *ReplySnapshot `json:"-"`
	Reactions  []Reaction     `json:"reactions,omitempty"`
	State      DeliveryState  `json:"-"`
}

// Key returns the (id, channel) identity of the message.
func (m Message) Key() Key {
	return Key{ID: m.ID, Channel: m.Channel}
}

// Provisional reports whether the message still carries a locally generated
// id.
func (m Message) Provisional() bool {
	return IsProvisionalID(m.ID)
}

// Validate checks the fields every stored message must carry.
func (m Message) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return ErrMissingID
	}
	if !m.Channel.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, m.Channel)
	}
	if m.SortKey.IsZero() {
		return ErrMissingSortKey
	}
	if m.Kind != "" && !m.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, m.Kind)
	}
	if m.ReplyTo != nil && !m.ReplyTo.Channel.Valid() {
		return fmt.Errorf("%w: reply ref %q", ErrInvalidChannel, m.ReplyTo.Channel)
	}
	return nil
}

// provisionalPrefix tags locally generated ids. Server-assigned ids never
// carry it, which keeps the two namespaces disjoint.
const provisionalPrefix = "temp-"

// NewProvisionalID returns a fresh id in the provisional namespace.
func NewProvisionalID() string {
	return provisionalPrefix + uuid.NewString()
}

// IsProvisionalID reports whether id belongs to the provisional namespace.
func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, provisionalPrefix)
}
