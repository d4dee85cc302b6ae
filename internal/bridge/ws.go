package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/seamchat/seam/internal/logging"
)

const defaultHandshakeTimeout = 10 * time.Second

// WSTransport implements Transport over a single websocket connection.
// Subscriptions are expressed as JSON control frames; the server fans events
// for every subscribed scope key down the same connection.
type WSTransport struct {
	conn *websocket.Conn
	log  zerolog.Logger

	mu       sync.Mutex
	handlers map[string]func(RawEvent)

	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

// WSOption configures the websocket transport.
type WSOption func(*wsConfig)

type wsConfig struct {
	handshakeTimeout time.Duration
}

// WithHandshakeTimeout overrides the dial handshake timeout.
func WithHandshakeTimeout(d time.Duration) WSOption {
	return func(cfg *wsConfig) {
		if d > 0 {
			cfg.handshakeTimeout = d
		}
	}
}

type wsControl struct {
	Op    string `json:"op"`
	Scope string `json:"scope"`
}

// DialWS connects to the push endpoint and starts the read loop.
func DialWS(ctx context.Context, url string, opts ...WSOption) (*WSTransport, error) {
	cfg := wsConfig{handshakeTimeout: defaultHandshakeTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial push transport: %w", err)
	}

	t := &WSTransport{
		conn:     conn,
		log:      logging.Component("push-ws"),
		handlers: make(map[string]func(RawEvent)),
		done:     make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

// Subscribe implements Transport.
func (t *WSTransport) Subscribe(scopeKey string, handler func(RawEvent)) error {
	t.mu.Lock()
	t.handlers[scopeKey] = handler
	t.mu.Unlock()

	if err := t.writeControl(wsControl{Op: "subscribe", Scope: scopeKey}); err != nil {
		t.mu.Lock()
		delete(t.handlers, scopeKey)
		t.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", scopeKey, err)
	}
	return nil
}

// Unsubscribe implements Transport. The handler is dropped even when the
// control frame cannot be written, so no further events are delivered.
func (t *WSTransport) Unsubscribe(scopeKey string) error {
	t.mu.Lock()
	delete(t.handlers, scopeKey)
	t.mu.Unlock()

	if err := t.writeControl(wsControl{Op: "unsubscribe", Scope: scopeKey}); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", scopeKey, err)
	}
	return nil
}

// Done is closed once the read loop exits, whether by Close or a broken
// connection.
func (t *WSTransport) Done() <-chan struct{} {
	return t.done
}

// Close tears the connection down.
func (t *WSTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.conn.Close()
	})
	return err
}

func (t *WSTransport) writeControl(msg wsControl) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteJSON(msg)
}

func (t *WSTransport) readLoop() {
	defer close(t.done)
	for {
		var ev RawEvent
		if err := t.conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.log.Debug().Msg("push connection closed")
			} else {
				t.log.Warn().Err(err).Msg("push read failed")
			}
			return
		}

		t.mu.Lock()
		handler := t.handlers[ev.Scope]
		t.mu.Unlock()

		if handler == nil {
			// Either unroutable or for a scope already unsubscribed.
			t.log.Debug().Str("scope_key", ev.Scope).Msg("no subscriber for push event")
			continue
		}
		handler(ev)
	}
}
