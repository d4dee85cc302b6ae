// Package session runs one conversation timeline. It owns the cooperative
// scheduling model: every store mutation happens on a single loop goroutine,
// one operation at a time, so the store itself needs no locks. Page fetches,
// send dispatches and push deliveries are the only suspension points; they
// run off the loop and post their completions back onto it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/seamchat/seam/internal/bridge"
	"github.com/seamchat/seam/internal/logging"
	"github.com/seamchat/seam/internal/messageapi"
	"github.com/seamchat/seam/internal/outbox"
	"github.com/seamchat/seam/internal/timeline"
)

var (
	// ErrClosed is returned once the session loop has shut down.
	ErrClosed = errors.New("session: closed")

	// ErrNoScope is returned for operations before any scope is open.
	ErrNoScope = errors.New("session: no open scope")
)

// DefaultPageSize is the page size used when none is configured.
const DefaultPageSize = 50

// Scope identifies one conversation. ID drives pagination and read marks;
// PushKeys are the push-transport subscription keys. Events for the two
// channels may be tagged under different keys (a thread-level and a
// contact-level scope), which is why there can be more than one.
type Scope struct {
	ID       string
	PushKeys []string
}

func (s Scope) keys() []string {
	if len(s.PushKeys) > 0 {
		return s.PushKeys
	}
	return []string{"thread:" + s.ID}
}

func (s Scope) hasKey(key string) bool {
	for _, k := range s.keys() {
		if k == key {
			return true
		}
	}
	return false
}

// Session is the engine facade. All exported methods are safe to call from
// any goroutine; they marshal onto the loop.
type Session struct {
	api    messageapi.Client
	store  *timeline.Store
	out    *outbox.Coordinator
	bridge *bridge.Bridge
	log    zerolog.Logger

	pageSize int
	loc      *time.Location
	onChange func()
	onError  func(error)

	ops       chan func()
	closed    chan struct{}
	closeOnce sync.Once

	// Loop-owned state. Touched only from run().
	scope      Scope
	epoch      uint64
	ctx        context.Context
	paging     bool
	markedRead bool
}

// Option configures a Session.
type Option func(*Session)

// WithPageSize sets the fetch page size.
func WithPageSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithLocation sets the viewer's time zone used for day grouping.
func WithLocation(loc *time.Location) Option {
	return func(s *Session) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithOnChange registers a callback invoked on the loop after any visible
// timeline change. Keep it cheap; it blocks the loop.
func WithOnChange(fn func()) Option {
	return func(s *Session) { s.onChange = fn }
}

// WithOnError registers a callback for recoverable failures (page fetches
// that left the store untouched). The worst case is stale data with a retry
// affordance; nothing here terminates the session.
func WithOnError(fn func(error)) Option {
	return func(s *Session) { s.onError = fn }
}

// New creates a session over the given API client and push transport and
// starts its loop.
func New(api messageapi.Client, transport bridge.Transport, opts ...Option) *Session {
	s := &Session{
		api:      api,
		store:    timeline.NewStore(),
		log:      logging.Component("session"),
		pageSize: DefaultPageSize,
		loc:      time.Local,
		ops:      make(chan func(), 64),
		closed:   make(chan struct{}),
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.bridge = bridge.New(transport, s.onDelivery)
	s.out = outbox.New(s.store, api, outbox.WithExecutors(
		func(fn func()) { go fn() },
		func(fn func()) {
			s.enqueue(func() {
				fn()
				s.notify()
			})
		},
	))

	go s.run()
	return s
}

func (s *Session) run() {
	for {
		select {
		case <-s.closed:
			return
		case fn := <-s.ops:
			fn()
		}
	}
}

func (s *Session) enqueue(fn func()) {
	select {
	case s.ops <- fn:
	case <-s.closed:
	}
}

// post returns a completion to the loop, discarding it when the scope epoch
// moved on. This is the scope-identity guard: abandoned fetches are dropped
// on arrival, not cancelled at the network layer.
func (s *Session) post(epoch uint64, fn func()) {
	s.enqueue(func() {
		if epoch != s.epoch {
			s.log.Debug().Uint64("epoch", epoch).Msg("discarding stale completion")
			return
		}
		fn()
	})
}

func (s *Session) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

func (s *Session) fail(err error) {
	s.log.Warn().Err(err).Msg("recoverable failure")
	if s.onError != nil {
		s.onError(err)
	}
}

// Open switches the session to a conversation scope. The previous scope is
// torn down first: push subscriptions fully released, store cleared, and any
// in-flight completions for it invalidated. Then the newest page is loaded
// and the scope is marked read exactly once.
func (s *Session) Open(ctx context.Context, scope Scope) error {
	if scope.ID == "" {
		return fmt.Errorf("%w: empty scope id", ErrNoScope)
	}
	done := make(chan struct{})
	s.enqueue(func() {
		defer close(done)
		s.epoch++
		s.scope = scope
		s.log = logging.WithScope(scope.ID).With().Str("component", "session").Logger()
		s.ctx = ctx
		s.paging = false
		s.markedRead = false

		if err := s.bridge.Deactivate(); err != nil {
			s.log.Warn().Err(err).Msg("deactivate previous scope")
		}
		s.store.Clear()
		s.notify()

		if err := s.bridge.Activate(scope.keys()...); err != nil {
			s.fail(fmt.Errorf("activate push scope: %w", err))
		}
		s.fetchInitial()
		s.markReadOnce()
	})
	select {
	case <-done:
		return nil
	case <-s.closed:
		return ErrClosed
	}
}

// fetchInitial runs on the loop and dispatches the newest-page fetch.
func (s *Session) fetchInitial() {
	epoch, scopeID, ctx := s.epoch, s.scope.ID, s.ctx
	go func() {
		page, err := s.api.FetchPage(ctx, scopeID, s.pageSize, time.Time{})
		s.post(epoch, func() {
			if err != nil {
				s.fail(fmt.Errorf("load initial: %w", err))
				return
			}
			if err := s.store.ReplaceAll(page.Items, page.HasMore); err != nil {
				s.fail(fmt.Errorf("load initial: %w", err))
				return
			}
			s.notify()
		})
	}()
}

// markReadOnce runs on the loop. One read mark per scope activation, no
// matter how many pages are fetched.
func (s *Session) markReadOnce() {
	if s.markedRead {
		return
	}
	s.markedRead = true
	epoch, scopeID, ctx := s.epoch, s.scope.ID, s.ctx
	go func() {
		if err := s.api.MarkRead(ctx, scopeID); err != nil {
			s.post(epoch, func() {
				s.log.Warn().Err(err).Str("scope", scopeID).Msg("mark read failed")
			})
		}
	}()
}

// LoadOlder fetches the page before the current cursor and appends it at the
// older end. A failed fetch leaves the store untouched and surfaces through
// OnError; calling LoadOlder again is the retry.
func (s *Session) LoadOlder() {
	s.enqueue(func() {
		if s.scope.ID == "" || s.paging {
			return
		}
		cursor := s.store.Cursor()
		if cursor.IsZero() || !s.store.HasMore() {
			return
		}
		s.paging = true
		epoch, scopeID, ctx := s.epoch, s.scope.ID, s.ctx
		go func() {
			page, err := s.api.FetchPage(ctx, scopeID, s.pageSize, cursor)
			s.post(epoch, func() {
				s.paging = false
				if err != nil {
					s.fail(fmt.Errorf("load older: %w", err))
					return
				}
				if _, err := s.store.AppendOlder(page.Items, s.pageSize); err != nil {
					s.fail(fmt.Errorf("load older: %w", err))
					return
				}
				s.notify()
			})
		}()
	})
}

// Send performs an optimistic write on the open scope. The returned message
// is the provisional entry already visible at the head of the timeline.
func (s *Session) Send(in outbox.SendInput) (timeline.Message, error) {
	type result struct {
		m   timeline.Message
		err error
	}
	ch := make(chan result, 1)
	s.enqueue(func() {
		if s.scope.ID == "" {
			ch <- result{err: ErrNoScope}
			return
		}
		m, err := s.out.Send(s.ctx, s.scope.ID, in)
		if err == nil {
			s.notify()
		}
		ch <- result{m: m, err: err}
	})
	select {
	case r := <-ch:
		return r.m, r.err
	case <-s.closed:
		return timeline.Message{}, ErrClosed
	}
}

// Retry re-sends a failed entry as a fresh provisional message.
func (s *Session) Retry(key timeline.Key) (timeline.Message, error) {
	type result struct {
		m   timeline.Message
		err error
	}
	ch := make(chan result, 1)
	s.enqueue(func() {
		if s.scope.ID == "" {
			ch <- result{err: ErrNoScope}
			return
		}
		m, err := s.out.Retry(s.ctx, s.scope.ID, key)
		if err == nil {
			s.notify()
		}
		ch <- result{m: m, err: err}
	})
	select {
	case r := <-ch:
		return r.m, r.err
	case <-s.closed:
		return timeline.Message{}, ErrClosed
	}
}

// Dismiss drops a failed entry the user has acknowledged.
func (s *Session) Dismiss(key timeline.Key) error {
	ch := make(chan error, 1)
	s.enqueue(func() {
		err := s.out.Dismiss(key)
		if err == nil {
			s.notify()
		}
		ch <- err
	})
	select {
	case err := <-ch:
		return err
	case <-s.closed:
		return ErrClosed
	}
}

// Snapshot returns the timeline contents, newest first.
func (s *Session) Snapshot() []timeline.Message {
	ch := make(chan []timeline.Message, 1)
	s.enqueue(func() { ch <- s.store.Snapshot() })
	select {
	case out := <-ch:
		return out
	case <-s.closed:
		return nil
	}
}

// DayGroups returns the display sequence grouped by calendar day in the
// viewer's location.
func (s *Session) DayGroups() []timeline.DayGroup {
	ch := make(chan []timeline.DayGroup, 1)
	s.enqueue(func() { ch <- s.store.DayGroups(s.loc) })
	select {
	case out := <-ch:
		return out
	case <-s.closed:
		return nil
	}
}

// PreviewReply resolves a message's reply reference against the loaded
// window, falling back to its snapshot and then the placeholder.
func (s *Session) PreviewReply(m timeline.Message) (timeline.ReplyPreview, bool) {
	type result struct {
		p  timeline.ReplyPreview
		ok bool
	}
	ch := make(chan result, 1)
	s.enqueue(func() {
		p, ok := s.store.PreviewReply(m)
		ch <- result{p: p, ok: ok}
	})
	select {
	case r := <-ch:
		return r.p, r.ok
	case <-s.closed:
		return timeline.ReplyPreview{}, false
	}
}

// HasMore reports whether older pages are believed to exist.
func (s *Session) HasMore() bool {
	ch := make(chan bool, 1)
	s.enqueue(func() { ch <- s.store.HasMore() })
	select {
	case out := <-ch:
		return out
	case <-s.closed:
		return false
	}
}

// Close releases the push subscriptions and stops the loop.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		done := make(chan struct{})
		s.ops <- func() {
			if err := s.bridge.Deactivate(); err != nil {
				s.log.Warn().Err(err).Msg("deactivate on close")
			}
			close(done)
		}
		<-done
		close(s.closed)
	})
}

// onDelivery is the bridge sink. It runs on transport goroutines and only
// enqueues; the reconciler itself always executes on the loop.
func (s *Session) onDelivery(d bridge.Delivery) {
	s.enqueue(func() {
		// Late events for an abandoned scope can still arrive after the
		// unsubscribe; the active-scope check keeps them out of this store.
		if !s.scope.hasKey(d.ScopeKey) {
			s.log.Debug().Str("scope_key", d.ScopeKey).Msg("dropping event for inactive scope")
			return
		}
		switch d.Kind {
		case bridge.EventNew:
			if _, err := s.store.Reconcile(d.Message); err != nil {
				s.log.Warn().Err(err).Msg("reconcile failed")
				return
			}
			s.notify()
		case bridge.EventUpdated:
			if s.store.ApplyUpdate(d.Message) {
				s.notify()
			}
		}
	})
}
