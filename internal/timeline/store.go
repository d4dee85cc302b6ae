package timeline

import (
	"fmt"
	"sort"
	"time"
)

// Store holds the merged timeline for one conversation scope.
//
// Entries are kept newest first. A per-key index backs identity checks and
// reply resolution. The store is plain in-memory state with no locking: it is
// mutated only from the session loop, one operation at a time.
type Store struct {
	entries []Message
	byKey   map[Key]int

	cursor  time.Time
	hasMore bool
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{byKey: make(map[Key]int)}
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	return len(s.entries)
}

// Snapshot returns a copy of the entries, newest first.
func (s *Store) Snapshot() []Message {
	out := make([]Message, len(s.entries))
	copy(out, s.entries)
	return out
}

// Head returns the most recent entry, if any.
func (s *Store) Head() (Message, bool) {
	if len(s.entries) == 0 {
		return Message{}, false
	}
	return s.entries[0], true
}

// Get returns the entry with the given identity, if stored.
func (s *Store) Get(key Key) (Message, bool) {
	i, ok := s.byKey[key]
	if !ok {
		return Message{}, false
	}
	return s.entries[i], true
}

// Contains reports whether an entry with the given identity is stored.
func (s *Store) Contains(key Key) bool {
	_, ok := s.byKey[key]
	return ok
}

// Cursor returns the backward-pagination cursor: the sort key of the oldest
// loaded entry, or the zero time when nothing is loaded.
func (s *Store) Cursor() time.Time {
	return s.cursor
}

// HasMore reports whether older pages are believed to exist. It is a
// heuristic derived from page lengths, not an exact count.
func (s *Store) HasMore() bool {
	return s.hasMore
}

// Clear drops all entries and resets pagination. Used on scope teardown.
func (s *Store) Clear() {
	s.entries = nil
	s.byKey = make(map[Key]int)
	s.cursor = time.Time{}
	s.hasMore = false
}

// ReplaceAll installs the newest page, replacing any previous contents and
// resetting the cursor to the oldest item. Items arrive from the page loader
// and are stored confirmed.
func (s *Store) ReplaceAll(items []Message, hasMore bool) error {
	fresh := make([]Message, 0, len(items))
	index := make(map[Key]int, len(items))
	for _, m := range items {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("replace page: %w", err)
		}
		if _, dup := index[m.Key()]; dup {
			continue
		}
		m.State = StateConfirmed
		index[m.Key()] = 0
		fresh = append(fresh, m)
	}
	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].SortKey.After(fresh[j].SortKey)
	})

	s.entries = fresh
	s.byKey = make(map[Key]int, len(fresh))
	s.reindex(0)
	s.hasMore = hasMore
	s.cursor = time.Time{}
	if len(s.entries) > 0 {
		s.cursor = s.entries[len(s.entries)-1].SortKey
	}
	return nil
}

// AppendOlder merges a page fetched with sort keys strictly before the
// cursor. Items whose identity is already stored are dropped, the remainder
// is appended at the older end, and existing entries are never touched.
// hasMore derives from the raw page length against the requested size.
// Returns the number of entries actually added.
func (s *Store) AppendOlder(items []Message, requested int) (int, error) {
	fresh := make([]Message, 0, len(items))
	seen := make(map[Key]struct{}, len(items))
	for _, m := range items {
		if err := m.Validate(); err != nil {
			return 0, fmt.Errorf("older page: %w", err)
		}
		if _, dup := seen[m.Key()]; dup {
			continue
		}
		seen[m.Key()] = struct{}{}
		if s.Contains(m.Key()) {
			continue
		}
		m.State = StateConfirmed
		fresh = append(fresh, m)
	}
	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].SortKey.After(fresh[j].SortKey)
	})

	base := len(s.entries)
	s.entries = append(s.entries, fresh...)
	s.reindex(base)
	s.hasMore = requested > 0 && len(items) >= requested
	if len(s.entries) > 0 {
		s.cursor = s.entries[len(s.entries)-1].SortKey
	}
	return len(fresh), nil
}

// InsertPending places a provisional entry at its sort position, which for a
// fresh local send is the head.
func (s *Store) InsertPending(m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if !m.Provisional() {
		return fmt.Errorf("%w: pending entry requires a provisional id", ErrMissingID)
	}
	if s.Contains(m.Key()) {
		return fmt.Errorf("%w: %s/%s", ErrDuplicateEntry, m.Channel, m.ID)
	}
	m.State = StatePending
	s.insertSorted(m)
	return nil
}

// MarkFailed transitions a pending entry to failed in place. The entry stays
// visible so the user can retry or dismiss it.
func (s *Store) MarkFailed(key Key) bool {
	i, ok := s.byKey[key]
	if !ok || s.entries[i].State != StatePending {
		return false
	}
	s.entries[i].State = StateFailed
	return true
}

// Remove deletes an entry and returns it. Used for user-initiated retry and
// dismissal of failed sends; confirmed entries are never removed outside
// scope teardown.
func (s *Store) Remove(key Key) (Message, bool) {
	i, ok := s.byKey[key]
	if !ok {
		return Message{}, false
	}
	m := s.entries[i]
	s.removeAt(i)
	return m, true
}

// insertSorted places m so entries stay ordered newest first. Among equal
// sort keys the newer arrival lands closer to the head.
func (s *Store) insertSorted(m Message) {
	i := sort.Search(len(s.entries), func(i int) bool {
		return !s.entries[i].SortKey.After(m.SortKey)
	})
	s.entries = append(s.entries, Message{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = m
	s.reindex(i)
}

func (s *Store) removeAt(i int) {
	key := s.entries[i].Key()
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	delete(s.byKey, key)
	s.reindex(i)
}

// reindex rebuilds byKey for entries at or after position from.
func (s *Store) reindex(from int) {
	for i := from; i < len(s.entries); i++ {
		s.byKey[s.entries[i].Key()] = i
	}
}
