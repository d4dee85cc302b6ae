package timeline

// ReconcileOutcome describes what a confirmed delivery did to the store.
type ReconcileOutcome int

const (
	// ReconcileDuplicate means the identity was already stored; the delivery
	// was absorbed with no effect.
	ReconcileDuplicate ReconcileOutcome = iota

	// ReconcileReplaced means a matching optimistic entry was retired and
	// replaced by the confirmed message.
	ReconcileReplaced

	// ReconcileInserted means the message was new and was inserted.
	ReconcileInserted
)

// Reconcile merges a confirmed message into the store. It is the sole path by
// which confirmed state enters the timeline, whether the message arrived via
// push delivery or any other confirmation signal, and it is idempotent and
// commutative across duplicate or re-ordered deliveries.
//
// Matching order:
//
//  1. An entry with the same (id, channel) exists: no-op. Absorbs at-least-
//     once redelivery.
//  2. A pending entry on the same channel with equal content and a still-
//     provisional id exists: replace it. This is the only point a
//     provisional id is retired.
//  3. Otherwise insert as a new confirmed entry.
//
// The content match in step 2 is a deliberate heuristic: provisional entries
// are created before any server id exists, so no exact key can link them.
// Two rapid sends of identical content on one channel inside the
// reconciliation window can therefore merge into one entry. That limitation
// is accepted and tested rather than papered over with guessed
// disambiguators.
func (s *Store) Reconcile(m Message) (ReconcileOutcome, error) {
	if err := m.Validate(); err != nil {
		return ReconcileDuplicate, err
	}
	m.State = StateConfirmed

	if s.Contains(m.Key()) {
		return ReconcileDuplicate, nil
	}

	for i := range s.entries {
		p := s.entries[i]
		if p.State != StatePending || p.Channel != m.Channel || !p.Provisional() {
			continue
		}
		if p.Content != m.Content {
			continue
		}
		// Carry the local reply snapshot forward so the preview does not
		// flicker while older pages are missing.
		if m.Snapshot == nil && sameReply(p.ReplyTo, m.ReplyTo) {
			m.Snapshot = p.Snapshot
		}
		s.removeAt(i)
		s.insertSorted(m)
		return ReconcileReplaced, nil
	}

	s.insertSorted(m)
	return ReconcileInserted, nil
}

// ApplyUpdate merges an update delivery for an already stored entry.
// Reactions are append-only from the timeline's perspective; each reaction is
// identified by (emoji, author, timestamp), so redelivered updates converge
// to the same state. Updates for unknown entries are dropped: the entry may
// live on a page that is not loaded.
func (s *Store) ApplyUpdate(m Message) bool {
	i, ok := s.byKey[m.Key()]
	if !ok {
		return false
	}
	stored := &s.entries[i]
	for _, r := range m.Reactions {
		if !hasReaction(stored.Reactions, r) {
			stored.Reactions = append(stored.Reactions, r)
		}
	}
	return true
}

func hasReaction(list []Reaction, r Reaction) bool {
	for _, have := range list {
		if have.Emoji == r.Emoji && have.AuthorID == r.AuthorID && have.At.Equal(r.At) {
			return true
		}
	}
	return false
}

func sameReply(a, b *ReplyRef) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
