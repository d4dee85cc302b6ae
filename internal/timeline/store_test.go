package timeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func confirmed(id string, ch Channel, at time.Time) Message {
	return Message{
		ID:       id,
		Channel:  ch,
		SortKey:  at,
		AuthorID: "author-" + id,
		Kind:     KindText,
		Content:  "msg " + id,
	}
}

// page builds n descending client-channel messages, newest at offset.
func page(ch Channel, newest time.Time, n int, startID int) []Message {
	out := make([]Message, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%d", startID+i)
		out = append(out, confirmed(id, ch, newest.Add(-time.Duration(i)*time.Minute)))
	}
	return out
}

func TestReplaceAllResetsCursor(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.ReplaceAll(page(ChannelClient, base, 50, 1), true))

	require.Equal(t, 50, s.Len())
	require.True(t, s.HasMore())
	require.Equal(t, base.Add(-49*time.Minute), s.Cursor())

	head, ok := s.Head()
	require.True(t, ok)
	require.Equal(t, "1", head.ID)
	require.Equal(t, StateConfirmed, head.State)
}

func TestAppendOlderFiltersDuplicates(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.ReplaceAll(page(ChannelClient, base, 50, 1), true))
	cursor := s.Cursor()

	// Server page of 50 older items, 3 of which overlap ids already held.
	older := page(ChannelClient, cursor.Add(-time.Minute), 47, 51)
	older = append(older,
		confirmed("48", ChannelClient, cursor.Add(-48*time.Minute)),
		confirmed("49", ChannelClient, cursor.Add(-49*time.Minute)),
		confirmed("50", ChannelClient, cursor.Add(-50*time.Minute)),
	)

	added, err := s.AppendOlder(older, 50)
	require.NoError(t, err)
	require.Equal(t, 47, added)
	require.Equal(t, 97, s.Len())
	require.True(t, s.HasMore())
}

func TestAppendOlderShortPageEndsPagination(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.ReplaceAll(page(ChannelClient, base, 50, 1), true))

	added, err := s.AppendOlder(page(ChannelClient, s.Cursor().Add(-time.Minute), 12, 51), 50)
	require.NoError(t, err)
	require.Equal(t, 12, added)
	require.False(t, s.HasMore())
	require.Equal(t, base.Add(-61*time.Minute), s.Cursor())
}

func TestAppendOlderNeverMutatesExistingEntries(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.ReplaceAll(page(ChannelClient, base, 10, 1), true))
	before := s.Snapshot()

	_, err := s.AppendOlder(page(ChannelClient, s.Cursor().Add(-time.Minute), 5, 11), 5)
	require.NoError(t, err)

	after := s.Snapshot()
	require.Equal(t, before, after[:len(before)])
}

func TestAppendOlderRejectsInvalidPageAtomically(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.ReplaceAll(page(ChannelClient, base, 5, 1), true))
	before := s.Snapshot()

	bad := page(ChannelClient, s.Cursor().Add(-time.Minute), 3, 6)
	bad[2].Channel = "carrier-pigeon"

	_, err := s.AppendOlder(bad, 3)
	require.ErrorIs(t, err, ErrInvalidChannel)
	require.Equal(t, before, s.Snapshot())
}

func TestSameIDDifferentChannelAreDistinct(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.ReplaceAll([]Message{
		confirmed("7", ChannelClient, base),
		confirmed("7", ChannelInternal, base.Add(-time.Minute)),
	}, false))

	require.Equal(t, 2, s.Len())
	require.True(t, s.Contains(Key{ID: "7", Channel: ChannelClient}))
	require.True(t, s.Contains(Key{ID: "7", Channel: ChannelInternal}))
}

func TestInsertPendingRequiresProvisionalID(t *testing.T) {
	s := NewStore()

	err := s.InsertPending(confirmed("42", ChannelClient, base))
	require.ErrorIs(t, err, ErrMissingID)

	m := confirmed(NewProvisionalID(), ChannelClient, base)
	require.NoError(t, s.InsertPending(m))
	require.ErrorIs(t, s.InsertPending(m), ErrDuplicateEntry)

	head, ok := s.Head()
	require.True(t, ok)
	require.Equal(t, StatePending, head.State)
}

func TestMarkFailedOnlyTransitionsPending(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.ReplaceAll(page(ChannelClient, base, 1, 1), false))

	pending := confirmed(NewProvisionalID(), ChannelClient, base.Add(time.Minute))
	require.NoError(t, s.InsertPending(pending))

	require.False(t, s.MarkFailed(Key{ID: "1", Channel: ChannelClient}))
	require.True(t, s.MarkFailed(pending.Key()))
	require.False(t, s.MarkFailed(pending.Key()))

	got, ok := s.Get(pending.Key())
	require.True(t, ok)
	require.Equal(t, StateFailed, got.State)
}

func TestDayGroupsOrdering(t *testing.T) {
	loc := time.UTC
	s := NewStore()

	today := time.Date(2026, 3, 14, 9, 0, 0, 0, loc)
	yesterday := today.Add(-24 * time.Hour)
	require.NoError(t, s.ReplaceAll([]Message{
		confirmed("4", ChannelClient, today.Add(2*time.Hour)),
		confirmed("3", ChannelInternal, today),
		confirmed("2", ChannelClient, yesterday.Add(time.Hour)),
		confirmed("1", ChannelClient, yesterday),
	}, false))

	groups := s.DayGroups(loc)
	require.Len(t, groups, 2)
	require.True(t, groups[0].Day.Before(groups[1].Day))

	for _, g := range groups {
		for i := 1; i < len(g.Messages); i++ {
			require.False(t, g.Messages[i].SortKey.Before(g.Messages[i-1].SortKey),
				"sort keys must be non-decreasing within a day group")
		}
	}
	require.Equal(t, "1", groups[0].Messages[0].ID)
	require.Equal(t, "4", groups[1].Messages[1].ID)
}

func TestClearDropsEverything(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.ReplaceAll(page(ChannelClient, base, 8, 1), true))

	s.Clear()
	require.Equal(t, 0, s.Len())
	require.False(t, s.HasMore())
	require.True(t, s.Cursor().IsZero())
	require.False(t, s.Contains(Key{ID: "1", Channel: ChannelClient}))
}

func TestProvisionalNamespaceDisjoint(t *testing.T) {
	id := NewProvisionalID()
	require.True(t, IsProvisionalID(id))
	require.False(t, IsProvisionalID("9001"))
	require.NotEqual(t, NewProvisionalID(), id)
}
