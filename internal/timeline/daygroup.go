package timeline

import "time"

// DayGroup is one calendar day of the display sequence, oldest day first,
// messages ascending by sort key within the day.
type DayGroup struct {
	Day      time.Time
	Messages []Message
}

// DayGroups materializes the display order: entries grouped by calendar day
// of their sort key in the given location. Within each group the sort key is
// non-decreasing.
func (s *Store) DayGroups(loc *time.Location) []DayGroup {
	if loc == nil {
		loc = time.Local
	}

	var groups []DayGroup
	// Entries are newest first; walk from the tail for display order.
	for i := len(s.entries) - 1; i >= 0; i-- {
		m := s.entries[i]
		day := startOfDay(m.SortKey, loc)
		if n := len(groups); n > 0 && groups[n-1].Day.Equal(day) {
			groups[n-1].Messages = append(groups[n-1].Messages, m)
			continue
		}
		groups = append(groups, DayGroup{Day: day, Messages: []Message{m}})
	}
	return groups
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
