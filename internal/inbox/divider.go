package inbox

import "time"

// Entry is a thread message annotated with display flags: whether a date
// divider precedes it and, if so, its label.
type Entry struct {
	Message      Message
	Divider      bool
	DividerLabel string
}

// Entries returns the thread with a divider flag on the first message of
// each distinct local calendar day, walking in ascending order.
func (s *ThreadStore) Entries() []Entry {
	s.mu.Lock()
	messages := cloneMessages(s.messages)
	now := s.now()
	s.mu.Unlock()

	return annotateDividers(messages, now)
}

func annotateDividers(messages []Message, now time.Time) []Entry {
	if len(messages) == 0 {
		return nil
	}

	entries := make([]Entry, 0, len(messages))
	var prevDay time.Time
	for i, msg := range messages {
		day := localDay(msg.Time)
		entry := Entry{Message: msg}
		if i == 0 || !day.Equal(prevDay) {
			entry.Divider = true
			entry.DividerLabel = dividerLabel(day, now)
		}
		prevDay = day
		entries = append(entries, entry)
	}
	return entries
}

// dividerLabel renders a day boundary as "Today", "Yesterday" or a date.
func dividerLabel(day, now time.Time) string {
	today := localDay(now)
	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	default:
		return day.Format("Jan 2, 2006")
	}
}

func localDay(t time.Time) time.Time {
	local := t.Local()
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
}
