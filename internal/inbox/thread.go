package inbox

import (
	"sort"
	"sync"
	"time"
)

// ThreadSnapshot is the value published to ThreadStore subscribers.
type ThreadSnapshot struct {
	ConversationID string
	Messages       []Message
}

// ThreadStore holds the ordered message list for the currently selected
// conversation. The thread is kept time-ascending regardless of the arrival
// order of history fetches versus push events.
type ThreadStore struct {
	mu             sync.Mutex
	conversationID string
	messages       []Message
	now            func() time.Time
	observers      *observers[ThreadSnapshot]
}

type ThreadOption func(*ThreadStore)

// WithNow overrides the store clock (divider labeling, optimistic stamps).
func WithNow(now func() time.Time) ThreadOption {
	return func(store *ThreadStore) {
		if now != nil {
			store.now = now
		}
	}
}

func NewThreadStore(opts ...ThreadOption) *ThreadStore {
	store := &ThreadStore{
		now:       time.Now,
		observers: newObservers[ThreadSnapshot](),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Reset binds the store to a conversation and clears the thread.
func (s *ThreadStore) Reset(conversationID string) {
	s.mu.Lock()
	s.conversationID = conversationID
	s.messages = nil
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.observers.notify(snapshot)
}

// LoadHistory merges one page of prior messages into the thread, sorted
// ascending by timestamp. The page is authoritative for the ids it carries;
// everything else already in the thread survives: optimistic sends still in
// flight and push messages reconciled while the fetch was running (the
// server may have rendered the page before those arrived).
func (s *ThreadStore) LoadHistory(msgs []Message) {
	s.mu.Lock()
	paged := make(map[string]struct{}, len(msgs))
	merged := make([]Message, 0, len(msgs)+len(s.messages))
	for _, msg := range msgs {
		if msg.State == "" {
			msg.State = StateConfirmed
		}
		merged = append(merged, msg)
		paged[msg.ID] = struct{}{}
	}
	for _, msg := range s.messages {
		if _, ok := paged[msg.ID]; !ok {
			merged = append(merged, msg)
		}
	}
	s.messages = merged
	s.sortLocked()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.observers.notify(snapshot)
}

// AppendOptimistic inserts a pending agency message with a provisional id at
// the tail of the thread, giving the UI its perceived-instant feedback. The
// returned message carries the temporary id needed to confirm or fail it.
func (s *ThreadStore) AppendOptimistic(sender, body string) Message {
	s.mu.Lock()
	msg := Message{
		ID:             NewLocalID(),
		ConversationID: s.conversationID,
		Sender:         sender,
		Direction:      DirectionAgency,
		Body:           body,
		Time:           s.now(),
		State:          StatePending,
	}
	s.messages = append(s.messages, msg)
	s.sortLocked()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.observers.notify(snapshot)
	return msg
}

// HasPendingBody reports whether an identical agency message is still
// awaiting confirmation. The compose layer uses this to hold back a second
// identical send while the first is in flight.
func (s *ThreadStore) HasPendingBody(body string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].State == StatePending &&
			s.messages[i].Direction == DirectionAgency &&
			s.messages[i].Body == body {
			return true
		}
	}
	return false
}

// Confirm replaces a pending message's provisional identity with the
// authoritative server record. The message keeps its slot in the thread
// (re-sorted under the server timestamp) and never reverts to pending.
func (s *ThreadStore) Confirm(tempID string, authoritative Message) bool {
	s.mu.Lock()
	idx := s.indexLocked(tempID)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}

	msg := &s.messages[idx]
	msg.ID = authoritative.ID
	if !authoritative.Time.IsZero() {
		msg.Time = authoritative.Time
	}
	msg.State = StateConfirmed
	s.sortLocked()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.observers.notify(snapshot)
	return true
}

// MarkFailed removes the optimistic message with the given provisional id.
// Failed sends are removed rather than flagged so the user never sees a
// silently stuck bubble.
func (s *ThreadStore) MarkFailed(tempID string) bool {
	s.mu.Lock()
	idx := s.indexLocked(tempID)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.messages = append(s.messages[:idx], s.messages[idx+1:]...)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.observers.notify(snapshot)
	return true
}

// ConversationID returns the conversation the store is currently bound to.
func (s *ThreadStore) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Messages returns the thread in ascending timestamp order.
func (s *ThreadStore) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMessages(s.messages)
}

// Snapshot returns the current thread state.
func (s *ThreadStore) Snapshot() ThreadSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers a handler invoked with a fresh snapshot after every
// mutation. The returned func cancels the subscription.
func (s *ThreadStore) Subscribe(handler func(ThreadSnapshot)) func() {
	return s.observers.subscribe(handler)
}

func (s *ThreadStore) indexLocked(id string) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// sortLocked restores ascending timestamp order, breaking ties by id so
// repeated sorts are stable.
func (s *ThreadStore) sortLocked() {
	sort.SliceStable(s.messages, func(i, j int) bool {
		if !s.messages[i].Time.Equal(s.messages[j].Time) {
			return s.messages[i].Time.Before(s.messages[j].Time)
		}
		return s.messages[i].ID < s.messages[j].ID
	})
}

func (s *ThreadStore) snapshotLocked() ThreadSnapshot {
	return ThreadSnapshot{
		ConversationID: s.conversationID,
		Messages:       cloneMessages(s.messages),
	}
}
