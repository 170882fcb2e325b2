package inbox

import (
	"sort"
	"strings"
	"sync"
)

// Tab selects the conversation list subset shown by the UI.
type Tab string

const (
	TabAll      Tab = "all"
	TabUnread   Tab = "unread"
	TabArchived Tab = "archived"
)

// ListSnapshot is the value published to ConversationStore subscribers.
type ListSnapshot struct {
	Conversations []Conversation
	ActiveID      string
	TotalUnread   int
}

// ConversationStore holds the agency's conversations with their preview,
// unread and ordering metadata. All mutations re-sort most-recent-first and
// notify subscribers; reads return copies.
type ConversationStore struct {
	mu            sync.Mutex
	conversations []Conversation
	activeID      string
	totalUnread   int
	observers     *observers[ListSnapshot]
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		observers: newObservers[ListSnapshot](),
	}
}

// Load replaces the full conversation set from a one-shot list fetch and
// recomputes the unread total. An active selection is kept if the
// conversation survives the reload, and its unread stays cleared.
func (s *ConversationStore) Load(convs []Conversation) {
	s.mu.Lock()
	s.conversations = make([]Conversation, len(convs))
	copy(s.conversations, convs)

	total := 0
	for i := range s.conversations {
		if s.conversations[i].Unread < 0 {
			s.conversations[i].Unread = 0
		}
		if s.conversations[i].ID == s.activeID {
			s.conversations[i].Unread = 0
		}
		total += s.conversations[i].Unread
	}
	s.totalUnread = total
	if s.activeID != "" && s.indexLocked(s.activeID) < 0 {
		s.activeID = ""
	}
	s.sortLocked()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.observers.notify(snapshot)
}

// ApplyIncomingPreview updates preview/ordering for the event's conversation
// and bumps unread counts when the sender is the counterparty and the
// conversation is not the active selection. Agency echoes and events for the
// open conversation never change counts. Events for unknown conversations
// are ignored.
func (s *ConversationStore) ApplyIncomingPreview(ev Event) bool {
	s.mu.Lock()
	idx := s.indexLocked(ev.ConversationID)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}

	conv := &s.conversations[idx]
	conv.LastPreview = Preview{
		Body: TruncatePreview(ev.Body),
		Time: ev.Time,
	}

	if Classify(ev.Sender, *conv) == DirectionCounterparty && conv.ID != s.activeID {
		conv.Unread++
		s.totalUnread++
	}

	s.sortLocked()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.observers.notify(snapshot)
	return true
}

// Select marks a conversation active and clears its unread count
// immediately, without waiting for any server acknowledgement. It returns
// the number of messages cleared, with ErrUnknownConversation for ids not
// in the store.
func (s *ConversationStore) Select(id string) (int, error) {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return 0, ErrUnknownConversation
	}

	s.activeID = id
	cleared := s.conversations[idx].Unread
	s.conversations[idx].Unread = 0
	s.totalUnread -= cleared
	if s.totalUnread < 0 {
		s.totalUnread = 0
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.observers.notify(snapshot)
	return cleared, nil
}

// Deselect clears the active selection.
func (s *ConversationStore) Deselect() {
	s.mu.Lock()
	s.activeID = ""
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.observers.notify(snapshot)
}

// Filter is a pure projection of the current set: tab membership plus a
// case-insensitive match on participant name, email and preview body. It
// never mutates store state.
func (s *ConversationStore) Filter(tab Tab, query string) []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	query = strings.ToLower(strings.TrimSpace(query))
	filtered := make([]Conversation, 0, len(s.conversations))
	for i := range s.conversations {
		conv := s.conversations[i]
		if !tabMatches(tab, conv) {
			continue
		}
		if query != "" && !queryMatches(query, conv) {
			continue
		}
		filtered = append(filtered, cloneConversation(conv))
	}
	return filtered
}

// Snapshot returns the recency-ordered conversation list.
func (s *ConversationStore) Snapshot() ListSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Get returns a conversation by id.
func (s *ConversationStore) Get(id string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return Conversation{}, false
	}
	return cloneConversation(s.conversations[idx]), true
}

// ActiveID returns the currently selected conversation id, if any.
func (s *ConversationStore) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// TotalUnread returns the unread sum across all conversations.
func (s *ConversationStore) TotalUnread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalUnread
}

// Subscribe registers a handler invoked with a fresh snapshot after every
// mutation. The returned func cancels the subscription.
func (s *ConversationStore) Subscribe(handler func(ListSnapshot)) func() {
	return s.observers.subscribe(handler)
}

func (s *ConversationStore) indexLocked(id string) int {
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			return i
		}
	}
	return -1
}

// sortLocked restores most-recent-first ordering. Ties fall back to id so
// the ordering is stable across mutations.
func (s *ConversationStore) sortLocked() {
	sort.SliceStable(s.conversations, func(i, j int) bool {
		ti, tj := s.conversations[i].LastPreview.Time, s.conversations[j].LastPreview.Time
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return s.conversations[i].ID < s.conversations[j].ID
	})
}

func (s *ConversationStore) snapshotLocked() ListSnapshot {
	convs := make([]Conversation, len(s.conversations))
	copy(convs, s.conversations)
	return ListSnapshot{
		Conversations: convs,
		ActiveID:      s.activeID,
		TotalUnread:   s.totalUnread,
	}
}

func tabMatches(tab Tab, conv Conversation) bool {
	switch tab {
	case TabUnread:
		return conv.Unread > 0 && !conv.Archived
	case TabArchived:
		return conv.Archived
	default:
		return !conv.Archived
	}
}

func queryMatches(query string, conv Conversation) bool {
	if strings.Contains(strings.ToLower(conv.Participant.Name), query) {
		return true
	}
	if strings.Contains(strings.ToLower(conv.Participant.Email), query) {
		return true
	}
	return strings.Contains(strings.ToLower(conv.LastPreview.Body), query)
}
