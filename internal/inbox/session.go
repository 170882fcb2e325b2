package inbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wanderdesk/wanderdesk/internal/logging"
)

const (
	defaultHistoryLimit = 50
	noticeBuffer        = 16
	sideEffectTimeout   = 10 * time.Second
)

// API is the REST collaborator surface the session consumes.
type API interface {
	ListConversations(ctx context.Context, agencyID string) ([]Conversation, error)
	GetMessages(ctx context.Context, agencyID, conversationID string, limit int) ([]Message, error)
	SendMessage(ctx context.Context, agencyID, conversationID, body string) (Message, error)
	MarkConversationRead(ctx context.Context, agencyID, conversationID string) error
}

// PushChannel is the live event stream the session consumes.
type PushChannel interface {
	Connect(ctx context.Context) error
	Events() <-chan Event
	Close()
}

// SnapshotCache optionally persists the conversation list across restarts
// so the UI renders immediately on the next cold start. Server data always
// overwrites it; cache failures are never fatal.
type SnapshotCache interface {
	LoadConversations(ctx context.Context) ([]Conversation, error)
	SaveConversations(ctx context.Context, convs []Conversation) error
}

// Notice is a user-visible error affordance raised by the session.
type Notice struct {
	Text string
	Time time.Time
}

// SessionConfig identifies the agency context the session operates in.
type SessionConfig struct {
	// AgencyID scopes every collaborator call.
	AgencyID string
	// SelfID is the sender id stamped on optimistic messages.
	SelfID string
	// HistoryLimit is the page size for history fetches.
	HistoryLimit int
}

// Session is the explicitly constructed context for one live messaging
// session: it owns both stores, the push channel and the collaborator
// clients, and funnels every mutation through a single consumer loop. Store
// operations never interleave; each handler runs to completion before the
// next event or call is serviced.
type Session struct {
	cfg     SessionConfig
	api     API
	channel PushChannel
	cache   SnapshotCache
	log     zerolog.Logger

	list   *ConversationStore
	thread *ThreadStore

	calls   chan func()
	notices chan Notice
	cancel  context.CancelFunc
	stopped chan struct{}
}

type SessionOption func(*Session)

// WithSnapshotCache attaches a cold-start snapshot cache.
func WithSnapshotCache(cache SnapshotCache) SessionOption {
	return func(s *Session) {
		s.cache = cache
	}
}

// WithThreadStore substitutes the thread store (tests inject a fixed clock).
func WithThreadStore(store *ThreadStore) SessionOption {
	return func(s *Session) {
		if store != nil {
			s.thread = store
		}
	}
}

func NewSession(cfg SessionConfig, apiClient API, channel PushChannel, opts ...SessionOption) (*Session, error) {
	if strings.TrimSpace(cfg.AgencyID) == "" {
		return nil, fmt.Errorf("agency id required")
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if apiClient == nil {
		return nil, fmt.Errorf("api client required")
	}

	session := &Session{
		cfg:     cfg,
		api:     apiClient,
		channel: channel,
		log:     logging.WithAgency(cfg.AgencyID),
		list:    NewConversationStore(),
		thread:  NewThreadStore(),
		calls:   make(chan func()),
		notices: make(chan Notice, noticeBuffer),
	}
	for _, opt := range opts {
		opt(session)
	}
	return session, nil
}

// List exposes the conversation list store for reads and subscriptions.
func (s *Session) List() *ConversationStore {
	return s.list
}

// Thread exposes the thread store for reads and subscriptions.
func (s *Session) Thread() *ThreadStore {
	return s.thread
}

// Notices returns the feed of user-visible error affordances.
func (s *Session) Notices() <-chan Notice {
	return s.notices
}

// Open loads the conversation list, connects the push channel and starts
// the consumer loop. A cached snapshot, when present, seeds the list before
// the network fetch so the UI has something to paint immediately.
func (s *Session) Open(ctx context.Context) error {
	seeded := s.seedFromCache(ctx)

	convs, err := s.api.ListConversations(ctx, s.cfg.AgencyID)
	if err != nil {
		if !seeded {
			return fmt.Errorf("load conversations: %w", err)
		}
		s.log.Warn().Err(err).Msg("conversation list fetch failed, serving cached snapshot")
		s.notify("Could not refresh conversations; showing cached data.")
	} else {
		s.list.Load(convs)
	}

	var events <-chan Event
	if s.channel != nil {
		if err := s.channel.Connect(ctx); err != nil {
			s.log.Warn().Err(err).Msg("push channel connect failed")
			s.notify("Live updates unavailable; messages may be delayed.")
		} else {
			events = s.channel.Events()
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stopped = make(chan struct{})
	go s.run(runCtx, events)
	return nil
}

// Close stops the consumer loop, releases the channel and persists the
// final conversation snapshot to the cache.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
		<-s.stopped
		s.cancel = nil
	}
	if s.channel != nil {
		s.channel.Close()
	}
	if s.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if err := s.cache.SaveConversations(ctx, s.list.Snapshot().Conversations); err != nil {
			s.log.Debug().Err(err).Msg("snapshot cache save failed")
		}
	}
}

// Select makes a conversation the active selection: unread is cleared
// immediately and optimistically, the thread resets, the history fetch and
// the best-effort read receipt run in the background. A history response
// arriving after the user has moved on is dropped by the stale guard.
func (s *Session) Select(conversationID string) error {
	return s.do(func() error {
		if _, err := s.list.Select(conversationID); err != nil {
			return err
		}
		s.thread.Reset(conversationID)

		go s.fetchHistory(conversationID)
		go s.markRead(conversationID)
		return nil
	})
}

// Deselect closes the active conversation.
func (s *Session) Deselect() error {
	return s.do(func() error {
		s.list.Deselect()
		s.thread.Reset("")
		return nil
	})
}

// Send appends an optimistic message to the active thread and posts it to
// the server. An identical body already pending is rejected rather than
// queued, keeping at most one copy in flight.
func (s *Session) Send(body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return ErrEmptyBody
	}

	return s.do(func() error {
		conversationID := s.list.ActiveID()
		if conversationID == "" {
			return ErrNoSelection
		}
		if s.thread.HasPendingBody(body) {
			return ErrDuplicatePending
		}

		optimistic := s.thread.AppendOptimistic(s.cfg.SelfID, body)
		go s.deliver(conversationID, optimistic)
		return nil
	})
}

// run is the single consumer: push events and posted calls mutate the
// stores one at a time, never concurrently.
func (s *Session) run(ctx context.Context, events <-chan Event) {
	defer close(s.stopped)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleEvent(ev)
		case call := <-s.calls:
			call()
		}
	}
}

// handleEvent routes one push event: list bookkeeping applies for every
// event, the thread merge only while its conversation is open.
func (s *Session) handleEvent(ev Event) {
	if ev.Type != "" && ev.Type != "message" {
		s.log.Debug().Str("type", ev.Type).Msg("ignoring non-message push event")
		return
	}

	log := logging.WithConversation(ev.ConversationID)

	conv, ok := s.list.Get(ev.ConversationID)
	if !ok {
		log.Debug().Msg("push event for unknown conversation")
		return
	}

	s.list.ApplyIncomingPreview(ev)

	if s.list.ActiveID() == ev.ConversationID && s.thread.ConversationID() == ev.ConversationID {
		result := s.thread.Reconcile(ev, conv)
		log.Debug().
			Str("id", ev.ID).
			Str("outcome", string(result.Outcome)).
			Msg("reconciled push event")
	}
}

// fetchHistory loads one page of prior messages and applies it only if the
// conversation is still the active selection when the response lands.
func (s *Session) fetchHistory(conversationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	messages, err := s.api.GetMessages(ctx, s.cfg.AgencyID, conversationID, s.cfg.HistoryLimit)

	s.post(func() {
		if s.list.ActiveID() != conversationID || s.thread.ConversationID() != conversationID {
			// Stale response: the user already switched conversations.
			return
		}
		if err != nil {
			logger := logging.WithConversation(conversationID)
			logger.Warn().Err(err).Msg("history fetch failed")
			s.notify("Could not load message history.")
			return
		}

		conv, ok := s.list.Get(conversationID)
		if !ok {
			return
		}
		for i := range messages {
			messages[i].Direction = Classify(messages[i].Sender, conv)
			messages[i].State = StateConfirmed
		}
		s.thread.LoadHistory(messages)
	})
}

// markRead issues the best-effort read receipt. Failure is swallowed and
// the optimistic local reset is kept: the client accepts drifting from the
// server's read state until a later receipt succeeds.
func (s *Session) markRead(conversationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	if err := s.api.MarkConversationRead(ctx, s.cfg.AgencyID, conversationID); err != nil {
		logger := logging.WithConversation(conversationID)
		logger.Debug().Err(err).Msg("mark read failed")
	}
}

// deliver posts the optimistic message. Success confirms it with the
// authoritative record (the later socket echo dedups on exact id); failure
// removes the bubble and raises a notice.
func (s *Session) deliver(conversationID string, optimistic Message) {
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	record, err := s.api.SendMessage(ctx, s.cfg.AgencyID, conversationID, optimistic.Body)

	s.post(func() {
		if err != nil {
			// The socket echo may have confirmed the message first; only a
			// still-pending bubble is a real failure.
			if s.thread.MarkFailed(optimistic.ID) {
				logger := logging.WithConversation(conversationID)
				logger.Warn().Err(err).Msg("send failed")
				s.notify("Message could not be sent.")
			}
			return
		}

		s.thread.Confirm(optimistic.ID, record)
		// Preview/ordering bookkeeping for the agency's own send; an
		// agency sender never bumps unread counts.
		s.list.ApplyIncomingPreview(Event{
			ID:             record.ID,
			ConversationID: conversationID,
			Sender:         record.Sender,
			Body:           record.Body,
			Time:           record.Time,
		})
	})
}

// do runs fn on the consumer loop and waits for its result.
func (s *Session) do(fn func() error) error {
	if s.stopped == nil {
		return fmt.Errorf("session not open")
	}
	result := make(chan error, 1)
	s.post(func() {
		result <- fn()
	})
	select {
	case err := <-result:
		return err
	case <-s.stopped:
		return fmt.Errorf("session closed")
	}
}

// post enqueues fn for the consumer loop, dropping it if the session has
// already stopped.
func (s *Session) post(fn func()) {
	select {
	case s.calls <- fn:
	case <-s.stopped:
	}
}

func (s *Session) notify(text string) {
	notice := Notice{Text: text, Time: time.Now()}
	select {
	case s.notices <- notice:
	default:
		// A full notice buffer drops the oldest signal's successor; the
		// status line only ever shows the most recent anyway.
	}
}

func (s *Session) seedFromCache(ctx context.Context) bool {
	if s.cache == nil {
		return false
	}
	cached, err := s.cache.LoadConversations(ctx)
	if err != nil {
		s.log.Debug().Err(err).Msg("snapshot cache load failed")
		return false
	}
	if len(cached) == 0 {
		return false
	}
	s.list.Load(cached)
	return true
}
