package inbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func minuteConvs(base time.Time) []Conversation {
	return []Conversation{
		{
			ID:          "c-1",
			Participant: Participant{ID: "traveler-1", Name: "Ada Brooks", Email: "ada@example.com"},
			BookingRef:  "BK-1042",
			LastPreview: Preview{Body: "See you in Lisbon", Time: base.Add(-2 * time.Minute)},
			Unread:      2,
		},
		{
			ID:          "c-2",
			Participant: Participant{ID: "traveler-2", Name: "Noor Haddad"},
			LastPreview: Preview{Body: "Thanks!", Time: base.Add(-1 * time.Minute)},
		},
		{
			ID:          "c-3",
			Participant: Participant{ID: "traveler-3", Name: "Sam Ortiz"},
			LastPreview: Preview{Body: "Old trip", Time: base.Add(-time.Hour)},
			Archived:    true,
		},
	}
}

func TestLoadComputesTotalsAndOrdering(t *testing.T) {
	store := NewConversationStore()
	store.Load(minuteConvs(time.Now()))

	require.Equal(t, 2, store.TotalUnread())

	snapshot := store.Snapshot()
	require.Len(t, snapshot.Conversations, 3)
	require.Equal(t, "c-2", snapshot.Conversations[0].ID)
	require.Equal(t, "c-1", snapshot.Conversations[1].ID)
	require.Equal(t, "c-3", snapshot.Conversations[2].ID)
}

func TestIncomingPreviewBumpsUnreadForInactiveConversation(t *testing.T) {
	store := NewConversationStore()
	store.Load(minuteConvs(time.Now()))

	applied := store.ApplyIncomingPreview(Event{
		ID:             "m-1",
		ConversationID: "c-2",
		Sender:         "traveler-2",
		Body:           "Hi",
		Time:           time.Now(),
	})
	require.True(t, applied)

	conv, ok := store.Get("c-2")
	require.True(t, ok)
	require.Equal(t, 1, conv.Unread)
	require.Equal(t, "Hi", conv.LastPreview.Body)
	require.Equal(t, 3, store.TotalUnread())
}

func TestIncomingPreviewSkipsCountsForAgencyEcho(t *testing.T) {
	store := NewConversationStore()
	store.Load(minuteConvs(time.Now()))

	store.ApplyIncomingPreview(Event{
		ID:             "m-1",
		ConversationID: "c-2",
		Sender:         "agent-1",
		Body:           "On it",
		Time:           time.Now(),
	})

	conv, _ := store.Get("c-2")
	require.Equal(t, 0, conv.Unread)
	require.Equal(t, "On it", conv.LastPreview.Body)
	require.Equal(t, 2, store.TotalUnread())
}

func TestIncomingPreviewSkipsCountsForActiveConversation(t *testing.T) {
	store := NewConversationStore()
	store.Load(minuteConvs(time.Now()))

	_, err := store.Select("c-2")
	require.NoError(t, err)

	store.ApplyIncomingPreview(Event{
		ID:             "m-1",
		ConversationID: "c-2",
		Sender:         "traveler-2",
		Body:           "are you there?",
		Time:           time.Now(),
	})

	conv, _ := store.Get("c-2")
	require.Equal(t, 0, conv.Unread)
	require.Equal(t, 2, store.TotalUnread())
}

func TestIncomingPreviewReordersListByRecency(t *testing.T) {
	now := time.Now()
	store := NewConversationStore()
	store.Load(minuteConvs(now))

	store.ApplyIncomingPreview(Event{
		ID:             "m-1",
		ConversationID: "c-1",
		Sender:         "traveler-1",
		Body:           "fresh",
		Time:           now,
	})

	snapshot := store.Snapshot()
	require.Equal(t, "c-1", snapshot.Conversations[0].ID)
}

func TestIncomingPreviewIgnoresUnknownConversation(t *testing.T) {
	store := NewConversationStore()
	store.Load(minuteConvs(time.Now()))

	require.False(t, store.ApplyIncomingPreview(Event{
		ID:             "m-1",
		ConversationID: "c-404",
		Sender:         "whoever",
		Body:           "lost",
		Time:           time.Now(),
	}))
	require.Equal(t, 2, store.TotalUnread())
}

func TestSelectClearsUnreadImmediately(t *testing.T) {
	store := NewConversationStore()
	store.Load(minuteConvs(time.Now()))

	cleared, err := store.Select("c-1")
	require.NoError(t, err)
	require.Equal(t, 2, cleared)

	conv, _ := store.Get("c-1")
	require.Equal(t, 0, conv.Unread)
	require.Equal(t, 0, store.TotalUnread())
	require.Equal(t, "c-1", store.ActiveID())

	_, err = store.Select("c-404")
	require.ErrorIs(t, err, ErrUnknownConversation)
}

func TestUnreadNeverGoesNegative(t *testing.T) {
	store := NewConversationStore()
	store.Load(minuteConvs(time.Now()))

	for i := 0; i < 5; i++ {
		_, err := store.Select("c-1")
		require.NoError(t, err)
		_, err = store.Select("c-2")
		require.NoError(t, err)
	}

	require.GreaterOrEqual(t, store.TotalUnread(), 0)
	for _, conv := range store.Snapshot().Conversations {
		require.GreaterOrEqual(t, conv.Unread, 0)
	}
}

func TestFilterTabsAndSearch(t *testing.T) {
	store := NewConversationStore()
	store.Load(minuteConvs(time.Now()))

	all := store.Filter(TabAll, "")
	require.Len(t, all, 2) // archived excluded

	unread := store.Filter(TabUnread, "")
	require.Len(t, unread, 1)
	require.Equal(t, "c-1", unread[0].ID)

	archived := store.Filter(TabArchived, "")
	require.Len(t, archived, 1)
	require.Equal(t, "c-3", archived[0].ID)

	byName := store.Filter(TabAll, "noor")
	require.Len(t, byName, 1)
	require.Equal(t, "c-2", byName[0].ID)

	byEmail := store.Filter(TabAll, "ada@")
	require.Len(t, byEmail, 1)
	require.Equal(t, "c-1", byEmail[0].ID)

	byPreview := store.Filter(TabAll, "lisbon")
	require.Len(t, byPreview, 1)
	require.Equal(t, "c-1", byPreview[0].ID)

	require.Empty(t, store.Filter(TabAll, "nobody"))
}

func TestFilterDoesNotMutateState(t *testing.T) {
	store := NewConversationStore()
	store.Load(minuteConvs(time.Now()))

	before := store.Snapshot()
	_ = store.Filter(TabUnread, "ada")
	after := store.Snapshot()

	require.Equal(t, before, after)
}

func TestListSubscribeNotifiesOnMutation(t *testing.T) {
	store := NewConversationStore()

	var snapshots []ListSnapshot
	cancel := store.Subscribe(func(snapshot ListSnapshot) {
		snapshots = append(snapshots, snapshot)
	})

	store.Load(minuteConvs(time.Now()))
	require.Len(t, snapshots, 1)
	require.Equal(t, 2, snapshots[0].TotalUnread)

	cancel()
	store.Deselect()
	require.Len(t, snapshots, 1)
}

func TestLoadKeepsActiveSelectionCleared(t *testing.T) {
	now := time.Now()
	store := NewConversationStore()
	store.Load(minuteConvs(now))

	_, err := store.Select("c-1")
	require.NoError(t, err)

	// A reload from the server may still carry stale unread for the
	// conversation the agent is looking at right now.
	store.Load(minuteConvs(now))

	conv, _ := store.Get("c-1")
	require.Equal(t, 0, conv.Unread)
	require.Equal(t, "c-1", store.ActiveID())
	require.Equal(t, 0, store.TotalUnread())
}
