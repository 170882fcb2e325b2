package inbox

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testConv = Conversation{
	ID: "c-1",
	Participant: Participant{
		ID:   "traveler-9",
		Name: "Ada Brooks",
	},
}

func TestReconcileConfirmsOptimisticSend(t *testing.T) {
	store := NewThreadStore()
	store.Reset("c-1")

	optimistic := store.AppendOptimistic("agent-1", "Hello")
	require.True(t, IsLocalID(optimistic.ID))
	require.Equal(t, StatePending, optimistic.State)

	result := store.Reconcile(Event{
		ID:             "m-500",
		ConversationID: "c-1",
		Sender:         "agent-1",
		Body:           "Hello",
		Time:           time.Now(),
	}, testConv)

	require.Equal(t, ReconcileConfirmed, result.Outcome)

	messages := store.Messages()
	require.Len(t, messages, 1)
	require.Equal(t, "m-500", messages[0].ID)
	require.Equal(t, StateConfirmed, messages[0].State)
	require.Equal(t, DirectionAgency, messages[0].Direction)
}

func TestReconcileDropsDuplicateDelivery(t *testing.T) {
	store := NewThreadStore()
	store.Reset("c-1")

	ev := Event{
		ID:             "m-500",
		ConversationID: "c-1",
		Sender:         "traveler-9",
		Body:           "Hi",
		Time:           time.Now(),
	}

	first := store.Reconcile(ev, testConv)
	require.Equal(t, ReconcileNew, first.Outcome)
	require.Equal(t, DirectionCounterparty, first.Message.Direction)

	second := store.Reconcile(ev, testConv)
	require.Equal(t, ReconcileDuplicate, second.Outcome)
	require.Len(t, store.Messages(), 1)
}

func TestReconcileNeverDuplicatesIDs(t *testing.T) {
	store := NewThreadStore()
	store.Reset("c-1")

	now := time.Now()
	for i := 0; i < 30; i++ {
		// Every event id is delivered twice, half of them out of order.
		id := fmt.Sprintf("m-%03d", i%10)
		store.Reconcile(Event{
			ID:             id,
			ConversationID: "c-1",
			Sender:         "traveler-9",
			Body:           "body " + id,
			Time:           now.Add(time.Duration(i%10) * time.Minute),
		}, testConv)
	}

	messages := store.Messages()
	require.Len(t, messages, 10)
	seen := make(map[string]bool)
	for _, msg := range messages {
		require.False(t, seen[msg.ID], "duplicate id %s", msg.ID)
		seen[msg.ID] = true
	}
}

func TestReconcileMatchesOldestPendingFIFO(t *testing.T) {
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
	clock := base
	store := NewThreadStore(WithNow(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	store.Reset("c-1")

	first := store.AppendOptimistic("agent-1", "ok")
	second := store.AppendOptimistic("agent-1", "ok")
	require.NotEqual(t, first.ID, second.ID)

	result := store.Reconcile(Event{
		ID:             "m-1",
		ConversationID: "c-1",
		Sender:         "agent-1",
		Body:           "ok",
		Time:           base.Add(time.Minute),
	}, testConv)
	require.Equal(t, ReconcileConfirmed, result.Outcome)
	require.Equal(t, "m-1", result.Message.ID)

	// The oldest pending message took the id; the second is still pending.
	var pending []Message
	for _, msg := range store.Messages() {
		if msg.State == StatePending {
			pending = append(pending, msg)
		}
	}
	require.Len(t, pending, 1)
	require.Equal(t, second.ID, pending[0].ID)
}

func TestReconcileIgnoresDirectionMismatch(t *testing.T) {
	store := NewThreadStore()
	store.Reset("c-1")

	store.AppendOptimistic("agent-1", "same words")

	// Counterparty coincidentally sends the same body: must not confirm
	// the agency's pending message.
	result := store.Reconcile(Event{
		ID:             "m-7",
		ConversationID: "c-1",
		Sender:         "traveler-9",
		Body:           "same words",
		Time:           time.Now(),
	}, testConv)

	require.Equal(t, ReconcileNew, result.Outcome)
	require.Len(t, store.Messages(), 2)
}

func TestThreadStaysAscendingUnderInterleaving(t *testing.T) {
	store := NewThreadStore()
	store.Reset("c-1")

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)

	// Push events arrive before history, and out of order.
	store.Reconcile(Event{ID: "m-9", ConversationID: "c-1", Sender: "traveler-9", Body: "nine", Time: base.Add(9 * time.Minute)}, testConv)
	store.Reconcile(Event{ID: "m-3", ConversationID: "c-1", Sender: "traveler-9", Body: "three", Time: base.Add(3 * time.Minute)}, testConv)

	store.LoadHistory([]Message{
		{ID: "m-1", ConversationID: "c-1", Sender: "agent-1", Direction: DirectionAgency, Body: "one", Time: base.Add(1 * time.Minute), State: StateConfirmed},
		{ID: "m-5", ConversationID: "c-1", Sender: "traveler-9", Direction: DirectionCounterparty, Body: "five", Time: base.Add(5 * time.Minute), State: StateConfirmed},
	})

	store.AppendOptimistic("agent-1", "latest")

	messages := store.Messages()
	require.Len(t, messages, 5)
	for i := 1; i < len(messages); i++ {
		require.False(t, messages[i].Time.Before(messages[i-1].Time),
			"thread out of order at %d: %v before %v", i, messages[i].Time, messages[i-1].Time)
	}

	// The pushed messages predate the fetch response but postdate the page
	// render; the merge must not drop them.
	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.ID)
	}
	require.Contains(t, ids, "m-3")
	require.Contains(t, ids, "m-9")
}

func TestLoadHistoryKeepsReconciledPushMessages(t *testing.T) {
	store := NewThreadStore()
	store.Reset("c-1")

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)

	// A push event lands while the history fetch is still in flight.
	result := store.Reconcile(Event{
		ID:             "m-7",
		ConversationID: "c-1",
		Sender:         "traveler-9",
		Body:           "just landed",
		Time:           base.Add(7 * time.Minute),
	}, testConv)
	require.Equal(t, ReconcileNew, result.Outcome)

	// The page was rendered before the push, so it does not contain m-7.
	store.LoadHistory([]Message{
		{ID: "m-1", ConversationID: "c-1", Sender: "agent-1", Direction: DirectionAgency, Body: "one", Time: base.Add(1 * time.Minute), State: StateConfirmed},
	})

	messages := store.Messages()
	require.Len(t, messages, 2)
	require.Equal(t, "m-1", messages[0].ID)
	require.Equal(t, "m-7", messages[1].ID)
	require.Equal(t, StateConfirmed, messages[1].State)
}

func TestLoadHistoryPageWinsOnSharedIDs(t *testing.T) {
	store := NewThreadStore()
	store.Reset("c-1")

	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)

	store.Reconcile(Event{
		ID:             "m-2",
		ConversationID: "c-1",
		Sender:         "traveler-9",
		Body:           "push copy",
		Time:           base.Add(2 * time.Minute),
	}, testConv)

	store.LoadHistory([]Message{
		{ID: "m-2", ConversationID: "c-1", Sender: "traveler-9", Direction: DirectionCounterparty, Body: "server copy", Time: base.Add(2 * time.Minute), State: StateConfirmed},
	})

	messages := store.Messages()
	require.Len(t, messages, 1)
	require.Equal(t, "server copy", messages[0].Body)
}

func TestLoadHistoryKeepsInFlightOptimisticSends(t *testing.T) {
	store := NewThreadStore()
	store.Reset("c-1")

	optimistic := store.AppendOptimistic("agent-1", "racing the fetch")

	store.LoadHistory([]Message{
		{ID: "m-1", ConversationID: "c-1", Sender: "traveler-9", Body: "old", Time: time.Now().Add(-time.Hour), State: StateConfirmed},
	})

	messages := store.Messages()
	require.Len(t, messages, 2)
	require.Equal(t, optimistic.ID, messages[1].ID)
	require.Equal(t, StatePending, messages[1].State)
}

func TestConfirmHappensExactlyOnce(t *testing.T) {
	store := NewThreadStore()
	store.Reset("c-1")

	optimistic := store.AppendOptimistic("agent-1", "Hello")

	authoritative := Message{ID: "m-500", Time: time.Now()}
	require.True(t, store.Confirm(optimistic.ID, authoritative))

	// The temporary id is gone; a second confirm cannot find it.
	require.False(t, store.Confirm(optimistic.ID, authoritative))

	messages := store.Messages()
	require.Len(t, messages, 1)
	require.Equal(t, StateConfirmed, messages[0].State)

	// The socket echo of the same send is absorbed as a duplicate.
	result := store.Reconcile(Event{
		ID:             "m-500",
		ConversationID: "c-1",
		Sender:         "agent-1",
		Body:           "Hello",
		Time:           time.Now(),
	}, testConv)
	require.Equal(t, ReconcileDuplicate, result.Outcome)
	require.Len(t, store.Messages(), 1)
}

func TestMarkFailedRemovesOptimisticMessage(t *testing.T) {
	store := NewThreadStore()
	store.Reset("c-1")

	optimistic := store.AppendOptimistic("agent-1", "will not make it")
	require.True(t, store.MarkFailed(optimistic.ID))
	require.Empty(t, store.Messages())
	require.False(t, store.MarkFailed(optimistic.ID))
}

func TestHasPendingBody(t *testing.T) {
	store := NewThreadStore()
	store.Reset("c-1")

	require.False(t, store.HasPendingBody("Hello"))
	optimistic := store.AppendOptimistic("agent-1", "Hello")
	require.True(t, store.HasPendingBody("Hello"))

	store.Confirm(optimistic.ID, Message{ID: "m-1", Time: time.Now()})
	require.False(t, store.HasPendingBody("Hello"))
}

func TestResetClearsThread(t *testing.T) {
	store := NewThreadStore()
	store.Reset("c-1")
	store.AppendOptimistic("agent-1", "something")

	store.Reset("c-2")
	require.Equal(t, "c-2", store.ConversationID())
	require.Empty(t, store.Messages())
}

func TestThreadSubscribeNotifiesOnMutation(t *testing.T) {
	store := NewThreadStore()
	store.Reset("c-1")

	var snapshots []ThreadSnapshot
	cancel := store.Subscribe(func(snapshot ThreadSnapshot) {
		snapshots = append(snapshots, snapshot)
	})

	store.AppendOptimistic("agent-1", "one")
	require.Len(t, snapshots, 1)
	require.Len(t, snapshots[0].Messages, 1)

	cancel()
	store.AppendOptimistic("agent-1", "two")
	require.Len(t, snapshots, 1)
}
