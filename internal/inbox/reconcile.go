package inbox

// ReconcileOutcome reports which branch of the merge fired for an event.
type ReconcileOutcome string

const (
	// ReconcileDuplicate means the event's id was already in the thread
	// (re-delivery after a reconnect, out-of-order repeat) and was dropped.
	ReconcileDuplicate ReconcileOutcome = "duplicate"
	// ReconcileConfirmed means the event was the authoritative echo of a
	// pending optimistic send, which adopted the server id and timestamp.
	ReconcileConfirmed ReconcileOutcome = "confirmed"
	// ReconcileNew means the event introduced a message not yet known
	// locally and it was inserted in timestamp order.
	ReconcileNew ReconcileOutcome = "new"
)

// ReconcileResult describes how an event was merged into the thread.
type ReconcileResult struct {
	Outcome ReconcileOutcome
	Message Message
}

// Reconcile merges one inbound push event into the thread. conv is the
// event's conversation, used to classify the sender once at ingestion.
//
// The merge runs three checks in order:
//  1. exact id: an event whose authoritative id is already present is a
//     duplicate and causes no mutation.
//  2. pending match: the oldest pending message with the same body and the
//     same direction is taken as the optimistic original and confirmed with
//     the event's id and timestamp. Matching ignores the exact timestamp
//     because the client-side stamp always differs slightly from the
//     server's; two identical in-flight sends therefore resolve FIFO.
//  3. otherwise the event becomes a new confirmed message, inserted in
//     timestamp order.
//
// Conversation-list bookkeeping (preview, ordering, unread) is not handled
// here; the session applies it unconditionally for every event whether or
// not the conversation is open.
func (s *ThreadStore) Reconcile(ev Event, conv Conversation) ReconcileResult {
	direction := Classify(ev.Sender, conv)

	s.mu.Lock()

	if idx := s.indexLocked(ev.ID); idx >= 0 {
		result := ReconcileResult{
			Outcome: ReconcileDuplicate,
			Message: s.messages[idx],
		}
		s.mu.Unlock()
		return result
	}

	if idx := s.oldestPendingMatchLocked(ev.Body, direction); idx >= 0 {
		s.messages[idx].ID = ev.ID
		s.messages[idx].Time = ev.Time
		s.messages[idx].State = StateConfirmed
		confirmed := s.messages[idx]
		s.sortLocked()
		result := ReconcileResult{
			Outcome: ReconcileConfirmed,
			Message: confirmed,
		}
		snapshot := s.snapshotLocked()
		s.mu.Unlock()

		s.observers.notify(snapshot)
		return result
	}

	msg := Message{
		ID:             ev.ID,
		ConversationID: ev.ConversationID,
		Sender:         ev.Sender,
		Direction:      direction,
		Body:           ev.Body,
		Time:           ev.Time,
		State:          StateConfirmed,
	}
	s.messages = append(s.messages, msg)
	s.sortLocked()
	result := ReconcileResult{
		Outcome: ReconcileNew,
		Message: msg,
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.observers.notify(snapshot)
	return result
}

// oldestPendingMatchLocked finds the first pending message matching the
// (body, direction) pair. The thread is ascending, so the first hit is the
// oldest and approximates FIFO across identical concurrent sends.
func (s *ThreadStore) oldestPendingMatchLocked(body string, direction Direction) int {
	for i := range s.messages {
		if s.messages[i].State != StatePending {
			continue
		}
		if s.messages[i].Direction != direction {
			continue
		}
		if s.messages[i].Body == body {
			return i
		}
	}
	return -1
}
