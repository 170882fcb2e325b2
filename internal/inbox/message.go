// Package inbox implements the client-side messaging synchronization core:
// conversation and thread stores, the reconciliation engine that merges
// history fetches, optimistic sends and push events, and the session that
// funnels every mutation through a single consumer loop.
package inbox

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the inbox core.
var (
	ErrEmptyBody           = errors.New("message body is empty")
	ErrDuplicatePending    = errors.New("identical message already pending")
	ErrNoSelection         = errors.New("no conversation selected")
	ErrUnknownConversation = errors.New("unknown conversation")
)

const (
	// localIDPrefix marks provisional ids assigned to optimistic sends.
	localIDPrefix = "local-"

	// PreviewMaxRunes bounds the conversation list preview body.
	PreviewMaxRunes = 120
)

// Direction classifies a message relative to the agency. It is computed once
// at ingestion time and attached permanently to the record.
type Direction string

const (
	DirectionAgency       Direction = "agency"
	DirectionCounterparty Direction = "counterparty"
)

// DeliveryState tracks a message's lifecycle. Pending only while the id is
// temporary and awaiting the server echo; confirmed once matched to an
// authoritative record. Failed sends are removed from the thread rather than
// kept in a stuck state, so StateFailed never appears in store snapshots.
type DeliveryState string

const (
	StatePending   DeliveryState = "pending"
	StateConfirmed DeliveryState = "confirmed"
	StateFailed    DeliveryState = "failed"
)

// Participant is the counterparty identity on a conversation.
type Participant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Preview is the truncated body and timestamp of a conversation's most
// recent message, from either party. The timestamp doubles as the
// conversation list ordering key.
type Preview struct {
	Body string    `json:"body"`
	Time time.Time `json:"time"`
}

// Conversation is a persistent thread between the agency and one
// counterparty, optionally linked to a booking.
type Conversation struct {
	ID          string      `json:"id"`
	Participant Participant `json:"participant"`
	BookingRef  string      `json:"booking_ref,omitempty"`
	LastPreview Preview     `json:"last_preview"`
	Unread      int         `json:"unread"`
	Archived    bool        `json:"archived"`
}

// Message is one entry in a conversation thread.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	Sender         string        `json:"sender"`
	Direction      Direction     `json:"direction"`
	Body           string        `json:"body"`
	Time           time.Time     `json:"time"`
	State          DeliveryState `json:"state"`
}

// Event is an inbound push record delivered by the transport channel.
type Event struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender"`
	Body           string    `json:"body"`
	Time           time.Time `json:"timestamp"`
	Type           string    `json:"type"`
}

// NewLocalID generates a provisional message id for an optimistic send.
func NewLocalID() string {
	return localIDPrefix + uuid.New().String()
}

// IsLocalID reports whether id is provisional (not yet server-assigned).
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, localIDPrefix)
}

// Classify resolves the direction of a sender within a conversation. The
// sender matching the conversation's participant is the counterparty;
// anything else (agents, automation) counts as the agency side.
func Classify(sender string, conv Conversation) Direction {
	if strings.TrimSpace(sender) != "" && sender == conv.Participant.ID {
		return DirectionCounterparty
	}
	return DirectionAgency
}

// TruncatePreview bounds a preview body to PreviewMaxRunes.
func TruncatePreview(body string) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= PreviewMaxRunes {
		return body
	}
	return string(runes[:PreviewMaxRunes-1]) + "…"
}

func cloneConversation(conv Conversation) Conversation {
	return conv
}

func cloneMessages(messages []Message) []Message {
	if len(messages) == 0 {
		return nil
	}
	cloned := make([]Message, len(messages))
	copy(cloned, messages)
	return cloned
}
