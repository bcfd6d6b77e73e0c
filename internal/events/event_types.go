package events

import (
	"time"

	"github.com/spec-kit/support-chat/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventMessageReceived   EventType = "message_received"
	EventMessageSent       EventType = "message_sent"
	EventUnreadChanged     EventType = "unread_changed"
	EventTypingChanged     EventType = "typing_changed"
	EventTicketSelected    EventType = "ticket_selected"
	EventTicketListUpdated EventType = "ticket_list_updated"
	EventTicketCreated     EventType = "ticket_created"
	EventSyncError         EventType = "sync_error"
)

// Event represents a state change emitted by the sync engine for UI
// surfaces to react to.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// MessageReceivedPayload carries messages newly observed from the other party.
type MessageReceivedPayload struct {
	Messages []domain.Message `json:"messages"`
}

// MessageSentPayload carries the canonical message returned by the backend.
type MessageSentPayload struct {
	Message domain.Message `json:"message"`
}

// UnreadChangedPayload carries recomputed unread aggregates.
type UnreadChangedPayload struct {
	TotalUnread       int `json:"total_unread"`
	TicketsWithUnread int `json:"tickets_with_unread"`
}

// TypingChangedPayload reports the other party's typing transition.
type TypingChangedPayload struct {
	UserName string `json:"user_name"`
	IsTyping bool   `json:"is_typing"`
}

// TicketCreatedPayload carries the ticket returned on creation.
type TicketCreatedPayload struct {
	Ticket domain.Ticket `json:"ticket"`
}

// SyncErrorPayload reports a non-fatal polling failure.
type SyncErrorPayload struct {
	Op    string `json:"op"`
	Error string `json:"error"`
}
