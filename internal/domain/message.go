package domain

import "time"

// Role indicates which side of the conversation a party is on.
type Role string

const (
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// Opposite returns the other side of the conversation.
func (r Role) Opposite() Role {
	if r == RoleSeller {
		return RoleAdmin
	}
	return RoleSeller
}

// Attachment stores metadata for an uploaded file referenced by a message.
type Attachment struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	Type     string `json:"type"`
}

// Message captures one entry in a ticket thread. Immutable once created
// except for IsRead/ReadAt, which transition monotonically false to true.
type Message struct {
	ID          string       `json:"id"`
	TicketID    string       `json:"ticket_id"`
	SenderID    string       `json:"sender_id"`
	SenderRole  Role         `json:"sender_role"`
	Body        string       `json:"message"`
	Attachments []Attachment `json:"attachments"`
	IsInternal  bool         `json:"is_internal"`
	IsRead      bool         `json:"is_read"`
	CreatedAt   time.Time    `json:"created_at"`
	ReadAt      *time.Time   `json:"read_at,omitempty"`
}

// Before orders messages by created_at ascending, falling back to id so
// the order is total even for equal timestamps.
func (m Message) Before(other Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}
