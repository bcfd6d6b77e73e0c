package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen    TicketStatus = "open"
	TicketStatusWaiting TicketStatus = "waiting"
	TicketStatusActive  TicketStatus = "active"
	TicketStatusClosed  TicketStatus = "closed"
)

// TicketPriority enumerates urgency levels.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Creator identifies the seller company that opened a ticket.
type Creator struct {
	CompanyName string `json:"company_name"`
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
}

// Ticket is the client-side projection of a support conversation. The
// backend owns it; only status and priority are ever mutated locally,
// and only pending server confirmation.
type Ticket struct {
	ID          string         `json:"id"`
	Subject     string         `json:"subject"`
	Category    string         `json:"category"`
	Priority    TicketPriority `json:"priority"`
	Status      TicketStatus   `json:"status"`
	UnreadCount int            `json:"unread_count"`
	LastMessage string         `json:"last_message"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Creator     Creator        `json:"creator"`
}

// IsClosed reports whether the ticket rejects further seller messages.
func (t *Ticket) IsClosed() bool {
	return t != nil && t.Status == TicketStatusClosed
}

// ValidStatus reports whether s is a known ticket status.
func ValidStatus(s TicketStatus) bool {
	switch s {
	case TicketStatusOpen, TicketStatusWaiting, TicketStatusActive, TicketStatusClosed:
		return true
	}
	return false
}

// ValidPriority reports whether p is a known priority.
func ValidPriority(p TicketPriority) bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}
