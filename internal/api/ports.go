package api

import (
	"context"
	"io"

	"github.com/spec-kit/support-chat/internal/domain"
)

// ListFilter narrows the admin ticket list. Sellers always see their
// own tickets; the backend ignores filters on the seller route.
type ListFilter struct {
	Status   domain.TicketStatus
	Priority domain.TicketPriority
	Category string
	Search   string
}

// MessagePage is one page of a ticket's history, newest page at offset 0.
type MessagePage struct {
	Messages []domain.Message `json:"messages"`
	Seller   *domain.Creator  `json:"seller,omitempty"`
	HasMore  bool             `json:"has_more"`
}

// SendInput describes an outgoing message.
type SendInput struct {
	Text        string
	Attachments []domain.Attachment
	Internal    bool
}

// CreateTicketInput describes a new ticket with its opening message.
type CreateTicketInput struct {
	Subject     string
	Category    string
	Priority    domain.TicketPriority
	Text        string
	Attachments []domain.Attachment
}

// TicketAPI is the backend surface the sync engine consumes. The real
// implementation is *Client; tests substitute fakes.
type TicketAPI interface {
	ListTickets(ctx context.Context, filter ListFilter) ([]domain.Ticket, error)
	FetchMessages(ctx context.Context, ticketID string, limit, offset int) (*MessagePage, error)
	CreateTicket(ctx context.Context, input CreateTicketInput) (*domain.Ticket, error)
	SendMessage(ctx context.Context, ticketID string, input SendInput) (*domain.Message, error)
	Upload(ctx context.Context, ticketID, filename string, r io.Reader, size int64) (*domain.Attachment, error)
	Download(ctx context.Context, filename string) (io.ReadCloser, error)
	MarkRead(ctx context.Context, ticketID string, messageIDs []string) error
	EmitTyping(ctx context.Context, ticketID string, isTyping bool) error
	FetchTyping(ctx context.Context, ticketID string) (*domain.TypingState, error)
	SetStatus(ctx context.Context, ticketID string, status domain.TicketStatus) (*domain.Ticket, error)
	SetPriority(ctx context.Context, ticketID string, priority domain.TicketPriority) (*domain.Ticket, error)
}
