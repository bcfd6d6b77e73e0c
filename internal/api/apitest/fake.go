package apitest

import (
	"context"
	"io"
	"sync"

	"github.com/spec-kit/support-chat/internal/api"
	"github.com/spec-kit/support-chat/internal/domain"
)

// Fake is a scriptable api.TicketAPI for tests. Unset hooks return
// zero values; every call is counted by method name.
type Fake struct {
	mu    sync.Mutex
	calls map[string]int

	ListTicketsFn   func(ctx context.Context, filter api.ListFilter) ([]domain.Ticket, error)
	FetchMessagesFn func(ctx context.Context, ticketID string, limit, offset int) (*api.MessagePage, error)
	CreateTicketFn  func(ctx context.Context, input api.CreateTicketInput) (*domain.Ticket, error)
	SendMessageFn   func(ctx context.Context, ticketID string, input api.SendInput) (*domain.Message, error)
	UploadFn        func(ctx context.Context, ticketID, filename string, r io.Reader, size int64) (*domain.Attachment, error)
	DownloadFn      func(ctx context.Context, filename string) (io.ReadCloser, error)
	MarkReadFn      func(ctx context.Context, ticketID string, messageIDs []string) error
	EmitTypingFn    func(ctx context.Context, ticketID string, isTyping bool) error
	FetchTypingFn   func(ctx context.Context, ticketID string) (*domain.TypingState, error)
	SetStatusFn     func(ctx context.Context, ticketID string, status domain.TicketStatus) (*domain.Ticket, error)
	SetPriorityFn   func(ctx context.Context, ticketID string, priority domain.TicketPriority) (*domain.Ticket, error)
}

// New returns an empty fake.
func New() *Fake {
	return &Fake{calls: make(map[string]int)}
}

// Calls returns how many times the named method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *Fake) record(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[method]++
}

func (f *Fake) ListTickets(ctx context.Context, filter api.ListFilter) ([]domain.Ticket, error) {
	f.record("ListTickets")
	if f.ListTicketsFn != nil {
		return f.ListTicketsFn(ctx, filter)
	}
	return nil, nil
}

func (f *Fake) FetchMessages(ctx context.Context, ticketID string, limit, offset int) (*api.MessagePage, error) {
	f.record("FetchMessages")
	if f.FetchMessagesFn != nil {
		return f.FetchMessagesFn(ctx, ticketID, limit, offset)
	}
	return &api.MessagePage{}, nil
}

func (f *Fake) CreateTicket(ctx context.Context, input api.CreateTicketInput) (*domain.Ticket, error) {
	f.record("CreateTicket")
	if f.CreateTicketFn != nil {
		return f.CreateTicketFn(ctx, input)
	}
	return &domain.Ticket{}, nil
}

func (f *Fake) SendMessage(ctx context.Context, ticketID string, input api.SendInput) (*domain.Message, error) {
	f.record("SendMessage")
	if f.SendMessageFn != nil {
		return f.SendMessageFn(ctx, ticketID, input)
	}
	return &domain.Message{}, nil
}

func (f *Fake) Upload(ctx context.Context, ticketID, filename string, r io.Reader, size int64) (*domain.Attachment, error) {
	f.record("Upload")
	if f.UploadFn != nil {
		return f.UploadFn(ctx, ticketID, filename, r, size)
	}
	return &domain.Attachment{Filename: filename, Size: size}, nil
}

func (f *Fake) Download(ctx context.Context, filename string) (io.ReadCloser, error) {
	f.record("Download")
	if f.DownloadFn != nil {
		return f.DownloadFn(ctx, filename)
	}
	return nil, nil
}

func (f *Fake) MarkRead(ctx context.Context, ticketID string, messageIDs []string) error {
	f.record("MarkRead")
	if f.MarkReadFn != nil {
		return f.MarkReadFn(ctx, ticketID, messageIDs)
	}
	return nil
}

func (f *Fake) EmitTyping(ctx context.Context, ticketID string, isTyping bool) error {
	f.record("EmitTyping")
	if f.EmitTypingFn != nil {
		return f.EmitTypingFn(ctx, ticketID, isTyping)
	}
	return nil
}

func (f *Fake) FetchTyping(ctx context.Context, ticketID string) (*domain.TypingState, error) {
	f.record("FetchTyping")
	if f.FetchTypingFn != nil {
		return f.FetchTypingFn(ctx, ticketID)
	}
	return &domain.TypingState{}, nil
}

func (f *Fake) SetStatus(ctx context.Context, ticketID string, status domain.TicketStatus) (*domain.Ticket, error) {
	f.record("SetStatus")
	if f.SetStatusFn != nil {
		return f.SetStatusFn(ctx, ticketID, status)
	}
	return &domain.Ticket{ID: ticketID, Status: status}, nil
}

func (f *Fake) SetPriority(ctx context.Context, ticketID string, priority domain.TicketPriority) (*domain.Ticket, error) {
	f.record("SetPriority")
	if f.SetPriorityFn != nil {
		return f.SetPriorityFn(ctx, ticketID, priority)
	}
	return &domain.Ticket{ID: ticketID, Priority: priority}, nil
}
