package syncer

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/api"
	"github.com/spec-kit/support-chat/internal/domain"
	"github.com/spec-kit/support-chat/internal/events"
	apperrors "github.com/spec-kit/support-chat/pkg/util"
)

// TicketStore is the authoritative client-side cache of the ticket
// list. The backend owns ticket data; the store mutates it locally only
// for status/priority edits pending server confirmation and for zeroing
// unread counts on selection.
type TicketStore struct {
	api    api.TicketAPI
	events events.Dispatcher
	logger *zap.Logger

	mu            sync.RWMutex
	order         []string
	byID          map[string]domain.Ticket
	activeID      string
	unreadTotal   int
	unreadTickets int
}

// NewTicketStore builds an empty store.
func NewTicketStore(backend api.TicketAPI, dispatcher events.Dispatcher, logger *zap.Logger) *TicketStore {
	return &TicketStore{
		api:    backend,
		events: dispatcher,
		logger: logger,
		byID:   make(map[string]domain.Ticket),
	}
}

// ReplaceAll swaps in a freshly fetched list, recomputes the unread
// aggregate, and emits change events. The active ticket survives even
// if the current filter excludes it.
func (s *TicketStore) ReplaceAll(ctx context.Context, tickets []domain.Ticket) {
	s.mu.Lock()
	active, hasActive := s.byID[s.activeID]

	s.order = s.order[:0]
	s.byID = make(map[string]domain.Ticket, len(tickets))
	for _, t := range tickets {
		s.order = append(s.order, t.ID)
		s.byID[t.ID] = t
	}
	if hasActive {
		if _, present := s.byID[s.activeID]; !present {
			s.byID[s.activeID] = active
			s.order = append(s.order, s.activeID)
		}
	}
	changed := s.recomputeUnreadLocked()
	s.mu.Unlock()

	s.publish(ctx, events.Event{Type: events.EventTicketListUpdated})
	if changed {
		s.publishUnread(ctx)
	}
}

// Select makes a ticket active and, when it has unread messages, issues
// exactly one mark-read call for this selection. Subsequent polls never
// re-trigger it; only another Select can.
func (s *TicketStore) Select(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	s.mu.Lock()
	ticket, ok := s.byID[ticketID]
	if !ok {
		s.mu.Unlock()
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	s.activeID = ticketID
	hadUnread := ticket.UnreadCount > 0
	if hadUnread {
		ticket.UnreadCount = 0
		s.byID[ticketID] = ticket
	}
	changed := s.recomputeUnreadLocked()
	s.mu.Unlock()

	if hadUnread {
		if err := s.api.MarkRead(ctx, ticketID, nil); err != nil && !apperrors.IsRateLimited(err) {
			s.logger.Warn("mark-read on select failed", zap.String("ticket_id", ticketID), zap.Error(err))
		}
	}

	s.publish(ctx, events.Event{Type: events.EventTicketSelected, TicketID: ticketID})
	if changed {
		s.publishUnread(ctx)
	}
	return &ticket, nil
}

// Deselect clears the active ticket when the chat surface closes.
func (s *TicketStore) Deselect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = ""
}

// Active returns the currently selected ticket.
func (s *TicketStore) Active() (domain.Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[s.activeID]
	return t, ok
}

// Get returns a ticket by id.
func (s *TicketStore) Get(ticketID string) (domain.Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[ticketID]
	return t, ok
}

// All returns the tickets in server order.
func (s *TicketStore) All() []domain.Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Ticket, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// UnreadSummary returns the aggregate driving the badge affordance.
func (s *TicketStore) UnreadSummary() (total, ticketsWithUnread int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unreadTotal, s.unreadTickets
}

// Upsert inserts or replaces one ticket, newest first.
func (s *TicketStore) Upsert(ctx context.Context, ticket domain.Ticket) {
	s.mu.Lock()
	if _, exists := s.byID[ticket.ID]; !exists {
		s.order = append([]string{ticket.ID}, s.order...)
	}
	s.byID[ticket.ID] = ticket
	changed := s.recomputeUnreadLocked()
	s.mu.Unlock()

	s.publish(ctx, events.Event{Type: events.EventTicketListUpdated, TicketID: ticket.ID})
	if changed {
		s.publishUnread(ctx)
	}
}

// SetStatus applies an admin status edit optimistically and rolls it
// back if the backend rejects it.
func (s *TicketStore) SetStatus(ctx context.Context, ticketID string, status domain.TicketStatus) error {
	if !domain.ValidStatus(status) {
		return apperrors.NewValidationError("unknown status", map[string]any{"status": status})
	}
	return s.patch(ctx, ticketID,
		func(t *domain.Ticket) { t.Status = status },
		func() (*domain.Ticket, error) { return s.api.SetStatus(ctx, ticketID, status) },
	)
}

// SetPriority applies an admin priority edit optimistically and rolls
// it back if the backend rejects it.
func (s *TicketStore) SetPriority(ctx context.Context, ticketID string, priority domain.TicketPriority) error {
	if !domain.ValidPriority(priority) {
		return apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}
	return s.patch(ctx, ticketID,
		func(t *domain.Ticket) { t.Priority = priority },
		func() (*domain.Ticket, error) { return s.api.SetPriority(ctx, ticketID, priority) },
	)
}

func (s *TicketStore) patch(ctx context.Context, ticketID string, apply func(*domain.Ticket), confirm func() (*domain.Ticket, error)) error {
	s.mu.Lock()
	previous, ok := s.byID[ticketID]
	if !ok {
		s.mu.Unlock()
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	updated := previous
	apply(&updated)
	s.byID[ticketID] = updated
	s.mu.Unlock()

	confirmed, err := confirm()
	s.mu.Lock()
	if err != nil {
		s.byID[ticketID] = previous
	} else if confirmed != nil {
		s.byID[ticketID] = *confirmed
	}
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.publish(ctx, events.Event{Type: events.EventTicketListUpdated, TicketID: ticketID})
	return nil
}

// recomputeUnreadLocked refreshes the aggregate. Caller holds s.mu.
func (s *TicketStore) recomputeUnreadLocked() bool {
	total, count := 0, 0
	for _, id := range s.order {
		t := s.byID[id]
		if t.UnreadCount > 0 {
			total += t.UnreadCount
			count++
		}
	}
	changed := total != s.unreadTotal || count != s.unreadTickets
	s.unreadTotal = total
	s.unreadTickets = count
	return changed
}

func (s *TicketStore) publish(ctx context.Context, event events.Event) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(ctx, event)
}

func (s *TicketStore) publishUnread(ctx context.Context) {
	total, count := s.UnreadSummary()
	s.publish(ctx, events.Event{
		Type:    events.EventUnreadChanged,
		Payload: events.UnreadChangedPayload{TotalUnread: total, TicketsWithUnread: count},
	})
}
