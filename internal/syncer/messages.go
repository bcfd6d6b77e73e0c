package syncer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/api"
	"github.com/spec-kit/support-chat/internal/domain"
	"github.com/spec-kit/support-chat/internal/events"
	"github.com/spec-kit/support-chat/internal/observability"
	apperrors "github.com/spec-kit/support-chat/pkg/util"
)

// MessageSync keeps one ticket's message log in step with the backend
// by polling the head page and merging pagination loads. It owns the
// log; the composer appends through ApplyLocal, never directly.
type MessageSync struct {
	api      api.TicketAPI
	events   events.Dispatcher
	logger   *zap.Logger
	metrics  *observability.Metrics
	selfRole domain.Role

	cursor *PaginationCursor
	poller *Poller

	mu       sync.Mutex
	ticketID string
	log      []domain.Message
	seller   *domain.Creator
	// processed counts log entries already accounted for by the
	// new-message path. Comparing against it (not a boolean) is what
	// keeps mark-read at most once even when several ticks observe the
	// same unread condition before the round trip lands.
	processed  int
	primed     bool
	issuedSeq  uint64
	appliedSeq uint64
}

// NewMessageSync builds a sync for the given role. Watch starts it.
func NewMessageSync(backend api.TicketAPI, dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics, selfRole domain.Role, interval time.Duration, pageSize int) *MessageSync {
	s := &MessageSync{
		api:      backend,
		events:   dispatcher,
		logger:   logger,
		metrics:  metrics,
		selfRole: selfRole,
		cursor:   NewCursor(pageSize),
	}
	s.poller = NewPoller("messages", interval, logger, metrics, s.headTick)
	return s
}

// Watch switches the sync to a ticket. The cursor resets synchronously
// before the first fetch is scheduled so no page of the previous ticket
// can land in the new one.
func (s *MessageSync) Watch(ctx context.Context, ticketID string) {
	s.poller.Stop()

	s.mu.Lock()
	s.ticketID = ticketID
	s.log = nil
	s.seller = nil
	s.processed = 0
	s.primed = false
	s.mu.Unlock()

	s.cursor.Reset()
	s.poller.Start(ctx)
}

// Stop tears the poller down when the surface closes. In-flight fetch
// results are discarded by the generation check.
func (s *MessageSync) Stop() {
	s.poller.Stop()
	s.mu.Lock()
	s.ticketID = ""
	s.mu.Unlock()
	s.cursor.Reset()
}

// SetVisible pauses polling while the surface is hidden.
func (s *MessageSync) SetVisible(visible bool) {
	s.poller.SetVisible(visible)
}

// Refresh schedules an immediate head fetch.
func (s *MessageSync) Refresh() {
	s.poller.Kick()
}

// Cursor exposes the pagination state for the surface.
func (s *MessageSync) Cursor() *PaginationCursor {
	return s.cursor
}

// Messages returns a snapshot of the merged log, ascending by created_at.
func (s *MessageSync) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.log))
	copy(out, s.log)
	return out
}

// Seller returns the seller profile delivered on the admin detail view.
func (s *MessageSync) Seller() *domain.Creator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seller
}

// headTick fetches the live head page (offset 0), merges it, and reacts
// to newly observed messages from the other party.
func (s *MessageSync) headTick(ctx context.Context) {
	s.mu.Lock()
	ticketID := s.ticketID
	s.issuedSeq++
	seq := s.issuedSeq
	s.mu.Unlock()
	if ticketID == "" {
		return
	}
	generation := s.cursor.Generation()

	page, err := s.api.FetchMessages(ctx, ticketID, s.cursor.PageSize(), 0)
	if err != nil {
		if apperrors.IsRateLimited(err) {
			return
		}
		s.metrics.RecordError("messages", apperrors.ToDomainError(err).Code)
		s.logger.Warn("message poll failed", zap.String("ticket_id", ticketID), zap.Error(err))
		s.publish(ctx, events.Event{
			Type:     events.EventSyncError,
			TicketID: ticketID,
			Payload:  events.SyncErrorPayload{Op: "fetch_messages", Error: err.Error()},
		})
		return
	}

	s.mu.Lock()
	if s.ticketID != ticketID || generation != s.cursor.Generation() || seq <= s.appliedSeq {
		s.mu.Unlock()
		s.metrics.RecordStaleDrop("messages")
		return
	}
	s.appliedSeq = seq
	s.log = MergeMessages(s.log, page.Messages)
	if page.Seller != nil {
		s.seller = page.Seller
	}

	var fresh []domain.Message
	total := len(s.log)
	if !s.primed {
		// The initial load is history, not a new-message event; the
		// selection path already handled its unread count.
		s.primed = true
		s.processed = total
	} else if total > s.processed {
		for _, msg := range s.log[s.processed:] {
			if msg.SenderRole == s.selfRole.Opposite() && !msg.IsRead {
				fresh = append(fresh, msg)
			}
		}
		s.processed = total
	}
	s.mu.Unlock()

	s.cursor.UpdateHasMore(generation, page.HasMore)

	if len(fresh) == 0 {
		return
	}
	s.publish(ctx, events.Event{
		Type:     events.EventMessageReceived,
		TicketID: ticketID,
		Payload:  events.MessageReceivedPayload{Messages: fresh},
	})

	ids := make([]string, 0, len(fresh))
	for _, msg := range fresh {
		ids = append(ids, msg.ID)
	}
	if err := s.api.MarkRead(ctx, ticketID, ids); err != nil && !apperrors.IsRateLimited(err) {
		s.metrics.RecordError("messages", apperrors.ToDomainError(err).Code)
		s.logger.Warn("mark-read failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

// LoadOlder fetches the next older page and prepends it to the log.
// No-op while a load runs or when the history is exhausted.
func (s *MessageSync) LoadOlder(ctx context.Context) error {
	s.mu.Lock()
	ticketID := s.ticketID
	s.mu.Unlock()
	if ticketID == "" {
		return nil
	}

	offset, generation, ok := s.cursor.LoadMore()
	if !ok {
		return nil
	}

	page, err := s.api.FetchMessages(ctx, ticketID, s.cursor.PageSize(), offset)
	if err != nil {
		// Release the latch but keep has_more so the user can retry.
		s.cursor.FinishLoad(generation, true)
		if apperrors.IsRateLimited(err) {
			return nil
		}
		s.metrics.RecordError("messages", apperrors.ToDomainError(err).Code)
		return err
	}

	s.mu.Lock()
	if s.ticketID != ticketID || generation != s.cursor.Generation() {
		s.mu.Unlock()
		s.metrics.RecordStaleDrop("messages")
		return nil
	}
	before := len(s.log)
	s.log = MergeMessages(s.log, page.Messages)
	// Older history is never a new-message event.
	s.processed += len(s.log) - before
	s.mu.Unlock()

	s.cursor.FinishLoad(generation, page.HasMore)
	return nil
}

// ApplyLocal folds the canonical message returned by a send into the
// log. The next poll redelivering the same id is collapsed by the merge.
func (s *MessageSync) ApplyLocal(ctx context.Context, msg domain.Message) {
	s.mu.Lock()
	if s.ticketID != msg.TicketID {
		s.mu.Unlock()
		return
	}
	before := len(s.log)
	s.log = MergeMessages(s.log, []domain.Message{msg})
	s.processed += len(s.log) - before
	s.mu.Unlock()

	s.publish(ctx, events.Event{
		Type:     events.EventMessageSent,
		TicketID: msg.TicketID,
		Payload:  events.MessageSentPayload{Message: msg},
	})
}

func (s *MessageSync) publish(ctx context.Context, event events.Event) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(ctx, event)
}
