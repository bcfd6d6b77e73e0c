package syncer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/api"
	"github.com/spec-kit/support-chat/internal/observability"
	apperrors "github.com/spec-kit/support-chat/pkg/util"
)

// TicketListSync polls the ticket list ("my tickets" for sellers,
// filtered for admins) and feeds refreshes into the TicketStore, which
// recomputes the unread aggregate on every pass.
type TicketListSync struct {
	api     api.TicketAPI
	store   *TicketStore
	logger  *zap.Logger
	metrics *observability.Metrics
	poller  *Poller

	mu     sync.Mutex
	filter api.ListFilter
}

// NewTicketListSync builds a stopped list sync.
func NewTicketListSync(backend api.TicketAPI, store *TicketStore, logger *zap.Logger, metrics *observability.Metrics, interval time.Duration) *TicketListSync {
	s := &TicketListSync{
		api:     backend,
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
	s.poller = NewPoller("ticket_list", interval, logger, metrics, s.tick)
	return s
}

// Start begins polling with an immediate fetch.
func (s *TicketListSync) Start(ctx context.Context) {
	s.poller.Start(ctx)
}

// Stop halts polling.
func (s *TicketListSync) Stop() {
	s.poller.Stop()
}

// SetVisible pauses polling while the surface is hidden.
func (s *TicketListSync) SetVisible(visible bool) {
	s.poller.SetVisible(visible)
}

// Refresh schedules an immediate fetch.
func (s *TicketListSync) Refresh() {
	s.poller.Kick()
}

// SetFilter swaps the admin list filter and refetches right away.
func (s *TicketListSync) SetFilter(filter api.ListFilter) {
	s.mu.Lock()
	s.filter = filter
	s.mu.Unlock()
	s.poller.Kick()
}

// Filter returns the current list filter.
func (s *TicketListSync) Filter() api.ListFilter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

func (s *TicketListSync) tick(ctx context.Context) {
	filter := s.Filter()

	tickets, err := s.api.ListTickets(ctx, filter)
	if err != nil {
		if apperrors.IsRateLimited(err) {
			return
		}
		s.metrics.RecordError("ticket_list", apperrors.ToDomainError(err).Code)
		s.logger.Warn("ticket list poll failed", zap.Error(err))
		return
	}

	// Discard responses for a filter that changed while in flight.
	if s.Filter() != filter {
		s.metrics.RecordStaleDrop("ticket_list")
		return
	}
	s.store.ReplaceAll(ctx, tickets)
}
