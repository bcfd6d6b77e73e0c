package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/api"
	"github.com/spec-kit/support-chat/internal/composer"
	"github.com/spec-kit/support-chat/internal/config"
	"github.com/spec-kit/support-chat/internal/domain"
	"github.com/spec-kit/support-chat/internal/drafts"
	"github.com/spec-kit/support-chat/internal/events"
	"github.com/spec-kit/support-chat/internal/observability"
	"github.com/spec-kit/support-chat/internal/syncer"
	"github.com/spec-kit/support-chat/internal/typing"
)

// Engine wires the sync components for one chat surface and owns their
// lifecycle: list polling while the surface is open, per-ticket pollers
// while a ticket is selected, everything torn down on close.
type Engine struct {
	role     domain.Role
	logger   *zap.Logger
	metrics  *observability.Metrics
	events   events.Dispatcher
	store    *syncer.TicketStore
	list     *syncer.TicketListSync
	messages *syncer.MessageSync
	presence *typing.Presence
	drafts   *drafts.Store
	composer *composer.Composer
}

// New assembles an engine for the given role over the given backend.
func New(cfg *config.Config, backend api.TicketAPI, role domain.Role, draftKV drafts.KV, logger *zap.Logger) *Engine {
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	store := syncer.NewTicketStore(backend, dispatcher, logger)
	list := syncer.NewTicketListSync(backend, store, logger, metrics, cfg.Sync.ListInterval())
	messages := syncer.NewMessageSync(backend, dispatcher, logger, metrics, role, cfg.Sync.MessageInterval(), cfg.Sync.PageSize)
	presence := typing.NewPresence(backend, dispatcher, logger, metrics, cfg.Sync.TypingInterval(), cfg.Sync.TypingThrottle(), cfg.Sync.TypingWindow())
	draftStore := drafts.NewStore(draftKV, cfg.Drafts.Debounce(), logger)
	stager := composer.NewStager(backend, role, cfg.Upload, logger)

	comp := composer.New(composer.Dependencies{
		API:      backend,
		Role:     role,
		Store:    store,
		Messages: messages,
		Drafts:   draftStore,
		Stager:   stager,
		Presence: presence,
		Events:   dispatcher,
		Logger:   logger,
	})

	return &Engine{
		role:     role,
		logger:   logger,
		metrics:  metrics,
		events:   dispatcher,
		store:    store,
		list:     list,
		messages: messages,
		presence: presence,
		drafts:   draftStore,
		composer: comp,
	}
}

// Start begins list polling for the surface.
func (e *Engine) Start(ctx context.Context) {
	e.list.Start(ctx)
}

// Stop tears down every poller and flushes pending drafts.
func (e *Engine) Stop(ctx context.Context) {
	e.messages.Stop()
	e.presence.Stop(ctx)
	e.list.Stop()
	e.store.Deselect()
	e.drafts.Flush(ctx)
}

// SelectTicket makes a ticket active: cursor reset, message and typing
// pollers rebound, selection mark-read handled by the store.
func (e *Engine) SelectTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := e.store.Select(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	e.messages.Watch(ctx, ticketID)
	e.presence.Watch(ctx, ticketID)
	return ticket, nil
}

// CloseTicket stops the per-ticket pollers while keeping the list live.
func (e *Engine) CloseTicket(ctx context.Context) {
	e.messages.Stop()
	e.presence.Stop(ctx)
	e.store.Deselect()
}

// CreateTicket opens a ticket and selects it, per the launcher flow.
func (e *Engine) CreateTicket(ctx context.Context, subject, category string, priority domain.TicketPriority, text string) (*domain.Ticket, error) {
	ticket, err := e.composer.CreateTicket(ctx, subject, category, priority, text)
	if err != nil {
		return nil, err
	}
	if _, err := e.SelectTicket(ctx, ticket.ID); err != nil {
		return ticket, err
	}
	return ticket, nil
}

// SetVisible propagates document visibility to every poller.
func (e *Engine) SetVisible(visible bool) {
	e.list.SetVisible(visible)
	e.messages.SetVisible(visible)
	e.presence.SetVisible(visible)
}

// Role returns which side this engine drives.
func (e *Engine) Role() domain.Role { return e.role }

// Events exposes the dispatcher for surface subscriptions.
func (e *Engine) Events() events.Dispatcher { return e.events }

// Store exposes the ticket cache.
func (e *Engine) Store() *syncer.TicketStore { return e.store }

// List exposes the list sync (admins swap filters through it).
func (e *Engine) List() *syncer.TicketListSync { return e.list }

// Messages exposes the per-ticket message sync.
func (e *Engine) Messages() *syncer.MessageSync { return e.messages }

// Presence exposes the typing tracker.
func (e *Engine) Presence() *typing.Presence { return e.presence }

// Drafts exposes the draft store.
func (e *Engine) Drafts() *drafts.Store { return e.drafts }

// Composer exposes the outgoing-message controller.
func (e *Engine) Composer() *composer.Composer { return e.composer }

// Metrics exposes the poll counters.
func (e *Engine) Metrics() *observability.Metrics { return e.metrics }
