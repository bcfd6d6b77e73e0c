package composer

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/api"
	"github.com/spec-kit/support-chat/internal/domain"
	"github.com/spec-kit/support-chat/internal/drafts"
	"github.com/spec-kit/support-chat/internal/events"
	"github.com/spec-kit/support-chat/internal/syncer"
	"github.com/spec-kit/support-chat/internal/typing"
	apperrors "github.com/spec-kit/support-chat/pkg/util"
)

// Composer owns outgoing message construction. On success the server's
// returned message is the canonical one appended to the log; on failure
// the draft and staged attachments stay put so the user can retry.
type Composer struct {
	api      api.TicketAPI
	role     domain.Role
	store    *syncer.TicketStore
	messages *syncer.MessageSync
	drafts   *drafts.Store
	stager   *Stager
	presence *typing.Presence
	events   events.Dispatcher
	logger   *zap.Logger
}

// Dependencies bundles the collaborators a composer writes through.
type Dependencies struct {
	API      api.TicketAPI
	Role     domain.Role
	Store    *syncer.TicketStore
	Messages *syncer.MessageSync
	Drafts   *drafts.Store
	Stager   *Stager
	Presence *typing.Presence
	Events   events.Dispatcher
	Logger   *zap.Logger
}

// New constructs the composer.
func New(deps Dependencies) *Composer {
	return &Composer{
		api:      deps.API,
		role:     deps.Role,
		store:    deps.Store,
		messages: deps.Messages,
		drafts:   deps.Drafts,
		stager:   deps.Stager,
		presence: deps.Presence,
		events:   deps.Events,
		logger:   deps.Logger,
	}
}

// Send posts a message to an existing ticket. Closed tickets reject
// seller sends before any network call; admins may still reply.
func (c *Composer) Send(ctx context.Context, ticketID, text string, internal bool) (*domain.Message, error) {
	if ticket, ok := c.store.Get(ticketID); ok && c.role == domain.RoleSeller && ticket.IsClosed() {
		return nil, apperrors.NewValidationError("ticket is closed", map[string]any{"ticket_id": ticketID})
	}

	attachments := c.stager.Staged()
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return nil, apperrors.NewValidationError("message text or an attachment is required", nil)
	}

	msg, err := c.api.SendMessage(ctx, ticketID, api.SendInput{
		Text:        text,
		Attachments: attachments,
		Internal:    internal && c.role == domain.RoleAdmin,
	})
	if err != nil {
		return nil, err
	}

	c.messages.ApplyLocal(ctx, *msg)
	c.drafts.Clear(ctx, ticketID)
	c.stager.ConsumeAll()
	c.presence.StopTyping(ctx)
	return msg, nil
}

// CreateTicket opens a new ticket carrying the first message and any
// staged attachments. Selection of the new ticket is the caller's move.
func (c *Composer) CreateTicket(ctx context.Context, subject, category string, priority domain.TicketPriority, text string) (*domain.Ticket, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, apperrors.NewValidationError("subject is required", nil)
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewValidationError("an opening message is required", nil)
	}
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !domain.ValidPriority(priority) {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}

	ticket, err := c.api.CreateTicket(ctx, api.CreateTicketInput{
		Subject:     subject,
		Category:    category,
		Priority:    priority,
		Text:        text,
		Attachments: c.stager.Staged(),
	})
	if err != nil {
		return nil, err
	}

	c.store.Upsert(ctx, *ticket)
	c.drafts.Clear(ctx, drafts.NewTicketKey)
	c.stager.ConsumeAll()
	if c.events != nil {
		_ = c.events.Publish(ctx, events.Event{
			Type:     events.EventTicketCreated,
			TicketID: ticket.ID,
			Payload:  events.TicketCreatedPayload{Ticket: *ticket},
		})
	}
	return ticket, nil
}

// Stager exposes the attachment stage for the UI surface.
func (c *Composer) Stager() *Stager {
	return c.stager
}
