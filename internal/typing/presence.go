package typing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/api"
	"github.com/spec-kit/support-chat/internal/domain"
	"github.com/spec-kit/support-chat/internal/events"
	"github.com/spec-kit/support-chat/internal/observability"
	"github.com/spec-kit/support-chat/internal/syncer"
	apperrors "github.com/spec-kit/support-chat/pkg/util"
)

// Presence runs both halves of the typing protocol for one ticket:
// throttled local emission and polled remote observation. The remote
// flag is presence-by-absence: it only counts as typing while renewed
// within the freshness window, so a missed stop signal cannot leave the
// indicator stuck. Presence never touches message or ticket state.
type Presence struct {
	api      api.TicketAPI
	events   events.Dispatcher
	logger   *zap.Logger
	throttle time.Duration
	window   time.Duration
	poller   *syncer.Poller
	now      func() time.Time

	mu             sync.Mutex
	ticketID       string
	lastEmitAt     time.Time
	lastEmitTyping bool
	remote         domain.TypingState
	remoteSeenAt   time.Time
	reportedTyping bool
}

// NewPresence builds a stopped presence tracker.
func NewPresence(backend api.TicketAPI, dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics, interval, throttle, window time.Duration) *Presence {
	p := &Presence{
		api:      backend,
		events:   dispatcher,
		logger:   logger,
		throttle: throttle,
		window:   window,
		now:      time.Now,
	}
	p.poller = syncer.NewPoller("typing", interval, logger, metrics, p.tick)
	return p
}

// Watch binds the tracker to a ticket and starts polling the other
// party's flag.
func (p *Presence) Watch(ctx context.Context, ticketID string) {
	p.poller.Stop()

	p.mu.Lock()
	p.ticketID = ticketID
	p.lastEmitAt = time.Time{}
	p.lastEmitTyping = false
	p.remote = domain.TypingState{}
	p.remoteSeenAt = time.Time{}
	p.reportedTyping = false
	p.mu.Unlock()

	p.poller.Start(ctx)
}

// Stop tears the tracker down, clearing the local flag best-effort so
// the other party is not left watching a ghost.
func (p *Presence) Stop(ctx context.Context) {
	p.mu.Lock()
	ticketID := p.ticketID
	wasTyping := p.lastEmitTyping
	p.ticketID = ""
	p.mu.Unlock()

	p.poller.Stop()
	if wasTyping && ticketID != "" {
		p.emit(ctx, ticketID, false)
	}
}

// SetVisible pauses remote polling while the surface is hidden.
func (p *Presence) SetVisible(visible bool) {
	p.poller.SetVisible(visible)
}

// InputChanged reacts to a keystroke. Non-empty input emits a throttled
// typing signal; emptying the composer stops it immediately.
func (p *Presence) InputChanged(ctx context.Context, text string) {
	p.mu.Lock()
	ticketID := p.ticketID
	if ticketID == "" {
		p.mu.Unlock()
		return
	}

	if text == "" {
		shouldStop := p.lastEmitTyping
		p.mu.Unlock()
		if shouldStop {
			p.emit(ctx, ticketID, false)
		}
		return
	}

	// Coalesce rapid keystrokes: renew only after the throttle gap, or
	// immediately on the idle-to-typing transition.
	if p.lastEmitTyping && p.now().Sub(p.lastEmitAt) < p.throttle {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.emit(ctx, ticketID, true)
}

// StopTyping clears the local flag, used after a successful send.
func (p *Presence) StopTyping(ctx context.Context) {
	p.mu.Lock()
	ticketID := p.ticketID
	wasTyping := p.lastEmitTyping
	p.mu.Unlock()
	if ticketID == "" || !wasTyping {
		return
	}
	p.emit(ctx, ticketID, false)
}

// Remote reports whether the other party is typing right now. The
// fetched flag only counts within the freshness window.
func (p *Presence) Remote() (userName string, isTyping bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote.UserName, p.remoteFreshLocked()
}

func (p *Presence) remoteFreshLocked() bool {
	if !p.remote.IsTyping {
		return false
	}
	return p.now().Sub(p.remoteSeenAt) <= p.window
}

func (p *Presence) emit(ctx context.Context, ticketID string, isTyping bool) {
	p.mu.Lock()
	p.lastEmitAt = p.now()
	p.lastEmitTyping = isTyping
	p.mu.Unlock()

	if err := p.api.EmitTyping(ctx, ticketID, isTyping); err != nil && !apperrors.IsRateLimited(err) {
		p.logger.Warn("typing emit failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}
}

func (p *Presence) tick(ctx context.Context) {
	p.mu.Lock()
	ticketID := p.ticketID
	p.mu.Unlock()
	if ticketID == "" {
		return
	}

	state, err := p.api.FetchTyping(ctx, ticketID)
	if err != nil {
		if apperrors.IsRateLimited(err) {
			return
		}
		p.logger.Warn("typing poll failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return
	}

	p.mu.Lock()
	if p.ticketID != ticketID {
		p.mu.Unlock()
		return
	}
	if state != nil && state.IsTyping {
		p.remote = *state
		p.remoteSeenAt = p.now()
	} else {
		p.remote.IsTyping = false
	}
	typingNow := p.remoteFreshLocked()
	transition := typingNow != p.reportedTyping
	p.reportedTyping = typingNow
	userName := p.remote.UserName
	p.mu.Unlock()

	if transition && p.events != nil {
		_ = p.events.Publish(ctx, events.Event{
			Type:     events.EventTypingChanged,
			TicketID: ticketID,
			Payload:  events.TypingChangedPayload{UserName: userName, IsTyping: typingNow},
		})
	}
}
