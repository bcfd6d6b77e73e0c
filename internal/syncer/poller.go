package syncer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/observability"
)

// Poller runs a task at a fixed interval with an explicit start/stop
// lifecycle. Ticks are skipped while the surface is hidden; regaining
// visibility fires immediately instead of waiting out the interval.
type Poller struct {
	name     string
	interval time.Duration
	task     func(context.Context)
	logger   *zap.Logger
	metrics  *observability.Metrics

	mu      sync.Mutex
	cancel  context.CancelFunc
	kick    chan struct{}
	visible bool
	running bool
}

// NewPoller builds a stopped poller. The task must be safe to call from
// a single background goroutine.
func NewPoller(name string, interval time.Duration, logger *zap.Logger, metrics *observability.Metrics, task func(context.Context)) *Poller {
	return &Poller{
		name:     name,
		interval: interval,
		task:     task,
		logger:   logger,
		metrics:  metrics,
		visible:  true,
	}
}

// Start launches the polling loop with an immediate first tick. Calling
// Start on a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.kick = make(chan struct{}, 1)
	p.running = true
	kick := p.kick
	p.mu.Unlock()

	go p.loop(runCtx, kick)
}

// Stop halts the loop. In-flight task invocations are not interrupted;
// their results are expected to be discarded by staleness checks.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.cancel()
	p.cancel = nil
	p.kick = nil
	p.running = false
}

// SetVisible gates ticking on document visibility. Becoming visible
// schedules an immediate tick.
func (p *Poller) SetVisible(visible bool) {
	p.mu.Lock()
	wasVisible := p.visible
	p.visible = visible
	kick := p.kick
	running := p.running
	p.mu.Unlock()

	if visible && !wasVisible && running {
		select {
		case kick <- struct{}{}:
		default:
		}
	}
}

// Kick schedules an immediate tick outside the regular cadence.
func (p *Poller) Kick() {
	p.mu.Lock()
	kick := p.kick
	running := p.running
	p.mu.Unlock()
	if !running {
		return
	}
	select {
	case kick <- struct{}{}:
	default:
	}
}

func (p *Poller) isVisible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

func (p *Poller) loop(ctx context.Context, kick chan struct{}) {
	p.runTask(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.isVisible() {
				p.runTask(ctx)
			}
		case <-kick:
			p.runTask(ctx)
		}
	}
}

func (p *Poller) runTask(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	p.metrics.RecordTick(p.name)
	p.task(ctx)
}
