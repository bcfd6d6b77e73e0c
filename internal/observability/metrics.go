package observability

import "sync"

// Metrics provides basic in-memory counters for the polling engine.
type Metrics struct {
	mu        sync.Mutex
	tickCount map[string]int64
	errCount  map[string]int64
	staleDrop map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		tickCount: make(map[string]int64),
		errCount:  make(map[string]int64),
		staleDrop: make(map[string]int64),
	}
}

// RecordTick increments the tick counter for a polling task.
func (m *Metrics) RecordTick(task string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickCount[task]++
}

// RecordError increments the error counter for a polling task.
func (m *Metrics) RecordError(task, code string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errCount[task+"|"+code]++
}

// RecordStaleDrop counts responses discarded because the subscription
// changed while the request was in flight.
func (m *Metrics) RecordStaleDrop(task string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staleDrop[task]++
}

// Snapshot returns copies of the counters, keyed by task.
func (m *Metrics) Snapshot() (ticks, errs, drops map[string]int64) {
	if m == nil {
		return nil, nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyCounts(m.tickCount), copyCounts(m.errCount), copyCounts(m.staleDrop)
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
