package drafts

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// NewTicketKey is the sentinel draft key for the create-ticket composer.
const NewTicketKey = "new"

// KV is the persistence behind the draft store.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Store holds per-ticket compose text outside any UI surface, so drafts
// survive remounts and ticket switches. Writes are debounced; reads see
// the latest keystroke immediately through the pending overlay.
type Store struct {
	kv       KV
	debounce time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]string
	timers  map[string]*time.Timer
}

// NewStore builds a draft store over the given backend.
func NewStore(kv KV, debounce time.Duration, logger *zap.Logger) *Store {
	if debounce <= 0 {
		debounce = 600 * time.Millisecond
	}
	return &Store{
		kv:       kv,
		debounce: debounce,
		logger:   logger,
		pending:  make(map[string]string),
		timers:   make(map[string]*time.Timer),
	}
}

// Set records the current compose text for a ticket. The backend write
// happens after the debounce window; rapid keystrokes reset it.
func (s *Store) Set(ticketID, text string) {
	key := keyOr(ticketID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[key] = text
	if timer, ok := s.timers[key]; ok {
		timer.Reset(s.debounce)
		return
	}
	s.timers[key] = time.AfterFunc(s.debounce, func() {
		s.flush(key)
	})
}

// Get restores the draft for a ticket, preferring unflushed keystrokes.
func (s *Store) Get(ctx context.Context, ticketID string) string {
	key := keyOr(ticketID)

	s.mu.Lock()
	if text, ok := s.pending[key]; ok {
		s.mu.Unlock()
		return text
	}
	s.mu.Unlock()

	text, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logger.Warn("draft read failed", zap.String("key", key), zap.Error(err))
		return ""
	}
	if !ok {
		return ""
	}
	return text
}

// Clear drops the draft after a successful send.
func (s *Store) Clear(ctx context.Context, ticketID string) {
	key := keyOr(ticketID)

	s.mu.Lock()
	if timer, ok := s.timers[key]; ok {
		timer.Stop()
		delete(s.timers, key)
	}
	delete(s.pending, key)
	s.mu.Unlock()

	if err := s.kv.Delete(ctx, key); err != nil {
		s.logger.Warn("draft delete failed", zap.String("key", key), zap.Error(err))
	}
}

// Flush force-writes every pending draft, for shutdown paths.
func (s *Store) Flush(ctx context.Context) {
	s.mu.Lock()
	keys := make([]string, 0, len(s.pending))
	for key := range s.pending {
		keys = append(keys, key)
	}
	s.mu.Unlock()

	for _, key := range keys {
		s.flush(key)
	}
}

func (s *Store) flush(key string) {
	s.mu.Lock()
	text, ok := s.pending[key]
	delete(s.pending, key)
	if timer, exists := s.timers[key]; exists {
		timer.Stop()
		delete(s.timers, key)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.kv.Set(ctx, key, text); err != nil {
		s.logger.Warn("draft write failed", zap.String("key", key), zap.Error(err))
	}
}

func keyOr(ticketID string) string {
	if ticketID == "" {
		return NewTicketKey
	}
	return ticketID
}

// memoryKV is the default in-process backend.
type memoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryKV builds an in-memory draft backend.
func NewMemoryKV() KV {
	return &memoryKV{data: make(map[string]string)}
}

func (m *memoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.data[key]
	return value, ok, nil
}

func (m *memoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
