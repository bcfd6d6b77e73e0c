package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/api"
	"github.com/spec-kit/support-chat/internal/api/apitest"
	"github.com/spec-kit/support-chat/internal/domain"
	"github.com/spec-kit/support-chat/internal/events"
	"github.com/spec-kit/support-chat/internal/observability"
	apperrors "github.com/spec-kit/support-chat/pkg/util"
)

// eventSink collects dispatched events so ticks can be asserted on.
type eventSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *eventSink) subscribe(d events.Dispatcher, types ...events.EventType) {
	for _, typ := range types {
		d.Subscribe(typ, func(_ context.Context, e events.Event) error {
			s.mu.Lock()
			s.events = append(s.events, e)
			s.mu.Unlock()
			return nil
		})
	}
}

func (s *eventSink) count(typ events.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func newTestMessageSync(fake *apitest.Fake, role domain.Role, pageSize int) (*MessageSync, *eventSink) {
	dispatcher := events.NewInMemoryDispatcher()
	sink := &eventSink{}
	sink.subscribe(dispatcher, events.EventMessageReceived, events.EventMessageSent, events.EventSyncError)

	s := NewMessageSync(fake, dispatcher, zap.NewNop(), observability.NewMetrics(), role, time.Hour, pageSize)
	return s, sink
}

// bind points the sync at a ticket without starting the background
// poller, so ticks can be driven by hand.
func (s *MessageSync) bind(ticketID string) {
	s.mu.Lock()
	s.ticketID = ticketID
	s.mu.Unlock()
}

func unreadFrom(role domain.Role, id string, minute int) domain.Message {
	m := msg(id, minute)
	m.SenderRole = role
	return m
}

func TestMessageSyncFirstLoadIsHistory(t *testing.T) {
	t.Parallel()

	fake := apitest.New()
	fake.FetchMessagesFn = func(context.Context, string, int, int) (*api.MessagePage, error) {
		return &api.MessagePage{Messages: []domain.Message{
			unreadFrom(domain.RoleAdmin, "a", 1),
			unreadFrom(domain.RoleAdmin, "b", 2),
		}}, nil
	}

	s, sink := newTestMessageSync(fake, domain.RoleSeller, 10)
	s.bind("t1")
	s.headTick(context.Background())

	if got := len(s.Messages()); got != 2 {
		t.Fatalf("log length = %d, want 2", got)
	}
	if got := sink.count(events.EventMessageReceived); got != 0 {
		t.Errorf("message_received events on initial load = %d, want 0", got)
	}
	if got := fake.Calls("MarkRead"); got != 0 {
		t.Errorf("MarkRead calls on initial load = %d, want 0", got)
	}
}

func TestMessageSyncMarksNewMessagesReadOnce(t *testing.T) {
	t.Parallel()

	page := []domain.Message{unreadFrom(domain.RoleAdmin, "a", 1)}
	var pageMu sync.Mutex
	fake := apitest.New()
	fake.FetchMessagesFn = func(context.Context, string, int, int) (*api.MessagePage, error) {
		pageMu.Lock()
		defer pageMu.Unlock()
		out := make([]domain.Message, len(page))
		copy(out, page)
		return &api.MessagePage{Messages: out}, nil
	}
	var markedIDs []string
	fake.MarkReadFn = func(_ context.Context, _ string, ids []string) error {
		markedIDs = append(markedIDs, ids...)
		return nil
	}

	s, sink := newTestMessageSync(fake, domain.RoleSeller, 10)
	s.bind("t1")
	s.headTick(context.Background())

	pageMu.Lock()
	page = append(page, unreadFrom(domain.RoleAdmin, "b", 2))
	pageMu.Unlock()

	// Several polls observe the same unread message before the server
	// reflects the read state; only the first may mark it.
	s.headTick(context.Background())
	s.headTick(context.Background())
	s.headTick(context.Background())

	if got := fake.Calls("MarkRead"); got != 1 {
		t.Errorf("MarkRead calls = %d, want 1", got)
	}
	if len(markedIDs) != 1 || markedIDs[0] != "b" {
		t.Errorf("marked ids = %v, want [b]", markedIDs)
	}
	if got := sink.count(events.EventMessageReceived); got != 1 {
		t.Errorf("message_received events = %d, want 1", got)
	}
}

func TestMessageSyncOwnMessagesAreNotFresh(t *testing.T) {
	t.Parallel()

	page := []domain.Message{}
	var pageMu sync.Mutex
	fake := apitest.New()
	fake.FetchMessagesFn = func(context.Context, string, int, int) (*api.MessagePage, error) {
		pageMu.Lock()
		defer pageMu.Unlock()
		out := make([]domain.Message, len(page))
		copy(out, page)
		return &api.MessagePage{Messages: out}, nil
	}

	s, sink := newTestMessageSync(fake, domain.RoleSeller, 10)
	s.bind("t1")
	s.headTick(context.Background())

	pageMu.Lock()
	page = append(page, unreadFrom(domain.RoleSeller, "mine", 1))
	pageMu.Unlock()
	s.headTick(context.Background())

	if got := sink.count(events.EventMessageReceived); got != 0 {
		t.Errorf("message_received events for own message = %d, want 0", got)
	}
	if got := fake.Calls("MarkRead"); got != 0 {
		t.Errorf("MarkRead calls for own message = %d, want 0", got)
	}
}

func TestMessageSyncLoadOlderPrependsWithoutNotifying(t *testing.T) {
	t.Parallel()

	head := []domain.Message{
		unreadFrom(domain.RoleAdmin, "c", 3),
		unreadFrom(domain.RoleAdmin, "d", 4),
		unreadFrom(domain.RoleAdmin, "e", 5),
	}
	older := []domain.Message{
		unreadFrom(domain.RoleAdmin, "a", 1),
		unreadFrom(domain.RoleAdmin, "b", 2),
	}
	fake := apitest.New()
	fake.FetchMessagesFn = func(_ context.Context, _ string, _, offset int) (*api.MessagePage, error) {
		if offset == 0 {
			return &api.MessagePage{Messages: head, HasMore: true}, nil
		}
		return &api.MessagePage{Messages: older, HasMore: false}, nil
	}

	s, sink := newTestMessageSync(fake, domain.RoleSeller, 3)
	s.bind("t1")
	s.headTick(context.Background())

	if err := s.LoadOlder(context.Background()); err != nil {
		t.Fatalf("LoadOlder() error = %v", err)
	}

	want := []string{"a", "b", "c", "d", "e"}
	if got := ids(s.Messages()); !equalIDs(got, want) {
		t.Errorf("log ids = %v, want %v", got, want)
	}
	if s.Cursor().HasMore() {
		t.Error("HasMore() = true after exhausted page, want false")
	}
	if got := sink.count(events.EventMessageReceived); got != 0 {
		t.Errorf("message_received events from pagination = %d, want 0", got)
	}
	if got := fake.Calls("MarkRead"); got != 0 {
		t.Errorf("MarkRead calls from pagination = %d, want 0", got)
	}

	// A head refetch overlapping the paginated history must not
	// re-notify or duplicate.
	s.headTick(context.Background())
	if got := ids(s.Messages()); !equalIDs(got, want) {
		t.Errorf("log ids after refetch = %v, want %v", got, want)
	}
	if got := sink.count(events.EventMessageReceived); got != 0 {
		t.Errorf("message_received events after refetch = %d, want 0", got)
	}
}

func TestMessageSyncLoadOlderFailureKeepsHasMore(t *testing.T) {
	t.Parallel()

	fake := apitest.New()
	fake.FetchMessagesFn = func(_ context.Context, _ string, _, offset int) (*api.MessagePage, error) {
		if offset == 0 {
			return &api.MessagePage{HasMore: true}, nil
		}
		return nil, apperrors.NewAPIError(500, "boom", nil)
	}

	s, _ := newTestMessageSync(fake, domain.RoleSeller, 10)
	s.bind("t1")
	s.headTick(context.Background())

	if err := s.LoadOlder(context.Background()); err == nil {
		t.Fatal("LoadOlder() error = nil, want error")
	}
	if !s.Cursor().HasMore() {
		t.Error("HasMore() = false after failed load, want true for retry")
	}
	if s.Cursor().Loading() {
		t.Error("Loading() = true after failed load, want latch released")
	}
}

func TestMessageSyncLoadOlderSwallowsRateLimit(t *testing.T) {
	t.Parallel()

	fake := apitest.New()
	fake.FetchMessagesFn = func(_ context.Context, _ string, _, offset int) (*api.MessagePage, error) {
		if offset == 0 {
			return &api.MessagePage{HasMore: true}, nil
		}
		return nil, apperrors.NewRateLimited()
	}

	s, _ := newTestMessageSync(fake, domain.RoleSeller, 10)
	s.bind("t1")
	s.headTick(context.Background())

	if err := s.LoadOlder(context.Background()); err != nil {
		t.Errorf("LoadOlder() error = %v, want rate limit swallowed", err)
	}
}

func TestMessageSyncDiscardsResponseAfterCursorReset(t *testing.T) {
	t.Parallel()

	fake := apitest.New()
	s, _ := newTestMessageSync(fake, domain.RoleSeller, 10)
	fake.FetchMessagesFn = func(context.Context, string, int, int) (*api.MessagePage, error) {
		// The ticket switched while this fetch was in flight.
		s.cursor.Reset()
		return &api.MessagePage{Messages: []domain.Message{msg("stale", 1)}}, nil
	}

	s.bind("t1")
	s.headTick(context.Background())

	if got := len(s.Messages()); got != 0 {
		t.Errorf("log length = %d, want stale response dropped", got)
	}
}

func TestMessageSyncApplyLocalCollapsesWithNextPoll(t *testing.T) {
	t.Parallel()

	sent := unreadFrom(domain.RoleSeller, "sent", 1)
	sent.TicketID = "t1"
	fake := apitest.New()
	fake.FetchMessagesFn = func(context.Context, string, int, int) (*api.MessagePage, error) {
		return &api.MessagePage{Messages: []domain.Message{sent}}, nil
	}

	s, sink := newTestMessageSync(fake, domain.RoleSeller, 10)
	s.bind("t1")
	s.headTick(context.Background())

	s.ApplyLocal(context.Background(), sent)
	if got := sink.count(events.EventMessageSent); got != 1 {
		t.Errorf("message_sent events = %d, want 1", got)
	}

	s.headTick(context.Background())
	if got := len(s.Messages()); got != 1 {
		t.Errorf("log length = %d, want 1 after redelivery", got)
	}
}

func TestMessageSyncApplyLocalIgnoresOtherTickets(t *testing.T) {
	t.Parallel()

	other := msg("x", 1)
	other.TicketID = "t2"

	s, _ := newTestMessageSync(apitest.New(), domain.RoleSeller, 10)
	s.bind("t1")
	s.ApplyLocal(context.Background(), other)

	if got := len(s.Messages()); got != 0 {
		t.Errorf("log length = %d, want 0", got)
	}
}

func TestMessageSyncErrorPublishesSyncError(t *testing.T) {
	t.Parallel()

	fake := apitest.New()
	fake.FetchMessagesFn = func(context.Context, string, int, int) (*api.MessagePage, error) {
		return nil, apperrors.NewAPIError(500, "boom", nil)
	}

	s, sink := newTestMessageSync(fake, domain.RoleSeller, 10)
	s.bind("t1")
	s.headTick(context.Background())

	if got := sink.count(events.EventSyncError); got != 1 {
		t.Errorf("sync_error events = %d, want 1", got)
	}
}

func TestMessageSyncRateLimitedPollIsSilent(t *testing.T) {
	t.Parallel()

	fake := apitest.New()
	fake.FetchMessagesFn = func(context.Context, string, int, int) (*api.MessagePage, error) {
		return nil, apperrors.NewRateLimited()
	}

	s, sink := newTestMessageSync(fake, domain.RoleSeller, 10)
	s.bind("t1")
	s.headTick(context.Background())

	if got := sink.count(events.EventSyncError); got != 0 {
		t.Errorf("sync_error events on 429 = %d, want 0", got)
	}
}
