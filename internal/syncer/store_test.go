package syncer

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/api/apitest"
	"github.com/spec-kit/support-chat/internal/domain"
	"github.com/spec-kit/support-chat/internal/events"
	apperrors "github.com/spec-kit/support-chat/pkg/util"
)

func ticket(id string, unread int) domain.Ticket {
	return domain.Ticket{ID: id, Subject: "subject " + id, Status: domain.TicketStatusOpen, UnreadCount: unread}
}

func newTestStore(fake *apitest.Fake) (*TicketStore, *eventSink) {
	dispatcher := events.NewInMemoryDispatcher()
	sink := &eventSink{}
	sink.subscribe(dispatcher, events.EventTicketListUpdated, events.EventUnreadChanged, events.EventTicketSelected)
	return NewTicketStore(fake, dispatcher, zap.NewNop()), sink
}

func TestTicketStoreSelectMarksReadOncePerSelection(t *testing.T) {
	t.Parallel()

	fake := apitest.New()
	store, _ := newTestStore(fake)
	store.ReplaceAll(context.Background(), []domain.Ticket{ticket("t1", 3)})

	if _, err := store.Select(context.Background(), "t1"); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got := fake.Calls("MarkRead"); got != 1 {
		t.Fatalf("MarkRead calls = %d, want 1", got)
	}
	if active, _ := store.Active(); active.UnreadCount != 0 {
		t.Errorf("active unread = %d, want 0", active.UnreadCount)
	}

	// Re-selecting the now-read ticket must not fire another call.
	if _, err := store.Select(context.Background(), "t1"); err != nil {
		t.Fatalf("second Select() error = %v", err)
	}
	if got := fake.Calls("MarkRead"); got != 1 {
		t.Errorf("MarkRead calls after reselect = %d, want 1", got)
	}
}

func TestTicketStoreSelectUnknownTicket(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(apitest.New())
	_, err := store.Select(context.Background(), "missing")
	if err == nil {
		t.Fatal("Select() error = nil, want not found")
	}
	if apperrors.ToDomainError(err).Code != "NOT_FOUND" {
		t.Errorf("error code = %s, want NOT_FOUND", apperrors.ToDomainError(err).Code)
	}
}

func TestTicketStoreReplaceAllKeepsActiveTicket(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(apitest.New())
	store.ReplaceAll(context.Background(), []domain.Ticket{ticket("t1", 0), ticket("t2", 0)})
	if _, err := store.Select(context.Background(), "t1"); err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	// A filtered refresh that excludes the open ticket must not evict it.
	store.ReplaceAll(context.Background(), []domain.Ticket{ticket("t2", 0)})

	if _, ok := store.Active(); !ok {
		t.Error("active ticket evicted by a filtered refresh")
	}
	if _, ok := store.Get("t1"); !ok {
		t.Error("Get(t1) missing after filtered refresh")
	}
}

func TestTicketStoreUnreadAggregate(t *testing.T) {
	t.Parallel()

	store, sink := newTestStore(apitest.New())
	store.ReplaceAll(context.Background(), []domain.Ticket{
		ticket("t1", 2),
		ticket("t2", 0),
		ticket("t3", 5),
	})

	total, count := store.UnreadSummary()
	if total != 7 || count != 2 {
		t.Errorf("UnreadSummary() = (%d, %d), want (7, 2)", total, count)
	}
	if got := sink.count(events.EventUnreadChanged); got != 1 {
		t.Errorf("unread_changed events = %d, want 1", got)
	}

	// An identical refresh must not re-announce the badge.
	store.ReplaceAll(context.Background(), []domain.Ticket{
		ticket("t1", 2),
		ticket("t2", 0),
		ticket("t3", 5),
	})
	if got := sink.count(events.EventUnreadChanged); got != 1 {
		t.Errorf("unread_changed events after no-op refresh = %d, want 1", got)
	}
}

func TestTicketStoreUpsertPrependsNewTicket(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(apitest.New())
	store.ReplaceAll(context.Background(), []domain.Ticket{ticket("t1", 0)})
	store.Upsert(context.Background(), ticket("t2", 0))

	all := store.All()
	if len(all) != 2 || all[0].ID != "t2" {
		t.Errorf("All() order = %v, want t2 first", idsOf(all))
	}
}

func idsOf(tickets []domain.Ticket) []string {
	out := make([]string, len(tickets))
	for i, t := range tickets {
		out[i] = t.ID
	}
	return out
}

func TestTicketStoreSetStatusRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	fake := apitest.New()
	fake.SetStatusFn = func(context.Context, string, domain.TicketStatus) (*domain.Ticket, error) {
		return nil, apperrors.NewAPIError(500, "boom", nil)
	}
	store, _ := newTestStore(fake)
	store.ReplaceAll(context.Background(), []domain.Ticket{ticket("t1", 0)})

	err := store.SetStatus(context.Background(), "t1", domain.TicketStatusClosed)
	if err == nil {
		t.Fatal("SetStatus() error = nil, want error")
	}
	got, _ := store.Get("t1")
	if got.Status != domain.TicketStatusOpen {
		t.Errorf("status after rollback = %s, want open", got.Status)
	}
}

func TestTicketStoreSetStatusAdoptsServerCopy(t *testing.T) {
	t.Parallel()

	fake := apitest.New()
	fake.SetStatusFn = func(_ context.Context, id string, status domain.TicketStatus) (*domain.Ticket, error) {
		confirmed := ticket(id, 0)
		confirmed.Status = status
		confirmed.Subject = "renamed by server"
		return &confirmed, nil
	}
	store, _ := newTestStore(fake)
	store.ReplaceAll(context.Background(), []domain.Ticket{ticket("t1", 0)})

	if err := store.SetStatus(context.Background(), "t1", domain.TicketStatusClosed); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	got, _ := store.Get("t1")
	if got.Status != domain.TicketStatusClosed || got.Subject != "renamed by server" {
		t.Errorf("ticket = %+v, want server copy adopted", got)
	}
}

func TestTicketStoreSetPriorityRejectsUnknownValue(t *testing.T) {
	t.Parallel()

	fake := apitest.New()
	store, _ := newTestStore(fake)
	store.ReplaceAll(context.Background(), []domain.Ticket{ticket("t1", 0)})

	if err := store.SetPriority(context.Background(), "t1", "critical"); err == nil {
		t.Fatal("SetPriority() error = nil, want validation error")
	}
	if got := fake.Calls("SetPriority"); got != 0 {
		t.Errorf("SetPriority API calls = %d, want 0 for invalid input", got)
	}
}
