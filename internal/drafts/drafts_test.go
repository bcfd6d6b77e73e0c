package drafts

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestDraftIsolationPerTicket(t *testing.T) {
	t.Parallel()

	store := NewStore(NewMemoryKV(), time.Millisecond, zap.NewNop())
	ctx := context.Background()

	store.Set("a", "draft for A")
	store.Set("b", "draft for B")

	if got := store.Get(ctx, "a"); got != "draft for A" {
		t.Errorf("Get(a) = %q, want %q", got, "draft for A")
	}
	if got := store.Get(ctx, "b"); got != "draft for B" {
		t.Errorf("Get(b) = %q, want %q", got, "draft for B")
	}

	// Switching back and forth never cross-pollinates.
	if got := store.Get(ctx, "a"); got != "draft for A" {
		t.Errorf("Get(a) after switch = %q, want %q", got, "draft for A")
	}
}

func TestDraftPendingOverlayBeatsBackend(t *testing.T) {
	t.Parallel()

	kv := NewMemoryKV()
	_ = kv.Set(context.Background(), "a", "stale persisted text")

	store := NewStore(kv, time.Hour, zap.NewNop())
	store.Set("a", "latest keystroke")

	if got := store.Get(context.Background(), "a"); got != "latest keystroke" {
		t.Errorf("Get(a) = %q, want the unflushed keystroke", got)
	}
}

func TestDraftDebouncedWriteReachesBackend(t *testing.T) {
	t.Parallel()

	kv := NewMemoryKV()
	store := NewStore(kv, 5*time.Millisecond, zap.NewNop())
	store.Set("a", "first")
	store.Set("a", "second")

	deadline := time.Now().Add(2 * time.Second)
	for {
		value, ok, _ := kv.Get(context.Background(), "a")
		if ok {
			if value != "second" {
				t.Errorf("persisted draft = %q, want %q", value, "second")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("debounced write never reached the backend")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDraftClearDropsPendingAndPersisted(t *testing.T) {
	t.Parallel()

	kv := NewMemoryKV()
	_ = kv.Set(context.Background(), "a", "persisted")

	store := NewStore(kv, time.Hour, zap.NewNop())
	store.Set("a", "pending")
	store.Clear(context.Background(), "a")

	if got := store.Get(context.Background(), "a"); got != "" {
		t.Errorf("Get(a) after Clear = %q, want empty", got)
	}
	if _, ok, _ := kv.Get(context.Background(), "a"); ok {
		t.Error("backend still holds the draft after Clear")
	}

	// The stopped timer must not resurrect the cleared draft.
	time.Sleep(10 * time.Millisecond)
	if _, ok, _ := kv.Get(context.Background(), "a"); ok {
		t.Error("cleared draft was flushed by a stale timer")
	}
}

func TestDraftFlushWritesEverythingPending(t *testing.T) {
	t.Parallel()

	kv := NewMemoryKV()
	store := NewStore(kv, time.Hour, zap.NewNop())
	store.Set("a", "text a")
	store.Set("", "new ticket text")

	store.Flush(context.Background())

	if value, ok, _ := kv.Get(context.Background(), "a"); !ok || value != "text a" {
		t.Errorf("flushed a = (%q, %v), want (text a, true)", value, ok)
	}
	if value, ok, _ := kv.Get(context.Background(), NewTicketKey); !ok || value != "new ticket text" {
		t.Errorf("flushed %s = (%q, %v), want (new ticket text, true)", NewTicketKey, value, ok)
	}
}

func TestDraftEmptyTicketIDUsesNewTicketKey(t *testing.T) {
	t.Parallel()

	store := NewStore(NewMemoryKV(), time.Hour, zap.NewNop())
	store.Set("", "launcher draft")

	if got := store.Get(context.Background(), NewTicketKey); got != "launcher draft" {
		t.Errorf("Get(%s) = %q, want %q", NewTicketKey, got, "launcher draft")
	}
}
