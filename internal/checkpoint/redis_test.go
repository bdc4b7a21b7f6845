package checkpoint

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/ragbox/core-rag/internal/model"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error: %v", err)
	}
	t.Cleanup(mr.Close)

	b, err := New(Config{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestLoad_ReturnsNilForUnknownThread(t *testing.T) {
	b := newTestBackend(t)
	state, err := b.Load(context.Background(), "never-saved")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if state != nil {
		t.Errorf("Load() = %+v, want nil for an unknown thread", state)
	}
}

func TestSaveLoad_RoundTrips(t *testing.T) {
	b := newTestBackend(t)
	state := model.NewSessionState("thread-1")
	state.AppendMessage(model.RoleUser, "hello", state.UpdatedAt)

	if err := b.Save(context.Background(), state); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := b.Load(context.Background(), "thread-1")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.ThreadID != "thread-1" || len(loaded.History) != 1 {
		t.Errorf("Load() = %+v, want the saved state round-tripped", loaded)
	}
}

func TestDelete_RemovesPersistedState(t *testing.T) {
	b := newTestBackend(t)
	state := model.NewSessionState("thread-1")
	if err := b.Save(context.Background(), state); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	if err := b.Delete(context.Background(), "thread-1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	loaded, err := b.Load(context.Background(), "thread-1")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded != nil {
		t.Errorf("Load() after Delete = %+v, want nil", loaded)
	}
}

func TestList_ReturnsAllPersistedThreadIDs(t *testing.T) {
	b := newTestBackend(t)
	for _, id := range []string{"t1", "t2", "t3"} {
		if err := b.Save(context.Background(), model.NewSessionState(id)); err != nil {
			t.Fatalf("Save(%s) error: %v", id, err)
		}
	}

	ids, err := b.List(context.Background())
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("List() returned %d ids, want 3: %v", len(ids), ids)
	}
}

func TestPing_SucceedsAgainstALiveConnection(t *testing.T) {
	b := newTestBackend(t)
	if err := b.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error: %v", err)
	}
}
