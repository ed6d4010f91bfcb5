package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/franklinjsmith-create/SupplyVerify/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(clock *fakeClock, opts ...MemoryStoreOption) *MemoryStore {
	return NewMemoryStore(Retention{}, append([]MemoryStoreOption{WithClock(clock.Now)}, opts...)...)
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(newFakeClock())

	if err := store.Create(ctx, "s1", 3, "alice"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	sess, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Expected to retrieve session: %v", err)
	}
	if sess.Status != model.SessionPending || sess.Total != 3 || sess.Owner != "alice" {
		t.Errorf("Unexpected session: %+v", sess)
	}
	if sess.Results == nil || len(sess.Results) != 0 {
		t.Errorf("Expected empty non-nil results, got %v", sess.Results)
	}

	if err := store.Create(ctx, "s1", 1, ""); !errors.Is(err, ErrSessionExists) {
		t.Errorf("Expected ErrSessionExists, got %v", err)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemoryStoreGetReturnsSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(newFakeClock())
	store.Create(ctx, "s1", 2, "")
	store.MarkProcessing(ctx, "s1")
	store.AppendResult(ctx, "s1", model.VerificationResult{ID: "1"})

	snap, _ := store.Get(ctx, "s1")
	snap.Results[0].ID = "mutated"
	snap.Completed = 99

	again, _ := store.Get(ctx, "s1")
	if again.Results[0].ID != "1" || again.Completed != 1 {
		t.Errorf("Expected store to be unaffected by snapshot changes, got %+v", again)
	}
}

func TestMemoryStoreStateMachine(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(newFakeClock())
	store.Create(ctx, "s1", 1, "")

	if err := store.AppendResult(ctx, "s1", model.VerificationResult{}); !errors.Is(err, ErrSessionState) {
		t.Errorf("Expected ErrSessionState appending to pending session, got %v", err)
	}
	if err := store.Complete(ctx, "s1"); !errors.Is(err, ErrSessionState) {
		t.Errorf("Expected ErrSessionState completing pending session, got %v", err)
	}

	if err := store.MarkProcessing(ctx, "s1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := store.MarkProcessing(ctx, "s1"); !errors.Is(err, ErrSessionState) {
		t.Errorf("Expected ErrSessionState on second MarkProcessing, got %v", err)
	}
	if err := store.SetCurrent(ctx, "s1", "Farm A"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := store.AppendResult(ctx, "s1", model.VerificationResult{ID: "1"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := store.AppendResult(ctx, "s1", model.VerificationResult{ID: "2"}); !errors.Is(err, ErrSessionState) {
		t.Errorf("Expected ErrSessionState beyond total, got %v", err)
	}
	if err := store.Complete(ctx, "s1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	sess, _ := store.Get(ctx, "s1")
	if sess.Status != model.SessionCompleted || sess.Current != "" || sess.Completed != 1 {
		t.Errorf("Unexpected completed session: %+v", sess)
	}

	mutators := map[string]func() error{
		"MarkProcessing": func() error { return store.MarkProcessing(ctx, "s1") },
		"SetCurrent":     func() error { return store.SetCurrent(ctx, "s1", "x") },
		"AppendResult":   func() error { return store.AppendResult(ctx, "s1", model.VerificationResult{}) },
		"Complete":       func() error { return store.Complete(ctx, "s1") },
		"Fail":           func() error { return store.Fail(ctx, "s1", "late") },
	}
	for name, mutate := range mutators {
		if err := mutate(); !errors.Is(err, ErrSessionTerminal) {
			t.Errorf("%s: expected ErrSessionTerminal, got %v", name, err)
		}
	}

	after, _ := store.Get(ctx, "s1")
	if after.Status != model.SessionCompleted || after.Error != "" || len(after.Results) != 1 {
		t.Errorf("Terminal session changed: %+v", after)
	}
}

func TestMemoryStoreFailFromPending(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(newFakeClock())
	store.Create(ctx, "s1", 0, "")

	if err := store.Fail(ctx, "s1", "No operations to verify"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	sess, _ := store.Get(ctx, "s1")
	if sess.Status != model.SessionError || sess.Error != "No operations to verify" {
		t.Errorf("Unexpected session: %+v", sess)
	}
}

func TestMemoryStoreRetention(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := newTestStore(clock)

	store.Create(ctx, "done", 0, "")
	store.MarkProcessing(ctx, "done")
	store.Complete(ctx, "done")

	store.Create(ctx, "failed", 0, "")
	store.Fail(ctx, "failed", "boom")

	store.Create(ctx, "running", 1, "")
	store.MarkProcessing(ctx, "running")

	clock.Advance(59 * time.Second)
	if _, err := store.Get(ctx, "failed"); err != nil {
		t.Errorf("Expected failed session to be readable within a minute: %v", err)
	}

	clock.Advance(time.Second)
	if _, err := store.Get(ctx, "failed"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected failed session to expire after a minute, got %v", err)
	}
	if _, err := store.Get(ctx, "done"); err != nil {
		t.Errorf("Expected completed session to survive a minute: %v", err)
	}

	clock.Advance(4 * time.Minute)
	if _, err := store.Get(ctx, "done"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected completed session to expire after five minutes, got %v", err)
	}

	clock.Advance(time.Hour)
	if _, err := store.Get(ctx, "running"); err != nil {
		t.Errorf("Expected running session to never expire: %v", err)
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := newTestStore(clock)

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("s%d", i)
		store.Create(ctx, id, 0, "")
		store.Fail(ctx, id, "boom")
	}
	store.Create(ctx, "pending", 1, "")

	if n := store.Sweep(); n != 0 {
		t.Errorf("Expected nothing swept before expiry, got %d", n)
	}
	clock.Advance(2 * time.Minute)
	if n := store.Sweep(); n != 3 {
		t.Errorf("Expected 3 sessions swept, got %d", n)
	}
	if store.Count() != 1 {
		t.Errorf("Expected 1 session left, got %d", store.Count())
	}
}

func TestMemoryStoreRunStopsOnCancel(t *testing.T) {
	store := NewMemoryStore(Retention{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		store.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected Run to return after cancel")
	}
}

func TestMemoryStoreMaxSessionsEvictsFinishedFirst(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := newTestStore(clock, WithMaxSessions(2))

	store.Create(ctx, "old-running", 1, "")
	clock.Advance(time.Second)
	store.Create(ctx, "finished", 0, "")
	store.Fail(ctx, "finished", "boom")
	clock.Advance(time.Second)
	store.Create(ctx, "new", 1, "")

	if _, err := store.Get(ctx, "finished"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected finished session to be evicted, got %v", err)
	}
	if _, err := store.Get(ctx, "old-running"); err != nil {
		t.Errorf("Expected running session to be kept: %v", err)
	}

	store.Create(ctx, "newer", 1, "")
	if store.Count() != 3 {
		t.Errorf("Expected running sessions to exceed the cap rather than be evicted, got %d", store.Count())
	}
}
