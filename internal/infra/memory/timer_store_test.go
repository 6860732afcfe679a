package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"proctor-session-service/internal/timer"
)

func TestTimerStoreExpiresEntries(t *testing.T) {
	ctx := context.Background()
	store := NewTimerStore()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	store.clock = func() time.Time { return now }

	if err := store.Set(ctx, "end", "1709283600000", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "reason", "Screenshot attempt detected", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, err := store.Get(ctx, "end"); err != nil || v != "1709283600000" {
		t.Fatalf("expected stored value, got %q (%v)", v, err)
	}

	now = now.Add(time.Minute)
	if _, err := store.Get(ctx, "end"); !errors.Is(err, timer.ErrNotFound) {
		t.Fatalf("expected expired entry, got %v", err)
	}
	if _, err := store.Get(ctx, "reason"); err != nil {
		t.Fatalf("entry without ttl should not expire: %v", err)
	}

	if err := store.Delete(ctx, "reason", "unknown"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "reason"); !errors.Is(err, timer.ErrNotFound) {
		t.Fatalf("expected deleted entry, got %v", err)
	}
}

func TestTimerStoreBacksCountdown(t *testing.T) {
	ctx := context.Background()
	countdown := timer.NewCountdown(NewTimerStore(), timer.Keys{UserID: "u1", AssessmentID: "go-101"}, time.Hour, time.Hour)
	end := time.Now().Add(10 * time.Minute).Truncate(time.Millisecond)

	if err := countdown.Persist(ctx, end); err != nil {
		t.Fatalf("persist: %v", err)
	}
	got, ok, err := countdown.EndTime(ctx)
	if err != nil || !ok {
		t.Fatalf("expected persisted deadline, ok=%v err=%v", ok, err)
	}
	if !got.Equal(end) {
		t.Fatalf("expected %v, got %v", end, got)
	}
}
