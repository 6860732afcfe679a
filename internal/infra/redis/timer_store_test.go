package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"proctor-session-service/internal/timer"
)

func TestTimerStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewTimerStore(newClient(mr))

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, timer.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, err := store.Get(ctx, "k"); err != nil || v != "v" {
		t.Fatalf("expected v, got %q (%v)", v, err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, "k"); !errors.Is(err, timer.ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
	if err := store.Delete(ctx); err != nil {
		t.Fatalf("delete without keys: %v", err)
	}
}

func TestTimerStorePersistsCountdownKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	keys := timer.Keys{UserID: "u1", AssessmentID: "go-101"}
	countdown := timer.NewCountdown(NewTimerStore(newClient(mr)), keys, time.Hour, 24*time.Hour)
	end := time.Now().Add(10 * time.Minute)

	if err := countdown.Persist(ctx, end); err != nil {
		t.Fatalf("persist: %v", err)
	}
	got, err := mr.Get("assessment:u1:go-101:end_time")
	if err != nil {
		t.Fatalf("expected end time key: %v", err)
	}
	if got != timer.EncodeEndTime(end) {
		t.Fatalf("expected ms since epoch, got %q", got)
	}

	if err := countdown.Disqualify(ctx, "Screenshot attempt detected"); err != nil {
		t.Fatalf("disqualify: %v", err)
	}
	if mr.Exists("assessment:u1:go-101:end_time") {
		t.Fatalf("disqualification must clear the deadline")
	}
	reason, err := mr.Get("assessment:u1:go-101:disqualification_reason")
	if err != nil || reason != "Screenshot attempt detected" {
		t.Fatalf("expected stored reason, got %q (%v)", reason, err)
	}
}
