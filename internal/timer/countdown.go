package timer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Remaining returns the whole seconds left until end, never negative.
func Remaining(end, now time.Time) int {
	ms := end.Sub(now).Milliseconds()
	if ms <= 0 {
		return 0
	}
	return int(math.Round(float64(ms) / 1000))
}

// EncodeEndTime formats a deadline as milliseconds since epoch.
func EncodeEndTime(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// DecodeEndTime parses a value written by EncodeEndTime.
func DecodeEndTime(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode end time %q: %w", raw, err)
	}
	return time.UnixMilli(ms), nil
}

// Countdown manages the persisted entries of a single attempt.
type Countdown struct {
	store     Store
	keys      Keys
	ttl       time.Duration
	reasonTTL time.Duration
}

// NewCountdown binds a store to one attempt. ttl bounds the lifetime of the
// deadline entry beyond the deadline itself; reasonTTL bounds how long a
// disqualification stays visible. Zero means no expiry.
func NewCountdown(store Store, keys Keys, ttl, reasonTTL time.Duration) *Countdown {
	return &Countdown{store: store, keys: keys, ttl: ttl, reasonTTL: reasonTTL}
}

// Keys returns the key scope of the countdown.
func (c *Countdown) Keys() Keys {
	return c.keys
}

// Begin computes and persists the deadline now + duration.
func (c *Countdown) Begin(ctx context.Context, now time.Time, duration time.Duration) (time.Time, error) {
	end := now.Add(duration)
	return end, c.Persist(ctx, end)
}

// Persist writes an absolute deadline.
func (c *Countdown) Persist(ctx context.Context, end time.Time) error {
	ttl := c.ttl
	if ttl > 0 {
		ttl += time.Until(end)
		if ttl <= 0 {
			ttl = c.ttl
		}
	}
	if err := c.store.Set(ctx, c.keys.EndTime(), EncodeEndTime(end), ttl); err != nil {
		return fmt.Errorf("persist end time: %w", err)
	}
	return nil
}

// EndTime reads the persisted deadline. ok is false when no entry exists.
func (c *Countdown) EndTime(ctx context.Context) (end time.Time, ok bool, err error) {
	raw, err := c.store.Get(ctx, c.keys.EndTime())
	if errors.Is(err, ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read end time: %w", err)
	}
	end, err = DecodeEndTime(raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return end, true, nil
}

// SetRisk records the environment risk level accepted at launch.
func (c *Countdown) SetRisk(ctx context.Context, level string, end time.Time) error {
	ttl := c.ttl
	if ttl > 0 {
		ttl += time.Until(end)
	}
	return c.store.Set(ctx, c.keys.Risk(), level, ttl)
}

// Risk returns the recorded risk level or "" when none exists.
func (c *Countdown) Risk(ctx context.Context) (string, error) {
	raw, err := c.store.Get(ctx, c.keys.Risk())
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return raw, err
}

// Clear removes the deadline and risk entries.
func (c *Countdown) Clear(ctx context.Context) error {
	return c.store.Delete(ctx, c.keys.EndTime(), c.keys.Risk())
}

// Disqualify clears the deadline and records the reason.
func (c *Countdown) Disqualify(ctx context.Context, reason string) error {
	if err := c.Clear(ctx); err != nil {
		return err
	}
	return c.store.Set(ctx, c.keys.Reason(), reason, c.reasonTTL)
}

// Reason returns the recorded disqualification reason or "" when none exists.
func (c *Countdown) Reason(ctx context.Context) (string, error) {
	raw, err := c.store.Get(ctx, c.keys.Reason())
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return raw, err
}

// ClearReason removes the recorded disqualification reason.
func (c *Countdown) ClearReason(ctx context.Context) error {
	return c.store.Delete(ctx, c.keys.Reason())
}
