package timer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore map[string]string

func (m mapStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m mapStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	m[key] = value
	return nil
}

func (m mapStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m, k)
	}
	return nil
}

func TestRemainingTracksWallClock(t *testing.T) {
	t0 := time.UnixMilli(1_700_000_000_000)
	duration := 1 * time.Minute
	end := t0.Add(duration)

	for elapsed := time.Duration(0); elapsed <= duration; elapsed += 250 * time.Millisecond {
		want := int((duration - elapsed + 500*time.Millisecond) / time.Second)
		assert.Equal(t, want, Remaining(end, t0.Add(elapsed)), "elapsed %s", elapsed)
	}
	assert.Equal(t, 0, Remaining(end, end))
	assert.Equal(t, 0, Remaining(end, end.Add(time.Hour)))
}

func TestEndTimeRoundTrip(t *testing.T) {
	end := time.UnixMilli(1_700_000_123_456)
	decoded, err := DecodeEndTime(EncodeEndTime(end))
	require.NoError(t, err)
	assert.True(t, end.Equal(decoded))

	_, err = DecodeEndTime("soon")
	assert.Error(t, err)
}

func TestCountdownLifecycle(t *testing.T) {
	ctx := context.Background()
	store := mapStore{}
	keys := Keys{UserID: "u1", AssessmentID: "a1"}
	cd := NewCountdown(store, keys, time.Hour, time.Hour)

	now := time.UnixMilli(1_700_000_000_000)
	end, err := cd.Begin(ctx, now, 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "1700000120000", store["assessment:u1:a1:end_time"])

	got, ok, err := cd.EndTime(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, end.Equal(got))

	require.NoError(t, cd.SetRisk(ctx, "high", end))
	require.NoError(t, cd.Disqualify(ctx, "Tab switching detected"))

	_, ok, err = cd.EndTime(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	risk, err := cd.Risk(ctx)
	require.NoError(t, err)
	assert.Empty(t, risk)

	reason, err := cd.Reason(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Tab switching detected", reason)

	require.NoError(t, cd.ClearReason(ctx))
	reason, err = cd.Reason(ctx)
	require.NoError(t, err)
	assert.Empty(t, reason)
}
