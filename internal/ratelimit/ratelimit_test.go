package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedRateLimiter_Burst(t *testing.T) {
	cases := []struct {
		name    string
		burst   int
		calls   int
		allowed int
	}{
		{name: "within burst", burst: 3, calls: 3, allowed: 3},
		{name: "over burst", burst: 2, calls: 5, allowed: 2},
		{name: "single token", burst: 1, calls: 4, allowed: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// A very slow refill keeps the bucket from topping up mid-test.
			rl := New(0.001, tc.burst)
			t.Cleanup(rl.Stop)

			got := 0
			for range tc.calls {
				if rl.Allow("203.0.113.7") {
					got++
				}
			}
			assert.Equal(t, tc.allowed, got)
		})
	}
}

func TestKeyedRateLimiter_ClientsAreIndependent(t *testing.T) {
	rl := New(0.001, 1)
	t.Cleanup(rl.Stop)

	require.True(t, rl.Allow("198.51.100.1"))
	assert.False(t, rl.Allow("198.51.100.1"))

	assert.True(t, rl.Allow("198.51.100.2"), "a second client has its own bucket")
	assert.Equal(t, 2, rl.Len())
}

func TestKeyedRateLimiter_Wait(t *testing.T) {
	rl := New(0.001, 1)
	t.Cleanup(rl.Stop)

	// The first token is available immediately.
	require.NoError(t, rl.Wait(context.Background(), "ui"))

	// The next one would take far longer than the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx, "ui"))
}

func TestKeyedRateLimiter_EvictIdle(t *testing.T) {
	rl := NewWithTTL(1, 1, time.Hour)
	t.Cleanup(rl.Stop)

	clock := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	rl.Allow("stale")
	clock = clock.Add(45 * time.Minute)
	rl.Allow("active")

	clock = clock.Add(30 * time.Minute)
	assert.Equal(t, 1, rl.evictIdle())
	assert.Equal(t, 1, rl.Len())

	// The stale client comes back to a full bucket.
	assert.True(t, rl.Allow("stale"))
	assert.Equal(t, 2, rl.Len())
}

func TestKeyedRateLimiter_StopTwice(t *testing.T) {
	rl := New(1, 1)
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}
