package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterAllowsBurstThenRefills(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(Config{RPS: 10, Burst: 2})
	l.now = func() time.Time { return now }

	require.True(t, l.Allow("a"))
	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))
	require.True(t, l.Allow("b"), "keys have independent buckets")

	now = now.Add(100 * time.Millisecond)
	require.True(t, l.Allow("a"))
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	for range 100 {
		require.True(t, l.Allow("a"))
	}
	require.Zero(t, l.Len())
}

func TestLimiterEvictsIdleKeys(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(Config{RPS: 1, Burst: 1})
	l.now = func() time.Time { return now }

	l.Allow("a")
	l.Allow("b")
	require.Equal(t, 2, l.Len())

	now = now.Add(idleTTL + time.Minute)
	l.Allow("c")
	require.Equal(t, 1, l.Len())
}

func TestClientKey(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.1.2.3:5555"
	require.Equal(t, "10.1.2.3", ClientKey(r))
	r.RemoteAddr = "pipe"
	require.Equal(t, "pipe", ClientKey(r))
}
