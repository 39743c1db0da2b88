package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterSpacesRequestsToSameHost(t *testing.T) {
	t.Parallel()

	l := New(Config{MinDelay: 100 * time.Millisecond})
	ctx := context.Background()

	// First call should be immediate.
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://www.moxfield.com/decks/abc"))
	require.Less(t, time.Since(start), 50*time.Millisecond)

	// Second call to the same host (www. ignored) waits for the delay.
	start = time.Now()
	require.NoError(t, l.Wait(ctx, "https://moxfield.com/decks/def"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterDifferentHostsDoNotBlock(t *testing.T) {
	t.Parallel()

	l := New(Config{MinDelay: time.Second})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example/1"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example/1"))
	require.Less(t, time.Since(start), 100*time.Millisecond, "host b blocked by host a")
}

func TestLimiterHostOverride(t *testing.T) {
	t.Parallel()

	l := New(Config{
		MinDelay:   5 * time.Second,
		HostDelays: map[string]time.Duration{"API.Scryfall.com": 0},
	})
	require.Equal(t, time.Duration(0), l.Delay("api.scryfall.com"))
	require.Equal(t, 5*time.Second, l.Delay("mtgtop8.com"))

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx, "https://api.scryfall.com/cards/named"))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiterHonorsCancellation(t *testing.T) {
	t.Parallel()

	l := New(Config{MinDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Wait(ctx, "https://mtgtop8.com/event"))
	cancel()
	require.Error(t, l.Wait(ctx, "https://mtgtop8.com/event"))
}
