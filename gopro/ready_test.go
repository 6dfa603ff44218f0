package gopro

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedCamera fails `failures` status queries before answering; linkAfter
// controls after how many successful answers the link flag is raised.
type scriptedCamera struct {
	mu        sync.Mutex
	failures  int
	linkAfter int
	powerOns  int
	queries   int
	answers   int
}

func (c *scriptedCamera) PowerOn(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.powerOns++
	return nil
}

func (c *scriptedCamera) Status(context.Context) (*Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries++
	if c.queries <= c.failures {
		return nil, errors.New("connection refused")
	}
	c.answers++
	clients := 0.0
	if c.linkAfter >= 0 && c.answers > c.linkAfter {
		clients = 1
	}
	return &Status{Status: map[string]any{"31": clients}}, nil
}

var fastPolicy = ReadyPolicy{Attempts: DefaultReadyAttempts, Interval: time.Millisecond}

func TestWaitReadySucceedsAfterKFailures(t *testing.T) {
	for _, k := range []int{0, 1, 7, 49} {
		cam := &scriptedCamera{failures: k, linkAfter: 0}
		st, err := WaitReady(context.Background(), cam, false, fastPolicy)
		require.NoError(t, err, "k=%d", k)
		require.NotNil(t, st)
		assert.Equal(t, k+1, cam.queries, "k=%d", k)
		assert.Equal(t, 1, cam.powerOns, "k=%d", k)
	}
}

func TestWaitReadyConfirmLinkWaitsForFlag(t *testing.T) {
	cam := &scriptedCamera{failures: 2, linkAfter: 3}
	st, err := WaitReady(context.Background(), cam, true, fastPolicy)
	require.NoError(t, err)
	assert.True(t, st.LinkEstablished())
	assert.Equal(t, 6, cam.queries)
	assert.Equal(t, 1, cam.powerOns)
}

func TestWaitReadyIgnoresLinkWhenNotConfirming(t *testing.T) {
	cam := &scriptedCamera{linkAfter: -1}
	st, err := WaitReady(context.Background(), cam, false, fastPolicy)
	require.NoError(t, err)
	assert.False(t, st.LinkEstablished())
	assert.Equal(t, 1, cam.queries)
}

func TestWaitReadyExhaustsBudget(t *testing.T) {
	cam := &scriptedCamera{failures: 1 << 30}
	_, err := WaitReady(context.Background(), cam, false, fastPolicy)
	assert.ErrorIs(t, err, ErrCameraUnreachable)
	assert.Equal(t, DefaultReadyAttempts, cam.queries)
	assert.Equal(t, 1, cam.powerOns)

	cam = &scriptedCamera{linkAfter: -1}
	_, err = WaitReady(context.Background(), cam, true, fastPolicy)
	assert.ErrorIs(t, err, ErrLinkNotConfirmed)
	assert.Equal(t, DefaultReadyAttempts, cam.queries)
}

func TestWaitReadyDefaultBudgetTiming(t *testing.T) {
	if testing.Short() {
		t.Skip("takes ~5s")
	}
	cam := &scriptedCamera{failures: 1 << 30}

	start := time.Now()
	_, err := WaitReady(context.Background(), cam, false, DefaultReadyPolicy())
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrCameraUnreachable)
	assert.Equal(t, 50, cam.queries)
	assert.GreaterOrEqual(t, elapsed, 4900*time.Millisecond)
	assert.Less(t, elapsed, 6*time.Second)
}

func TestWaitReadyHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cam := &scriptedCamera{failures: 1 << 30}
	_, err := WaitReady(ctx, cam, false, ReadyPolicy{Attempts: 50, Interval: time.Hour})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, cam.queries)
}
