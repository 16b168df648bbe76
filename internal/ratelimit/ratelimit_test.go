package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterBurstThenWait(t *testing.T) {
	clock := time.Unix(0, 0)
	l := New(2)
	l.now = func() time.Time { return clock }
	l.refilled = clock

	assert.Zero(t, l.reserve())
	assert.Zero(t, l.reserve())

	wait := l.reserve()
	assert.Equal(t, 500*time.Millisecond, wait)

	clock = clock.Add(500 * time.Millisecond)
	assert.Zero(t, l.reserve())
}

func TestLimiterFloorsBurstAtOne(t *testing.T) {
	l := New(0.5)
	assert.Equal(t, 1.0, l.burst)
	assert.Zero(t, l.reserve())
}

func TestLimiterWaitHonoursContext(t *testing.T) {
	l := New(0.01)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
