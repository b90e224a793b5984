package throttle

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu       sync.Mutex
	factor   float64
	flavours int
}

func (f *fakeSource) ThrottleFactor() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.factor
}

func (f *fakeSource) FlavourCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flavours
}

func (f *fakeSource) set(factor float64, flavours int) {
	f.mu.Lock()
	f.factor, f.flavours = factor, flavours
	f.mu.Unlock()
}

func TestAcquireReleaseTracksInflight(t *testing.T) {
	source := &fakeSource{factor: 1.0, flavours: 1}
	tr := New(source, 4, nil)

	ctx := context.Background()
	require.NoError(t, tr.Acquire(ctx))
	require.NoError(t, tr.Acquire(ctx))
	assert.Equal(t, 2, tr.Inflight())

	tr.Release()
	assert.Equal(t, 1, tr.Inflight())
}

func TestAcquireBlocksAtLimitAndUnblocksOnRelease(t *testing.T) {
	source := &fakeSource{factor: 1.0, flavours: 1}
	tr := New(source, 1, nil)

	ctx := context.Background()
	require.NoError(t, tr.Acquire(ctx))

	var acquired int32
	go func() {
		_ = tr.Acquire(ctx)
		atomic.StoreInt32(&acquired, 1)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&acquired))

	tr.Release()
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&acquired) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	source := &fakeSource{factor: 1.0, flavours: 1}
	tr := New(source, 1, nil)

	require.NoError(t, tr.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := tr.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRecomputeFullThrottleUsesMaxConcurrency(t *testing.T) {
	source := &fakeSource{factor: 1.0, flavours: 2}
	tr := New(source, 4, nil)
	tr.recompute()
	assert.Equal(t, 8, tr.Limit())
}

func TestRecomputeLowFactorShrinksLimitByExponent(t *testing.T) {
	source := &fakeSource{factor: 0.5, flavours: 1}
	tr := New(source, 8, nil)
	tr.recompute()
	// max=8, factor^3 = 0.125 -> round(1) = 1
	assert.Equal(t, 1, tr.Limit())
}

func TestFactorReflectsLastRecompute(t *testing.T) {
	source := &fakeSource{factor: 0.5, flavours: 1}
	tr := New(source, 8, nil)
	assert.Equal(t, 1.0, tr.Factor())
	tr.recompute()
	assert.Equal(t, 0.5, tr.Factor())
}

func TestRecomputeNeverGoesBelowMinInFlight(t *testing.T) {
	source := &fakeSource{factor: 0.01, flavours: 1}
	tr := New(source, 4, nil)
	tr.recompute()
	assert.GreaterOrEqual(t, tr.Limit(), 1)
}

func TestStartStopRefreshesLimitInBackground(t *testing.T) {
	source := &fakeSource{factor: 1.0, flavours: 1}
	tr := New(source, 4, nil)
	tr.refresh = 10 * time.Millisecond
	tr.Start()
	defer tr.Stop()

	source.set(0.0, 1)
	require.Eventually(t, func() bool {
		return tr.Limit() == 1
	}, time.Second, 10*time.Millisecond)
}
