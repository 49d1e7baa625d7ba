package concurrency

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func double(_ context.Context, v int, _ int) (int, error) {
	return v * 2, nil
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, 1, NormalizeLimit(0))
	assert.Equal(t, 1, NormalizeLimit(-5))
	assert.Equal(t, 3, NormalizeLimit(3))

	assert.Equal(t, 1, NormalizeLimitFloat(0.5))
	assert.Equal(t, 2, NormalizeLimitFloat(2.9))
	assert.Equal(t, 1, NormalizeLimitFloat(-1.5))
	assert.Equal(t, 1, NormalizeLimitFloat(math.NaN()))
}

func TestMapEmptyInput(t *testing.T) {
	var calls atomic.Int32
	out, err := Map(context.Background(), []int{}, 4, func(ctx context.Context, v int, i int) (int, error) {
		calls.Add(1)
		return v, nil
	})

	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NotNil(t, out)
	assert.Equal(t, int32(0), calls.Load())
}

func TestMapMatchesSequentialForAnyLimit(t *testing.T) {
	items := make([]int, 25)
	for i := range items {
		items[i] = i
	}
	expected := make([]int, len(items))
	for i, v := range items {
		expected[i] = v * 2
	}

	for _, limit := range []int{-3, 0, 1, 2, 7, 25, 100} {
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			out, err := Map(context.Background(), items, limit, double)
			require.NoError(t, err)
			assert.Equal(t, expected, out)
		})
	}
}

func TestMapNonPositiveLimitRunsSequentially(t *testing.T) {
	for _, limit := range []int{0, -1} {
		var active, peak atomic.Int32
		_, err := Map(context.Background(), []int{1, 2, 3, 4}, limit, func(ctx context.Context, v int, i int) (int, error) {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			active.Add(-1)
			return v, nil
		})
		require.NoError(t, err)
		assert.Equal(t, int32(1), peak.Load())
	}
}

func TestMapPreservesOrderDespiteCompletionOrder(t *testing.T) {
	delays := []time.Duration{30 * time.Millisecond, 5 * time.Millisecond}

	var mu sync.Mutex
	var completed []int
	out, err := Map(context.Background(), delays, 2, func(ctx context.Context, d time.Duration, i int) (int, error) {
		time.Sleep(d)
		mu.Lock()
		completed = append(completed, i)
		mu.Unlock()
		return i, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, out)
	assert.Equal(t, []int{1, 0}, completed)
}

func TestMapClaimsEachIndexOnce(t *testing.T) {
	items := make([]int, 200)
	seen := make([]atomic.Int32, len(items))

	_, err := Map(context.Background(), items, 8, func(ctx context.Context, v int, i int) (int, error) {
		seen[i].Add(1)
		return v, nil
	})
	require.NoError(t, err)

	for i := range seen {
		assert.Equal(t, int32(1), seen[i].Load(), "index %d", i)
	}
}

func TestMapPropagatesMapperError(t *testing.T) {
	boom := errors.New("boom")

	out, err := Map(context.Background(), []int{1, 2, 3}, 2, func(ctx context.Context, v int, i int) (int, error) {
		if v == 2 {
			return 0, boom
		}
		return v, nil
	})

	assert.ErrorIs(t, err, boom)
	assert.Nil(t, out)
}

func TestMapDoesNotPreemptOnParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := Map(ctx, []int{1, 2, 3}, 2, double)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6}, out)
}
