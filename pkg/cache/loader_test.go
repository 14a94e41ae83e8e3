package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_GetOrLoad(t *testing.T) {
	c, _ := newTestCache(t, DefaultConfig())
	ctx := context.Background()

	var calls atomic.Int64
	loader := func(ctx context.Context) (sentimentSnapshot, error) {
		calls.Add(1)
		return snapshot(7), nil
	}

	got, err := c.GetOrLoad(ctx, "politician:7", loader, SetOptions{})
	require.NoError(t, err)
	assert.Equal(t, snapshot(7), got)
	assert.Equal(t, int64(1), calls.Load())

	// Second call is served from cache
	got, err = c.GetOrLoad(ctx, "politician:7", loader, SetOptions{})
	require.NoError(t, err)
	assert.Equal(t, snapshot(7), got)
	assert.Equal(t, int64(1), calls.Load())
}

func TestCache_GetOrLoadError(t *testing.T) {
	c, _ := newTestCache(t, DefaultConfig())
	ctx := context.Background()

	wantErr := errors.New("upstream unavailable")
	_, err := c.GetOrLoad(ctx, "k", func(ctx context.Context) (sentimentSnapshot, error) {
		return sentimentSnapshot{}, wantErr
	}, SetOptions{})
	assert.ErrorIs(t, err, wantErr)
	assert.False(t, c.Has(ctx, "k"), "nothing is cached on loader failure")

	// A later call retries the loader
	got, err := c.GetOrLoad(ctx, "k", func(ctx context.Context) (sentimentSnapshot, error) {
		return snapshot(1), nil
	}, SetOptions{})
	require.NoError(t, err)
	assert.Equal(t, snapshot(1), got)
}

func TestCache_GetOrLoadCoalesces(t *testing.T) {
	c, _ := newTestCache(t, DefaultConfig())
	ctx := context.Background()

	var calls atomic.Int64
	release := make(chan struct{})
	loader := func(ctx context.Context) (sentimentSnapshot, error) {
		calls.Add(1)
		<-release
		return snapshot(1), nil
	}

	var wg sync.WaitGroup
	results := make(chan sentimentSnapshot, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.GetOrLoad(ctx, "shared", loader, SetOptions{})
			if err == nil {
				results <- got
			}
		}()
	}

	// Let the callers pile up behind the first in-flight load
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	assert.Equal(t, int64(1), calls.Load(), "concurrent loads of one key should coalesce")

	count := 0
	for got := range results {
		assert.Equal(t, snapshot(1), got)
		count++
	}
	assert.Equal(t, 10, count)
}

func TestCache_GetOrLoadEmptyKey(t *testing.T) {
	c, _ := newTestCache(t, DefaultConfig())

	_, err := c.GetOrLoad(context.Background(), "", func(ctx context.Context) (sentimentSnapshot, error) {
		return snapshot(1), nil
	}, SetOptions{})
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestCache_GetOrLoadAppliesSetOptions(t *testing.T) {
	c, _ := newTestCache(t, DefaultConfig())
	ctx := context.Background()

	_, err := c.GetOrLoad(ctx, "tagged", func(ctx context.Context) (sentimentSnapshot, error) {
		return snapshot(1), nil
	}, SetOptions{Tags: []string{"loaded"}})
	require.NoError(t, err)

	assert.Equal(t, 1, c.InvalidateByTags(ctx, []string{"loaded"}, "cleanup"))
}
