package crawler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Houeta/listing-monitor/internal/crawler"
	"github.com/Houeta/listing-monitor/internal/models"
	"github.com/Houeta/listing-monitor/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sourceFunc adapts a function to crawler.Source.
type sourceFunc func(ctx context.Context, target string, page int) ([]models.RawListing, error)

func (f sourceFunc) FetchPage(ctx context.Context, target string, page int) ([]models.RawListing, error) {
	return f(ctx, target, page)
}

func fastRetry(attempts int) retry.Config {
	return retry.Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestPool_FetchPages_OrderedByPage(t *testing.T) {
	src := sourceFunc(func(_ context.Context, target string, page int) ([]models.RawListing, error) {
		// Later pages finish first.
		time.Sleep(time.Duration(5-page) * time.Millisecond)
		return []models.RawListing{{ID: target + "-" + string(rune('0'+page))}}, nil
	})
	pool := crawler.NewPool(discardLogger(), src, crawler.PoolConfig{Workers: 4, Retry: fastRetry(1)})

	results := pool.FetchPages(t.Context(), "t", 4)

	require.Len(t, results, 4)
	for i, res := range results {
		assert.Equal(t, i+1, res.Page)
		require.NoError(t, res.Err)
		assert.Equal(t, "t-"+string(rune('1'+i)), res.Listings[0].ID)
		assert.Equal(t, 1, res.Attempts)
	}
}

func TestPool_FetchPages_RetriesTransientFailures(t *testing.T) {
	var calls sync.Map
	src := sourceFunc(func(_ context.Context, _ string, page int) ([]models.RawListing, error) {
		n, _ := calls.LoadOrStore(page, new(atomic.Int32))
		if n.(*atomic.Int32).Add(1) < 3 {
			return nil, &crawler.StatusError{StatusCode: 503}
		}
		return []models.RawListing{{ID: "ok"}}, nil
	})
	pool := crawler.NewPool(discardLogger(), src, crawler.PoolConfig{Workers: 2, Retry: fastRetry(3)})

	results := pool.FetchPages(t.Context(), "", 2)

	for _, res := range results {
		require.NoError(t, res.Err)
		assert.Equal(t, 3, res.Attempts)
		assert.Len(t, res.Listings, 1)
	}
}

func TestPool_FetchPages_FailedPageDoesNotStopOthers(t *testing.T) {
	src := sourceFunc(func(_ context.Context, _ string, page int) ([]models.RawListing, error) {
		if page == 2 {
			return nil, &crawler.StatusError{StatusCode: 404}
		}
		return []models.RawListing{{ID: "x"}}, nil
	})
	pool := crawler.NewPool(discardLogger(), src, crawler.PoolConfig{Workers: 3, Retry: fastRetry(5)})

	results := pool.FetchPages(t.Context(), "", 3)

	require.NoError(t, results[0].Err)
	require.NoError(t, results[2].Err)
	var se *crawler.StatusError
	require.ErrorAs(t, results[1].Err, &se)
	assert.Equal(t, 1, results[1].Attempts, "404 is not retried")
	assert.Nil(t, results[1].Listings)
}

func TestPool_FetchPages_BoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	src := sourceFunc(func(context.Context, string, int) ([]models.RawListing, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	})
	pool := crawler.NewPool(discardLogger(), src, crawler.PoolConfig{Workers: 2, Retry: fastRetry(1)})

	results := pool.FetchPages(t.Context(), "", 8)

	assert.Len(t, results, 8)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPool_FetchPages_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	called := atomic.Bool{}
	src := sourceFunc(func(context.Context, string, int) ([]models.RawListing, error) {
		called.Store(true)
		return nil, nil
	})
	pool := crawler.NewPool(discardLogger(), src, crawler.PoolConfig{Workers: 2, Retry: fastRetry(3)})

	results := pool.FetchPages(ctx, "", 2)

	assert.False(t, called.Load())
	for _, res := range results {
		require.Error(t, res.Err)
		assert.True(t, errors.Is(res.Err, context.Canceled))
	}
}

func TestPool_FetchPages_ZeroBudget(t *testing.T) {
	pool := crawler.NewPool(discardLogger(), sourceFunc(nil), crawler.PoolConfig{})

	assert.Nil(t, pool.FetchPages(t.Context(), "", 0))
}
