package crawler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Houeta/listing-monitor/internal/models"
	"github.com/Houeta/listing-monitor/internal/retry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// PageResult - the outcome of fetching one page. Err is set when every attempt failed.
type PageResult struct {
	Page     int
	Listings []models.RawListing
	Attempts int
	Err      error
}

// PoolConfig configures page fetch concurrency.
type PoolConfig struct {
	Workers int
	// RatePerSecond limits request starts across all workers. Zero disables the limit.
	RatePerSecond float64
	Burst         int
	Retry         retry.Config
}

// Pool fetches pages of a target concurrently.
type Pool struct {
	log     *slog.Logger
	source  Source
	workers int
	limiter *rate.Limiter
	retry   retry.Config
}

// NewPool creates a pool over source.
func NewPool(log *slog.Logger, source Source, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	if cfg.Retry.IsRetryable == nil {
		cfg.Retry.IsRetryable = IsRetryable
	}

	return &Pool{
		log:     log.With("component", "crawl_pool"),
		source:  source,
		workers: cfg.Workers,
		limiter: limiter,
		retry:   cfg.Retry,
	}
}

// FetchPages fetches pages 1..budget of target. A failed page never stops the others;
// its error is reported in its result. Results are ordered by page number.
func (p *Pool) FetchPages(ctx context.Context, target string, budget int) []PageResult {
	if budget <= 0 {
		return nil
	}

	results := make([]PageResult, budget)

	var g errgroup.Group
	g.SetLimit(p.workers)

	for i := range budget {
		page := i + 1
		g.Go(func() error {
			results[i] = p.fetch(ctx, target, page)
			return nil
		})
	}

	_ = g.Wait()

	return results
}

func (p *Pool) fetch(ctx context.Context, target string, page int) PageResult {
	const opn = "crawler.Pool.fetch"

	log := p.log.With("op", opn, "target", target, "page", page)
	res := PageResult{Page: page}

	err := retry.Do(ctx, p.retry, func(attempt int) error {
		res.Attempts = attempt

		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}

		listings, err := p.source.FetchPage(ctx, target, page)
		if err != nil {
			log.WarnContext(ctx, "page fetch failed", "attempt", attempt, "error", err)
			return err
		}

		res.Listings = listings
		return nil
	})
	if err != nil {
		res.Err = fmt.Errorf("page %d: %w", page, err)
		res.Listings = nil
		log.ErrorContext(ctx, "giving up on page", "attempts", res.Attempts, "error", err)
		return res
	}

	log.DebugContext(ctx, "page fetched", "listings", len(res.Listings), "attempts", res.Attempts)
	return res
}
