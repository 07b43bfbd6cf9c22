// Package crawler orchestrates one listing crawl: fetch, extract, upsert.
package crawler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mnbossa/agridocs/internal/docs"
	"github.com/mnbossa/agridocs/internal/extract"
	"github.com/mnbossa/agridocs/internal/metrics"
)

// Config holds the settings for a crawl run. The listing timeout should be
// at least the detail timeout, since the listing decides whether the run is
// viable at all.
type Config struct {
	ListingURL     string
	Limit          int
	ListingTimeout time.Duration
	DetailTimeout  time.Duration
	Keywords       []string
}

// Crawler fetches the listing page, walks its document links up to the
// configured limit and upserts one record per URL. It is a plain callable
// with no background machinery of its own; scheduling is the caller's job.
type Crawler struct {
	fetcher docs.Fetcher
	store   docs.Store
	clock   docs.Clock
	limiter *rate.Limiter
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Crawler. The limiter is optional and paces detail
// fetches to stay polite toward the source site.
func New(
	fetcher docs.Fetcher,
	store docs.Store,
	clock docs.Clock,
	limiter *rate.Limiter,
	cfg Config,
	logger *zap.Logger,
) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		fetcher: fetcher,
		store:   store,
		clock:   clock,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run executes one crawl. A listing failure aborts the run with nothing
// written; per-item failures are logged and skipped. Items are processed
// sequentially, which keeps per-URL upsert ordering trivially serialized.
func (c *Crawler) Run(ctx context.Context) error {
	listingCtx, cancel := context.WithTimeout(ctx, c.cfg.ListingTimeout)
	res, err := c.fetcher.Fetch(listingCtx, c.cfg.ListingURL)
	cancel()
	if err != nil {
		metrics.ObserveCrawlRun("failed")
		c.logger.Error("listing fetch failed", zap.String("url", c.cfg.ListingURL), zap.Error(err))
		return &docs.FetchError{URL: c.cfg.ListingURL, Err: err}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		metrics.ObserveCrawlRun("failed")
		c.logger.Error("listing fetch returned non-success status",
			zap.String("url", c.cfg.ListingURL),
			zap.Int("status", res.StatusCode),
		)
		return &docs.FetchError{URL: c.cfg.ListingURL, StatusCode: res.StatusCode}
	}

	links := extract.ParseListing(res.Body, c.cfg.ListingURL)
	if c.cfg.Limit > 0 && len(links) > c.cfg.Limit {
		links = links[:c.cfg.Limit]
	}
	c.logger.Info("listing parsed", zap.Int("candidates", len(links)))

	now := c.clock.Now()
	processed := 0
	for _, link := range links {
		if ctx.Err() != nil {
			metrics.ObserveCrawlRun("interrupted")
			c.logger.Warn("crawl run interrupted by shutdown",
				zap.Int("processed", processed),
				zap.Int("candidates", len(links)),
				zap.Error(ctx.Err()),
			)
			return nil
		}
		c.indexItem(ctx, link, now)
		processed++
	}

	metrics.ObserveCrawlRun("succeeded")
	c.logger.Info("crawl run complete", zap.Int("items", processed))
	return nil
}

// indexItem fetches one detail page and upserts its record. A non-success
// status still produces a stub record carrying the listing anchor title; a
// transport or parse failure skips the URL entirely.
func (c *Crawler) indexItem(ctx context.Context, link docs.Link, now time.Time) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.logger.Warn("rate limiter wait aborted", zap.String("url", link.URL), zap.Error(err))
			return
		}
	}

	detailCtx, cancel := context.WithTimeout(ctx, c.cfg.DetailTimeout)
	res, err := c.fetcher.Fetch(detailCtx, link.URL)
	cancel()
	if err != nil {
		metrics.ObserveDocument(metrics.DocSkipped)
		c.logger.Warn("detail fetch failed", zap.String("url", link.URL), zap.Error(err))
		return
	}

	doc := docs.Document{
		URL:       link.URL,
		Title:     link.Title,
		IndexedAt: now,
	}
	result := metrics.DocStub
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		detail := extract.ExtractDetail(res.Body, c.cfg.Keywords)
		if detail.Title != "" {
			doc.Title = detail.Title
		}
		doc.DocType = detail.DocType
		doc.Date = detail.Date
		doc.Excerpt = detail.Excerpt
		result = metrics.DocIndexed
	} else {
		c.logger.Warn("detail fetch returned non-success status, storing stub",
			zap.String("url", link.URL),
			zap.Int("status", res.StatusCode),
		)
	}

	if err := c.store.Upsert(ctx, doc); err != nil {
		metrics.ObserveDocument(metrics.DocSkipped)
		c.logger.Error("upsert failed", zap.String("url", link.URL), zap.Error(err))
		return
	}
	metrics.ObserveDocument(result)
}
