// Package pagination drives one crawl target from measurement to a terminal state.
package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-harvester/internal/crawler"
	"github.com/JakeFAU/catalog-harvester/internal/metrics"
)

// DefaultMaxPages is the listing's page ceiling.
const DefaultMaxPages = 60

// Stages reported on aborted targets.
const (
	StageMeasure = "measure"
	StageDecide  = "decide"
	StagePage    = "page"
)

// Config controls Controller behavior.
type Config struct {
	MaxPages int
}

// Controller walks a target's listing pages and feeds every item through the
// catalog log, the item store and the progress ledger.
type Controller struct {
	ledger    crawler.ProgressLedger
	catalog   crawler.CatalogLog
	items     crawler.ItemStore
	renderer  crawler.Renderer
	pagePacer crawler.Pacer
	itemPacer crawler.Pacer
	cfg       Config
	logger    *zap.Logger
}

type itemOutcome int

const (
	outcomeIgnored itemOutcome = iota
	outcomeStored
	outcomeSkipped
	outcomeFailed
)

// New constructs a Controller. Nil pacers disable pacing.
func New(
	ledger crawler.ProgressLedger,
	catalog crawler.CatalogLog,
	items crawler.ItemStore,
	renderer crawler.Renderer,
	pagePacer crawler.Pacer,
	itemPacer crawler.Pacer,
	cfg Config,
	logger *zap.Logger,
) *Controller {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	return &Controller{
		ledger:    ledger,
		catalog:   catalog,
		items:     items,
		renderer:  renderer,
		pagePacer: pagePacer,
		itemPacer: itemPacer,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run processes one target and reports where it ended. It never returns
// early on item errors; page and measurement errors end the target.
func (c *Controller) Run(ctx context.Context, target crawler.CrawlTarget) crawler.TargetResult {
	result := crawler.TargetResult{Target: target, State: crawler.StateMeasuring}
	logger := c.logger.With(
		zap.String("target", target.URL),
		zap.String("area", target.AreaCode),
		zap.String("genre", target.GenreCode),
	)

	first, err := c.fetchPage(ctx, target.URL, 1)
	if err == nil && !first.HasTotal {
		err = crawler.ErrNoTotal
	}
	if err != nil {
		return c.abort(logger, result, StageMeasure, fmt.Errorf("measure page 1: %w", err))
	}
	result.Measured = first.Total
	if err := c.ledger.RecordMeasuredTotal(ctx, target, first.Total); err != nil {
		return c.abort(logger, result, StageMeasure, fmt.Errorf("record total: %w", err))
	}

	progress, err := c.ledger.NeedsWork(ctx, target.URL)
	if err != nil {
		return c.abort(logger, result, StageDecide, fmt.Errorf("read progress: %w", err))
	}
	result.Progress = progress
	logger.Info("target decision",
		zap.Bool("needs_work", progress.NeedsWork),
		zap.Bool("retired", progress.Retired),
		zap.Int("get_count", progress.GetCount),
		zap.Int("skip_count", progress.SkipCount),
		zap.Int("total_count", progress.TotalCount),
		zap.Int("measured", first.Total),
	)
	if !progress.NeedsWork || first.Total == 0 {
		result.State = crawler.StateSkipped
		return c.finish(logger, result)
	}

	result.State = crawler.StateCollecting
	remaining := first.Total
	page := first
	for pageNum := 1; ; pageNum++ {
		if pageNum > 1 {
			if err := c.wait(ctx, c.pagePacer, target.URL); err != nil {
				return c.abort(logger, result, StagePage, err)
			}
			page, err = c.fetchPage(ctx, target.URL, pageNum)
			if err != nil {
				return c.abort(logger, result, StagePage, fmt.Errorf("fetch page %d: %w", pageNum, err))
			}
		}
		if len(page.Items) == 0 {
			return c.abort(logger, result, StagePage, fmt.Errorf("page %d: %w", pageNum, crawler.ErrEmptyPage))
		}
		result.Pages++

		for _, item := range page.Items {
			if err := ctx.Err(); err != nil {
				return c.abort(logger, result, StagePage, err)
			}
			c.processItem(ctx, logger, target, item, &result)
		}

		remaining -= len(page.Items)
		logger.Debug("page processed",
			zap.Int("page", pageNum),
			zap.Int("items", len(page.Items)),
			zap.Int("remaining", remaining),
		)
		if remaining <= 0 {
			result.State = crawler.StateExhausted
			break
		}
		if pageNum >= c.cfg.MaxPages {
			result.State = crawler.StateCapped
			break
		}
	}
	return c.finish(logger, result)
}

func (c *Controller) fetchPage(ctx context.Context, url string, page int) (crawler.ListingPage, error) {
	start := time.Now()
	listing, err := c.renderer.FetchListingPage(ctx, url, page)
	metrics.ObserveFetch("listing", time.Since(start))
	if err != nil {
		metrics.ObservePage(url, "error")
		return crawler.ListingPage{}, err
	}
	if len(listing.Items) == 0 {
		metrics.ObservePage(url, "empty")
	} else {
		metrics.ObservePage(url, "ok")
	}
	return listing, nil
}

func (c *Controller) processItem(
	ctx context.Context,
	logger *zap.Logger,
	target crawler.CrawlTarget,
	item crawler.ListingItem,
	result *crawler.TargetResult,
) {
	outcome, err := c.handleItem(ctx, logger, target, item)
	switch outcome {
	case outcomeStored:
		result.Stored++
		metrics.ObserveItem("stored")
	case outcomeSkipped:
		result.Skipped++
		metrics.ObserveItem("skipped")
	case outcomeFailed:
		result.Failed++
		metrics.ObserveItem("failed")
		logger.Warn("item failed",
			zap.String("link", item.Link),
			zap.String("stage", "item"),
			zap.Error(err),
		)
	case outcomeIgnored:
	}
	if outcome != outcomeIgnored {
		result.Observed++
	}
}

func (c *Controller) handleItem(
	ctx context.Context,
	logger *zap.Logger,
	target crawler.CrawlTarget,
	item crawler.ListingItem,
) (outcome itemOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = outcomeFailed
			err = fmt.Errorf("item panic: %v", r)
		}
	}()

	if item.Link == "" {
		return outcomeIgnored, nil
	}

	isNew, err := c.catalog.Observe(ctx, item.Link, target.AreaCode, target.GenreCode)
	switch {
	case err != nil:
		metrics.ObserveCatalog("error")
		logger.Warn("catalog observe failed", zap.String("link", item.Link), zap.Error(err))
	case isNew:
		metrics.ObserveCatalog("new")
		logger.Debug("catalog entry recorded", zap.String("link", item.Link))
	default:
		metrics.ObserveCatalog("duplicate")
		logger.Debug("catalog entry already known", zap.String("link", item.Link))
	}

	exists, err := c.items.Exists(ctx, item.Link)
	if err != nil {
		return outcomeFailed, fmt.Errorf("check existing item: %w", err)
	}
	if exists {
		if err := c.ledger.IncrementSkip(ctx, target.URL); err != nil {
			return outcomeFailed, fmt.Errorf("increment skip: %w", err)
		}
		return outcomeSkipped, nil
	}

	if err := c.wait(ctx, c.itemPacer, item.Link); err != nil {
		return outcomeFailed, err
	}
	start := time.Now()
	detail, err := c.renderer.FetchItemDetail(ctx, item.Link)
	metrics.ObserveFetch("detail", time.Since(start))
	if err != nil {
		return outcomeFailed, fmt.Errorf("fetch detail: %w", err)
	}

	record := crawler.BuildItemRecord(item, detail, target)
	upserted, err := c.items.Upsert(ctx, record)
	if err != nil {
		return outcomeFailed, fmt.Errorf("upsert item: %w", err)
	}
	if err := c.ledger.IncrementGet(ctx, target.URL); err != nil {
		return outcomeFailed, fmt.Errorf("increment get: %w", err)
	}
	logger.Debug("item stored", zap.String("link", item.Link), zap.String("outcome", string(upserted)))
	return outcomeStored, nil
}

func (c *Controller) wait(ctx context.Context, pacer crawler.Pacer, url string) error {
	if pacer == nil {
		return nil
	}
	if err := pacer.Wait(ctx, url); err != nil {
		return fmt.Errorf("pace: %w", err)
	}
	return nil
}

func (c *Controller) abort(
	logger *zap.Logger,
	result crawler.TargetResult,
	stage string,
	err error,
) crawler.TargetResult {
	result.State = crawler.StateAborted
	result.Stage = stage
	result.Err = err
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("target interrupted", zap.String("stage", stage), zap.Error(err))
	} else {
		logger.Error("target aborted", zap.String("stage", stage), zap.Error(err))
	}
	return c.finish(logger, result)
}

func (c *Controller) finish(logger *zap.Logger, result crawler.TargetResult) crawler.TargetResult {
	metrics.ObserveTarget(string(result.State))
	logger.Info("target finished",
		zap.String("state", string(result.State)),
		zap.Int("measured", result.Measured),
		zap.Int("pages", result.Pages),
		zap.Int("observed", result.Observed),
		zap.Int("stored", result.Stored),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result
}
