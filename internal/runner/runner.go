// Package runner walks every crawl target of a run through the pagination controller.
package runner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-harvester/internal/crawler"
	"github.com/JakeFAU/catalog-harvester/internal/metrics"
)

// TargetSource enumerates the crawl targets of a run.
type TargetSource interface {
	Targets(ctx context.Context, minPriority int) ([]crawler.CrawlTarget, error)
}

// TargetRunner processes one target to a terminal state.
type TargetRunner interface {
	Run(ctx context.Context, target crawler.CrawlTarget) crawler.TargetResult
}

// Config controls Runner behavior. LimitTargets of zero visits every target.
type Config struct {
	MinPriority  int
	LimitTargets int
	Topic        string
}

// Runner drives targets strictly in sequence.
type Runner struct {
	source     TargetSource
	ledger     crawler.ProgressLedger
	controller TargetRunner
	publisher  crawler.Publisher
	ids        crawler.IDGenerator
	clock      crawler.Clock
	cfg        Config
	logger     *zap.Logger
}

// New creates a Runner. A nil publisher disables run events.
func New(
	source TargetSource,
	ledger crawler.ProgressLedger,
	controller TargetRunner,
	publisher crawler.Publisher,
	ids crawler.IDGenerator,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	metrics.Init()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		source:     source,
		ledger:     ledger,
		controller: controller,
		publisher:  publisher,
		ids:        ids,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

func (r *Runner) targets(ctx context.Context) ([]crawler.CrawlTarget, error) {
	targets, err := r.source.Targets(ctx, r.cfg.MinPriority)
	if err != nil {
		return nil, fmt.Errorf("enumerate targets: %w", err)
	}
	if r.cfg.LimitTargets > 0 && len(targets) > r.cfg.LimitTargets {
		targets = targets[:r.cfg.LimitTargets]
	}
	return targets, nil
}

// Plan returns every target with the ledger's current view, without fetching anything.
func (r *Runner) Plan(ctx context.Context) ([]crawler.Decision, error) {
	targets, err := r.targets(ctx)
	if err != nil {
		return nil, err
	}
	decisions := make([]crawler.Decision, 0, len(targets))
	for _, target := range targets {
		progress, err := r.ledger.NeedsWork(ctx, target.URL)
		if err != nil {
			return nil, fmt.Errorf("read progress for %s: %w", target.URL, err)
		}
		decisions = append(decisions, crawler.Decision{Target: target, Progress: progress})
	}
	return decisions, nil
}

// Run processes every target once. Target failures are recorded in the
// summary; only enumeration errors are returned. Cancellation ends the run
// after the current target with Interrupted set.
func (r *Runner) Run(ctx context.Context) (crawler.RunSummary, error) {
	runID, err := r.ids.NewID()
	if err != nil {
		return crawler.RunSummary{}, fmt.Errorf("generate run id: %w", err)
	}
	summary := crawler.RunSummary{
		RunID:     runID,
		StartedAt: r.clock.Now(),
		States:    make(map[crawler.TargetState]int),
	}
	logger := r.logger.With(zap.String("run_id", runID))

	targets, err := r.targets(ctx)
	if err != nil {
		return summary, err
	}
	summary.Targets = len(targets)
	logger.Info("run started",
		zap.Int("targets", len(targets)),
		zap.Int("min_priority", r.cfg.MinPriority),
	)

	for i, target := range targets {
		if ctx.Err() != nil {
			summary.Interrupted = true
			break
		}
		logger.Debug("target started", zap.Int("index", i+1), zap.String("target", target.URL))
		result := r.controller.Run(ctx, target)

		summary.States[result.State]++
		summary.ItemsStored += result.Stored
		summary.ItemsSkipped += result.Skipped
		summary.ItemsFailed += result.Failed
		r.publish(context.WithoutCancel(ctx), logger, targetEvent(runID, result, r.clock))

		if errors.Is(result.Err, context.Canceled) || errors.Is(result.Err, context.DeadlineExceeded) {
			summary.Interrupted = true
			break
		}
	}

	summary.FinishedAt = r.clock.Now()
	if summary.Interrupted {
		metrics.ObserveInterrupted()
	}
	fields := []zap.Field{
		zap.Int("targets", summary.Targets),
		zap.Int("items_stored", summary.ItemsStored),
		zap.Int("items_skipped", summary.ItemsSkipped),
		zap.Int("items_failed", summary.ItemsFailed),
		zap.Bool("interrupted", summary.Interrupted),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	}
	for state, n := range summary.States {
		fields = append(fields, zap.Int("state_"+string(state), n))
	}
	logger.Info("run finished", fields...)
	r.publish(context.WithoutCancel(ctx), logger, summary)
	return summary, nil
}

func targetEvent(runID string, result crawler.TargetResult, clock crawler.Clock) crawler.TargetEvent {
	event := crawler.TargetEvent{
		RunID:    runID,
		Target:   result.Target,
		State:    result.State,
		Stage:    result.Stage,
		Measured: result.Measured,
		Pages:    result.Pages,
		Stored:   result.Stored,
		Skipped:  result.Skipped,
		Failed:   result.Failed,
		At:       clock.Now(),
	}
	if result.Err != nil {
		event.Error = result.Err.Error()
	}
	return event
}

// publish is best effort; a failed publish is logged only.
func (r *Runner) publish(ctx context.Context, logger *zap.Logger, payload any) {
	if r.publisher == nil || r.cfg.Topic == "" {
		return
	}
	if _, err := r.publisher.Publish(ctx, r.cfg.Topic, payload); err != nil {
		logger.Warn("publish run event failed", zap.String("topic", r.cfg.Topic), zap.Error(err))
	}
}
