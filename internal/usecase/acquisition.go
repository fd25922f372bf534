package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ChartAggregator/internal/artifact"
	"ChartAggregator/internal/domain"
	"ChartAggregator/internal/normalizer"
	"ChartAggregator/internal/ports"
	"ChartAggregator/internal/ranking"
	"ChartAggregator/internal/resolver"
)

// AcquisitionDeps wires all driven adapters into the acquisition workflow.
type AcquisitionDeps struct {
	Sources        []domain.ChartSource
	Resolver       *resolver.Resolver
	Artifacts      *artifact.Manager
	Publishers     []ports.Publisher
	Commentator    ports.Commentator
	MaxConcurrency int
	Logger         *slog.Logger
}

// Acquisition implements one acquisition pass over every configured source.
type Acquisition struct {
	sources        []domain.ChartSource
	resolver       *resolver.Resolver
	artifacts      *artifact.Manager
	publishers     []ports.Publisher
	commentator    ports.Commentator
	maxConcurrency int
	logger         *slog.Logger
}

// Report summarizes one acquisition pass. Runs holds one entry per finalized source in
// configuration order; cancelled sources are absent.
type Report struct {
	BatchID   string
	Runs      []domain.AggregationRun
	Published int
}

// NewAcquisition constructs the orchestration component.
func NewAcquisition(deps AcquisitionDeps) *Acquisition {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	limit := deps.MaxConcurrency
	if limit <= 0 {
		limit = 1
	}
	return &Acquisition{
		sources:        deps.Sources,
		resolver:       deps.Resolver,
		artifacts:      deps.Artifacts,
		publishers:     deps.Publishers,
		commentator:    deps.Commentator,
		maxConcurrency: limit,
		logger:         log,
	}
}

type workerResult struct {
	run       *domain.AggregationRun
	published int
	err       error
}

// Run resolves, normalizes, ranks, finalizes and publishes every source for instant.
// Configuration errors abort before any fetch. Artifact write errors do not stop sibling
// sources; they are joined into the returned error together with cancellation.
func (a *Acquisition) Run(ctx context.Context, instant time.Time) (Report, error) {
	for _, src := range a.sources {
		if _, err := a.resolver.Plan(src); err != nil {
			return Report{}, fmt.Errorf("validate sources: %w", err)
		}
	}

	report := Report{BatchID: uuid.NewString()}
	log := a.logger.With("batch", report.BatchID)
	log.Info("acquisition started", "sources", len(a.sources), "instant", instant.Format(time.RFC3339))

	results := make([]workerResult, len(a.sources))
	var g errgroup.Group
	g.SetLimit(a.maxConcurrency)

	for i, src := range a.sources {
		i, src := i, src
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = a.acquire(ctx, src, instant, log.With("source", src.ID))
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, res := range results {
		if res.run != nil {
			report.Runs = append(report.Runs, *res.run)
		}
		report.Published += res.published
		if res.err != nil {
			errs = append(errs, res.err)
		}
	}
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}

	log.Info("acquisition finished", "finalized", len(report.Runs), "published", report.Published, "errors", len(errs))
	return report, errors.Join(errs...)
}

func (a *Acquisition) acquire(ctx context.Context, src domain.ChartSource, instant time.Time, log *slog.Logger) workerResult {
	res, err := a.resolver.Resolve(ctx, src)
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("source abandoned", "error", err)
			return workerResult{}
		}
		return workerResult{err: err}
	}

	outcome := artifact.Outcome{
		Source:    src,
		Instant:   instant,
		Strategy:  res.Strategy,
		Region:    res.Region,
		Fallback:  res.Fallback,
		Exhausted: res.Exhausted,
		Attempts:  res.Attempts,
	}

	if res.Exhausted {
		log.Warn("source exhausted", "attempts", len(res.Attempts))
	} else {
		norm := normalizer.Normalize(src, res.Records)
		if norm.Rejected > 0 || norm.Duplicates > 0 {
			log.Info("records dropped", "rejected", norm.Rejected, "duplicates", norm.Duplicates)
		}
		outcome.Entries = ranking.Compute(norm.Entries, src.RankMode, src.MaxEntries)
		outcome.Reason = norm.Reason
	}

	run, err := a.artifacts.Finalize(ctx, outcome)
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("source abandoned before finalize", "error", err)
			return workerResult{}
		}
		log.Error("artifact not recorded", "error", err)
		return workerResult{err: err}
	}

	result := workerResult{run: &run}
	if run.Status.Publishable() {
		result.published = a.publish(ctx, src, run, log)
	}
	return result
}

// publish hands the rendered post to each channel exactly once. Channel failures are logged;
// retries and duplicate guarding belong to the channel.
func (a *Acquisition) publish(ctx context.Context, src domain.ChartSource, run domain.AggregationRun, log *slog.Logger) int {
	if len(a.publishers) == 0 {
		return 0
	}

	post := RenderPost(src, run, a.commentary(ctx, run, log))

	published := 0
	for _, p := range a.publishers {
		if err := p.Publish(ctx, post); err != nil {
			log.Warn("publish failed", "channel", p.Name(), "error", err)
			continue
		}
		published++
		log.Info("chart published", "channel", p.Name(), "title", post.Title)
	}
	return published
}

func (a *Acquisition) commentary(ctx context.Context, run domain.AggregationRun, log *slog.Logger) string {
	fallback := StaticCommentary(run)
	if a.commentator == nil {
		return fallback
	}
	text, err := a.commentator.Comment(ctx, run)
	if err != nil {
		log.Warn("commentary fallback", "error", err)
		return fallback
	}
	return text
}
