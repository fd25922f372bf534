package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"ChartAggregator/internal/domain"
	"ChartAggregator/internal/ports"
	"ChartAggregator/internal/scanner"
)

const (
	regionPlaceholder      = "{region}"
	regionParamPlaceholder = "{regionParam}"
)

var errNoRecords = errors.New("no records")

// Step is one entry of a resolved plan: a concrete strategy bound to the region it runs for.
type Step struct {
	Strategy domain.FetchStrategy
	Region   string
}

// Result is the outcome of resolving one source. Exhausted results carry no records.
type Result struct {
	Strategy  string
	Region    string
	Records   []domain.RawRecord
	Fallback  bool
	Exhausted bool
	Attempts  []domain.AttemptLog
}

// Resolver walks a source's strategies in declared order until one yields records.
type Resolver struct {
	static   ports.StaticFetcher
	rendered ports.RenderedFetcher
	scanners *scanner.Registry
	logger   *slog.Logger
}

// New wires transports and scanners. Either fetcher may be nil when no source needs it.
func New(static ports.StaticFetcher, rendered ports.RenderedFetcher, scanners *scanner.Registry, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{static: static, rendered: rendered, scanners: scanners, logger: log}
}

// Plan validates the strategy list of src and expands region substitutions into concrete steps.
// Every problem is reported as *domain.ConfigurationError before any fetch happens.
func (r *Resolver) Plan(src domain.ChartSource) ([]Step, error) {
	if len(src.Strategies) == 0 {
		return nil, domain.NewConfigurationError(src.ID, "strategy list is empty")
	}

	names := make(map[string]int, len(src.Strategies))
	steps := make([]Step, 0, len(src.Strategies))

	for i, st := range src.Strategies {
		if _, dup := names[st.Name]; dup {
			return nil, domain.NewConfigurationError(src.ID, "duplicate strategy name %q", st.Name)
		}
		names[st.Name] = i

		if !st.IsSubstitution() {
			if err := r.checkStrategy(src.ID, st); err != nil {
				return nil, err
			}
			steps = append(steps, Step{Strategy: st, Region: src.Region})
			continue
		}

		step, err := substitute(src, i, st, names)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}

	return steps, nil
}

// Resolve attempts the plan of src in order. Exhaustion is a result, not an error; only
// configuration problems and cancellation of ctx are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, src domain.ChartSource) (Result, error) {
	plan, err := r.Plan(src)
	if err != nil {
		return Result{}, err
	}

	log := r.logger.With("source", src.ID)
	var attempts []domain.AttemptLog

	for i, step := range plan {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		records, err := r.attempt(ctx, src, step)
		if err == nil && len(records) == 0 {
			err = errNoRecords
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			log.Warn("strategy attempt failed", "strategy", step.Strategy.Name, "region", step.Region, "error", err)
			attempts = append(attempts, domain.AttemptLog{
				Strategy: step.Strategy.Name,
				Region:   step.Region,
				Error:    err.Error(),
			})
			continue
		}

		log.Debug("strategy succeeded", "strategy", step.Strategy.Name, "region", step.Region, "records", len(records))
		return Result{
			Strategy: step.Strategy.Name,
			Region:   step.Region,
			Records:  records,
			Fallback: i > 0,
			Attempts: attempts,
		}, nil
	}

	return Result{Exhausted: true, Attempts: attempts}, nil
}

func (r *Resolver) attempt(ctx context.Context, src domain.ChartSource, step Step) ([]domain.RawRecord, error) {
	st := step.Strategy

	target, err := expandURL(src, st.URL, step.Region)
	if err != nil {
		return nil, err
	}

	var body []byte
	switch st.Kind {
	case domain.StrategyRendered:
		if r.rendered == nil {
			return nil, fmt.Errorf("no rendered transport configured")
		}
		body, err = r.rendered.FetchRendered(ctx, ports.RenderedRequest{
			URL:             target,
			ReadyMarker:     st.ReadyMarker,
			Timeout:         st.Timeout,
			DismissSelector: st.DismissSelector,
			ScrollToBottom:  st.ScrollToBottom,
			FollowLink:      st.FollowLink,
		})
	default:
		if r.static == nil {
			return nil, fmt.Errorf("no static transport configured")
		}
		attemptCtx, cancel := context.WithTimeout(ctx, st.Timeout)
		body, err = r.static.FetchStatic(attemptCtx, target, st.Headers)
		cancel()
	}
	if err != nil {
		return nil, err
	}

	sc, err := r.scanners.Resolve(st.Parser)
	if err != nil {
		return nil, err
	}
	records, err := sc.Scan(body, st.Scheme)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", st.Parser, err)
	}
	return records, nil
}

func (r *Resolver) checkStrategy(sourceID string, st domain.FetchStrategy) error {
	if strings.TrimSpace(st.URL) == "" {
		return domain.NewConfigurationError(sourceID, "strategy %s has no url", st.Name)
	}
	if st.Timeout <= 0 {
		return domain.NewConfigurationError(sourceID, "strategy %s has no timeout", st.Name)
	}
	switch st.Kind {
	case domain.StrategyStatic:
	case domain.StrategyRendered:
		if strings.TrimSpace(st.ReadyMarker) == "" {
			return domain.NewConfigurationError(sourceID, "rendered strategy %s has no ready marker", st.Name)
		}
	default:
		return domain.NewConfigurationError(sourceID, "strategy %s has unknown kind %q", st.Name, st.Kind)
	}
	if r.scanners == nil || !r.scanners.Has(st.Parser) {
		return domain.NewConfigurationError(sourceID, "strategy %s uses unknown parser %q", st.Name, st.Parser)
	}
	return nil
}

// substitute binds a region substitution to the earlier strategy it re-runs. Substitutions
// never chain, so a failing substitute region cannot trigger another substitution.
func substitute(src domain.ChartSource, index int, st domain.FetchStrategy, names map[string]int) (Step, error) {
	baseName := st.SubstituteOf
	if baseName == "" {
		if index == 0 {
			return Step{}, domain.NewConfigurationError(src.ID, "substitution %s has no earlier strategy", st.Name)
		}
		baseName = src.Strategies[index-1].Name
	}

	baseIndex, ok := names[baseName]
	if !ok || baseIndex >= index {
		return Step{}, domain.NewConfigurationError(src.ID, "substitution %s references unknown or later strategy %q", st.Name, baseName)
	}

	base := src.Strategies[baseIndex]
	if base.IsSubstitution() {
		return Step{}, domain.NewConfigurationError(src.ID, "substitution %s chains through substitution %s", st.Name, base.Name)
	}
	if st.SubstituteRegion == src.Region {
		return Step{}, domain.NewConfigurationError(src.ID, "substitution %s falls back to its own region %q", st.Name, st.SubstituteRegion)
	}
	if !regionSensitive(src, base.URL, st.SubstituteRegion) {
		return Step{}, domain.NewConfigurationError(src.ID, "substitution %s repeats the request of %s: url %q does not vary by region", st.Name, base.Name, base.URL)
	}

	bound := base
	bound.Name = st.Name
	bound.SubstituteOf = ""
	bound.SubstituteRegion = ""
	return Step{Strategy: bound, Region: st.SubstituteRegion}, nil
}

// regionSensitive reports whether raw expands differently for the source region and region.
func regionSensitive(src domain.ChartSource, raw, region string) bool {
	if strings.Contains(raw, regionPlaceholder) {
		return true
	}
	if !strings.Contains(raw, regionParamPlaceholder) {
		return false
	}
	own, sub := src.RegionParams[src.Region], src.RegionParams[region]
	return own == "" || sub == "" || own != sub
}

func expandURL(src domain.ChartSource, raw, region string) (string, error) {
	if strings.Contains(raw, regionPlaceholder) {
		if region == "" {
			return "", fmt.Errorf("url needs a region but source %s has none", src.ID)
		}
		raw = strings.ReplaceAll(raw, regionPlaceholder, region)
	}
	if strings.Contains(raw, regionParamPlaceholder) {
		param, ok := src.RegionParams[region]
		if !ok || param == "" {
			return "", fmt.Errorf("no region parameter for region %q", region)
		}
		raw = strings.ReplaceAll(raw, regionParamPlaceholder, param)
	}
	return raw, nil
}
