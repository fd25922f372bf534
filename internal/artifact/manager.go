package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ChartAggregator/internal/domain"
	"ChartAggregator/internal/ports"
)

// revisionNamespace scopes content-derived artifact revisions.
var revisionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("chartaggregator/artifact"))

// Outcome collects everything known about one source once resolution and normalization ended.
type Outcome struct {
	Source    domain.ChartSource
	Instant   time.Time
	Strategy  string
	Region    string
	Fallback  bool
	Exhausted bool
	Attempts  []domain.AttemptLog
	Entries   []domain.CanonicalEntry
	// Reason explains an empty Entries slice when resolution did not exhaust.
	Reason domain.FailureReason
}

// Manager finalizes aggregation runs into the artifact store.
type Manager struct {
	store    ports.ArtifactStore
	location *time.Location
	logger   *slog.Logger
}

// NewManager wires the store; period keys are computed in loc (UTC when nil).
func NewManager(store ports.ArtifactStore, loc *time.Location, log *slog.Logger) *Manager {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{store: store, location: loc, logger: log}
}

// PeriodKey truncates instant to the period granularity in the manager's location.
// Daily is the only granularity sources declare today.
func (m *Manager) PeriodKey(_ domain.Period, instant time.Time) string {
	return instant.In(m.location).Format("2006-01-02")
}

// Finalize derives the run status, stamps a content revision and overwrites the artifact
// for (source, period). A cancelled ctx finalizes nothing.
func (m *Manager) Finalize(ctx context.Context, in Outcome) (domain.AggregationRun, error) {
	if err := ctx.Err(); err != nil {
		return domain.AggregationRun{}, err
	}

	run := Build(in, m.PeriodKey(in.Source.Period, in.Instant))

	if err := m.store.Write(ctx, run.SourceID, run.PeriodKey, run); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.AggregationRun{}, ctxErr
		}
		return domain.AggregationRun{}, fmt.Errorf("%w: source %s period %s: %w", domain.ErrArtifactWrite, run.SourceID, run.PeriodKey, err)
	}

	m.logger.Info("run finalized",
		"source", run.SourceID,
		"period", run.PeriodKey,
		"status", run.Status,
		"strategy", run.Strategy,
		"entries", len(run.Entries),
		"reason", run.FailureReason,
	)
	return run, nil
}

// Build assembles the immutable run for periodKey without persisting it.
func Build(in Outcome, periodKey string) domain.AggregationRun {
	run := domain.AggregationRun{
		SchemaVersion: domain.ArtifactSchemaVersion,
		SourceID:      in.Source.ID,
		PeriodKey:     periodKey,
		AcquiredAt:    in.Instant.UTC(),
		Strategy:      in.Strategy,
		Region:        in.Region,
		Attempts:      append([]domain.AttemptLog(nil), in.Attempts...),
		Entries:       []domain.CanonicalEntry{},
	}

	switch {
	case in.Exhausted:
		run.Status = domain.StatusFailed
		run.FailureReason = domain.ReasonSourceExhausted
		run.Strategy = ""
		run.Region = ""
	case len(in.Entries) == 0:
		run.Status = domain.StatusFailed
		run.FailureReason = in.Reason
		if run.FailureReason == "" {
			run.FailureReason = domain.ReasonNoValidEntries
		}
	case in.Fallback:
		run.Status = domain.StatusPartialSuccess
		run.Entries = append(run.Entries, in.Entries...)
	default:
		run.Status = domain.StatusSuccess
		run.Entries = append(run.Entries, in.Entries...)
	}

	run.Revision = revision(run)
	return run
}

// revision is a UUIDv5 over the run content; equal content always yields the same revision.
func revision(run domain.AggregationRun) string {
	payload, err := json.Marshal(struct {
		SourceID      string                  `json:"sourceId"`
		PeriodKey     string                  `json:"periodKey"`
		Status        domain.RunStatus        `json:"status"`
		FailureReason domain.FailureReason    `json:"failureReason"`
		Strategy      string                  `json:"strategy"`
		Region        string                  `json:"region"`
		Entries       []domain.CanonicalEntry `json:"entries"`
	}{run.SourceID, run.PeriodKey, run.Status, run.FailureReason, run.Strategy, run.Region, run.Entries})
	if err != nil {
		return uuid.NewSHA1(revisionNamespace, []byte(run.SourceID+"|"+run.PeriodKey)).String()
	}
	return uuid.NewSHA1(revisionNamespace, payload).String()
}
