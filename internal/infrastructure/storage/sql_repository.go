package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"ChartAggregator/internal/domain"
	"ChartAggregator/internal/ports"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"

	runsTable = "chart_runs"
)

const createRunsTable = `CREATE TABLE IF NOT EXISTS chart_runs (
	source_id      TEXT NOT NULL,
	period_key     TEXT NOT NULL,
	status         TEXT NOT NULL,
	failure_reason TEXT NOT NULL DEFAULT '',
	revision       TEXT NOT NULL,
	entry_count    INTEGER NOT NULL,
	document       TEXT NOT NULL,
	acquired_at    TIMESTAMP NOT NULL,
	PRIMARY KEY (source_id, period_key)
)`

// SQLRepository persists aggregation runs into Postgres or SQLite, one row per source and period.
type SQLRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.ArtifactStore = (*SQLRepository)(nil)

// NewSQLRepository wires a sql.DB opened with driver.
func NewSQLRepository(db *sql.DB, driver string) *SQLRepository {
	var placeholder sq.PlaceholderFormat = sq.Question
	if driver == DriverPostgres {
		placeholder = sq.Dollar
	}
	return &SQLRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
	}
}

// OpenSQLRepository opens the database, checks connectivity and creates the runs table.
func OpenSQLRepository(ctx context.Context, driver, dsn string) (*SQLRepository, error) {
	switch driver {
	case DriverPostgres:
	case DriverSQLite:
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("ensure data dir: %w", err)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL;`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("pragma journal_mode: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	repo := NewSQLRepository(db, driver)
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Migrate creates the runs table when missing.
func (r *SQLRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createRunsTable); err != nil {
		return fmt.Errorf("create %s: %w", runsTable, err)
	}
	return nil
}

// Write upserts the run document for (sourceID, periodKey).
func (r *SQLRepository) Write(ctx context.Context, sourceID, periodKey string, run domain.AggregationRun) error {
	document, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}

	query, args, err := r.builder.
		Insert(runsTable).
		Columns("source_id", "period_key", "status", "failure_reason", "revision", "entry_count", "document", "acquired_at").
		Values(sourceID, periodKey, string(run.Status), string(run.FailureReason), run.Revision, len(run.Entries), string(document), run.AcquiredAt).
		Suffix(`ON CONFLICT (source_id, period_key) DO UPDATE
              SET status = excluded.status,
                  failure_reason = excluded.failure_reason,
                  revision = excluded.revision,
                  entry_count = excluded.entry_count,
                  document = excluded.document,
                  acquired_at = excluded.acquired_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// Read returns the stored run or domain.ErrNotFound.
func (r *SQLRepository) Read(ctx context.Context, sourceID, periodKey string) (domain.AggregationRun, error) {
	query, args, err := r.builder.
		Select("document").
		From(runsTable).
		Where(sq.Eq{"source_id": sourceID, "period_key": periodKey}).
		ToSql()
	if err != nil {
		return domain.AggregationRun{}, fmt.Errorf("build select: %w", err)
	}

	var document string
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&document); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AggregationRun{}, fmt.Errorf("%w: %s %s", domain.ErrNotFound, sourceID, periodKey)
		}
		return domain.AggregationRun{}, fmt.Errorf("select run: %w", err)
	}

	var run domain.AggregationRun
	if err := json.Unmarshal([]byte(document), &run); err != nil {
		return domain.AggregationRun{}, fmt.Errorf("decode run: %w", err)
	}
	return run, nil
}

// Count returns how many rows exist for sourceID.
func (r *SQLRepository) Count(ctx context.Context, sourceID string) (int, error) {
	query, args, err := r.builder.
		Select("COUNT(*)").
		From(runsTable).
		Where(sq.Eq{"source_id": sourceID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

// Close releases the underlying database handle.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}
