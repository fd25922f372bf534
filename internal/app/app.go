package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ChartAggregator/internal/artifact"
	"ChartAggregator/internal/config"
	"ChartAggregator/internal/domain"
	"ChartAggregator/internal/httpapi"
	"ChartAggregator/internal/infrastructure/blogger"
	"ChartAggregator/internal/infrastructure/llm"
	"ChartAggregator/internal/infrastructure/parser"
	"ChartAggregator/internal/infrastructure/scheduler"
	"ChartAggregator/internal/infrastructure/storage"
	"ChartAggregator/internal/infrastructure/telegram"
	"ChartAggregator/internal/infrastructure/transport"
	"ChartAggregator/internal/logging"
	"ChartAggregator/internal/ports"
	"ChartAggregator/internal/resolver"
	"ChartAggregator/internal/scanner"
	"ChartAggregator/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg         config.Config
	logger      *slog.Logger
	sources     []domain.ChartSource
	store       ports.ArtifactStore
	acquisition *usecase.Acquisition
	browser     *transport.ChromeFetcher
	closeStore  func() error
}

// New builds a runnable application instance. The artifact store is opened eagerly so a bad
// DSN fails at startup rather than on the first finalize.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	registry := scanner.NewRegistry(
		parser.NewHTMLScanner(),
		parser.NewCSVScanner(),
		parser.NewJSONScanner(),
	)

	static := transport.NewHTTPFetcher(nil, cfg.Acquisition.UserAgent).
		WithRawCapture(cfg.Acquisition.RawDir, baseLogger.With("component", "fetcher"))
	browser := transport.NewChromeFetcher(cfg.Browser, baseLogger.With("component", "browser"))
	res := resolver.New(static, browser, registry, baseLogger.With("component", "resolver"))

	store, closeStore, err := openStore(ctx, cfg.Store, cfg.Output.Dir)
	if err != nil {
		browser.Close()
		return nil, err
	}

	var publishers []ports.Publisher
	if cfg.Publish.Blogger.BlogID != "" && cfg.Publish.Blogger.AccessToken != "" {
		publishers = append(publishers, blogger.NewPublisher(cfg.Publish.Blogger, baseLogger.With("component", "publisher.blogger")))
	}
	if cfg.Publish.Telegram.BotToken != "" && cfg.Publish.Telegram.ChatID != "" {
		publishers = append(publishers, telegram.NewNotifier(cfg.Publish.Telegram))
	}

	var commentator ports.Commentator
	if cfg.ChatGPT.APIKey != "" {
		commentator = llm.NewChatGPTClient(cfg.ChatGPT)
	}

	sources := cfg.ChartSources()
	acquisition := usecase.NewAcquisition(usecase.AcquisitionDeps{
		Sources:        sources,
		Resolver:       res,
		Artifacts:      artifact.NewManager(store, cfg.Acquisition.Location(), baseLogger.With("component", "artifacts")),
		Publishers:     publishers,
		Commentator:    commentator,
		MaxConcurrency: cfg.Acquisition.MaxConcurrency,
		Logger:         baseLogger.With("component", "acquisition"),
	})

	baseLogger.Debug("application wired",
		"sources", len(sources),
		"store", cfg.Store.Driver,
		"publishers", len(publishers),
		"commentator", commentator != nil,
	)

	return &Application{
		cfg:         cfg,
		logger:      baseLogger,
		sources:     sources,
		store:       store,
		acquisition: acquisition,
		browser:     browser,
		closeStore:  closeStore,
	}, nil
}

// Run performs a single acquisition pass for the current instant.
func (a *Application) Run(ctx context.Context) error {
	report, err := a.acquisition.Run(ctx, time.Now())
	for _, run := range report.Runs {
		a.logger.Info("chart", "source", run.SourceID, "period", run.PeriodKey, "status", run.Status, "entries", len(run.Entries))
	}
	return err
}

// RunScheduled repeats the acquisition every configured interval until ctx is cancelled.
func (a *Application) RunScheduled(ctx context.Context) error {
	sched := usecase.NewScheduler(
		scheduler.NewTickerScheduler(a.cfg.Scheduler.Interval.Std()),
		a.acquisition,
		a.logger.With("component", "scheduler"),
	)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return sched.Stop(stopCtx)
}

// Serve exposes stored artifacts over HTTP until ctx is cancelled.
func (a *Application) Serve(ctx context.Context, addr string) error {
	handler := httpapi.NewHandler(a.store, a.sources, a.logger.With("component", "httpapi"))
	return httpapi.Serve(ctx, addr, handler.Router(), a.logger.With("component", "httpapi"))
}

// Close releases the browser and the artifact store.
func (a *Application) Close() error {
	a.browser.Close()
	if a.closeStore != nil {
		return a.closeStore()
	}
	return nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, outputDir string) (ports.ArtifactStore, func() error, error) {
	switch cfg.Driver {
	case storage.DriverPostgres, storage.DriverSQLite:
		repo, err := storage.OpenSQLRepository(ctx, cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open artifact store: %w", err)
		}
		return repo, repo.Close, nil
	default:
		return storage.NewFileStore(outputDir), nil, nil
	}
}
