package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"ChartAggregator/internal/app"
	"ChartAggregator/internal/config"
	"ChartAggregator/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML configuration (defaults to $CHART_AGGREGATOR_CONFIG)")
	schedule := flag.Bool("schedule", false, "repeat the acquisition every scheduler.interval instead of running once")
	serveAddr := flag.String("serve", "", "serve stored charts over HTTP on this address (overrides http.addr)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.New("error").Error("load config", "error", err)
		return 1
	}
	logger := logging.NewWithFormat(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application init failed", "error", err)
		return 1
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("close application", "error", err)
		}
	}()

	addr := cfg.HTTP.Addr
	if *serveAddr != "" {
		addr = *serveAddr
	}

	g, gctx := errgroup.WithContext(ctx)
	if addr != "" {
		g.Go(func() error { return application.Serve(gctx, addr) })
	}
	switch {
	case *schedule:
		g.Go(func() error { return application.RunScheduled(gctx) })
	case addr == "":
		g.Go(func() error { return application.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("application stopped", "error", err)
		return 1
	}
	return 0
}
