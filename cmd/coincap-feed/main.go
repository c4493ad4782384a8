package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/microquote/fleet/internal/bus"
	"github.com/microquote/fleet/internal/config"
	"github.com/microquote/fleet/internal/feed"
	"github.com/microquote/fleet/internal/logging"
	"github.com/microquote/fleet/internal/source"
	"github.com/microquote/fleet/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/coincap.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting coincap feed",
		"version", version.Version,
		"commit", version.Commit,
		"node", cfg.Node.Name,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	b, err := bus.NewRedis(ctx, cfg.Bus.RedisAddr, logger)
	if err != nil {
		logger.Error("failed to connect to bus", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	producer := feed.NewProducer(cfg.Node.Name, cfg.Feed.SampleInterval, b, logger)
	if err := producer.Start(ctx); err != nil {
		logger.Error("failed to start producer", "error", err)
		os.Exit(1)
	}
	defer producer.Stop()

	src := source.NewCoinCap(source.CoinCapConfig{
		BaseURL:        cfg.Feed.SourceURL,
		SampleInterval: cfg.Feed.SampleInterval,
		Symbols:        cfg.Feed.Symbols,
		Ratios:         ratios(cfg.Feed.Ratios),
	}, producer, logger)

	logger.Info("backfilling price history...")
	if err := src.Start(ctx); err != nil {
		logger.Error("failed to start source", "error", err)
		os.Exit(1)
	}
	defer src.Stop()

	logger.Info("coincap feed running", "symbols", len(cfg.Feed.Symbols))

	<-ctx.Done()
	logger.Info("coincap feed stopped")
}

func ratios(rs []config.RatioConfig) []source.Ratio {
	out := make([]source.Ratio, len(rs))
	for i, r := range rs {
		out[i] = source.Ratio{Symbol: r.Symbol, Numerator: r.Numerator, Denominator: r.Denominator}
	}
	return out
}
