package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/microquote/fleet/internal/archive"
	"github.com/microquote/fleet/internal/bus"
	"github.com/microquote/fleet/internal/config"
	"github.com/microquote/fleet/internal/database"
	"github.com/microquote/fleet/internal/feed"
	"github.com/microquote/fleet/internal/logging"
	"github.com/microquote/fleet/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/monitor.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting monitor",
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

	// Optional Postgres archive of everything observed on the feed.
	var writer *archive.Writer
	if cfg.Archive.Enabled {
		logger.Info("connecting to archive database",
			"host", cfg.Archive.DB.Host,
			"database", cfg.Archive.DB.Name,
		)
		pool, err := database.Connect(ctx, cfg.Archive.DB)
		if err != nil {
			logger.Error("failed to connect to archive database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		writer = archive.NewWriter(archive.Config{
			BatchSize:     cfg.Archive.BatchSize,
			FlushInterval: cfg.Archive.FlushInterval,
		}, pool, logger)
		if err := writer.Start(ctx); err != nil {
			logger.Error("failed to start archive writer", "error", err)
			os.Exit(1)
		}
		defer writer.Stop()
	}

	record := func(kind, peerUUID, peerName, symbol string, value float64) {
		if writer == nil {
			return
		}
		writer.Record(archive.Row{
			ReceivedAt: time.Now(),
			PeerUUID:   peerUUID,
			PeerName:   peerName,
			Symbol:     symbol,
			Kind:       kind,
			Value:      value,
		})
	}

	consumer := feed.NewConsumer(cfg.Node.Name, b, feed.Listeners{
		OnTick: func(peerUUID, peerName, symbol string, tick float64) {
			logger.Debug("tick", "peer", peerName, "symbol", symbol, "value", tick)
			record("tick", peerUUID, peerName, symbol, tick)
		},
		OnVol: func(peerUUID, peerName, symbol string, vol float64) {
			logger.Debug("vol", "peer", peerName, "symbol", symbol, "value", vol)
			record("vol", peerUUID, peerName, symbol, vol)
		},
		OnStats: func(symbol string, stats feed.Stats) {
			attrs := []any{"symbol", symbol}
			if stats.Average != nil {
				attrs = append(attrs, "average", *stats.Average)
			}
			if stats.Vol != nil {
				attrs = append(attrs, "vol", *stats.Vol)
			}
			logger.Info("feed stats", attrs...)
		},
	}, logger)

	if err := consumer.Start(ctx); err != nil {
		logger.Error("failed to start consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Stop()

	for _, symbol := range cfg.Feed.Markets {
		if err := consumer.SubscribeSymbol(symbol); err != nil {
			logger.Error("failed to subscribe", "symbol", symbol, "error", err)
			os.Exit(1)
		}
	}

	logger.Info("monitor running",
		"markets", cfg.Feed.Markets,
		"archive", cfg.Archive.Enabled,
	)

	<-ctx.Done()
	logger.Info("monitor stopped")
}
