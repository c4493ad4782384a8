package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/microquote/fleet/internal/bus"
	"github.com/microquote/fleet/internal/config"
	"github.com/microquote/fleet/internal/feed"
	"github.com/microquote/fleet/internal/keystore"
	"github.com/microquote/fleet/internal/ledger"
	"github.com/microquote/fleet/internal/logging"
	"github.com/microquote/fleet/internal/maker"
	"github.com/microquote/fleet/internal/version"
)

const streamRedialDelay = 5 * time.Second

func main() {
	configPath := flag.String("config", "configs/marketmaker.yaml", "path to config file")
	encryptKey := flag.String("encrypt-key", "", "encrypt the given account key and print the envelope")
	flag.Parse()

	if *encryptKey != "" {
		password, err := keystore.PromptPassword("new key password: ")
		if err != nil {
			slog.Error("failed to read password", "error", err)
			os.Exit(1)
		}
		envelope, err := keystore.Encrypt([]byte(*encryptKey), password)
		if err != nil {
			slog.Error("failed to encrypt key", "error", err)
			os.Exit(1)
		}
		os.Stdout.WriteString(envelope + "\n")
		return
	}

	handle, err := config.NewHandle(*configPath, slog.Default())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := handle.Current()

	logger := logging.New(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting market maker",
		"version", version.Version,
		"commit", version.Commit,
		"node", cfg.Node.Name,
		"account", cfg.Ledger.Account,
	)

	// Decrypt the account key before daemonizing; a wrong password must be
	// visible at the terminal, not buried in a log.
	var signingKey string
	if cfg.Ledger.EncryptedKey != "" {
		password, err := keystore.PromptPassword("account key password: ")
		if err != nil {
			logger.Error("failed to read password", "error", err)
			os.Exit(1)
		}
		key, err := keystore.Decrypt(cfg.Ledger.EncryptedKey, password)
		if err != nil {
			logger.Error("failed to decrypt account key", "error", err)
			os.Exit(1)
		}
		signingKey = string(key)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := handle.Watch(ctx); err != nil {
		logger.Error("failed to watch config", "error", err)
		os.Exit(1)
	}
	defer handle.Close()

	b, err := bus.NewRedis(ctx, cfg.Bus.RedisAddr, logger)
	if err != nil {
		logger.Error("failed to connect to bus", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	apiClient := ledger.NewClient(cfg.Ledger.RestURL,
		ledger.WithTimeout(cfg.Ledger.Timeout),
		ledger.WithLogger(logger),
		ledger.WithSigningKey(signingKey),
	)

	engine := maker.NewEngine(handle, apiClient, logger)

	// Cross-peer stats drive pricing: each aggregation cycle yields a spot
	// consensus and a vol midpoint per symbol, from which at-the-money
	// premiums per duration bucket are derived.
	consumer := feed.NewConsumer(cfg.Node.Name, b, feed.Listeners{
		OnStats: func(symbol string, stats feed.Stats) {
			if stats.Average == nil || stats.Vol == nil {
				return
			}
			buckets := bucketSeconds(handle.Current())
			premiums := maker.PremiumsATM(*stats.Average, *stats.Vol, feed.TargetVolInterval, buckets)
			engine.OnTarget(ctx, symbol, *stats.Average, premiums)
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

	go runStream(ctx, cfg, engine, logger)

	logger.Info("market maker running", "markets", cfg.Feed.Markets)

	<-ctx.Done()
	logger.Info("market maker stopped")
}

// runStream keeps a ledger event stream alive, redialing after failures.
// Block notifications trigger reconciliation passes; consensus ticks update
// the per-market reference price.
func runStream(ctx context.Context, cfg *config.Config, engine *maker.Engine, logger *slog.Logger) {
	for ctx.Err() == nil {
		streamCfg := ledger.DefaultStreamConfig()
		streamCfg.URL = cfg.Ledger.WSURL
		streamCfg.Markets = cfg.Feed.Markets

		stream := ledger.NewStream(streamCfg, logger)
		if err := stream.Connect(ctx); err != nil {
			logger.Warn("ledger stream connect failed, retrying",
				"url", streamCfg.URL,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(streamRedialDelay):
			}
			continue
		}

		consumeStream(ctx, stream, engine, logger)
		stream.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(streamRedialDelay):
		}
	}
}

func consumeStream(ctx context.Context, stream *ledger.Stream, engine *maker.Engine, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case block := <-stream.Blocks():
			logger.Debug("block", "height", block.Height)
			engine.OnBlock(ctx)
		case tick := <-stream.Ticks():
			engine.SetConsensus(tick.Market, tick.Consensus)
		case err := <-stream.Errors():
			logger.Warn("ledger stream error, reconnecting", "error", err)
			return
		}
	}
}

func bucketSeconds(cfg *config.Config) []int64 {
	out := make([]int64, len(cfg.Maker.Durations))
	for i, d := range cfg.Maker.Durations {
		out[i] = d.Seconds
	}
	return out
}
