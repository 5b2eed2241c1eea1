package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/bukeqi/service/config"
	"github.com/brojonat/bukeqi/service/gemini"
	"github.com/brojonat/bukeqi/service/ledger"
	"github.com/brojonat/bukeqi/service/metrics"
	natspkg "github.com/brojonat/bukeqi/service/nats"
	"github.com/brojonat/bukeqi/service/oracle"
	"github.com/brojonat/bukeqi/service/server"
	"github.com/brojonat/bukeqi/service/solana"
	"github.com/brojonat/bukeqi/service/storage"
	"github.com/brojonat/bukeqi/service/wallet"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"chain", cfg.Chain,
		"storage", cfg.StorageBackend,
		"log_level", cfg.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	store, closeStore, err := openStore(ctx, cfg, metricsCollector, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	gen, fetcher, closeChain, err := openChain(ctx, cfg, metricsCollector, logger)
	if err != nil {
		return err
	}
	defer closeChain()

	// Generative backend; without a key every call answers with a fallback phrase
	genaiClient, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, metricsCollector, logger)
	if err != nil {
		return err
	}
	if !genaiClient.Connected() {
		logger.Warn("GEMINI_API_KEY not set, the oracle will only speak fallback phrases")
	}

	// Event publishing is optional
	var events oracle.EventSink
	if cfg.NATSURL != "" {
		publisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
		if err != nil {
			return fmt.Errorf("failed to create NATS publisher: %w", err)
		}
		defer publisher.Close()
		events = publisher
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	l := ledger.Load(ctx, store, time.Now(), logger.With("component", "ledger"))
	metricsCollector.SetLedgerEntries(l.Len())

	provider := wallet.NewProvider(store, gen, fetcher, logger)
	if id, ok := provider.Restore(ctx); ok {
		logger.Info("restored burner identity", "address", id.Address, "balance", id.Balance)
	}

	seq := oracle.New(l, genaiClient, genaiClient, provider, oracle.Options{
		MinSpeakDuration: cfg.MinSpeakDuration,
		PerCharDuration:  cfg.PerCharDuration,
		RitualPause:      cfg.RitualPause,
		SkipRitualPause:  cfg.RitualPause == 0,
		TributeCost:      cfg.TributeCost,
		Logger:           logger,
		Metrics:          metricsCollector,
		Events:           events,
	})

	httpServer := server.New(cfg.ServerAddr, seq, provider, metricsCollector, logger)

	logger.Info("server initialized, all dependencies ready",
		"ledger_entries", l.Len(),
		"genai_connected", genaiClient.Connected(),
		"nats_enabled", events != nil,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpServer.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		// Graceful shutdown with timeout. Closing the oracle first ends
		// open snapshot streams.
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		seq.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server gracefully: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// openStore builds the configured storage backend, wrapped with metrics.
func openStore(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (storage.Store, func(), error) {
	switch cfg.StorageBackend {
	case config.StorageMemory:
		logger.Warn("using in-memory storage, state is lost on restart")
		return storage.Instrument(storage.NewMemoryStore(), config.StorageMemory, m), func() {}, nil

	case config.StorageRedis:
		rs, err := storage.NewRedisStore(ctx, cfg.RedisURL, "bukeqi:")
		if err != nil {
			return nil, nil, err
		}
		logger.Info("connected to redis")
		return storage.Instrument(rs, config.StorageRedis, m), func() { rs.Close() }, nil

	case config.StoragePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		ps := storage.NewPostgresStore(pool)
		if err := ps.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("connected to database")
		return storage.Instrument(ps, config.StoragePostgres, m), pool.Close, nil

	default:
		fs, err := storage.NewFileStore(cfg.StateDir)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using file storage", "dir", cfg.StateDir)
		return storage.Instrument(fs, config.StorageFile, m), func() {}, nil
	}
}

// openChain builds the address generator and balance source for the
// configured chain.
func openChain(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (wallet.AddressGenerator, wallet.BalanceFetcher, func(), error) {
	switch cfg.Chain {
	case config.ChainSolana:
		endpoint, err := solana.SelectRandomEndpoint(solana.ParseEndpoints(cfg.SolanaRPCURL))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid SOLANA_RPC_URL: %w", err)
		}
		client := solana.NewClient(solana.NewRPCClient(endpoint), m, logger)
		logger.Info("initialized solana RPC client", "url", endpoint)
		return solana.AddressGenerator{}, client, func() {}, nil

	default:
		fetcher, rpcClient, err := wallet.DialEVM(ctx, cfg.EVMRPCURL, m, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("initialized EVM RPC client", "url", cfg.EVMRPCURL)
		return wallet.EVMAddressGenerator{}, fetcher, rpcClient.Close, nil
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	level, err := config.ParseLogLevel(levelStr)
	if err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
