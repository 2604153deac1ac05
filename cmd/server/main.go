package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/q4ZAr/boost-market/internal/application"
	"github.com/q4ZAr/boost-market/internal/domain"
	"github.com/q4ZAr/boost-market/internal/infrastructure/memchain"
	"github.com/q4ZAr/boost-market/internal/infrastructure/postgres"
	"github.com/q4ZAr/boost-market/internal/infrastructure/sqlite"
	"github.com/q4ZAr/boost-market/internal/infrastructure/veoracle"
	httpHandler "github.com/q4ZAr/boost-market/internal/interfaces/http"
	"github.com/q4ZAr/boost-market/pkg/config"
	"github.com/q4ZAr/boost-market/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Environment)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting boost market...")

	if err := run(cfg, log); err != nil {
		log.Fatalw("Service stopped with error", "error", err)
	}
	log.Info("Server shutdown complete")
}

// journal is an event store that can report readiness.
type journal interface {
	domain.EventRepository
	httpHandler.Pinger
}

func openJournal(cfg *config.Config, log *logger.Logger) (journal, func(), error) {
	switch cfg.Journal.Driver {
	case "postgres":
		if err := postgres.RunMigrations(cfg.Database.URL, log); err != nil {
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		db, err := postgres.NewConnection(&cfg.Database, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return postgres.NewRepository(db, log), db.Close, nil
	case "sqlite":
		j, err := sqlite.Open(cfg.Journal.SQLitePath, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite journal: %w", err)
		}
		return j, func() { j.Close() }, nil
	case "none", "":
		log.Warn("Event journal disabled; events are not persisted")
		return nil, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown journal driver %q", cfg.Journal.Driver)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	params, err := application.ParamsFromConfig(&cfg.Market)
	if err != nil {
		return fmt.Errorf("invalid market params: %w", err)
	}

	events, closeJournal, err := openJournal(cfg, log)
	if err != nil {
		return err
	}
	defer closeJournal()

	clock := domain.SystemClock{}

	var opts []memchain.Option
	var oracle *veoracle.Client
	if cfg.Oracle.BaseURL != "" {
		oracle, err = veoracle.NewClient(
			cfg.Oracle.BaseURL,
			cfg.Oracle.RequestTimeout,
			cfg.Oracle.MaxRetries,
			cfg.Oracle.RetryDelay,
			cfg.Oracle.CacheSize,
			clock,
			log.WithFields(map[string]interface{}{"component": "veoracle"}),
		)
		if err != nil {
			return fmt.Errorf("failed to create oracle client: %w", err)
		}
		opts = append(opts, memchain.WithVotingEscrow(oracle))
		log.Infow("Reading voting escrow from oracle", "url", cfg.Oracle.BaseURL)
	}
	chain := memchain.NewChain(clock, opts...)

	deps := application.Dependencies{
		Escrow:  chain.Escrow(),
		Boosts:  chain.Boosts(),
		Tokens:  chain.Tokens(),
		Journal: chain,
		Clock:   clock,
	}
	if oracle != nil {
		deps.Escrow = oracle
	}
	routerOpts := httpHandler.RouterOptions{
		RequestTimeout: cfg.Server.RequestTimeout,
		RateLimit:      float64(cfg.Server.RateLimit),
		RateBurst:      cfg.Server.RateBurst,
	}
	if events != nil {
		deps.Events = events
		routerOpts.Journal = events
	}
	if cfg.Server.Simulator {
		routerOpts.Simulator = chain
	}

	engine, err := application.NewEngine(params, deps, log)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	log.Infow("Engine ready",
		"address", engine.Address().Hex(),
		"journal", cfg.Journal.Driver,
		"simulator", cfg.Server.Simulator,
	)

	if cfg.Keeper.Enabled {
		keeper := application.NewKeeper(engine, cfg.Keeper.Schedule, log)
		if err := keeper.Start(); err != nil {
			return fmt.Errorf("failed to start keeper: %w", err)
		}
		defer keeper.Stop()
	}

	router := httpHandler.NewRouter(engine, routerOpts, log)

	servers := []*http.Server{{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout,
		IdleTimeout:  60 * time.Second,
	}}
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{
			Addr:    ":" + cfg.Metrics.Port,
			Handler: metricsMux,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			log.Infow("Starting HTTP server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Errorw("Server forced to shutdown", "addr", srv.Addr, "error", err)
			}
		}
		return nil
	})

	return g.Wait()
}
