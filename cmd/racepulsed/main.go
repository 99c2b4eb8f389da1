package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"racepulse/internal/api"
	"racepulse/pkg/config"
	"racepulse/pkg/db"
	"racepulse/pkg/db/maintenance"
	"racepulse/pkg/kalman"
	"racepulse/pkg/leaderboard"
	"racepulse/pkg/location"
	"racepulse/pkg/logging"
	"racepulse/pkg/pipeline"
	"racepulse/pkg/route"
	"racepulse/pkg/store"
	"racepulse/pkg/tracker"
	"racepulse/pkg/version"
)

var (
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	configPath = flag.String("config", "configs/racepulse.yaml", "Path to config file")
)

func main() {
	flag.Parse()

	// Local overrides (REDIS_URL, EVENT_START_TIME) may live in a .env file
	_ = godotenv.Load()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config file generated: %s\n", *configPath)
		return
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("RacePulse Started", "version", version.Version)

	archive, err := db.Init(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer archive.Close()

	if err := maintenance.Run(ctx, archive, time.Duration(cfg.DB.Retention)); err != nil {
		slog.Error("Maintenance tasks failed", "error", err)
	}

	st, err := initStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	routes := route.NewStore(st, archive, route.Options{
		Spacing:   float64(cfg.Route.Spacing),
		CPSpacing: float64(cfg.Route.CPSpacing),
		TTL:       time.Duration(cfg.Route.TTL),
	})
	if n, err := routes.Rewarm(ctx); err != nil {
		slog.Warn("Route rewarm failed", "error", err)
	} else if n > 0 {
		slog.Info("Routes rewarmed from archive", "count", n)
	}

	eventStart, err := cfg.Event.StartUnix()
	if err != nil {
		return err
	}
	if eventStart == 0 {
		slog.Warn("No event start time configured, segment timing will anchor at a rolling fallback")
	}

	locations := location.NewStore(st, location.DefaultTTL)
	board := leaderboard.New(st, time.Duration(cfg.Checkpoint.LeaderboardTTL))
	tr := tracker.New()

	pipe := pipeline.New(routes, locations, st, board, tr, pipeline.Config{
		Kalman: kalman.Config{
			ProcessNoiseLatLng: cfg.Kalman.ProcessNoiseLatLng,
			ProcessNoiseAlt:    cfg.Kalman.ProcessNoiseAlt,
			MeasurementNoise:   cfg.Kalman.MeasurementNoise,
			InitialCovariance:  cfg.Kalman.InitialCovariance,
		},
		CheckpointRadius: float64(cfg.Checkpoint.Radius),
		MatchThreshold:   float64(cfg.Match.Threshold),
		BearingWeight:    cfg.Match.BearingWeight,
		EventStartSec:    eventStart,
		StoreTimeout:     time.Duration(cfg.Store.Timeout),
	})
	// A re-uploaded course invalidates the matcher's segment index
	routes.OnReplace(pipe.Matcher().Evict)

	return runServer(ctx, cfg, pipe, routes, board, locations, tr)
}

// initStore selects the real-time state backend from the config.
func initStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "", "memory":
		slog.Info("Using in-memory state store")
		return store.NewMemory(), nil
	case "redis":
		st, err := store.NewRedis(ctx, cfg.Store.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("Connected to redis state store")
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func runServer(ctx context.Context, cfg *config.Config, pipe *pipeline.Pipeline, routes *route.Store, board *leaderboard.Engine, locations *location.Store, tr *tracker.Tracker) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	srv := api.NewServer(cfg.Server.Address,
		api.NewCorrectionHandler(pipe),
		api.NewRouteHandler(routes),
		api.NewLeaderboardHandler(board, locations),
		api.NewLiveHandler(board, 0),
		api.NewStatsHandler(tr),
		shutdownFunc,
	)

	return runServerLifecycle(ctx, srv, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
