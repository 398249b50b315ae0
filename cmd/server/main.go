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

	"github.com/careline/realtime/internal/auth"
	"github.com/careline/realtime/internal/cache"
	"github.com/careline/realtime/internal/config"
	"github.com/careline/realtime/internal/database"
	"github.com/careline/realtime/internal/handlers"
	"github.com/careline/realtime/internal/websocket"
	"github.com/careline/realtime/pkg/logger"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "realtime",
		Short: "Realtime presence, messaging and call-signaling hub",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the websocket hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	var profiles database.ProfileLookup = db
	var cacheStats handlers.CacheReporter
	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		profileCache := cache.NewProfileCache(rdb, db, cfg.ProfileCacheTTL, log)
		profiles, cacheStats = profileCache, profileCache
		log.Info().Msg("profile cache enabled")
	}

	hub := websocket.NewHub(db, profiles, log)

	authService := auth.NewService(cfg.JWTSecret, cfg.IsDev())
	wsHandlers := handlers.NewWebSocketHandlers(authService, hub, clientOptions(cfg), cfg.CORSOrigins, log)
	healthHandlers := handlers.NewHealthHandlers(hub, db, cacheStats)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	e.Use(handlers.Recovery(log))
	e.Use(handlers.RequestID())
	e.Use(handlers.Logger(log))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", handlers.RequestIDHeader},
	}))

	wsHandlers.RegisterRoutes(e)
	healthHandlers.RegisterRoutes(e)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr()).Str("version", version).Msg("starting server")
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	if cfg.Typing.IdleTimeout > 0 {
		g.Go(func() error {
			hub.RunTypingSweeper(gctx, cfg.Typing.IdleTimeout)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		hub.Shutdown()
		if err := e.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}

// clientOptions starts from the websocket defaults and applies whatever the
// config sets.
func clientOptions(cfg *config.Config) websocket.ClientOptions {
	opts := websocket.DefaultClientOptions()
	if cfg.WS.SendBuffer > 0 {
		opts.SendBuffer = cfg.WS.SendBuffer
	}
	if cfg.WS.WriteWait > 0 {
		opts.WriteWait = cfg.WS.WriteWait
	}
	if cfg.WS.PongWait > 0 {
		opts.PongWait = cfg.WS.PongWait
	}
	if cfg.WS.PingPeriod > 0 {
		opts.PingPeriod = cfg.WS.PingPeriod
	}
	if cfg.WS.MaxMessageSize > 0 {
		opts.MaxMessageSize = cfg.WS.MaxMessageSize
	}
	return opts
}

// openDatabase connects to Postgres, or falls back to the in-memory store in
// development when no DATABASE_URL is configured.
func openDatabase(ctx context.Context, cfg *config.Config, log zerolog.Logger) (database.Database, error) {
	if cfg.DatabaseURL == "" {
		if !cfg.IsDev() {
			return nil, errors.New("DATABASE_URL is required")
		}
		log.Warn().Msg("DATABASE_URL not set, using in-memory store")
		return database.NewMemoryDB(), nil
	}

	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	log.Info().Msg("connected to database")
	return db, nil
}
