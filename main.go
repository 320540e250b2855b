package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chepyr/task-store/internal/config"
	"github.com/chepyr/task-store/internal/db"
	"github.com/chepyr/task-store/internal/handlers"
	"github.com/chepyr/task-store/internal/logger"
)

func main() {
	if err := run(); err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("tasks server failed")
	}
}

// run owns every resource so deferred cleanup happens on all exit paths.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, logCloser, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logCloser.Close()

	dbConn, err := initDB(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}()

	handler := initHandler(cfg, log, dbConn)
	defer handler.RateLimiter.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return startServer(ctx, cfg, log, initServer(cfg, handler), handler.WSHub)
}

func initDB(cfg *config.Config, log zerolog.Logger) (*sql.DB, error) {
	dbConn, err := db.Connect(cfg.DB.Driver, cfg.DB.DSN, cfg.DB.MaxOpenConns, cfg.DB.MaxIdleConns)
	if err != nil {
		return nil, fmt.Errorf("connect to %s database: %w", cfg.DB.Driver, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.RequestTimeout)
	defer cancel()
	if err := db.EnsureSchema(ctx, dbConn, cfg.DB.Driver); err != nil {
		dbConn.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	log.Info().
		Str("driver", cfg.DB.Driver).
		Msg("connected to database")
	return dbConn, nil
}

func initHandler(cfg *config.Config, log zerolog.Logger, dbConn *sql.DB) *handlers.Handler {
	return &handlers.Handler{
		TaskRepo:     db.NewTaskRepository(dbConn),
		RateLimiter:  handlers.NewRateLimiter(cfg.WS.RateLimit, cfg.WS.RateWindow),
		WSHub:        handlers.NewWSHub(log),
		Logger:       log,
		Timeout:      cfg.Server.RequestTimeout,
		ClientOrigin: cfg.Server.ClientOrigin,
	}
}

func initServer(cfg *config.Config, handler *handlers.Handler) *http.Server {
	if cfg.Env != config.EnvLocal {
		gin.SetMode(gin.ReleaseMode)
	}
	return &http.Server{
		Addr:    cfg.Address(),
		Handler: handlers.NewRouter(handler),
	}
}

// startServer serves until ctx is done, then shuts down gracefully. A listen
// failure is returned instead of exiting so callers can release resources.
func startServer(ctx context.Context, cfg *config.Config, log zerolog.Logger, server *http.Server, hub *handlers.WSHub) error {
	log.Info().
		Str("addr", server.Addr).
		Str("client_origin", cfg.Server.ClientOrigin).
		Msg("starting tasks server")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		hub.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve on %s: %w", server.Addr, err)
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}
