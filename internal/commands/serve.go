package commands

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/chepyr/go-task-api/internal/cache"
	"github.com/chepyr/go-task-api/internal/config"
	"github.com/chepyr/go-task-api/internal/db"
	"github.com/chepyr/go-task-api/internal/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, log, dbConn, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := dbConn.Close(); err != nil {
				log.Error().Err(err).Msg("error closing database connection")
			}
		}()

		if err := db.Migrate(ctx, dbConn); err != nil {
			log.Error().Err(err).Msg("migration failed")
			return err
		}

		redisClient, err := initRedis(ctx, cfg, log)
		if err != nil {
			return err
		}
		if redisClient != nil {
			defer redisClient.Close()
		}

		handler := initHandlers(cfg, log, dbConn, redisClient)

		sweepCtx, stopSweep := context.WithCancel(context.Background())
		defer stopSweep()
		go sweepSessions(sweepCtx, handler.SessionRepo, cfg.Auth.SessionSweepInterval, cfg.Database.QueryTimeout, log)

		server := initServer(cfg, handler)
		return startServer(server, cfg, log)
	},
}

func initRedis(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, error) {
	if cfg.Redis.URL == "" {
		log.Info().Msg("session cache disabled")
		return nil, nil
	}
	client, err := cache.OpenRedis(ctx, cfg.Redis.URL)
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to redis")
		return nil, err
	}
	log.Info().Msg("connected to redis")
	return client, nil
}

func initHandlers(cfg *config.Config, log zerolog.Logger, dbConn *sql.DB, redisClient *redis.Client) *handlers.Handler {
	handler := &handlers.Handler{
		UserRepo:     db.NewUserRepository(dbConn),
		SessionRepo:  db.NewSessionRepository(dbConn),
		TaskRepo:     db.NewTaskRepository(dbConn),
		TagRepo:      db.NewTagRepository(dbConn),
		WSHub:        handlers.NewWSHub(log),
		Logger:       log,
		QueryTimeout: cfg.Database.QueryTimeout,
		SessionTTL:   cfg.Auth.SessionTTL,
	}
	if redisClient != nil {
		handler.SessionCache = cache.NewRedisSessionCache(redisClient)
	}
	return handler
}

func initServer(cfg *config.Config, handler *handlers.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}
}

func startServer(server *http.Server, cfg *config.Config, log zerolog.Logger) error {
	log.Info().Str("addr", server.Addr).Msg("starting server")

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serverErr:
		log.Error().Err(err).Msg("server failed")
		return err
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
