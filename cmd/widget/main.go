package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"reservo/internal/api"
	"reservo/internal/bot"
	"reservo/internal/config"
	"reservo/internal/metrics"
	"reservo/internal/store"
	"reservo/internal/upstream"
	"reservo/internal/widget"
)

type backend interface {
	widget.Source
	widget.Submitter
}

type readinessCheck struct {
	name  string
	check func(context.Context) error
}

func main() {
	configPath := os.Getenv("RESERVO_CONFIG_PATH")

	var output io.Writer = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if !cfg.Logging.Pretty {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	setLogLevel(cfg.Logging.Level, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		src    backend
		checks []readinessCheck
		rdb    *redis.Client
	)
	switch cfg.Backend.Kind {
	case config.BackendSQLite:
		database, err := store.NewDB(cfg.Database.Path)
		if err != nil {
			logger.Fatal().Err(err).Msg("open db error")
		}
		defer database.Close()
		src = database
		checks = append(checks, readinessCheck{"db", database.Ready})

		if cfg.Backup.Enabled {
			go startBackupLoop(ctx, database, cfg, &logger)
		}
	default:
		client := upstream.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey, upstream.Options{
			Timeout:       cfg.BackendTimeout(),
			RatePerSecond: cfg.Backend.RatePerSecond,
			Burst:         cfg.Backend.Burst,
			ConfigTTL:     cfg.ConfigCacheTTL(),
			OccupancyTTL:  cfg.OccupancyCacheTTL(),
		}, &logger)
		if cfg.Redis.Address != "" && (cfg.ConfigCacheTTL() > 0 || cfg.OccupancyCacheTTL() > 0) {
			rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
			defer rdb.Close()
			client.UseRedisCache(rdb)
			checks = append(checks, readinessCheck{"redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() }})
		}
		src = client
		checks = append(checks, readinessCheck{"backend", client.HealthCheck})
	}

	opts := widget.Options{Concurrency: cfg.Widget.Concurrency}

	go startHealthServer(ctx, cfg.HealthCheckPort(), checks, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.PrometheusPort(), &logger)
	}

	if cfg.Telegram.Enabled {
		b, err := bot.New(cfg.Telegram.BotToken, cfg.Telegram.Debug, cfg.Telegram.BusinessID, src, src, opts, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("create bot error")
		}
		go b.Start(ctx)
	}

	server := api.NewServer(src, src, opts, &logger)

	// Backend and port changes need a restart.
	if err := config.Watch(ctx, configPath, 30*time.Second, func(updated *config.Config) {
		setLogLevel(updated.Logging.Level, &logger)
		server.Apply(widget.Options{Concurrency: updated.Widget.Concurrency}, updated.AllowedOrigins())
		logger.Info().
			Time("reloaded_at", time.Now()).
			Str("level", updated.Logging.Level).
			Int("concurrency", updated.Widget.Concurrency).
			Strs("allowed_origins", updated.AllowedOrigins()).
			Msg("config reloaded")
	}, func(err error) {
		logger.Error().Err(err).Msg("config reload failed")
	}); err != nil {
		logger.Error().Err(err).Msg("config watch failed")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort()),
		Handler:           server.Router(cfg.AllowedOrigins()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().Int("port", cfg.ServerPort()).Str("backend", cfg.Backend.Kind).Msg("widget API started")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("api server error")
	}
}

func setLogLevel(level string, logger *zerolog.Logger) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		logger.Warn().Str("level", level).Msg("unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func startBackupLoop(ctx context.Context, database *store.DB, cfg *config.Config, logger *zerolog.Logger) {
	ticker := time.NewTicker(cfg.BackupInterval())
	defer ticker.Stop()

	for {
		runBackupTask(ctx, database, cfg, logger)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func runBackupTask(ctx context.Context, database *store.DB, cfg *config.Config, logger *zerolog.Logger) {
	dest, err := database.Backup(ctx, cfg.Backup.Path, time.Now())
	if err != nil {
		logger.Error().Err(err).Msg("backup failed")
		return
	}
	logger.Info().Str("path", dest).Msg("backup completed successfully")

	deleted, err := store.CleanupBackups(cfg.Backup.Path, cfg.BackupRetention(), time.Now())
	if err != nil {
		logger.Error().Err(err).Msg("backup cleanup failed")
	} else if deleted > 0 {
		logger.Info().Int("deleted", deleted).Msg("cleaned up old backups")
	}
}

func startHealthServer(ctx context.Context, port int, checks []readinessCheck, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		for _, c := range checks {
			if err := c.check(ctxPing); err != nil {
				http.Error(w, c.name+" not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
