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
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"waitline/internal/api"
	"waitline/internal/config"
	"waitline/internal/db"
	"waitline/internal/events"
	"waitline/internal/metrics"
	"waitline/internal/realtime"
	"waitline/internal/relay"
	"waitline/internal/review"
	"waitline/internal/service"
	"waitline/internal/snapshot"
)

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("WAITLINE_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger = newLogger(cfg)

	database, err := db.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	builder := snapshot.NewBuilder(database, &logger).WithEstimateWriter(database)
	registry := realtime.NewRegistry()
	dispatcher := realtime.NewDispatcher(registry, builder, cfg.SendTimeout(), &logger)
	notifier := realtime.NewNotifier(dispatcher, cfg.NotifyQueueSize(), cfg.NotifyWorkers(), &logger)
	notifier.Start(ctx)
	refresher := realtime.NewRefresher(registry, dispatcher, cfg.RefreshInterval(), cfg.RefreshParallelism(), &logger)
	go refresher.Run(ctx)

	bus := events.NewEventBus()
	bus.OnError(func(e events.Event, err error) {
		logger.Error().Err(err).Str("event", e.Type).Int64("business_id", e.BusinessID).Msg("event handler failed")
	})
	bus.Subscribe(events.All, func(e events.Event) error {
		notifier.Notify(e.BusinessID)
		return nil
	})

	// Changes from other instances sharing the database arrive over Redis.
	if rdb != nil {
		rel := relay.New(rdb, cfg.Redis.Channel, &logger)
		bus.Subscribe(events.All, func(e events.Event) error {
			pubCtx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			return rel.Publish(pubCtx, e.BusinessID)
		})
		go func() {
			if err := rel.Run(ctx, func(id int64) { notifier.Notify(id) }); err != nil {
				logger.Error().Err(err).Msg("relay stopped")
			}
		}()
	}

	// Initial load + hot reload of businesses configuration
	defaultMinutes := int(cfg.DefaultServiceDuration() / time.Minute)
	if err := config.WatchBusinesses(ctx, cfg.BusinessesConfigPath, 30*time.Second, func(updated *config.BusinessesConfig) {
		if updated == nil {
			return
		}
		for i := range updated.Businesses {
			if updated.Businesses[i].DefaultServiceMinutes == 0 {
				updated.Businesses[i].DefaultServiceMinutes = defaultMinutes
			}
		}
		res, err := database.SyncBusinessesFromConfig(ctx, updated)
		if err != nil {
			logger.Error().Err(err).Msg("failed to apply businesses config")
			return
		}
		for _, id := range res.Businesses {
			bus.Publish(events.Event{Type: events.ConfigReloaded, BusinessID: id, CreatedAt: time.Now()})
		}
		logger.Info().Int("businesses", len(res.Businesses)).Int("holidays", res.Holidays).Msg("businesses config applied")
	}, func(err error) {
		logger.Error().Err(err).Msg("failed to reload businesses config")
	}); err != nil {
		logger.Error().Err(err).Msg("businesses watch failed")
	}

	sweeper := review.NewSweeper(database, cfg.ReviewInterval(), func(id int64) { notifier.Notify(id) }, &logger)
	sweeper.Start()
	defer sweeper.Stop()

	svc := service.New(database, bus, &logger).
		WithReviewer(sweeper).
		WithJoinSkew(cfg.JoinClockSkew())

	if cfg.Backup.Enabled {
		retention := time.Duration(cfg.Backup.RetentionDays) * 24 * time.Hour
		backups := db.NewBackupService(database, cfg.Backup.Path, time.Duration(cfg.Backup.IntervalHours)*time.Hour, retention, &logger)
		go backups.Start(ctx)
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, database, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	perMinute, burst := cfg.JoinRate()
	server := api.NewServer(svc, database, builder, registry, dispatcher, api.Options{
		APIKey:            cfg.Server.APIKey,
		JoinRatePerMinute: perMinute,
		JoinBurst:         burst,
		RequestTimeout:    cfg.WriteTimeout(),
	}, &logger)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		registry.Close()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().Str("addr", cfg.Server.Addr).Msg("queue server started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("http server error")
	}
	notifier.Stop()
	logger.Info().Msg("queue server stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.Logging.Format == "json" {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func startHealthServer(ctx context.Context, port int, database *db.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := database.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
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

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
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
