package main

import (
	"context"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"shop-admin/internal/broadcast"
	"shop-admin/internal/config"
	"shop-admin/internal/database"
	"shop-admin/internal/dispatch"
	"shop-admin/internal/domain"
	"shop-admin/internal/identifier"
	"shop-admin/internal/metrics"
	"shop-admin/internal/repository"
	"shop-admin/internal/server"
	"shop-admin/internal/storage"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "starts the HTTP server and the outbox dispatcher",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("Starting shop admin",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
	)

	dbService, err := database.New(cfg.Database)
	if err != nil {
		log.Error("Database unavailable", zap.Error(err))
		return err
	}
	log.Info("Database health check", zap.Any("health", dbService.Health()))

	if err := database.RunMigrations(dbService.DB(), log); err != nil {
		log.Error("Failed to run migrations", zap.Error(err))
		dbService.Close()
		return err
	}
	log.Info("Database migrations completed successfully")

	m := metrics.New()
	ids := identifier.NewGenerator(cfg.IDs.MaxAttempts, log).OnConflict(func(kind string) {
		m.IdentifierConflicts.WithLabelValues(kind).Inc()
	})
	store := repository.NewStore(dbService.DB(), ids)

	assets, err := storage.NewLocal(cfg.Storage.Root, cfg.Server.AppURL+cfg.Storage.URLPrefix)
	if err != nil {
		dbService.Close()
		return errors.Wrap(err, "failed to prepare asset storage")
	}

	hub := broadcast.NewHub(log,
		broadcast.WithAllowedChannels(domain.ChannelOrders, domain.ChannelProducts),
		broadcast.WithConnectionGauge(m.WebsocketClients),
		broadcast.WithCheckOrigin(originChecker(cfg.Server)),
	)
	defer hub.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	// With Redis every instance relays the shared channel into its own hub,
	// otherwise events go straight to the local hub.
	var publisher broadcast.Publisher = hub
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		publisher = broadcast.NewRedisPublisher(redisClient, cfg.Redis.BroadcastChannel)
		relay := broadcast.NewRedisRelay(redisClient, cfg.Redis.BroadcastChannel, hub, log)
		g.Go(func() error { return relay.Run(ctx) })
	}
	if cfg.AMQP.Enabled {
		amqpPublisher, err := broadcast.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			dbService.Close()
			return errors.Wrap(err, "failed to connect to message broker")
		}
		defer amqpPublisher.Close()
		publisher = broadcast.Multi(publisher, amqpPublisher)
	}

	dispatcher := dispatch.New(store.Repos().Outbox, publisher, dispatch.Config{
		Workers:       cfg.Outbox.Workers,
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		MaxAttempts:   cfg.Outbox.MaxAttempts,
		PruneSchedule: cfg.Outbox.PruneSchedule,
		Retention:     cfg.Outbox.Retention,
	}, log, m)

	srv := server.NewServer(cfg, log, server.Deps{
		Database: dbService,
		Store:    store,
		Assets:   assets,
		Hub:      hub,
		Notifier: dispatcher,
		Metrics:  m,
		Redis:    redisClient,
	})

	g.Go(func() error { return dispatcher.Run(ctx) })
	g.Go(func() error {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return gracefulShutdown(srv, log)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Shop admin stopped with error", zap.Error(err))
		return err
	}
	log.Info("Graceful shutdown complete")
	return nil
}

func gracefulShutdown(srv *server.Server, log *zap.Logger) error {
	log.Info("Shutting down gracefully")

	// in-flight requests get shutdownTimeout to finish
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := srv.Close(); err != nil {
		log.Error("Error closing server resources", zap.Error(err))
		return err
	}
	return nil
}

// originChecker accepts websocket upgrades from the configured origins and
// the app's own URL. Development accepts everything.
func originChecker(cfg config.ServerConfig) func(r *http.Request) bool {
	if cfg.IsDevelopment() {
		return func(*http.Request) bool { return true }
	}
	allowed := map[string]bool{cfg.AppURL: true}
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if allowed[origin] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}
