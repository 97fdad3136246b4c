package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/bizdash/orgsync/modules"
	"github.com/bizdash/orgsync/modules/org"
	orgcache "github.com/bizdash/orgsync/modules/org/infrastructure/cache"
	"github.com/bizdash/orgsync/modules/org/services"
	"github.com/bizdash/orgsync/pkg/application"
	"github.com/bizdash/orgsync/pkg/configuration"
	"github.com/bizdash/orgsync/pkg/dbmigrate"
	"github.com/bizdash/orgsync/pkg/eventbus"
	"github.com/bizdash/orgsync/pkg/logging"
	"github.com/bizdash/orgsync/pkg/metrics"
	"github.com/bizdash/orgsync/pkg/middleware"
	"github.com/bizdash/orgsync/pkg/server"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	if conf.OpenTelemetry.Enabled {
		shutdownTracing := logging.SetupTracing(context.Background(), conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.TempoURL)
		defer shutdownTracing()
		logger.Info("OpenTelemetry tracing enabled, exporting to " + conf.OpenTelemetry.TempoURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	poolConf, err := pgxpool.ParseConfig(conf.Database.Opts)
	if err != nil {
		panic(err)
	}
	poolConf.MaxConns = conf.Database.MaxConns
	pool, err := pgxpool.NewWithConfig(ctx, poolConf)
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	runner, err := dbmigrate.NewRunner(pool, logger)
	if err != nil {
		panic(err)
	}
	if _, err := runner.Up(context.Background()); err != nil {
		log.Fatalf("failed to apply migrations: %v", err)
	}

	var redisClient *redis.Client
	if conf.OrgHierarchy.Cache == "redis" || (conf.RateLimit.Enabled && conf.RateLimit.Storage == "redis") {
		redisClient = newRedisClient(conf, logger)
		defer func() { _ = redisClient.Close() }()
	}
	cache := newHierarchyCache(conf, redisClient)

	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(logger),
		Logger:   logger,
	})
	app.RegisterMiddleware(
		middleware.WithLogger(logger, conf.RequestIDHeader),
		middleware.Cors(conf.CORS.AllowedOrigins...),
	)
	if conf.RateLimit.Enabled {
		rateLimit, err := newRateLimit(conf, redisClient, logger)
		if err != nil {
			log.Fatalf("failed to configure rate limiting: %v", err)
		}
		app.RegisterMiddleware(rateLimit)
	}
	app.RegisterMiddleware(middleware.ProvidePool(pool))
	if err := modules.Load(app, org.NewModule(&org.ModuleOptions{
		Hierarchy:       conf.OrgHierarchy,
		RequestIDHeader: conf.RequestIDHeader,
		Cache:           cache,
	})); err != nil {
		log.Fatalf("failed to load modules: %v", err)
	}
	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path, nil))
	}

	serverInstance := server.NewHTTPServer(app)
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := serverInstance.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("graceful shutdown failed")
		}
	}()

	logger.Infof("Listening on: %s", conf.SocketAddress)
	if err := serverInstance.Start(conf.SocketAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("failed to start server: %v", err)
	}
	conf.Unload()
}

func newRedisClient(conf *configuration.Configuration, logger *logrus.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: conf.Redis.URL, DB: conf.Redis.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("redis is not reachable; cache reads will miss until it recovers")
	}
	return client
}

// newHierarchyCache picks the read cache backend from ORG_HIERARCHY_CACHE.
func newHierarchyCache(conf *configuration.Configuration, client *redis.Client) services.HierarchyCache {
	opts := conf.OrgHierarchy
	switch opts.Cache {
	case "memory":
		return services.NewMemoryCache(opts.CacheTTL)
	case "redis":
		return orgcache.NewRedisCache(client, opts.CacheTTL)
	default:
		return nil
	}
}

// newRateLimit builds the per-IP limiter. A redis store that cannot be
// created falls back to process memory.
func newRateLimit(conf *configuration.Configuration, client *redis.Client, logger *logrus.Logger) (mux.MiddlewareFunc, error) {
	store := middleware.NewMemoryStore()
	if conf.RateLimit.Storage == "redis" && client != nil {
		redisStore, err := middleware.NewRedisStore(client)
		if err != nil {
			logger.WithError(err).Warn("redis rate limit store unavailable; using memory")
		} else {
			store = redisStore
		}
	}
	return middleware.RateLimit(middleware.RateLimitConfig{Rate: conf.RateLimit.Rate, Store: store})
}
