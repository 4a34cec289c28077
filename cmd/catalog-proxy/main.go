// Command catalog-proxy serves aggregated, cached product listings in
// front of a WooCommerce store.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pixypic/catalog-cache/internal/config"
	"github.com/pixypic/catalog-cache/pkg/aggregator"
	"github.com/pixypic/catalog-cache/pkg/api"
	"github.com/pixypic/catalog-cache/pkg/cache"
	"github.com/pixypic/catalog-cache/pkg/catalog"
	"github.com/pixypic/catalog-cache/pkg/category"
	"github.com/pixypic/catalog-cache/pkg/logging"
	"github.com/pixypic/catalog-cache/pkg/ratelimit"
	"github.com/pixypic/catalog-cache/pkg/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup(logging.DefaultConfig())
		logger := logging.NewLogger("main")
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})
	logger := logging.NewLogger("main")

	store, versions := buildStore(cfg, logger)

	up, err := upstream.New(upstream.Config{
		BaseURL:        cfg.CommerceBaseURL,
		ConsumerKey:    cfg.ConsumerKey,
		ConsumerSecret: cfg.ConsumerSecret,
		UserAgent:      cfg.UserAgent,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create upstream client")
	}

	agg := aggregator.New(
		up,
		cache.New(store, cache.CodecByName(cfg.CacheCodec)),
		versions,
		category.NewResolver(up),
		catalog.NewImageFilter(cfg.ImageAllowedDomains),
		aggregator.Config{
			TTL:           cfg.CacheTTL,
			EmptyTTL:      cfg.EmptyCacheTTL,
			PreferredTTL:  cfg.PreferredCacheTTL,
			StaleAfter:    cfg.CacheStaleAfter,
			MaxTotalItems: cfg.MaxTotalItems,
		},
	)

	handler := api.NewHandler(agg)
	admin := api.NewAdmin(agg, cfg.AdminToken)
	limiter := ratelimit.NewLimiter(cfg.RateLimit, cfg.RateLimitWindow)
	defer limiter.Close()

	mux := http.NewServeMux()
	mux.Handle("/products", ratelimit.Middleware(limiter, http.HandlerFunc(handler.Products)))
	mux.HandleFunc("/admin/cache", admin.Cache)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("store", store.Name()).
			Str("upstream", cfg.CommerceBaseURL).
			Msg("catalog proxy listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown incomplete")
	}
}

// buildStore connects to Redis, falling back to the in-process memory
// store when Redis is unreachable so the proxy still serves traffic.
func buildStore(cfg *config.Config, logger zerolog.Logger) (cache.Store, cache.Versions) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisURL).
			Msg("redis unreachable, falling back to memory store")
		store := cache.NewMemoryStore(time.Minute)
		return store, cache.NewStoreVersions(store)
	}

	logger.Info().Str("addr", cfg.RedisURL).Msg("connected to redis")
	return cache.NewRedisStore(rdb), cache.NewRedisVersions(rdb)
}
