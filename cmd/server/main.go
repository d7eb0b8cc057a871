package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	apihttp "torrentstream/aggregator/internal/api/http"
	"torrentstream/aggregator/internal/app"
	"torrentstream/aggregator/internal/domain"
	"torrentstream/aggregator/internal/metrics"
	"torrentstream/aggregator/internal/netclient"
	"torrentstream/aggregator/internal/providers/nyaa"
	"torrentstream/aggregator/internal/providers/piratebay"
	"torrentstream/aggregator/internal/providers/rutracker"
	"torrentstream/aggregator/internal/providers/x1337"
	"torrentstream/aggregator/internal/providers/yts"
	"torrentstream/aggregator/internal/registry"
	mongorepo "torrentstream/aggregator/internal/repository/mongo"
	"torrentstream/aggregator/internal/search"
	"torrentstream/aggregator/internal/settings"
	"torrentstream/aggregator/internal/telemetry"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "torrent-search", cfg.OTelEndpoint)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "torrent-search"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("requestTimeout", cfg.RequestTimeout),
		slog.String("piratebayEndpoint", cfg.PirateBayEndpoint),
		slog.String("x1337Endpoint", cfg.X1337Endpoint),
		slog.String("rutrackerEndpoint", cfg.RutrackerEndpoint),
		slog.Bool("hasRutrackerCookies", strings.TrimSpace(cfg.RutrackerCookies) != ""),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Bool("hasMongo", strings.TrimSpace(cfg.MongoURI) != ""),
		slog.Int("maxResults", cfg.MaxResults),
		slog.Int("providerBlockThreshold", cfg.ProviderBlockThreshold),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := netclient.New(netclient.Config{
		Timeout:   cfg.RequestTimeout,
		UserAgent: cfg.UserAgent,
		HostRPS:   cfg.HostRPS,
		HostBurst: 2,
	})

	definitions, closeDefinitions := buildDefinitionStore(rootCtx, cfg, logger)
	defer closeDefinitions()
	providerRegistry := registry.New(definitions, logger, builtinProviders(cfg)...)

	settingsStore := settings.WithDefaultMaxResults(buildSettingsStore(rootCtx, cfg, logger), cfg.MaxResults)

	engine := search.NewEngine(
		search.WithLogger(logger),
		search.WithHealthTracker(search.NewHealthTracker(cfg.ProviderBlockThreshold)),
		search.WithTracer(telemetry.Tracer()),
	)
	orchestrator := search.NewOrchestrator(providerRegistry, settingsStore, engine, client, logger)

	handler := apihttp.NewServer(orchestrator,
		apihttp.WithLogger(logger),
		apihttp.WithSettings(settingsStore),
		apihttp.WithDefinitions(providerRegistry),
		apihttp.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// SSE and WebSocket streams outlive any short write timeout.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("torrent search service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("timeout", cfg.RequestTimeout),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("torrent search service stopped")
}

func builtinProviders(cfg app.Config) []domain.Provider {
	return []domain.Provider{
		piratebay.NewProvider(piratebay.Config{Endpoint: cfg.PirateBayEndpoint}),
		x1337.NewProvider(x1337.Config{Endpoint: cfg.X1337Endpoint}),
		rutracker.NewProvider(rutracker.Config{Endpoint: cfg.RutrackerEndpoint, Cookie: cfg.RutrackerCookies}),
		yts.NewProvider(yts.Config{Endpoint: cfg.YTSEndpoint}),
		nyaa.NewProvider(nyaa.Config{Endpoint: cfg.NyaaEndpoint}),
	}
}

func buildDefinitionStore(ctx context.Context, cfg app.Config, logger *slog.Logger) (registry.DefinitionStore, func()) {
	noop := func() {}
	uri := strings.TrimSpace(cfg.MongoURI)
	if uri == "" {
		logger.Info("mongo not configured, custom providers kept in memory")
		return registry.NewMemoryStore(), noop
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongorepo.Connect(connectCtx, uri, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err == nil {
		err = client.Ping(connectCtx, nil)
	}
	if err != nil {
		logger.Warn("mongo unavailable, custom providers kept in memory", slog.String("error", err.Error()))
		if client != nil {
			_ = client.Disconnect(context.Background())
		}
		return registry.NewMemoryStore(), noop
	}

	repo := mongorepo.NewDefinitionRepository(client, cfg.MongoDB, "")
	if err := repo.EnsureIndexes(connectCtx); err != nil {
		logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
	}
	logger.Info("mongo connected", slog.String("database", cfg.MongoDB))
	return repo, func() { disconnectMongo(client, logger) }
}

func disconnectMongo(client *mongo.Client, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		logger.Warn("mongo disconnect failed", slog.String("error", err.Error()))
	}
}

func buildSettingsStore(ctx context.Context, cfg app.Config, logger *slog.Logger) settings.Store {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return settings.NewMemoryStore()
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, settings kept in memory", slog.String("error", err.Error()))
		return settings.NewMemoryStore()
	}
	client := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable, settings kept in memory", slog.String("error", err.Error()))
		_ = client.Close()
		return settings.NewMemoryStore()
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return settings.NewRedisStore(client, "")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
