package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/config"
	httpadapter "github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/adapters/primary/http"
	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/adapters/secondary/eventbroker"
	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/adapters/secondary/platform"
	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/adapters/secondary/platform/twitter"
	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/adapters/secondary/ratelimit"
	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/adapters/secondary/repository"
	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/adapters/secondary/security"
	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/adapters/secondary/tokens"
	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/services"
)

func main() {
	// 1. Config
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. Logger
	initLogger(cfg)
	slog.Info("🚀 Starting Crosspost Proxy", "env", cfg.Env, "http_port", cfg.HTTPPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Tracing
	tp, err := initTracer(ctx, cfg)
	if err != nil {
		slog.Error("Failed to init tracer", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				slog.Error("Error shutting down tracer", "error", err)
			}
		}()
	}

	// 4. Postgres (liens signer -> compte)
	dbConfig, err := pgxpool.ParseConfig(cfg.DBUrl)
	if err != nil {
		slog.Error("Unable to parse DB config", "error", err)
		os.Exit(1)
	}
	dbConfig.ConnConfig.Tracer = otelpgx.NewTracer()

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		slog.Error("Unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		slog.Error("Database ping failed", "error", err)
		os.Exit(1)
	}
	slog.Info("✅ Database connected")

	// 5. Redis (jetons plateforme + quotas)
	rdb, err := connectRedis(cfg.RedisAddr)
	if err != nil {
		slog.Error("Invalid Redis address", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		slog.Warn("Failed to instrument Redis", "error", err)
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		// quotas en fail-open : le service démarre quand même
		slog.Warn("⚠️ Redis unreachable at startup", "addr", cfg.RedisAddr, "error", err)
	} else {
		slog.Info("✅ Connected to Redis")
	}

	// 6. NATS JetStream (activité + déliaisons)
	broker, err := eventbroker.NewNatsBroker(cfg.NatsUrl)
	if err != nil {
		slog.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer broker.Close()
	slog.Info("✅ NATS JetStream connected")

	// 7. Sécurité
	pubKey, err := os.ReadFile(cfg.JWTPublicKeyPath)
	if err != nil {
		slog.Error("Failed to read JWT public key", "path", cfg.JWTPublicKeyPath, "error", err)
		os.Exit(1)
	}
	verifier, err := security.NewJWTVerifier(pubKey, cfg.JWTIssuer)
	if err != nil {
		slog.Error("Failed to init JWT verifier", "error", err)
		os.Exit(1)
	}

	policy, err := domain.ParseDuplicatePolicy(cfg.DuplicateTargetPolicy)
	if err != nil {
		slog.Error("Invalid duplicate target policy", "error", err)
		os.Exit(1)
	}

	// 8. Wiring
	links := repository.NewPostgresLinkRepo(dbPool)
	tokenStore := tokens.NewRedisTokenStore(rdb)
	limitStore := ratelimit.NewRedisStore(rdb)

	registry := platform.NewRegistry(
		twitter.NewClient(twitter.Config{APIURL: cfg.TwitterAPIURL, Timeout: cfg.PlatformHTTPTimeout}, tokenStore, limitStore),
	)

	access := services.NewLinkAccessVerifier(links, broker).WithTokenRevoker(tokenStore)
	limiter := services.NewQuotaRateLimiter(limitStore, cfg.RateLimitFailOpen)
	orchestrator := services.NewOrchestrator(access, limiter, broker, services.OrchestratorConfig{
		PacingDelays:      map[domain.PlatformID]time.Duration{domain.PlatformTwitter: cfg.PacingDelayTwitter},
		DuplicatePolicy:   policy,
		AuthRetryAttempts: cfg.AuthRetryAttempts,
		AuthRetryDelay:    cfg.AuthRetryDelay,
	})

	crosspost := services.NewCrosspostService(orchestrator, registry)
	accounts := services.NewAccountService(links, broker).WithTokenRevoker(tokenStore)

	handler := httpadapter.NewHandler(crosspost, accounts, map[string]httpadapter.ReadyCheck{
		"postgres": dbPool.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		"nats":     broker.Ping,
	})

	// 9. Chaîne HTTP : routes -> CORS -> OTEL (racine)
	var h http.Handler = httpadapter.NewRouter(handler, verifier)
	h = cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id", "traceparent", "baggage"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
	}).Handler(h)
	h = otelhttp.NewHandler(h, "crosspost-proxy", otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
		return fmt.Sprintf("HTTP %s %s", r.Method, r.URL.Path)
	}))

	srvHTTP := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("📡 HTTP API listening", "port", cfg.HTTPPort)
		if err := srvHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// 10. gRPC d'administration : health check K8s + reflection
	lis, err := net.Listen("tcp", ":"+cfg.GRPCHealthPort)
	if err != nil {
		slog.Error("Failed to listen", "port", cfg.GRPCHealthPort, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(cfg.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	if cfg.Env != "prod" {
		reflection.Register(grpcServer)
		slog.Info("🔍 gRPC Reflection enabled")
	}

	go func() {
		slog.Info("🩺 gRPC health listening", "address", lis.Addr())
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("Failed to serve gRPC health", "error", err)
		}
	}()

	// 11. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	sig := <-quit
	slog.Info("🛑 Signal received, shutting down...", "signal", sig)

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(cfg.ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// les lots en cours ne sont pas annulés par le client ; Shutdown attend leur fin
	if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		slog.Warn("⏳ Timeout reached, forcing gRPC stop")
		grpcServer.Stop()
	}

	slog.Info("👋 Service stopped")
}

// --- HELPERS ---

func initLogger(cfg *config.Config) {
	var handler slog.Handler
	if cfg.Env == "local" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))
}

func initTracer(ctx context.Context, cfg *config.Config) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OtelEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.DeploymentEnvironmentKey.String(cfg.Env),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp, nil
}

// connectRedis accepte une URL redis:// ou un simple host:port.
func connectRedis(addr string) (*redis.Client, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opt, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr}), nil
}
