// Package bootstrap wires configuration into constructed components,
// following the BuildAuthService-style "config in, service + cleanup +
// error out" function shape in internal/delivery/server/bootstrap/auth.go.
package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/nikitavbv/sandbox/internal/app/dispatch"
	"github.com/nikitavbv/sandbox/internal/app/metrics"
	"github.com/nikitavbv/sandbox/internal/auth"
	"github.com/nikitavbv/sandbox/internal/infra/artifact"
	"github.com/nikitavbv/sandbox/internal/infra/postgres"
	dispatchhttp "github.com/nikitavbv/sandbox/internal/server/http"
	runtimeconfig "github.com/nikitavbv/sandbox/internal/shared/config"
	"github.com/nikitavbv/sandbox/internal/shared/logging"

	"github.com/gin-gonic/gin"
	promclient "github.com/prometheus/client_golang/prometheus"
)

// Server bundles everything the server binary needs to run and shut down.
type Server struct {
	Router  *gin.Engine
	Sampler *metrics.Sampler
	Pusher  *metrics.Pusher
	Cleanup func()
}

// BuildServer wires the Dispatch Authority + Management API + Metrics
// Aggregator from cfg.
func BuildServer(ctx context.Context, cfg runtimeconfig.Config, logger logging.Logger) (*Server, error) {
	logger = logging.OrNop(logger)

	pool, err := connectPostgres(ctx, cfg.Database.ConnectionString)
	if err != nil {
		return nil, err
	}

	// A TracerProvider with no exporter still records request-flow spans
	// in-process (sampled, but going nowhere) until an exporter is wired
	// in; dispatch.Service's spans (see internal/app/dispatch/tracing.go)
	// are otherwise a no-op against the global default.
	tracerProvider := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tracerProvider)

	taskStore := postgres.NewTaskStore(pool)
	chatStore := postgres.NewChatStore(pool)
	userStore := postgres.NewUserStore(pool)

	artifactStore, err := artifact.New(ctx, cfg.ObjectStorage)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: build artifact store: %w", err)
	}

	tokens, err := auth.NewTokenManager([]byte(cfg.Auth.EncodingKey), []byte(cfg.Token.DecodingKey))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: build token manager: %w", err)
	}

	oauth := auth.NewOAuthExchanger(auth.OAuthConfig{
		ClientID:     cfg.Auth.OAuthClientID,
		ClientSecret: cfg.Auth.OAuthClientSecret,
		RedirectURL:  cfg.Auth.OAuthRedirectURL,
	})

	service := dispatch.NewService(taskStore, chatStore, userStore, artifactStore, tokens, oauth, dispatch.WithLogger(logger))
	if err := service.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ensure schema: %w", err)
	}

	router := dispatchhttp.NewRouter(service, tokens, dispatchhttp.RouterConfig{
		Environment:    cfg.Server.Environment,
		WorkerToken:    cfg.Token.WorkerToken,
		StallThreshold: cfg.Worker.StallThreshold,
	})

	// The gauges go on the default registry because that is the one the
	// router's /metrics endpoint (promhttp.Handler) serves.
	sampler := metrics.NewSampler(taskStore, promclient.DefaultRegisterer, logger)

	var pusher *metrics.Pusher
	if cfg.MetricsPush.Enabled {
		pusher = metrics.NewPusher(cfg.MetricsPush.Endpoint, "dispatch", cfg.MetricsPush.Username, cfg.MetricsPush.Password, promclient.DefaultGatherer, logger)
	}

	return &Server{
		Router:  router,
		Sampler: sampler,
		Pusher:  pusher,
		Cleanup: func() {
			_ = tracerProvider.Shutdown(context.Background())
			pool.Close()
		},
	}, nil
}

func connectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("bootstrap: database.connection_string not configured")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, dsn)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: create postgres pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return pool, nil
}
