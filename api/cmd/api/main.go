package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/esheo1787/qc-management-system/api/internal/handlers"
	"github.com/esheo1787/qc-management-system/api/internal/middleware"
	"github.com/esheo1787/qc-management-system/api/internal/repos"
	"github.com/esheo1787/qc-management-system/shared/authx"
	"github.com/esheo1787/qc-management-system/shared/cachex"
	"github.com/esheo1787/qc-management-system/shared/config"
	"github.com/esheo1787/qc-management-system/shared/dbx"
	"github.com/esheo1787/qc-management-system/shared/httpx"
	"github.com/esheo1787/qc-management-system/shared/logx"
	"github.com/esheo1787/qc-management-system/shared/metricsx"
	"github.com/esheo1787/qc-management-system/shared/observability"
)

func main() {
	cfg, readyProblems := config.Load("api", 8080)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)
	metricsx.Register()

	shutdownTracer := initTracing(cfg, version, logger)

	if cfg.DatabaseURL == "" {
		readyProblems = append(readyProblems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}

	// A bad database or redis keeps the process alive; readyz reports the
	// problem and the DB guard turns requests into 503s.
	var dbPool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err := dbx.NewPool(cfg)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "DATABASE_URL", Message: "failed to connect to database"})
			logger.Error(context.Background(), "db_init_failed", "database init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		} else {
			dbPool = pool
		}
	}

	var cache *cachex.Client
	if cfg.RedisAddr != "" {
		c, err := cachex.New(cfg)
		if err != nil {
			logger.Warn(context.Background(), "cache_init_failed", "redis init failed, holiday cache disabled",
				slog.String("error", err.Error()),
			)
		} else {
			cache = c
		}
	}

	var verifier *authx.JWTVerifier
	if cfg.OIDCIssuer != "" && cfg.OIDCAudience != "" {
		v, err := authx.NewJWTVerifier(cfg.OIDCIssuer, cfg.OIDCAudience, cfg.OIDCJWKSURL, cfg.JWKSTTLSeconds, cfg.JWTClockSkewSec)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "OIDC_ISSUER", Message: "failed to initialize JWT verifier"})
		} else {
			verifier = v
		}
	}

	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.HTTPPort)),
		Handler:           buildHandler(cfg, version, logger, dbPool, cache, verifier, readyProblems),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	failed := serveUntilSignal(server, cfg, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), "shutdown_failed", "shutdown failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
	}
	if shutdownTracer != nil {
		_ = shutdownTracer(context.Background())
	}
	if cache != nil {
		_ = cache.Close()
	}
	if dbPool != nil {
		dbPool.Close()
	}
	logger.Info(context.Background(), "service_stop", "service stopped")
	if failed {
		os.Exit(1)
	}
}

func initTracing(cfg config.Config, version string, logger logx.Logger) func(context.Context) error {
	if !cfg.OtelEnabled {
		return nil
	}
	shutdown, err := observability.InitTracer(context.Background(), observability.TracerConfig{
		ServiceName: cfg.ServiceName,
		Env:         cfg.Env,
		Version:     version,
		Endpoint:    cfg.OtelEndpoint,
		Insecure:    cfg.OtelInsecure,
		SampleRatio: cfg.OtelSampleRatio,
	})
	if err != nil {
		logger.Error(context.Background(), "otel_init_failed", "otel init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return shutdown
}

func buildHandler(cfg config.Config, version string, logger logx.Logger, dbPool *pgxpool.Pool, cache *cachex.Client, verifier *authx.JWTVerifier, readyProblems []config.Problem) http.Handler {
	usersRepo := repos.NewUsersRepo(dbPool)
	auditRepo := repos.NewAuditRepo(dbPool)

	mux := http.NewServeMux()
	registerStatus(mux, cfg, version, dbPool, readyProblems)

	apiHandler := &handlers.Handler{
		Logger:      logger,
		Users:       usersRepo,
		Cases:       repos.NewCasesRepo(dbPool),
		Events:      repos.NewEventsRepo(dbPool),
		WorkLogs:    repos.NewWorkLogsRepo(dbPool),
		Notes:       repos.NewNotesRepo(dbPool),
		Qc:          repos.NewQcRepo(dbPool),
		Tags:        repos.NewTagsRepo(dbPool),
		Definitions: repos.NewDefinitionsRepo(dbPool),
		Cohort:      repos.NewCohortRepo(dbPool),
		TimeOff:     repos.NewTimeOffRepo(dbPool),
		Calendar:    repos.NewCalendarRepo(dbPool, cache, time.Duration(cfg.HolidayCacheTTL)*time.Second),
		Config:      repos.NewConfigRepo(dbPool),
		Outbox:      repos.NewOutboxRepo(dbPool, cfg.CaseEventsTopic),
	}
	apiHandler.Register(mux)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	skipInfra := func(r *http.Request) bool {
		switch r.URL.Path {
		case "/healthz", "/readyz", "/metrics":
			return true
		}
		return false
	}

	var limiter *middleware.IPRateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = middleware.NewIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 0)
	}

	handler := httpx.WrapServeMux(mux, notFound)
	handler = middleware.DBRequiredMiddleware{Pool: dbPool, Skip: skipInfra}.Wrap(handler)
	handler = middleware.AuditMiddleware{
		Enabled: cfg.AuditEnabled,
		Repo:    auditRepo,
		Logger:  logger,
		Skip:    skipInfra,
	}.Wrap(handler)
	handler = middleware.AuthMiddleware{
		Users:    usersRepo,
		Verifier: verifier,
		Skip:     skipInfra,
	}.Wrap(handler)
	handler = middleware.RateLimitMiddleware{Limiter: limiter, Skip: skipInfra}.Wrap(handler)
	// CORS sits outside auth so dashboard preflights succeed without credentials.
	handler = middleware.CORSMiddleware{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowCredentials: cfg.CORSCredentials,
		MaxAge:           time.Duration(cfg.CORSMaxAgeSec) * time.Second,
		Skip:             skipInfra,
	}.Wrap(handler)
	handler = httpx.WithTimeout(cfg.RequestTimeout, handler)
	handler = httpx.WithRequestID(handler)
	handler = httpx.WithRecover(logger, handler)
	handler = metricsx.Instrument(handler)
	handler = httpx.WithRequestLog(logger, httpx.RequestLogOptions{
		SkipPaths: map[string]bool{"/healthz": true, "/metrics": true},
	}, handler)
	return otelhttp.NewHandler(handler, "http")
}

type statusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Env     string `json:"env,omitempty"`
	Version string `json:"version,omitempty"`
}

func registerStatus(mux *http.ServeMux, cfg config.Config, version string, dbPool *pgxpool.Pool, readyProblems []config.Problem) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ok",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if len(readyProblems) > 0 {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION",
				"service not ready: invalid configuration",
				map[string]any{"problems": readyProblems})
			return
		}
		if err := dbx.Ping(r.Context(), dbPool); err != nil {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION",
				"service not ready: database unavailable",
				map[string]any{"problem": "db_ping_failed"})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ready",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.Handle("GET /metrics", metricsx.Handler())
}

// serveUntilSignal blocks until SIGINT/SIGTERM or a listener failure and
// reports whether the server failed.
func serveUntilSignal(server *http.Server, cfg config.Config, logger logx.Logger) bool {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	logger.Info(ctx, "service_start", "starting service",
		slog.String("addr", server.Addr),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("log_level", cfg.LogLevel),
		slog.Int("request_timeout_ms", cfg.RequestTimeoutMS),
	)

	select {
	case <-ctx.Done():
		logger.Info(context.Background(), "shutdown_signal", "received shutdown signal")
		return false
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return false
		}
		logger.Error(context.Background(), "server_failed", "server failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
		return true
	}
}
