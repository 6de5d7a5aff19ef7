package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairway-labs/fairway/core/pkg/api"
	"github.com/fairway-labs/fairway/core/pkg/audit"
	"github.com/fairway-labs/fairway/core/pkg/auth"
	"github.com/fairway-labs/fairway/core/pkg/compliance"
	"github.com/fairway-labs/fairway/core/pkg/config"
	"github.com/fairway-labs/fairway/core/pkg/docanalysis"
	"github.com/fairway-labs/fairway/core/pkg/ledger"
	"github.com/fairway-labs/fairway/core/pkg/notify"
	"github.com/fairway-labs/fairway/core/pkg/observability"
	"github.com/fairway-labs/fairway/core/pkg/pipeline"
	"github.com/fairway-labs/fairway/core/pkg/reasoner"
	"github.com/fairway-labs/fairway/core/pkg/statestore"
	"github.com/fairway-labs/fairway/core/pkg/underwriting"
)

func runServe(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", ":"+cfg.Port, "listen address")
	profilesDir := fs.String("profiles", cfg.ProfilesDir, "directory of lending profile YAML files (empty uses the built-in profile)")
	jurisdiction := fs.String("jurisdiction", cfg.ProfileCode, "jurisdiction code")
	stateDB := fs.String("state-db", "", "SQLite path for application state (overrides STATE_BACKEND)")
	ledgerDB := fs.String("ledger-db", "", "SQLite path for the decision ledger sink (empty means in-memory only)")
	rpm := fs.Int("rate-rpm", 120, "per-client requests per minute")
	burst := fs.Int("rate-burst", 20, "per-client burst size")
	otlpEndpoint := fs.String("otlp-endpoint", cfg.OTLPEndpoint, "OTLP gRPC endpoint for traces and metrics (empty disables export)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	profile, err := loadProfile(*profilesDir, *jurisdiction)
	if err != nil {
		logger.Error("load lending profile failed", "error", err)
		return 1
	}
	logger.Info("lending profile loaded", "name", profile.Name, "version", profile.Version)

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:  "fairway-core",
		Environment:  envOr("FAIRWAY_ENV", "development"),
		OTLPEndpoint: *otlpEndpoint,
		SampleRate:   1.0,
		BatchTimeout: 5 * time.Second,
		Enabled:      *otlpEndpoint != "",
		Insecure:     true,
	})
	if err != nil {
		logger.Error("observability init failed", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	backend, cleanup, err := openStateBackend(cfg, *stateDB)
	if err != nil {
		logger.Error("state backend init failed", "error", err)
		return 1
	}
	defer cleanup()

	led, ledgerCleanup, err := openLedger(*ledgerDB, logger)
	if err != nil {
		logger.Error("ledger init failed", "error", err)
		return 1
	}
	defer ledgerCleanup()

	vault, err := docanalysis.NewVault(ctx, cfg.VaultBackend, cfg.VaultBucket)
	if err != nil {
		logger.Error("document vault init failed", "error", err)
		return 1
	}

	rc := buildReasoner(ctx, cfg, logger)

	checker, err := compliance.NewChecker(profile, rc, logger)
	if err != nil {
		logger.Error("compliance checker init failed", "error", err)
		return 1
	}

	events := audit.NewMemoryLog()
	auditLog := audit.Tee{audit.NewLogger(), events}

	orch, err := pipeline.New(pipeline.Deps{
		State:       statestore.NewManager(backend, logger),
		Analyzer:    docanalysis.NewRuleAnalyzer(),
		Underwriter: underwriting.NewEvaluator(profile, rc, logger),
		Compliance:  checker,
		Notifier:    notify.NewNotifier(),
		Ledger:      led,
		Vault:       vault,
		Audit:       auditLog,
		Observe:     obs,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("pipeline init failed", "error", err)
		return 1
	}

	srv, err := api.NewServer(orch, audit.NewExporter(events, led), logger)
	if err != nil {
		logger.Error("api init failed", "error", err)
		return 1
	}

	handler := buildMiddleware(srv.Routes(), cfg, logger, *rpm, *burst)

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fairway core listening", "addr", *addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			return 1
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
			return 1
		}
	}

	fmt.Fprintln(stdout, "fairway core stopped")
	return 0
}

// buildMiddleware stacks request id, access logging, rate limiting and,
// when JWT_SECRET is configured, bearer authentication.
func buildMiddleware(next http.Handler, cfg *config.Config, logger *slog.Logger, rpm, burst int) http.Handler {
	handler := next

	if cfg.JWTSecret != "" {
		handler = auth.NewMiddleware(auth.NewJWTValidator(cfg.JWTSecret))(handler)
	} else {
		logger.Warn("JWT_SECRET not set, serving without authentication")
	}

	store := buildLimiterStore(cfg.RedisURL, logger)
	handler = auth.RateLimitMiddleware(store, auth.Policy{RPM: rpm, Burst: burst})(handler)
	handler = accessLog(logger)(handler)
	handler = auth.RequestIDMiddleware(handler)
	return handler
}

func buildLimiterStore(url string, logger *slog.Logger) auth.LimiterStore {
	if url == "" {
		return auth.NewLocalLimiterStore()
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Error("invalid REDIS_URL, using in-process rate limiter", "error", err)
		return auth.NewLocalLimiterStore()
	}
	logger.Info("rate limiting via redis", "addr", opts.Addr)
	return auth.NewRedisLimiterStore(redis.NewClient(opts))
}

func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", auth.GetRequestID(r.Context()),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// openStateBackend picks the state store: STATE_BACKEND=postgres uses
// DATABASE_URL, an explicit -state-db flag forces SQLite at that path,
// STATE_BACKEND=sqlite uses the configured path, anything else stays in
// memory.
func openStateBackend(cfg *config.Config, sqlitePath string) (statestore.Backend, func(), error) {
	switch {
	case cfg.StateBackend == "postgres":
		pg, err := statestore.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return pg, func() { _ = pg.Close() }, nil
	case sqlitePath != "", cfg.StateBackend == "sqlite":
		if sqlitePath == "" {
			sqlitePath = cfg.SQLitePath
		}
		db, err := statestore.OpenSQLite(sqlitePath)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil
	default:
		return statestore.NewMemory(), func() {}, nil
	}
}

func openLedger(sqlitePath string, logger *slog.Logger) (*ledger.Ledger, func(), error) {
	if sqlitePath == "" {
		return ledger.New(logger), func() {}, nil
	}

	sink, err := ledger.OpenSQLiteSink(sqlitePath)
	if err != nil {
		return nil, nil, err
	}
	led := ledger.New(logger, ledger.WithSink(sink))

	// Restore the chain so verification and audit trails span restarts.
	entries, err := sink.Entries(context.Background())
	if err != nil {
		_ = sink.Close()
		return nil, nil, err
	}
	if len(entries) > 0 {
		if err := led.Restore(entries); err != nil {
			_ = sink.Close()
			return nil, nil, fmt.Errorf("restore ledger: %w", err)
		}
		logger.Info("ledger restored", "entries", len(entries))
	}
	return led, func() { _ = sink.Close() }, nil
}

// buildReasoner picks the enhanced reasoning backend from REASONER_BACKEND:
// "gemini", "openai" (any OpenAI-compatible endpoint via REASONER_URL), or
// disabled. Every backend is wrapped with a bounded timeout so an unreachable
// service degrades to the deterministic path instead of stalling a stage.
func buildReasoner(ctx context.Context, cfg *config.Config, logger *slog.Logger) reasoner.Client {
	switch cfg.ReasonerBackend {
	case "gemini":
		client, err := reasoner.NewGeminiClient(ctx, cfg.ReasonerAPIKey, cfg.ReasonerModel)
		if err != nil {
			logger.Error("gemini init failed, reasoning disabled", "error", err)
			return reasoner.Disabled{}
		}
		logger.Info("enhanced reasoning via gemini")
		return reasoner.WithTimeout(client, cfg.ReasonerTimeout)
	case "openai":
		logger.Info("enhanced reasoning via openai-compatible endpoint", "url", cfg.ReasonerURL)
		return reasoner.WithTimeout(
			reasoner.NewOpenAIClient(cfg.ReasonerURL, cfg.ReasonerAPIKey, cfg.ReasonerModel),
			cfg.ReasonerTimeout,
		)
	default:
		logger.Info("no reasoning backend configured, using deterministic evaluation only")
		return reasoner.Disabled{}
	}
}

func logLevel(name string) slog.Level {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
