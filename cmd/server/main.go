package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/certlab/engine/internal/attempt"
	"github.com/certlab/engine/internal/content"
	"github.com/certlab/engine/internal/eligibility"
	"github.com/certlab/engine/internal/engine"
	"github.com/certlab/engine/internal/mastery"
	"github.com/certlab/engine/internal/platform/cache"
	"github.com/certlab/engine/internal/platform/config"
	"github.com/certlab/engine/internal/platform/database"
	"github.com/certlab/engine/internal/readiness"
	"github.com/certlab/engine/internal/session"
)

const sessionSweepInterval = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		slog.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	var redisCache *cache.Cache
	if cfg.Cache.Enabled {
		redisCache, err = cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			slog.Error("failed to connect to cache", "error", err)
			os.Exit(1)
		}
		defer redisCache.Close()
	}

	loader, err := content.NewLoader(cfg.ContentPath)
	if err != nil {
		slog.Error("failed to load content", "error", err)
		os.Exit(1)
	}

	eng, err := buildEngine(cfg, loader, db, redisCache)
	if err != nil {
		slog.Error("failed to assemble engine", "error", err)
		os.Exit(1)
	}

	go sweepSessions(ctx, eng)

	mux := newMux(db, redisCache)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "exams", len(loader.AllExams()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func setupLogger(cfg config.LogConfig) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func buildEngine(cfg *config.Config, loader *content.Loader, db *database.DB, redisCache *cache.Cache) (*engine.Engine, error) {
	masteryStore, err := mastery.NewPostgresStore(db.Pool)
	if err != nil {
		return nil, err
	}
	exposureStore, err := eligibility.NewPostgresStore(db.Pool)
	if err != nil {
		return nil, err
	}
	sessionStore, err := session.NewPostgresStore(db.Pool)
	if err != nil {
		return nil, err
	}
	attemptStore, err := attempt.NewPostgresStore(db.Pool)
	if err != nil {
		return nil, err
	}
	scoreStore, err := attempt.NewPostgresScoreStore(db.Pool)
	if err != nil {
		return nil, err
	}

	return engine.New(engine.Deps{
		Content:    loader,
		Mastery:    masteryStore,
		Exposures:  exposureStore,
		Sessions:   sessionStore,
		Attempts:   attemptStore,
		Scores:     scoreStore,
		Cache:      redisCache,
		CacheTTL:   cfg.Engine.ReadinessCacheTTL,
		SessionTTL: cfg.Engine.SessionTTL,
		Readiness: readiness.Config{
			MasteryBlend:  cfg.Engine.MasteryBlend,
			TrendAlpha:    cfg.Engine.TrendAlpha,
			PriorVariance: cfg.Engine.PriorVariance,
			TrendDepth:    cfg.Engine.TrendDepth,
		},
	})
}

// sweepSessions periodically abandons expired study sessions. The
// engine exposes the transition; the schedule lives here.
func sweepSessions(ctx context.Context, eng *engine.Engine) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := eng.SweepExpiredSessions(ctx); err != nil {
				slog.Error("session sweep failed", "error", err)
			}
		}
	}
}

// newMux creates the HTTP router with health check endpoints.
func newMux(db *database.DB, redisCache *cache.Cache) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(db, redisCache))
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func handleReadyz(db *database.DB, redisCache *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if db == nil || db.HealthCheck(ctx) != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable","reason":"database"}`))
			return
		}
		if redisCache != nil {
			if err := redisCache.HealthCheck(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable","reason":"cache"}`))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}
