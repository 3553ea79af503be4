// Package app wires configuration, persistence, the scheduling core, and
// the REST transport into a runnable server, and owns the process
// lifecycle (startup logging, graceful shutdown).
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/avolkov/srscore/internal/adapter/postgres"
	"github.com/avolkov/srscore/internal/adapter/postgres/cardstate"
	"github.com/avolkov/srscore/internal/adapter/postgres/reviewevent"
	"github.com/avolkov/srscore/internal/config"
	"github.com/avolkov/srscore/internal/domain"
	"github.com/avolkov/srscore/internal/service/study/memory"
	"github.com/avolkov/srscore/internal/service/study/session"
	"github.com/avolkov/srscore/internal/transport/middleware"
	"github.com/avolkov/srscore/internal/transport/rest"
)

// Run is the application entry point. It loads configuration, initializes
// all layers (repos, scheduling core, transport), starts the HTTP server,
// and waits for a shutdown signal for graceful termination. lexicon is the
// external word-catalog collaborator (§6) — this module ships no
// production implementation of its own, so the caller supplies one.
func Run(ctx context.Context, lexicon domain.LexiconReader) error {
	// -----------------------------------------------------------------------
	// 1. Load and validate config
	// -----------------------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// -----------------------------------------------------------------------
	// 2. Initialize logger
	// -----------------------------------------------------------------------
	logger := NewLogger(cfg.Log)

	logger.Info("starting application",
		slog.String("version", BuildVersion()),
		slog.String("log_level", cfg.Log.Level),
	)

	// -----------------------------------------------------------------------
	// 3. Connect to DB (pool)
	// -----------------------------------------------------------------------
	dbCfg := cfg.Database
	if cfg.App.TestMode && dbCfg.TestDSN != "" {
		dbCfg.DSN = dbCfg.TestDSN
	}

	pool, err := postgres.NewPool(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	logger.Info("database connected",
		slog.Int("max_conns", int(cfg.Database.MaxConns)),
	)

	// -----------------------------------------------------------------------
	// 4. Create TxManager + repositories
	// -----------------------------------------------------------------------
	txm := postgres.NewTxManager(pool)
	cardRepo := cardstate.New(pool)
	eventRepo := reviewevent.New(pool)

	// -----------------------------------------------------------------------
	// 5. Build the memory-model parameter table and the session assembler
	// -----------------------------------------------------------------------
	params := memory.FromConfig(cfg.SRS)
	assembler := session.NewAssembler(logger, cardRepo, eventRepo, lexicon, cardRepo, txm, cfg.Session, params)

	// -----------------------------------------------------------------------
	// 6. Create REST handlers
	// -----------------------------------------------------------------------
	healthHandler := rest.NewHealthHandler(pool, BuildVersion())
	studyHandler := rest.NewStudyHandler(assembler, logger)

	// -----------------------------------------------------------------------
	// 7. Assemble middleware chain + ServeMux
	// -----------------------------------------------------------------------
	chain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
	)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /live", healthHandler.Live)
	mux.HandleFunc("GET /ready", healthHandler.Ready)
	mux.HandleFunc("GET /health", healthHandler.Health)

	mux.Handle("POST /study/sessions", chain(http.HandlerFunc(studyHandler.StartSession)))
	mux.Handle("POST /study/sessions/{id}/submit", chain(http.HandlerFunc(studyHandler.Submit)))
	mux.Handle("POST /study/sessions/{id}/end", chain(http.HandlerFunc(studyHandler.EndSession)))

	// -----------------------------------------------------------------------
	// 8. Create and start HTTP server
	// -----------------------------------------------------------------------
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP server started", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	// -----------------------------------------------------------------------
	// 9. Wait for signal -> graceful shutdown
	// -----------------------------------------------------------------------
	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("HTTP server stopped")

	// pool.Close() called via defer
	logger.Info("shutdown complete")

	return nil
}
