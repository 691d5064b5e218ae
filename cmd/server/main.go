// QnA onboarding bot server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/qnabot/internal/api"
	"github.com/ashureev/qnabot/internal/bot"
	"github.com/ashureev/qnabot/internal/config"
	"github.com/ashureev/qnabot/internal/identity"
	"github.com/ashureev/qnabot/internal/middleware"
	"github.com/ashureev/qnabot/internal/qna"
	"github.com/ashureev/qnabot/internal/state"
	"github.com/ashureev/qnabot/internal/store"
	"github.com/ashureev/qnabot/internal/transcript"
	"github.com/ashureev/qnabot/web"
)

const banner = `
    ┌─┐ ┌┐┌ ┌─┐  ┌┐ ┌─┐┌┬┐
    │─┼┐│││ ├─┤  ├┴┐│ │ │
    └─┘└┘└┘ ┴ ┴  └─┘└─┘ ┴
`

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	catalog, err := bot.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}

	repo, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if err := repo.Ping(context.Background()); err != nil {
		return fmt.Errorf("state store health check: %w", err)
	}
	slog.Info("State store connected", "backend", cfg.StateBackend)

	tlog, err := transcript.New(cfg.Transcript, logger)
	if err != nil {
		return fmt.Errorf("initialize transcript: %w", err)
	}
	defer func() {
		if closeErr := tlog.Close(); closeErr != nil {
			slog.Error("Failed to close transcript", "error", closeErr)
		}
	}()

	answers := qna.NewCapability(cfg.QnA, logger)
	conversationState := state.NewConversationState(repo, logger)
	userState := state.NewUserState(repo, logger)

	qnaBot := bot.New(conversationState, userState, answers,
		bot.WithLogger(logger),
		bot.WithCatalog(catalog),
		bot.WithLocation(loc),
		bot.WithTranscript(tlog),
	)

	printBanner(cfg, qnaBot.AnswersConfigured())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := api.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	limiter.StartEviction(ctx)

	sessions := api.NewSessionManager(logger)
	handler := api.NewHandler(qnaBot, limiter, sessions, logger)
	handler.SetOriginPolicy(cfg.AllowedOrigins, cfg.IsDevelopment())
	healthHandler := api.NewHealthHandler(repo, qnaBot.AnswersConfigured(), sessions)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins, identity.SessionHeaderName))
	r.Use(identity.Middleware(identity.DefaultOptions(cfg.IsDevelopment())))

	healthHandler.RegisterHealth(r)
	handler.RegisterRoutes(r)
	r.Handle("/*", web.ChatHandler())

	// Websocket sessions are long lived, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	if cfg.StateTTL > 0 {
		state.StartSweeper(ctx, conversationState, cfg.StateTTL, state.DefaultSweepInterval, sessions.Close)
		slog.Info("Conversation sweeper started", "state_ttl", cfg.StateTTL)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	stop()

	slog.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func openStore(cfg *config.Config) (store.Repository, error) {
	if cfg.StateBackend == config.StateBackendMemory {
		slog.Warn("Using in-memory state; user profiles are lost on restart")
		return store.NewMemory(), nil
	}
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	return repo, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

func printBanner(cfg *config.Config, qnaConfigured bool) {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)

	cyan.Fprint(os.Stderr, banner)
	fmt.Fprintln(os.Stderr)

	green.Fprint(os.Stderr, "    ▶ ")
	fmt.Fprintf(os.Stderr, "HTTP:      :%s\n", cfg.Port)
	green.Fprint(os.Stderr, "    ▶ ")
	fmt.Fprintf(os.Stderr, "State:     %s", cfg.StateBackend)
	if cfg.StateBackend == config.StateBackendSQLite {
		gray.Fprintf(os.Stderr, " (%s)", cfg.DBPath)
	}
	fmt.Fprintln(os.Stderr)

	green.Fprint(os.Stderr, "    ▶ ")
	fmt.Fprint(os.Stderr, "QnA Maker: ")
	if qnaConfigured {
		cyan.Fprintln(os.Stderr, cfg.QnA.Host)
	} else {
		yellow.Fprintln(os.Stderr, "not configured")
	}
	fmt.Fprintln(os.Stderr)
}
