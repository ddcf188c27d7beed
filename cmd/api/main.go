// Package main is the entry point for the mail-merge API server.
//
// It loads configuration, builds the storage and email-provider backends the
// environment selects, assembles the HTTP server with the core chassis
// (middleware, routing, health checks), and starts listening for requests.
//
// With DATABASE_URL set, users, sessions, and templates persist in Postgres.
// Without it the server runs in local mode: auth state lives in memory and
// templates are stored as JSON files under TEMPLATE_DIR.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mailmerge/internal/api/handlers"
	"mailmerge/internal/auth"
	"mailmerge/internal/campaign"
	"mailmerge/internal/config"
	"mailmerge/internal/core"
	"mailmerge/internal/db"
	"mailmerge/internal/external"
	"mailmerge/internal/templates"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("mailmerge API starting",
		"environment", cfg.Environment,
		"email_provider", cfg.Email.Provider,
		"port", cfg.Server.Port,
	)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Storage backends. A configured database serves users, sessions, and
	// templates; local mode falls back to in-memory auth state and the
	// file-backed template store.
	var (
		userRepo     auth.UserRepo
		sessionRepo  auth.SessionRepo
		templatePort templates.Port
	)
	if cfg.Database.URL.Unmask() != "" {
		pool, err := db.NewPool(context.Background(), cfg.Database)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		srv.OnShutdown(func() error {
			pool.Close()
			return nil
		})
		srv.HealthProbes = append(srv.HealthProbes, core.HealthProbeFunc{
			ProbeName: "database",
			Fn:        pool.Ping,
		})

		userRepo = db.NewUserRepository(pool)
		sessionRepo = db.NewSessionRepository(pool)
		if cfg.Templates.Backend == "postgres" {
			templatePort = db.NewTemplateRepository(pool)
		}
	} else {
		logger.Warn("no database configured; auth state will not survive a restart")
		userRepo = auth.NewMemoryUserRepo()
		sessionRepo = auth.NewMemorySessionRepo()
	}
	if templatePort == nil {
		fileStore, err := templates.NewFileStore(cfg.Templates.Dir)
		if err != nil {
			return fmt.Errorf("creating file template store: %w", err)
		}
		templatePort = fileStore
	}

	sender, err := newSender(cfg, logger)
	if err != nil {
		return err
	}

	// Services.
	sessionCfg := auth.DefaultSessionConfig()
	sessionCfg.SessionDuration = cfg.Auth.SessionDuration
	sessionSvc := auth.NewSessionService(sessionRepo, auth.NewCryptoTokenGenerator(), sessionCfg, nil, logger)

	// Audit trail: every sign-in and sign-out lands in the structured log.
	sessionEvents, cancelSessionFeed := sessionSvc.Subscribe()
	go auth.AuditSessionEvents(logger, sessionEvents)
	srv.OnShutdown(func() error {
		cancelSessionFeed()
		return nil
	})

	authSvc := auth.NewService(auth.ServiceConfig{
		UserRepo:       userRepo,
		SessionService: sessionSvc,
		Logger:         logger,
	})

	templateStore := templates.NewStore(templates.StoreConfig{
		Port:   templatePort,
		Logger: logger,
	})

	manager := campaign.NewManager()
	sequencer := campaign.NewSequencer(campaign.SequencerConfig{
		Sender: sender,
		Delay:  cfg.Dispatch.InterSendDelay,
		Logger: logger,
	})

	srv.Sessions = sessionSvc
	srv.Users = userRepo

	// Handlers.
	cookieCfg := handlers.DefaultCookieConfig()
	cookieCfg.Name = cfg.Auth.CookieName
	cookieCfg.Secure = cfg.Auth.CookieSecure
	cookieCfg.MaxAge = int(cfg.Auth.SessionDuration.Seconds())

	authHandler := handlers.NewAuthHandler(authSvc, cookieCfg, logger, srv.Validator)
	recipientsHandler := handlers.NewRecipientsHandler(manager, logger, srv.Validator)
	templatesHandler := handlers.NewTemplatesHandler(templateStore, manager, logger, srv.Validator)
	dispatchHandler := handlers.NewDispatchHandler(manager, templateStore, sequencer, logger, srv.Validator)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		authHandler.RegisterRoutes,
		recipientsHandler.RegisterRoutes,
		templatesHandler.RegisterRoutes,
		dispatchHandler.RegisterRoutes,
	)

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// newSender builds the outbound email provider selected by EMAIL_PROVIDER.
func newSender(cfg *config.Config, logger *slog.Logger) (campaign.Sender, error) {
	switch cfg.Email.Provider {
	case "smtp2go":
		if cfg.Email.SMTP2GOAPIKey.Unmask() == "" {
			return nil, fmt.Errorf("SMTP2GO_API_KEY is required when EMAIL_PROVIDER=smtp2go")
		}
		return external.NewSMTP2GOClient(external.SMTP2GOConfig{
			APIKey:      cfg.Email.SMTP2GOAPIKey,
			FromAddress: cfg.Email.FromAddress,
		}), nil
	case "resend":
		if cfg.Email.ResendAPIKey.Unmask() == "" {
			return nil, fmt.Errorf("RESEND_API_KEY is required when EMAIL_PROVIDER=resend")
		}
		return external.NewResendClient(external.ResendConfig{
			APIKey:      cfg.Email.ResendAPIKey,
			FromAddress: cfg.Email.FromAddress,
		}), nil
	case "noop":
		return external.NewNoopProvider(logger), nil
	default: // "func", enforced by config validation
		if cfg.Email.SendFunctionURL == "" {
			return nil, fmt.Errorf("SEND_FUNCTION_URL is required when EMAIL_PROVIDER=func")
		}
		return external.NewFuncClient(external.FuncClientConfig{
			Endpoint: cfg.Email.SendFunctionURL,
			APIKey:   cfg.Email.SendFunctionKey,
		}), nil
	}
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})
	return slog.New(handler)
}
