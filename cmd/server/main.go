package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"quotr/internal/api"
	"quotr/internal/api/handlers"
	"quotr/internal/api/middleware"
	"quotr/internal/engine/access"
	"quotr/internal/engine/catalog"
	"quotr/internal/engine/directory"
	"quotr/internal/engine/event"
	"quotr/internal/engine/invitations"
	"quotr/internal/engine/ledger"
	"quotr/internal/engine/mail"
	"quotr/internal/engine/render"
	"quotr/internal/pkg/logger"
	"quotr/internal/platform/audit"
	"quotr/internal/platform/auth"
	"quotr/internal/platform/config"
	"quotr/internal/platform/database"
	"quotr/internal/platform/observability"
	"quotr/internal/platform/repositories"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)
	metrics.RegisterDBStats(db, "quotr")

	// Sessions
	var store auth.SessionStore
	var storePinger handlers.Pinger
	if cfg.Redis.Addr != "" {
		redisStore, err := auth.NewRedisSessionStore(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		store, storePinger = redisStore, redisStore
	} else {
		log.Warn().Msg("no redis address configured, sessions are kept in process")
		store = auth.NewMemorySessionStore(cfg.Cache.MaxEntries*10, cfg.JWT.RefreshTokenTTL)
	}
	tokens := auth.NewTokenService(cfg.JWT)
	sessions := auth.NewSessionManager(tokens, store)

	// Services
	guard := access.NewGuard(metrics)
	auditLog := audit.NewLogger(db)

	dir := directory.NewService(
		repositories.NewOrganisationRepository(db),
		repositories.NewUserRepository(db),
		guard, auditLog, sessions,
	)
	if err := dir.EnsureSuperUser(ctx, cfg.Bootstrap.SuperUserName, cfg.Bootstrap.SuperUserPassword); err != nil {
		return fmt.Errorf("bootstrap superuser: %w", err)
	}

	catalogRepo := catalog.NewRepository(db)
	types := catalog.NewService(catalogRepo, catalog.NewCache(cfg.Cache.MaxEntries, cfg.Cache.QuotaTypeTTL, metrics), guard, auditLog)
	invRepo := invitations.NewRepository(db)
	inv := invitations.NewService(invRepo, catalogRepo, guard, auditLog)
	ledgerRepo := ledger.NewRepository(db)
	led := ledger.NewService(ledgerRepo, invRepo, guard, auditLog, metrics)
	links := render.NewService(inv, led, cfg.Render)
	eventSvc := event.NewService(event.NewRepository(db), ledgerRepo, guard, auditLog)

	var sender mail.Sender
	if smtp := mail.NewSMTPSender(cfg.Mail); smtp != nil {
		sender = smtp
	} else {
		log.Warn().Msg("no smtp host configured, mail delivery is disabled")
	}
	mailer := mail.NewService(sender, ledgerRepo, inv, eventSvc, links, guard, auditLog, metrics, cfg.Mail)

	// Router
	router := api.NewRouter(&api.Dependencies{
		AuthHandler:         handlers.NewAuthHandler(dir, sessions),
		UserHandler:         handlers.NewUserHandler(dir),
		OrgHandler:          handlers.NewOrgHandler(dir, inv, led),
		QuotaTypeHandler:    handlers.NewQuotaTypeHandler(types),
		InvitationHandler:   handlers.NewInvitationHandler(inv, led),
		DefaultQuotaHandler: handlers.NewDefaultQuotaHandler(inv),
		TicketHandler:       handlers.NewTicketHandler(led),
		QuotaHandler:        handlers.NewQuotaHandler(led),
		RenderHandler:       handlers.NewRenderHandler(links),
		EventHandler:        handlers.NewEventHandler(eventSvc),
		MailHandler:         handlers.NewMailHandler(mailer),
		AuditHandler:        handlers.NewAuditHandler(auditLog, guard),
		HealthHandler:       handlers.NewHealthHandler(db, storePinger),
		MetricsHandler:      handlers.NewMetricsHandler(metrics),
		AuthMiddleware:      middleware.NewAuthMiddleware(sessions, dir),
		Metrics:             metrics,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
