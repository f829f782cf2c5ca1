package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hitpixel/pillflow-api/internal/config"
	"github.com/hitpixel/pillflow-api/internal/email"
	auditHandler "github.com/hitpixel/pillflow-api/internal/handler/audit"
	grantHandler "github.com/hitpixel/pillflow-api/internal/handler/grant"
	healthHandler "github.com/hitpixel/pillflow-api/internal/handler/health"
	orgHandler "github.com/hitpixel/pillflow-api/internal/handler/organization"
	partnershipHandler "github.com/hitpixel/pillflow-api/internal/handler/partnership"
	patientHandler "github.com/hitpixel/pillflow-api/internal/handler/patient"
	"github.com/hitpixel/pillflow-api/internal/middleware"
	"github.com/hitpixel/pillflow-api/internal/repository/postgres"
	"github.com/hitpixel/pillflow-api/internal/router"
	accessService "github.com/hitpixel/pillflow-api/internal/service/access"
	auditService "github.com/hitpixel/pillflow-api/internal/service/audit"
	grantService "github.com/hitpixel/pillflow-api/internal/service/grant"
	identityService "github.com/hitpixel/pillflow-api/internal/service/identity"
	notificationService "github.com/hitpixel/pillflow-api/internal/service/notification"
	orgService "github.com/hitpixel/pillflow-api/internal/service/organization"
	partnershipService "github.com/hitpixel/pillflow-api/internal/service/partnership"
	patientService "github.com/hitpixel/pillflow-api/internal/service/patient"
	"github.com/hitpixel/pillflow-api/pkg/logger"
	"github.com/hitpixel/pillflow-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	if err := middleware.RegisterValidators(); err != nil {
		log.Fatal().Err(err).Msg("failed to register validators")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	m := metrics.New("pillflow")

	baseRepo := postgres.NewBaseRepository(db)
	orgRepo := postgres.NewOrganizationRepository(baseRepo)
	patientRepo := postgres.NewPatientRepository(baseRepo)
	grantRepo := postgres.NewGrantRepository(baseRepo)
	partnershipRepo := postgres.NewPartnershipRepository(baseRepo)
	accessLogRepo := postgres.NewAccessLogRepository(baseRepo)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)

	identitySvc := identityService.NewService(orgRepo)
	accessSvc := accessService.NewService(patientRepo, grantRepo, identitySvc, m)
	auditSvc := auditService.NewService(accessLogRepo, patientRepo, identitySvc, m)

	var notifier grantService.Notifier
	if cfg.SMTP.Host != "" {
		sender := email.NewClient(email.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			SkipTLS:  cfg.SMTP.SkipTLS,
		})
		notifier = notificationService.NewService(sender, orgRepo, appLogger)
	}

	grantSvc := grantService.NewService(grantRepo, patientRepo, identitySvc, outboxRepo, notifier, appLogger, m)
	partnershipSvc := partnershipService.NewService(partnershipRepo, identitySvc, outboxRepo, appLogger)
	patientSvc := patientService.NewService(patientRepo, accessSvc, auditSvc, identitySvc, m)
	orgSvc := orgService.NewService(orgRepo)

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)

	r := router.New(authMiddleware, router.Config{
		RateLimitPerSecond: cfg.RateLimit.PerSecond,
		RateLimitBurst:     cfg.RateLimit.Burst,
		CacheTTL:           cfg.Cache.TTL,
		MetricsPrefix:      "pillflow_http",
	})

	r.Setup(
		healthHandler.NewHandler(db),
		[]router.Handler{
			patientHandler.NewHandler(patientSvc),
			grantHandler.NewHandler(grantSvc),
			partnershipHandler.NewHandler(partnershipSvc),
		},
		[]router.Handler{
			orgHandler.NewHandler(orgSvc),
			auditHandler.NewHandler(auditSvc),
		},
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}
