// The worker drains the outbox into the redis broker and sweeps expired
// partnerships. It runs separately from the API so broker or SMTP trouble
// never slows a request.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/hitpixel/pillflow-api/internal/repository/postgres"
	"github.com/hitpixel/pillflow-api/internal/worker"
	"github.com/hitpixel/pillflow-api/pkg/logger"
	"github.com/hitpixel/pillflow-api/pkg/messaging/redis"
	"github.com/hitpixel/pillflow-api/pkg/metrics"
	pkgworker "github.com/hitpixel/pillflow-api/pkg/worker"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type workerConfig struct {
	DatabaseURL   string        `envconfig:"DATABASE_URL" required:"true"`
	RedisURL      string        `envconfig:"REDIS_URL" required:"true"`
	BatchSize     int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	PollInterval  time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"5s"`
	RetryAttempts int           `envconfig:"OUTBOX_RETRY_ATTEMPTS" default:"3"`
	RetryDelay    time.Duration `envconfig:"OUTBOX_RETRY_DELAY" default:"1s"`
	SweepInterval time.Duration `envconfig:"PARTNERSHIP_SWEEP_INTERVAL" default:"1h"`
	HealthAddr    string        `envconfig:"HEALTH_ADDR" default:":8081"`
}

func main() {
	var cfg workerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewBroker(redis.Config{URL: cfg.RedisURL}, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer broker.Close()

	baseRepo := postgres.NewBaseRepository(db)
	outboxRepo := postgres.NewOutboxRepository(baseRepo)
	partnershipRepo := postgres.NewPartnershipRepository(baseRepo)

	processor := pkgworker.NewOutboxProcessor(
		outboxRepo,
		broker,
		pkgworker.OutboxProcessorConfig{
			BatchSize:     cfg.BatchSize,
			PollInterval:  cfg.PollInterval,
			RetryAttempts: cfg.RetryAttempts,
			RetryDelay:    cfg.RetryDelay,
		},
		appLogger,
		metrics.New("pillflow_worker"),
	)
	sweeper := worker.NewPartnershipSweeper(partnershipRepo, cfg.SweepInterval, appLogger)

	startHealthServer(cfg.HealthAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("shutting down...")
		cancel()
	}()

	go sweeper.Start(ctx)
	processor.Start(ctx)
}

func startHealthServer(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Fatal().Err(err).Msg("health server failed")
		}
	}()
}
