package worker

import (
	"context"
	"time"

	"github.com/hitpixel/pillflow-api/internal/repository"
	"github.com/hitpixel/pillflow-api/pkg/logger"
)

// PartnershipSweeper periodically marks pending partnerships whose window
// has closed as expired. Acceptance already rejects expired tokens on read,
// so the sweep is housekeeping: it keeps listings and stored statuses
// truthful without being load-bearing for correctness.
type PartnershipSweeper struct {
	repo     repository.PartnershipRepository
	interval time.Duration
	logger   *logger.Logger
}

func NewPartnershipSweeper(repo repository.PartnershipRepository, interval time.Duration, log *logger.Logger) *PartnershipSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &PartnershipSweeper{repo: repo, interval: interval, logger: log}
}

func (w *PartnershipSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("starting partnership sweeper")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("shutting down partnership sweeper")
			return
		case <-ticker.C:
			n, err := w.repo.ExpirePending(ctx, time.Now())
			if err != nil {
				w.logger.Error(err, "failed to expire partnerships")
				continue
			}
			if n > 0 {
				w.logger.Info("expired stale partnerships", "count", n)
			}
		}
	}
}
