package cart

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/go_fulfill/internal/repository"
)

// SweepInterval is how often the expiry sweep runs.
const SweepInterval = 10 * time.Minute

// Sweeper purges expired carts on a ticker.
type Sweeper struct {
	repo     repository.CartRepository
	interval time.Duration
	logger   *zap.Logger
}

func NewSweeper(repo repository.CartRepository, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval == 0 {
		interval = SweepInterval
	}
	return &Sweeper{repo: repo, interval: interval, logger: logger}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	purged, err := s.repo.DeleteExpired(ctx, time.Now())
	if err != nil {
		s.logger.Error("cart expiry sweep failed", zap.Error(err))
		return
	}
	if purged > 0 {
		s.logger.Info("purged expired carts", zap.Int("count", purged))
	}
}
