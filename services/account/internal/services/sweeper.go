package services

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically removes expired tokens. Redemption never depends on it.
type Sweeper struct {
	tokens   *TokenService
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a Sweeper that runs every interval.
func NewSweeper(tokens *TokenService, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{tokens: tokens, interval: interval, logger: logger}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.tokens.PurgeExpired(ctx)
	if err != nil {
		s.logger.Error("token sweep failed", slog.Any("error", err))
		return
	}
	if n > 0 {
		s.logger.Info("expired tokens removed", slog.Int64("count", n))
	}
}
