package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/walletbot/core/logger"
)

// Seeder loads reference data into storage it was built with.
type Seeder interface {
	Name() string
	Seed(ctx context.Context) (int, error)
}

// SeederFunc adapts a bare function to the Seeder interface.
type SeederFunc struct {
	Label string
	Fn    func(ctx context.Context) (int, error)
}

// Name returns the label used in logs.
func (f SeederFunc) Name() string { return f.Label }

// Seed executes the underlying function.
func (f SeederFunc) Seed(ctx context.Context) (int, error) {
	return f.Fn(ctx)
}

// Seed runs seeders in order and stops at the first failure.
func Seed(ctx context.Context, seeders ...Seeder) error {
	for _, s := range seeders {
		if s == nil {
			continue
		}
		start := time.Now()
		n, err := s.Seed(ctx)
		attrs := []slog.Attr{
			slog.String("status", logger.Status(err)),
			slog.String("name", s.Name()),
			slog.Int("count", n),
			slog.Duration("duration", logger.Took(start)),
		}
		if err != nil {
			logger.Error(ctx, "db.seed", "seed", append(attrs, slog.String("err", err.Error()))...)
			return fmt.Errorf("bootstrap: seeder %s failed: %w", s.Name(), err)
		}
		logger.Info(ctx, "db.seed", "seed", attrs...)
	}
	return nil
}
