package registry

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/bashautom/internal/shell"
)

// Preset describes a session to create at startup.
type Preset struct {
	Name    string
	Options []shell.Option
}

// Seed creates one session per preset. Names that are already registered are
// skipped. It returns how many sessions were created; failures are joined
// and do not stop the remaining presets.
func (r *Registry) Seed(ctx context.Context, presets []Preset) (int, error) {
	var (
		created int
		errs    []error
	)

	for _, p := range presets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		_, err := r.Create(ctx, p.Name, p.Options...)
		switch {
		case err == nil:
			created++
			r.logger.Info("Seeded session", zap.String("session", p.Name))
		case errors.Is(err, ErrSessionExists):
			r.logger.Debug("Session already exists, skipping", zap.String("session", p.Name))
		default:
			errs = append(errs, fmt.Errorf("seed %s: %w", p.Name, err))
		}
	}

	if created > 0 || len(errs) > 0 {
		r.logger.Info("Session seeding finished",
			zap.Int("created", created),
			zap.Int("failed", len(errs)),
		)
	}
	return created, errors.Join(errs...)
}
