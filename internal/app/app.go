// Package app wires configuration into the collaborators shared by the commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"go.ngs.io/forecast-prep/internal/adapter/ledger"
	"go.ngs.io/forecast-prep/internal/adapter/notify"
	"go.ngs.io/forecast-prep/internal/config"
	"go.ngs.io/forecast-prep/internal/domain"
	"go.ngs.io/forecast-prep/internal/observability"
	"go.ngs.io/forecast-prep/internal/usecase"
)

// Runtime holds the process-wide collaborators built from a Config.
type Runtime struct {
	Config    *config.Config
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	Clock     clockwork.Clock
	Ledger    *ledger.Ledger // nil when LEDGER_PATH is unset.
	Publisher notify.Publisher
}

// Open builds the runtime. The ledger and Kafka publisher are created only when configured.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock) (*Runtime, error) {
	rt := &Runtime{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics,
		Clock:     clock,
		Publisher: notify.Nop{},
	}

	if cfg.LedgerEnabled() {
		l, err := ledger.Open(ctx, cfg.LedgerPath, clock)
		if err != nil {
			return nil, err
		}
		rt.Ledger = l
		logger.Info("run ledger enabled", "path", cfg.LedgerPath)
	} else {
		logger.Info("run ledger disabled")
	}

	if cfg.NotificationsEnabled() {
		rt.Publisher = notify.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic, clock, logger)
		logger.Info("artifact notifications enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	return rt, nil
}

// Deps returns the use-case collaborators.
func (r *Runtime) Deps() usecase.Deps {
	deps := usecase.Deps{
		Logger:    r.Logger,
		Metrics:   r.Metrics,
		Publisher: r.Publisher,
		Clock:     r.Clock,
	}
	if r.Ledger != nil {
		deps.Ledger = r.Ledger
	}
	return deps
}

// Normalizer loads the normalization constants for the configured window.
func (r *Runtime) Normalizer() (*domain.Normalizer, error) {
	constants, err := config.LoadNormConstants(r.Config.NormConstantsPath)
	if err != nil {
		return nil, err
	}
	return domain.NewNormalizer(constants, r.Config.WindowHours), nil
}

// Close flushes the publisher and closes the ledger.
func (r *Runtime) Close() error {
	var errs []error
	if err := r.Publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if r.Ledger != nil {
		if err := r.Ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close ledger: %w", err))
		}
	}
	return errors.Join(errs...)
}

var initLayouts = []string{"2006010215", "20060102", time.RFC3339}

// ParseInit parses an initialization time given as YYYYMMDDHH, YYYYMMDD (00 UTC) or RFC 3339.
func ParseInit(s string) (time.Time, error) {
	for _, layout := range initLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Minute() != 0 || t.Second() != 0 || t.Nanosecond() != 0 {
				return time.Time{}, fmt.Errorf("initialization time %q is not on the hour", s)
			}
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid initialization time %q: use YYYYMMDDHH, YYYYMMDD or RFC 3339", s)
}
