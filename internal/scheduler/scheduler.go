// Package scheduler drives the recurring billing jobs: marking invoices
// overdue and, when enabled, generating the previous month's invoices.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openisp/netbill/internal/clock"
	invoicedomain "github.com/openisp/netbill/internal/invoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	InvoiceSvc invoicedomain.Service
	Config     Config
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	invoiceSvc invoicedomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.InvoiceSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler"),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		invoiceSvc: p.InvoiceSvc,
	}, nil
}

// RunOnce executes every job one time. Generation is idempotent per
// (customer, month), so re-running within the same month only skips.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var firstErr error

	if err := s.runJob(parent, "mark_overdue", s.MarkOverdueJob); err != nil {
		firstErr = err
	}
	if s.cfg.AutoGenerate {
		if err := s.runJob(parent, "generate_monthly", s.GenerateMonthlyJob); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	start := s.clock.Now()
	err := fn(ctx)
	elapsed := s.clock.Now().Sub(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			s.log.Warn("job timed out",
				zap.String("job", name),
				zap.Duration("timeout", s.cfg.JobTimeout),
			)
			return nil
		}
		return fmt.Errorf("%s: %w", name, err)
	}

	s.log.Debug("job finished",
		zap.String("job", name),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}

func (s *Scheduler) MarkOverdueJob(ctx context.Context) error {
	_, err := s.invoiceSvc.MarkOverdue(ctx)
	return err
}

// GenerateMonthlyJob bills the previous calendar month so a full month of
// usage records exists before charges are computed.
func (s *Scheduler) GenerateMonthlyJob(ctx context.Context) error {
	period := invoicedomain.PeriodOf(s.clock.Now()).Previous()
	result, err := s.invoiceSvc.GenerateMonthly(ctx, period.String())
	if err != nil {
		return err
	}
	if result.Generated > 0 || len(result.Errors) > 0 {
		s.log.Info("scheduled generation run",
			zap.String("month", result.Month),
			zap.Int("generated", result.Generated),
			zap.Int("skipped", result.Skipped),
			zap.Int("errors", len(result.Errors)),
		)
	}
	return nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
