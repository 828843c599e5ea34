// Package scheduler runs the period closer: invoices of finished months are
// issued and the new month's invoices are seeded for every customer.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billing "github.com/smallbiznis/cloudbill/internal/billing/domain"
	"github.com/smallbiznis/cloudbill/internal/billing/registrator"
	"github.com/smallbiznis/cloudbill/internal/clock"
	"github.com/smallbiznis/cloudbill/internal/config"
	customer "github.com/smallbiznis/cloudbill/internal/customer/domain"
	obsmetrics "github.com/smallbiznis/cloudbill/internal/observability/metrics"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Manager    *registrator.Manager
	InvoiceSvc billing.InvoiceService
	Billing    *config.BillingConfigHolder
	Config     Config `optional:"true"`
}

type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	manager    *registrator.Manager
	invoiceSvc billing.InvoiceService
	billing    *config.BillingConfigHolder
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Manager == nil || p.InvoiceSvc == nil || p.Billing == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler"),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		manager:    p.Manager,
		invoiceSvc: p.InvoiceSvc,
		billing:    p.Billing,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}
	schedMetrics.IncJobError(name)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("job timed out", zap.String("job", name), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{"close_invoices", s.CloseInvoicesJob},
		{"seed_invoices", s.SeedInvoicesJob},
	}
	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		if lag := time.Since(nextRun); lag > 0 {
			schedMetrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	enabled := s.cfg.EnabledJobs
	if billingCfg := s.billing.Get(); len(billingCfg.SchedulerJobs) > 0 {
		enabled = billingCfg.SchedulerJobs
	}
	if len(enabled) == 0 {
		return true
	}
	for _, name := range enabled {
		if strings.EqualFold(name, jobName) {
			return true
		}
	}
	return false
}

// CloseInvoicesJob issues every pending invoice whose period lies strictly
// before the current month. One failing invoice never blocks the sweep.
func (s *Scheduler) CloseInvoicesJob(ctx context.Context) error {
	now := s.clock.Now().UTC()
	schedMetrics := obsmetrics.Scheduler()

	var invoices []billing.Invoice
	err := s.db.WithContext(ctx).
		Where("state = ? AND (year < ? OR (year = ? AND month < ?))",
			billing.InvoiceStatePending, now.Year(), now.Year(), int(now.Month())).
		Order("year, month, id").
		Find(&invoices).Error
	if err != nil {
		return err
	}

	var jobErr error
	for i := range invoices {
		invoice := &invoices[i]
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		if _, err := s.invoiceSvc.SetCreated(ctx, invoice.ID); err != nil {
			jobErr = errors.Join(jobErr, fmt.Errorf("close invoice %s: %w", invoice.UUID, err))
			s.log.Warn("invoice close failed",
				zap.String("invoice_uuid", invoice.UUID.String()),
				zap.Int64("customer_id", int64(invoice.CustomerID)),
				zap.Error(err))
			continue
		}
		schedMetrics.IncInvoiceClosed()
	}
	return jobErr
}

// SeedInvoicesJob opens the current month's invoice for every customer so
// mid-month registrations always find one. The accounting start date gate
// keeps onboarded-but-not-yet-billed customers out of the sweep.
func (s *Scheduler) SeedInvoicesJob(ctx context.Context) error {
	now := s.clock.Now().UTC()
	gate := s.billing.Get().EnableAccountingStartDate

	var customers []customer.Customer
	if err := s.db.WithContext(ctx).Order("id").Find(&customers).Error; err != nil {
		return err
	}

	schedMetrics := obsmetrics.Scheduler()
	var jobErr error
	for i := range customers {
		cust := &customers[i]
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		if gate && cust.AccountingStartDate != nil && cust.AccountingStartDate.After(now) {
			continue
		}

		_, created, err := s.manager.GetOrCreateInvoice(ctx, cust.ID, now)
		if err != nil {
			jobErr = errors.Join(jobErr, fmt.Errorf("seed invoice for customer %d: %w", cust.ID, err))
			s.log.Warn("invoice seeding failed",
				zap.Int64("customer_id", int64(cust.ID)), zap.Error(err))
			continue
		}
		if created {
			schedMetrics.IncInvoiceSeeded()
		}
	}
	return jobErr
}
