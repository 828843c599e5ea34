// Package service maintains the per-scope price estimate cache.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billing "github.com/smallbiznis/cloudbill/internal/billing/domain"
	"github.com/smallbiznis/cloudbill/internal/clock"
	costestimate "github.com/smallbiznis/cloudbill/internal/costestimate/domain"
	customer "github.com/smallbiznis/cloudbill/internal/customer/domain"
	"github.com/smallbiznis/cloudbill/pkg/db"
	"github.com/smallbiznis/cloudbill/pkg/db/option"
	"github.com/smallbiznis/cloudbill/pkg/repository"
)

// Estimator recomputes price estimates from the current-period invoice.
type Estimator struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock clock.Clock
	log   *zap.Logger
}

func NewEstimator(gdb *gorm.DB, node *snowflake.Node, clk clock.Clock, log *zap.Logger) *Estimator {
	return &Estimator{db: gdb, node: node, clock: clk, log: log.Named("costestimate")}
}

var _ billing.EstimateUpdater = (*Estimator)(nil)

// UpdateForCustomer refreshes the customer-scope estimate and every
// project-scope estimate under it from the current month's invoice items.
func (e *Estimator) UpdateForCustomer(ctx context.Context, customerID snowflake.ID) error {
	now := e.clock.Now()

	invoice, err := e.currentInvoice(ctx, customerID, now)
	if err != nil {
		return err
	}

	customerTotal := decimal.Zero
	projectTotals := map[snowflake.ID]decimal.Decimal{}
	if invoice != nil {
		for i := range invoice.Items {
			item := &invoice.Items[i]
			price := item.PriceCurrent(now)
			customerTotal = customerTotal.Add(price)
			if item.ProjectID != nil {
				projectTotals[*item.ProjectID] = projectTotals[*item.ProjectID].Add(price)
			}
		}
	}

	if err := e.upsert(ctx, costestimate.ScopeCustomer, customerID, billing.Quantize(customerTotal)); err != nil {
		return err
	}

	// Projects without items this month reset to zero.
	var projects []customer.Project
	if err := e.db.WithContext(ctx).Where("customer_id = ?", customerID).Find(&projects).Error; err != nil {
		return err
	}
	for _, project := range projects {
		total := billing.Quantize(projectTotals[project.ID])
		if err := e.upsert(ctx, costestimate.ScopeProject, project.ID, total); err != nil {
			return err
		}
	}
	return nil
}

// UpdateTotal refreshes a single scope on demand.
func (e *Estimator) UpdateTotal(ctx context.Context, scopeType costestimate.ScopeType, scopeID snowflake.ID) error {
	switch scopeType {
	case costestimate.ScopeCustomer:
		return e.UpdateForCustomer(ctx, scopeID)
	case costestimate.ScopeProject:
		var project customer.Project
		if err := e.db.WithContext(ctx).Where("id = ?", scopeID).First(&project).Error; err != nil {
			return err
		}
		return e.UpdateForCustomer(ctx, project.CustomerID)
	default:
		return errors.New("unknown estimate scope")
	}
}

// Get returns the cached estimate for a scope, nil when none exists yet.
func (e *Estimator) Get(ctx context.Context, scopeType costestimate.ScopeType, scopeID snowflake.ID) (*costestimate.PriceEstimate, error) {
	return repository.ProvideStore[costestimate.PriceEstimate](e.db).
		FindOne(ctx, &costestimate.PriceEstimate{ScopeType: scopeType, ScopeID: scopeID})
}

// List returns all cached estimates, optionally narrowed to one scope type.
func (e *Estimator) List(ctx context.Context, scopeType costestimate.ScopeType) ([]costestimate.PriceEstimate, error) {
	rows, err := repository.ProvideStore[costestimate.PriceEstimate](e.db).
		Find(ctx, &costestimate.PriceEstimate{ScopeType: scopeType}, option.WithOrder("scope_type, scope_id"))
	if err != nil {
		return nil, err
	}

	estimates := make([]costestimate.PriceEstimate, len(rows))
	for i, row := range rows {
		estimates[i] = *row
	}
	return estimates, nil
}

func (e *Estimator) currentInvoice(ctx context.Context, customerID snowflake.ID, now time.Time) (*billing.Invoice, error) {
	now = now.UTC()
	var invoice billing.Invoice
	err := e.db.WithContext(ctx).
		Preload("Items").
		Where("customer_id = ? AND year = ? AND month = ?", customerID, now.Year(), int(now.Month())).
		First(&invoice).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (e *Estimator) upsert(ctx context.Context, scopeType costestimate.ScopeType, scopeID snowflake.ID, total decimal.Decimal) error {
	result := e.db.WithContext(ctx).Model(&costestimate.PriceEstimate{}).
		Where("scope_type = ? AND scope_id = ?", scopeType, scopeID).
		Update("total", total)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	estimate := costestimate.PriceEstimate{
		ID:        e.node.Generate(),
		UUID:      uuid.New(),
		ScopeType: scopeType,
		ScopeID:   scopeID,
		Total:     total,
		Limit:     costestimate.UnlimitedLimit,
	}
	if err := repository.ProvideStore[costestimate.PriceEstimate](e.db).Create(ctx, &estimate); err != nil {
		// Concurrent refreshes may insert first; fall back to the update.
		if db.IsDuplicateKeyErr(err) {
			return e.db.WithContext(ctx).Model(&costestimate.PriceEstimate{}).
				Where("scope_type = ? AND scope_id = ?", scopeType, scopeID).
				Update("total", total).Error
		}
		return err
	}
	return nil
}
