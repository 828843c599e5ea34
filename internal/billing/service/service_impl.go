// Package service implements the invoice lifecycle on top of gorm.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billing "github.com/smallbiznis/cloudbill/internal/billing/domain"
	"github.com/smallbiznis/cloudbill/internal/clock"
	customer "github.com/smallbiznis/cloudbill/internal/customer/domain"
	"github.com/smallbiznis/cloudbill/pkg/db/option"
	"github.com/smallbiznis/cloudbill/pkg/repository"
)

type invoiceService struct {
	db          *gorm.DB
	clock       clock.Clock
	log         *zap.Logger
	compensator billing.Compensator
}

func NewInvoiceService(db *gorm.DB, clk clock.Clock, log *zap.Logger, compensator billing.Compensator) billing.InvoiceService {
	return &invoiceService{
		db:          db,
		clock:       clk,
		log:         log.Named("billing.service"),
		compensator: compensator,
	}
}

// SetCreated runs the whole close in one transaction so a failed
// compensation pass leaves the invoice pending and untouched.
func (s *invoiceService) SetCreated(ctx context.Context, invoiceID snowflake.ID) (*billing.Invoice, error) {
	var invoice billing.Invoice

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Items").Where("id = ?", invoiceID).First(&invoice).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return billing.ErrInvoiceNotFound
			}
			return err
		}
		if invoice.State != billing.InvoiceStatePending {
			return &billing.StateError{From: invoice.State, To: billing.InvoiceStateCreated}
		}

		if s.compensator != nil {
			if err := s.compensator.Compensate(ctx, tx, &invoice); err != nil {
				return fmt.Errorf("apply credits: %w", err)
			}
			// Compensation may have appended items; reload them so the
			// cached totals below include the credit lines.
			if err := tx.Where("invoice_id = ?", invoice.ID).Find(&invoice.Items).Error; err != nil {
				return err
			}
		}

		state := billing.InvoiceStateCreated
		payable, err := s.hasActiveFixedPriceProfile(ctx, tx, invoice.CustomerID)
		if err != nil {
			return err
		}
		if payable {
			state = billing.InvoiceStatePaid
		}

		now := s.clock.Now()
		invoice.State = state
		invoice.InvoiceDate = &now
		invoice.TotalPrice = invoice.Price()
		invoice.TotalCost = invoice.Total()

		return tx.Model(&billing.Invoice{}).Where("id = ?", invoice.ID).Updates(map[string]any{
			"state":        invoice.State,
			"invoice_date": invoice.InvoiceDate,
			"total_price":  invoice.TotalPrice,
			"total_cost":   invoice.TotalCost,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice issued",
		zap.String("invoice_uuid", invoice.UUID.String()),
		zap.Int64("number", invoice.Number()),
		zap.String("state", string(invoice.State)))
	return &invoice, nil
}

// hasActiveFixedPriceProfile reports whether the customer pays a fixed
// price outside this system, which marks closed invoices as already paid.
func (s *invoiceService) hasActiveFixedPriceProfile(ctx context.Context, tx *gorm.DB, customerID snowflake.ID) (bool, error) {
	active := true
	count, err := repository.ProvideStore[customer.PaymentProfile](tx).Count(ctx, &customer.PaymentProfile{
		CustomerID:  customerID,
		PaymentType: customer.PaymentTypeFixedPrice,
		IsActive:    &active,
	})
	return count > 0, err
}

func (s *invoiceService) UpdateCache(ctx context.Context, invoiceID snowflake.ID) error {
	var invoice billing.Invoice
	if err := s.db.WithContext(ctx).Preload("Items").Where("id = ?", invoiceID).First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return billing.ErrInvoiceNotFound
		}
		return err
	}

	return s.db.WithContext(ctx).Model(&billing.Invoice{}).Where("id = ?", invoice.ID).Updates(map[string]any{
		"total_price": invoice.Price(),
		"total_cost":  invoice.Total(),
	}).Error
}

// invoiceSortColumns allow-lists the caller-controlled sort fields.
var invoiceSortColumns = map[string]bool{
	"year":        true,
	"month":       true,
	"total_price": true,
}

func (s *invoiceService) List(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	var opts []option.QueryOption
	if filter.CustomerID != 0 {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "customer_id", Operator: option.EQ, Value: filter.CustomerID}))
	}
	if filter.Year != 0 {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "year", Operator: option.EQ, Value: filter.Year}))
	}
	if filter.Month != 0 {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "month", Operator: option.EQ, Value: filter.Month}))
	}
	if filter.State != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "state", Operator: option.EQ, Value: filter.State}))
	}
	opts = append(opts,
		option.WithSortBy(option.QuerySortBy{Allow: invoiceSortColumns, Field: filter.SortBy, Descend: filter.SortDesc}),
		// Period ordering is the tiebreak behind any requested sort.
		option.WithOrder("year DESC, month DESC, id DESC"),
		option.WithLimit(filter.Limit),
	)

	query := s.db.WithContext(ctx).Model(&billing.Invoice{}).Preload("Items")
	for _, opt := range opts {
		query = opt.Apply(query)
	}

	var invoices []billing.Invoice
	if err := query.Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *invoiceService) Get(ctx context.Context, invoiceUUID string) (*billing.Invoice, error) {
	var invoice billing.Invoice
	err := s.db.WithContext(ctx).Preload("Items").Where("uuid = ?", invoiceUUID).First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}
