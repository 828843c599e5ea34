package registrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	billing "github.com/smallbiznis/cloudbill/internal/billing/domain"
	"github.com/smallbiznis/cloudbill/internal/clock"
	customer "github.com/smallbiznis/cloudbill/internal/customer/domain"
	"github.com/smallbiznis/cloudbill/pkg/db"
)

// Manager is the single entry point for source registration. It owns the
// one-invoice-per-customer-per-month rule and dispatches item bookkeeping
// to the registrator bound for each source type.
type Manager struct {
	db        *gorm.DB
	node      *snowflake.Node
	clock     clock.Clock
	log       *zap.Logger
	estimates billing.EstimateUpdater

	mu           sync.RWMutex
	registrators map[billing.SourceType]Registrator
}

func NewManager(gdb *gorm.DB, node *snowflake.Node, clk clock.Clock, log *zap.Logger, estimates billing.EstimateUpdater) *Manager {
	return &Manager{
		db:           gdb,
		node:         node,
		clock:        clk,
		log:          log.Named("registrator.manager"),
		estimates:    estimates,
		registrators: make(map[billing.SourceType]Registrator),
	}
}

// AddRegistrator binds r for its source type, replacing any previous
// binding. Bindings happen once at startup; a replacement outside that
// window is suspicious and logged.
func (m *Manager) AddRegistrator(r Registrator) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.registrators[r.SourceType()]; ok {
		m.log.Warn("replacing registrator binding",
			zap.String("source_type", string(r.SourceType())))
	}
	m.registrators[r.SourceType()] = r
}

func (m *Manager) registrator(st billing.SourceType) (Registrator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.registrators[st]
	if !ok {
		return nil, fmt.Errorf("%w: %s", billing.ErrUnknownSourceType, st)
	}
	return r, nil
}

func (m *Manager) allRegistrators() []Registrator {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Registrator, 0, len(m.registrators))
	for _, r := range m.registrators {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceType() < out[j].SourceType() })
	return out
}

// GetOrCreateInvoice returns the customer's invoice for date's month,
// creating and seeding it when absent. The unique index on
// (customer_id, year, month) arbitrates concurrent creation: on a duplicate
// key the row is re-read once and returned with created=false.
func (m *Manager) GetOrCreateInvoice(ctx context.Context, customerID snowflake.ID, date time.Time) (*billing.Invoice, bool, error) {
	date = date.UTC()
	year, month := date.Year(), int(date.Month())

	existing, err := m.findInvoice(ctx, customerID, year, month)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	invoice := &billing.Invoice{}
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cust customer.Customer
		if err := tx.Where("id = ?", customerID).First(&cust).Error; err != nil {
			return fmt.Errorf("load customer %d: %w", customerID, err)
		}

		var maxSeq int64
		if err := tx.Model(&billing.Invoice{}).Select("COALESCE(MAX(sequence), 0)").Scan(&maxSeq).Error; err != nil {
			return err
		}

		*invoice = billing.Invoice{
			ID:         m.node.Generate(),
			UUID:       uuid.New(),
			CustomerID: customerID,
			Year:       year,
			Month:      month,
			Sequence:   maxSeq + 1,
			State:      billing.InvoiceStatePending,
			TaxPercent: cust.DefaultTaxPercent,
		}
		if err := tx.Create(invoice).Error; err != nil {
			return err
		}
		return m.seedInvoice(tx, invoice, date)
	})
	if err == nil {
		m.log.Info("invoice created",
			zap.Int64("customer_id", int64(customerID)),
			zap.Int("year", year), zap.Int("month", month))
		m.nudgeEstimates(ctx, customerID)
		return invoice, true, nil
	}

	if !db.IsDuplicateKeyErr(err) {
		return nil, false, err
	}

	// Lost the creation race; the winner's row must exist now.
	existing, rerr := m.findInvoice(ctx, customerID, year, month)
	if rerr != nil {
		return nil, false, rerr
	}
	if existing == nil {
		return nil, false, fmt.Errorf("invoice for customer %d period %d-%02d vanished after duplicate key", customerID, year, month)
	}
	return existing, false, nil
}

// seedInvoice opens items for every chargeable source the customer already
// has, so a mid-month invoice starts complete.
func (m *Manager) seedInvoice(tx *gorm.DB, invoice *billing.Invoice, start time.Time) error {
	for _, r := range m.allRegistrators() {
		sources, err := r.Sources(tx, invoice.CustomerID)
		if err != nil {
			return fmt.Errorf("list %s sources: %w", r.SourceType(), err)
		}
		for _, source := range sources {
			if err := r.Register(tx, invoice, source, start); err != nil {
				return fmt.Errorf("register %s %d: %w", source.SourceType(), source.SourceID(), err)
			}
		}
	}
	return nil
}

// Register opens invoice items for source in the current period, creating
// the invoice first if needed. When the invoice was freshly created the
// seeding pass already covered the source. A source with an open item is
// skipped, so repeated registrations in one period leave exactly one open
// item.
func (m *Manager) Register(ctx context.Context, source billing.Source) error {
	r, err := m.registrator(source.SourceType())
	if err != nil {
		return err
	}

	now := m.clock.Now()
	customerID, err := r.CustomerID(m.db.WithContext(ctx), source)
	if err != nil {
		return err
	}

	invoice, created, err := m.GetOrCreateInvoice(ctx, customerID, now)
	if err != nil {
		return err
	}
	if created {
		return nil
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items, err := m.openItems(tx, customerID, source, now)
		if err != nil {
			return err
		}
		if len(items) > 0 {
			m.log.Debug("source already registered for period",
				zap.String("source_type", string(source.SourceType())),
				zap.Int64("source_id", int64(source.SourceID())))
			return nil
		}
		return r.Register(tx, invoice, source, now)
	})
	if err != nil {
		return err
	}
	m.nudgeEstimates(ctx, customerID)
	return nil
}

// Terminate closes the source's open item in the current pending invoice,
// creating the invoice first when the period has none yet. A missing item
// is logged and ignored; several open items indicate legacy corruption and
// the most recently opened one is used.
func (m *Manager) Terminate(ctx context.Context, source billing.Source) error {
	r, err := m.registrator(source.SourceType())
	if err != nil {
		return err
	}

	now := m.clock.Now()
	customerID, err := r.CustomerID(m.db.WithContext(ctx), source)
	if err != nil {
		return err
	}
	if _, _, err := m.GetOrCreateInvoice(ctx, customerID, now); err != nil {
		return err
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items, err := m.openItems(tx, customerID, source, now)
		if err != nil {
			return err
		}
		switch {
		case len(items) == 0:
			m.log.Warn("terminate without open item",
				zap.String("source_type", string(source.SourceType())),
				zap.Int64("source_id", int64(source.SourceID())))
			return nil
		case len(items) > 1:
			m.log.Warn("multiple open items for source, closing the most recent",
				zap.String("source_type", string(source.SourceType())),
				zap.Int64("source_id", int64(source.SourceID())),
				zap.Int("count", len(items)))
		}

		item := items[0]
		item.Terminate(now)
		return tx.Model(&billing.InvoiceItem{}).
			Where("id = ?", item.ID).
			Updates(map[string]any{"end": item.End, "quantity": item.Quantity}).Error
	})
	if err != nil {
		return err
	}
	m.nudgeEstimates(ctx, customerID)
	return nil
}

// GetItem returns the source's open item in the current pending invoice.
func (m *Manager) GetItem(ctx context.Context, source billing.Source) (*billing.InvoiceItem, error) {
	r, err := m.registrator(source.SourceType())
	if err != nil {
		return nil, err
	}
	customerID, err := r.CustomerID(m.db.WithContext(ctx), source)
	if err != nil {
		return nil, err
	}

	items, err := m.openItems(m.db.WithContext(ctx), customerID, source, m.clock.Now())
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, billing.ErrItemNotFound
	}
	return items[0], nil
}

// GetName returns the denormalized display name the item would carry.
func (m *Manager) GetName(source billing.Source) (string, error) {
	r, err := m.registrator(source.SourceType())
	if err != nil {
		return "", err
	}
	return r.Name(source), nil
}

// GetDetails returns the snapshot details the item would carry.
func (m *Manager) GetDetails(ctx context.Context, source billing.Source) (datatypes.JSONMap, error) {
	r, err := m.registrator(source.SourceType())
	if err != nil {
		return nil, err
	}
	return r.Details(m.db.WithContext(ctx), source)
}

func (m *Manager) findInvoice(ctx context.Context, customerID snowflake.ID, year, month int) (*billing.Invoice, error) {
	var invoice billing.Invoice
	err := m.db.WithContext(ctx).
		Preload("Items").
		Where("customer_id = ? AND year = ? AND month = ?", customerID, year, month).
		First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

// openItems lists the source's still-open items on the customer's pending
// invoice for now's month, newest first. An item terminated earlier has its
// end in the past and no longer matches, which makes Terminate a no-op the
// second time.
func (m *Manager) openItems(tx *gorm.DB, customerID snowflake.ID, source billing.Source, now time.Time) ([]*billing.InvoiceItem, error) {
	now = now.UTC()
	var items []*billing.InvoiceItem
	err := tx.
		Joins("JOIN invoices ON invoices.id = invoice_items.invoice_id").
		Where("invoices.customer_id = ? AND invoices.year = ? AND invoices.month = ? AND invoices.state = ?",
			customerID, now.Year(), int(now.Month()), billing.InvoiceStatePending).
		Where("invoice_items.source_type = ? AND invoice_items.source_id = ?", source.SourceType(), source.SourceID()).
		Order("invoice_items.created_at DESC, invoice_items.id DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}

	open := items[:0]
	for _, item := range items {
		if item.End.After(now) {
			open = append(open, item)
		}
	}
	return open, nil
}

func (m *Manager) nudgeEstimates(ctx context.Context, customerID snowflake.ID) {
	if m.estimates == nil {
		return
	}
	if err := m.estimates.UpdateForCustomer(ctx, customerID); err != nil {
		m.log.Warn("cost estimate refresh failed",
			zap.Int64("customer_id", int64(customerID)), zap.Error(err))
	}
}
