// Package domain contains the invoice aggregate: per-customer monthly
// invoices, their line items and the proration rules that price them.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvoiceState represents the invoice lifecycle.
type InvoiceState string

const (
	InvoiceStatePending  InvoiceState = "pending"
	InvoiceStateCreated  InvoiceState = "created"
	InvoiceStatePaid     InvoiceState = "paid"
	InvoiceStateCanceled InvoiceState = "canceled"
)

// Unit is the billing unit of an invoice item.
type Unit string

const (
	UnitPerHour      Unit = "hour"
	UnitPerDay       Unit = "day"
	UnitPerHalfMonth Unit = "half_month"
	UnitPerMonth     Unit = "month"
	UnitQuantity     Unit = "quantity"
)

// SourceType tags the kind of chargeable object an item was opened for.
type SourceType string

// Source is a chargeable object owned by a customer's project. Items keep a
// denormalized snapshot of the source so the line survives its deletion.
type Source interface {
	SourceType() SourceType
	SourceID() snowflake.ID
	SourceName() string
}

// Detail keys stored in InvoiceItem.Details.
const (
	DetailBillingType = "billing_type"
	DetailLimitPeriod = "limit_period"
)

// Billing types recorded in item details.
const (
	BillingTypeFixed = "fixed"
	BillingTypeUsage = "usage"
	BillingTypeLimit = "limit"
)

// Limit periods for limit-based components.
const (
	LimitPeriodMonth  = "month"
	LimitPeriodAnnual = "annual"
	LimitPeriodTotal  = "total"
)

// Invoice is one customer's bill for one calendar month. At most one row
// exists per (customer, year, month); the unique index is the arbiter under
// concurrent creation.
type Invoice struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	UUID       uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex"`
	CustomerID snowflake.ID `gorm:"not null;uniqueIndex:ux_invoice_customer_period"`
	Year       int          `gorm:"not null;uniqueIndex:ux_invoice_customer_period"`
	Month      int          `gorm:"not null;uniqueIndex:ux_invoice_customer_period"`
	Sequence   int64        `gorm:"not null;index"`
	State      InvoiceState `gorm:"type:text;not null;default:'pending'"`
	// TaxPercent is copied from the customer when the invoice is created
	// and frozen afterwards.
	TaxPercent decimal.Decimal `gorm:"type:decimal(4,2);not null;default:0"`
	// InvoiceDate is stamped when the state leaves pending.
	InvoiceDate *time.Time `gorm:""`
	// TotalPrice caches the pre-tax price and TotalCost the price with tax
	// included; the authoritative values are always recomputed from items.
	TotalPrice decimal.Decimal `gorm:"type:decimal(14,7);not null;default:0"`
	TotalCost  decimal.Decimal `gorm:"type:decimal(14,7);not null;default:0"`
	CreatedAt  time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`

	Items []InvoiceItem `gorm:"foreignKey:InvoiceID"`
}

func (Invoice) TableName() string { return "invoices" }

// Number is the stable human-facing invoice number.
func (i *Invoice) Number() int64 { return 100000 + i.Sequence }

// Price sums the price of all loaded items.
func (i *Invoice) Price() decimal.Decimal {
	total := decimal.Zero
	for idx := range i.Items {
		total = total.Add(i.Items[idx].Price())
	}
	return Quantize(total)
}

// Tax derives the tax amount from the frozen tax percent.
func (i *Invoice) Tax() decimal.Decimal {
	return i.Price().Mul(i.TaxPercent).Div(decimal.NewFromInt(100))
}

// Total is price plus tax.
func (i *Invoice) Total() decimal.Decimal {
	return i.Price().Add(i.Tax())
}

// PriceCurrent substitutes elapsed usage for still-open hourly/daily items.
func (i *Invoice) PriceCurrent(now time.Time) decimal.Decimal {
	total := decimal.Zero
	for idx := range i.Items {
		total = total.Add(i.Items[idx].PriceCurrent(now))
	}
	return Quantize(total)
}

func (i *Invoice) TaxCurrent(now time.Time) decimal.Decimal {
	return i.PriceCurrent(now).Mul(i.TaxPercent).Div(decimal.NewFromInt(100))
}

func (i *Invoice) TotalCurrent(now time.Time) decimal.Decimal {
	return i.PriceCurrent(now).Add(i.TaxCurrent(now))
}

// DueDate is the invoice date plus the configured payment interval, nil
// while the invoice is still pending.
func (i *Invoice) DueDate(paymentIntervalDays int) *time.Time {
	if i.InvoiceDate == nil {
		return nil
	}
	due := i.InvoiceDate.AddDate(0, 0, paymentIntervalDays)
	return &due
}

// InvoiceItem is one billable line. The window [Start, End) plus Unit and
// UnitPrice determine the price; Details carries an immutable snapshot of
// the source taken at creation time.
type InvoiceItem struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	UUID       uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex"`
	InvoiceID  snowflake.ID `gorm:"not null;index"`
	SourceType SourceType   `gorm:"type:text;not null;index:ix_item_source"`
	SourceID   snowflake.ID `gorm:"not null;index:ix_item_source"`
	// Name is denormalized from the source because the source may be
	// deleted while the line must survive.
	Name         string          `gorm:"type:text;not null;default:''"`
	Unit         Unit            `gorm:"type:text;not null"`
	UnitPrice    decimal.Decimal `gorm:"type:decimal(14,7);not null;default:0"`
	Quantity     decimal.Decimal `gorm:"type:decimal(14,7);not null;default:0"`
	MeasuredUnit string          `gorm:"type:text"`
	Start        time.Time       `gorm:"not null"`
	End          time.Time       `gorm:"not null"`
	Details      datatypes.JSONMap `gorm:"not null;default:'{}'"`

	// Project name and UUID are stored separately because the project is
	// not available after removal.
	ProjectID   *snowflake.ID `gorm:"index"`
	ProjectName string        `gorm:"type:text"`
	ProjectUUID string        `gorm:"type:text"`

	CreditID  *snowflake.ID `gorm:"index"`
	CreatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (InvoiceItem) TableName() string { return "invoice_items" }

// Price is the frozen price derived from the stored quantity.
func (it *InvoiceItem) Price() decimal.Decimal {
	return Quantize(it.UnitPrice.Mul(it.Quantity))
}

// PriceCurrent estimates the price of a still-running hourly or daily item
// using elapsed time up to now, clipped to End. Other units and already
// closed windows fall back to the stored quantity.
func (it *InvoiceItem) PriceCurrent(now time.Time) decimal.Decimal {
	quantity := it.Quantity
	if it.Unit == UnitPerHour || it.Unit == UnitPerDay {
		cut := now.UTC()
		if cut.After(it.End) {
			cut = it.End
		}
		if it.Unit == UnitPerHour {
			quantity = decimal.NewFromInt(FullHours(it.Start, cut))
		} else {
			quantity = decimal.NewFromInt(FullDays(it.Start, cut))
		}
	}
	return Quantize(it.UnitPrice.Mul(quantity))
}

// Tax derives the item's tax from the owning invoice's frozen percent.
func (it *InvoiceItem) Tax(taxPercent decimal.Decimal) decimal.Decimal {
	return it.Price().Mul(taxPercent).Div(decimal.NewFromInt(100))
}

// Total is price plus tax.
func (it *InvoiceItem) Total(taxPercent decimal.Decimal) decimal.Decimal {
	return it.Price().Add(it.Tax(taxPercent))
}

func (it *InvoiceItem) detailString(key string) string {
	if it.Details == nil {
		return ""
	}
	value, _ := it.Details[key].(string)
	return value
}

// BillingType reports the pricing component kind snapshotted at creation.
func (it *InvoiceItem) BillingType() string { return it.detailString(DetailBillingType) }

// LimitPeriod reports the limit period for limit-based components.
func (it *InvoiceItem) LimitPeriod() string { return it.detailString(DetailLimitPeriod) }

// TimeProrated reports whether quantity is derived from the usage window.
// Usage-based quantities come from reports; total-limit quantities are
// cumulative and must never be overwritten by the calculator.
func (it *InvoiceItem) TimeProrated() bool {
	switch it.BillingType() {
	case BillingTypeUsage:
		return false
	case BillingTypeLimit:
		return it.LimitPeriod() != LimitPeriodTotal
	default:
		return true
	}
}

// Terminate closes the usage window at end and finalizes the quantity.
// It mutates the struct only; callers persist the change.
func (it *InvoiceItem) Terminate(end time.Time) {
	it.End = end.UTC()
	it.RecomputeQuantity()
}

// RecomputeQuantity re-derives the billed quantity from the current window
// for time-prorated items. UnitQuantity items keep the reported value.
func (it *InvoiceItem) RecomputeQuantity() {
	if it.Unit == UnitQuantity || !it.TimeProrated() {
		return
	}
	it.Quantity = ProratedQuantity(it.Unit, it.Start, it.End)
}

// GetMeasuredUnit returns the display unit, falling back to unit defaults.
func (it *InvoiceItem) GetMeasuredUnit() string {
	if it.MeasuredUnit != "" {
		return it.MeasuredUnit
	}

	plural := it.Quantity.GreaterThan(decimal.NewFromInt(1))
	switch it.Unit {
	case UnitPerHour:
		if plural {
			return "hours"
		}
		return "hour"
	case UnitPerDay:
		if plural {
			return "days"
		}
		return "day"
	case UnitPerHalfMonth:
		return "percents from half a month"
	case UnitQuantity:
		return ""
	default:
		return "percents from a month"
	}
}

// GetProjectName prefers the snapshot taken at creation time.
func (it *InvoiceItem) GetProjectName() string {
	if it.ProjectName != "" {
		return it.ProjectName
	}
	return "N/A"
}

// GetProjectUUID returns the snapshotted project UUID.
func (it *InvoiceItem) GetProjectUUID() string { return it.ProjectUUID }
