package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// InvoiceFilter narrows invoice listings.
type InvoiceFilter struct {
	CustomerID snowflake.ID
	Year       int
	Month      int
	State      InvoiceState
	// SortBy orders by one of year, month or total_price; unknown fields
	// are ignored and the default period ordering applies.
	SortBy   string
	SortDesc bool
	// Limit caps the number of invoices returned; zero means no cap.
	Limit int
}

// InvoiceService drives the invoice lifecycle and serves reporting reads.
type InvoiceService interface {
	// SetCreated moves a pending invoice out of the pending state, applying
	// credit compensation and stamping the invoice date. Customers with an
	// active fixed-price payment profile land directly in paid.
	SetCreated(ctx context.Context, invoiceID snowflake.ID) (*Invoice, error)

	// UpdateCache refreshes the cached total columns from current items.
	UpdateCache(ctx context.Context, invoiceID snowflake.ID) error

	List(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)
	Get(ctx context.Context, invoiceUUID string) (*Invoice, error)
}
