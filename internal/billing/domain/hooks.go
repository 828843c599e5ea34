package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// EstimateUpdater recalculates cached cost estimates after invoice items
// change. The billing service calls it best-effort after its own transaction
// commits.
type EstimateUpdater interface {
	UpdateForCustomer(ctx context.Context, customerID snowflake.ID) error
}

// Compensator applies customer credits to a pending invoice before it is
// issued. Implementations append compensation items and adjust remaining
// credit balances inside the caller's transaction tx.
type Compensator interface {
	Compensate(ctx context.Context, tx *gorm.DB, invoice *Invoice) error
}
