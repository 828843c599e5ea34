// Package domain contains the cached per-scope price estimate.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ScopeType selects what a price estimate aggregates over.
type ScopeType string

const (
	ScopeProject  ScopeType = "project"
	ScopeCustomer ScopeType = "customer"
)

// UnlimitedLimit marks an estimate without a spending limit.
var UnlimitedLimit = decimal.NewFromInt(-1)

// PriceEstimate caches the current-period cost of one scope so list views
// and policy checks do not recompute invoices. One row exists per scope.
type PriceEstimate struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UUID      uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex"`
	ScopeType ScopeType    `gorm:"type:text;not null;uniqueIndex:ux_estimate_scope"`
	ScopeID   snowflake.ID `gorm:"not null;uniqueIndex:ux_estimate_scope"`
	Total     decimal.Decimal `gorm:"type:decimal(14,7);not null;default:0"`
	// Limit below zero means unlimited. Enforcement lives outside this
	// system; the value is stored and served read-only.
	Limit     decimal.Decimal `gorm:"column:spend_limit;type:decimal(14,7);not null;default:-1"`
	Threshold decimal.Decimal `gorm:"type:decimal(14,7);not null;default:0"`
	CreatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PriceEstimate) TableName() string { return "price_estimates" }

// Unlimited reports whether no spending limit applies.
func (p *PriceEstimate) Unlimited() bool { return p.Limit.IsNegative() }
