// Package domain contains persistence models for customers and projects.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Customer is the billing owner of projects and sources.
type Customer struct {
	ID           snowflake.ID    `gorm:"primaryKey"`
	UUID         uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	Name         string          `gorm:"type:text;not null"`
	Abbreviation string          `gorm:"type:text"`
	Email        string          `gorm:"type:text"`
	// DefaultTaxPercent is copied onto new invoices; changing it later
	// never touches invoices that already exist.
	DefaultTaxPercent decimal.Decimal `gorm:"type:decimal(4,2);not null;default:0"`
	// AccountingStartDate delays invoice seeding for customers onboarded
	// before their contract starts. Nil means billing starts immediately.
	AccountingStartDate *time.Time `gorm:""`
	CreatedAt           time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt           time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Customer) TableName() string { return "customers" }

// Project groups sources under a customer. Invoice items keep a snapshot of
// the project name and UUID because projects can be deleted mid-period.
type Project struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	UUID       uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex"`
	CustomerID snowflake.ID `gorm:"not null;index"`
	Name       string       `gorm:"type:text;not null"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Project) TableName() string { return "projects" }

// PaymentType distinguishes how a customer settles invoices.
type PaymentType string

const (
	PaymentTypeFixedPrice      PaymentType = "fixed_price"
	PaymentTypeMonthlyInvoices PaymentType = "invoices"
	PaymentTypeGatewayMonthly  PaymentType = "payment_gw_monthly"
)

// PaymentProfile describes the active payment arrangement for a customer.
// IsActive is a nullable bool so the (customer_id, is_active) unique index
// allows any number of inactive profiles but at most one active.
type PaymentProfile struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	CustomerID  snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_payment_profile_active"`
	Name        string            `gorm:"type:text"`
	PaymentType PaymentType       `gorm:"type:text;not null"`
	Attributes  datatypes.JSONMap `gorm:"not null;default:'{}'"`
	IsActive    *bool             `gorm:"uniqueIndex:ux_payment_profile_active"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PaymentProfile) TableName() string { return "payment_profiles" }

// Active reports whether the profile is currently in force.
func (p PaymentProfile) Active() bool {
	return p.IsActive != nil && *p.IsActive
}
