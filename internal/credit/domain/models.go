// Package domain contains prepaid credit balances that offset invoices.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CustomerCredit is the organisation-wide prepaid balance. MinimalConsumption
// forces a floor on how much credit each month burns even when usage is lower.
type CustomerCredit struct {
	ID                 snowflake.ID    `gorm:"primaryKey"`
	UUID               uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	CustomerID         snowflake.ID    `gorm:"not null;uniqueIndex"`
	Value              decimal.Decimal `gorm:"type:decimal(14,7);not null;default:0"`
	MinimalConsumption decimal.Decimal `gorm:"type:decimal(14,7);not null;default:0"`
	EndDate            *time.Time      `gorm:""`
	CreatedAt          time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (CustomerCredit) TableName() string { return "customer_credits" }

// ProjectCredit earmarks part of the customer credit for one project. When
// UseOrganisationCredit is set, costs above the project credit keep drawing
// from the customer balance.
type ProjectCredit struct {
	ID                    snowflake.ID    `gorm:"primaryKey"`
	UUID                  uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	ProjectID             snowflake.ID    `gorm:"not null;uniqueIndex"`
	Value                 decimal.Decimal `gorm:"type:decimal(14,7);not null;default:0"`
	UseOrganisationCredit bool            `gorm:"not null;default:true"`
	CreatedAt             time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt             time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ProjectCredit) TableName() string { return "project_credits" }
