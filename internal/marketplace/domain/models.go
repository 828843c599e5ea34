// Package domain contains the chargeable marketplace objects that open
// invoice items: fixed-price packages and plan-based offering orders.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	billing "github.com/smallbiznis/cloudbill/internal/billing/domain"
)

const (
	SourceTypePackage  billing.SourceType = "package"
	SourceTypeOffering billing.SourceType = "offering"
)

// PackageTemplate is the priced catalog entry a package is bought from.
type PackageTemplate struct {
	ID        snowflake.ID    `gorm:"primaryKey"`
	UUID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	Name      string          `gorm:"type:text;not null"`
	// MonthlyPrice is the fixed monthly price of the whole package.
	MonthlyPrice decimal.Decimal `gorm:"type:decimal(14,7);not null;default:0"`
	CreatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PackageTemplate) TableName() string { return "package_templates" }

// Package is a purchased fixed-price bundle billed per day.
type Package struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	UUID       uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex"`
	TemplateID snowflake.ID `gorm:"not null;index"`
	ProjectID  snowflake.ID `gorm:"not null;index"`
	Name       string       `gorm:"type:text;not null"`
	// DailyPrice is derived from the template's monthly price at purchase
	// time and frozen on the package.
	DailyPrice decimal.Decimal `gorm:"type:decimal(14,7);not null;default:0"`
	CreatedAt  time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`

	Template *PackageTemplate `gorm:"foreignKey:TemplateID"`
}

func (Package) TableName() string { return "packages" }

func (p *Package) SourceType() billing.SourceType { return SourceTypePackage }
func (p *Package) SourceID() snowflake.ID         { return p.ID }
func (p *Package) SourceName() string             { return p.Name }

// OfferingState mirrors the order lifecycle of a marketplace offering.
type OfferingState string

const (
	OfferingStateRequested  OfferingState = "requested"
	OfferingStateOK         OfferingState = "ok"
	OfferingStateTerminated OfferingState = "terminated"
)

// Offering is a plan-based resource order. Each priced plan component opens
// its own invoice item; the component snapshot below is what the item keeps.
type Offering struct {
	ID        snowflake.ID  `gorm:"primaryKey"`
	UUID      uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex"`
	ProjectID snowflake.ID  `gorm:"not null;index"`
	Name      string        `gorm:"type:text;not null"`
	PlanName  string        `gorm:"type:text"`
	State     OfferingState `gorm:"type:text;not null;default:'requested'"`
	CreatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`

	Components []PlanComponent `gorm:"foreignKey:OfferingID"`
}

func (Offering) TableName() string { return "offerings" }

func (o *Offering) SourceType() billing.SourceType { return SourceTypeOffering }
func (o *Offering) SourceID() snowflake.ID         { return o.ID }
func (o *Offering) SourceName() string             { return o.Name }

// PlanComponent is one priced component of an offering's plan.
type PlanComponent struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	OfferingID snowflake.ID `gorm:"not null;index"`
	// ComponentType identifies the component within the plan (cpu, ram,
	// storage). Item names embed it so lines stay distinguishable.
	ComponentType string          `gorm:"type:text;not null"`
	BillingType   string          `gorm:"type:text;not null;default:'fixed'"`
	LimitPeriod   string          `gorm:"type:text"`
	Unit          billing.Unit    `gorm:"type:text;not null;default:'month'"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(14,7);not null;default:0"`
	MeasuredUnit  string          `gorm:"type:text"`
	// Amount is the plan-fixed quantity multiplier for fixed components.
	Amount     decimal.Decimal   `gorm:"type:decimal(14,7);not null;default:1"`
	Attributes datatypes.JSONMap `gorm:"not null;default:'{}'"`
}

func (PlanComponent) TableName() string { return "plan_components" }
