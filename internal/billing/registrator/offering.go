package registrator

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	billing "github.com/smallbiznis/cloudbill/internal/billing/domain"
	marketplace "github.com/smallbiznis/cloudbill/internal/marketplace/domain"
)

// OfferingRegistrator bills plan-based offering orders. Every priced plan
// component opens its own line so usage and fixed charges stay separate.
type OfferingRegistrator struct {
	node *snowflake.Node
}

func NewOfferingRegistrator(node *snowflake.Node) *OfferingRegistrator {
	return &OfferingRegistrator{node: node}
}

func (r *OfferingRegistrator) SourceType() billing.SourceType {
	return marketplace.SourceTypeOffering
}

func (r *OfferingRegistrator) Sources(tx *gorm.DB, customerID snowflake.ID) ([]billing.Source, error) {
	var offerings []*marketplace.Offering
	err := tx.
		Preload("Components").
		Joins("JOIN projects ON projects.id = offerings.project_id").
		Where("projects.customer_id = ? AND offerings.state = ?", customerID, marketplace.OfferingStateOK).
		Find(&offerings).Error
	if err != nil {
		return nil, err
	}

	sources := make([]billing.Source, len(offerings))
	for i, o := range offerings {
		sources[i] = o
	}
	return sources, nil
}

func (r *OfferingRegistrator) CustomerID(tx *gorm.DB, source billing.Source) (snowflake.ID, error) {
	var customerID snowflake.ID
	err := tx.Table("offerings").
		Select("projects.customer_id").
		Joins("JOIN projects ON projects.id = offerings.project_id").
		Where("offerings.id = ?", source.SourceID()).
		Scan(&customerID).Error
	return customerID, err
}

func (r *OfferingRegistrator) Register(tx *gorm.DB, invoice *billing.Invoice, source billing.Source, start time.Time) error {
	offering, err := r.load(tx, source.SourceID())
	if err != nil {
		return err
	}

	project, err := loadProject(tx, offering.ProjectID)
	if err != nil {
		return err
	}

	end := billing.MonthEnd(start)
	for i := range offering.Components {
		component := &offering.Components[i]
		if err := createItem(tx, r.node, invoice, offering, project,
			componentName(offering, component), start, end,
			componentSpec(offering, component)); err != nil {
			return err
		}
	}
	return nil
}

// componentSpec converts a plan component into an item spec. Fixed
// components fold the plan amount into the unit price so window proration
// stays a pure quantity. Usage components start at zero and wait for
// reports; limit components carry the plan limit as quantity.
func componentSpec(offering *marketplace.Offering, component *marketplace.PlanComponent) itemSpec {
	details := datatypes.JSONMap{
		billing.DetailBillingType: component.BillingType,
		"offering_uuid":           offering.UUID.String(),
		"plan_name":               offering.PlanName,
		"component_type":          component.ComponentType,
	}
	if component.LimitPeriod != "" {
		details[billing.DetailLimitPeriod] = component.LimitPeriod
	}

	spec := itemSpec{
		Unit:         component.Unit,
		UnitPrice:    component.UnitPrice,
		MeasuredUnit: component.MeasuredUnit,
		Details:      details,
	}
	switch component.BillingType {
	case billing.BillingTypeUsage:
		spec.Unit = billing.UnitQuantity
		spec.Quantity = decimal.Zero
	case billing.BillingTypeLimit:
		spec.Unit = billing.UnitQuantity
		spec.Quantity = component.Amount
	default:
		spec.UnitPrice = component.UnitPrice.Mul(component.Amount)
	}
	return spec
}

func componentName(offering *marketplace.Offering, component *marketplace.PlanComponent) string {
	name := offering.Name
	if offering.PlanName != "" {
		name += " / " + offering.PlanName
	}
	return name + " / " + component.ComponentType
}

func (r *OfferingRegistrator) Name(source billing.Source) string {
	if offering, ok := source.(*marketplace.Offering); ok && offering.PlanName != "" {
		return offering.Name + " / " + offering.PlanName
	}
	return source.SourceName()
}

func (r *OfferingRegistrator) Details(tx *gorm.DB, source billing.Source) (datatypes.JSONMap, error) {
	offering, ok := source.(*marketplace.Offering)
	if !ok {
		loaded, err := r.load(tx, source.SourceID())
		if err != nil {
			return nil, err
		}
		offering = loaded
	}

	return datatypes.JSONMap{
		"offering_uuid": offering.UUID.String(),
		"plan_name":     offering.PlanName,
		"state":         string(offering.State),
	}, nil
}

func (r *OfferingRegistrator) load(tx *gorm.DB, id snowflake.ID) (*marketplace.Offering, error) {
	var offering marketplace.Offering
	if err := tx.Preload("Components").Where("id = ?", id).First(&offering).Error; err != nil {
		return nil, err
	}
	return &offering, nil
}
