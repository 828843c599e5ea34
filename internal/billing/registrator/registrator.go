// Package registrator opens and closes invoice items for chargeable
// marketplace objects. One registrator is bound per source type; the
// registration manager dispatches on the source and owns invoice creation.
package registrator

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	billing "github.com/smallbiznis/cloudbill/internal/billing/domain"
	customer "github.com/smallbiznis/cloudbill/internal/customer/domain"
)

// Registrator knows how to bill one kind of source. Implementations run
// inside the manager's transaction; tx is never nil.
type Registrator interface {
	SourceType() billing.SourceType

	// Sources lists the customer's currently chargeable objects of this
	// type, used to seed a freshly created invoice.
	Sources(tx *gorm.DB, customerID snowflake.ID) ([]billing.Source, error)

	// CustomerID resolves the owning customer of a source.
	CustomerID(tx *gorm.DB, source billing.Source) (snowflake.ID, error)

	// Register opens the invoice item(s) for source with the usage window
	// starting at start and defaulting to the end of the invoice period.
	Register(tx *gorm.DB, invoice *billing.Invoice, source billing.Source, start time.Time) error

	// Name is the denormalized display name stored on the item.
	Name(source billing.Source) string

	// Details is the immutable source snapshot stored on the item.
	Details(tx *gorm.DB, source billing.Source) (datatypes.JSONMap, error)
}

// itemSpec is what a registrator knows about one line it wants to open.
type itemSpec struct {
	Unit         billing.Unit
	UnitPrice    decimal.Decimal
	Quantity     decimal.Decimal
	MeasuredUnit string
	Details      datatypes.JSONMap
}

// createItem persists one invoice item for source, snapshotting the project
// and deriving the quantity from the window for time-prorated units.
func createItem(tx *gorm.DB, node *snowflake.Node, invoice *billing.Invoice, source billing.Source, project *customer.Project, name string, start, end time.Time, spec itemSpec) error {
	details := spec.Details
	if details == nil {
		details = datatypes.JSONMap{}
	}

	item := billing.InvoiceItem{
		ID:           node.Generate(),
		UUID:         uuid.New(),
		InvoiceID:    invoice.ID,
		SourceType:   source.SourceType(),
		SourceID:     source.SourceID(),
		Name:         name,
		Unit:         spec.Unit,
		UnitPrice:    spec.UnitPrice,
		Quantity:     spec.Quantity,
		MeasuredUnit: spec.MeasuredUnit,
		Start:        start.UTC(),
		End:          end.UTC(),
		Details:      details,
	}
	if project != nil {
		id := project.ID
		item.ProjectID = &id
		item.ProjectName = project.Name
		item.ProjectUUID = project.UUID.String()
	}
	item.RecomputeQuantity()

	return tx.Create(&item).Error
}

func loadProject(tx *gorm.DB, projectID snowflake.ID) (*customer.Project, error) {
	var project customer.Project
	if err := tx.Where("id = ?", projectID).First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &project, nil
}
