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

// PackageRegistrator bills provisioned fixed-price packages per started day.
type PackageRegistrator struct {
	node *snowflake.Node
}

func NewPackageRegistrator(node *snowflake.Node) *PackageRegistrator {
	return &PackageRegistrator{node: node}
}

func (r *PackageRegistrator) SourceType() billing.SourceType {
	return marketplace.SourceTypePackage
}

func (r *PackageRegistrator) Sources(tx *gorm.DB, customerID snowflake.ID) ([]billing.Source, error) {
	var packages []*marketplace.Package
	err := tx.
		Joins("JOIN projects ON projects.id = packages.project_id").
		Where("projects.customer_id = ?", customerID).
		Find(&packages).Error
	if err != nil {
		return nil, err
	}

	sources := make([]billing.Source, len(packages))
	for i, p := range packages {
		sources[i] = p
	}
	return sources, nil
}

func (r *PackageRegistrator) CustomerID(tx *gorm.DB, source billing.Source) (snowflake.ID, error) {
	var customerID snowflake.ID
	err := tx.Table("packages").
		Select("projects.customer_id").
		Joins("JOIN projects ON projects.id = packages.project_id").
		Where("packages.id = ?", source.SourceID()).
		Scan(&customerID).Error
	return customerID, err
}

func (r *PackageRegistrator) Register(tx *gorm.DB, invoice *billing.Invoice, source billing.Source, start time.Time) error {
	pkg, err := r.load(tx, source.SourceID())
	if err != nil {
		return err
	}

	details, err := r.Details(tx, pkg)
	if err != nil {
		return err
	}
	project, err := loadProject(tx, pkg.ProjectID)
	if err != nil {
		return err
	}

	end := billing.MonthEnd(start)
	return createItem(tx, r.node, invoice, pkg, project, r.Name(pkg), start, end, itemSpec{
		Unit:      billing.UnitPerDay,
		UnitPrice: pkg.DailyPrice,
		Details:   details,
	})
}

func (r *PackageRegistrator) Name(source billing.Source) string {
	if pkg, ok := source.(*marketplace.Package); ok && pkg.Template != nil {
		return pkg.Name + " (" + pkg.Template.Name + ")"
	}
	return source.SourceName()
}

func (r *PackageRegistrator) Details(tx *gorm.DB, source billing.Source) (datatypes.JSONMap, error) {
	pkg, ok := source.(*marketplace.Package)
	if !ok {
		loaded, err := r.load(tx, source.SourceID())
		if err != nil {
			return nil, err
		}
		pkg = loaded
	}

	details := datatypes.JSONMap{
		billing.DetailBillingType: billing.BillingTypeFixed,
		"template_id":             pkg.TemplateID.String(),
		"daily_price":             pkg.DailyPrice.String(),
	}
	if pkg.Template != nil {
		details["template_name"] = pkg.Template.Name
		details["monthly_price"] = pkg.Template.MonthlyPrice.String()
	}
	return details, nil
}

func (r *PackageRegistrator) load(tx *gorm.DB, id snowflake.ID) (*marketplace.Package, error) {
	var pkg marketplace.Package
	if err := tx.Preload("Template").Where("id = ?", id).First(&pkg).Error; err != nil {
		return nil, err
	}
	return &pkg, nil
}

// DailyPrice derives the frozen per-day price from a monthly catalog price.
func DailyPrice(monthlyPrice decimal.Decimal, purchase time.Time) decimal.Decimal {
	days := decimal.NewFromInt(int64(billing.MonthDays(purchase)))
	return billing.Quantize(monthlyPrice.Div(days))
}
