package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	billing "github.com/smallbiznis/cloudbill/internal/billing/domain"
	credit "github.com/smallbiznis/cloudbill/internal/credit/domain"
	customer "github.com/smallbiznis/cloudbill/internal/customer/domain"
	"github.com/smallbiznis/cloudbill/internal/migration"
)

type fixture struct {
	db   *gorm.DB
	node *snowflake.Node
	comp *MonthlyCompensation

	customer customer.Customer
	project  customer.Project
	invoice  billing.Invoice
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &fixture{db: db, node: node, comp: NewMonthlyCompensation(node, zap.NewNop())}

	f.customer = customer.Customer{ID: node.Generate(), UUID: uuid.New(), Name: "acme"}
	require.NoError(t, db.Create(&f.customer).Error)

	f.project = customer.Project{ID: node.Generate(), UUID: uuid.New(), CustomerID: f.customer.ID, Name: "research"}
	require.NoError(t, db.Create(&f.project).Error)

	f.invoice = billing.Invoice{
		ID:         node.Generate(),
		UUID:       uuid.New(),
		CustomerID: f.customer.ID,
		Year:       2017,
		Month:      3,
		Sequence:   1,
		State:      billing.InvoiceStatePending,
	}
	require.NoError(t, db.Create(&f.invoice).Error)
	return f
}

func (f *fixture) addItem(t *testing.T, name, unitPrice string, projectID *snowflake.ID) {
	t.Helper()

	start := time.Date(2017, 3, 1, 0, 0, 0, 0, time.UTC)
	item := billing.InvoiceItem{
		ID:        f.node.Generate(),
		UUID:      uuid.New(),
		InvoiceID: f.invoice.ID,
		Name:      name,
		Unit:      billing.UnitQuantity,
		UnitPrice: decimal.RequireFromString(unitPrice),
		Quantity:  decimal.NewFromInt(1),
		Start:     start,
		End:       billing.MonthEnd(start),
		Details:   datatypes.JSONMap{billing.DetailBillingType: billing.BillingTypeUsage},
		ProjectID: projectID,
	}
	require.NoError(t, f.db.Create(&item).Error)
	f.invoice.Items = append(f.invoice.Items, item)
}

func (f *fixture) setCustomerCredit(t *testing.T, value, minimalConsumption string) credit.CustomerCredit {
	t.Helper()

	cc := credit.CustomerCredit{
		ID:                 f.node.Generate(),
		UUID:               uuid.New(),
		CustomerID:         f.customer.ID,
		Value:              decimal.RequireFromString(value),
		MinimalConsumption: decimal.RequireFromString(minimalConsumption),
	}
	require.NoError(t, f.db.Create(&cc).Error)
	return cc
}

func (f *fixture) compensate(t *testing.T) []billing.InvoiceItem {
	t.Helper()

	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return f.comp.Compensate(context.Background(), tx, &f.invoice)
	}))

	var items []billing.InvoiceItem
	require.NoError(t, f.db.
		Where("invoice_id = ? AND credit_id IS NOT NULL", f.invoice.ID).
		Order("id").Find(&items).Error)
	return items
}

func (f *fixture) customerCreditValue(t *testing.T) string {
	t.Helper()
	var cc credit.CustomerCredit
	require.NoError(t, f.db.Where("customer_id = ?", f.customer.ID).First(&cc).Error)
	return cc.Value.String()
}

func TestCompensateNoCreditIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.addItem(t, "vm", "10", nil)

	require.Empty(t, f.compensate(t))
}

func TestCompensateCoversCheapestFirst(t *testing.T) {
	f := newFixture(t)
	f.addItem(t, "cheap", "10", nil)
	f.addItem(t, "expensive", "100", nil)
	f.setCustomerCredit(t, "30", "0")

	comps := f.compensate(t)
	require.Len(t, comps, 2)

	// The cheap line is fully covered, the rest of the credit goes to the
	// expensive one.
	require.Equal(t, "-10", comps[0].UnitPrice.String())
	require.Equal(t, "Credit compensation. cheap", comps[0].Name)
	require.Equal(t, "-20", comps[1].UnitPrice.String())
	require.Equal(t, "0", f.customerCreditValue(t))
}

func TestCompensateStopsWhenExhausted(t *testing.T) {
	f := newFixture(t)
	f.addItem(t, "a", "5", nil)
	f.addItem(t, "b", "5", nil)
	f.addItem(t, "c", "5", nil)
	f.setCustomerCredit(t, "5", "0")

	comps := f.compensate(t)
	require.Len(t, comps, 1)
	require.Equal(t, "-5", comps[0].UnitPrice.String())
	require.Equal(t, "0", f.customerCreditValue(t))
}

func TestCompensateProjectCreditFirst(t *testing.T) {
	f := newFixture(t)
	projectID := f.project.ID
	f.addItem(t, "vm", "50", &projectID)
	f.setCustomerCredit(t, "100", "0")

	pc := credit.ProjectCredit{
		ID:                    f.node.Generate(),
		UUID:                  uuid.New(),
		ProjectID:             f.project.ID,
		Value:                 decimal.NewFromInt(20),
		UseOrganisationCredit: true,
	}
	require.NoError(t, f.db.Create(&pc).Error)

	comps := f.compensate(t)
	require.Len(t, comps, 1)
	require.Equal(t, "-50", comps[0].UnitPrice.String())

	var reloadedPC credit.ProjectCredit
	require.NoError(t, f.db.Where("id = ?", pc.ID).First(&reloadedPC).Error)
	require.Equal(t, "0", reloadedPC.Value.String())
	// 20 came from the project credit, 30 more from the organisation.
	require.Equal(t, "50", f.customerCreditValue(t))
}

func TestCompensateProjectOnlyWhenOrgCreditDisallowed(t *testing.T) {
	f := newFixture(t)
	projectID := f.project.ID
	f.addItem(t, "vm", "50", &projectID)
	f.setCustomerCredit(t, "100", "0")

	pc := credit.ProjectCredit{
		ID:                    f.node.Generate(),
		UUID:                  uuid.New(),
		ProjectID:             f.project.ID,
		Value:                 decimal.NewFromInt(20),
		UseOrganisationCredit: false,
	}
	require.NoError(t, f.db.Create(&pc).Error)

	comps := f.compensate(t)
	require.Len(t, comps, 1)
	require.Equal(t, "-20", comps[0].UnitPrice.String())
	require.Equal(t, "80", f.customerCreditValue(t))
}

func TestCompensateMinimalConsumptionTail(t *testing.T) {
	f := newFixture(t)
	f.addItem(t, "vm", "10", nil)
	f.setCustomerCredit(t, "100", "40")

	comps := f.compensate(t)
	require.Len(t, comps, 1)
	require.Equal(t, "-10", comps[0].UnitPrice.String())

	// 10 compensated plus a 30 tail to reach the 40 floor.
	require.Equal(t, "60", f.customerCreditValue(t))
}

func TestCompensateTaxedCost(t *testing.T) {
	f := newFixture(t)
	f.invoice.TaxPercent = decimal.NewFromInt(20)
	require.NoError(t, f.db.Model(&billing.Invoice{}).
		Where("id = ?", f.invoice.ID).
		Update("tax_percent", f.invoice.TaxPercent).Error)

	f.addItem(t, "vm", "10", nil)
	f.setCustomerCredit(t, "100", "0")

	comps := f.compensate(t)
	require.Len(t, comps, 1)
	// Compensation covers the taxed total of the line.
	require.Equal(t, "-12", comps[0].UnitPrice.String())
	require.Equal(t, "88", f.customerCreditValue(t))
}

func TestCompensateSkipsCompensationLines(t *testing.T) {
	f := newFixture(t)
	f.addItem(t, "vm", "10", nil)
	cc := f.setCustomerCredit(t, "100", "0")

	first := f.compensate(t)
	require.Len(t, first, 1)

	// Reload the invoice the way set_created would and run again: the
	// existing compensation line must not be compensated itself.
	require.NoError(t, f.db.Where("invoice_id = ?", f.invoice.ID).Find(&f.invoice.Items).Error)
	require.NoError(t, f.db.Model(&credit.CustomerCredit{}).
		Where("id = ?", cc.ID).Update("value", decimal.NewFromInt(100)).Error)

	second := f.compensate(t)
	require.Len(t, second, 2)
	for _, comp := range second {
		require.Equal(t, "-10", comp.UnitPrice.String())
	}
}
