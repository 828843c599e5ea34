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
	"github.com/smallbiznis/cloudbill/internal/clock"
	costestimate "github.com/smallbiznis/cloudbill/internal/costestimate/domain"
	customer "github.com/smallbiznis/cloudbill/internal/customer/domain"
	"github.com/smallbiznis/cloudbill/internal/migration"
)

type fixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	clock     *clock.FakeClock
	estimator *Estimator

	customer customer.Customer
	projectA customer.Project
	projectB customer.Project
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

	clk := clock.NewFakeClock(time.Date(2017, 3, 15, 12, 0, 0, 0, time.UTC))
	f := &fixture{db: db, node: node, clock: clk, estimator: NewEstimator(db, node, clk, zap.NewNop())}

	f.customer = customer.Customer{ID: node.Generate(), UUID: uuid.New(), Name: "acme"}
	require.NoError(t, db.Create(&f.customer).Error)

	f.projectA = customer.Project{ID: node.Generate(), UUID: uuid.New(), CustomerID: f.customer.ID, Name: "alpha"}
	f.projectB = customer.Project{ID: node.Generate(), UUID: uuid.New(), CustomerID: f.customer.ID, Name: "beta"}
	require.NoError(t, db.Create(&f.projectA).Error)
	require.NoError(t, db.Create(&f.projectB).Error)

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

func (f *fixture) addItem(t *testing.T, projectID snowflake.ID, unitPrice string, quantity int64) {
	t.Helper()

	start := time.Date(2017, 3, 1, 0, 0, 0, 0, time.UTC)
	id := projectID
	item := billing.InvoiceItem{
		ID:        f.node.Generate(),
		UUID:      uuid.New(),
		InvoiceID: f.invoice.ID,
		Name:      "line",
		Unit:      billing.UnitQuantity,
		UnitPrice: decimal.RequireFromString(unitPrice),
		Quantity:  decimal.NewFromInt(quantity),
		Start:     start,
		End:       billing.MonthEnd(start),
		Details:   datatypes.JSONMap{billing.DetailBillingType: billing.BillingTypeUsage},
		ProjectID: &id,
	}
	require.NoError(t, f.db.Create(&item).Error)
}

func (f *fixture) total(t *testing.T, scopeType costestimate.ScopeType, scopeID snowflake.ID) string {
	t.Helper()
	estimate, err := f.estimator.Get(context.Background(), scopeType, scopeID)
	require.NoError(t, err)
	require.NotNil(t, estimate)
	return estimate.Total.String()
}

func TestUpdateForCustomer(t *testing.T) {
	f := newFixture(t)
	f.addItem(t, f.projectA.ID, "10", 2)
	f.addItem(t, f.projectA.ID, "5", 1)
	f.addItem(t, f.projectB.ID, "3", 4)

	require.NoError(t, f.estimator.UpdateForCustomer(context.Background(), f.customer.ID))

	require.Equal(t, "37", f.total(t, costestimate.ScopeCustomer, f.customer.ID))
	require.Equal(t, "25", f.total(t, costestimate.ScopeProject, f.projectA.ID))
	require.Equal(t, "12", f.total(t, costestimate.ScopeProject, f.projectB.ID))
}

func TestUpdateResetsStaleTotals(t *testing.T) {
	f := newFixture(t)
	f.addItem(t, f.projectA.ID, "10", 2)
	require.NoError(t, f.estimator.UpdateForCustomer(context.Background(), f.customer.ID))
	require.Equal(t, "20", f.total(t, costestimate.ScopeProject, f.projectA.ID))

	// The next month has no invoice yet; totals reset to zero.
	f.clock.Set(time.Date(2017, 4, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, f.estimator.UpdateForCustomer(context.Background(), f.customer.ID))

	require.Equal(t, "0", f.total(t, costestimate.ScopeCustomer, f.customer.ID))
	require.Equal(t, "0", f.total(t, costestimate.ScopeProject, f.projectA.ID))
}

func TestUpdateTotalByProjectScope(t *testing.T) {
	f := newFixture(t)
	f.addItem(t, f.projectA.ID, "7", 3)

	require.NoError(t, f.estimator.UpdateTotal(context.Background(), costestimate.ScopeProject, f.projectA.ID))
	require.Equal(t, "21", f.total(t, costestimate.ScopeProject, f.projectA.ID))
}

func TestGetMissingEstimate(t *testing.T) {
	f := newFixture(t)
	estimate, err := f.estimator.Get(context.Background(), costestimate.ScopeCustomer, f.customer.ID)
	require.NoError(t, err)
	require.Nil(t, estimate)
}

func TestListByScopeType(t *testing.T) {
	f := newFixture(t)
	f.addItem(t, f.projectA.ID, "1", 1)
	require.NoError(t, f.estimator.UpdateForCustomer(context.Background(), f.customer.ID))

	projects, err := f.estimator.List(context.Background(), costestimate.ScopeProject)
	require.NoError(t, err)
	require.Len(t, projects, 2)

	all, err := f.estimator.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 3)
}
