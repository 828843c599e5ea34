package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	billing "github.com/smallbiznis/cloudbill/internal/billing/domain"
	"github.com/smallbiznis/cloudbill/internal/config"
	costestimate "github.com/smallbiznis/cloudbill/internal/costestimate/domain"
	credit "github.com/smallbiznis/cloudbill/internal/credit/domain"
	customer "github.com/smallbiznis/cloudbill/internal/customer/domain"
	marketplace "github.com/smallbiznis/cloudbill/internal/marketplace/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// Versioned SQL migrations are written for postgres; the sqlite and
		// mysql dev dialects fall back to schema auto-migration.
		if cfg.DBType != "postgres" {
			return AutoMigrate(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)

// AutoMigrate creates the schema from the models, used for non-postgres
// dialects and in-memory test databases.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&customer.Customer{},
		&customer.Project{},
		&customer.PaymentProfile{},
		&marketplace.PackageTemplate{},
		&marketplace.Package{},
		&marketplace.Offering{},
		&marketplace.PlanComponent{},
		&billing.Invoice{},
		&billing.InvoiceItem{},
		&credit.CustomerCredit{},
		&credit.ProjectCredit{},
		&costestimate.PriceEstimate{},
	)
}
