package service

import (
	"go.uber.org/fx"

	billing "github.com/smallbiznis/cloudbill/internal/billing/domain"
)

var Module = fx.Module("credit",
	fx.Provide(
		NewMonthlyCompensation,
		func(c *MonthlyCompensation) billing.Compensator { return c },
	),
)
