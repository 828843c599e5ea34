package service

import (
	"go.uber.org/fx"

	billing "github.com/smallbiznis/cloudbill/internal/billing/domain"
)

var Module = fx.Module("costestimate",
	fx.Provide(
		NewEstimator,
		func(e *Estimator) billing.EstimateUpdater { return e },
	),
)
