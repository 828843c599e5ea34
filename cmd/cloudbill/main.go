package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/cloudbill/internal/billing/registrator"
	billingservice "github.com/smallbiznis/cloudbill/internal/billing/service"
	"github.com/smallbiznis/cloudbill/internal/clock"
	"github.com/smallbiznis/cloudbill/internal/config"
	costestimate "github.com/smallbiznis/cloudbill/internal/costestimate/service"
	creditservice "github.com/smallbiznis/cloudbill/internal/credit/service"
	"github.com/smallbiznis/cloudbill/internal/logger"
	"github.com/smallbiznis/cloudbill/internal/migration"
	"github.com/smallbiznis/cloudbill/internal/scheduler"
	"github.com/smallbiznis/cloudbill/internal/server"
	"github.com/smallbiznis/cloudbill/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Billing domains
		costestimate.Module,
		creditservice.Module,
		billingservice.Module,
		registrator.Module,

		// Edges
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
