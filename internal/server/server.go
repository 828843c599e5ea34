// Package server exposes the read-only reporting API. Invoice and item
// mutation happens through the registration manager and the period closer;
// HTTP only reads.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	billing "github.com/smallbiznis/cloudbill/internal/billing/domain"
	"github.com/smallbiznis/cloudbill/internal/config"
	costsvc "github.com/smallbiznis/cloudbill/internal/costestimate/service"
)

type Server struct {
	engine     *gin.Engine
	log        *zap.Logger
	invoiceSvc billing.InvoiceService
	estimator  *costsvc.Estimator
	billing    *config.BillingConfigHolder
}

func New(log *zap.Logger, invoiceSvc billing.InvoiceService, estimator *costsvc.Estimator, billingCfg *config.BillingConfigHolder) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:     engine,
		log:        log.Named("server"),
		invoiceSvc: invoiceSvc,
		estimator:  estimator,
		billing:    billingCfg,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")
	api.GET("/invoices", s.listInvoices)
	api.GET("/invoices/:uuid", s.getInvoice)
	api.GET("/cost-estimates", s.listCostEstimates)
}

func (s *Server) Handler() http.Handler { return s.engine }

var Module = fx.Module("server",
	fx.Provide(New),
	fx.Invoke(registerHooks),
)

func registerHooks(lc fx.Lifecycle, s *Server, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
