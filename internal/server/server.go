package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/facturo/internal/account"
	accountdomain "github.com/smallbiznis/facturo/internal/account/domain"
	"github.com/smallbiznis/facturo/internal/catalog"
	catalogdomain "github.com/smallbiznis/facturo/internal/catalog/domain"
	"github.com/smallbiznis/facturo/internal/client"
	clientdomain "github.com/smallbiznis/facturo/internal/client/domain"
	"github.com/smallbiznis/facturo/internal/config"
	"github.com/smallbiznis/facturo/internal/dunning"
	dunningdomain "github.com/smallbiznis/facturo/internal/dunning/domain"
	"github.com/smallbiznis/facturo/internal/invoice"
	invoicedomain "github.com/smallbiznis/facturo/internal/invoice/domain"
	"github.com/smallbiznis/facturo/internal/notification"
	notificationdomain "github.com/smallbiznis/facturo/internal/notification/domain"
	"github.com/smallbiznis/facturo/internal/observability"
	obsmiddleware "github.com/smallbiznis/facturo/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/facturo/internal/observability/metrics"
	obstracing "github.com/smallbiznis/facturo/internal/observability/tracing"
	"github.com/smallbiznis/facturo/internal/providers"
	"github.com/smallbiznis/facturo/internal/quote"
	quotedomain "github.com/smallbiznis/facturo/internal/quote/domain"
	"github.com/smallbiznis/facturo/internal/ratelimit"
	"github.com/smallbiznis/facturo/internal/scheduler"
	"github.com/smallbiznis/facturo/internal/sequence"
	"github.com/smallbiznis/facturo/internal/usagegate"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	account.Module,
	client.Module,
	catalog.Module,
	quote.Module,
	invoice.Module,
	dunning.Module,
	notification.Module,
	sequence.Module,
	usagegate.Module,
	providers.Module,
	ratelimit.Module,
	scheduler.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	genID  *snowflake.Node

	accountSvc         accountdomain.Service
	clientSvc          clientdomain.Service
	catalogSvc         catalogdomain.Service
	quoteSvc           quotedomain.Service
	invoiceSvc         invoicedomain.Service
	dunningSettingsSvc dunningdomain.SettingsService
	notificationRepo   notificationdomain.Repository
	gate               *usagegate.Gate
	sweepLimiter       *ratelimit.SweepLimiter
	scheduler          *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin                *gin.Engine
	Cfg                config.Config
	DB                 *gorm.DB
	GenID              *snowflake.Node
	AccountSvc         accountdomain.Service
	ClientSvc          clientdomain.Service
	CatalogSvc         catalogdomain.Service
	QuoteSvc           quotedomain.Service
	InvoiceSvc         invoicedomain.Service
	DunningSettingsSvc dunningdomain.SettingsService
	NotificationRepo   notificationdomain.Repository
	Gate               *usagegate.Gate
	SweepLimiter       *ratelimit.SweepLimiter `optional:"true"`
	Scheduler          *scheduler.Scheduler
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:             p.Gin,
		cfg:                p.Cfg,
		db:                 p.DB,
		genID:              p.GenID,
		accountSvc:         p.AccountSvc,
		clientSvc:          p.ClientSvc,
		catalogSvc:         p.CatalogSvc,
		quoteSvc:           p.QuoteSvc,
		invoiceSvc:         p.InvoiceSvc,
		dunningSettingsSvc: p.DunningSettingsSvc,
		notificationRepo:   p.NotificationRepo,
		gate:               p.Gate,
		sweepLimiter:       p.SweepLimiter,
		scheduler:          p.Scheduler,
	}

	svc.registerAPIRoutes()
	svc.registerJobRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	// Account creation happens before any account header exists.
	s.engine.POST("/v1/accounts", s.CreateAccount)

	api := s.engine.Group("/v1")
	api.Use(s.AccountRequired())

	api.GET("/account", s.GetAccount)
	api.PATCH("/account", s.UpdateAccount)

	api.POST("/clients", s.CreateClient)
	api.GET("/clients", s.ListClients)
	api.GET("/clients/:id", s.GetClient)
	api.PATCH("/clients/:id", s.UpdateClient)
	api.DELETE("/clients/:id", s.DeleteClient)

	api.POST("/prestations", s.CreatePrestation)
	api.GET("/prestations", s.ListPrestations)
	api.GET("/prestations/:id", s.GetPrestation)
	api.PATCH("/prestations/:id", s.UpdatePrestation)
	api.DELETE("/prestations/:id", s.DeletePrestation)

	api.POST("/quotes", s.CreateQuote)
	api.GET("/quotes", s.ListQuotes)
	api.GET("/quotes/:id", s.GetQuote)
	api.POST("/quotes/:id/status", s.UpdateQuoteStatus)
	api.POST("/quotes/:id/convert", s.ConvertQuote)
	api.DELETE("/quotes/:id", s.DeleteQuote)

	api.POST("/invoices", s.CreateInvoice)
	api.GET("/invoices", s.ListInvoices)
	api.GET("/invoices/:id", s.GetInvoice)
	api.POST("/invoices/:id/status", s.UpdateInvoiceStatus)
	api.POST("/invoices/:id/payments", s.RecordPayment)
	api.POST("/invoices/:id/credit-note", s.ConvertToCreditNote)

	api.GET("/dunning/settings", s.GetDunningSettings)
	api.PUT("/dunning/settings", s.UpdateDunningSettings)

	api.GET("/notifications", s.ListNotifications)
}

func (s *Server) registerJobRoutes() {
	jobs := s.engine.Group("/jobs")
	jobs.Use(s.JobTokenRequired())

	jobs.POST("/dunning-sweep", s.TriggerDunningSweep)
}
