package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/openisp/netbill/internal/catalog"
	catalogdomain "github.com/openisp/netbill/internal/catalog/domain"
	"github.com/openisp/netbill/internal/clock"
	"github.com/openisp/netbill/internal/config"
	"github.com/openisp/netbill/internal/customer"
	customerdomain "github.com/openisp/netbill/internal/customer/domain"
	"github.com/openisp/netbill/internal/events"
	"github.com/openisp/netbill/internal/gateway"
	"github.com/openisp/netbill/internal/invoice"
	invoicedomain "github.com/openisp/netbill/internal/invoice/domain"
	"github.com/openisp/netbill/internal/notify"
	"github.com/openisp/netbill/internal/observability/metrics"
	"github.com/openisp/netbill/internal/payment"
	paymentdomain "github.com/openisp/netbill/internal/payment/domain"
	"github.com/openisp/netbill/internal/providers/email"
	"github.com/openisp/netbill/internal/providers/pdf"
	"github.com/openisp/netbill/internal/providers/sms"
	"github.com/openisp/netbill/internal/scheduler"
	"github.com/openisp/netbill/internal/usage"
	usagedomain "github.com/openisp/netbill/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	events.Module,
	email.Module,
	sms.Module,
	pdf.Module,
	notify.Module,
	metrics.Module,
	gateway.Module,
	catalog.Module,
	customer.Module,
	usage.Module,
	invoice.Module,
	payment.Module,
	scheduler.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, m *metrics.Metrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	r.Static("/files/invoices", cfg.InvoiceDir)

	return r
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	Log   *zap.Logger
	Clock clock.Clock

	CatalogSvc  catalogdomain.Service
	CustomerSvc customerdomain.Service
	UsageSvc    usagedomain.Service
	InvoiceSvc  invoicedomain.Service
	PaymentSvc  paymentdomain.Service

	Hub       *events.Hub
	Scheduler *scheduler.Scheduler
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger
	clock  clock.Clock

	catalogSvc  catalogdomain.Service
	customerSvc customerdomain.Service
	usageSvc    usagedomain.Service
	invoiceSvc  invoicedomain.Service
	paymentSvc  paymentdomain.Service

	hub       *events.Hub
	scheduler *scheduler.Scheduler
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("server"),
		clock:       p.Clock,
		catalogSvc:  p.CatalogSvc,
		customerSvc: p.CustomerSvc,
		usageSvc:    p.UsageSvc,
		invoiceSvc:  p.InvoiceSvc,
		paymentSvc:  p.PaymentSvc,
		hub:         p.Hub,
		scheduler:   p.Scheduler,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/packages", s.ListPackages)
	api.POST("/packages", s.CreatePackage)
	api.GET("/packages/:id", s.GetPackageByID)
	api.POST("/packages/:id/archive", s.ArchivePackage)

	api.GET("/customers", s.ListCustomers)
	api.POST("/customers", s.OnboardCustomer)
	api.GET("/customers/:id", s.GetCustomerByID)
	api.POST("/customers/:id/status", s.ChangeCustomerStatus)
	api.GET("/customers/:id/usage", s.ListCustomerUsage)

	api.POST("/usage", s.IngestUsage)

	api.GET("/invoices", s.ListInvoices)
	api.POST("/invoices/generate", s.GenerateInvoices)
	api.POST("/invoices/mark-overdue", s.MarkInvoicesOverdue)
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.GET("/invoices/:id/pdf", s.GetInvoicePDF)
	api.PATCH("/invoices/:id", s.UpdateInvoice)

	api.GET("/payments", s.ListPayments)
	api.POST("/payments", s.RecordPayment)
	api.POST("/payments/online", s.ProcessOnlinePayment)
	api.GET("/payments/:id", s.GetPaymentByID)
	api.POST("/payments/:id/refund", s.RefundPayment)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	admin.GET("/events", s.StreamEvents)
	admin.POST("/scheduler/run", s.RunSchedulerOnce)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
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
