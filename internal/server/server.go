package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/panelbilling/internal/config"
	"github.com/smallbiznis/panelbilling/internal/coupon"
	coupondomain "github.com/smallbiznis/panelbilling/internal/coupon/domain"
	"github.com/smallbiznis/panelbilling/internal/gateway"
	"github.com/smallbiznis/panelbilling/internal/node"
	"github.com/smallbiznis/panelbilling/internal/observability"
	obslogger "github.com/smallbiznis/panelbilling/internal/observability/logger"
	obstracing "github.com/smallbiznis/panelbilling/internal/observability/tracing"
	"github.com/smallbiznis/panelbilling/internal/order"
	orderdomain "github.com/smallbiznis/panelbilling/internal/order/domain"
	"github.com/smallbiznis/panelbilling/internal/provisioning"
	"github.com/smallbiznis/panelbilling/internal/quote"
	quotedomain "github.com/smallbiznis/panelbilling/internal/quote/domain"
	"github.com/smallbiznis/panelbilling/internal/ratelimit"
	"github.com/smallbiznis/panelbilling/internal/resource"
	resourcedomain "github.com/smallbiznis/panelbilling/internal/resource/domain"
	"github.com/smallbiznis/panelbilling/internal/settlement"
	settlementdomain "github.com/smallbiznis/panelbilling/internal/settlement/domain"
	"github.com/smallbiznis/panelbilling/internal/term"
	termdomain "github.com/smallbiznis/panelbilling/internal/term/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	resource.Module,
	term.Module,
	coupon.Module,
	quote.Module,
	node.Module,
	gateway.Module,
	provisioning.Module,
	ratelimit.Module,
	order.Module,
	settlement.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(obstracing.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
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
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	log           *zap.Logger
	resourceSvc   resourcedomain.Service
	termSvc       termdomain.Service
	couponSvc     coupondomain.Service
	quoteSvc      quotedomain.Service
	orderSvc      orderdomain.Service
	settlementSvc settlementdomain.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	Log           *zap.Logger
	ResourceSvc   resourcedomain.Service
	TermSvc       termdomain.Service
	CouponSvc     coupondomain.Service
	QuoteSvc      quotedomain.Service
	OrderSvc      orderdomain.Service
	SettlementSvc settlementdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		log:           p.Log.Named("http.server"),
		resourceSvc:   p.ResourceSvc,
		termSvc:       p.TermSvc,
		couponSvc:     p.CouponSvc,
		quoteSvc:      p.QuoteSvc,
		orderSvc:      p.OrderSvc,
		settlementSvc: p.SettlementSvc,
	}

	svc.registerBillingRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerBillingRoutes() {
	billing := s.engine.Group("/api/billing")

	// Quotes are anonymous; the user only narrows per-user coupon limits.
	billing.POST("/quote", OptionalUser(), s.Quote)

	billing.POST("/checkout", UserRequired(), s.Checkout)
	billing.POST("/settle/:reference", UserRequired(), s.Settle)
	billing.GET("/orders/:id", UserRequired(), s.GetOrder)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin")
	admin.Use(UserRequired())

	// -------- Resources --------
	admin.GET("/resources", s.ListResources)
	admin.POST("/resources", s.CreateResource)
	admin.PATCH("/resources/:id", s.UpdateResource)
	admin.POST("/resources/:id/scaling-rules", s.AddScalingRule)

	// -------- Terms --------
	admin.GET("/terms", s.ListTerms)
	admin.POST("/terms", s.CreateTerm)
	admin.PATCH("/terms/:id", s.UpdateTerm)
	admin.POST("/terms/default", s.PromoteDefaultTerm)

	// -------- Coupons --------
	admin.GET("/coupons", s.ListCoupons)
	admin.POST("/coupons", s.CreateCoupon)
	admin.PATCH("/coupons/:id", s.UpdateCoupon)
}
