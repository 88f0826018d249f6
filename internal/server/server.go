package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/payhook/internal/config"
	"github.com/smallbiznis/payhook/internal/observability"
	obsmiddleware "github.com/smallbiznis/payhook/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/payhook/internal/observability/metrics"
	obstracing "github.com/smallbiznis/payhook/internal/observability/tracing"
	"github.com/smallbiznis/payhook/internal/onramp"
	"github.com/smallbiznis/payhook/internal/swap"
	webhookdomain "github.com/smallbiznis/payhook/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
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

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	webhookSvc webhookdomain.Service
	signer     *onramp.Signer
	swapClient *swap.Client
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	WebhookSvc webhookdomain.Service
	Signer     *onramp.Signer
	SwapClient *swap.Client
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("server"),
		webhookSvc: p.WebhookSvc,
		signer:     p.Signer,
		swapClient: p.SwapClient,
	}

	svc.registerWebhookRoutes()
	svc.registerStoreRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	webhooks := s.engine.Group("/webhooks")

	webhooks.POST("/card", s.HandleCardWebhook)
	webhooks.POST("/onramp", s.HandleOnrampWebhook)
}

func (s *Server) registerStoreRoutes() {
	store := s.engine.Group("/store")

	store.POST("/onramp/sign", s.HandleOnrampSign)
	store.POST("/swap/create-exchange", s.HandleCreateExchange)
}

// classifyErrorForLog folds handler errors into low-cardinality type/code
// pairs for the request log.
func classifyErrorForLog(err error) (string, string) {
	switch {
	case err == nil:
		return "", ""
	case errors.Is(err, webhookdomain.ErrInvalidSignature):
		return "authentication_error", "invalid_signature"
	case errors.Is(err, webhookdomain.ErrMissingSecret),
		errors.Is(err, onramp.ErrUnconfigured),
		errors.Is(err, swap.ErrUnconfigured):
		return "configuration_error", "missing_configuration"
	case errors.Is(err, webhookdomain.ErrInvalidPayload),
		errors.Is(err, webhookdomain.ErrInvalidEvent),
		errors.Is(err, webhookdomain.ErrInvalidProvider),
		errors.Is(err, swap.ErrMissingAmount),
		errors.Is(err, swap.ErrInvalidAmount):
		return "validation_error", "invalid_request"
	case errors.Is(err, webhookdomain.ErrLookupUnavailable):
		return "upstream_error", "lookup_unavailable"
	case errors.Is(err, webhookdomain.ErrReconcileFailed):
		return "internal_error", "reconcile_failed"
	default:
		return "internal_error", "internal"
	}
}
