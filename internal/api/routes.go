package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/LinikerOliva/tcc-back/internal/api/handlers"
	"github.com/LinikerOliva/tcc-back/internal/api/middleware"
	"github.com/LinikerOliva/tcc-back/internal/services"
	"github.com/LinikerOliva/tcc-back/pkg/metrics"
)

type Router struct {
	engine             *gin.Engine
	logger             *zap.Logger
	metrics            *metrics.MetricsCollector
	docHandler         *handlers.DocumentHandler
	verifyHandler      *handlers.VerificationHandler
	certHandler        *handlers.CertificateHandler
	identityMiddleware *middleware.IdentityMiddleware
	reqMiddleware      *middleware.RequestMiddleware
}

func NewRouter(
	logger *zap.Logger,
	metricsCollector *metrics.MetricsCollector,
	signingService *services.SigningService,
	verificationService *services.VerificationService,
	certGenService *services.CertGenService,
	db *gorm.DB,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	reqMiddleware := middleware.NewRequestMiddleware(logger)
	logMiddleware := middleware.NewLoggingMiddleware(logger)
	identityMiddleware := middleware.NewIdentityMiddleware(db)

	engine.Use(reqMiddleware.ProcessRequest())
	engine.Use(reqMiddleware.RecoverPanic())
	engine.Use(logMiddleware.LogRequest())

	docHandler := handlers.NewDocumentHandler(signingService, verificationService, logger)
	verifyHandler := handlers.NewVerificationHandler(verificationService, logger)
	certHandler := handlers.NewCertificateHandler(certGenService, logger)

	return &Router{
		engine:             engine,
		logger:             logger,
		metrics:            metricsCollector,
		docHandler:         docHandler,
		verifyHandler:      verifyHandler,
		certHandler:        certHandler,
		identityMiddleware: identityMiddleware,
		reqMiddleware:      reqMiddleware,
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "up", "name": "tcc-back"})
	})

	r.engine.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"counters":  r.metrics.GetCounters(),
			"latencies": r.metrics.GetLatencies(),
		})
	})

	// Public verification surface. Throttled so scraping stamp identifiers
	// stays expensive; no identity required.
	public := r.engine.Group("/api/documents")
	public.Use(r.reqMiddleware.ThrottleVerification())
	{
		public.GET("/verify/:id", r.verifyHandler.VerifyDocument)
	}

	authorized := r.engine.Group("/api")
	authorized.Use(r.identityMiddleware.RequireClinician())
	{
		authorized.POST("/documents/sign", r.docHandler.SignDocument)
		authorized.GET("/documents/:id/artifact", r.docHandler.DownloadArtifact)
		authorized.POST("/certificates/test", r.certHandler.IssueTestCertificate)
		authorized.GET("/certificates", r.certHandler.ListCertificates)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

func (r *Router) Run(addr string) error {
	r.logger.Info("Starting HTTP server", zap.String("address", addr))
	return r.engine.Run(addr)
}
