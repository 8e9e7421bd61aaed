package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/marketplace/internal/api/handler"
	"github.com/timmy/marketplace/internal/api/middleware"
	"github.com/timmy/marketplace/internal/config"
	"github.com/timmy/marketplace/internal/logger"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	importHandler *handler.ImportHandler,
	metricsHandler http.Handler,
	healthChecks map[string]handler.HealthCheck,
	cfg *config.ServerConfig,
	log *logger.Logger,
) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	if cfg.MaxUploadSize > 0 {
		r.MaxMultipartMemory = cfg.MaxUploadSize
	}

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.CORS.AllowAllOrigins,
	}))

	healthHandler := handler.NewHealthHandler(healthChecks)

	// Health check
	r.GET("/health", healthHandler.Health)
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		imports := v1.Group("/imports")
		imports.POST("", importHandler.StartImport)
		imports.GET("", importHandler.ListImports)
		imports.GET("/:id", importHandler.GetImportStatus)
		imports.GET("/:id/products", importHandler.ListImportedProducts)
	}

	return r
}
