// Package api exposes the ledger over HTTP with gin.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"finance-ledger-backend/internal/ingest"
	"finance-ledger-backend/internal/ledger"
	"finance-ledger-backend/internal/store"
)

// ServiceName is reported by the health check.
const ServiceName = "finance-ledger"

// Options configures the HTTP facade.
type Options struct {
	// AllowedOrigins lists the CORS origins; "*" allows any.
	AllowedOrigins []string
	// MaxUploadBytes caps CSV uploads.
	MaxUploadBytes int64
}

// Server holds the handler dependencies.
type Server struct {
	svc    *ledger.Service
	opts   Options
	logger *slog.Logger
}

// New builds the gin engine with every route registered.
func New(svc *ledger.Service, opts Options, logger *slog.Logger) *gin.Engine {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	s := &Server{svc: svc, opts: opts, logger: logger.With("component", "api")}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), s.requestLogger(), cors.New(corsConfig(opts.AllowedOrigins)))
	r.MaxMultipartMemory = opts.MaxUploadBytes

	r.GET("/health", s.healthCheck)

	api := r.Group("/api")

	txns := api.Group("/transactions")
	txns.GET("", s.listTransactions)
	txns.GET("/filter", s.listTransactions)
	txns.GET("/recent", s.recentTransactions)
	txns.POST("", s.createTransaction)
	txns.GET("/:id", s.getTransaction)
	txns.PUT("/:id", s.updateTransaction)
	txns.PATCH("/:id", s.updateTransaction)
	txns.DELETE("/:id", s.deleteTransaction)

	meta := api.Group("/meta")
	meta.POST("/upload-csv", s.uploadCSV)
	meta.GET("/cost_centers", s.listCostCenters)
	meta.POST("/cost_centers", s.createCostCenter)
	meta.GET("/cost_centers/:id", s.getCostCenter)
	meta.DELETE("/cost_centers/:id", s.deleteCostCenter)
	meta.GET("/spend_categories", s.listSpendCategories)
	meta.POST("/spend_categories", s.createSpendCategory)
	meta.GET("/spend_categories/:id", s.getSpendCategory)
	meta.DELETE("/spend_categories/:id", s.deleteSpendCategory)
	meta.GET("/metadata/accounts", s.accounts)
	meta.GET("/metadata/date-range", s.dateRange)
	meta.GET("/metadata/stats", s.stats)

	analytics := api.Group("/analytics")
	analytics.GET("/totals", s.totals)
	analytics.GET("/totals/comprehensive", s.comprehensiveTotals)
	analytics.GET("/totals/cost_center/:id", s.costCenterTotal)
	analytics.GET("/totals/spend_category/:id", s.spendCategoryTotal)
	analytics.GET("/top", s.top)
	analytics.GET("/search", s.searchTotal)
	analytics.GET("/accounts/summary", s.accountSummary)
	analytics.GET("/trends", s.trends)
	analytics.GET("/weekly", s.breakdown)
	analytics.GET("/monthly", s.breakdown)
	analytics.GET("/monthly/simple", s.monthlyTotals)

	admin := api.Group("/admin")
	admin.POST("/bulk-update", s.bulkUpdate)
	admin.POST("/bulk-delete", s.bulkDelete)
	admin.GET("/export", s.export)
	admin.POST("/maintenance/cleanup", s.cleanup())
	admin.POST("/maintenance/cleanup-spend-categories", s.cleanup(store.KindSpendCategory))
	admin.POST("/maintenance/cleanup-cost-centers", s.cleanup(store.KindCostCenter))

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", requestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	}
	return cfg
}

const requestIDHeader = "X-Request-ID"

// requestID echoes the caller's X-Request-ID or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
			"request_id", c.GetString(requestIDHeader),
		)
	}
}

// healthCheck handles the health check endpoint
func (s *Server) healthCheck(c *gin.Context) {
	if err := s.svc.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": ServiceName,
	})
}

// fail writes err with the status its kind maps to. Unexpected errors are
// logged and reported without internals.
func (s *Server) fail(c *gin.Context, err error) {
	var (
		verr   *ledger.ValidationError
		rowErr *ingest.RowError
	)
	switch {
	case errors.As(err, &verr), errors.As(err, &rowErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.logger.ErrorContext(c.Request.Context(), "request failed",
			"path", c.Request.URL.Path,
			"request_id", c.GetString(requestIDHeader),
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// pathID parses the :id route parameter.
func pathID(c *gin.Context, what string) (int64, bool) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + what + " id"})
		return 0, false
	}
	return id, true
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	if id < 1 {
		return 0, fmt.Errorf("id %d is not positive", id)
	}
	return id, nil
}
