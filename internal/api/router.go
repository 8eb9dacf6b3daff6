package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"catalog-browser-api/internal/controller"
	"catalog-browser-api/internal/models"
	"catalog-browser-api/internal/sparql"
	"catalog-browser-api/pkg/cache"
)

const (
	serviceName    = "catalog-browser-api"
	serviceVersion = "1.0.0"
)

// Catalog is the read side used by the stateless endpoints.
// *services.CatalogService implements it.
type Catalog interface {
	Categories(ctx context.Context) ([]string, error)
	Stores(ctx context.Context) ([]string, error)
	ChildrenOf(ctx context.Context, level models.CategoryLevel, parent string) ([]string, error)
	FetchListing(ctx context.Context, sel models.FilterSelection, page int) (*models.ProductPage, error)
}

type Options struct {
	Catalog  Catalog
	Sessions *controller.Sessions
	// Cache may be nil when Redis is unavailable.
	Cache   *cache.RedisCache
	Limiter *IPRateLimiter
	Logger  *zap.Logger
	// AllowedOrigins restricts CORS; empty allows any origin.
	AllowedOrigins []string
	// SettleTimeout bounds how long a ?wait=true request waits for lookups.
	SettleTimeout time.Duration
}

type handler struct {
	catalog       Catalog
	sessions      *controller.Sessions
	cache         *cache.RedisCache
	limiter       *IPRateLimiter
	logger        *zap.Logger
	settleTimeout time.Duration
}

// NewRouter wires middleware and every route onto a fresh gin engine.
func NewRouter(opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Limiter == nil {
		opts.Limiter = NewIPRateLimiter(10, 20)
	}
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = 15 * time.Second
	}
	h := &handler{
		catalog:       opts.Catalog,
		sessions:      opts.Sessions,
		cache:         opts.Cache,
		limiter:       opts.Limiter,
		logger:        opts.Logger,
		settleTimeout: opts.SettleTimeout,
	}

	r := gin.New()
	// Route on the escaped path so a label such as "TV/Audio" sent as
	// TV%2FAudio stays one segment; parameters are unescaped afterwards.
	r.UseRawPath = true
	r.UnescapePathValues = true
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(opts.AllowedOrigins))
	r.Use(requestLogger(opts.Logger))
	r.Use(rateLimitMiddleware(opts.Limiter))

	r.GET("/health", h.health)
	r.GET("/api/info", h.info)
	r.GET("/rate-limit/status", h.rateLimitStatus)

	r.GET("/cache/stats", h.cacheStats)
	r.GET("/cache/debug", h.cacheDebug)
	r.DELETE("/cache/flush", h.cacheFlush)

	catalog := r.Group("/api")
	{
		catalog.GET("/categories", h.listCategories)
		catalog.GET("/categories/:label/children", h.listChildren)
		catalog.GET("/stores", h.listStores)
		catalog.GET("/products", h.listProducts)
	}

	sessions := r.Group("/api/sessions")
	{
		sessions.POST("", h.createSession)
		sessions.GET("/:id", h.withSession(h.getSession))
		sessions.DELETE("/:id", h.deleteSession)
		sessions.POST("/:id/toggle", h.withSession(h.toggle))
		sessions.DELETE("/:id/chips/:level/:label", h.withSession(h.removeChip))
		sessions.PUT("/:id/bounds", h.withSession(h.setBounds))
		sessions.POST("/:id/apply", h.withSession(h.apply))
		sessions.POST("/:id/page", h.withSession(h.goToPage))
		sessions.POST("/:id/next", h.withSession(h.next))
		sessions.POST("/:id/prev", h.withSession(h.prev))
	}

	return r
}

func (h *handler) health(c *gin.Context) {
	health := gin.H{
		"status":  "healthy",
		"service": serviceName,
		"version": serviceVersion,
	}
	if h.cache.IsAvailable() {
		health["cache"] = "redis connected"
	} else {
		health["cache"] = "redis unavailable"
	}
	if h.sessions != nil {
		health["sessions"] = h.sessions.Len()
	}
	c.JSON(http.StatusOK, health)
}

func (h *handler) info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Catalog Browser API",
		"version":     serviceVersion,
		"description": "Faceted browsing of a product catalog stored in a SPARQL triple store",
		"features":    []string{"Cascading categories", "Store and price filters", "Pagination", "Redis caching"},
		"endpoints": map[string]string{
			"GET /api/categories":                  "Top-level categories",
			"GET /api/categories/:label/children":  "Subcategories (level=sub) or end categories (level=end) of a label",
			"GET /api/stores":                      "Stores",
			"GET /api/products":                    "One page of filtered products",
			"POST /api/sessions":                   "Start a browsing session",
			"GET /api/sessions/:id":                "Session state",
			"POST /api/sessions/:id/toggle":        "Toggle a category or store",
			"DELETE /api/sessions/:id/chips/:l/:v": "Remove a selected filter",
			"PUT /api/sessions/:id/bounds":         "Set price and discount bounds",
			"POST /api/sessions/:id/apply":         "Apply filters",
			"POST /api/sessions/:id/page":          "Go to page",
			"POST /api/sessions/:id/next":          "Next page",
			"POST /api/sessions/:id/prev":          "Previous page",
			"GET /health":                          "Health check",
			"GET /cache/stats":                     "Cache statistics",
		},
	})
}

func (h *handler) rateLimitStatus(c *gin.Context) {
	ip := c.ClientIP()
	limiter := h.limiter.Get(ip)

	c.JSON(http.StatusOK, gin.H{
		"ip":               ip,
		"limit_per_second": limiter.Limit(),
		"burst_capacity":   limiter.Burst(),
		"tokens_available": limiter.Tokens(),
		"next_token_at":    time.Now().Add(time.Duration(float64(time.Second) / float64(limiter.Limit()))),
	})
}

func (h *handler) cacheStats(c *gin.Context) {
	if !h.cache.IsAvailable() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache not available"})
		return
	}
	c.JSON(http.StatusOK, h.cache.GetStats(c.Request.Context()))
}

func (h *handler) cacheDebug(c *gin.Context) {
	if !h.cache.IsAvailable() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache not available"})
		return
	}

	ctx := c.Request.Context()
	keys := h.cache.GetAllKeys(ctx)
	keyDetails := make([]gin.H, 0, len(keys))
	for _, key := range keys {
		ttl := h.cache.GetKeyTTL(ctx, key)
		keyDetails = append(keyDetails, gin.H{
			"key":         key,
			"ttl_seconds": int(ttl.Seconds()),
			"expires_in":  ttl.String(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"total_keys": len(keys),
		"cache_keys": keyDetails,
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}

func (h *handler) cacheFlush(c *gin.Context) {
	if !h.cache.IsAvailable() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cache not available"})
		return
	}
	if err := h.cache.FlushCache(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "failed to flush cache",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "cache flushed successfully",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// respondError maps domain errors onto HTTP statuses.
func (h *handler) respondError(c *gin.Context, err error) {
	status, code := http.StatusBadGateway, "sparql_query_failed"

	var httpErr *sparql.HTTPError
	switch {
	case errors.Is(err, controller.ErrSessionNotFound):
		status, code = http.StatusNotFound, "session_not_found"
	case errors.Is(err, controller.ErrInvalidPageInput),
		errors.Is(err, controller.ErrUnknownFacet),
		errors.Is(err, sparql.ErrInvalidPage),
		errors.Is(err, sparql.ErrInvalidNumber),
		errors.Is(err, sparql.ErrUnknownLevel),
		errors.Is(err, errBadRequest):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "sparql_timeout"
	case errors.As(err, &httpErr):
		h.logger.Warn("sparql endpoint error", zap.Int("upstream_status", httpErr.StatusCode))
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, models.ErrorResponse{
		Error:   code,
		Code:    status,
		Message: err.Error(),
	})
}
