package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"fullsound/internal/apperr"
	"fullsound/internal/auth"
	"fullsound/internal/gateway"
	"fullsound/internal/models"
	"fullsound/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WebhookQueue hands verified gateway notifications to the payment worker
type WebhookQueue interface {
	PublishGatewayIntentUpdated(ctx context.Context, event *models.GatewayIntentUpdatedEvent) error
}

// WebhookDeduper remembers gateway event ids already accepted
type WebhookDeduper interface {
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, key string) error
}

// Deps are the collaborators of the HTTP handlers
type Deps struct {
	Orders   *service.OrderService
	Payments *service.PaymentService
	Catalog  *service.CatalogService
	Auth     *service.AuthService
	Tokens   *auth.TokenManager
	Webhooks *gateway.WebhookVerifier
	// WebhookQueue may be nil, in which case notifications are applied inline
	WebhookQueue WebhookQueue
	Dedup        WebhookDeduper
	DedupTTL     time.Duration
	CORSOrigins  []string
	// ReadinessChecks are run by /ready, keyed by dependency name
	ReadinessChecks map[string]func(context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	Deps
}

// NewHandler creates a new HTTP handler
func NewHandler(deps Deps) *Handler {
	return &Handler{Deps: deps}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(requestLogger())
	router.Use(prometheusMiddleware())
	router.Use(corsMiddleware(h.CORSOrigins))
	router.Use(errorHandlingMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/register", h.register)
		v1.POST("/auth/login", h.login)

		v1.GET("/beats", h.listBeats)
		v1.GET("/beats/:id", h.getBeat)
		v1.GET("/beats/slug/:slug", h.getBeatBySlug)
		v1.POST("/beats/:id/play", h.recordPlay)

		v1.POST("/webhooks/stripe", h.stripeWebhook)

		authed := v1.Group("", authRequired(h.Tokens))

		catalog := authed.Group("/beats", requireCapability(auth.CapCatalogManage))
		catalog.POST("", h.createBeat)
		catalog.PUT("/:id", h.updateBeat)
		catalog.DELETE("/:id", h.deleteBeat)

		orders := authed.Group("/orders")
		orders.POST("", requireCapability(auth.CapOrdersWriteOwn), h.createOrder)
		orders.GET("/mine", requireCapability(auth.CapOrdersReadOwn), h.listMyOrders)
		orders.GET("/:id", requireCapability(auth.CapOrdersReadOwn), h.getOrder)
		orders.GET("/number/:number", requireCapability(auth.CapOrdersReadOwn), h.getOrderByNumber)
		orders.GET("", requireCapability(auth.CapOrdersManage), h.listOrders)
		orders.PATCH("/:id/status", requireCapability(auth.CapOrdersManage), h.updateOrderStatus)

		payments := authed.Group("/payments")
		payments.POST("/intents", requireCapability(auth.CapOrdersWriteOwn), h.createPaymentIntent)
		payments.POST("/confirm", requireCapability(auth.CapOrdersWriteOwn), h.confirmPayment)
		payments.GET("/:id", requireCapability(auth.CapPaymentsReadOwn), h.getPayment)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports whether every backing dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}
	for name, check := range h.ReadinessChecks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = "unavailable"
			continue
		}
		checks[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

// bindJSON decodes the body or records a ValidationError
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		abortWithError(c, apperr.Validation("invalid request body: %s", err.Error()))
		return false
	}
	return true
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		abortWithError(c, apperr.Validation("invalid %s: %s", name, c.Param(name)))
		return 0, false
	}
	return id, true
}
