package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	checkoutService *service.CheckoutService
	catalogService  *service.CatalogService
}

// NewHandler creates a new HTTP handler
func NewHandler(checkoutService *service.CheckoutService, catalogService *service.CatalogService) *Handler {
	return &Handler{
		checkoutService: checkoutService,
		catalogService:  catalogService,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	orders := router.Group("/api/orders")
	{
		orders.GET("", h.listOrders)
		orders.POST("/create-payment", h.createPayment)
		orders.GET("/success", h.paymentSuccess)
		orders.GET("/cancel", h.paymentCancel)
	}

	products := router.Group("/api/products")
	{
		products.POST("", h.createProduct)
		products.GET("", h.listProducts)
		products.GET("/:id", h.getProduct)
		products.PUT("/:id", h.updateProduct)
		products.DELETE("/:id", h.deleteProduct)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createPayment starts the checkout flow and returns the provider approval
// URL the client must redirect to
func (h *Handler) createPayment(c *gin.Context) {
	var req service.CheckoutRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.checkoutService.StartCheckout(c.Request.Context(), &req)
	if err != nil {
		var validationErr *service.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid checkout request",
				"details": validationErr.Reason,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Payment creation failed",
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// paymentSuccess handles the provider return callback. The front end only
// sees a redirect with a status flag; failure detail stays in the logs.
func (h *Handler) paymentSuccess(c *gin.Context) {
	payerID := c.Query("PayerID")
	paymentID := c.Query("paymentId")

	_, err := h.checkoutService.CompleteCheckout(c.Request.Context(), paymentID, payerID)
	if err != nil {
		c.Redirect(http.StatusFound, "/orders.html?status=error")
		return
	}

	c.Redirect(http.StatusFound, "/orders.html?status=success")
}

// paymentCancel handles the provider cancel callback
func (h *Handler) paymentCancel(c *gin.Context) {
	h.checkoutService.CancelCheckout(c.Request.Context())
	c.Redirect(http.StatusFound, "/orders.html?status=cancelled")
}

// listOrders returns all orders, newest first
func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.checkoutService.ListOrders(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list orders",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, orders)
}

// createProduct handles product creation
func (h *Handler) createProduct(c *gin.Context) {
	var req service.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	product, err := h.catalogService.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		var validationErr *service.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid product",
				"details": validationErr.Reason,
			})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to create product",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, product)
}

// listProducts returns all products
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalogService.ListProducts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list products",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, products)
}

// getProduct returns a single product by ID
func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.catalogService.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Product not found",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, product)
}

// updateProduct updates a product
func (h *Handler) updateProduct(c *gin.Context) {
	var req service.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	product, err := h.catalogService.UpdateProduct(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		var validationErr *service.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid product",
				"details": validationErr.Reason,
			})
			return
		}

		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Product not found",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, product)
}

// deleteProduct removes a product
func (h *Handler) deleteProduct(c *gin.Context) {
	if err := h.catalogService.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Product not found",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusNoContent, nil)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
