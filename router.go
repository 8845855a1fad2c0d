package main

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bunyod-abdulloh/vanillewebapp/internal/notify"
	"github.com/bunyod-abdulloh/vanillewebapp/internal/orders"
	"github.com/bunyod-abdulloh/vanillewebapp/models"
)

// AuthMiddleware guards the admin endpoints with bearer-token
// verification. A nil verifier means OIDC was never configured, so
// every admin request is rejected.
func AuthMiddleware(verifier *oidc.IDTokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Admin auth is not configured"})
			return
		}
		authHeader := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		token := strings.TrimPrefix(authHeader, prefix)
		if _, err := verifier.Verify(c.Request.Context(), token); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		c.Next()
	}
}

// RequestIDMiddleware tags every request with an id that error logs
// can refer back to.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

type registerRequest struct {
	TelegramID int64           `json:"telegram_id"`
	FullName   string          `json:"full_name"`
	Phone      string          `json:"phone"`
	ShopName   string          `json:"shop_name"`
	FilialName string          `json:"filial_name"`
	Latitude   decimal.Decimal `json:"latitude"`
	Longitude  decimal.Decimal `json:"longitude"`
}

type submitRequest struct {
	TelegramID int64                `json:"telegram_id"`
	Comment    string               `json:"comment"`
	Items      []orders.ItemRequest `json:"items"`
}

func SetupRouter(db *gorm.DB, notifier *notify.Notifier, adminAuth gin.HandlerFunc) *gin.Engine {
	r := gin.Default()
	r.Use(RequestIDMiddleware())

	svc := orders.NewService(db)

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Client self-registration from the Telegram web form. The
	// validation order is part of the contract: missing telegram id,
	// then missing shop name, then the duplicate check.
	r.POST("/api/clients", func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.TelegramID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"telegram_id": []string{"Telegram ID majburiy"}})
			return
		}
		shopName := strings.TrimSpace(req.ShopName)
		if shopName == "" {
			c.JSON(http.StatusBadRequest, gin.H{"shop_name": []string{"Do'kon nomi majburiy"}})
			return
		}
		var existing models.Client
		if err := db.Where("telegram_id = ?", req.TelegramID).First(&existing).Error; err == nil {
			c.JSON(http.StatusConflict, gin.H{"telegram_id": []string{"Siz allaqachon ro'yxatdan o'tgansiz"}})
			return
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		var shop models.Shop
		if err := db.Where("name = ?", shopName).FirstOrCreate(&shop, models.Shop{Name: shopName}).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		client := models.Client{
			ShopID:     shop.ID,
			FilialName: req.FilialName,
			TelegramID: req.TelegramID,
			FullName:   req.FullName,
			Phone:      req.Phone,
			Latitude:   req.Latitude,
			Longitude:  req.Longitude,
		}
		if err := db.Create(&client).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"status": "success", "client_id": client.ID, "shop_id": shop.ID})
	})

	// Order submission from the web app cart. The notification is
	// best-effort and never fails the request.
	r.POST("/api/orders", func(c *gin.Context) {
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
			return
		}
		order, err := svc.Submit(req.TelegramID, req.Comment, req.Items)
		if err != nil {
			if errors.Is(err, orders.ErrClientNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "Mijoz topilmadi"})
				return
			}
			log.Printf("order submission failed (request %s): %v", c.GetString("request_id"), err)
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": err.Error()})
			return
		}
		if full, err := svc.Get(order.ID); err == nil {
			notifier.OrderCreated(full)
		} else {
			log.Printf("failed to load order #%d for notification: %v", order.ID, err)
		}
		c.JSON(http.StatusCreated, gin.H{"status": "success", "order_id": order.ID})
	})

	// Catalog for the web app: available products only, category label
	// lowercased the way the front end buckets them.
	r.GET("/api/products", func(c *gin.Context) {
		var products []models.Product
		if err := db.Preload("Category").Where("is_available = ?", true).Find(&products).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		payload := make([]gin.H, 0, len(products))
		for _, p := range products {
			payload = append(payload, gin.H{
				"id":    p.ID,
				"name":  p.Name,
				"price": p.Price.InexactFloat64(),
				"cat":   strings.ToLower(p.Category.Name),
				"img":   p.ImageURL,
			})
		}
		c.JSON(http.StatusOK, payload)
	})

	// List categories
	r.GET("/api/categories", func(c *gin.Context) {
		var categories []models.Category
		if err := db.Find(&categories).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, categories)
	})

	admin := r.Group("/admin", adminAuth)

	// Create category
	admin.POST("/categories", func(c *gin.Context) {
		var category models.Category
		if err := c.ShouldBindJSON(&category); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := db.Create(&category).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, category)
	})

	// Create product
	admin.POST("/products", func(c *gin.Context) {
		var product models.Product
		if err := c.ShouldBindJSON(&product); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := db.Create(&product).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, product)
	})

	// Order list for the admin console, newest first.
	admin.GET("/orders", func(c *gin.Context) {
		status := models.OrderStatus(c.Query("status"))
		var shopID uint
		if raw := c.Query("shop_id"); raw != "" {
			parsed, err := strconv.ParseUint(raw, 10, 32)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid shop_id"})
				return
			}
			shopID = uint(parsed)
		}
		list, err := svc.List(status, shopID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		payload := make([]gin.H, 0, len(list))
		for _, o := range list {
			payload = append(payload, gin.H{
				"id":          o.ID,
				"shop":        o.Shop.Name,
				"filial":      o.Client.FilialName,
				"status":      o.Status,
				"total_price": notify.FormatAmount(o.TotalPrice),
				"created_at":  o.CreatedAt,
			})
		}
		c.JSON(http.StatusOK, payload)
	})

	// Single-order status change through the strict forward-only path.
	admin.POST("/orders/:id/status", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order id"})
			return
		}
		var req struct {
			Status models.OrderStatus `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var order models.Order
		if err := db.First(&order, uint(id)).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		if err := svc.TransitionStatus(&order, req.Status); err != nil {
			if errors.Is(err, orders.ErrInvalidTransition) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, order)
	})

	// Remove one line item; the parent order's total follows.
	admin.DELETE("/orders/items/:id", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item id"})
			return
		}
		var item models.OrderItem
		if err := db.First(&item, uint(id)).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order item not found"})
			return
		}
		if err := svc.RemoveItem(&item); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	})

	// Bulk status action, matching the admin console behavior: every
	// selected order is updated, no transition validation.
	admin.POST("/orders/bulk-status", func(c *gin.Context) {
		var req struct {
			IDs    []uint             `json:"ids" binding:"required"`
			Status models.OrderStatus `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		switch req.Status {
		case models.StatusCreated, models.StatusConfirmed, models.StatusDelivered, models.StatusCanceled:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status"})
			return
		}
		updated, err := svc.BulkSetStatus(req.IDs, req.Status)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": updated})
	})

	return r
}
