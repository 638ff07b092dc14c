package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"souq-backend/apperr"
	"souq-backend/config"
	"souq-backend/models"
	"souq-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrderHandler struct {
	DB *gorm.DB
}

// CreateOrder turns the caller's cart into an order. Stock is claimed with
// conditional atomic decrements inside the transaction, so two checkouts
// racing for the last unit can never both succeed.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	var req struct {
		DeliveryAddress string `json:"delivery_address" binding:"required"`
		PaymentMethod   string `json:"payment_method" binding:"required,oneof=cash card"`
		CouponCode      string `json:"coupon_code"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	tx := h.DB.Begin()
	if tx.Error != nil {
		respondError(c, tx.Error)
		return
	}

	var cartItems []models.CartItem
	if err := tx.Preload("Product").Where("user_id = ?", userID).Find(&cartItems).Error; err != nil {
		tx.Rollback()
		respondError(c, err)
		return
	}

	if len(cartItems) == 0 {
		tx.Rollback()
		respondError(c, apperr.Validation("order.emptyCart", nil))
		return
	}

	var subtotal float64
	orderItems := make([]models.OrderItem, 0, len(cartItems))
	for _, item := range cartItems {
		if !item.Product.IsActive {
			tx.Rollback()
			respondError(c, apperr.Conflict("cart.productUnavailable"))
			return
		}

		// The row is only touched when enough stock remains.
		result := tx.Model(&models.Product{}).
			Where("id = ? AND stock_quantity >= ?", item.ProductID, item.Quantity).
			Update("stock_quantity", gorm.Expr("stock_quantity - ?", item.Quantity))
		if result.Error != nil {
			tx.Rollback()
			respondError(c, result.Error)
			return
		}
		if result.RowsAffected == 0 {
			tx.Rollback()
			respondError(c, apperr.Conflict("order.insufficientStock"))
			return
		}

		subtotal += item.Product.Price * float64(item.Quantity)
		orderItems = append(orderItems, models.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.Product.Name,
			Quantity:    item.Quantity,
			Price:       item.Product.Price,
		})
	}
	subtotal = math.Round(subtotal*100) / 100

	var discount float64
	couponCode := ""
	if req.CouponCode != "" {
		var coupon models.Coupon
		code := strings.ToUpper(strings.TrimSpace(req.CouponCode))
		if err := tx.Where("code = ?", code).First(&coupon).Error; err != nil {
			tx.Rollback()
			if errors.Is(err, gorm.ErrRecordNotFound) {
				respondError(c, apperr.NotFound("coupon.couponNotFound"))
				return
			}
			respondError(c, err)
			return
		}

		if err := validateCoupon(&coupon, subtotal, time.Now()); err != nil {
			tx.Rollback()
			respondError(c, err)
			return
		}

		// Redemption counts are claimed the same way as stock.
		result := tx.Model(&models.Coupon{}).
			Where("id = ? AND (usage_limit = 0 OR used_count < usage_limit)", coupon.ID).
			Update("used_count", gorm.Expr("used_count + 1"))
		if result.Error != nil {
			tx.Rollback()
			respondError(c, result.Error)
			return
		}
		if result.RowsAffected == 0 {
			tx.Rollback()
			respondError(c, apperr.Conflict("coupon.couponExhausted"))
			return
		}

		discount = coupon.DiscountFor(subtotal)
		couponCode = coupon.Code
	}

	fee := deliveryFee(subtotal - discount)
	total := math.Round((subtotal-discount+fee)*100) / 100

	order := models.Order{
		UserID:          userID,
		Status:          models.OrderStatusPending,
		Subtotal:        subtotal,
		Discount:        discount,
		DeliveryFee:     fee,
		Total:           total,
		CouponCode:      couponCode,
		DeliveryAddress: req.DeliveryAddress,
		PaymentMethod:   req.PaymentMethod,
	}
	if err := tx.Create(&order).Error; err != nil {
		tx.Rollback()
		respondError(c, err)
		return
	}

	for i := range orderItems {
		orderItems[i].OrderID = order.ID
	}
	if err := tx.Omit("Product", "Order").CreateInBatches(&orderItems, 100).Error; err != nil {
		tx.Rollback()
		respondError(c, err)
		return
	}

	if err := tx.Where("user_id = ?", userID).Delete(&models.CartItem{}).Error; err != nil {
		tx.Rollback()
		respondError(c, err)
		return
	}

	if err := tx.Commit().Error; err != nil {
		respondError(c, err)
		return
	}

	h.DB.Preload("Items").First(&order, "id = ?", order.ID)

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err == nil {
		utils.SendOrderConfirmation(user.Email, user.Name, order.OrderNumber, order.Total)
	}

	c.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) GetOrders(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	var orders []models.Order
	err := h.DB.Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, ok := parseID(c, "id", "order.orderNotFound")
	if !ok {
		return
	}

	query := h.DB.Preload("Items").Preload("Items.Product")
	if c.GetString("user_role") != "admin" {
		query = query.Where("user_id = ?", c.MustGet("user_id").(uuid.UUID))
	}

	var order models.Order
	if err := query.First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, apperr.NotFound("order.orderNotFound"))
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// CancelOrder lets a customer cancel their own order while it has not
// shipped. Cancelled quantities go straight back to stock; a redeemed coupon
// use stays burned.
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	id, ok := parseID(c, "id", "order.orderNotFound")
	if !ok {
		return
	}

	tx := h.DB.Begin()
	if tx.Error != nil {
		respondError(c, tx.Error)
		return
	}

	var order models.Order
	err := tx.Preload("Items").Where("id = ? AND user_id = ?", id, userID).First(&order).Error
	if err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, apperr.NotFound("order.orderNotFound"))
			return
		}
		respondError(c, err)
		return
	}

	if !models.IsValidTransition(order.Status, models.OrderStatusCancelled) {
		tx.Rollback()
		respondError(c, apperr.Conflict("order.cannotCancel"))
		return
	}

	if err := restockItems(tx, order.Items); err != nil {
		tx.Rollback()
		respondError(c, err)
		return
	}

	if err := tx.Model(&order).Update("status", models.OrderStatusCancelled).Error; err != nil {
		tx.Rollback()
		respondError(c, err)
		return
	}

	if err := tx.Commit().Error; err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// ListOrders is the paginated admin view across all users.
func (h *OrderHandler) ListOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := h.DB.Model(&models.Order{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		respondError(c, err)
		return
	}

	var orders []models.Order
	err := query.Preload("Items").Preload("User").
		Order("created_at DESC").
		Limit(limit).Offset((page - 1) * limit).
		Find(&orders).Error
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders":      orders,
		"total":       total,
		"page":        page,
		"total_pages": totalPages(total, limit),
	})
}

// UpdateOrderStatus moves an order along the status state machine. Moving to
// cancelled restores the ordered quantities to stock.
func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	id, ok := parseID(c, "id", "order.orderNotFound")
	if !ok {
		return
	}

	var req struct {
		Status models.OrderStatus `json:"status" binding:"required,oneof=pending confirmed processing shipped delivered cancelled"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	tx := h.DB.Begin()
	if tx.Error != nil {
		respondError(c, tx.Error)
		return
	}

	var order models.Order
	if err := tx.Preload("Items").First(&order, "id = ?", id).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, apperr.NotFound("order.orderNotFound"))
			return
		}
		respondError(c, err)
		return
	}

	if !models.IsValidTransition(order.Status, req.Status) {
		tx.Rollback()
		respondError(c, apperr.Conflict("order.invalidStatusTransition"))
		return
	}

	if req.Status == models.OrderStatusCancelled {
		if err := restockItems(tx, order.Items); err != nil {
			tx.Rollback()
			respondError(c, err)
			return
		}
	}

	if err := tx.Model(&order).Update("status", req.Status).Error; err != nil {
		tx.Rollback()
		respondError(c, err)
		return
	}

	if err := tx.Commit().Error; err != nil {
		respondError(c, err)
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", order.UserID).Error; err == nil {
		utils.SendOrderStatusUpdate(user.Email, user.Name, order.OrderNumber, string(req.Status))
	}

	c.JSON(http.StatusOK, order)
}

// GetDashboard returns the pre-computed stats the admin landing page shows.
func (h *OrderHandler) GetDashboard(c *gin.Context) {
	var productCount int64
	h.DB.Model(&models.Product{}).Count(&productCount)

	var categoryCount int64
	h.DB.Model(&models.Category{}).Count(&categoryCount)

	var userCount int64
	h.DB.Model(&models.User{}).Count(&userCount)

	var totalOrders int64
	h.DB.Model(&models.Order{}).Count(&totalOrders)

	var pendingOrders int64
	h.DB.Model(&models.Order{}).Where("status = ?", models.OrderStatusPending).Count(&pendingOrders)

	var totalRevenue float64
	h.DB.Model(&models.Order{}).
		Where("status <> ?", models.OrderStatusCancelled).
		Select("COALESCE(SUM(total), 0)").Scan(&totalRevenue)

	// Recent revenue (last 7 days)
	sevenDaysAgo := time.Now().AddDate(0, 0, -7)
	var recentRevenue float64
	h.DB.Model(&models.Order{}).
		Where("created_at >= ? AND status <> ?", sevenDaysAgo, models.OrderStatusCancelled).
		Select("COALESCE(SUM(total), 0)").Scan(&recentRevenue)

	var recentOrders []models.Order
	h.DB.Preload("Items").Preload("User").Order("created_at DESC").Limit(10).Find(&recentOrders)

	c.JSON(http.StatusOK, gin.H{
		"total_products":   productCount,
		"total_categories": categoryCount,
		"total_users":      userCount,
		"total_orders":     totalOrders,
		"pending_orders":   pendingOrders,
		"total_revenue":    totalRevenue,
		"recent_revenue":   recentRevenue,
		"recent_orders":    recentOrders,
	})
}

// restockItems returns cancelled quantities to inventory.
func restockItems(tx *gorm.DB, items []models.OrderItem) error {
	for _, item := range items {
		err := tx.Model(&models.Product{}).
			Where("id = ?", item.ProductID).
			Update("stock_quantity", gorm.Expr("stock_quantity + ?", item.Quantity)).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// deliveryFee reads the flat fee and free-delivery threshold from the
// environment so storefronts can tune them without a deploy.
func deliveryFee(subtotal float64) float64 {
	if subtotal >= config.GetEnvFloat("FREE_DELIVERY_MIN", 50) {
		return 0
	}
	return config.GetEnvFloat("DELIVERY_FEE", 3.75)
}
