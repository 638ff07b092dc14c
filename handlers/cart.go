package handlers

import (
	"errors"
	"math"
	"net/http"

	"souq-backend/apperr"
	"souq-backend/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CartHandler struct {
	DB *gorm.DB
}

func (h *CartHandler) GetCart(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	var items []models.CartItem
	err := h.DB.Preload("Product").Preload("Product.Category").
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		respondError(c, err)
		return
	}

	var subtotal float64
	for _, item := range items {
		subtotal += item.Product.Price * float64(item.Quantity)
	}

	c.JSON(http.StatusOK, gin.H{
		"items":    items,
		"subtotal": math.Round(subtotal*100) / 100,
	})
}

// AddToCart adds a product or merges quantities when it is already in the
// cart. The stock check here is advisory; checkout re-verifies atomically.
func (h *CartHandler) AddToCart(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	var req struct {
		ProductID uuid.UUID `json:"product_id" binding:"required"`
		Quantity  int       `json:"quantity" binding:"required,min=1"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	var product models.Product
	if err := h.DB.First(&product, "id = ?", req.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, apperr.NotFound("product.productNotFound"))
			return
		}
		respondError(c, err)
		return
	}

	if !product.IsActive {
		respondError(c, apperr.Conflict("cart.productUnavailable"))
		return
	}

	var item models.CartItem
	err := h.DB.Where("user_id = ? AND product_id = ?", userID, req.ProductID).First(&item).Error
	switch {
	case err == nil:
		newQuantity := item.Quantity + req.Quantity
		if newQuantity > product.StockQuantity {
			respondError(c, apperr.Conflict("order.insufficientStock"))
			return
		}
		if err := h.DB.Model(&item).Update("quantity", newQuantity).Error; err != nil {
			respondError(c, err)
			return
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if req.Quantity > product.StockQuantity {
			respondError(c, apperr.Conflict("order.insufficientStock"))
			return
		}
		item = models.CartItem{UserID: userID, ProductID: req.ProductID, Quantity: req.Quantity}
		if err := h.DB.Create(&item).Error; err != nil {
			respondError(c, err)
			return
		}
	default:
		respondError(c, err)
		return
	}

	item.Product = product
	c.JSON(http.StatusOK, item)
}

func (h *CartHandler) UpdateCartItem(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	id, ok := parseID(c, "id", "cart.itemNotFound")
	if !ok {
		return
	}

	var req struct {
		Quantity int `json:"quantity" binding:"required,min=1"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	var item models.CartItem
	err := h.DB.Preload("Product").Where("id = ? AND user_id = ?", id, userID).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, apperr.NotFound("cart.itemNotFound"))
			return
		}
		respondError(c, err)
		return
	}

	if req.Quantity > item.Product.StockQuantity {
		respondError(c, apperr.Conflict("order.insufficientStock"))
		return
	}

	if err := h.DB.Model(&item).Update("quantity", req.Quantity).Error; err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

func (h *CartHandler) RemoveFromCart(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	id, ok := parseID(c, "id", "cart.itemNotFound")
	if !ok {
		return
	}

	result := h.DB.Where("id = ? AND user_id = ?", id, userID).Delete(&models.CartItem{})
	if result.Error != nil {
		respondError(c, result.Error)
		return
	}
	if result.RowsAffected == 0 {
		respondError(c, apperr.NotFound("cart.itemNotFound"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Removed from cart"})
}

func (h *CartHandler) ClearCart(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	if err := h.DB.Where("user_id = ?", userID).Delete(&models.CartItem{}).Error; err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Cart emptied"})
}
