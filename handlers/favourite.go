package handlers

import (
	"errors"
	"net/http"

	"souq-backend/apperr"
	"souq-backend/models"
	"souq-backend/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FavouriteHandler struct {
	DB *gorm.DB
}

func (h *FavouriteHandler) GetFavourites(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	var favourites []models.Favourite
	err := h.DB.Preload("Product").Preload("Product.Category").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&favourites).Error
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"favourites": favourites})
}

// AddFavourite is idempotent: favouriting a product twice returns the
// existing row instead of erroring.
func (h *FavouriteHandler) AddFavourite(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	var req struct {
		ProductID uuid.UUID `json:"product_id" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	var product models.Product
	err := h.DB.Where("id = ? AND is_active = ?", req.ProductID, true).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, apperr.NotFound("product.productNotFound"))
			return
		}
		respondError(c, err)
		return
	}

	var existing models.Favourite
	err = h.DB.Where("user_id = ? AND product_id = ?", userID, req.ProductID).First(&existing).Error
	if err == nil {
		existing.Product = product
		c.JSON(http.StatusOK, existing)
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, err)
		return
	}

	favourite := models.Favourite{UserID: userID, ProductID: req.ProductID}
	if err := h.DB.Create(&favourite).Error; err != nil {
		// Concurrent double-tap: the unique index won the race for us.
		if services.IsDuplicateKey(err) {
			h.DB.Where("user_id = ? AND product_id = ?", userID, req.ProductID).First(&favourite)
			favourite.Product = product
			c.JSON(http.StatusOK, favourite)
			return
		}
		respondError(c, err)
		return
	}

	favourite.Product = product
	c.JSON(http.StatusCreated, favourite)
}

func (h *FavouriteHandler) RemoveFavourite(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	productID, ok := parseID(c, "productId", "favourite.favouriteNotFound")
	if !ok {
		return
	}

	result := h.DB.Where("user_id = ? AND product_id = ?", userID, productID).Delete(&models.Favourite{})
	if result.Error != nil {
		respondError(c, result.Error)
		return
	}
	if result.RowsAffected == 0 {
		respondError(c, apperr.NotFound("favourite.favouriteNotFound"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Removed from favourites"})
}
