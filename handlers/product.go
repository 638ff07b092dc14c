package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"souq-backend/apperr"
	"souq-backend/models"
	"souq-backend/services"
	"souq-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxProductSlugAttempts = 100

// ProductHandler serves the public catalog reads through the catalog service
// and the admin product CRUD directly against the database.
type ProductHandler struct {
	DB         *gorm.DB
	Catalog    *services.CatalogService
	Categories *services.CategoryService
}

// GetProducts is the public catalog listing. Attribute filters arrive as
// attr[key]=value query parameters, e.g. ?attr[brand]=Apple&attr[ram]=8-16;
// keys outside the category's effective filter schema are ignored.
func (h *ProductHandler) GetProducts(c *gin.Context) {
	params, err := h.listParams(c)
	if err != nil {
		respondError(c, err)
		return
	}

	page, err := h.Catalog.List(c.Request.Context(), *params)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *ProductHandler) listParams(c *gin.Context) (*services.ListParams, error) {
	params := services.ListParams{
		Query:            strings.TrimSpace(c.Query("q")),
		Sort:             c.Query("sort"),
		IncludeSubtree:   c.DefaultQuery("include_subtree", "true") == "true",
		InStockOnly:      c.Query("in_stock") == "true",
		FeaturedOnly:     c.Query("featured") == "true",
		AttributeFilters: c.QueryMap("attr"),
	}
	params.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	params.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))

	if raw := c.Query("category_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, apperr.NotFound("category.categoryNotFound")
		}
		params.CategoryID = &id
	}
	if raw := c.Query("price_min"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			params.PriceMin = &v
		}
	}
	if raw := c.Query("price_max"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			params.PriceMax = &v
		}
	}

	return &params, nil
}

func (h *ProductHandler) Autocomplete(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	var categoryID *uuid.UUID
	if raw := c.Query("category_id"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			categoryID = &id
		}
	}

	suggestions := h.Catalog.Autocomplete(c.Query("q"), limit, categoryID)
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

func (h *ProductHandler) GetProductBySlug(c *gin.Context) {
	var product models.Product
	err := h.DB.Preload("Category").
		Where("slug = ? AND is_active = ?", c.Param("slug"), true).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, apperr.NotFound("product.productNotFound"))
			return
		}
		respondError(c, err)
		return
	}

	h.bumpViewCount(&product)
	c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) GetProduct(c *gin.Context) {
	id, ok := parseID(c, "id", "product.productNotFound")
	if !ok {
		return
	}

	var product models.Product
	err := h.DB.Preload("Category").
		Where("id = ? AND is_active = ?", id, true).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, apperr.NotFound("product.productNotFound"))
			return
		}
		respondError(c, err)
		return
	}

	h.bumpViewCount(&product)
	c.JSON(http.StatusOK, product)
}

// bumpViewCount records a public product view. The increment happens in SQL
// so concurrent readers never lose counts; a failure only costs the count.
func (h *ProductHandler) bumpViewCount(product *models.Product) {
	err := h.DB.Model(product).
		UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error
	if err != nil {
		log.Printf("Failed to increment view count for product %s: %v", product.ID, err)
		return
	}
	product.ViewCount++
}

// GetProductsAdmin lists products for the admin panel, inactive ones
// included, with category, name and active filters.
func (h *ProductHandler) GetProductsAdmin(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := h.DB.Model(&models.Product{})
	if raw := c.Query("category_id"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			query = query.Where("category_id = ?", id)
		}
	}
	if q := c.Query("q"); q != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(q)+"%")
	}
	if raw := c.Query("active"); raw != "" {
		query = query.Where("is_active = ?", raw == "true")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		respondError(c, err)
		return
	}

	var products []models.Product
	err := query.Preload("Category").Order("created_at DESC").
		Limit(limit).Offset((page - 1) * limit).
		Find(&products).Error
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"products":    products,
		"total":       total,
		"page":        page,
		"total_pages": totalPages(total, limit),
	})
}

func (h *ProductHandler) CreateProduct(c *gin.Context) {
	var req struct {
		Name           string              `json:"name" binding:"required"`
		NameAr         string              `json:"name_ar"`
		Description    string              `json:"description"`
		Price          float64             `json:"price" binding:"required,gt=0"`
		CompareAtPrice *float64            `json:"compare_at_price"`
		CategoryID     uuid.UUID           `json:"category_id" binding:"required"`
		Attributes     models.AttributeMap `json:"attributes"`
		StockQuantity  int                 `json:"stock_quantity" binding:"min=0"`
		IsActive       *bool               `json:"is_active"`
		IsFeatured     bool                `json:"is_featured"`
		IsSponsored    bool                `json:"is_sponsored"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if req.CompareAtPrice != nil && *req.CompareAtPrice < req.Price {
		respondError(c, apperr.Validation("product.invalidComparePrice", map[string]string{
			"compare_at_price": "must be greater than or equal to price",
		}))
		return
	}

	if _, err := h.Categories.Get(req.CategoryID); err != nil {
		respondError(c, err)
		return
	}

	slug, err := uniqueProductSlug(h.DB, req.Name, nil)
	if err != nil {
		respondError(c, err)
		return
	}

	product := models.Product{
		Name:           req.Name,
		NameAr:         req.NameAr,
		Slug:           slug,
		Description:    req.Description,
		Price:          req.Price,
		CompareAtPrice: req.CompareAtPrice,
		CategoryID:     req.CategoryID,
		Attributes:     req.Attributes,
		StockQuantity:  req.StockQuantity,
		IsActive:       true,
		IsFeatured:     req.IsFeatured,
		IsSponsored:    req.IsSponsored,
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}

	if err := h.DB.Create(&product).Error; err != nil {
		if services.IsDuplicateKey(err) {
			respondError(c, apperr.Conflict("product.slugTaken"))
			return
		}
		respondError(c, err)
		return
	}

	product.InStock = product.StockQuantity > 0
	c.JSON(http.StatusCreated, product)
}

func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	id, ok := parseID(c, "id", "product.productNotFound")
	if !ok {
		return
	}

	var product models.Product
	if err := h.DB.First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, apperr.NotFound("product.productNotFound"))
			return
		}
		respondError(c, err)
		return
	}

	var req struct {
		Name           *string             `json:"name"`
		NameAr         *string             `json:"name_ar"`
		Description    *string             `json:"description"`
		Price          *float64            `json:"price"`
		CompareAtPrice *float64            `json:"compare_at_price"`
		CategoryID     *uuid.UUID          `json:"category_id"`
		Attributes     models.AttributeMap `json:"attributes"`
		StockQuantity  *int                `json:"stock_quantity"`
		IsActive       *bool               `json:"is_active"`
		IsFeatured     *bool               `json:"is_featured"`
		IsSponsored    *bool               `json:"is_sponsored"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if req.Price != nil && *req.Price <= 0 {
		respondError(c, apperr.Validation("common.validationFailed", map[string]string{
			"price": "must be greater than 0",
		}))
		return
	}
	if req.StockQuantity != nil && *req.StockQuantity < 0 {
		respondError(c, apperr.Validation("common.validationFailed", map[string]string{
			"stock_quantity": "must be at least 0",
		}))
		return
	}

	// Compare-at is validated against the price the product will end up with.
	effectivePrice := product.Price
	if req.Price != nil {
		effectivePrice = *req.Price
	}
	effectiveCompare := product.CompareAtPrice
	if req.CompareAtPrice != nil {
		effectiveCompare = req.CompareAtPrice
	}
	if effectiveCompare != nil && *effectiveCompare < effectivePrice {
		respondError(c, apperr.Validation("product.invalidComparePrice", map[string]string{
			"compare_at_price": "must be greater than or equal to price",
		}))
		return
	}

	if req.CategoryID != nil && *req.CategoryID != product.CategoryID {
		if _, err := h.Categories.Get(*req.CategoryID); err != nil {
			respondError(c, err)
			return
		}
		product.CategoryID = *req.CategoryID
	}

	if req.Name != nil && *req.Name != product.Name {
		slug, err := uniqueProductSlug(h.DB, *req.Name, &product.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		product.Name = *req.Name
		product.Slug = slug
	}
	if req.NameAr != nil {
		product.NameAr = *req.NameAr
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Price != nil {
		product.Price = *req.Price
	}
	if req.CompareAtPrice != nil {
		product.CompareAtPrice = req.CompareAtPrice
	}
	if req.Attributes != nil {
		product.Attributes = req.Attributes
	}
	if req.StockQuantity != nil {
		product.StockQuantity = *req.StockQuantity
	}
	if req.IsActive != nil {
		product.IsActive = *req.IsActive
	}
	if req.IsFeatured != nil {
		product.IsFeatured = *req.IsFeatured
	}
	if req.IsSponsored != nil {
		product.IsSponsored = *req.IsSponsored
	}

	if err := h.DB.Save(&product).Error; err != nil {
		if services.IsDuplicateKey(err) {
			respondError(c, apperr.Conflict("product.slugTaken"))
			return
		}
		respondError(c, err)
		return
	}

	product.InStock = product.StockQuantity > 0
	c.JSON(http.StatusOK, product)
}

// DeleteProduct soft-deletes the product and clears it out of carts and
// favourites. Order items keep their snapshot and are untouched.
func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	id, ok := parseID(c, "id", "product.productNotFound")
	if !ok {
		return
	}

	var product models.Product
	if err := h.DB.First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, apperr.NotFound("product.productNotFound"))
			return
		}
		respondError(c, err)
		return
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("product_id = ?", id).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", id).Delete(&models.Favourite{}).Error; err != nil {
			return err
		}
		return tx.Delete(&product).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Product deleted"})
}

// uniqueProductSlug mirrors the category slug strategy: bare base first,
// then numeric suffixes, bounded probing. excludeID ignores the product
// being renamed. The probe is unscoped because soft-deleted rows still hold
// their slug in the unique index.
func uniqueProductSlug(db *gorm.DB, name string, excludeID *uuid.UUID) (string, error) {
	base := utils.Slugify(name)
	if base == "" {
		base = "product"
	}

	for attempt := 0; attempt < maxProductSlugAttempts; attempt++ {
		candidate := base
		if attempt > 0 {
			candidate = fmt.Sprintf("%s-%d", base, attempt)
		}
		var count int64
		query := db.Unscoped().Model(&models.Product{}).Where("slug = ?", candidate)
		if excludeID != nil {
			query = query.Where("id <> ?", *excludeID)
		}
		if err := query.Count(&count).Error; err != nil {
			return "", apperr.Internal("common.internalError", err)
		}
		if count == 0 {
			return candidate, nil
		}
	}
	return "", apperr.Internal("product.slugGenerationFailed", nil)
}
