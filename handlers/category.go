package handlers

import (
	"net/http"
	"strings"

	"souq-backend/apperr"
	"souq-backend/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CategoryHandler serves the public category tree and the admin CRUD
// surface. All hierarchy rules (cycle prevention, slug generation, cascaded
// deactivation) live in the category service.
type CategoryHandler struct {
	Categories *services.CategoryService
	Attributes *services.AttributeService
}

// GetTree returns the active category hierarchy, roots first, children
// nested and sorted.
func (h *CategoryHandler) GetTree(c *gin.Context) {
	tree, err := h.Categories.Tree()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"categories": tree})
}

// ResolvePath resolves a nested slug path like /electronics/laptops into the
// category, its active children and its breadcrumb.
func (h *CategoryHandler) ResolvePath(c *gin.Context) {
	raw := strings.Trim(c.Param("path"), "/")
	if raw == "" {
		respondError(c, apperr.NotFound("category.categoryNotFound"))
		return
	}

	resolution, err := h.Categories.ResolvePath(strings.Split(raw, "/"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resolution)
}

func (h *CategoryHandler) GetCategory(c *gin.Context) {
	id, ok := parseID(c, "id", "category.categoryNotFound")
	if !ok {
		return
	}

	category, err := h.Categories.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}

	// The public surface only knows active categories.
	if !category.IsActive {
		respondError(c, apperr.NotFound("category.categoryNotFound"))
		return
	}

	c.JSON(http.StatusOK, category)
}

func (h *CategoryHandler) GetBreadcrumb(c *gin.Context) {
	id, ok := parseID(c, "id", "category.categoryNotFound")
	if !ok {
		return
	}

	breadcrumb, err := h.Categories.Breadcrumb(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"breadcrumb": breadcrumb})
}

// GetFilters returns the category's effective filter schema: its own
// filterable attribute definitions merged with everything inherited from its
// ancestors.
func (h *CategoryHandler) GetFilters(c *gin.Context) {
	id, ok := parseID(c, "id", "category.categoryNotFound")
	if !ok {
		return
	}

	filters, err := h.Attributes.EffectiveFilters(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"filters": filters})
}

// ListCategories is the admin view: a flat list including inactive nodes.
func (h *CategoryHandler) ListCategories(c *gin.Context) {
	categories, err := h.Categories.ListAll()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

type categoryRequest struct {
	Name      string     `json:"name" binding:"required"`
	NameAr    string     `json:"name_ar"`
	ParentID  *uuid.UUID `json:"parent_id"`
	SortOrder int        `json:"sort_order"`
	IsActive  *bool      `json:"is_active"`
}

func (h *CategoryHandler) CreateCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	category, err := h.Categories.Create(services.CategoryInput{
		Name:      req.Name,
		NameAr:    req.NameAr,
		ParentID:  req.ParentID,
		SortOrder: req.SortOrder,
		IsActive:  req.IsActive,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, category)
}

func (h *CategoryHandler) UpdateCategory(c *gin.Context) {
	id, ok := parseID(c, "id", "category.categoryNotFound")
	if !ok {
		return
	}

	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	category, err := h.Categories.Update(id, services.CategoryInput{
		Name:      req.Name,
		NameAr:    req.NameAr,
		ParentID:  req.ParentID,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, category)
}

// DeactivateCategory hides the category and its whole subtree from the
// public surface.
func (h *CategoryHandler) DeactivateCategory(c *gin.Context) {
	id, ok := parseID(c, "id", "category.categoryNotFound")
	if !ok {
		return
	}

	if err := h.Categories.Deactivate(id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Category deactivated"})
}

// ActivateCategory reactivates a single node. Descendants deactivated by a
// cascade stay inactive until activated one by one.
func (h *CategoryHandler) ActivateCategory(c *gin.Context) {
	id, ok := parseID(c, "id", "category.categoryNotFound")
	if !ok {
		return
	}

	if err := h.Categories.Activate(id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Category activated"})
}

func (h *CategoryHandler) DeleteCategory(c *gin.Context) {
	id, ok := parseID(c, "id", "category.categoryNotFound")
	if !ok {
		return
	}

	if err := h.Categories.Delete(id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Category deleted"})
}
