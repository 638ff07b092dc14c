package handlers

import (
	"net/http"

	"souq-backend/models"
	"souq-backend/services"

	"github.com/gin-gonic/gin"
)

// AttributeHandler manages the attribute definitions declared directly on a
// category. The public effective (inherited) view is served by
// CategoryHandler.GetFilters.
type AttributeHandler struct {
	Attributes *services.AttributeService
}

func (h *AttributeHandler) GetDefinitions(c *gin.Context) {
	id, ok := parseID(c, "categoryId", "category.categoryNotFound")
	if !ok {
		return
	}

	definitions, err := h.Attributes.RawDefinitions(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"definitions": definitions})
}

// PutDefinitions replaces the category's own definition list wholesale.
// There is no per-definition patching; clients send the full list.
func (h *AttributeHandler) PutDefinitions(c *gin.Context) {
	id, ok := parseID(c, "categoryId", "category.categoryNotFound")
	if !ok {
		return
	}

	var req struct {
		Definitions models.AttributeDefinitionList `json:"definitions" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	definitions, err := h.Attributes.Upsert(id, req.Definitions)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"definitions": definitions})
}

func (h *AttributeHandler) DeleteDefinitions(c *gin.Context) {
	id, ok := parseID(c, "categoryId", "category.categoryNotFound")
	if !ok {
		return
	}

	if err := h.Attributes.Delete(id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Attribute definitions deleted"})
}
