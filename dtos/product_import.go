package dtos

import "github.com/google/uuid"

// ProductImportRequest is the payload for the async bulk import endpoint.
type ProductImportRequest struct {
	Products      []ProductImportItem `json:"products" binding:"required,min=1,max=5000,dive"`
	DeleteMissing bool                `json:"delete_missing"` // If true, delete products not in import (default false)
}

// ProductImportItem represents a single product row in the import. Rows
// without an ID are matched to existing products by the slug derived from
// their name, so re-running an import updates instead of duplicating.
type ProductImportItem struct {
	ID             *string                `json:"id"`
	Name           string                 `json:"name" binding:"required"`
	NameAr         string                 `json:"name_ar"`
	Description    string                 `json:"description"`
	Price          float64                `json:"price" binding:"required,gt=0"`
	CompareAtPrice *float64               `json:"compare_at_price"`
	CategoryID     string                 `json:"category_id" binding:"required"`
	Attributes     map[string]interface{} `json:"attributes"`
	StockQuantity  int                    `json:"stock_quantity" binding:"min=0"`
	IsActive       *bool                  `json:"is_active"`
	IsFeatured     bool                   `json:"is_featured"`
	IsSponsored    bool                   `json:"is_sponsored"`
}

// ProductOrderCount represents the count of orders per product (for deletion safety)
type ProductOrderCount struct {
	ProductID uuid.UUID `json:"product_id"`
	Count     int64     `json:"count"`
}
