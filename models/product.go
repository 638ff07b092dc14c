package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AttributeMap holds a product's free-form attribute values keyed by the
// attribute definition key. Values are untyped on purpose: definitions can
// change after products are written, and the catalog query layer only ever
// filters on keys present in the category's effective schema.
type AttributeMap map[string]interface{}

func (m AttributeMap) Value() (driver.Value, error) {
	if m == nil {
		m = AttributeMap{}
	}
	return json.Marshal(m)
}

func (m *AttributeMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	}
	return fmt.Errorf("unsupported type %T for AttributeMap", value)
}

type Product struct {
	ID             uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Name           string         `gorm:"not null;index" json:"name"`
	NameAr         string         `json:"name_ar,omitempty"`
	Slug           string         `gorm:"uniqueIndex;not null" json:"slug"`
	Description    string         `gorm:"type:text" json:"description"`
	Price          float64        `gorm:"not null" json:"price"`
	CompareAtPrice *float64       `json:"compare_at_price,omitempty"`
	CategoryID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"category_id"`
	Category       *Category      `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Attributes     AttributeMap   `gorm:"type:jsonb" json:"attributes"`
	StockQuantity  int            `gorm:"default:0" json:"stock_quantity"`
	InStock        bool           `gorm:"-" json:"in_stock"` // derived, never stored
	IsActive       bool           `gorm:"not null" json:"is_active"`
	IsFeatured     bool           `gorm:"default:false" json:"is_featured"`
	IsSponsored    bool           `gorm:"default:false" json:"is_sponsored"`
	ViewCount      int64          `gorm:"default:0" json:"view_count"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (p *Product) AfterFind(tx *gorm.DB) error {
	p.InStock = p.StockQuantity > 0
	return nil
}
