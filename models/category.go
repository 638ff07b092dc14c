package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Category is a node in the self-referential category tree. ParentID is a
// back-reference only; children are found by querying on parent_id.
type Category struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Name      string         `gorm:"not null;index" json:"name"`
	NameAr    string         `json:"name_ar,omitempty"`
	Slug      string         `gorm:"uniqueIndex;not null" json:"slug"`
	ParentID  *uuid.UUID     `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	Parent    *Category      `gorm:"foreignKey:ParentID" json:"-"`
	Children  []Category     `gorm:"foreignKey:ParentID" json:"children,omitempty"`
	IsActive  bool           `gorm:"not null" json:"is_active"` // no DB default: GORM drops zero-value fields that carry one
	SortOrder int            `gorm:"default:0" json:"sort_order"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
