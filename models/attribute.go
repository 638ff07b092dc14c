package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AttributeType string

const (
	AttributeSingleSelect AttributeType = "single_select"
	AttributeMultiSelect  AttributeType = "multi_select"
	AttributeNumericRange AttributeType = "numeric_range"
)

// AttributeDefinition describes one filterable product attribute as declared
// on a category. Definitions are embedded in the owning category's attribute
// set; Key is the merge identity across the ancestor chain.
type AttributeDefinition struct {
	Key        string        `json:"key"`
	Label      string        `json:"label"`
	LabelAr    string        `json:"label_ar,omitempty"`
	Type       AttributeType `json:"type"`
	Options    []string      `json:"options,omitempty"`
	Min        *float64      `json:"min,omitempty"`
	Max        *float64      `json:"max,omitempty"`
	Unit       string        `json:"unit,omitempty"`
	Filterable bool          `json:"filterable"`
	Required   bool          `json:"required"`
	SortOrder  int           `json:"sort_order"`
}

// AttributeDefinitionList is stored as a single JSON document column and
// always written whole (replace, never merge).
type AttributeDefinitionList []AttributeDefinition

func (l AttributeDefinitionList) Value() (driver.Value, error) {
	if l == nil {
		l = AttributeDefinitionList{}
	}
	return json.Marshal(l)
}

func (l *AttributeDefinitionList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	}
	return fmt.Errorf("unsupported type %T for AttributeDefinitionList", value)
}

// CategoryAttributeSet holds the attribute definitions declared directly on
// one category. At most one row per category.
type CategoryAttributeSet struct {
	ID          uuid.UUID               `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	CategoryID  uuid.UUID               `gorm:"type:uuid;not null;uniqueIndex" json:"category_id"`
	Category    *Category               `gorm:"foreignKey:CategoryID" json:"-"`
	Definitions AttributeDefinitionList `gorm:"type:jsonb" json:"definitions"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

func (s *CategoryAttributeSet) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
