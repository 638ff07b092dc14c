package models

import (
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CouponType string

const (
	CouponPercent CouponType = "percent"
	CouponFixed   CouponType = "fixed"
)

type Coupon struct {
	ID          uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Code        string         `gorm:"uniqueIndex;not null" json:"code"` // stored uppercase
	Type        CouponType     `gorm:"not null" json:"type"`
	Value       float64        `gorm:"not null" json:"value"`
	MinSubtotal float64        `gorm:"default:0" json:"min_subtotal"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	IsActive    bool           `gorm:"not null" json:"is_active"`
	UsageLimit  int            `gorm:"default:0" json:"usage_limit"` // 0 means unlimited
	UsedCount   int            `gorm:"default:0" json:"used_count"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (c *Coupon) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// DiscountFor computes the discount this coupon grants on a subtotal,
// rounded to cents and never exceeding the subtotal itself.
func (c *Coupon) DiscountFor(subtotal float64) float64 {
	var discount float64
	switch c.Type {
	case CouponPercent:
		discount = subtotal * c.Value / 100
	case CouponFixed:
		discount = c.Value
	}
	if discount > subtotal {
		discount = subtotal
	}
	return math.Round(discount*100) / 100
}
