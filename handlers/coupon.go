package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"souq-backend/apperr"
	"souq-backend/models"
	"souq-backend/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type CouponHandler struct {
	DB *gorm.DB
}

// PreviewCoupon is the public validity check storefronts call before
// checkout. The subtotal query parameter is required so minimum-spend rules
// can be evaluated; nothing is redeemed here.
func (h *CouponHandler) PreviewCoupon(c *gin.Context) {
	subtotal, err := strconv.ParseFloat(c.Query("subtotal"), 64)
	if err != nil || subtotal < 0 {
		respondError(c, apperr.Validation("common.validationFailed", map[string]string{
			"subtotal": "subtotal query parameter is required",
		}))
		return
	}

	coupon, appErr := h.findCoupon(c.Param("code"))
	if appErr != nil {
		respondError(c, appErr)
		return
	}

	if err := validateCoupon(coupon, subtotal, time.Now()); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":         coupon.Code,
		"type":         coupon.Type,
		"value":        coupon.Value,
		"min_subtotal": coupon.MinSubtotal,
		"discount":     coupon.DiscountFor(subtotal),
	})
}

func (h *CouponHandler) ListCoupons(c *gin.Context) {
	var coupons []models.Coupon
	if err := h.DB.Order("created_at DESC").Find(&coupons).Error; err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"coupons": coupons})
}

func (h *CouponHandler) CreateCoupon(c *gin.Context) {
	var req struct {
		Code        string     `json:"code" binding:"required"`
		Type        string     `json:"type" binding:"required,oneof=percent fixed"`
		Value       float64    `json:"value" binding:"required,gt=0"`
		MinSubtotal float64    `json:"min_subtotal" binding:"min=0"`
		ExpiresAt   *time.Time `json:"expires_at"`
		IsActive    *bool      `json:"is_active"`
		UsageLimit  int        `json:"usage_limit" binding:"min=0"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if req.Type == string(models.CouponPercent) && req.Value > 100 {
		respondError(c, apperr.Validation("common.validationFailed", map[string]string{
			"value": "percent coupons cannot exceed 100",
		}))
		return
	}

	coupon := models.Coupon{
		Code:        strings.ToUpper(strings.TrimSpace(req.Code)),
		Type:        models.CouponType(req.Type),
		Value:       req.Value,
		MinSubtotal: req.MinSubtotal,
		ExpiresAt:   req.ExpiresAt,
		IsActive:    true,
		UsageLimit:  req.UsageLimit,
	}
	if req.IsActive != nil {
		coupon.IsActive = *req.IsActive
	}

	if err := h.DB.Create(&coupon).Error; err != nil {
		if services.IsDuplicateKey(err) {
			respondError(c, apperr.Conflict("coupon.codeTaken"))
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, coupon)
}

// UpdateCoupon edits a coupon's terms. The code itself is immutable because
// orders snapshot it at checkout.
func (h *CouponHandler) UpdateCoupon(c *gin.Context) {
	id, ok := parseID(c, "id", "coupon.couponNotFound")
	if !ok {
		return
	}

	var coupon models.Coupon
	if err := h.DB.First(&coupon, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, apperr.NotFound("coupon.couponNotFound"))
			return
		}
		respondError(c, err)
		return
	}

	var req struct {
		Type        *string    `json:"type"`
		Value       *float64   `json:"value"`
		MinSubtotal *float64   `json:"min_subtotal"`
		ExpiresAt   *time.Time `json:"expires_at"`
		IsActive    *bool      `json:"is_active"`
		UsageLimit  *int       `json:"usage_limit"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if req.Type != nil {
		if *req.Type != string(models.CouponPercent) && *req.Type != string(models.CouponFixed) {
			respondError(c, apperr.Validation("common.validationFailed", map[string]string{
				"type": "must be one of: percent fixed",
			}))
			return
		}
		coupon.Type = models.CouponType(*req.Type)
	}
	if req.Value != nil {
		if *req.Value <= 0 {
			respondError(c, apperr.Validation("common.validationFailed", map[string]string{
				"value": "must be greater than 0",
			}))
			return
		}
		coupon.Value = *req.Value
	}
	if coupon.Type == models.CouponPercent && coupon.Value > 100 {
		respondError(c, apperr.Validation("common.validationFailed", map[string]string{
			"value": "percent coupons cannot exceed 100",
		}))
		return
	}
	if req.MinSubtotal != nil {
		coupon.MinSubtotal = *req.MinSubtotal
	}
	if req.ExpiresAt != nil {
		coupon.ExpiresAt = req.ExpiresAt
	}
	if req.IsActive != nil {
		coupon.IsActive = *req.IsActive
	}
	if req.UsageLimit != nil {
		coupon.UsageLimit = *req.UsageLimit
	}

	if err := h.DB.Save(&coupon).Error; err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, coupon)
}

func (h *CouponHandler) DeleteCoupon(c *gin.Context) {
	id, ok := parseID(c, "id", "coupon.couponNotFound")
	if !ok {
		return
	}

	result := h.DB.Delete(&models.Coupon{}, "id = ?", id)
	if result.Error != nil {
		respondError(c, result.Error)
		return
	}
	if result.RowsAffected == 0 {
		respondError(c, apperr.NotFound("coupon.couponNotFound"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Coupon deleted"})
}

// findCoupon looks a coupon up by its (case-insensitive) code.
func (h *CouponHandler) findCoupon(code string) (*models.Coupon, *apperr.Error) {
	var coupon models.Coupon
	err := h.DB.Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("coupon.couponNotFound")
		}
		return nil, apperr.Internal("common.internalError", err)
	}
	return &coupon, nil
}

// validateCoupon applies the redemption rules shared by the public preview
// and checkout. Exhaustion is also re-checked atomically at redemption time;
// this early answer just gives a better error.
func validateCoupon(coupon *models.Coupon, subtotal float64, now time.Time) error {
	if !coupon.IsActive {
		return apperr.Conflict("coupon.couponInactive")
	}
	if coupon.ExpiresAt != nil && now.After(*coupon.ExpiresAt) {
		return apperr.Conflict("coupon.couponExpired")
	}
	if coupon.UsageLimit > 0 && coupon.UsedCount >= coupon.UsageLimit {
		return apperr.Conflict("coupon.couponExhausted")
	}
	if subtotal < coupon.MinSubtotal {
		return apperr.Conflict("coupon.minSubtotalNotMet")
	}
	return nil
}
