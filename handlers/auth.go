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
	"souq-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthHandler struct {
	DB *gorm.DB
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=8"`
		Name     string `json:"name" binding:"required"`
		Phone    string `json:"phone"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(c, apperr.Internal("common.internalError", err))
		return
	}

	user := models.User{
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Password: string(hashedPassword),
		Name:     req.Name,
		Phone:    req.Phone,
		Role:     "customer",
	}

	if err := h.DB.Create(&user).Error; err != nil {
		if services.IsDuplicateKey(err) {
			respondError(c, apperr.Conflict("auth.emailTaken"))
			return
		}
		respondError(c, err)
		return
	}

	token, refreshToken, err := h.issueTokens(&user)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SendWelcomeEmail(user.Email, user.Name)

	c.JSON(http.StatusCreated, gin.H{
		"token":         token,
		"refresh_token": refreshToken,
		"user":          user,
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	var user models.User
	err := h.DB.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondKey(c, http.StatusUnauthorized, "auth.invalidCredentials")
			return
		}
		respondError(c, err)
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		respondKey(c, http.StatusUnauthorized, "auth.invalidCredentials")
		return
	}

	if user.IsBlocked {
		respondKey(c, http.StatusForbidden, "auth.accountBlocked")
		return
	}

	token, refreshToken, err := h.issueTokens(&user)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":         token,
		"refresh_token": refreshToken,
		"user":          user,
	})
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair is issued, so a stolen token stops working the moment its owner uses
// theirs again.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if _, err := utils.ValidateRefreshToken(req.RefreshToken); err != nil {
		respondKey(c, http.StatusUnauthorized, "auth.refreshTokenInvalid")
		return
	}

	var record models.RefreshToken
	err := h.DB.Where("token = ? AND revoked_at IS NULL AND expires_at > ?", req.RefreshToken, time.Now()).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondKey(c, http.StatusUnauthorized, "auth.refreshTokenInvalid")
			return
		}
		respondError(c, err)
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", record.UserID).Error; err != nil {
		respondKey(c, http.StatusUnauthorized, "auth.refreshTokenInvalid")
		return
	}

	if user.IsBlocked {
		respondKey(c, http.StatusForbidden, "auth.accountBlocked")
		return
	}

	now := time.Now()
	if err := h.DB.Model(&record).Update("revoked_at", &now).Error; err != nil {
		respondError(c, err)
		return
	}

	token, refreshToken, err := h.issueTokens(&user)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":         token,
		"refresh_token": refreshToken,
	})
}

func (h *AuthHandler) GetProfile(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		respondError(c, apperr.NotFound("auth.userNotFound"))
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	var req struct {
		Name  *string `json:"name"`
		Phone *string `json:"phone"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		respondError(c, apperr.NotFound("auth.userNotFound"))
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}

	if len(updates) > 0 {
		if err := h.DB.Model(&user).Updates(updates).Error; err != nil {
			respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, user)
}

// ListUsers is the admin user directory with optional role filter and
// email/name search.
func (h *AuthHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := h.DB.Model(&models.User{})
	if q := c.Query("q"); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(name) LIKE ?", like, like)
	}
	if role := c.Query("role"); role != "" {
		query = query.Where("role = ?", role)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		respondError(c, err)
		return
	}

	var users []models.User
	err := query.Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&users).Error
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users":       users,
		"total":       total,
		"page":        page,
		"total_pages": totalPages(total, limit),
	})
}

// BlockUser toggles a customer's blocked flag. A blocked user cannot log in
// or refresh; already-issued access tokens run out within their 2h lifetime.
func (h *AuthHandler) BlockUser(c *gin.Context) {
	id, ok := parseID(c, "id", "user.userNotFound")
	if !ok {
		return
	}

	var req struct {
		Blocked *bool `json:"blocked" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	adminID := c.MustGet("user_id").(uuid.UUID)
	if id == adminID && *req.Blocked {
		respondError(c, apperr.Conflict("user.cannotBlockSelf"))
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, apperr.NotFound("user.userNotFound"))
			return
		}
		respondError(c, err)
		return
	}

	if err := h.DB.Model(&user).Update("is_blocked", *req.Blocked).Error; err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// issueTokens creates an access/refresh pair and persists the refresh token
// so it can be rotated and revoked.
func (h *AuthHandler) issueTokens(user *models.User) (string, string, error) {
	token, err := utils.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return "", "", err
	}

	refreshToken, err := utils.GenerateRefreshToken(user.ID, user.Email, user.Role)
	if err != nil {
		return "", "", err
	}

	record := models.RefreshToken{
		UserID:    user.ID,
		Token:     refreshToken,
		ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	}
	if err := h.DB.Create(&record).Error; err != nil {
		return "", "", err
	}

	return token, refreshToken, nil
}
