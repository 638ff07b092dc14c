package utils

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuers distinguish the two token kinds, so a refresh token can never
// pass for an access token even though both share the same secret.
const (
	accessIssuer  = "souq-backend"
	refreshIssuer = "souq-refresh"

	accessTTL  = 2 * time.Hour
	refreshTTL = 7 * 24 * time.Hour
)

type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Role   string    `json:"role"`
	jwt.RegisteredClaims
}

func getJWTSecret() string {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		panic("JWT_SECRET is not set; refusing to sign tokens with an empty key")
	}
	return secret
}

// GenerateToken issues the short-lived access token API requests carry.
func GenerateToken(userID uuid.UUID, email, role string) (string, error) {
	return signToken(userID, email, role, accessIssuer, accessTTL)
}

// GenerateRefreshToken issues the long-lived token the rotation endpoint
// exchanges for a fresh pair.
func GenerateRefreshToken(userID uuid.UUID, email, role string) (string, error) {
	return signToken(userID, email, role, refreshIssuer, refreshTTL)
}

func signToken(userID uuid.UUID, email, role, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(getJWTSecret()))
}

// ValidateToken parses and verifies an access token.
func ValidateToken(tokenString string) (*Claims, error) {
	return parseClaims(tokenString, accessIssuer)
}

// ValidateRefreshToken parses and verifies a refresh token. Access tokens
// fail the issuer check, so they cannot be replayed against the rotation
// endpoint.
func ValidateRefreshToken(tokenString string) (*Claims, error) {
	return parseClaims(tokenString, refreshIssuer)
}

func parseClaims(tokenString, issuer string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(getJWTSecret()), nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	return claims, nil
}
