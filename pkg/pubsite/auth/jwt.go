package auth

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims represents the JWT claims
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Role   string    `json:"role"`
	jwt.RegisteredClaims
}

// TokenConfig controls how admin tokens are signed
type TokenConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

var (
	tokenMu     sync.RWMutex
	tokenConfig = defaultTokenConfig()
)

// defaultTokenConfig reads JWT_SECRET for development setups that skip Configure.
func defaultTokenConfig() TokenConfig {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		// Default for development only - should be set in production
		secret = "pubsite-dev-secret-change-in-production"
	}
	return TokenConfig{Secret: secret, Issuer: "pubsite", TTL: 24 * time.Hour}
}

// Configure replaces the signing settings. Zero fields keep their current value.
func Configure(cfg TokenConfig) {
	tokenMu.Lock()
	defer tokenMu.Unlock()
	if cfg.Secret != "" {
		tokenConfig.Secret = cfg.Secret
	}
	if cfg.Issuer != "" {
		tokenConfig.Issuer = cfg.Issuer
	}
	if cfg.TTL > 0 {
		tokenConfig.TTL = cfg.TTL
	}
}

func currentTokenConfig() TokenConfig {
	tokenMu.RLock()
	defer tokenMu.RUnlock()
	return tokenConfig
}

// GenerateToken creates a new JWT token for a user
func GenerateToken(userID uuid.UUID, email string, role string) (string, error) {
	cfg := currentTokenConfig()
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    cfg.Issuer,
			Subject:   userID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}

// ValidateToken validates a JWT token and returns the claims
func ValidateToken(tokenString string) (*Claims, error) {
	cfg := currentTokenConfig()
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(cfg.Secret), nil
	}, jwt.WithIssuer(cfg.Issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
