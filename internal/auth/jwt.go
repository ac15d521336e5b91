package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer   = "dex-perp-bot"
	tokenAudience = "learning-api"
)

// JWTManager handles JWT token operations
type JWTManager struct {
	secret              []byte
	accessTokenDuration time.Duration
	now                 func() time.Time
}

// Claims represents the JWT claims
type Claims struct {
	OperatorClaims
	jwt.RegisteredClaims
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secret string, accessDuration time.Duration) *JWTManager {
	return &JWTManager{
		secret:              []byte(secret),
		accessTokenDuration: accessDuration,
		now:                 time.Now,
	}
}

// GenerateAccessToken signs a token for subject. ttl <= 0 uses the configured duration.
func (m *JWTManager) GenerateAccessToken(subject string, isAdmin bool, ttl time.Duration) (string, error) {
	if len(m.secret) == 0 {
		return "", ErrNoSecret
	}
	if ttl <= 0 {
		ttl = m.accessTokenDuration
	}

	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		OperatorClaims: OperatorClaims{Subject: subject, IsAdmin: isAdmin},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Audience:  []string{tokenAudience},
		},
	})

	signedToken, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signedToken, nil
}

// ValidateAccessToken validates an access token and returns the claims
func (m *JWTManager) ValidateAccessToken(tokenString string) (*OperatorClaims, error) {
	if len(m.secret) == 0 {
		return nil, ErrNoSecret
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return &claims.OperatorClaims, nil
}
