package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

const issuer = "opsdashboard"

// Claims JWT claims structure
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	// OrgSlug is empty for users without an organization.
	OrgSlug string `json:"org_slug,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager JWT token manager
type JWTManager struct {
	secretKey    string
	accessExpiry time.Duration
	now          func() time.Time
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secretKey string, accessExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:    secretKey,
		accessExpiry: accessExpiry,
		now:          time.Now,
	}
}

// GenerateAccessToken generates an access token and returns it with its expiry.
func (m *JWTManager) GenerateAccessToken(userID, username string, role Role, orgSlug string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.accessExpiry)
	claims := Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
		OrgSlug:  orgSlug,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.secretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a token and returns claims
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(m.secretKey), nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// ShouldRenew checks if a token should be renewed
// Returns true if the token will expire in less than 30 minutes
func (m *JWTManager) ShouldRenew(claims *Claims) bool {
	if claims.ExpiresAt == nil {
		return false
	}

	timeLeft := claims.ExpiresAt.Time.Sub(m.now())
	return timeLeft > 0 && timeLeft < 30*time.Minute
}

// RenewToken creates a new token with the same claims but updated timestamps
func (m *JWTManager) RenewToken(claims *Claims) (string, error) {
	token, _, err := m.GenerateAccessToken(claims.UserID, claims.Username, claims.Role, claims.OrgSlug)
	return token, err
}
