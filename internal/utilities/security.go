package utilities

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"symphainy-foundation/internal/tenant"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// TokenClaims are the JWT claims the platform issues. The platform_admin
// claim grants the cross-tenant capability used by administrative surfaces.
type TokenClaims struct {
	UserID        string `json:"sub"`
	TenantID      string `json:"tenant_id,omitempty"`
	PlatformAdmin bool   `json:"platform_admin,omitempty"`
	jwt.RegisteredClaims
}

// TokenService is the "security" utility: HS256 token issue and verify.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenService creates the security utility.
func NewTokenService(secret, issuer string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("signing key must not be empty")
	}
	return &TokenService{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

// Issue signs a token for a user, optionally scoped to a tenant.
func (s *TokenService) Issue(userID, tenantID string, platformAdmin bool) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		UserID:        userID,
		TenantID:      tenantID,
		PlatformAdmin: platformAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify parses and validates a token, returning its claims.
func (s *TokenService) Verify(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, fmt.Errorf("%w: invalid issuer", ErrInvalidToken)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user ID", ErrInvalidToken)
	}
	return claims, nil
}

// Actor maps verified claims to the identity the tenant protocol acts as.
func (s *TokenService) Actor(claims *TokenClaims) tenant.Actor {
	return tenant.Actor{UserID: claims.UserID, PlatformAdmin: claims.PlatformAdmin}
}
