package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
)

// Roles carried in access tokens.
const (
	RoleOffice = "office"
	RoleCrew   = "crew"
	RoleAdmin  = "admin"
)

// Claims are the custom claims in access tokens. Sub identifies the user
// and is recorded as the actor on stage transitions.
type Claims struct {
	Sub  string `json:"sub"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IdentityService verifies the HS256 bearer tokens issued to office and
// crew users. Credential login lives with the identity provider.
type IdentityService struct {
	secret []byte
	issuer string
	logger *zap.Logger
}

// NewIdentityService creates an identity service for one signing secret.
func NewIdentityService(secret, issuer string, logger *zap.Logger) *IdentityService {
	return &IdentityService{secret: []byte(secret), issuer: issuer, logger: logger}
}

// IssueToken signs an access token for subject, valid for ttl.
func (s *IdentityService) IssueToken(subject, name, role string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", &domain.ErrValidation{Field: "sub", Message: "is required"}
	}
	now := time.Now()
	claims := Claims{
		Sub:  subject,
		Name: name,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    s.issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateAccessToken checks signature, expiry and issuer.
func (s *IdentityService) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		s.logger.Debug("token rejected", zap.Error(err))
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Sub == "" {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	return claims, nil
}
