package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pulsetrack/pulsetrack/internal/model"
)

// DefaultTokenTTL is the lifetime of an admin bearer token.
const DefaultTokenTTL = 24 * time.Hour

// Default leeway for token validation.
const DefaultLeeway = 30 * time.Second

// Token errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrEmptySecret  = errors.New("jwt secret cannot be empty")
)

// Claims are the JWT claims carried by an admin bearer token.
type Claims struct {
	jwt.RegisteredClaims
	Username   string   `json:"username"`
	Role       string   `json:"role"`
	DomainName string   `json:"domain_name,omitempty"`
	Features   []string `json:"features,omitempty"`
}

// TokenService issues and validates HS256 admin tokens.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	leeway time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService. A non-positive ttl selects DefaultTokenTTL.
func NewTokenService(secret, issuer string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		leeway: DefaultLeeway,
		now:    time.Now,
	}, nil
}

// Issue signs a token for admin and returns it with its expiry.
func (s *TokenService) Issue(admin *model.AdminRecord) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   admin.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Username:   admin.Username,
		Role:       admin.Role,
		DomainName: admin.DomainName,
		Features:   admin.FeatureList,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Validate parses token and returns the caller it identifies.
func (s *TokenService) Validate(token string) (*model.AuthContext, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	},
		jwt.WithLeeway(s.leeway),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &model.AuthContext{
		AdminID:    claims.Subject,
		Username:   claims.Username,
		Role:       claims.Role,
		DomainName: claims.DomainName,
		Features:   claims.Features,
	}, nil
}
