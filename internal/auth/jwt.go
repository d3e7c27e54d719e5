package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleClient is the only role accepted on the voice API
const RoleClient = "client"

// DefaultTokenTTL is the lifetime of issued client tokens
const DefaultTokenTTL = 30 * 24 * time.Hour

var ErrInvalidRole = errors.New("token role is not allowed")

// JWTClaims represents the claims in our JWT token
type JWTClaims struct {
	ClientID string `json:"client_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator issues and validates HS256 service tokens signed with one
// shared secret
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

// NewAuthenticator creates an authenticator for secret
func NewAuthenticator(secret string) (*Authenticator, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}
	return &Authenticator{secret: []byte(secret), now: time.Now}, nil
}

// GenerateClientToken generates a client token valid for ttl. A non-positive
// ttl uses DefaultTokenTTL.
func (a *Authenticator) GenerateClientToken(clientID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := a.now()
	claims := &JWTClaims{
		ClientID: clientID,
		Role:     RoleClient,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken validates a JWT token and returns the claims. Only client
// tokens are accepted.
func (a *Authenticator) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrInvalidKey
	}
	if claims.Role != RoleClient {
		return nil, ErrInvalidRole
	}
	return claims, nil
}
