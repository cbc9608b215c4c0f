package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lorrc/petcare-backend/internal/core/domain"
)

const tokenIssuer = "petcare-backend"

// Claims carries a verified role assignment between requests, so a
// one-way stream or a plain HTTP call can reuse an earlier authentication.
type Claims struct {
	Role    domain.Role `json:"role"`
	OwnerID *int64      `json:"owner_id,omitempty"`
	jwt.RegisteredClaims
}

// Assignment returns the role assignment the token vouches for.
func (c *Claims) Assignment() domain.RoleAssignment {
	return domain.RoleAssignment{Role: c.Role, ScopedOwnerID: c.OwnerID}.Normalized()
}

type TokenManager struct {
	secretKey []byte
	ttl       time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenManager{secretKey: []byte(secret), ttl: ttl}
}

// GenerateToken creates a session token for an authenticated assignment.
// Guests have nothing to carry and are rejected.
func (tm *TokenManager) GenerateToken(assignment domain.RoleAssignment) (string, time.Time, error) {
	assignment = assignment.Normalized()
	if assignment.Role == domain.RoleGuest {
		return "", time.Time{}, errors.New("cannot issue a session token for a guest")
	}

	subject := "admin"
	if ownerID, ok := assignment.OwnerScope(); ok {
		subject = fmt.Sprintf("owner:%d", ownerID)
	}

	now := time.Now()
	expiresAt := now.Add(tm.ttl)
	claims := &Claims{
		Role:    assignment.Role,
		OwnerID: assignment.ScopedOwnerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken parses and validates the token string
func (tm *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secretKey, nil
	}, jwt.WithIssuer(tokenIssuer))

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Role == domain.RoleGuest || !claims.Role.Valid() {
		return nil, errors.New("token carries no usable role")
	}

	return claims, nil
}
