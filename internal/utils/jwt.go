package utils

import (
	"errors" // Error values
	"time"   // Time for token expiration

	"github.com/golang-jwt/jwt/v5" // JWT library
)

// TokenTTL is the lifetime of an access token
const TokenTTL = 24 * time.Hour

// Claims carried by gold ledger access tokens
type Claims struct {
	UserID               uint   `json:"user_id"` // Authenticated user
	Role                 string `json:"role"`    // Role at login time, informational only
	jwt.RegisteredClaims        // Standard JWT claims
}

// GenerateJWT creates an HS256 token for a user
func GenerateJWT(userID uint, role, secret string) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty") // Refuse to sign with an empty key
	}
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims) // Create token with claims
	return token.SignedString([]byte(secret))                  // Sign the token with the secret
}

// ParseJWT validates tokenStr and returns its claims. Only HS256 is accepted.
func ParseJWT(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil // Return the secret key for validation
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err // Expired, malformed or wrongly signed
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserID != 0 {
		return claims, nil // Return claims if valid
	}
	return nil, jwt.ErrTokenInvalidClaims
}
