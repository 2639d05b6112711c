package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ServiceClaims are the claims carried by a service-to-service token.
// The token is scoped to a single (caller, target) pair and expires quickly;
// backends verify it before trusting the gateway-injected tenant headers.
type ServiceClaims struct {
	Caller string `json:"caller"`
	Target string `json:"target"`
	jwt.RegisteredClaims
}

// GenerateServiceToken issues a short-lived token for calls from caller to target.
func GenerateServiceToken(caller, target string, secret []byte, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	claims := &ServiceClaims{
		Caller: caller,
		Target: target,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    caller,
			Audience:  jwt.ClaimStrings{target},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateServiceToken verifies a service-to-service token for the given target.
func ValidateServiceToken(tokenString, target string, secret []byte) (*ServiceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ServiceClaims{},
		func(*jwt.Token) (interface{}, error) { return secret, nil }, hmacOnly)
	if err != nil {
		return nil, ErrInvalidJWT
	}

	claims, ok := token.Claims.(*ServiceClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidJWT
	}
	if claims.Target != target {
		return nil, fmt.Errorf("token scoped to %q, not %q: %w", claims.Target, target, ErrInvalidJWT)
	}
	return claims, nil
}
