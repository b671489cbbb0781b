package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry decodes the exp claim without verifying the signature; the client
// never holds the signing key. ok is false when the token carries no exp.
func TokenExpiry(tokenString string) (exp time.Time, ok bool, err error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to decode token: %w", err)
	}
	numeric, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid exp claim: %w", err)
	}
	if numeric == nil {
		return time.Time{}, false, nil
	}
	return numeric.Time, true, nil
}

// TokenExpired reports whether the token's exp is strictly before now, compared
// in whole seconds. Missing or undecodable tokens count as expired; tokens
// without exp never expire.
func TokenExpired(tokenString string, now time.Time) bool {
	if tokenString == "" {
		return true
	}
	exp, ok, err := TokenExpiry(tokenString)
	if err != nil {
		return true
	}
	if !ok {
		return false
	}
	return exp.Unix() < now.Unix()
}
