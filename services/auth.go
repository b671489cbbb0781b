package services

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultJWTSecret = "your-default-secret-key-change-in-production"

// Identity is who a relay connection belongs to.
type Identity struct {
	UserID string
	Email  string
}

// AuthService signs and verifies the HS256 tokens the dev relay accepts on the
// websocket handshake.
type AuthService struct {
	jwtSecret []byte
}

func NewAuthService(secret string) *AuthService {
	if secret == "" {
		slog.Warn("JWT_SECRET not set, using the development default")
		secret = defaultJWTSecret
	}
	return &AuthService{jwtSecret: []byte(secret)}
}

// CreateJWT generates a token for id valid for ttl.
func (s *AuthService) CreateJWT(id Identity, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   id.UserID,
		"email": id.Email,
		"exp":   time.Now().Add(ttl).Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// VerifyJWT verifies a token and returns the identity it was issued for.
func (s *AuthService) VerifyJWT(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return Identity{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("invalid token claims")
	}

	sub, _ := claims.GetSubject()
	email, _ := claims["email"].(string)
	if sub == "" && email == "" {
		return Identity{}, errors.New("token carries neither sub nor email")
	}
	if sub == "" {
		sub = email
	}
	return Identity{UserID: sub, Email: email}, nil
}
