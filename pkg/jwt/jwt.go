// Package jwt issues and verifies session tickets: signed tokens that bind a
// session id to the persona it was created for.
package jwt

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const issuer = "mentorchat"

// TicketClaims represents the claims in a session ticket
type TicketClaims struct {
	SessionID string `json:"sid"`
	PersonaID string `json:"persona"`
	jwt.RegisteredClaims
}

// GenerateToken signs a ticket for a session with the given secret and lifetime
func GenerateToken(secretKey, sessionID, personaID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &TicketClaims{
		SessionID: sessionID,
		PersonaID: personaID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   sessionID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secretKey))
}

// ValidateToken validates a ticket and returns its claims
func ValidateToken(secretKey, tokenString string) (*TicketClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&TicketClaims{},
		func(token *jwt.Token) (interface{}, error) {
			// Validate signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return []byte(secretKey), nil
		},
		jwt.WithIssuer(issuer),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*TicketClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// getSecretKey gets the ticket secret from environment variables
func getSecretKey() string {
	secret := os.Getenv("SESSION_TICKET_SECRET")
	if secret == "" {
		// Fallback to a default secret for development (not recommended for production)
		secret = "devTicketSecretDoNotUseInProduction"
	}
	return secret
}
