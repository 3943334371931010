package jwt

import (
	"time"
)

// Service is a wrapper for ticket operations
type Service struct {
	secretKey string
	expiry    time.Duration
}

// NewService creates a new ticket service
func NewService(secretKey string, expiry time.Duration) *Service {
	if secretKey == "" {
		secretKey = getSecretKey()
	}

	if expiry == 0 {
		expiry = 24 * time.Hour // Default to 24 hours
	}

	return &Service{
		secretKey: secretKey,
		expiry:    expiry,
	}
}

// Issue signs a ticket for a session
func (s *Service) Issue(sessionID, personaID string) (string, error) {
	return GenerateToken(s.secretKey, sessionID, personaID, s.expiry)
}

// Verify validates a ticket and checks that it belongs to sessionID
func (s *Service) Verify(tokenString, sessionID string) (*TicketClaims, error) {
	claims, err := ValidateToken(s.secretKey, tokenString)
	if err != nil {
		return nil, err
	}
	if claims.SessionID != sessionID {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
