package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	s := NewService("secret", time.Hour)

	token, err := s.Issue("sess-1", "buffett")
	require.NoError(t, err)

	claims, err := s.Verify(token, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "buffett", claims.PersonaID)
	assert.Equal(t, "sess-1", claims.Subject)

	_, err = s.Verify(token, "sess-2")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewService("other", time.Hour).Verify(token, "sess-1")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredTicket(t *testing.T) {
	token, err := GenerateToken("secret", "sess-1", "wood", -time.Minute)
	require.NoError(t, err)

	_, err = ValidateToken("secret", token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}
