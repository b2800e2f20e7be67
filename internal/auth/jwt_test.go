package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	s, err := NewSigner("secret", time.Hour)
	require.NoError(t, err)

	token, err := s.Issue(42, "neo", "user")
	require.NoError(t, err)

	id, claims, err := s.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
	assert.Equal(t, "neo", claims.Username)
}

func TestParseRejectsForeignSecret(t *testing.T) {
	a, _ := NewSigner("a", time.Hour)
	b, _ := NewSigner("b", time.Hour)

	token, err := a.Issue(1, "x", "user")
	require.NoError(t, err)

	_, _, err = b.Parse(token)
	assert.Error(t, err)
}

func TestParseRejectsExpired(t *testing.T) {
	s, _ := NewSigner("secret", -time.Minute)
	token, err := s.Issue(1, "x", "user")
	require.NoError(t, err)

	_, _, err = s.Parse(token)
	assert.Error(t, err)
}

func TestNewSignerRequiresSecret(t *testing.T) {
	_, err := NewSigner("", time.Hour)
	assert.Error(t, err)
}
