package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-engine/internal/models"
)

func TestTokenManager_IssueAndParse(t *testing.T) {
	m := NewTokenManager("test-secret-with-enough-length-123456", time.Hour)
	user := &models.User{ID: uuid.New(), Role: models.RoleArbitrator}

	token, exp, err := m.Issue(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	userID, role, err := m.ParseAccess(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)
	assert.Equal(t, models.RoleArbitrator, role)
}

func TestTokenManager_RejectsForeignSignature(t *testing.T) {
	issuer := NewTokenManager("first-secret-first-secret-first-secret", time.Hour)
	verifier := NewTokenManager("second-secret-second-secret-second-secret", time.Hour)

	token, _, err := issuer.Issue(&models.User{ID: uuid.New(), Role: models.RoleClient})
	require.NoError(t, err)

	_, _, err = verifier.ParseAccess(token)
	assert.Error(t, err)
}

func TestTokenManager_RejectsExpired(t *testing.T) {
	m := NewTokenManager("test-secret-with-enough-length-123456", -time.Minute)

	token, _, err := m.Issue(&models.User{ID: uuid.New(), Role: models.RoleClient})
	require.NoError(t, err)

	_, _, err = m.ParseAccess(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenManager_RejectsNoneAlgorithm(t *testing.T) {
	m := NewTokenManager("test-secret-with-enough-length-123456", time.Hour)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": uuid.NewString(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, _, err = m.ParseAccess(unsigned)
	assert.Error(t, err)
}
