package jwtauth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "tml/pkg/domain-errors"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService("test-signing-key", "tml")
	actorID := uuid.New()

	token, err := svc.GenerateAccessToken(actorID, "independent_auditor", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, actorID.String(), claims.ActorID)
	assert.Equal(t, "independent_auditor", claims.Role)
}

func TestValidateToken_Expired(t *testing.T) {
	svc := NewService("test-signing-key", "tml")

	token, err := svc.GenerateAccessToken(uuid.New(), "citizen", -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAuthorization))
}

func TestValidateToken_WrongKey(t *testing.T) {
	issuer := NewService("key-one", "tml")
	verifier := NewService("key-two", "tml")

	token, err := issuer.GenerateAccessToken(uuid.New(), "citizen", time.Hour)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAuthorization))
}
