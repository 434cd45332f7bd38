package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerRoundtrip(t *testing.T) {
	manager := NewManager("board-secret", time.Hour)
	userID := uuid.New()

	token, err := manager.Generate(userID, "specter")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	identity, err := manager.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID, identity.UserID)
	assert.Equal(t, "specter", identity.Username)
}

func TestManagerVerifyMissingToken(t *testing.T) {
	manager := NewManager("board-secret", time.Hour)

	identity, err := manager.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)
	assert.Nil(t, identity)
}

func TestManagerVerifyGarbageToken(t *testing.T) {
	manager := NewManager("board-secret", time.Hour)

	identity, err := manager.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, identity)
}

func TestManagerVerifyWrongSecret(t *testing.T) {
	issuer := NewManager("board-secret", time.Hour)
	verifier := NewManager("someone-elses-secret", time.Hour)

	token, err := issuer.Generate(uuid.New(), "specter")
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManagerVerifyExpiredToken(t *testing.T) {
	manager := NewManager("board-secret", -time.Minute)

	token, err := manager.Generate(uuid.New(), "specter")
	require.NoError(t, err)

	_, err = manager.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManagerVerifyNonUUIDSubject(t *testing.T) {
	manager := NewManager("board-secret", time.Hour)

	claims := Claims{
		Username: "specter",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-uuid",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("board-secret"))
	require.NoError(t, err)

	_, err = manager.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManagerRejectsUnexpectedSigningMethod(t *testing.T) {
	manager := NewManager("board-secret", time.Hour)

	// alg=none tokens must never verify.
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject: uuid.NewString(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = manager.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
