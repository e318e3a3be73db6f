package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-do-not-use-in-prod"

func signToken(t *testing.T, secret string, claims rawClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerify_ValidToken(t *testing.T) {
	v := NewVerifier(testSecret)
	token := signToken(t, testSecret, rawClaims{
		UserID:   "42",
		Username: "jdoe",
		Groups:   []string{"is_admin"},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
	assert.Equal(t, "jdoe", claims.Username)
	assert.True(t, claims.HasGroup("is_admin"))
	assert.False(t, claims.HasGroup("is_api_key"))
}

func TestVerify_ExpiredToken(t *testing.T) {
	v := NewVerifier(testSecret)
	token := signToken(t, testSecret, rawClaims{
		UserID: "1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	_, err := v.Verify(token)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerify_WrongSecret(t *testing.T) {
	v := NewVerifier(testSecret)
	token := signToken(t, "a-different-secret", rawClaims{
		UserID: "1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	_, err := v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_AlgNoneRejected(t *testing.T) {
	v := NewVerifier(testSecret)
	token := jwt.NewWithClaims(jwt.SigningMethodNone, rawClaims{
		UserID: "1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Verify(signed)
	require.Error(t, err)
}

func TestVerify_MalformedUserID(t *testing.T) {
	v := NewVerifier(testSecret)
	// rawClaims.UserID is a json.Number, which refuses to marshal a
	// non-numeric literal, so the payload is built from a MapClaims instead.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "not-a-number",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = v.Verify(signed)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestVerify_Garbage(t *testing.T) {
	v := NewVerifier(testSecret)
	_, err := v.Verify("not.a.jwt")
	require.Error(t, err)
}
