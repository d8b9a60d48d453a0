package jwt

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	secret := []byte("s")
	token, err := GenerateToken("u1", secret, time.Minute)
	require.NoError(t, err)
	claims, err := ParseToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)

	_, err = ParseToken(token, []byte("other"))
	assert.Error(t, err)
}

func TestSubjectFallback(t *testing.T) {
	secret := []byte("s")
	sign := func(c jwtlib.Claims) string {
		s, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, c).SignedString(secret)
		require.NoError(t, err)
		return s
	}

	claims, err := ParseToken(sign(jwtlib.RegisteredClaims{Subject: "u9"}), secret)
	require.NoError(t, err)
	assert.Equal(t, "u9", claims.UserID)

	_, err = ParseToken(sign(jwtlib.RegisteredClaims{}), secret)
	assert.Error(t, err)
}

func TestExpired(t *testing.T) {
	secret := []byte("s")
	token, err := GenerateToken("u1", secret, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(token, secret)
	assert.Error(t, err)
}
