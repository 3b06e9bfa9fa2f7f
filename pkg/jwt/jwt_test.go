package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAccessSecret = "test-access-secret-key-for-testing-purposes"

func TestGenerateAndValidateAccessToken(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)
	userID := uuid.New()
	roles := []string{"dispatcher"}

	token, err := service.GenerateAccessToken(userID, roles)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, roles, claims.Roles)
	assert.Equal(t, AccessToken, claims.TokenType)
	assert.Equal(t, "citytaxi-auth", claims.Issuer)
	assert.Equal(t, userID.String(), claims.Subject)
}

func TestValidateAccessToken_Rejects(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)
	token, err := service.GenerateAccessToken(uuid.New(), []string{"driver"})
	require.NoError(t, err)

	t.Run("Garbage", func(t *testing.T) {
		_, err := service.ValidateAccessToken("invalid.token.here")
		assert.Error(t, err)
	})

	t.Run("Wrong Secret", func(t *testing.T) {
		_, err := NewService("wrong-secret", time.Hour).ValidateAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("Wrong Token Type", func(t *testing.T) {
		claims := Claims{
			UserID:    uuid.New(),
			TokenType: "refresh",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testAccessSecret))
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(signed)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid token type")
	})
}

func TestIsTokenExpired(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)
	token, err := service.GenerateAccessToken(uuid.New(), []string{"customer"})
	require.NoError(t, err)
	assert.False(t, service.IsTokenExpired(token))

	expired, err := NewService(testAccessSecret, -time.Hour).GenerateAccessToken(uuid.New(), nil)
	require.NoError(t, err)
	assert.True(t, service.IsTokenExpired(expired))

	_, err = service.ValidateAccessToken(expired)
	assert.Error(t, err)

	assert.True(t, service.IsTokenExpired("invalid.token.here"))
}

func TestConcurrentTokenGeneration(t *testing.T) {
	service := NewService(testAccessSecret, time.Hour)

	done := make(chan bool)
	errs := make(chan error, 50)

	for i := 0; i < 50; i++ {
		go func() {
			defer func() { done <- true }()
			token, err := service.GenerateAccessToken(uuid.New(), []string{"customer"})
			if err != nil {
				errs <- err
				return
			}
			if _, err := service.ValidateAccessToken(token); err != nil {
				errs <- err
			}
		}()
	}

	for i := 0; i < 50; i++ {
		<-done
	}

	close(errs)
	assert.Empty(t, errs)
}
