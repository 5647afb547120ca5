package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const operator = "200000000000000001"

func TestJWTService_GenerateToken(t *testing.T) {
	service := NewJWTService("test-secret-key", 24)

	token, err := service.GenerateToken(operator, "mod#0001")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	_, err = service.GenerateToken("", "nobody")
	assert.Error(t, err)
}

func TestJWTService_ValidateToken(t *testing.T) {
	service := NewJWTService("test-secret-key", 24)

	token, err := service.GenerateToken(operator, "mod#0001")
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, operator, claims.UserID)
	assert.Equal(t, operator, claims.Subject)
	assert.Equal(t, "mod#0001", claims.Name)
}

func TestJWTService_ValidateToken_Invalid(t *testing.T) {
	service := NewJWTService("test-secret-key", 24)

	tests := []struct {
		name  string
		token func() string
	}{
		{"garbage", func() string { return "invalid.token.here" }},
		{"other secret", func() string {
			tok, _ := NewJWTService("another-secret", 24).GenerateToken(operator, "")
			return tok
		}},
		{"unsigned", func() string {
			tok, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
				UserID:           operator,
				RegisteredClaims: jwt.RegisteredClaims{Subject: operator},
			}).SignedString(jwt.UnsafeAllowNoneSignatureType)
			return tok
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.ValidateToken(tt.token())
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestJWTService_ValidateToken_Expired(t *testing.T) {
	service := NewJWTService("test-secret-key", 1)
	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return issued }

	token, err := service.GenerateToken(operator, "")
	require.NoError(t, err)

	service.now = func() time.Time { return issued.Add(2 * time.Hour) }
	_, err = service.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
