package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/repense-api/internal/models"
	appErrors "github.com/noah-isme/repense-api/pkg/errors"
)

func signToken(t *testing.T, secret string, claims jwt.Claims, method jwt.SigningMethod) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func testClaims(role models.UserRole) *models.JWTClaims {
	now := time.Now()
	return &models.JWTClaims{
		UserID: "teacher-1",
		Role:   role,
		Email:  "ana@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "repense",
			Audience:  jwt.ClaimStrings{"repense-api"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestAuthServiceValidateToken(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{Secret: "secret", Issuer: "repense", Audience: []string{"repense-api"}})

	claims, err := svc.ValidateToken(signToken(t, "secret", testClaims(models.RoleTeacher), jwt.SigningMethodHS256))
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
}

func TestAuthServiceValidateTokenNormalisesRole(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{Secret: "secret"})

	claims, err := svc.ValidateToken(signToken(t, "secret", testClaims("admin"), jwt.SigningMethodHS256))
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestAuthServiceValidateTokenFallsBackToSubject(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{Secret: "secret"})
	claims := testClaims(models.RoleAdmin)
	claims.UserID = ""
	claims.Subject = "admin-9"

	parsed, err := svc.ValidateToken(signToken(t, "secret", claims, jwt.SigningMethodHS256))
	require.NoError(t, err)
	assert.Equal(t, "admin-9", parsed.UserID)
}

func TestAuthServiceValidateTokenRejects(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{Secret: "secret", Issuer: "repense", Audience: []string{"repense-api"}})

	expired := testClaims(models.RoleAdmin)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongIssuer := testClaims(models.RoleAdmin)
	wrongIssuer.Issuer = "other"

	unknownRole := testClaims("STUDENT")

	cases := map[string]string{
		"bad signature": signToken(t, "other", testClaims(models.RoleAdmin), jwt.SigningMethodHS256),
		"wrong method":  signToken(t, "secret", testClaims(models.RoleAdmin), jwt.SigningMethodHS512),
		"expired":       signToken(t, "secret", expired, jwt.SigningMethodHS256),
		"wrong issuer":  signToken(t, "secret", wrongIssuer, jwt.SigningMethodHS256),
		"unknown role":  signToken(t, "secret", unknownRole, jwt.SigningMethodHS256),
		"garbage":       "not-a-token",
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
		})
	}
}
