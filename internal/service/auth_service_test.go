package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/moneyquiz/routing-gateway/internal/models"
	"github.com/moneyquiz/routing-gateway/pkg/config"
	appErrors "github.com/moneyquiz/routing-gateway/pkg/errors"
)

func testAuthConfig(t *testing.T) config.AuthConfig {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	return config.AuthConfig{
		JWTSecret:            "test-secret",
		TokenExpiry:          time.Hour,
		OperatorEmail:        "ops@example.com",
		OperatorPasswordHash: string(hash),
	}
}

func TestAuthServiceLogin(t *testing.T) {
	svc := NewAuthService(testAuthConfig(t), nil, nil)

	res, err := svc.Login(models.LoginRequest{Email: "ops@example.com", Password: "correct horse"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, int64(3600), res.ExpiresIn)
	assert.Equal(t, "ops@example.com", res.Email)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	svc := NewAuthService(testAuthConfig(t), nil, nil)

	_, err := svc.Login(models.LoginRequest{Email: "ops@example.com", Password: "wrong password"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	svc := NewAuthService(testAuthConfig(t), nil, nil)

	_, err := svc.Login(models.LoginRequest{Email: "intruder@example.com", Password: "correct horse"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestAuthServiceLoginValidation(t *testing.T) {
	svc := NewAuthService(testAuthConfig(t), nil, nil)

	_, err := svc.Login(models.LoginRequest{Email: "not-an-email", Password: "short"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestAuthServiceValidateToken(t *testing.T) {
	svc := NewAuthService(testAuthConfig(t), nil, nil)

	res, err := svc.Login(models.LoginRequest{Email: "ops@example.com", Password: "correct horse"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Email)
}

func TestAuthServiceValidateTokenRejectsTampered(t *testing.T) {
	svc := NewAuthService(testAuthConfig(t), nil, nil)

	_, err := svc.ValidateToken("not.a.token")
	require.Error(t, err)

	res, err := svc.Login(models.LoginRequest{Email: "ops@example.com", Password: "correct horse"})
	require.NoError(t, err)

	other := NewAuthService(config.AuthConfig{
		JWTSecret:     "different-secret",
		TokenExpiry:   time.Hour,
		OperatorEmail: "ops@example.com",
	}, nil, nil)
	_, err = other.ValidateToken(res.AccessToken)
	require.Error(t, err)
}
