package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/migration-estimator-api/internal/models"
	appErrors "github.com/noah-isme/migration-estimator-api/pkg/errors"
)

func TestAuthServiceRoundTrip(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{Secret: "secret", Issuer: "directory"})
	token, err := svc.IssueToken(models.User{ID: "s-1", Email: "sales@example.com", Role: models.RoleSales}, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "s-1", claims.UserID)
	assert.Equal(t, models.RoleSales, claims.Role)
}

func TestAuthServiceRejectsBadTokens(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{Secret: "secret", Issuer: "directory"})

	other := NewAuthService(nil, AuthConfig{Secret: "other", Issuer: "directory"})
	forged, err := other.IssueToken(models.User{ID: "a-1", Role: models.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(forged)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	wrongIssuer := NewAuthService(nil, AuthConfig{Secret: "secret", Issuer: "elsewhere"})
	token, err := wrongIssuer.IssueToken(models.User{ID: "a-1", Role: models.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	past := NewAuthService(nil, AuthConfig{Secret: "secret", Issuer: "directory"})
	past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := past.IssueToken(models.User{ID: "a-1", Role: models.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))

	_, err = svc.ValidateToken("not-a-jwt")
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}
