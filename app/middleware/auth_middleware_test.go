package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/onboarding/app/services"
	businessflow "github.com/amirphl/onboarding/business_flow"
)

type stubResolver struct {
	businessID uint
	err        error
}

func (s stubResolver) Resolve(context.Context, uint) (uint, error) {
	return s.businessID, s.err
}

func newTestApp(t *testing.T, resolver businessflow.CallerBusinessResolver) (*fiber.App, *services.TokenServiceImpl) {
	t.Helper()
	tokens, err := services.NewTokenService(time.Minute, time.Hour, "test-issuer", "test-audience", false, "", "", "test-secret-key-for-jwt-signing-32-chars")
	require.NoError(t, err)

	m := NewAuthMiddleware(tokens, resolver, nil)
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/protected", m.Authenticate(), m.CallerBusiness(), func(c fiber.Ctx) error {
		accountID, _ := GetAccountIDFromContext(c)
		businessID, _ := GetCallerBusinessIDFromContext(c)
		return c.JSON(fiber.Map{"account_id": accountID, "business_id": businessID})
	})
	return app, tokens
}

func get(t *testing.T, app *fiber.App, token string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestAuthenticate(t *testing.T) {
	app, tokens := newTestApp(t, stubResolver{businessID: 7})
	access, refresh, err := tokens.GenerateTokens(42)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"missing header", "", fiber.StatusUnauthorized},
		{"wrong scheme", "Basic abc", fiber.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", fiber.StatusUnauthorized},
		{"refresh token", "Bearer " + refresh, fiber.StatusUnauthorized},
		{"access token", "Bearer " + access, fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, app, tt.header)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get(businessflow.RequestIDHeader))
		})
	}
}

func TestCallerBusiness(t *testing.T) {
	t.Run("no business is forbidden", func(t *testing.T) {
		app, tokens := newTestApp(t, stubResolver{err: businessflow.ErrCallerHasNoBusiness})
		access, _, err := tokens.GenerateTokens(42)
		require.NoError(t, err)

		resp := get(t, app, "Bearer "+access)
		defer resp.Body.Close()
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})

	t.Run("lookup failure", func(t *testing.T) {
		app, tokens := newTestApp(t, stubResolver{err: assert.AnError})
		access, _, err := tokens.GenerateTokens(42)
		require.NoError(t, err)

		resp := get(t, app, "Bearer "+access)
		defer resp.Body.Close()
		assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	})
}
