package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/okemsocial/okem_social/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, key string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func whoami(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"user_id": middleware.CurrentUserID(c)})
}

func TestProtectedStoresUserID(t *testing.T) {
	t.Setenv("JWT_SECRET", secret)
	app := fiber.New()
	app.Get("/me", middleware.Protected(), whoami)
	app.Get("/admin", middleware.Protected(), middleware.AdminRequired(), whoami)

	cases := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"numeric claim", "/me", "Bearer " + sign(t, secret, jwt.MapClaims{"user_id": 42, "role": "user"}), http.StatusOK},
		{"string claim", "/me", "Bearer " + sign(t, secret, jwt.MapClaims{"user_id": "42"}), http.StatusOK},
		{"missing header", "/me", "", http.StatusBadRequest},
		{"wrong key", "/me", "Bearer " + sign(t, "other", jwt.MapClaims{"user_id": 42}), http.StatusUnauthorized},
		{"expired", "/me", "Bearer " + sign(t, secret, jwt.MapClaims{"user_id": 42, "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized},
		{"no user id", "/me", "Bearer " + sign(t, secret, jwt.MapClaims{"role": "user"}), http.StatusUnauthorized},
		{"admin", "/admin", "Bearer " + sign(t, secret, jwt.MapClaims{"user_id": 1, "role": "admin"}), http.StatusOK},
		{"not admin", "/admin", "Bearer " + sign(t, secret, jwt.MapClaims{"user_id": 2, "role": "user"}), http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestUserIDFromClaims(t *testing.T) {
	id, err := middleware.UserIDFromClaims(jwt.MapClaims{"user_id": float64(7)})
	require.NoError(t, err)
	assert.Equal(t, uint(7), id)

	id, err = middleware.UserIDFromClaims(jwt.MapClaims{"user_id": "19"})
	require.NoError(t, err)
	assert.Equal(t, uint(19), id)

	for _, bad := range []interface{}{nil, 0.0, -3.0, 1.5, "", "abc", true} {
		_, err := middleware.UserIDFromClaims(jwt.MapClaims{"user_id": bad})
		assert.ErrorIs(t, err, middleware.ErrInvalidToken, "%v", bad)
	}
}

func TestWebSocketUpgradeResolvesToken(t *testing.T) {
	t.Setenv("JWT_SECRET", secret)
	app := fiber.New()
	app.Get("/ws", middleware.WebSocketUpgrade(), whoami)
	valid := sign(t, secret, jwt.MapClaims{"user_id": 5})

	upgrade := func(target string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", "websocket")
		return req
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ws", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)

	resp, err = app.Test(upgrade("/ws?access_token=" + valid))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req := upgrade("/ws")
	req.Header.Set("Authorization", "Bearer "+valid)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(upgrade("/ws?access_token=garbage"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// no token: the handler will ask for an auth frame
	resp, err = app.Test(upgrade("/ws"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
