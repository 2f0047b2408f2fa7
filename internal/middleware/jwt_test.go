package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret")

func signed(t *testing.T, method jwt.SigningMethod, key any, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(method, jwt.RegisteredClaims{
		Subject:   "ui",
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func jwtApp() *fiber.App {
	app := fiber.New()
	app.Use(JWTAuth(testSecret))
	app.Get("/session", func(c *fiber.Ctx) error {
		return c.SendString(Subject(c))
	})
	return app
}

func TestJWTAuth(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", fiber.StatusUnauthorized},
		{"valid", "Bearer " + signed(t, jwt.SigningMethodHS256, testSecret, time.Now().Add(time.Hour)), fiber.StatusOK},
		{"expired", "Bearer " + signed(t, jwt.SigningMethodHS256, testSecret, time.Now().Add(-time.Hour)), fiber.StatusUnauthorized},
		{"wrong secret", "Bearer " + signed(t, jwt.SigningMethodHS256, []byte("other"), time.Now().Add(time.Hour)), fiber.StatusUnauthorized},
		{"wrong method", "Bearer " + signed(t, jwt.SigningMethodHS512, testSecret, time.Now().Add(time.Hour)), fiber.StatusUnauthorized},
	}

	app := jwtApp()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/session", nil)
			if tc.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tc.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tc.want {
				t.Fatalf("expected %d got %d", tc.want, resp.StatusCode)
			}
		})
	}
}
