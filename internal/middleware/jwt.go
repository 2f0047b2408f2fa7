package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const subjectLocal = "subject"

// JWTAuth validates HS256 bearer tokens signed with secret and stores the
// subject claim in the request locals.
func JWTAuth(secret []byte) fiber.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])

		var claims jwt.RegisteredClaims
		if _, err := parser.ParseWithClaims(tokenStr, &claims, keyFunc); err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		c.Locals(subjectLocal, claims.Subject)
		return c.Next()
	}
}

// Subject returns the authenticated token subject, if any.
func Subject(c *fiber.Ctx) string {
	sub, _ := c.Locals(subjectLocal).(string)
	return sub
}
