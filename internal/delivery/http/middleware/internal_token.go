package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v3"
)

const HeaderInternalToken = "X-Internal-Token"

// InternalToken rejects mutating requests without the shared token. Reads
// pass through, and an empty token leaves every route open.
func InternalToken(token string) fiber.Handler {
	token = strings.TrimSpace(token)
	return func(c fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}
		got := strings.TrimSpace(c.Get(HeaderInternalToken))
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			return NewAppError(fiber.StatusUnauthorized, "Unauthorized", nil, nil)
		}
		return c.Next()
	}
}
