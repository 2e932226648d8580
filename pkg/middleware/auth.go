// Package middleware holds the fiber middleware shared by the HTTP routes.
package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// UserIDClaim names the claim carrying the owner id.
const UserIDClaim = "user_id"

// Protected verifies an HS256 bearer token signed with secret and stores it
// under the "user" local.
func Protected(secret string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:   jwtware.SigningKey{Key: []byte(secret)},
		ErrorHandler: jwtError,
	})
}

func jwtError(c *fiber.Ctx, err error) error {
	status := fiber.StatusUnauthorized
	title := "Invalid or expired JWT"
	if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) || err.Error() == jwtware.ErrJWTMissingOrMalformed.Error() {
		status = fiber.StatusBadRequest
		title = "Missing or malformed JWT"
	}
	raw, _ := json.Marshal(fiber.Map{
		"type":     "about:blank",
		"title":    title,
		"status":   status,
		"detail":   err.Error(),
		"instance": c.OriginalURL(),
	})
	c.Set(fiber.HeaderContentType, "application/problem+json")
	return c.Status(status).Send(raw)
}

// UserID reads the owner id from the verified token.
func UserID(c *fiber.Ctx) (uuid.UUID, error) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok || token == nil {
		return uuid.Nil, fmt.Errorf("missing user context")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, fmt.Errorf("unexpected claims type %T", token.Claims)
	}
	raw, ok := claims[UserIDClaim].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("token has no %s claim", UserIDClaim)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s claim: %w", UserIDClaim, err)
	}
	return id, nil
}

// SignToken issues a token for userID. Used by the CLI and tests.
func SignToken(secret string, userID uuid.UUID, expiry time.Duration) (string, error) {
	claims := jwt.MapClaims{
		UserIDClaim: userID.String(),
		"exp":       time.Now().Add(expiry).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
