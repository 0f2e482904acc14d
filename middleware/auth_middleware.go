package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	fiberws "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v3"
	"github.com/golang-jwt/jwt/v4"
	config "github.com/okemsocial/okem_social/configs"
)

// LocalUserID is the fiber.Ctx local holding the authenticated user id.
const LocalUserID = "user_id"

var ErrInvalidToken = errors.New("invalid token")

func Protected() fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:     []byte(config.Config("JWT_SECRET")),
		ErrorHandler:   jwtError,
		SuccessHandler: storeUserID,
	})
}

func jwtError(c *fiber.Ctx, err error) error {
	if err.Error() == "Missing or malformed JWT" {
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"status": "error", "message": "Missing or malformed JWT", "data": nil})
	}
	return c.Status(fiber.StatusUnauthorized).
		JSON(fiber.Map{"status": "error", "message": "Invalid or expired JWT", "data": nil})
}

func storeUserID(c *fiber.Ctx) error {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return jwtError(c, ErrInvalidToken)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return jwtError(c, ErrInvalidToken)
	}
	userID, err := UserIDFromClaims(claims)
	if err != nil {
		return jwtError(c, err)
	}
	c.Locals(LocalUserID, userID)
	return c.Next()
}

func AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, _ := c.Locals("user").(*jwt.Token)
		var role string
		if token != nil {
			if claims, ok := token.Claims.(jwt.MapClaims); ok {
				role, _ = claims["role"].(string)
			}
		}

		if role != "admin" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Forbidden: Admin access required",
			})
		}
		return c.Next()
	}
}

// ParseToken verifies an HS256 token against JWT_SECRET.
func ParseToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(config.Config("JWT_SECRET")), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// UserIDFromClaims reads user_id, which issuers encode either as a JSON
// number or as a decimal string.
func UserIDFromClaims(claims jwt.MapClaims) (uint, error) {
	switch v := claims["user_id"].(type) {
	case float64:
		if v >= 1 && v == float64(uint(v)) {
			return uint(v), nil
		}
	case string:
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
			return uint(n), nil
		}
	}
	return 0, fmt.Errorf("%w: bad user_id claim", ErrInvalidToken)
}

// UserIDFromToken parses tokenString and returns its user id.
func UserIDFromToken(tokenString string) (uint, error) {
	claims, err := ParseToken(tokenString)
	if err != nil {
		return 0, err
	}
	return UserIDFromClaims(claims)
}

// WebSocketUpgrade admits websocket upgrades only. A token from the
// access_token query parameter or a Bearer header is verified here; without
// one the handler expects an auth frame first.
func WebSocketUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !fiberws.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		token := c.Query("access_token")
		if token == "" {
			if auth := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(auth, "Bearer ") {
				token = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if token == "" {
			return c.Next()
		}

		userID, err := UserIDFromToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired JWT"})
		}
		c.Locals(LocalUserID, userID)
		return c.Next()
	}
}

// CurrentUserID returns the id stored by Protected or WebSocketUpgrade, or 0.
func CurrentUserID(c *fiber.Ctx) uint {
	id, _ := c.Locals(LocalUserID).(uint)
	return id
}
