package mgmt

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// Role defines the access level of an authenticated API caller.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleReadOnly Role = "readonly"
)

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Mode      string // "api-key", "jwt", "none"
	APIKey    string // static key, grants admin
	JWTSecret string // HS256 signing secret for jwt mode
}

// NewAuthMiddleware returns a Fiber middleware that validates the
// Authorization header per the configured mode.
func NewAuthMiddleware(cfg AuthConfig, logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.Mode == "none" {
			c.Locals("role", RoleAdmin)
			return c.Next()
		}

		// Probe endpoints stay open for orchestrators and scrapers.
		path := c.Path()
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return problemResponse(c, fiber.StatusUnauthorized,
				"missing_auth", "Unauthorized",
				"Authorization header is required")
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return problemResponse(c, fiber.StatusUnauthorized,
				"invalid_auth_scheme", "Unauthorized",
				"Authorization header must use Bearer scheme")
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")

		switch cfg.Mode {
		case "api-key":
			if cfg.APIKey != "" && token == cfg.APIKey {
				c.Locals("role", RoleAdmin)
				return c.Next()
			}
			logger.Warn().
				Str("path", path).
				Str("method", c.Method()).
				Msg("unauthorized request: invalid API key")
			return problemResponse(c, fiber.StatusUnauthorized,
				"invalid_api_key", "Unauthorized",
				"Invalid API key")

		case "jwt":
			role, err := validateJWT(token, cfg.JWTSecret)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("path", path).
					Str("method", c.Method()).
					Msg("unauthorized request: invalid token")
				return problemResponse(c, fiber.StatusUnauthorized,
					"invalid_token", "Unauthorized",
					"Invalid or expired token")
			}
			c.Locals("role", role)
			return c.Next()

		default:
			return problemResponse(c, fiber.StatusUnauthorized,
				"auth_misconfigured", "Unauthorized",
				"Unknown authentication mode")
		}
	}
}

// validateJWT verifies an HS256 token and extracts the role claim.
// A token without a role claim is read-only.
func validateJWT(tokenString, secret string) (Role, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("unexpected claims type")
	}

	switch role, _ := claims["role"].(string); Role(role) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleOperator:
		return RoleOperator, nil
	default:
		return RoleReadOnly, nil
	}
}

// requireRole returns a middleware that enforces a minimum role level.
func requireRole(minRole Role) fiber.Handler {
	roleLevel := map[Role]int{
		RoleReadOnly: 1,
		RoleOperator: 2,
		RoleAdmin:    3,
	}

	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("role").(Role)
		if roleLevel[role] < roleLevel[minRole] {
			return problemResponse(c, fiber.StatusForbidden,
				"insufficient_role", "Forbidden",
				"Insufficient permissions for this operation")
		}
		return c.Next()
	}
}

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}
