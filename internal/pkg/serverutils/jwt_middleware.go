package serverutils

import (
	"errors"
	"os"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/access"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	LocalUsername    = "username"
	LocalEmail       = "email"
	LocalRole        = "role"
	LocalPermissions = "permissions"
)

// Identity is what the token says about the caller.
type Identity struct {
	Username    string
	Email       string
	Role        string
	Permissions []string
}

var ErrMissingSecret = errors.New("JWT_SECRET is not set")

func jwtSecret() ([]byte, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return []byte(secret), nil
}

func JwtMiddleware(ctx *fiber.Ctx) error {
	authHeader := ctx.Get("Authorization")
	if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
		return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(401, "Missing token"))
	}
	tokenStr := authHeader[7:]

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return jwtSecret()
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil || !token.Valid {
		return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(401, "Invalid token"))
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(401, "Invalid claims"))
	}

	username, _ := claims["username"].(string)
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)

	ctx.Locals(LocalUsername, username)
	ctx.Locals(LocalEmail, email)
	ctx.Locals(LocalRole, access.NormalizeRole(role))
	ctx.Locals(LocalPermissions, stringSlice(claims["permissions"]))
	return ctx.Next()
}

// RequirePermission must run after JwtMiddleware. A token without a
// permissions claim gets the role's defaults from policy.
func RequirePermission(policy *access.Policy, permission string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		id := IdentityFrom(ctx)
		perms := id.Permissions
		if len(perms) == 0 {
			perms = policy.Permissions(id.Role)
		}
		if !access.HasPermission(perms, permission) {
			return ctx.Status(fiber.StatusForbidden).JSON(ErrorResponse(403, "Access denied: missing permission "+permission))
		}
		return ctx.Next()
	}
}

func IdentityFrom(ctx *fiber.Ctx) Identity {
	id := Identity{}
	id.Username, _ = ctx.Locals(LocalUsername).(string)
	id.Email, _ = ctx.Locals(LocalEmail).(string)
	id.Role, _ = ctx.Locals(LocalRole).(string)
	id.Permissions, _ = ctx.Locals(LocalPermissions).([]string)
	if id.Role == "" {
		id.Role = access.RolePublic
	}
	return id
}

// SignToken issues an HS256 token carrying the identity claims. Used by the CLI and tests.
func SignToken(id Identity, claims jwt.MapClaims) (string, error) {
	if claims == nil {
		claims = jwt.MapClaims{}
	}
	claims["username"] = id.Username
	claims["email"] = id.Email
	claims["role"] = id.Role
	claims["permissions"] = id.Permissions

	secret, err := jwtSecret()
	if err != nil {
		return "", err
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func stringSlice(v interface{}) []string {
	switch vals := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return vals
	default:
		return []string{}
	}
}
