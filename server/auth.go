package server

import (
	"crypto/subtle"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"mockproxy/config"
)

const (
	JWTCookieName  = "mp_admin_jwt"
	ContextUserKey = "admin_claims"
)

var jwtSecret []byte

// initJWTSecret initializes the JWT signing key for the admin control
// plane. It prioritizes the environment variable; otherwise it derives a
// deterministic key from the admin password so sessions invalidate on a
// password change (§4.6/§4.7).
func initJWTSecret(admin *config.AdminConfig) {
	if secret := os.Getenv("MOCKPROXY_JWT_SECRET"); secret != "" {
		jwtSecret = []byte(secret)
		return
	}
	jwtSecret = []byte(admin.Auth.Password + "_mockproxy_admin_salt_v1")
}

type AdminClaims struct {
	Username string `json:"u"`
	jwt.RegisteredClaims
}

// generateToken creates a signed JWT for the authenticated admin user,
// valid for 72 hours.
func generateToken(username string) (string, error) {
	claims := AdminClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(72 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "mockproxy-admin",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

func validateToken(tokenString string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Enforce HMAC signing to rule out "none" algorithm attacks.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*AdminClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// AdminAuthMiddleware enforces stateless JWT auth over the admin surface —
// rule install/remove/reset, the serialization channel, debug/health — and
// is a no-op when admin.auth.enabled is false (§4.6).
func AdminAuthMiddleware(admin *config.AdminConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if admin.Auth == nil || !admin.Auth.Enabled {
			return c.Next()
		}
		if strings.HasSuffix(c.Path(), "/login") {
			return c.Next()
		}

		tokenString := c.Cookies(JWTCookieName)
		if tokenString == "" {
			if auth := c.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				tokenString = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		claims, err := validateToken(tokenString)
		if err != nil || claims.Username != admin.Auth.Username {
			return unauthorized(c)
		}

		c.Locals(ContextUserKey, claims)
		return c.Next()
	}
}

func unauthorized(c *fiber.Ctx) error {
	c.ClearCookie(JWTCookieName)
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "unauthorized",
		"code":  "AUTH_REQUIRED",
	})
}

// AdminLoginHandler authenticates admin credentials and sets the session
// cookie, comparing constant-time against the configured username/password
// to avoid timing attacks.
func AdminLoginHandler(admin *config.AdminConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var creds struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := c.BodyParser(&creds); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed request"})
		}

		userMatch := subtle.ConstantTimeCompare([]byte(creds.Username), []byte(admin.Auth.Username)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(creds.Password), []byte(admin.Auth.Password)) == 1

		if userMatch && passMatch {
			token, err := generateToken(creds.Username)
			if err != nil {
				return c.Status(fiber.StatusInternalServerError).SendString("token error")
			}
			c.Cookie(&fiber.Cookie{
				Name:     JWTCookieName,
				Value:    token,
				Expires:  time.Now().Add(72 * time.Hour),
				HTTPOnly: true,
				SameSite: "Lax",
			})
			return c.JSON(fiber.Map{"success": true})
		}

		time.Sleep(300 * time.Millisecond)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "invalid credentials"})
	}
}

// AdminLogoutHandler invalidates the session cookie.
func AdminLogoutHandler(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     JWTCookieName,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
		SameSite: "Lax",
		Path:     "/",
	})
	return c.JSON(fiber.Map{"success": true})
}

// AdminMeHandler returns the authenticated admin's identity.
func AdminMeHandler(c *fiber.Ctx) error {
	claims, ok := c.Locals(ContextUserKey).(*AdminClaims)
	if !ok || claims == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "session expired"})
	}
	return c.JSON(fiber.Map{"username": claims.Username})
}
