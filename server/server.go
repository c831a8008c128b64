// Package server adapts the engine to an HTTP(S)/WebSocket transport via
// Fiber: the catch-all proxy listener, the JWT-protected admin surface
// (rule install/remove/reset, the serialization channel, debug/health), and
// the ambient middleware stack (CORS, recovery, structured request logging).
package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"mockproxy/config"
	"mockproxy/engine"
	appinfo "mockproxy/internal/appinfo"
	mslogger "mockproxy/logger"
	server_handlers "mockproxy/server/handlers"
)

func (e *ApiError) Error() string { return e.Message }

// Attach wires the engine onto a fresh Fiber app: middleware, the admin
// control plane, and the catch-all proxy handler. Mirrors the teacher's
// StartServer bootstrap shape, generalized from a fixed mock-route table to
// a single engine-driven catch-all.
func Attach(eng *engine.Engine) *fiber.App {
	cfg := eng.Config()
	initJWTSecret(cfg.Admin)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	setupMiddleware(app, cfg)

	if cfg.Admin.Enabled {
		registerAdminRoutes(app, cfg, eng)
	}

	app.Use(ProxyHandler(eng))

	return app
}

// errorHandler normalizes every handler error (ApiError, *fiber.Error, or a
// bare error) into the same structured JSON body the admin surface returns.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal server error"
	errorCode := "INTERNAL_SERVER_ERROR"

	switch e := err.(type) {
	case *ApiError:
		code = e.Status
		message = e.Message
		errorCode = e.ErrorCode
	case *fiber.Error:
		code = e.Code
		message = e.Message
		errorCode = strings.ToUpper(strings.ReplaceAll(message, " ", "_"))
	default:
		message = err.Error()
		errorCode = "INTERNAL_SERVER_ERROR"
	}

	return c.Status(code).JSON(&ApiError{
		Success:   false,
		Status:    code,
		Err:       http.StatusText(code),
		ErrorCode: errorCode,
		Message:   message,
		Timestamp: time.Now().UTC().UnixNano() / 1e6,
	})
}

func setupMiddleware(app *fiber.App, cfg *config.EngineConfig) {
	app.Use(recover.New())

	app.Use(func(c *fiber.Ctx) error {
		id := uuid.NewString()
		c.Locals(server_handlers.CtxRequestID, id)
		c.Set("X-Request-Id", id)
		return c.Next()
	})

	if cfg.CORS != nil && cfg.CORS.Enabled {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     strings.Join(cfg.CORS.AllowOrigins, ","),
			AllowMethods:     strings.Join(cfg.CORS.AllowMethods, ","),
			AllowHeaders:     strings.Join(cfg.CORS.AllowHeaders, ","),
			AllowCredentials: cfg.CORS.AllowCredentials,
		}))
	}

	app.Use(mslogger.RequestLogger())
}

// registerAdminRoutes mounts the JWT-protected rule/channel/debug/health
// surface under cfg.Admin.Path, separate from the catch-all proxy routes.
func registerAdminRoutes(app *fiber.App, cfg *config.EngineConfig, eng *engine.Engine) {
	prefix := cfg.Admin.Path

	app.Post(prefix+"/login", AdminLoginHandler(cfg.Admin))

	admin := app.Group(prefix, AdminAuthMiddleware(cfg.Admin))
	admin.Post("/logout", AdminLogoutHandler)
	admin.Get("/me", AdminMeHandler)

	admin.Get("/rules", ListRulesHandler(eng))
	admin.Post("/rules", AddRulesHandler(eng))
	admin.Delete("/rules/:id", RemoveRuleHandler(eng))
	admin.Post("/rules/reset", ResetRulesHandler(eng))

	admin.Get("/channel", ChannelHandler(eng))

	if cfg.Debug != nil && cfg.Debug.Enabled {
		log := newDebugLog(200)
		log.run(eng)
		admin.Get(cfg.Debug.Path, DebugRequestsHandler(log))
	}

	admin.Get("/health", server_handlers.HealthHandler(func() int { return len(eng.Snapshot()) }, appinfo.Version))
}

// Listen starts serving on the engine's configured port, logging the bound
// host the way the teacher's bootstrap announces readiness.
func Listen(app *fiber.App, port int) error {
	addr := fmt.Sprintf(":%d", port)
	mslogger.LogServerStart(addr)
	return app.Listen(addr)
}
