package server

import (
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"mockproxy/engine"
	"mockproxy/steps"
)

// ProxyHandler is the catch-all handler: every inbound request not claimed
// by the admin surface is fingerprinted and handed to the engine, which
// selects a rule (or applies the fallback policy) and drives its response
// (§4.2). WebSocket upgrade requests are detected up front and routed
// through the upgrade-aware path instead, since Fiber must decide to upgrade
// before any response body can be written.
func ProxyHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return proxyWebSocket(eng)(c)
		}

		req := BuildFingerprint(c)
		res := newFiberResponseWriter(c)

		if err := eng.HandleRequest(c.Context(), req, res, nil); err != nil {
			if _, ok := err.(*steps.AbortError); ok {
				return c.Context().Conn().Close()
			}
			return err
		}
		return nil
	}
}

// proxyWebSocket upgrades the downstream connection, then hands the engine
// both the fingerprint captured before the upgrade (headers, cookies,
// ws/wss protocol marker) and the upgraded connection so ws-passthrough and
// callback steps can drive it (§4.5).
func proxyWebSocket(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := BuildFingerprint(c)

		var subprotocols []string
		if raw := c.Get("Sec-WebSocket-Protocol"); raw != "" {
			for _, p := range strings.Split(raw, ",") {
				subprotocols = append(subprotocols, strings.TrimSpace(p))
			}
		}

		return websocket.New(func(conn *websocket.Conn) {
			defer conn.Close()

			res := &noopResponseWriter{}
			ws := &steps.WebSocketExec{Downstream: conn, Subprotocols: subprotocols}

			_ = eng.HandleRequest(c.Context(), req, res, ws)
		})(c)
	}
}

// noopResponseWriter satisfies steps.ResponseWriter for the already-upgraded
// WebSocket path, where the downstream connection is raw and a status/header
// response is no longer meaningful.
type noopResponseWriter struct{}

func (noopResponseWriter) WriteHeader(status int, statusMessage string, headers map[string]string) {}
func (noopResponseWriter) Write(p []byte) (int, error)                                              { return len(p), nil }
func (noopResponseWriter) WriteTrailers(trailers map[string]string)                                 {}
