package server

import (
	"context"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/sourcegraph/jsonrpc2"

	"mockproxy/channel"
	"mockproxy/config"
	"mockproxy/engine"
)

// addRulesRequest is the HTTP install-rules body; it reuses config.RuleDef
// directly as the wire shape, mirroring the same struct the serialization
// channel accepts over `rules/add` (§4.6, §6).
type addRulesRequest struct {
	Rules []config.RuleDef `json:"rules"`
}

// AddRulesHandler installs one or more rules over the HTTP admin surface —
// the REST equivalent of the channel's `rules/add` RPC (§3, §6).
func AddRulesHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body addRulesRequest
		if err := c.BodyParser(&body); err != nil {
			return &ApiError{Status: fiber.StatusBadRequest, ErrorCode: "MALFORMED_BODY", Message: err.Error()}
		}
		ids, err := eng.AddRules(body.Rules)
		if err != nil {
			return &ApiError{Status: fiber.StatusBadRequest, ErrorCode: "RULE_INVALID", Message: err.Error()}
		}
		return c.JSON(fiber.Map{"ids": ids})
	}
}

// RemoveRuleHandler drops a single rule by id (§6).
func RemoveRuleHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if err := eng.RemoveRule(id); err != nil {
			return &ApiError{Status: fiber.StatusNotFound, ErrorCode: "RULE_NOT_FOUND", Message: err.Error()}
		}
		return c.JSON(fiber.Map{"success": true})
	}
}

// ResetRulesHandler disposes and clears every installed rule (§6).
func ResetRulesHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := eng.Reset(); err != nil {
			return &ApiError{Status: fiber.StatusInternalServerError, ErrorCode: "RESET_FAILED", Message: err.Error()}
		}
		return c.JSON(fiber.Map{"success": true})
	}
}

// ListRulesHandler reports the live rule snapshot for admin inspection.
func ListRulesHandler(eng *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap := eng.Snapshot()
		out := make([]fiber.Map, len(snap))
		for i, r := range snap {
			out[i] = fiber.Map{
				"id":       r.ID,
				"priority": r.Priority,
				"order":    r.RegisteredOrder,
			}
		}
		return c.JSON(out)
	}
}

// ChannelHandler upgrades an admin WebSocket connection into the
// serialization channel (§4.6): a jsonrpc2 connection framed with
// VSCodeObjectCodec, riding the socket via wsByteStream, wired to the
// engine as the single active channel for the connection's lifetime.
func ChannelHandler(eng *engine.Engine) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		defer conn.Close()

		stream := jsonrpc2.NewBufferedStream(newWSByteStream(conn), jsonrpc2.VSCodeObjectCodec{})
		ch := channel.NewChannel(context.Background(), stream, eng, eng.Bus)
		eng.SetActiveChannel(ch)
		defer eng.SetActiveChannel(nil)

		<-ch.Conn().DisconnectNotify()
	})
}
