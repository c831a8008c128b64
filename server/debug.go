package server

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"mockproxy/engine"
)

// requestLogEntry is one ring-buffer record of a proxied request, fed by the
// engine's event bus rather than Fiber route metadata: every request flows
// through the same catch-all handler, so there is no per-route name/type to
// key logs by the way the teacher's debug handler did.
type requestLogEntry struct {
	Time    time.Time   `json:"time"`
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
}

// debugLog is a bounded ring buffer of recent bus events, grounded on the
// teacher's debugRequestsHandler.go background aggregator goroutine — here
// generalized from "one log channel" to "subscribe to the engine bus".
type debugLog struct {
	mu      sync.Mutex
	entries []requestLogEntry
	max     int
}

func newDebugLog(max int) *debugLog {
	return &debugLog{max: max}
}

func (d *debugLog) run(eng *engine.Engine) {
	ch, _ := eng.Bus.Subscribe(128)
	go func() {
		for ev := range ch {
			d.mu.Lock()
			d.entries = append(d.entries, requestLogEntry{Time: time.Now(), Topic: ev.Topic, Payload: ev.Payload})
			if len(d.entries) > d.max {
				d.entries = d.entries[len(d.entries)-d.max:]
			}
			d.mu.Unlock()
		}
	}()
}

func (d *debugLog) snapshot() []requestLogEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]requestLogEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

// DebugRequestsHandler serves the recent request/response/abort event log
// captured off the engine's event bus (§4.7/J, §S debug surface).
func DebugRequestsHandler(log *debugLog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(log.snapshot())
	}
}
