// Package steps implements the step pipeline executor and the response step
// variants (§4.3 of the design notes): FixedResponse, File, Stream, Callback,
// JsonRpcResponse, CloseConnection, ResetConnection, Timeout, Delay,
// WaitForRequestBody, Webhook, PassThrough, WsPassThrough, WsEcho, WsListen
// and WsReject.
//
// Package steps does not import package rules: each concrete step here
// satisfies rules.Step's minimal IsFinal() bool surface structurally, so a
// rules.Rule can hold a []rules.Step built from these values without rules
// ever importing steps.
package steps

import (
	"context"
	"strings"
	"time"

	"mockproxy/reqres"
)

// Result is what a step's Handle returns to the executor loop (§4.3):
// whether the pipeline should continue to the next step.
type Result struct {
	Continue bool
}

// ResponseWriter is the minimal surface a step needs to produce a downstream
// response. The server package adapts the underlying transport (Fiber
// context, hijacked socket, ...) to this interface.
type ResponseWriter interface {
	WriteHeader(status int, statusMessage string, headers map[string]string)
	Write(p []byte) (int, error)
	WriteTrailers(trailers map[string]string)
}

// EventPublisher is the event-bus seam steps use to report observability
// events (§4.7) without importing package events.
type EventPublisher interface {
	Publish(topic string, payload interface{})
}

// Exec bundles everything a step's Handle needs: the matched request, a
// response sink, an event sink, and the request's fully-observed record
// (built by the caller before the pipeline runs, finalized after).
type Exec struct {
	Req       *reqres.Fingerprint
	Res       ResponseWriter
	Events    EventPublisher
	Completed *reqres.CompletedRequest

	// WS is set by the server when this request is a WebSocket upgrade, so
	// WsPassThrough can bridge the already-upgraded downstream connection
	// without package steps importing any WebSocket library (§4.5).
	WS *WebSocketExec
}

// WSConn is the minimal surface WsPassThrough/WsEcho/WsListen/WsReject need
// from the downstream WebSocket connection;
// *github.com/gofiber/contrib/websocket.Conn (itself a thin wrapper over
// gorilla/websocket) satisfies this structurally, including the promoted
// ping/pong handler registration §4.5 pass-through needs to forward control
// frames.
type WSConn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetPingHandler(h func(appData string) error)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// WebSocketExec carries the already-upgraded downstream connection plus the
// subprotocols the client offered (§4.5).
type WebSocketExec struct {
	Downstream   WSConn
	Subprotocols []string
}

// Step is the full interface the executor drives. Every concrete type in
// this package also implements rules.Step (IsFinal() bool) structurally.
type Step interface {
	IsFinal() bool
	Handle(ctx context.Context, e *Exec) (Result, error)
}

// AbortError signals intentional connection termination (§4.3, §7): the
// transport MUST close/reset the downstream socket and MUST NOT write an
// error body.
type AbortError struct {
	Reset bool
}

func (a *AbortError) Error() string {
	if a.Reset {
		return "abort: reset-connection"
	}
	return "abort: close-connection"
}

// Run drives the pipeline per §4.3: execute steps in order, stopping at the
// first one that signals Continue == false (typically the final step, or an
// AbortError/other error propagated by the caller).
func Run(ctx context.Context, e *Exec, pipeline []Step) error {
	for _, s := range pipeline {
		r, err := s.Handle(ctx, e)
		if err != nil {
			return err
		}
		if !r.Continue {
			return nil
		}
	}
	return nil
}

func mergeHeaders(base map[string]string) map[string]string {
	out := make(map[string]string, len(base))
	for k, v := range base {
		out[k] = v
	}
	return out
}

func headerLookup(h map[string]string, key string) (string, bool) {
	for k, v := range h {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}
