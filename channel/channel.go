// Package channel implements the serialization/duplex RPC channel (§4.6, I):
// a framed, correlated protocol over any byte stream (stdio, a WebSocket, a
// TCP socket) that lets a remote admin client install rules carrying
// `callback` matchers/steps and receive engine events, without the engine
// ever linking against that client's language runtime.
//
// Grounded on the teacher's rule that control-plane and data-plane speak
// different protocols (the console talks JSON over Fiber; here the
// serialization channel talks JSON-RPC 2.0 over sourcegraph/jsonrpc2). The
// channel has no handshake of its own: when admin auth is enabled, the admin
// transport in package server authenticates the connection before handing
// it over.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sourcegraph/jsonrpc2"

	"mockproxy/config"
	"mockproxy/events"
)

// RuleInstaller is the engine-side seam the channel drives: installing and
// clearing rules without channel importing package engine (which in turn
// wires RemotePredicate/RemoteResponder stubs built from this same
// channel — importing engine here would cycle).
type RuleInstaller interface {
	AddRules(defs []config.RuleDef) ([]string, error)
	RemoveRule(id string) error
	Reset() error
}

// addRulesParams/addRulesResult are the "rules/add" RPC shapes (§4.6 "Rule
// transport").
type addRulesParams struct {
	Rules []config.RuleDef `json:"rules"`
}

type addRulesResult struct {
	IDs []string `json:"ids"`
}

type removeRuleParams struct {
	ID string `json:"id"`
}

// Channel wraps one jsonrpc2.Conn and dispatches the fixed RPC surface
// described in §4.6: rule install/remove/reset, and an event subscription
// that forwards bus events as server-to-client notifications.
type Channel struct {
	conn      *jsonrpc2.Conn
	installer RuleInstaller
	bus       *events.Bus

	streamsMu sync.Mutex
	streams   map[string]*RemoteStream
}

// NewChannel wires conn's JSON-RPC calls to installer and forwards bus
// events as "event" notifications once the remote subscribes.
func NewChannel(ctx context.Context, stream jsonrpc2.ObjectStream, installer RuleInstaller, bus *events.Bus) *Channel {
	ch := &Channel{
		installer: installer,
		bus:       bus,
		streams:   map[string]*RemoteStream{},
	}
	ch.conn = jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(ch.handle))
	return ch
}

// Conn exposes the underlying connection so callback stubs (RemotePredicate,
// RemoteResponder) can issue "predicate/*"/"responder/*" calls over it.
func (c *Channel) Conn() *jsonrpc2.Conn { return c.conn }

// Close tears down the connection and any pending remote streams.
func (c *Channel) Close() error {
	c.streamsMu.Lock()
	for id, rs := range c.streams {
		rs.abort(fmt.Errorf("channel closed"))
		delete(c.streams, id)
	}
	c.streamsMu.Unlock()
	return c.conn.Close()
}

// handle implements jsonrpc2.Handler via jsonrpc2.HandlerWithError, routing
// each inbound method to its RPC (§4.6).
func (c *Channel) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
	switch req.Method {
	case "rules/add":
		var params addRulesParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		ids, err := c.installer.AddRules(params.Rules)
		if err != nil {
			return nil, err
		}
		return addRulesResult{IDs: ids}, nil

	case "rules/remove":
		var params removeRuleParams
		if err := unmarshalParams(req, &params); err != nil {
			return nil, err
		}
		if err := c.installer.RemoveRule(params.ID); err != nil {
			return nil, err
		}
		return true, nil

	case "rules/reset":
		if err := c.installer.Reset(); err != nil {
			return nil, err
		}
		return true, nil

	case "events/subscribe":
		return c.subscribeEvents(ctx), nil

	case "stream/data", "stream/end":
		return nil, c.routeStreamFrame(req.Method, req)

	default:
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "unknown method: " + req.Method}
	}
}

func unmarshalParams(req *jsonrpc2.Request, v interface{}) error {
	if req.Params == nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(*req.Params, v); err != nil {
		return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
	}
	return nil
}

type subscribeResult struct {
	Subscribed bool `json:"subscribed"`
}

// subscribeEvents starts a background forwarder that turns every future bus
// event into an "event" notification on this connection, until the
// connection closes.
func (c *Channel) subscribeEvents(ctx context.Context) subscribeResult {
	evCh, unsubscribe := c.bus.Subscribe(128)
	go func() {
		defer unsubscribe()
		for {
			select {
			case ev, ok := <-evCh:
				if !ok {
					return
				}
				_ = c.conn.Notify(ctx, "event", map[string]interface{}{
					"topic":   ev.Topic,
					"payload": ev.Payload,
				})
			case <-c.conn.DisconnectNotify():
				return
			}
		}
	}()
	return subscribeResult{Subscribed: true}
}

// streamFrame is the params of one stream-step message (§4.6 "Stream
// steps"): `{id, content: {type, value}}`; whether it is data or end is
// carried by the method name, "stream/data" or "stream/end".
type streamFrame struct {
	ID      string        `json:"id"`
	Content streamContent `json:"content"`
}

type streamContent struct {
	Type  string `json:"type"` // "string" | "buffer" | "arraybuffer" | "nil"
	Value string `json:"value,omitempty"`
}

// routeStreamFrame feeds an incoming "stream/data"/"stream/end" notification
// to the RemoteStream registered under its id (registered by RegisterStream
// when a Stream step's source is this remote channel).
func (c *Channel) routeStreamFrame(method string, req *jsonrpc2.Request) error {
	var frame streamFrame
	if err := unmarshalParams(req, &frame); err != nil {
		return err
	}

	c.streamsMu.Lock()
	rs, ok := c.streams[frame.ID]
	c.streamsMu.Unlock()
	if !ok {
		return fmt.Errorf("stream-unknown: no pending stream %q", frame.ID)
	}

	if method == "stream/end" {
		rs.feedEnd()
		return nil
	}
	return rs.feedData(frame.Content)
}

// RegisterStream registers a RemoteStream to receive "stream/data"/
// "stream/end" frames tagged with id, and arranges for its first Read to
// send the single "stream/ping" resume notification described in §4.6 (the
// engine pauses the remote producer until the downstream actually begins
// piping the response).
func (c *Channel) RegisterStream(id string) *RemoteStream {
	rs := newRemoteStream(c, id)
	c.streamsMu.Lock()
	c.streams[id] = rs
	c.streamsMu.Unlock()
	return rs
}

// unregisterStream drops a completed/aborted stream's registration.
func (c *Channel) unregisterStream(id string) {
	c.streamsMu.Lock()
	delete(c.streams, id)
	c.streamsMu.Unlock()
}

// ping sends the single resume notification that tells the remote producer
// to start forwarding frames for streamID.
func (c *Channel) ping(streamID string) {
	_ = c.conn.Notify(context.Background(), "stream/ping", map[string]string{"id": streamID})
}
