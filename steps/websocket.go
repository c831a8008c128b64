package steps

import (
	"context"
	"fmt"
)

// WsEcho accepts the upgrade and echoes every downstream frame back
// verbatim, preserving its message type, until the connection closes
// (§6's `ws-echo`). Final.
type WsEcho struct{}

func (s *WsEcho) IsFinal() bool { return true }

func (s *WsEcho) Handle(ctx context.Context, e *Exec) (Result, error) {
	if e.WS == nil {
		return Result{}, fmt.Errorf("ws-echo invoked without a downstream upgrade")
	}
	conn := e.WS.Downstream
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return Result{Continue: false}, nil
		}
		if err := conn.WriteMessage(mt, data); err != nil {
			return Result{Continue: false}, nil
		}
	}
}

// WsListen accepts the upgrade and reads frames until the client closes the
// connection, discarding every message and never responding (§6's
// `ws-listen`). Final.
type WsListen struct{}

func (s *WsListen) IsFinal() bool { return true }

func (s *WsListen) Handle(ctx context.Context, e *Exec) (Result, error) {
	if e.WS == nil {
		return Result{}, fmt.Errorf("ws-listen invoked without a downstream upgrade")
	}
	conn := e.WS.Downstream
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return Result{Continue: false}, nil
		}
	}
}

// WsReject closes the freshly-upgraded downstream connection with a
// close-frame carrying Status/StatusMessage, reproducing a rejected
// handshake (§6's `ws-reject`). The transport upgrades eagerly before a
// rule is selected, so the HTTP upgrade itself cannot be refused; sending an
// immediate close frame is the closest downstream-observable equivalent.
// Final.
type WsReject struct {
	Status        int
	StatusMessage string
}

func (s *WsReject) IsFinal() bool { return true }

func (s *WsReject) Handle(ctx context.Context, e *Exec) (Result, error) {
	if e.WS == nil {
		return Result{}, fmt.Errorf("ws-reject invoked without a downstream upgrade")
	}
	code := s.Status
	if code == 0 {
		code = 1008 // policy violation, closest WS close code to an HTTP reject
	}
	reason := s.StatusMessage
	if reason == "" {
		reason = "rejected"
	}
	_ = e.WS.Downstream.WriteMessage(closeMessageType, formatCloseMessage(code, reason))
	return Result{Continue: false}, nil
}

// closeMessageType mirrors gorilla/websocket.CloseMessage without importing
// the library into package steps, which stays websocket-library-agnostic
// (§9: "package steps does not import package rules" applies the same way
// to transport libraries — WSConn is a structural interface only).
const closeMessageType = 8

// formatCloseMessage builds an RFC 6455 close-frame payload: a 2-byte
// big-endian status code followed by the UTF-8 reason text.
func formatCloseMessage(code int, text string) []byte {
	buf := make([]byte, 2+len(text))
	buf[0] = byte(code >> 8)
	buf[1] = byte(code & 0xff)
	copy(buf[2:], text)
	return buf
}
