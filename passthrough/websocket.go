package passthrough

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"mockproxy/config"
	"mockproxy/steps"
)

// controlWriteWait bounds how long a forwarded ping/pong control frame may
// block the write side of the pipe.
const controlWriteWait = 5 * time.Second

// WSForwarder implements steps.WsForwarder — §4.5's WebSocket pass-through:
// subprotocol negotiation, header stripping, bidirectional pipe, rejection
// mirroring, and close-code handling.
type WSForwarder struct {
	Def    *config.PassThroughDef
	Params map[string]config.ParamDef

	tls  *TLSPolicy
	dial websocket.Dialer
}

func NewWSForwarder(def *config.PassThroughDef, params map[string]config.ParamDef) *WSForwarder {
	f := &WSForwarder{
		Def:    def,
		Params: params,
		tls:    NewTLSPolicy(def),
	}
	f.dial = websocket.Dialer{
		Proxy: http.ProxyFromEnvironment,
	}
	return f
}

func (f *WSForwarder) Dispose() {}

// ForwardWebSocket implements steps.WsForwarder.
func (f *WSForwarder) ForwardWebSocket(ctx context.Context, e *steps.Exec) error {
	req := e.Req
	host, port, scheme, path := resolveTarget(req, f.Def)

	tlsCfg, err := f.tls.Config(host, port, nil)
	if err != nil {
		return err
	}
	f.dial.TLSClientConfig = tlsCfg

	outURL := url.URL{
		Scheme:   wsScheme(scheme),
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     path,
		RawQuery: req.URL.RawQuery,
	}

	var subprotocols []string
	if e.WS != nil {
		subprotocols = e.WS.Subprotocols
	}

	upstreamHeaders := http.Header{}
	for _, h := range req.RawHeaders {
		if isWebSocketHopHeader(h.Key) {
			continue
		}
		upstreamHeaders.Add(h.Key, h.Value)
	}
	if len(subprotocols) > 0 {
		upstreamHeaders.Set("Sec-WebSocket-Protocol", strings.Join(subprotocols, ", "))
	}

	upstream, resp, err := f.dial.DialContext(ctx, outURL.String(), upstreamHeaders)
	if err != nil {
		if resp != nil && resp.StatusCode != 0 {
			return f.mirrorRejection(e, resp)
		}
		req.AddTag("passthrough-error:" + classifyErrorCode(err))
		e.Events.Publish("client-error", err.Error())
		e.Res.WriteHeader(502, "", map[string]string{"Content-Type": "text/plain"})
		e.Res.Write([]byte("Error communicating with upstream server"))
		return nil
	}
	defer upstream.Close()

	e.Events.Publish("passthrough-websocket-connect", map[string]interface{}{
		"method":   req.Method,
		"protocol": scheme,
		"hostname": host,
		"port":     port,
		"path":     path,
	})

	if e.WS == nil {
		return fmt.Errorf("ws-passthrough invoked without a downstream upgrade")
	}
	down := e.WS.Downstream

	errs := make(chan error, 2)
	go pipeWebSocket(upstream, down, errs)
	go pipeWebSocket(down, upstream, errs)

	err = <-errs
	closeWithCode(down, err)
	closeWithCode(upstream, err)
	return nil
}

// mirrorRejection writes the upstream's non-101 rejection status, headers
// and body to e.Res (§4.5). On the server's upgrade path the downstream
// connection is already upgraded and e.Res is a no-op writer, so there the
// rejection does not reach the client.
func (f *WSForwarder) mirrorRejection(e *steps.Exec, resp *http.Response) error {
	headers := map[string]string{}
	for k, vs := range resp.Header {
		if len(vs) > 0 {
			headers[k] = vs[0]
		}
	}
	e.Res.WriteHeader(resp.StatusCode, resp.Status, headers)
	if resp.Body != nil {
		buf := make([]byte, 4096)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				e.Res.Write(buf[:n])
			}
			if err != nil {
				break
			}
		}
		resp.Body.Close()
	}
	return nil
}

// wsConn is satisfied by both steps.WSConn and *gorilla/websocket.Conn, plus
// the control-frame handler registration both expose (gofiber/contrib's Conn
// embeds *gorilla/websocket.Conn, so these are promoted methods).
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetPingHandler(h func(appData string) error)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// pipeWebSocket forwards data frames from src to dst, and wires src's ping
// and pong handlers to forward those control frames (with their original
// payload) to dst too, per §4.5's "ping/pong forward with data".
func pipeWebSocket(src, dst wsConn, errs chan<- error) {
	src.SetPingHandler(func(appData string) error {
		return dst.WriteControl(websocket.PingMessage, []byte(appData), time.Now().Add(controlWriteWait))
	})
	src.SetPongHandler(func(appData string) error {
		return dst.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(controlWriteWait))
	})

	for {
		mt, data, err := src.ReadMessage()
		if err != nil {
			errs <- err
			return
		}
		if err := dst.WriteMessage(mt, data); err != nil {
			errs <- err
			return
		}
	}
}

// closeWithCode propagates a valid RFC-6455 close code, or a generic close
// otherwise (§4.5). It also reproduces a known faulty-client frame error by
// constructing the matching 2-byte close payload before closing.
func closeWithCode(c wsConn, err error) {
	if err == nil {
		c.Close()
		return
	}
	if code, ok := parseInvalidFrameCloseCode(err); ok {
		payload := []byte{byte(code >> 8), byte(code & 0xff)}
		c.WriteMessage(websocket.CloseMessage, payload)
		c.Close()
		return
	}
	if ce, ok := err.(*websocket.CloseError); ok && isValidCloseCode(ce.Code) {
		c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(ce.Code, ce.Text))
		c.Close()
		return
	}
	c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseAbnormalClosure, ""))
	c.Close()
}

func isValidCloseCode(code int) bool {
	if code >= 1000 && code <= 1014 {
		return code != 1004 && code != 1005 && code != 1006
	}
	return code >= 3000 && code <= 4999
}

var invalidFrameRe = regexp.MustCompile(`Invalid WebSocket frame: invalid status code (\d+)`)

func parseInvalidFrameCloseCode(err error) (int, bool) {
	m := invalidFrameRe.FindStringSubmatch(err.Error())
	if len(m) < 2 {
		return 0, false
	}
	code := 0
	for _, c := range m[1] {
		if c < '0' || c > '9' {
			return 0, false
		}
		code = code*10 + int(c-'0')
	}
	return code, true
}

func isWebSocketHopHeader(key string) bool {
	lower := strings.ToLower(key)
	if strings.HasPrefix(lower, "sec-websocket-") {
		return true
	}
	return lower == "connection" || lower == "upgrade"
}

func wsScheme(scheme string) string {
	switch strings.ToLower(scheme) {
	case "https", "wss":
		return "wss"
	default:
		return "ws"
	}
}
