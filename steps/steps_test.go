package steps

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mockproxy/reqres"
	"mockproxy/rpc"
)

type fakeWriter struct {
	status   int
	message  string
	headers  map[string]string
	body     []byte
	trailers map[string]string
}

func (w *fakeWriter) WriteHeader(status int, message string, headers map[string]string) {
	w.status = status
	w.message = message
	w.headers = headers
}

func (w *fakeWriter) Write(p []byte) (int, error) {
	w.body = append(w.body, p...)
	return len(p), nil
}

func (w *fakeWriter) WriteTrailers(t map[string]string) { w.trailers = t }

type fakeEvents struct {
	published []string
}

func (e *fakeEvents) Publish(topic string, payload interface{}) {
	e.published = append(e.published, topic)
}

func newExec(t *testing.T, method string) (*Exec, *fakeWriter) {
	t.Helper()
	u, err := url.Parse("http://example.com/a")
	require.NoError(t, err)
	req := &reqres.Fingerprint{Method: method, URL: u, Body: reqres.NewBody(nil, "")}
	w := &fakeWriter{}
	return &Exec{Req: req, Res: w, Events: &fakeEvents{}}, w
}

func TestFixedResponse_WritesStatusAndBody(t *testing.T) {
	e, w := newExec(t, "GET")
	s := &FixedResponse{Status: 418, Data: []byte("teapot")}
	r, err := s.Handle(context.Background(), e)
	require.NoError(t, err)
	assert.False(t, r.Continue)
	assert.Equal(t, 418, w.status)
	assert.Equal(t, "teapot", string(w.body))
	assert.Equal(t, "6", w.headers["Content-Length"])
}

func TestFixedResponse_WritesTrailersWithoutValidating(t *testing.T) {
	e, w := newExec(t, "GET")
	s := &FixedResponse{Status: 200, Trailers: map[string]string{"X-Checksum": "abc"}}
	_, err := s.Handle(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"X-Checksum": "abc"}, w.trailers)
}

func TestValidateTrailers_RejectsTrailersWithoutChunkedEncoding(t *testing.T) {
	err := ValidateTrailers(nil, map[string]string{"X-Checksum": "abc"})
	assert.ErrorContains(t, err, "validation")
}

func TestValidateTrailers_AcceptsChunkedEncoding(t *testing.T) {
	headers := map[string]string{"Transfer-Encoding": "chunked"}
	assert.NoError(t, ValidateTrailers(headers, map[string]string{"X-Checksum": "abc"}))
}

func TestFixedResponse_TemplatesJSONDataAndSetsContentType(t *testing.T) {
	e, w := newExec(t, "GET")
	s := &FixedResponse{Status: 200, Data: map[string]interface{}{"method": "{{request.method}}"}}
	_, err := s.Handle(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, "application/json", w.headers["Content-Type"])
	assert.Contains(t, string(w.body), `"GET"`)
}

func TestCloseConnection_ReturnsAbortError(t *testing.T) {
	e, _ := newExec(t, "GET")
	s := &CloseConnection{}
	_, err := s.Handle(context.Background(), e)
	var abortErr *AbortError
	require.ErrorAs(t, err, &abortErr)
	assert.False(t, abortErr.Reset)
}

func TestResetConnection_ReturnsResetAbortError(t *testing.T) {
	e, _ := newExec(t, "GET")
	s := &ResetConnection{}
	_, err := s.Handle(context.Background(), e)
	var abortErr *AbortError
	require.ErrorAs(t, err, &abortErr)
	assert.True(t, abortErr.Reset)
}

func TestDelay_WaitsBeforeContinuing(t *testing.T) {
	e, _ := newExec(t, "GET")
	s := &Delay{Duration: 5 * time.Millisecond}
	start := time.Now()
	r, err := s.Handle(context.Background(), e)
	require.NoError(t, err)
	assert.True(t, r.Continue)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestWaitForRequestBody_NonFinalAndPropagatesDecodeError(t *testing.T) {
	e, _ := newExec(t, "GET")
	e.Req.Body = reqres.NewUndecodableBody(assert.AnError)
	s := &WaitForRequestBody{}
	assert.False(t, s.IsFinal())
	_, err := s.Handle(context.Background(), e)
	assert.Error(t, err)
}

func TestStream_RejectsSecondUseWithFixedBody(t *testing.T) {
	e1, w1 := newExec(t, "GET")
	s := &Stream{Status: 200, Source: newReaderFromString("hello")}
	r, err := s.Handle(context.Background(), e1)
	require.NoError(t, err)
	assert.False(t, r.Continue)
	assert.Equal(t, "hello", string(w1.body))

	e2, w2 := newExec(t, "GET")
	_, err = s.Handle(context.Background(), e2)
	require.NoError(t, err)
	assert.Equal(t, 500, w2.status)
	assert.Contains(t, string(w2.body), "stream-reused")
}

func TestCallback_CloseActionReturnsAbortError(t *testing.T) {
	e, _ := newExec(t, "GET")
	e.Completed = &reqres.CompletedRequest{Method: "GET"}
	responder := rpc.ResponderFunc(func(req *reqres.CompletedRequest) (*rpc.ResponderResult, error) {
		return &rpc.ResponderResult{Action: "close"}, nil
	})
	s := &Callback{Responder: responder}
	_, err := s.Handle(context.Background(), e)
	var abortErr *AbortError
	require.ErrorAs(t, err, &abortErr)
}

func TestCallback_WritesResponderResult(t *testing.T) {
	e, w := newExec(t, "GET")
	e.Completed = &reqres.CompletedRequest{Method: "GET"}
	responder := rpc.ResponderFunc(func(req *reqres.CompletedRequest) (*rpc.ResponderResult, error) {
		return &rpc.ResponderResult{Status: 201, Body: []byte("created")}, nil
	})
	s := &Callback{Responder: responder}
	_, err := s.Handle(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, 201, w.status)
	assert.Equal(t, "created", string(w.body))
}

func TestJsonRpcResponse_RejectsNonJsonRpcBody(t *testing.T) {
	e, w := newExec(t, "POST")
	e.Req.Body = reqres.NewBody([]byte(`{"not":"rpc"}`), "application/json")
	s := &JsonRpcResponse{Result: "ok"}
	_, err := s.Handle(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, 400, w.status)
}

func TestJsonRpcResponse_EchoesRequestID(t *testing.T) {
	e, w := newExec(t, "POST")
	e.Req.Body = reqres.NewBody([]byte(`{"jsonrpc":"2.0","method":"ping","id":7}`), "application/json")
	s := &JsonRpcResponse{Result: "pong"}
	_, err := s.Handle(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, 200, w.status)
	assert.Contains(t, string(w.body), `"id":7`)
	assert.Contains(t, string(w.body), `"pong"`)
}

func TestPassThrough_DelegatesToForwarder(t *testing.T) {
	e, _ := newExec(t, "GET")
	called := false
	fwd := forwarderFunc(func(ctx context.Context, e *Exec) error {
		called = true
		return nil
	})
	s := &PassThrough{Forwarder: fwd}
	r, err := s.Handle(context.Background(), e)
	require.NoError(t, err)
	assert.False(t, r.Continue)
	assert.True(t, called)
}

type forwarderFunc func(ctx context.Context, e *Exec) error

func (f forwarderFunc) Forward(ctx context.Context, e *Exec) error { return f(ctx, e) }

func newReaderFromString(s string) *strings.Reader { return strings.NewReader(s) }

// fakeWSConn is a downstream WebSocket double for ws-echo/ws-listen/ws-reject
// tests: Inbound is drained by ReadMessage, Outbound collects what gets
// written back.
type fakeWSConn struct {
	Inbound  [][]byte
	Outbound [][]byte
	read     int
}

func (c *fakeWSConn) ReadMessage() (int, []byte, error) {
	if c.read >= len(c.Inbound) {
		return 0, nil, assert.AnError
	}
	msg := c.Inbound[c.read]
	c.read++
	return 1, msg, nil
}

func (c *fakeWSConn) WriteMessage(messageType int, data []byte) error {
	c.Outbound = append(c.Outbound, append([]byte(nil), data...))
	return nil
}

func (c *fakeWSConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	return c.WriteMessage(messageType, data)
}

func (c *fakeWSConn) SetPingHandler(h func(appData string) error) {}
func (c *fakeWSConn) SetPongHandler(h func(appData string) error) {}
func (c *fakeWSConn) Close() error                                { return nil }

func TestWsEcho_EchoesEveryFrameBack(t *testing.T) {
	e, _ := newExec(t, "GET")
	conn := &fakeWSConn{Inbound: [][]byte{[]byte("one"), []byte("two")}}
	e.WS = &WebSocketExec{Downstream: conn}
	s := &WsEcho{}
	_, err := s.Handle(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("one"), []byte("two")}, conn.Outbound)
}

func TestWsEcho_RequiresUpgrade(t *testing.T) {
	e, _ := newExec(t, "GET")
	s := &WsEcho{}
	_, err := s.Handle(context.Background(), e)
	assert.Error(t, err)
}

func TestWsListen_DiscardsFramesAndNeverResponds(t *testing.T) {
	e, _ := newExec(t, "GET")
	conn := &fakeWSConn{Inbound: [][]byte{[]byte("one"), []byte("two")}}
	e.WS = &WebSocketExec{Downstream: conn}
	s := &WsListen{}
	_, err := s.Handle(context.Background(), e)
	require.NoError(t, err)
	assert.Empty(t, conn.Outbound)
}

func TestWsReject_SendsCloseFrameWithConfiguredCode(t *testing.T) {
	e, _ := newExec(t, "GET")
	conn := &fakeWSConn{}
	e.WS = &WebSocketExec{Downstream: conn}
	s := &WsReject{Status: 4001, StatusMessage: "nope"}
	_, err := s.Handle(context.Background(), e)
	require.NoError(t, err)
	require.Len(t, conn.Outbound, 1)
	frame := conn.Outbound[0]
	code := int(frame[0])<<8 | int(frame[1])
	assert.Equal(t, 4001, code)
	assert.Equal(t, "nope", string(frame[2:]))
}
