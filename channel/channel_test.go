package channel

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mockproxy/config"
	"mockproxy/events"
)

type fakeInstaller struct {
	added   [][]config.RuleDef
	removed []string
	resets  int
}

func (f *fakeInstaller) AddRules(defs []config.RuleDef) ([]string, error) {
	f.added = append(f.added, defs)
	ids := make([]string, len(defs))
	for i := range defs {
		ids[i] = "rule-0"
	}
	return ids, nil
}

func (f *fakeInstaller) RemoveRule(id string) error {
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeInstaller) Reset() error {
	f.resets++
	return nil
}

// pipeConns returns two connected net.Conn halves for an in-process
// client/server pair.
func pipeConns() (net.Conn, net.Conn) {
	return net.Pipe()
}

func newTestChannel(t *testing.T) (*Channel, *jsonrpc2.Conn, *fakeInstaller) {
	t.Helper()
	serverSide, clientSide := pipeConns()

	installer := &fakeInstaller{}
	bus := events.NewBus()

	ch := NewChannel(context.Background(),
		jsonrpc2.NewBufferedStream(serverSide, jsonrpc2.VSCodeObjectCodec{}),
		installer, bus)

	clientConn := jsonrpc2.NewConn(context.Background(),
		jsonrpc2.NewBufferedStream(clientSide, jsonrpc2.VSCodeObjectCodec{}),
		jsonrpc2.HandlerWithError(func(ctx context.Context, c *jsonrpc2.Conn, r *jsonrpc2.Request) (interface{}, error) {
			return nil, nil
		}))

	t.Cleanup(func() {
		_ = clientConn.Close()
		_ = ch.Close()
	})
	return ch, clientConn, installer
}

func TestChannel_RulesAddDispatchesToInstaller(t *testing.T) {
	_, client, installer := newTestChannel(t)

	var result addRulesResult
	err := client.Call(context.Background(), "rules/add", addRulesParams{
		Rules: []config.RuleDef{{ID: "r1", Matchers: []config.MatcherDef{{Type: "method", Method: "GET"}}}},
	}, &result)
	require.NoError(t, err)
	assert.Equal(t, []string{"rule-0"}, result.IDs)
	assert.Len(t, installer.added, 1)
}

func TestChannel_RulesResetDispatchesToInstaller(t *testing.T) {
	_, client, installer := newTestChannel(t)

	var ok bool
	err := client.Call(context.Background(), "rules/reset", nil, &ok)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, installer.resets)
}

func TestChannel_UnknownMethodReturnsError(t *testing.T) {
	_, client, _ := newTestChannel(t)

	var ok bool
	err := client.Call(context.Background(), "nonsense/method", nil, &ok)
	require.Error(t, err)
}

func TestChannel_EventsSubscribeForwardsBusEvents(t *testing.T) {
	serverSide, clientSide := pipeConns()
	installer := &fakeInstaller{}
	bus := events.NewBus()

	ch := NewChannel(context.Background(),
		jsonrpc2.NewBufferedStream(serverSide, jsonrpc2.VSCodeObjectCodec{}),
		installer, bus)
	defer ch.Close()

	notifications := make(chan *jsonrpc2.Request, 4)
	clientConn := jsonrpc2.NewConn(context.Background(),
		jsonrpc2.NewBufferedStream(clientSide, jsonrpc2.VSCodeObjectCodec{}),
		jsonrpc2.HandlerWithError(func(ctx context.Context, c *jsonrpc2.Conn, r *jsonrpc2.Request) (interface{}, error) {
			if r.Notif {
				notifications <- r
			}
			return nil, nil
		}))
	defer clientConn.Close()

	var sub subscribeResult
	require.NoError(t, clientConn.Call(context.Background(), "events/subscribe", nil, &sub))
	assert.True(t, sub.Subscribed)

	bus.Publish("request", map[string]string{"method": "GET"})

	select {
	case n := <-notifications:
		assert.Equal(t, "event", n.Method)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for forwarded event notification")
	}
}

func TestRemoteStream_ReadPingsOnceAndYieldsFramedData(t *testing.T) {
	serverSide, clientSide := pipeConns()
	installer := &fakeInstaller{}
	bus := events.NewBus()

	ch := NewChannel(context.Background(),
		jsonrpc2.NewBufferedStream(serverSide, jsonrpc2.VSCodeObjectCodec{}),
		installer, bus)
	defer ch.Close()

	pings := make(chan struct{}, 1)
	clientConn := jsonrpc2.NewConn(context.Background(),
		jsonrpc2.NewBufferedStream(clientSide, jsonrpc2.VSCodeObjectCodec{}),
		jsonrpc2.HandlerWithError(func(ctx context.Context, c *jsonrpc2.Conn, r *jsonrpc2.Request) (interface{}, error) {
			if r.Method == "stream/ping" {
				pings <- struct{}{}
			}
			return nil, nil
		}))
	defer clientConn.Close()

	rs := ch.RegisterStream("s1")

	done := make(chan struct{})
	var gotErr error
	var gotBytes []byte
	go func() {
		buf := make([]byte, 64)
		for {
			n, err := rs.Read(buf)
			gotBytes = append(gotBytes, buf[:n]...)
			if err != nil {
				gotErr = err
				close(done)
				return
			}
		}
	}()

	select {
	case <-pings:
	case <-time.After(2 * time.Second):
		t.Fatal("RemoteStream never pinged the producer")
	}

	require.NoError(t, rs.feedData(streamContent{Type: "string", Value: "hello"}))
	rs.feedEnd()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RemoteStream.Read never reached EOF")
	}
	assert.Equal(t, "hello", string(gotBytes))
	assert.Equal(t, io.EOF, gotErr)
}
