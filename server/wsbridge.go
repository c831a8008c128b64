package server

import (
	"io"

	"github.com/gofiber/contrib/websocket"
)

// wsByteStream adapts a message-oriented WebSocket connection to the
// io.ReadWriteCloser jsonrpc2.NewBufferedStream expects, so the serialization
// channel (§4.6) can ride a gofiber/contrib/websocket connection the same
// way it rides a plain net.Conn in tests. Reads reassemble consecutive
// WebSocket messages into one continuous byte stream; writes hand each
// buffered flush to the socket as a single binary message.
type wsByteStream struct {
	conn    *websocket.Conn
	pending []byte
}

func newWSByteStream(conn *websocket.Conn) *wsByteStream {
	return &wsByteStream{conn: conn}
}

func (s *wsByteStream) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return 0, io.EOF
		}
		s.pending = data
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *wsByteStream) Write(p []byte) (int, error) {
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsByteStream) Close() error {
	return s.conn.Close()
}
