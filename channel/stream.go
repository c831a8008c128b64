package channel

import (
	"encoding/base64"
	"fmt"
	"io"
	"sync"
)

// RemoteStream adapts a channel-backed Stream step's source to an io.Reader
// (steps.Stream only needs io.Reader/io.Closer). The engine holds the
// stream paused until the downstream connection actually starts reading;
// the first Read call fires the single "stream/ping" notification that
// tells the remote producer to begin forwarding frames (§4.6).
type RemoteStream struct {
	ch   *Channel
	id   string
	once sync.Once

	mu     sync.Mutex
	buf    []byte
	err    error
	ended  bool
	notify chan struct{}
}

func newRemoteStream(ch *Channel, id string) *RemoteStream {
	return &RemoteStream{ch: ch, id: id, notify: make(chan struct{}, 1)}
}

// Read implements io.Reader, pinging the remote producer on first use and
// then blocking until a frame or end-of-stream arrives.
func (rs *RemoteStream) Read(p []byte) (int, error) {
	rs.once.Do(func() { rs.ch.ping(rs.id) })

	for {
		rs.mu.Lock()
		if len(rs.buf) > 0 {
			n := copy(p, rs.buf)
			rs.buf = rs.buf[n:]
			rs.mu.Unlock()
			return n, nil
		}
		if rs.err != nil {
			err := rs.err
			rs.mu.Unlock()
			return 0, err
		}
		if rs.ended {
			rs.mu.Unlock()
			return 0, io.EOF
		}
		rs.mu.Unlock()

		<-rs.notify
	}
}

// Close unregisters the stream; it does not signal the remote side (the
// channel's consumer reached EOF or abandoned the response on its own).
func (rs *RemoteStream) Close() error {
	rs.ch.unregisterStream(rs.id)
	return nil
}

func (rs *RemoteStream) feedData(c streamContent) error {
	var chunk []byte
	switch c.Type {
	case "nil":
		chunk = nil
	case "string":
		chunk = []byte(c.Value)
	case "buffer", "arraybuffer":
		decoded, err := base64.StdEncoding.DecodeString(c.Value)
		if err != nil {
			return fmt.Errorf("stream-decode: %w", err)
		}
		chunk = decoded
	default:
		return fmt.Errorf("stream-decode: unknown content type %q", c.Type)
	}

	rs.mu.Lock()
	rs.buf = append(rs.buf, chunk...)
	rs.mu.Unlock()

	select {
	case rs.notify <- struct{}{}:
	default:
	}
	return nil
}

func (rs *RemoteStream) feedEnd() {
	rs.mu.Lock()
	rs.ended = true
	rs.mu.Unlock()
	select {
	case rs.notify <- struct{}{}:
	default:
	}
}

func (rs *RemoteStream) abort(err error) {
	rs.mu.Lock()
	rs.err = err
	rs.mu.Unlock()
	select {
	case rs.notify <- struct{}{}:
	default:
	}
}
