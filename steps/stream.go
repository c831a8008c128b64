package steps

import (
	"context"
	"io"
	"sync/atomic"
)

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// Stream writes headers then pipes a supplied byte stream exactly once
// (§4.3 Stream). A second invocation of the same step instance is a
// `stream-reused` error (§7): the rule is matched again by a later request
// sharing this step, which only makes sense for a genuinely repeatable
// source — a one-shot stream step instance is meant for a single match.
// Final.
type Stream struct {
	Status  int
	Headers map[string]string
	Source  io.Reader

	used int32 // atomic
}

func (s *Stream) IsFinal() bool { return true }

func (s *Stream) Handle(ctx context.Context, e *Exec) (Result, error) {
	if !atomic.CompareAndSwapInt32(&s.used, 0, 1) {
		e.Res.WriteHeader(500, "", map[string]string{"Content-Type": "text/plain"})
		e.Res.Write([]byte("stream-reused: this stream step instance has already served a request"))
		return Result{Continue: false}, nil
	}

	e.Res.WriteHeader(s.Status, "", mergeHeaders(s.Headers))
	if _, err := io.Copy(writerFunc(e.Res.Write), s.Source); err != nil {
		e.Events.Publish("client-error", err.Error())
	}
	return Result{Continue: false}, nil
}

// Dispose releases the underlying stream if it is closeable (§5 resource
// cleanup).
func (s *Stream) Dispose() {
	if c, ok := s.Source.(io.Closer); ok {
		c.Close()
	}
}
