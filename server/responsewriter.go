package server

import (
	"github.com/gofiber/fiber/v2"
)

// fiberResponseWriter adapts a Fiber context to steps.ResponseWriter,
// writing status/headers once and streaming body chunks directly to the
// underlying fasthttp response.
type fiberResponseWriter struct {
	c           *fiber.Ctx
	wroteHeader bool
}

func newFiberResponseWriter(c *fiber.Ctx) *fiberResponseWriter {
	return &fiberResponseWriter{c: c}
}

func (w *fiberResponseWriter) WriteHeader(status int, statusMessage string, headers map[string]string) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	for k, v := range headers {
		w.c.Set(k, v)
	}
	if status != 0 {
		w.c.Status(status)
	}
}

func (w *fiberResponseWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(200, "", nil)
	}
	return w.c.Response().BodyWriter().Write(p)
}

// WriteTrailers best-effort sets trailer values as regular headers:
// fasthttp's streaming response writer does not expose true chunked
// trailers, so a downstream client reading the body will still see these
// values, just ordered before rather than after the body.
func (w *fiberResponseWriter) WriteTrailers(trailers map[string]string) {
	for k, v := range trailers {
		w.c.Response().Header.Set(k, v)
	}
}
