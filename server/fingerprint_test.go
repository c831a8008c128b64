package server

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mockproxy/reqres"
)

func TestBuildFingerprint_CapturesMethodHeadersAndCookies(t *testing.T) {
	app := fiber.New()

	var fp *reqres.Fingerprint
	app.Get("/widgets/:id", func(c *fiber.Ctx) error {
		fp = BuildFingerprint(c)
		return nil
	})

	req := httptest.NewRequest("GET", "/widgets/42?x=1", nil)
	req.Header.Set("X-Trace", "abc")
	req.Header.Set("Cookie", "session=xyz")

	_, err := app.Test(req)
	require.NoError(t, err)
	require.NotNil(t, fp)

	assert.Equal(t, "GET", fp.Method)
	assert.Equal(t, "/widgets/42", fp.URL.Path)
	assert.Equal(t, "xyz", fp.Cookies["session"])

	found := false
	for _, h := range fp.RawHeaders {
		if h.Key == "X-Trace" && h.Value == "abc" {
			found = true
		}
	}
	assert.True(t, found, "expected X-Trace header to be captured")
}

func TestBuildFingerprint_DetectsWebSocketUpgrade(t *testing.T) {
	app := fiber.New()

	var fp *reqres.Fingerprint
	app.Get("/ws", func(c *fiber.Ctx) error {
		fp = BuildFingerprint(c)
		return nil
	})

	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Upgrade", "websocket")

	_, err := app.Test(req)
	require.NoError(t, err)
	require.NotNil(t, fp)

	assert.Equal(t, "ws", fp.Protocol)
}
