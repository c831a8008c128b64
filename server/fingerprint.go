package server

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"mockproxy/reqres"
)

// BuildFingerprint adapts an inbound Fiber request to the engine's
// transport-agnostic reqres.Fingerprint (§3), preserving raw, ordered
// header pairs the way the matcher set requires.
func BuildFingerprint(c *fiber.Ctx) *reqres.Fingerprint {
	scheme := "http"
	if c.Protocol() == "https" || c.Secure() {
		scheme = "https"
	}

	raw := c.Request().URI().String()
	u, err := url.Parse(raw)
	if err != nil {
		u = &url.URL{Scheme: scheme, Host: string(c.Request().Host()), Path: c.Path()}
	}
	if u.Scheme == "" {
		u.Scheme = scheme
	}

	var headers []reqres.HeaderPair
	c.Request().Header.VisitAll(func(key, value []byte) {
		headers = append(headers, reqres.HeaderPair{Key: string(key), Value: string(value)})
	})

	cookies := map[string]string{}
	c.Request().Header.VisitAllCookie(func(key, value []byte) {
		cookies[string(key)] = string(value)
	})

	contentType := c.Get(fiber.HeaderContentType)
	body := reqres.NewBody(c.Body(), contentType)

	protocol := scheme
	if c.Get("Upgrade") != "" && strings.EqualFold(c.Get("Upgrade"), "websocket") {
		if scheme == "https" {
			protocol = "wss"
		} else {
			protocol = "ws"
		}
	}

	return &reqres.Fingerprint{
		Method:     c.Method(),
		URL:        u,
		Protocol:   protocol,
		IsHTTP2:    string(c.Request().Header.Protocol()) == "HTTP/2.0",
		RemoteIP:   c.IP(),
		RawHeaders: headers,
		Cookies:    cookies,
		Body:       body,
	}
}
