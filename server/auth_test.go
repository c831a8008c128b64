package server

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mockproxy/config"
	"mockproxy/engine"
)

func TestAdminLogin_GrantsCookieAndAuthorizesFollowupRequest(t *testing.T) {
	cfg := &config.EngineConfig{}
	cfg.ApplyDefaults()
	cfg.Admin.Auth.Enabled = true
	cfg.Admin.Auth.Username = "admin"
	cfg.Admin.Auth.Password = "secret"
	eng := engine.New(cfg)
	app := Attach(eng)

	loginReq := httptest.NewRequest("POST", "/__admin/login", strings.NewReader(`{"username":"admin","password":"secret"}`))
	loginReq.Header.Set("Content-Type", "application/json")
	loginResp, err := app.Test(loginReq)
	require.NoError(t, err)
	require.Equal(t, 200, loginResp.StatusCode)

	var cookie string
	for _, c := range loginResp.Cookies() {
		if c.Name == JWTCookieName {
			cookie = c.String()
		}
	}
	require.NotEmpty(t, cookie, "expected login to set the admin session cookie")

	meReq := httptest.NewRequest("GET", "/__admin/me", nil)
	meReq.Header.Set("Cookie", cookie)
	meResp, err := app.Test(meReq)
	require.NoError(t, err)
	assert.Equal(t, 200, meResp.StatusCode)
}

func TestAdminLogin_RejectsWrongPassword(t *testing.T) {
	cfg := &config.EngineConfig{}
	cfg.ApplyDefaults()
	cfg.Admin.Auth.Enabled = true
	cfg.Admin.Auth.Username = "admin"
	cfg.Admin.Auth.Password = "secret"
	eng := engine.New(cfg)
	app := Attach(eng)

	loginReq := httptest.NewRequest("POST", "/__admin/login", strings.NewReader(`{"username":"admin","password":"wrong"}`))
	loginReq.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(loginReq)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}
