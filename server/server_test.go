package server

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mockproxy/config"
	"mockproxy/engine"
)

func newTestApp(t *testing.T) (*engine.Engine, *config.EngineConfig) {
	t.Helper()
	cfg := &config.EngineConfig{}
	cfg.ApplyDefaults()
	cfg.Admin.Auth.Enabled = false
	cfg.Debug.Enabled = true
	return engine.New(cfg), cfg
}

func TestAttach_ServesFixedResponseRule(t *testing.T) {
	eng, _ := newTestApp(t)
	_, err := eng.AddRules([]config.RuleDef{{
		ID:       "greet",
		Matchers: []config.MatcherDef{{Type: "wildcard"}},
		Steps:    []config.StepDef{{Type: "simple", Status: 200, Data: []byte("hello")}},
	}})
	require.NoError(t, err)

	app := Attach(eng)

	resp, err := app.Test(httptest.NewRequest("GET", "/anything", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestAttach_UnmatchedRequestUsesFallback(t *testing.T) {
	eng, _ := newTestApp(t)
	app := Attach(eng)

	resp, err := app.Test(httptest.NewRequest("GET", "/nothing-matches", nil))
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)
}

func TestAttach_AdminRulesEndpointInstallsRule(t *testing.T) {
	eng, _ := newTestApp(t)
	app := Attach(eng)

	body := `{"rules":[{"id":"r1","matchers":[{"type":"wildcard"}],"steps":[{"type":"simple","status":200}]}]}`
	req := httptest.NewRequest("POST", "/__admin/rules", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Len(t, eng.Snapshot(), 1)
}

func TestAttach_AdminSurfaceRequiresAuthWhenEnabled(t *testing.T) {
	eng, cfg := newTestApp(t)
	cfg.Admin.Auth.Enabled = true
	cfg.Admin.Auth.Username = "admin"
	cfg.Admin.Auth.Password = "secret"
	app := Attach(eng)

	resp, err := app.Test(httptest.NewRequest("GET", "/__admin/rules", nil))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}
