package engine

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mockproxy/config"
	"mockproxy/reqres"
)

type recordingWriter struct {
	status  int
	headers map[string]string
	body    []byte
}

func (w *recordingWriter) WriteHeader(status int, statusMessage string, headers map[string]string) {
	w.status = status
	w.headers = headers
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.body = append(w.body, p...)
	return len(p), nil
}

func (w *recordingWriter) WriteTrailers(trailers map[string]string) {}

func newFingerprint(t *testing.T, method, rawURL string) *reqres.Fingerprint {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return &reqres.Fingerprint{
		Method: method,
		URL:    u,
		Body:   reqres.NewBody(nil, ""),
	}
}

func newTestEngine() *Engine {
	cfg := &config.EngineConfig{}
	cfg.ApplyDefaults()
	return New(cfg)
}

func TestEngine_AddRuleAndHandleFixedResponse(t *testing.T) {
	e := newTestEngine()

	ids, err := e.AddRules([]config.RuleDef{{
		ID:       "greet",
		Matchers: []config.MatcherDef{{Type: "wildcard"}},
		Steps:    []config.StepDef{{Type: "simple", Status: 200, Data: []byte("hello")}},
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"greet"}, ids)

	w := &recordingWriter{}
	req := newFingerprint(t, "GET", "http://example.com/anything")
	require.NoError(t, e.HandleRequest(context.Background(), req, w, nil))
	assert.Equal(t, 200, w.status)
	assert.Equal(t, "hello", string(w.body))
}

func TestEngine_SelectsHigherPriorityRuleFirst(t *testing.T) {
	e := newTestEngine()

	_, err := e.AddRules([]config.RuleDef{
		{ID: "low", Matchers: []config.MatcherDef{{Type: "wildcard"}}, Steps: []config.StepDef{{Type: "simple", Status: 200, Data: []byte("low")}}},
	})
	require.NoError(t, err)
	high := uint(5)
	_, err = e.AddRules([]config.RuleDef{
		{ID: "high", Priority: &high, Matchers: []config.MatcherDef{{Type: "wildcard"}}, Steps: []config.StepDef{{Type: "simple", Status: 200, Data: []byte("high")}}},
	})
	require.NoError(t, err)

	w := &recordingWriter{}
	req := newFingerprint(t, "GET", "http://example.com/anything")
	require.NoError(t, e.HandleRequest(context.Background(), req, w, nil))
	assert.Equal(t, "high", string(w.body))
}

func TestEngine_UnmatchedRequestUsesFallbackPolicy(t *testing.T) {
	e := newTestEngine()

	w := &recordingWriter{}
	req := newFingerprint(t, "GET", "http://example.com/anything")
	require.NoError(t, e.HandleRequest(context.Background(), req, w, nil))
	assert.Equal(t, 503, w.status)
}

func TestEngine_ResetClearsRules(t *testing.T) {
	e := newTestEngine()

	_, err := e.AddRules([]config.RuleDef{{
		ID:       "r1",
		Matchers: []config.MatcherDef{{Type: "wildcard"}},
		Steps:    []config.StepDef{{Type: "simple", Status: 200}},
	}})
	require.NoError(t, err)
	require.Len(t, e.Snapshot(), 1)

	require.NoError(t, e.Reset())
	assert.Len(t, e.Snapshot(), 0)
}

func TestEngine_RemoveRuleDropsIt(t *testing.T) {
	e := newTestEngine()

	_, err := e.AddRules([]config.RuleDef{{
		ID:       "r1",
		Matchers: []config.MatcherDef{{Type: "wildcard"}},
		Steps:    []config.StepDef{{Type: "simple", Status: 200}},
	}})
	require.NoError(t, err)

	require.NoError(t, e.RemoveRule("r1"))
	assert.Len(t, e.Snapshot(), 0)
	assert.Error(t, e.RemoveRule("r1"))
}

func TestEngine_CallbackMatcherFailsWithoutChannel(t *testing.T) {
	e := newTestEngine()

	_, err := e.AddRules([]config.RuleDef{{
		ID:       "cb",
		Matchers: []config.MatcherDef{{Type: "callback", CallbackID: "predicate-1"}},
		Steps:    []config.StepDef{{Type: "simple", Status: 200}},
	}})
	assert.Error(t, err)
}
