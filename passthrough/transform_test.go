package passthrough

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mockproxy/config"
	"mockproxy/reqres"
)

func TestApplyTransform_UpdateHeadersPreservesUnchangedCasing(t *testing.T) {
	msg := &Message{Headers: []reqres.HeaderPair{{Key: "X-Original", Value: "keep"}}}
	err := ApplyTransform(msg, &config.TransformDef{UpdateHeaders: map[string]string{"X-New": "added"}})
	require.NoError(t, err)

	assert.Contains(t, msg.Headers, reqres.HeaderPair{Key: "X-Original", Value: "keep"})
	found := false
	for _, h := range msg.Headers {
		if h.Key == "X-New" && h.Value == "added" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestApplyTransform_ReplaceHeadersDiscardsOriginal(t *testing.T) {
	msg := &Message{Headers: []reqres.HeaderPair{{Key: "X-Original", Value: "keep"}}}
	err := ApplyTransform(msg, &config.TransformDef{ReplaceHeaders: map[string]string{"X-Only": "value"}})
	require.NoError(t, err)
	assert.Len(t, msg.Headers, 1)
	assert.Equal(t, "X-Only", msg.Headers[0].Key)
}

func TestApplyTransform_UpdateJsonBodyDeletesUndefinedKeys(t *testing.T) {
	msg := &Message{Body: []byte(`{"a":1}`)}
	err := ApplyTransform(msg, &config.TransformDef{UpdateJsonBody: map[string]interface{}{"b": float64(2), "a": nil}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":2}`, string(msg.Body))
}

func TestApplyTransform_MatchReplacePath(t *testing.T) {
	msg := &Message{Path: "/old/x"}
	err := ApplyTransform(msg, &config.TransformDef{MatchReplacePath: [][2]string{{"^/old", "/new"}}})
	require.NoError(t, err)
	assert.Equal(t, "/new/x", msg.Path)
}

func TestRecomputeContentLength(t *testing.T) {
	msg := &Message{Body: []byte("hello")}
	RecomputeContentLength(msg)
	assert.Equal(t, "5", msg.Headers[0].Value)
}

func TestApplyHostHeader_CustomStringOverride(t *testing.T) {
	msg := &Message{}
	ApplyHostHeader(msg, "custom.example.com", "resolved.example.com")
	assert.Equal(t, "custom.example.com", msg.Headers[0].Value)
}

func TestApplyHostHeader_FalseLeavesHeaderUntouched(t *testing.T) {
	msg := &Message{}
	ApplyHostHeader(msg, false, "resolved.example.com")
	assert.Empty(t, msg.Headers)
}
