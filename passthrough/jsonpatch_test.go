package passthrough

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mockproxy/config"
)

func TestApplyJSONPatch_AddReplaceRemove(t *testing.T) {
	doc := map[string]interface{}{"a": float64(1), "b": map[string]interface{}{"c": float64(2)}}

	out, err := ApplyJSONPatch(doc, []config.JSONPatchOp{
		{Op: "replace", Path: "/a", Value: float64(9)},
		{Op: "add", Path: "/b/d", Value: float64(3)},
		{Op: "remove", Path: "/b/c"},
	})
	require.NoError(t, err)

	m := out.(map[string]interface{})
	assert.Equal(t, float64(9), m["a"])
	b := m["b"].(map[string]interface{})
	assert.Equal(t, float64(3), b["d"])
	_, stillHasC := b["c"]
	assert.False(t, stillHasC)
}

func TestApplyJSONPatch_ArrayAddAppend(t *testing.T) {
	doc := map[string]interface{}{"items": []interface{}{float64(1), float64(2)}}
	out, err := ApplyJSONPatch(doc, []config.JSONPatchOp{
		{Op: "add", Path: "/items/-", Value: float64(3)},
	})
	require.NoError(t, err)
	m := out.(map[string]interface{})
	items := m["items"].([]interface{})
	assert.Equal(t, []interface{}{float64(1), float64(2), float64(3)}, items)
}

func TestApplyJSONPatch_TestOpFailsOnMismatch(t *testing.T) {
	doc := map[string]interface{}{"a": float64(1)}
	_, err := ApplyJSONPatch(doc, []config.JSONPatchOp{
		{Op: "test", Path: "/a", Value: float64(2)},
	})
	assert.Error(t, err)
}

func TestApplyJSONPatch_RejectsUnknownOp(t *testing.T) {
	_, err := ApplyJSONPatch(map[string]interface{}{}, []config.JSONPatchOp{{Op: "frobnicate", Path: "/a"}})
	assert.ErrorContains(t, err, "validation")
}

func TestApplyJSONPatch_MoveOp(t *testing.T) {
	doc := map[string]interface{}{"a": float64(1)}
	out, err := ApplyJSONPatch(doc, []config.JSONPatchOp{
		{Op: "move", From: "/a", Path: "/b"},
	})
	require.NoError(t, err)
	m := out.(map[string]interface{})
	_, hasA := m["a"]
	assert.False(t, hasA)
	assert.Equal(t, float64(1), m["b"])
}
