package passthrough

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mockproxy/config"
)

func TestTLSPolicy_IsStrict_DefaultsTrue(t *testing.T) {
	p := NewTLSPolicy(nil)
	assert.True(t, p.IsStrict("example.com", 443))
}

func TestTLSPolicy_IsStrict_BooleanTrueIgnoresAll(t *testing.T) {
	p := NewTLSPolicy(&config.PassThroughDef{IgnoreHostHTTPSErrors: true})
	assert.False(t, p.IsStrict("anything.example.com", 443))
}

func TestTLSPolicy_IsStrict_ListMatchesHostPort(t *testing.T) {
	p := NewTLSPolicy(&config.PassThroughDef{IgnoreHostHTTPSErrors: []string{"bad.example.com:8443"}})
	assert.False(t, p.IsStrict("bad.example.com", 8443))
	assert.True(t, p.IsStrict("good.example.com", 8443))
}

func TestLoopTracker_ContainsDuringEnterOnly(t *testing.T) {
	lt := NewLoopTracker()
	assert.False(t, lt.Contains("127.0.0.1:9999"))
	release := lt.Enter("127.0.0.1:9999")
	assert.True(t, lt.Contains("127.0.0.1:9999"))
	release()
	assert.False(t, lt.Contains("127.0.0.1:9999"))
}
