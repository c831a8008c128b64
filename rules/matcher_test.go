package rules

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mockproxy/reqres"
)

func fingerprint(t *testing.T, rawURL, method string) *reqres.Fingerprint {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return &reqres.Fingerprint{
		Method: method,
		URL:    u,
		Body:   reqres.NewBody(nil, ""),
	}
}

func TestWildcardMatcher_AlwaysMatches(t *testing.T) {
	req := fingerprint(t, "http://example.com/anything", "POST")
	ok, err := WildcardMatcher{}.Matches(req)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMethodMatcher(t *testing.T) {
	req := fingerprint(t, "http://example.com/a", "GET")
	ok, _ := MethodMatcher{Method: "GET"}.Matches(req)
	assert.True(t, ok)
	ok, _ = MethodMatcher{Method: "POST"}.Matches(req)
	assert.False(t, ok)
}

func TestHostMatcher_RejectsInvalidConstructorInput(t *testing.T) {
	_, err := NewHostMatcher("bad/host")
	assert.Error(t, err)
	_, err = NewHostMatcher("bad?host")
	assert.Error(t, err)
	m, err := NewHostMatcher("example.com:8443")
	require.NoError(t, err)

	req := fingerprint(t, "https://example.com:8443/x", "GET")
	ok, _ := m.Matches(req)
	assert.True(t, ok)
}

func TestFlexiblePathMatcher_RejectsQuery(t *testing.T) {
	_, err := NewFlexiblePathMatcher("/a?b=1")
	assert.Error(t, err)

	m, err := NewFlexiblePathMatcher("/a/b")
	require.NoError(t, err)
	req := fingerprint(t, "http://example.com/a/b?x=1", "GET")
	ok, _ := m.Matches(req)
	assert.True(t, ok, "path comparison ignores the query string")
}

func TestJsonBodyFlexibleMatcher_SubsetMatch(t *testing.T) {
	req := fingerprint(t, "http://example.com/a", "POST")
	req.Body = reqres.NewBody([]byte(`{"a":1,"b":{"c":2,"d":3},"e":[1,2,3]}`), "application/json")

	m := JsonBodyFlexibleMatcher{Value: map[string]interface{}{
		"b": map[string]interface{}{"c": float64(2)},
		"e": []interface{}{float64(2)},
	}}
	ok, err := m.Matches(req)
	require.NoError(t, err)
	assert.True(t, ok)

	m2 := JsonBodyFlexibleMatcher{Value: map[string]interface{}{"missing": "x"}}
	ok, _ = m2.Matches(req)
	assert.False(t, ok)
}

func TestCookieMatcher(t *testing.T) {
	req := fingerprint(t, "http://example.com/a", "GET")
	req.RawHeaders = []reqres.HeaderPair{{Key: "Cookie", Value: "session=abc; theme=dark"}}

	ok, _ := CookieMatcher{Key: "theme", Value: "dark"}.Matches(req)
	assert.True(t, ok)
	ok, _ = CookieMatcher{Key: "theme", Value: "light"}.Matches(req)
	assert.False(t, ok)
}

func TestExplainAll_OxfordComma(t *testing.T) {
	matchers := []Matcher{MethodMatcher{Method: "GET"}, HostnameMatcher{Hostname: "a"}, ProtocolMatcher{Protocol: "https"}}
	got := ExplainAll(matchers)
	assert.Contains(t, got, ", and ")
}

func TestMatchesAll_ShortCircuitsOnFirstFalse(t *testing.T) {
	req := fingerprint(t, "http://example.com/a", "GET")
	matchers := []Matcher{MethodMatcher{Method: "POST"}, CallbackMatcher{}}
	ok, err := MatchesAll(req, matchers)
	require.NoError(t, err)
	assert.False(t, ok)
}
