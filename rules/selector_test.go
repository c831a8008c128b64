package rules

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mockproxy/reqres"
)

func req(t *testing.T, method string) *reqres.Fingerprint {
	t.Helper()
	u, err := url.Parse("http://example.com/x")
	require.NoError(t, err)
	return &reqres.Fingerprint{Method: method, URL: u, Body: reqres.NewBody(nil, "")}
}

func TestSelect_Priority(t *testing.T) {
	rLow, _ := NewRule("low", 0, []Matcher{WildcardMatcher{}}, []Step{fakeStep{final: true}}, nil, false)
	rHigh, _ := NewRule("high", 1, []Matcher{MethodMatcher{Method: "GET"}}, []Step{fakeStep{final: true}}, nil, false)

	active := []*Rule{rLow, rHigh}

	winner, err := Select(req(t, "GET"), active)
	require.NoError(t, err)
	assert.Equal(t, "high", winner.ID)

	winner, err = Select(req(t, "POST"), active)
	require.NoError(t, err)
	assert.Equal(t, "low", winner.ID)
}

func TestSelect_FIFOTieBreak(t *testing.T) {
	r1, _ := NewRule("first", 1, []Matcher{WildcardMatcher{}}, []Step{fakeStep{final: true}}, nil, false)
	r2, _ := NewRule("second", 1, []Matcher{WildcardMatcher{}}, []Step{fakeStep{final: true}}, nil, false)

	winner, err := Select(req(t, "GET"), []*Rule{r1, r2})
	require.NoError(t, err)
	assert.Equal(t, "first", winner.ID, "earlier-registered rule wins among equal priority/completion")
}

func TestSelect_CompletionExhaustion(t *testing.T) {
	twice := &CompletionChecker{Kind: Twice}
	r, _ := NewRule("twice", 1, []Matcher{WildcardMatcher{}}, []Step{fakeStep{final: true}}, twice, false)
	fallback, _ := NewRule("fallback", 1, []Matcher{WildcardMatcher{}}, []Step{fakeStep{final: true}}, nil, false)

	active := []*Rule{r, fallback}

	for i := 0; i < 2; i++ {
		winner, err := Select(req(t, "GET"), active)
		require.NoError(t, err)
		require.Equal(t, "twice", winner.ID)
		r.RecordMatch()
	}

	winner, err := Select(req(t, "GET"), active)
	require.NoError(t, err)
	assert.Equal(t, "fallback", winner.ID, "rule retires once its completion checker is satisfied")
}

func TestSelect_NoMatchReturnsNil(t *testing.T) {
	r, _ := NewRule("only-post", 1, []Matcher{MethodMatcher{Method: "POST"}}, []Step{fakeStep{final: true}}, nil, false)
	winner, err := Select(req(t, "GET"), []*Rule{r})
	require.NoError(t, err)
	assert.Nil(t, winner)
}
