package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStep struct{ final bool }

func (s fakeStep) IsFinal() bool { return s.final }

func TestNewRule_RejectsNoMatchers(t *testing.T) {
	_, err := NewRule("r1", 1, nil, []Step{fakeStep{final: true}}, nil, false)
	assert.ErrorContains(t, err, "no-matcher")
}

func TestNewRule_RejectsNoSteps(t *testing.T) {
	_, err := NewRule("r1", 1, []Matcher{WildcardMatcher{}}, nil, nil, false)
	assert.ErrorContains(t, err, "no-step")
}

func TestNewRule_RejectsFinalStepNotLast(t *testing.T) {
	steps := []Step{fakeStep{final: true}, fakeStep{final: false}}
	_, err := NewRule("r1", 1, []Matcher{WildcardMatcher{}}, steps, nil, false)
	assert.ErrorContains(t, err, "final-step-not-last")
}

func TestNewRule_AllowsNonFinalThenFinal(t *testing.T) {
	steps := []Step{fakeStep{final: false}, fakeStep{final: true}}
	r, err := NewRule("r1", 1, []Matcher{WildcardMatcher{}}, steps, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "r1", r.ID)
}

func TestCompletionChecker_Monotonicity(t *testing.T) {
	c := CompletionChecker{Kind: Twice}
	assert.False(t, c.IsComplete(0))
	assert.False(t, c.IsComplete(1))
	assert.True(t, c.IsComplete(2))
	assert.True(t, c.IsComplete(3))
}

func TestCompletionChecker_AlwaysNeverCompletes(t *testing.T) {
	c := CompletionChecker{Kind: Always}
	assert.False(t, c.IsComplete(0))
	assert.False(t, c.IsComplete(1000))
}

func TestRule_RecordMatch_OrderingMatchesRequestCount(t *testing.T) {
	r, err := NewRule("r1", 1, []Matcher{WildcardMatcher{}}, []Step{fakeStep{final: true}}, nil, true)
	require.NoError(t, err)

	c1, f1 := r.RecordMatch()
	c2, f2 := r.RecordMatch()
	assert.Equal(t, uint64(1), c1)
	assert.Equal(t, uint64(2), c2)
	assert.NotNil(t, f1)
	assert.NotNil(t, f2)
	assert.Len(t, r.Recorded(), 2)
}
