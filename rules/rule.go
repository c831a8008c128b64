package rules

import (
	"fmt"
	"sync"
	"sync/atomic"

	"mockproxy/reqres"
)

// Step is the minimal surface the rule/selector machinery needs from a
// pipeline step; the concrete variants live in package steps, which does not
// import rules (it is the step executor, package steps, that drives this
// interface — Rule only needs to know a step's finality to enforce §3's
// pipeline-construction invariant).
type Step interface {
	IsFinal() bool
}

// Future resolves to a CompletedRequest once recording finishes (§3:
// "recorded: seq<Future<CompletedRequest>>"). It never resolves to an error
// (§3 invariant, §8 P5).
type Future struct {
	done chan struct{}
	val  *reqres.CompletedRequest
}

func NewFuture() *Future { return &Future{done: make(chan struct{})} }

// Resolve completes the future exactly once.
func (f *Future) Resolve(cr *reqres.CompletedRequest) {
	select {
	case <-f.done:
		return
	default:
	}
	f.val = cr
	close(f.done)
}

// Wait blocks until resolved and returns the completed request.
func (f *Future) Wait() *reqres.CompletedRequest {
	<-f.done
	return f.val
}

// Rule holds an ordered matcher list, a priority, a step pipeline, a
// completion checker, and per-rule counters and recorded request futures
// (§3).
type Rule struct {
	ID       string
	Priority uint // default 1, fallback 0
	Matchers []Matcher
	Steps    []Step
	Completion *CompletionChecker // nil => "null" completion state (§4.2, §9)

	// RegisteredOrder preserves insertion order for the FIFO tie-break (§4.2
	// step 3, §8 P3). Assigned by the engine at registration time.
	RegisteredOrder uint64

	requestCount uint64 // atomic
	recordMu     sync.Mutex
	recorded     []*Future
	recordingOn  bool
}

// NewRule validates and constructs a Rule, enforcing §3's invariants:
// at least one matcher, at least one step, and at most one final step which
// must be last.
func NewRule(id string, priority uint, matchers []Matcher, steps []Step, completion *CompletionChecker, recording bool) (*Rule, error) {
	if len(matchers) == 0 {
		return nil, fmt.Errorf("no-matcher: rule %q has no matchers", id)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("no-step: rule %q has no steps", id)
	}
	for i, s := range steps {
		if s.IsFinal() && i != len(steps)-1 {
			return nil, fmt.Errorf("final-step-not-last: rule %q step[%d] is final but not last", id, i)
		}
	}
	return &Rule{
		ID:          id,
		Priority:    priority,
		Matchers:    matchers,
		Steps:       steps,
		Completion:  completion,
		recordingOn: recording,
	}, nil
}

// RequestCount returns the current, monotonically increasing match count.
func (r *Rule) RequestCount() uint64 { return atomic.LoadUint64(&r.requestCount) }

// IsComplete reports whether the rule's completion checker says it is
// retired. Rules with no explicit checker are never "complete" via this
// path — the §4.2 "null" deprioritization is handled by the selector
// directly via HasExplicitCompletion/RequestCount.
func (r *Rule) IsComplete() bool {
	if r.Completion == nil {
		return false
	}
	return r.Completion.IsComplete(r.RequestCount())
}

// HasExplicitCompletion reports whether this rule carries a completion
// checker at all (vs. the "null" state of §4.2/§9).
func (r *Rule) HasExplicitCompletion() bool { return r.Completion != nil }

// RecordMatch increments request_count atomically and, if recording is
// enabled, pushes a new Future for the caller to resolve once the step
// pipeline finishes (§3, §5 ordering requirement: recorded order matches
// request_count order because the increment and the append both happen
// under recordMu).
func (r *Rule) RecordMatch() (count uint64, future *Future) {
	if !r.recordingOn {
		return atomic.AddUint64(&r.requestCount, 1), nil
	}
	r.recordMu.Lock()
	defer r.recordMu.Unlock()
	count = atomic.AddUint64(&r.requestCount, 1)
	f := NewFuture()
	r.recorded = append(r.recorded, f)
	return count, f
}

// Recorded returns a snapshot of the recorded futures so far.
func (r *Rule) Recorded() []*Future {
	r.recordMu.Lock()
	defer r.recordMu.Unlock()
	out := make([]*Future, len(r.recorded))
	copy(out, r.recorded)
	return out
}

// Dispose drops resources held by the rule's steps/matchers (§5: "dropping a
// rule drops all agent pools, cached DNS, TLS contexts, and channel
// registrations"). Disposable steps implement a `Dispose()` method.
func (r *Rule) Dispose() {
	for _, s := range r.Steps {
		if d, ok := s.(interface{ Dispose() }); ok {
			d.Dispose()
		}
	}
}
