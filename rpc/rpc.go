// Package rpc defines the callback seams crossed by matchers and steps
// (§9 design notes: "model this as a trait/interface RequestPredicate /
// RequestResponder with two concrete variants — a local closure and a
// channel-backed RPC stub"). Keeping these interfaces in their own package
// lets both the local (in-process) and remote (package channel)
// implementations satisfy them without an import cycle through rules/steps.
package rpc

import "mockproxy/reqres"

// PredicateCallback evaluates a boolean predicate over a request — used by
// the Callback matcher (§4.1).
type PredicateCallback interface {
	Evaluate(req *reqres.Fingerprint) (bool, error)
}

// ResponderResult is what a Callback step's user function returns: either a
// response description, or one of the sentinel actions "close"/"reset"
// (§4.3).
type ResponderResult struct {
	Action string // "" (normal response) | "close" | "reset"

	Status  int
	Headers map[string]string
	Body    []byte
}

// ResponderCallback invokes a user function (possibly remote) with a
// CompletedRequest and returns its response description (§4.3 Callback step).
type ResponderCallback interface {
	Respond(req *reqres.CompletedRequest) (*ResponderResult, error)
}

// PredicateFunc adapts a plain closure to PredicateCallback for local,
// in-process callbacks.
type PredicateFunc func(req *reqres.Fingerprint) (bool, error)

func (f PredicateFunc) Evaluate(req *reqres.Fingerprint) (bool, error) { return f(req) }

// ResponderFunc adapts a plain closure to ResponderCallback for local,
// in-process callbacks.
type ResponderFunc func(req *reqres.CompletedRequest) (*ResponderResult, error)

func (f ResponderFunc) Respond(req *reqres.CompletedRequest) (*ResponderResult, error) {
	return f(req)
}
