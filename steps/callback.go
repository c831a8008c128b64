package steps

import (
	"context"
	"fmt"

	"mockproxy/rpc"
)

// Callback invokes a user responder — a local closure or a channel-backed
// RPC stub (§9) — with the fully-observed request and writes whatever it
// returns. The responder may instead request connection termination via the
// "close"/"reset" sentinel actions (§4.3). Final.
type Callback struct {
	Responder rpc.ResponderCallback
}

func (s *Callback) IsFinal() bool { return true }

func (s *Callback) Handle(ctx context.Context, e *Exec) (Result, error) {
	result, err := s.Responder.Respond(e.Completed)
	if err != nil {
		e.Res.WriteHeader(500, "", map[string]string{"Content-Type": "text/plain"})
		e.Res.Write([]byte(fmt.Sprintf("callback-threw: %s", err)))
		return Result{Continue: false}, nil
	}

	switch result.Action {
	case "close":
		return Result{}, &AbortError{Reset: false}
	case "reset":
		return Result{}, &AbortError{Reset: true}
	}

	status := result.Status
	if status == 0 {
		status = 200
	}
	e.Res.WriteHeader(status, "", mergeHeaders(result.Headers))
	if len(result.Body) > 0 {
		if _, err := e.Res.Write(result.Body); err != nil {
			return Result{}, err
		}
	}
	return Result{Continue: false}, nil
}
