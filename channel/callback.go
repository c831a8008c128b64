package channel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sourcegraph/jsonrpc2"

	"mockproxy/reqres"
	"mockproxy/rpc"
)

// serializedRequest is the wire form of a reqres.Fingerprint/CompletedRequest
// passed as a callback argument (§4.6: "writes {args:[serialized_request]}").
type serializedRequest struct {
	Method     string            `json:"method"`
	URL        string            `json:"url"`
	Headers    map[string]string `json:"headers"`
	Body       WireBody          `json:"body"`
}

func serializeFingerprint(req *reqres.Fingerprint) serializedRequest {
	headers := map[string]string{}
	for _, h := range req.RawHeaders {
		headers[h.Key] = h.Value
	}
	wb, _ := EncodeBody(req.Body)
	return serializedRequest{Method: req.Method, URL: req.URL.String(), Headers: headers, Body: wb}
}

func serializeCompleted(req *reqres.CompletedRequest) serializedRequest {
	headers := map[string]string{}
	for _, h := range req.RawHeaders {
		headers[h.Key] = h.Value
	}
	wb, _ := EncodeBody(req.Body)
	return serializedRequest{Method: req.Method, URL: req.URL, Headers: headers, Body: wb}
}

// callArgs wraps one serialized request the same way the arguments array is
// framed on the wire (§4.6).
type callArgs struct {
	Args []serializedRequest `json:"args"`
}

// RemotePredicate is the engine-side RPC stub for a `callback` matcher
// (§4.1, §9): it holds only a correlation id and a channel reference;
// evaluating it writes a request and awaits a framed reply.
type RemotePredicate struct {
	Conn *jsonrpc2.Conn
	ID   string
}

func (p *RemotePredicate) Evaluate(req *reqres.Fingerprint) (bool, error) {
	var result bool
	err := p.Conn.Call(context.Background(), "predicate/"+p.ID, callArgs{Args: []serializedRequest{serializeFingerprint(req)}}, &result)
	if err != nil {
		return false, fmt.Errorf("callback-threw: %w", err)
	}
	return result, nil
}

// RemoteResponder is the engine-side RPC stub for a `callback` step
// (§4.3, §9).
type RemoteResponder struct {
	Conn *jsonrpc2.Conn
	ID   string
}

type remoteResponderResult struct {
	Action  string            `json:"action,omitempty"`
	Status  int               `json:"status,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"` // base64
}

func (r *RemoteResponder) Respond(req *reqres.CompletedRequest) (*rpc.ResponderResult, error) {
	var result remoteResponderResult
	err := r.Conn.Call(context.Background(), "responder/"+r.ID, callArgs{Args: []serializedRequest{serializeCompleted(req)}}, &result)
	if err != nil {
		return nil, fmt.Errorf("callback-threw: %w", err)
	}

	body, decodeErr := decodeResponderBody(result.Body)
	if decodeErr != nil {
		return nil, decodeErr
	}

	return &rpc.ResponderResult{
		Action:  result.Action,
		Status:  result.Status,
		Headers: result.Headers,
		Body:    body,
	}, nil
}

func decodeResponderBody(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}
	body, err := DecodeBody(WireBody{Encoded: encoded}, "")
	if err != nil {
		return nil, err
	}
	return body.AsBuffer()
}

// undefinedAwareMarshal marshals v after substituting Go nils for
// UndefinedSentinel, matching the wire contract for map values that must
// stay distinguishable from JSON null (§4.6).
func undefinedAwareMarshal(v interface{}) (json.RawMessage, error) {
	return json.Marshal(applySentinel(v))
}

// undefinedAwareUnmarshal is the decode-side counterpart of
// undefinedAwareMarshal.
func undefinedAwareUnmarshal(raw json.RawMessage) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return omitUndefined(v), nil
}
