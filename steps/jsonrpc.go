package steps

import (
	"context"
	"encoding/json"
)

// JsonRpcError is the `error` member of a JSON-RPC 2.0 response envelope.
type JsonRpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type jsonRpcRequest struct {
	JsonRpc string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	ID      interface{} `json:"id,omitempty"`
}

// JsonRpcResponse requires the request body to parse as a JSON-RPC 2.0
// request (`jsonrpc == "2.0"`, non-empty `method`) and emits a matching
// `{jsonrpc, id, result|error}` envelope; a malformed request gets a 400
// (§4.3). Final.
type JsonRpcResponse struct {
	Result interface{} // template-processed before marshaling
	Error  *JsonRpcError
}

func (s *JsonRpcResponse) IsFinal() bool { return true }

func (s *JsonRpcResponse) Handle(ctx context.Context, e *Exec) (Result, error) {
	raw, err := e.Req.Body.AsBuffer()
	if err != nil {
		return s.badRequest(e)
	}

	var body jsonRpcRequest
	if err := json.Unmarshal(raw, &body); err != nil || body.JsonRpc != "2.0" || body.Method == "" {
		return s.badRequest(e)
	}

	processedResult, err := ProcessTemplate(s.Result, e.Req)
	if err != nil {
		return Result{}, err
	}

	envelope := map[string]interface{}{"jsonrpc": "2.0", "id": body.ID}
	if s.Error != nil {
		envelope["error"] = s.Error
	} else {
		envelope["result"] = processedResult
	}

	respBody, err := json.Marshal(envelope)
	if err != nil {
		return Result{}, err
	}
	e.Res.WriteHeader(200, "", map[string]string{"Content-Type": "application/json"})
	if _, err := e.Res.Write(respBody); err != nil {
		return Result{}, err
	}
	return Result{Continue: false}, nil
}

func (s *JsonRpcResponse) badRequest(e *Exec) (Result, error) {
	e.Res.WriteHeader(400, "", map[string]string{"Content-Type": "text/plain"})
	e.Res.Write([]byte("invalid JSON-RPC 2.0 request"))
	return Result{Continue: false}, nil
}
