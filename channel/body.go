package channel

import (
	"encoding/base64"
	"fmt"

	"mockproxy/reqres"
)

// UndefinedSentinel carries through `undefined` map values where plain JSON
// has no such value (§4.6: "Binary values").
const UndefinedSentinel = "__mockttp__transform__omit__"

// WireBody is the wire form of a CompletedBody (§4.6): an object carrying
// the base64-encoded bytes and, when they decode as text, the decoded text;
// when the body cannot be read, it carries only the decode error.
type WireBody struct {
	Encoded       string `json:"encoded"`
	Decoded       string `json:"decoded,omitempty"`
	DecodingError string `json:"decodingError,omitempty"`
}

// EncodeBody serializes a body for the wire (§4.6 "Body serialization").
func EncodeBody(b *reqres.Body) (WireBody, error) {
	if b == nil {
		return WireBody{}, nil
	}
	raw, err := b.AsBuffer()
	if err != nil {
		return WireBody{DecodingError: err.Error()}, nil
	}
	wb := WireBody{Encoded: base64.StdEncoding.EncodeToString(raw)}
	if text, err := b.AsText(); err == nil {
		wb.Decoded = text
	}
	return wb, nil
}

// DecodeBody reconstructs a CompletedBody-equivalent *reqres.Body from its
// wire form. A decoding error on the wire produces an undecodable body so
// accessors surface the error rather than silently returning garbage
// (§4.6).
func DecodeBody(wb WireBody, contentType string) (*reqres.Body, error) {
	if wb.DecodingError != "" {
		return reqres.NewUndecodableBody(fmt.Errorf("%s", wb.DecodingError)), nil
	}
	if wb.Encoded == "" {
		return reqres.NewBody(nil, contentType), nil
	}
	raw, err := base64.StdEncoding.DecodeString(wb.Encoded)
	if err != nil {
		return reqres.NewUndecodableBody(err), nil
	}
	return reqres.NewBody(raw, contentType), nil
}

// omitUndefined walks a decoded JSON map substituting UndefinedSentinel
// string values back into Go's nil/absence, mirroring the encode side's
// substitution of nil values into the sentinel before marshaling (§4.6).
func omitUndefined(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		if t == UndefinedSentinel {
			return nil
		}
		return t
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = omitUndefined(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = omitUndefined(val)
		}
		return out
	default:
		return t
	}
}

func applySentinel(v interface{}) interface{} {
	switch t := v.(type) {
	case nil:
		return UndefinedSentinel
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = applySentinel(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = applySentinel(val)
		}
		return out
	default:
		return t
	}
}
