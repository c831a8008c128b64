package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FixedResponse is the `simple` step (§4.3): write status, headers, body and
// trailers and stop the pipeline. Final.
//
// Data carries the response body before encoding. A string is written after
// `{{...}}` template substitution (§S1); a []byte is written untouched; any other
// value (map, slice, number, bool) is treated as the `Json` shorthand of
// §4.3 — templated, then JSON-encoded, with Content-Type/Content-Length/
// Connection defaulted iff the caller did not set them.
type FixedResponse struct {
	Status        int
	StatusMessage string
	Headers       map[string]string
	Data          interface{}
	Trailers      map[string]string
}

func (s *FixedResponse) IsFinal() bool { return true }

func (s *FixedResponse) Handle(ctx context.Context, e *Exec) (Result, error) {
	processed, err := ProcessTemplate(s.Data, e.Req)
	if err != nil {
		return Result{}, err
	}

	headers := mergeHeaders(s.Headers)
	body, isJSON, err := encodeBody(processed)
	if err != nil {
		return Result{}, fmt.Errorf("validation: simple step body: %w", err)
	}
	if isJSON {
		if _, ok := headerLookup(headers, "Content-Type"); !ok {
			headers["Content-Type"] = "application/json"
		}
		if _, ok := headerLookup(headers, "Connection"); !ok {
			headers["Connection"] = "keep-alive"
		}
	}
	if _, ok := headerLookup(headers, "Content-Length"); !ok {
		headers["Content-Length"] = strconv.Itoa(len(body))
	}

	e.Res.WriteHeader(s.Status, s.StatusMessage, headers)
	if len(body) > 0 {
		if _, err := e.Res.Write(body); err != nil {
			return Result{}, err
		}
	}
	if len(s.Trailers) > 0 {
		e.Res.WriteTrailers(s.Trailers)
	}
	return Result{Continue: false}, nil
}

// encodeBody turns a processed template value into response bytes. Strings
// and raw bytes pass through untouched; anything else is JSON-encoded.
func encodeBody(v interface{}) ([]byte, bool, error) {
	switch b := v.(type) {
	case nil:
		return nil, false, nil
	case []byte:
		return b, false, nil
	case string:
		return []byte(b), false, nil
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, false, err
		}
		return encoded, true, nil
	}
}

// ValidateTrailers enforces the §4.3 constructor-time rule that trailers
// require `Transfer-Encoding: chunked` in headers; called from buildStep so
// an invalid pipeline is rejected at rule construction, not at request time.
func ValidateTrailers(headers, trailers map[string]string) error {
	if len(trailers) == 0 {
		return nil
	}
	te, ok := headerLookup(headers, "Transfer-Encoding")
	if !ok || !strings.Contains(strings.ToLower(te), "chunked") {
		return fmt.Errorf("validation: trailers require Transfer-Encoding: chunked")
	}
	return nil
}
