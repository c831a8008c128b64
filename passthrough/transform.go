package passthrough

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"mockproxy/config"
	"mockproxy/reqres"
)

// Message is the mutable request/response description transforms operate
// on: a superset of what a request and a response both need, so the same
// ApplyTransform works for transformRequest (§4.4 step 3) and
// transformResponse (§4.4 step 10).
type Message struct {
	Method  string // request only
	Host    string // request only
	Path    string // request only
	Query   string // request only, including leading "?"
	Headers []reqres.HeaderPair

	Body []byte
}

// ApplyTransform mutates msg per one declarative TransformDef (§4.4 step
// 3/10). The mutually-exclusive field groups are enforced at rule
// construction (config.validateTransformDef); this function assumes a
// config already passed validation.
func ApplyTransform(msg *Message, t *config.TransformDef) error {
	if t == nil {
		return nil
	}

	if t.ReplaceMethod != "" {
		msg.Method = t.ReplaceMethod
	}

	if err := applyHeaderTransform(msg, t); err != nil {
		return err
	}

	if err := applyBodyTransform(msg, t); err != nil {
		return err
	}

	if err := applyHostTransform(msg, t); err != nil {
		return err
	}

	if len(t.MatchReplacePath) > 0 {
		for _, pair := range t.MatchReplacePath {
			re, err := regexp.Compile(pair[0])
			if err != nil {
				return fmt.Errorf("validation: matchReplacePath: %w", err)
			}
			msg.Path = re.ReplaceAllString(msg.Path, pair[1])
		}
	}

	if len(t.MatchReplaceQuery) > 0 {
		for _, pair := range t.MatchReplaceQuery {
			re, err := regexp.Compile(pair[0])
			if err != nil {
				return fmt.Errorf("validation: matchReplaceQuery: %w", err)
			}
			msg.Query = re.ReplaceAllString(msg.Query, pair[1])
		}
	}

	return nil
}

func applyHeaderTransform(msg *Message, t *config.TransformDef) error {
	if len(t.ReplaceHeaders) > 0 {
		msg.Headers = nil
		for k, v := range t.ReplaceHeaders {
			msg.Headers = append(msg.Headers, reqres.HeaderPair{Key: k, Value: v})
		}
		return nil
	}
	if len(t.UpdateHeaders) > 0 {
		for k, v := range t.UpdateHeaders {
			replaced := false
			for i, h := range msg.Headers {
				if strings.EqualFold(h.Key, k) {
					msg.Headers[i].Value = v
					replaced = true
				}
			}
			if !replaced {
				msg.Headers = append(msg.Headers, reqres.HeaderPair{Key: k, Value: v})
			}
		}
	}
	return nil
}

func applyBodyTransform(msg *Message, t *config.TransformDef) error {
	switch {
	case t.ReplaceBody != "":
		msg.Body = []byte(t.ReplaceBody)

	case t.ReplaceBodyFromFile != "":
		data, err := os.ReadFile(t.ReplaceBodyFromFile)
		if err != nil {
			return fmt.Errorf("replaceBodyFromFile: %w", err)
		}
		msg.Body = data

	case len(t.UpdateJsonBody) > 0:
		var doc map[string]interface{}
		if len(msg.Body) > 0 {
			if err := json.Unmarshal(msg.Body, &doc); err != nil {
				return fmt.Errorf("updateJsonBody: body is not a JSON object: %w", err)
			}
		}
		if doc == nil {
			doc = map[string]interface{}{}
		}
		for k, v := range t.UpdateJsonBody {
			if v == nil {
				delete(doc, k)
				continue
			}
			doc[k] = v
		}
		encoded, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		msg.Body = encoded

	case len(t.PatchJsonBody) > 0:
		var doc interface{}
		if err := json.Unmarshal(msg.Body, &doc); err != nil {
			return fmt.Errorf("patchJsonBody: body is not valid JSON: %w", err)
		}
		patched, err := ApplyJSONPatch(doc, t.PatchJsonBody)
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(patched)
		if err != nil {
			return err
		}
		msg.Body = encoded

	case len(t.MatchReplaceBody) > 0:
		body := msg.Body
		for _, pair := range t.MatchReplaceBody {
			re, err := regexp.Compile(pair[0])
			if err != nil {
				return fmt.Errorf("validation: matchReplaceBody: %w", err)
			}
			body = re.ReplaceAll(body, []byte(pair[1]))
		}
		msg.Body = body
	}

	return nil
}

func applyHostTransform(msg *Message, t *config.TransformDef) error {
	if t.ReplaceHost != "" {
		msg.Host = t.ReplaceHost
	} else if t.MatchReplaceHost != nil {
		re, err := regexp.Compile(t.MatchReplaceHost[0])
		if err != nil {
			return fmt.Errorf("validation: matchReplaceHost: %w", err)
		}
		msg.Host = re.ReplaceAllString(msg.Host, t.MatchReplaceHost[1])
	}
	return nil
}

// RecomputeContentLength sets the Content-Length header to the current body
// length, adding the header when it is absent. It overwrites any existing
// value, including one set by the transform's own header fields, and never
// removes the header.
func RecomputeContentLength(msg *Message) {
	for i, h := range msg.Headers {
		if strings.EqualFold(h.Key, "Content-Length") {
			msg.Headers[i].Value = strconv.Itoa(len(msg.Body))
			return
		}
	}
	msg.Headers = append(msg.Headers, reqres.HeaderPair{Key: "Content-Length", Value: strconv.Itoa(len(msg.Body))})
}

// ApplyHostHeader sets/overrides the forwarded Host header per
// updateHostHeader ∈ {true, false, custom-string} (§4.4 step 1).
func ApplyHostHeader(msg *Message, updateHostHeader interface{}, resolvedHost string) {
	switch v := updateHostHeader.(type) {
	case bool:
		if !v {
			return
		}
		setHeader(msg, "Host", resolvedHost)
	case string:
		setHeader(msg, "Host", v)
	default:
		// unset: leave the original Host header untouched.
	}
}

func setHeader(msg *Message, key, value string) {
	for i, h := range msg.Headers {
		if strings.EqualFold(h.Key, key) {
			msg.Headers[i].Value = value
			return
		}
	}
	msg.Headers = append(msg.Headers, reqres.HeaderPair{Key: key, Value: value})
}
