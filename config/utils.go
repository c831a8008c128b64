package config

import (
	"fmt"
	"regexp"
	"strings"

	msUtils "mockproxy/utils"
)

// hostRegex backs the Host matcher's constructor-time validation (§4.1):
// rejects inputs containing '/', '?', or not matching this shape.
var hostRegex = regexp.MustCompile(`^([a-z0-9-]+\.)*[a-z0-9-]+(:\d+)?$`)

var knownMatcherTypes = map[string]bool{
	"wildcard": true, "method": true, "host": true, "hostname": true, "port": true,
	"protocol": true, "simple-path": true, "regex-path": true, "regex-url": true,
	"header": true, "query": true, "exact-query-string": true, "form-data": true,
	"multipart-form-data": true, "raw-body": true, "raw-body-includes": true,
	"raw-body-regexp": true, "json-body": true, "json-body-matching": true,
	"cookie": true, "callback": true,
}

var knownStepTypes = map[string]bool{
	"simple": true, "file": true, "stream": true, "callback": true,
	"json-rpc-response": true, "close-connection": true, "reset-connection": true,
	"timeout": true, "delay": true, "wait-for-request-body": true, "webhook": true,
	"passthrough": true, "ws-passthrough": true, "ws-echo": true, "ws-listen": true,
	"ws-reject": true,
}

var knownCompletionTypes = map[string]bool{
	"always": true, "once": true, "twice": true, "thrice": true, "times": true,
}

// nonFinalStepTypes lists the step tags that are not terminal responders
// (§3: "delay, wait-for-request-body, webhook" are non-final).
var nonFinalStepTypes = map[string]bool{
	"delay": true, "wait-for-request-body": true, "webhook": true,
}

// ValidationError carries one of the stable §7 error-taxonomy tags.
type ValidationError struct {
	Kind string // invalid-rule | no-matcher | no-step | final-step-not-last | validation
	Msg  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func newValidationErr(kind, format string, args ...interface{}) error {
	return &ValidationError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// ApplyDefaultsAndValidate validates an EngineConfig in place, applying
// defaults first (teacher's ApplyServerDefaults pattern).
func ApplyDefaultsAndValidate(cfg *EngineConfig) error {
	cfg.ApplyDefaults()

	if cfg.Fallback != FallbackPassthrough && cfg.Fallback != FallbackUnmatchedRequest && cfg.Fallback != FallbackClose {
		return newValidationErr("validation", "engine.fallback must be one of passthrough|unmatched-request|close, got %q", cfg.Fallback)
	}

	if cfg.Admin.Enabled && cfg.Admin.Auth != nil && cfg.Admin.Auth.Enabled {
		if cfg.Admin.Auth.Username == "" {
			return newValidationErr("validation", "admin.auth.username is required when admin.auth.enabled = true")
		}
	}

	return nil
}

// ValidateRuleDef enforces the rule invariants from §3: at least one
// matcher, at least one step, at most one final step and only as the last
// step, known type tags throughout.
func ValidateRuleDef(r *RuleDef) error {
	if len(r.Matchers) == 0 {
		return newValidationErr("no-matcher", "rule %q has no matchers", r.ID)
	}
	if len(r.Steps) == 0 {
		return newValidationErr("no-step", "rule %q has no steps", r.ID)
	}

	for i, m := range r.Matchers {
		if !knownMatcherTypes[m.Type] {
			return newValidationErr("invalid-rule", "rule %q matcher[%d]: unknown type %q", r.ID, i, m.Type)
		}
		if err := validateMatcherDef(&m); err != nil {
			return newValidationErr("validation", "rule %q matcher[%d]: %v", r.ID, i, err)
		}
	}

	for i, s := range r.Steps {
		if !knownStepTypes[s.Type] {
			return newValidationErr("invalid-rule", "rule %q step[%d]: unknown type %q", r.ID, i, s.Type)
		}
		isLast := i == len(r.Steps)-1
		if !isLast && !nonFinalStepTypes[s.Type] {
			return newValidationErr("final-step-not-last", "rule %q step[%d] (%s) is final but not the last step", r.ID, i, s.Type)
		}
		if err := validateStepDef(&s); err != nil {
			return newValidationErr("validation", "rule %q step[%d]: %v", r.ID, i, err)
		}
	}

	if r.CompletionChecker != nil {
		if !knownCompletionTypes[r.CompletionChecker.Type] {
			return newValidationErr("invalid-rule", "rule %q: unknown completion type %q", r.ID, r.CompletionChecker.Type)
		}
		if r.CompletionChecker.Type == "times" && r.CompletionChecker.Count == 0 {
			return newValidationErr("validation", "rule %q: completion type 'times' requires count > 0", r.ID)
		}
	}

	return nil
}

func validateMatcherDef(m *MatcherDef) error {
	switch m.Type {
	case "method":
		if err := msUtils.ValidateRouteMethod(m.Method); err != nil {
			return err
		}
	case "host":
		if strings.ContainsAny(m.Host, "/?") || !hostRegex.MatchString(m.Host) {
			return fmt.Errorf("invalid host %q", m.Host)
		}
	case "simple-path":
		if strings.Contains(m.Path, "?") {
			return fmt.Errorf("path matcher value %q must not contain a query", m.Path)
		}
	case "regex-path", "regex-url", "raw-body-regexp":
		if m.Regex == "" {
			return fmt.Errorf("missing regex")
		}
		if _, err := regexp.Compile(m.Regex); err != nil {
			return fmt.Errorf("invalid regex %q: %w", m.Regex, err)
		}
	case "cookie":
		if len(m.Cookie) != 1 {
			return fmt.Errorf("cookie matcher requires exactly one key/value pair")
		}
	}
	return nil
}

func validateStepDef(s *StepDef) error {
	switch s.Type {
	case "simple":
		if s.Status < 100 || s.Status > 599 {
			return fmt.Errorf("status must be between 100 and 599, got %d", s.Status)
		}
		if len(s.Trailers) > 0 {
			if te, ok := headerLookup(s.Headers, "Transfer-Encoding"); !ok || !strings.Contains(strings.ToLower(te), "chunked") {
				return fmt.Errorf("trailers require Transfer-Encoding: chunked in headers")
			}
		}
	case "file":
		if s.FilePath == "" {
			return fmt.Errorf("file step requires filePath")
		}
	case "delay":
		if s.DelayMs < 0 {
			return fmt.Errorf("delayMs cannot be negative, got %d", s.DelayMs)
		}
	case "webhook":
		if s.WebhookURL == "" {
			return fmt.Errorf("webhook step requires url")
		}
	case "callback":
		if s.CallbackID == "" {
			return fmt.Errorf("callback step requires callbackId")
		}
	case "passthrough", "ws-passthrough":
		if s.PassThrough != nil {
			if err := validatePassThroughDef(s.PassThrough); err != nil {
				return err
			}
		}
	}
	return nil
}

func validatePassThroughDef(p *PassThroughDef) error {
	if p.TransformRequest != nil && (p.BeforeRequestCallbackID != "") {
		return fmt.Errorf("transformRequest and a beforeRequest callback are mutually exclusive")
	}
	if p.TransformResponse != nil && (p.BeforeResponseCallbackID != "") {
		return fmt.Errorf("transformResponse and a beforeResponse callback are mutually exclusive")
	}
	if p.TransformRequest != nil {
		if err := validateTransformDef(p.TransformRequest); err != nil {
			return fmt.Errorf("transformRequest: %w", err)
		}
	}
	if p.TransformResponse != nil {
		if err := validateTransformDef(p.TransformResponse); err != nil {
			return fmt.Errorf("transformResponse: %w", err)
		}
	}
	return nil
}

func validateTransformDef(t *TransformDef) error {
	bodyOps := 0
	for _, set := range []bool{t.ReplaceBody != "", t.ReplaceBodyFromFile != "", len(t.UpdateJsonBody) > 0, len(t.PatchJsonBody) > 0, len(t.MatchReplaceBody) > 0} {
		if set {
			bodyOps++
		}
	}
	if bodyOps > 1 {
		return fmt.Errorf("body transform fields are mutually exclusive")
	}

	if len(t.UpdateHeaders) > 0 && len(t.ReplaceHeaders) > 0 {
		return fmt.Errorf("updateHeaders and replaceHeaders are mutually exclusive")
	}

	if t.ReplaceHost != "" && t.MatchReplaceHost != nil {
		return fmt.Errorf("replaceHost and matchReplaceHost are mutually exclusive")
	}

	for _, op := range t.PatchJsonBody {
		switch op.Op {
		case "add", "remove", "replace", "move", "copy", "test":
		default:
			return fmt.Errorf("invalid JSON-patch op %q", op.Op)
		}
		if op.Path == "" {
			return fmt.Errorf("JSON-patch operation requires a path")
		}
	}

	return nil
}

func headerLookup(h map[string]string, key string) (string, bool) {
	for k, v := range h {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}
