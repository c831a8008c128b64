// Package engine ties the matcher/rule selector (rules), the step executor
// (steps), the pass-through forwarders (passthrough) and the event bus
// (events) into one runtime (§4.7/K): a rule list with registration-order
// tie-breaks, a named parameter table, and the request-handling algorithm
// (§4.2) that selects a rule, records it, runs its pipeline, and resolves
// its recorded Future.
//
// Grounded on the teacher's server/main.go StartServer bootstrap shape
// (build app -> register middleware -> register routes -> return),
// generalized to build engine -> attach listeners -> install initial
// rules -> return.
package engine

import (
	"fmt"
	"io"
	"regexp"
	"time"

	"mockproxy/config"
	"mockproxy/passthrough"
	"mockproxy/rpc"
	"mockproxy/rules"
	"mockproxy/steps"
)

// buildMatcher translates one wire MatcherDef into a rules.Matcher (§4.1,
// §6). CallbackID-carrying matchers resolve through e.callbackPredicate,
// which is nil-safe: if no channel has connected yet, building a callback
// matcher fails loudly rather than silently never matching.
func (e *Engine) buildMatcher(def config.MatcherDef) (rules.Matcher, error) {
	switch def.Type {
	case "wildcard":
		return rules.WildcardMatcher{}, nil
	case "method":
		return rules.MethodMatcher{Method: def.Method}, nil
	case "host":
		return rules.NewHostMatcher(def.Host)
	case "hostname":
		return rules.HostnameMatcher{Hostname: def.Hostname}, nil
	case "port":
		return rules.PortMatcher{Port: def.Port}, nil
	case "protocol":
		return rules.ProtocolMatcher{Protocol: def.Protocol}, nil
	case "simple-path":
		return rules.NewFlexiblePathMatcher(def.Path)
	case "regex-path":
		re, err := regexp.Compile(def.Regex)
		if err != nil {
			return nil, fmt.Errorf("regex-path matcher: %w", err)
		}
		return rules.RegexPathMatcher{Re: re}, nil
	case "regex-url":
		re, err := regexp.Compile(def.Regex)
		if err != nil {
			return nil, fmt.Errorf("regex-url matcher: %w", err)
		}
		return rules.RegexUrlMatcher{Re: re}, nil
	case "header":
		return rules.HeaderMatcher{Headers: def.Headers}, nil
	case "exact-query-string":
		return rules.ExactQueryMatcher{Query: def.ExactQuery}, nil
	case "query":
		return rules.QueryMatcher{Params: def.Query}, nil
	case "form-data":
		return rules.FormDataMatcher{Fields: def.FormData}, nil
	case "multipart-form-data":
		conds := make([]rules.MultipartCondition, len(def.MultipartParts))
		for i, c := range def.MultipartParts {
			conds[i] = rules.MultipartCondition{Name: c.Name, Filename: c.Filename, Content: c.Content}
		}
		return rules.MultipartFormMatcher{Conditions: conds}, nil
	case "raw-body":
		return rules.RawBodyMatcher{Body: def.RawBody}, nil
	case "raw-body-includes":
		return rules.RawBodyIncludesMatcher{Substr: def.RawBody}, nil
	case "raw-body-regexp":
		re, err := regexp.Compile(def.Regex)
		if err != nil {
			return nil, fmt.Errorf("raw-body-regexp matcher: %w", err)
		}
		return rules.RegexBodyMatcher{Re: re}, nil
	case "json-body":
		return rules.JsonBodyMatcher{Value: def.JsonBody}, nil
	case "json-body-matching":
		return rules.JsonBodyFlexibleMatcher{Value: def.JsonBodyFlexible}, nil
	case "cookie":
		for k, v := range def.Cookie {
			return rules.CookieMatcher{Key: k, Value: v}, nil
		}
		return nil, fmt.Errorf("cookie matcher: empty cookie map")
	case "callback":
		cb, err := e.callbackPredicate(def.CallbackID)
		if err != nil {
			return nil, err
		}
		return rules.CallbackMatcher{Callback: cb}, nil
	default:
		return nil, fmt.Errorf("unknown matcher type %q", def.Type)
	}
}

// buildCompletion translates a wire CompletionDef into a rules.CompletionChecker.
func buildCompletion(def *config.CompletionDef) *rules.CompletionChecker {
	if def == nil {
		return nil
	}
	return &rules.CompletionChecker{Kind: rules.CompletionKind(def.Type), Count: def.Count}
}

// buildStep translates one wire StepDef into a steps.Step (§4.3, §6).
// PassThrough/WsPassThrough steps are built against e's parameter table so
// `{"paramRef": name}` proxy/certificate references resolve against the
// engine's own config rather than a copy.
func (e *Engine) buildStep(def config.StepDef) (steps.Step, error) {
	switch def.Type {
	case "simple":
		if err := steps.ValidateTrailers(def.Headers, def.Trailers); err != nil {
			return nil, err
		}
		return &steps.FixedResponse{
			Status:        def.Status,
			StatusMessage: def.StatusMessage,
			Headers:       def.Headers,
			Data:          def.Data,
			Trailers:      def.Trailers,
		}, nil
	case "file":
		return &steps.File{Status: def.Status, Headers: def.Headers, Path: def.FilePath}, nil
	case "stream":
		source, err := e.streamSource(def.StreamID)
		if err != nil {
			return nil, err
		}
		return &steps.Stream{Status: def.Status, Headers: def.Headers, Source: source}, nil
	case "callback":
		responder, err := e.callbackResponder(def.CallbackID)
		if err != nil {
			return nil, err
		}
		return &steps.Callback{Responder: responder}, nil
	case "json-rpc-response":
		return &steps.JsonRpcResponse{Result: def.Result}, nil
	case "close-connection":
		return &steps.CloseConnection{}, nil
	case "reset-connection":
		return &steps.ResetConnection{}, nil
	case "timeout":
		return &steps.Timeout{}, nil
	case "delay":
		return &steps.Delay{Duration: time.Duration(def.DelayMs) * time.Millisecond}, nil
	case "wait-for-request-body":
		return &steps.WaitForRequestBody{}, nil
	case "webhook":
		return &steps.Webhook{URL: def.WebhookURL, Events: def.WebhookEvents}, nil
	case "passthrough":
		if def.PassThrough == nil {
			return nil, fmt.Errorf("passthrough step missing passThrough config")
		}
		return &steps.PassThrough{Forwarder: passthrough.NewHTTPForwarder(def.PassThrough, e.params())}, nil
	case "ws-passthrough":
		if def.PassThrough == nil {
			return nil, fmt.Errorf("ws-passthrough step missing passThrough config")
		}
		return &steps.WsPassThrough{Forwarder: passthrough.NewWSForwarder(def.PassThrough, e.params())}, nil
	case "ws-echo":
		return &steps.WsEcho{}, nil
	case "ws-listen":
		return &steps.WsListen{}, nil
	case "ws-reject":
		return &steps.WsReject{Status: def.Status, StatusMessage: def.StatusMessage}, nil
	default:
		return nil, fmt.Errorf("unknown step type %q", def.Type)
	}
}

// callbackPredicate resolves a matcher's callbackId against the engine's
// currently active channel (§4.6, §9).
func (e *Engine) callbackPredicate(id string) (rpc.PredicateCallback, error) {
	conn := e.activeConn()
	if conn == nil {
		return nil, fmt.Errorf("callback-unavailable: no channel connected for predicate %q", id)
	}
	return e.channelPredicate(conn, id), nil
}

// callbackResponder resolves a step's callbackId the same way.
func (e *Engine) callbackResponder(id string) (rpc.ResponderCallback, error) {
	conn := e.activeConn()
	if conn == nil {
		return nil, fmt.Errorf("callback-unavailable: no channel connected for responder %q", id)
	}
	return e.channelResponder(conn, id), nil
}

// streamSource resolves a stream step's streamId against the currently
// attached channel (§4.6 "Stream steps").
func (e *Engine) streamSource(id string) (io.Reader, error) {
	ch := e.activeChannel()
	if ch == nil {
		return nil, fmt.Errorf("callback-unavailable: no channel connected for stream %q", id)
	}
	return ch.RegisterStream(id), nil
}

