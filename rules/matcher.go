// Package rules implements the matcher set (§4.1), completion checker
// (§3/§4.2), Rule (§3) and the rule selector (§4.2).
package rules

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"mockproxy/reqres"
	"mockproxy/rpc"
)

// Matcher is a pure predicate over a request (§4.1). Every variant below is
// pure except Callback, which evaluates a remote predicate through the
// serialization channel (§4.6).
type Matcher interface {
	Matches(req *reqres.Fingerprint) (bool, error)
	Explain() string
}

// MatchesAll implements §4.1's `matches_all`: short-circuits false on the
// first false result; any matcher error rejects the whole selection.
func MatchesAll(req *reqres.Fingerprint, matchers []Matcher) (bool, error) {
	for _, m := range matchers {
		ok, err := m.Matches(req)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// ExplainAll composes matcher explanations per §4.1: one -> its text; two ->
// "{a} {b}"; three+ -> an Oxford-comma join with "and" before the last.
func ExplainAll(matchers []Matcher) string {
	parts := make([]string, len(matchers))
	for i, m := range matchers {
		parts[i] = m.Explain()
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " " + parts[1]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + ", and " + parts[len(parts)-1]
	}
}

// --- Wildcard ---

type WildcardMatcher struct{}

func (WildcardMatcher) Matches(*reqres.Fingerprint) (bool, error) { return true, nil }
func (WildcardMatcher) Explain() string                           { return "for any request" }

// --- Method ---

type MethodMatcher struct{ Method string }

func (m MethodMatcher) Matches(req *reqres.Fingerprint) (bool, error) {
	return req.Method == strings.ToUpper(m.Method), nil
}
func (m MethodMatcher) Explain() string { return "making " + strings.ToUpper(m.Method) + " requests" }

// --- Host ---

var hostPattern = regexp.MustCompile(`^([a-z0-9-]+\.)*[a-z0-9-]+(:\d+)?$`)

// NewHostMatcher validates the host shape per §4.1's constructor contract.
func NewHostMatcher(host string) (HostMatcher, error) {
	if strings.ContainsAny(host, "/?") || !hostPattern.MatchString(host) {
		return HostMatcher{}, fmt.Errorf("invalid host matcher value %q", host)
	}
	return HostMatcher{Host: host}, nil
}

type HostMatcher struct{ Host string }

func (m HostMatcher) Matches(req *reqres.Fingerprint) (bool, error) {
	h := req.URL.Hostname()
	if req.URL.Port() != "" {
		h = h + ":" + req.URL.Port()
	}
	return h == m.Host, nil
}
func (m HostMatcher) Explain() string { return "for host " + m.Host }

// --- Hostname ---

type HostnameMatcher struct{ Hostname string }

func (m HostnameMatcher) Matches(req *reqres.Fingerprint) (bool, error) {
	return strings.EqualFold(req.URL.Hostname(), m.Hostname), nil
}
func (m HostnameMatcher) Explain() string { return "for hostname " + m.Hostname }

// --- Port ---

type PortMatcher struct{ Port int }

func (m PortMatcher) Matches(req *reqres.Fingerprint) (bool, error) {
	return ResolvePort(req.URL.Scheme, req.URL.Port()) == m.Port, nil
}
func (m PortMatcher) Explain() string { return fmt.Sprintf("on port %d", m.Port) }

// ResolvePort applies default-port resolution per scheme (§4.1 Port, §4.4 step 4).
func ResolvePort(scheme, explicitPort string) int {
	if explicitPort != "" {
		n, _ := strconv.Atoi(explicitPort)
		return n
	}
	if scheme == "https" || scheme == "wss" {
		return 443
	}
	return 80
}

// --- Protocol ---

type ProtocolMatcher struct{ Protocol string }

func (m ProtocolMatcher) Matches(req *reqres.Fingerprint) (bool, error) {
	return req.Protocol == m.Protocol, nil
}
func (m ProtocolMatcher) Explain() string { return "for " + m.Protocol + " requests" }

// --- FlexiblePath ---

// NewFlexiblePathMatcher rejects inputs containing a query, per §4.1.
func NewFlexiblePathMatcher(path string) (FlexiblePathMatcher, error) {
	if strings.Contains(path, "?") {
		return FlexiblePathMatcher{}, fmt.Errorf("simple-path matcher value %q must not contain a query", path)
	}
	return FlexiblePathMatcher{Path: path}, nil
}

type FlexiblePathMatcher struct{ Path string }

func (m FlexiblePathMatcher) Matches(req *reqres.Fingerprint) (bool, error) {
	target := m.Path
	switch {
	case strings.Contains(target, "://"):
		return req.URL.String() == target, nil
	case strings.HasPrefix(target, "//"):
		return strings.TrimPrefix(req.URL.String(), req.URL.Scheme+":") == target, nil
	default:
		return req.URL.Path == target, nil
	}
}
func (m FlexiblePathMatcher) Explain() string { return "for path " + m.Path }

// --- RegexPath / RegexUrl ---

type RegexPathMatcher struct{ Re *regexp.Regexp }

func (m RegexPathMatcher) Matches(req *reqres.Fingerprint) (bool, error) {
	return m.Re.MatchString(req.URL.String()) || m.Re.MatchString(req.URL.Path), nil
}
func (m RegexPathMatcher) Explain() string { return "matching path regex " + m.Re.String() }

type RegexUrlMatcher struct{ Re *regexp.Regexp }

func (m RegexUrlMatcher) Matches(req *reqres.Fingerprint) (bool, error) {
	return m.Re.MatchString(req.URL.String()), nil
}
func (m RegexUrlMatcher) Explain() string { return "matching URL regex " + m.Re.String() }

// --- Header ---

type HeaderMatcher struct{ Headers map[string]string }

func (m HeaderMatcher) Matches(req *reqres.Fingerprint) (bool, error) {
	for k, v := range m.Headers {
		got, ok := req.Header(k)
		if !ok || got != v {
			return false, nil
		}
	}
	return true, nil
}
func (m HeaderMatcher) Explain() string { return "with headers matching" }

// --- ExactQuery ---

type ExactQueryMatcher struct{ Query string }

func (m ExactQueryMatcher) Matches(req *reqres.Fingerprint) (bool, error) {
	rawQuery := ""
	if req.URL.RawQuery != "" {
		rawQuery = "?" + req.URL.RawQuery
	}
	if m.Query == "" {
		return rawQuery == "", nil
	}
	return rawQuery == m.Query, nil
}
func (m ExactQueryMatcher) Explain() string { return "with query " + m.Query }

// --- Query (subset) ---

type QueryMatcher struct{ Params map[string][]string }

func (m QueryMatcher) Matches(req *reqres.Fingerprint) (bool, error) {
	values := req.URL.Query()
	for k, want := range m.Params {
		got, ok := values[k]
		if !ok || !stringSliceSubset(want, got) {
			return false, nil
		}
	}
	return true, nil
}
func (m QueryMatcher) Explain() string { return "with matching query parameters" }

func stringSliceSubset(want, got []string) bool {
	for _, w := range want {
		found := false
		for _, g := range got {
			if w == g {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// --- FormData ---

type FormDataMatcher struct{ Fields map[string]string }

func (m FormDataMatcher) Matches(req *reqres.Fingerprint) (bool, error) {
	ct, _ := req.Header("Content-Type")
	if !strings.Contains(ct, "application/x-www-form-urlencoded") {
		return false, nil
	}
	form, err := req.Body.AsFormData()
	if err != nil {
		return false, nil
	}
	for k, v := range m.Fields {
		if form.Get(k) != v {
			return false, nil
		}
	}
	return true, nil
}
func (m FormDataMatcher) Explain() string { return "with matching form data" }

// --- MultipartForm ---

type MultipartCondition struct {
	Name, Filename, Content string
}

type MultipartFormMatcher struct{ Conditions []MultipartCondition }

func (m MultipartFormMatcher) Matches(req *reqres.Fingerprint) (bool, error) {
	ct, _ := req.Header("Content-Type")
	boundary, ok := reqres.MultipartBoundary(ct)
	if !ok {
		return false, nil
	}
	parts, err := req.Body.AsMultipart(boundary)
	if err != nil {
		return false, nil
	}
	for _, cond := range m.Conditions {
		satisfied := false
		for _, p := range parts {
			if cond.Name != "" && p.Name != cond.Name {
				continue
			}
			if cond.Filename != "" && p.Filename != cond.Filename {
				continue
			}
			if cond.Content != "" && string(p.Content) != cond.Content {
				continue
			}
			satisfied = true
			break
		}
		if !satisfied {
			return false, nil
		}
	}
	return true, nil
}
func (m MultipartFormMatcher) Explain() string { return "with matching multipart form parts" }

// --- RawBody / RawBodyIncludes / RegexBody ---

type RawBodyMatcher struct{ Body string }

func (m RawBodyMatcher) Matches(req *reqres.Fingerprint) (bool, error) {
	text, err := req.Body.AsText()
	if err != nil {
		return false, nil
	}
	return text == m.Body, nil
}
func (m RawBodyMatcher) Explain() string { return "with matching raw body" }

type RawBodyIncludesMatcher struct{ Substr string }

func (m RawBodyIncludesMatcher) Matches(req *reqres.Fingerprint) (bool, error) {
	text, err := req.Body.AsText()
	if err != nil {
		return false, nil
	}
	return strings.Contains(text, m.Substr), nil
}
func (m RawBodyIncludesMatcher) Explain() string { return "with body including " + m.Substr }

type RegexBodyMatcher struct{ Re *regexp.Regexp }

func (m RegexBodyMatcher) Matches(req *reqres.Fingerprint) (bool, error) {
	text, err := req.Body.AsText()
	if err != nil {
		return false, nil
	}
	return m.Re.MatchString(text), nil
}
func (m RegexBodyMatcher) Explain() string { return "with body matching regex " + m.Re.String() }

// --- JsonBody / JsonBodyFlexible ---

type JsonBodyMatcher struct{ Value interface{} }

func (m JsonBodyMatcher) Matches(req *reqres.Fingerprint) (bool, error) {
	got, err := req.Body.AsJSON()
	if err != nil {
		return false, nil
	}
	return deepEqualJSON(got, m.Value), nil
}
func (m JsonBodyMatcher) Explain() string { return "with matching JSON body" }

type JsonBodyFlexibleMatcher struct{ Value interface{} }

func (m JsonBodyFlexibleMatcher) Matches(req *reqres.Fingerprint) (bool, error) {
	got, err := req.Body.AsJSON()
	if err != nil {
		return false, nil
	}
	return jsonSubsetMatch(got, m.Value), nil
}
func (m JsonBodyFlexibleMatcher) Explain() string { return "with JSON body including" }

func deepEqualJSON(a, b interface{}) bool {
	an, aok := normalizeJSONNumber(a)
	bn, bok := normalizeJSONNumber(b)
	if aok && bok {
		return reflect.DeepEqual(an, bn)
	}
	return reflect.DeepEqual(a, b)
}

func normalizeJSONNumber(v interface{}) (interface{}, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			n, _ := normalizeJSONNumber(val)
			out[k] = n
		}
		return out, true
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			n, _ := normalizeJSONNumber(val)
			out[i] = n
		}
		return out, true
	default:
		return v, true
	}
}

// jsonSubsetMatch implements §4.1's JsonBodyFlexible contract: missing-from-
// sample keys allowed, primitives deep-equal, arrays require each configured
// element found somewhere in the sample array.
func jsonSubsetMatch(sample, configured interface{}) bool {
	switch cv := configured.(type) {
	case map[string]interface{}:
		sm, ok := sample.(map[string]interface{})
		if !ok {
			return false
		}
		for k, want := range cv {
			got, present := sm[k]
			if !present || !jsonSubsetMatch(got, want) {
				return false
			}
		}
		return true
	case []interface{}:
		sArr, ok := sample.([]interface{})
		if !ok {
			return false
		}
		for _, wantElem := range cv {
			found := false
			for _, gotElem := range sArr {
				if jsonSubsetMatch(gotElem, wantElem) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	default:
		return deepEqualJSON(sample, configured)
	}
}

// --- Cookie ---

type CookieMatcher struct{ Key, Value string }

func (m CookieMatcher) Matches(req *reqres.Fingerprint) (bool, error) {
	header, ok := req.Header("Cookie")
	if !ok {
		return false, nil
	}
	for _, tok := range strings.Split(header, ";") {
		kv := strings.SplitN(strings.TrimSpace(tok), "=", 2)
		if len(kv) == 2 && kv[0] == m.Key && kv[1] == m.Value {
			return true, nil
		}
	}
	return false, nil
}
func (m CookieMatcher) Explain() string { return "with cookie " + m.Key + "=" + m.Value }

// --- Callback ---

type CallbackMatcher struct{ Callback rpc.PredicateCallback }

func (m CallbackMatcher) Matches(req *reqres.Fingerprint) (bool, error) {
	ok, err := m.Callback.Evaluate(req)
	if err != nil {
		// Exceptions are treated as non-match (§4.1), never propagated as
		// selection failure.
		return false, nil
	}
	return ok, nil
}
func (m CallbackMatcher) Explain() string { return "matching a callback predicate" }
