package config

import (
	mslogger "mockproxy/logger"
)

// CORSConfig controls the admin API's cross-origin policy.
type CORSConfig struct {
	Enabled          bool     `json:"enabled" yaml:"enabled"`
	AllowOrigins     []string `json:"allow_origins" yaml:"allow_origins"`
	AllowMethods     []string `json:"allow_methods" yaml:"allow_methods"`
	AllowHeaders     []string `json:"allow_headers" yaml:"allow_headers"`
	AllowCredentials bool     `json:"allow_credentials" yaml:"allow_credentials"`
}

// DebugConfig toggles the request-log ring buffer admin endpoint.
type DebugConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// AdminAuthConfig protects the admin/control-plane surface that installs
// rules and streams events (§4.6, §4.7 of the design notes).
type AdminAuthConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

// AdminConfig configures the control-plane transport: JWT-protected rule
// install, event stream and health endpoints.
type AdminConfig struct {
	Enabled bool             `json:"enabled" yaml:"enabled"`
	Path    string           `json:"path" yaml:"path"`
	Auth    *AdminAuthConfig `json:"auth" yaml:"auth"`
}

// FallbackPolicy is the engine-configured behavior when no rule matches
// (§4.2 step 4): pass the request through to its own target, answer with a
// generic "unmatched" response, or close the connection outright.
type FallbackPolicy string

const (
	FallbackPassthrough      FallbackPolicy = "passthrough"
	FallbackUnmatchedRequest FallbackPolicy = "unmatched-request"
	FallbackClose            FallbackPolicy = "close"
)

// ParamDef is a named value in the engine's parameter table, resolved for
// `{"paramRef": <name>}` references in proxy/CA positions (§6).
type ParamDef struct {
	Type        string      `json:"type" yaml:"type"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Value       interface{} `json:"value" yaml:"value"`
}

// EngineConfig is the engine's bootstrap configuration: listener binding,
// fallback policy, admin control-plane, and the named parameter table.
type EngineConfig struct {
	// Listener port number, e.g. 8080 (bound on all interfaces).
	Port int `json:"port" yaml:"port"`

	Admin *AdminConfig `json:"admin" yaml:"admin"`
	Debug *DebugConfig `json:"debug,omitempty" yaml:"debug,omitempty"`
	CORS  *CORSConfig  `json:"cors" yaml:"cors"`

	// Policy applied when no rule matches an incoming request.
	Fallback FallbackPolicy `json:"fallback" yaml:"fallback"`

	// Named parameters (proxy settings, CA material references) resolved
	// against `{"paramRef": name}` positions in pass-through rule configs.
	Params map[string]ParamDef `json:"params,omitempty" yaml:"params,omitempty"`

	// Message-body decoding policy: max bytes buffered for matchers/steps
	// that need the full body before deciding.
	MaxBodyBytes int64 `json:"max_body_bytes,omitempty" yaml:"max_body_bytes,omitempty"`
}

// MatcherDef is the wire form of a matcher (§4.1, §6): `{"type": ..., ...}`.
type MatcherDef struct {
	Type string `json:"type" yaml:"type"`

	Method   string `json:"method,omitempty" yaml:"method,omitempty"`
	Host     string `json:"host,omitempty" yaml:"host,omitempty"`
	Hostname string `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	Port     int    `json:"port,omitempty" yaml:"port,omitempty"`
	Protocol string `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	Path     string `json:"path,omitempty" yaml:"path,omitempty"`
	Regex    string `json:"regex,omitempty" yaml:"regex,omitempty"`

	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	ExactQuery string              `json:"exactQuery,omitempty" yaml:"exactQuery,omitempty"`
	Query      map[string][]string `json:"query,omitempty" yaml:"query,omitempty"`
	FormData   map[string]string   `json:"formData,omitempty" yaml:"formData,omitempty"`

	MultipartParts []MultipartCondition `json:"parts,omitempty" yaml:"parts,omitempty"`

	RawBody string `json:"rawBody,omitempty" yaml:"rawBody,omitempty"`

	JsonBody         interface{} `json:"jsonBody,omitempty" yaml:"jsonBody,omitempty"`
	JsonBodyFlexible interface{} `json:"jsonBodyFlexible,omitempty" yaml:"jsonBodyFlexible,omitempty"`

	Cookie map[string]string `json:"cookie,omitempty" yaml:"cookie,omitempty"`

	// CallbackID references a registered RPC stub (see package channel) for
	// the `callback` matcher variant.
	CallbackID string `json:"callbackId,omitempty" yaml:"callbackId,omitempty"`
}

// MultipartCondition is one entry of a MultipartForm matcher's condition list.
type MultipartCondition struct {
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Filename string `json:"filename,omitempty" yaml:"filename,omitempty"`
	Content  string `json:"content,omitempty" yaml:"content,omitempty"`
}

// StepDef is the wire form of a step (§4.3, §6).
type StepDef struct {
	Type string `json:"type" yaml:"type"`

	// FixedResponse (`simple`); Status/StatusMessage are also reused by
	// `ws-reject` as the close code and reason sent for a rejected upgrade.
	Status        int               `json:"status,omitempty" yaml:"status,omitempty"`
	StatusMessage string            `json:"statusMessage,omitempty" yaml:"statusMessage,omitempty"`
	Headers       map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Data          interface{}       `json:"data,omitempty" yaml:"data,omitempty"`
	Trailers      map[string]string `json:"trailers,omitempty" yaml:"trailers,omitempty"`

	// File
	FilePath string `json:"filePath,omitempty" yaml:"filePath,omitempty"`

	// Stream: StreamID names a remote stream registered on the
	// serialization channel (§4.6 "Stream steps"); the step's first read
	// sends the remote client a stream/ping, and the response is piped from
	// the stream/data frames the client then sends.
	StreamID string `json:"streamId,omitempty" yaml:"streamId,omitempty"`

	// Callback
	CallbackID string `json:"callbackId,omitempty" yaml:"callbackId,omitempty"`

	// JsonRpcResponse: Result is a template evaluated per request.
	Result interface{} `json:"result,omitempty" yaml:"result,omitempty"`

	// Delay
	DelayMs int `json:"delayMs,omitempty" yaml:"delayMs,omitempty"`

	// Webhook
	WebhookURL    string   `json:"url,omitempty" yaml:"url,omitempty"`
	WebhookEvents []string `json:"events,omitempty" yaml:"events,omitempty"`

	// PassThrough / WsPassThrough
	PassThrough *PassThroughDef `json:"passThrough,omitempty" yaml:"passThrough,omitempty"`
}

// PassThroughDef configures §4.4/§4.5's forwarding behavior.
type PassThroughDef struct {
	ForwardToHost         string              `json:"forwardToHost,omitempty" yaml:"forwardToHost,omitempty"`
	IgnoreHostHTTPSErrors interface{}         `json:"ignoreHostHttpsErrors,omitempty" yaml:"ignoreHostHttpsErrors,omitempty"`
	ExtraCACertificates   []string            `json:"extraCACertificates,omitempty" yaml:"extraCACertificates,omitempty"`
	ClientCertificates    map[string]CertPair `json:"clientCertificateHostMap,omitempty" yaml:"clientCertificateHostMap,omitempty"`
	ProxyParamRef         string              `json:"proxyParamRef,omitempty" yaml:"proxyParamRef,omitempty"`
	SimulateConnErrors    bool                `json:"simulateConnectionErrors,omitempty" yaml:"simulateConnectionErrors,omitempty"`

	TransformRequest  *TransformDef `json:"transformRequest,omitempty" yaml:"transformRequest,omitempty"`
	TransformResponse *TransformDef `json:"transformResponse,omitempty" yaml:"transformResponse,omitempty"`

	BeforeRequestCallbackID  string `json:"beforeRequestCallbackId,omitempty" yaml:"beforeRequestCallbackId,omitempty"`
	BeforeResponseCallbackID string `json:"beforeResponseCallbackId,omitempty" yaml:"beforeResponseCallbackId,omitempty"`
}

// CertPair is a PEM client certificate + key pair.
type CertPair struct {
	Cert string `json:"cert" yaml:"cert"`
	Key  string `json:"key" yaml:"key"`
}

// TransformDef is the declarative request/response transform (§4.4 step 3/10).
type TransformDef struct {
	ReplaceMethod string `json:"replaceMethod,omitempty" yaml:"replaceMethod,omitempty"`

	UpdateHeaders  map[string]string `json:"updateHeaders,omitempty" yaml:"updateHeaders,omitempty"`
	ReplaceHeaders map[string]string `json:"replaceHeaders,omitempty" yaml:"replaceHeaders,omitempty"`

	ReplaceBody         string                 `json:"replaceBody,omitempty" yaml:"replaceBody,omitempty"`
	ReplaceBodyFromFile string                 `json:"replaceBodyFromFile,omitempty" yaml:"replaceBodyFromFile,omitempty"`
	UpdateJsonBody      map[string]interface{} `json:"updateJsonBody,omitempty" yaml:"updateJsonBody,omitempty"`
	PatchJsonBody       []JSONPatchOp          `json:"patchJsonBody,omitempty" yaml:"patchJsonBody,omitempty"`
	MatchReplaceBody    [][2]string            `json:"matchReplaceBody,omitempty" yaml:"matchReplaceBody,omitempty"`

	ReplaceHost       string      `json:"replaceHost,omitempty" yaml:"replaceHost,omitempty"`
	MatchReplaceHost  *[2]string  `json:"matchReplaceHost,omitempty" yaml:"matchReplaceHost,omitempty"`
	MatchReplacePath  [][2]string `json:"matchReplacePath,omitempty" yaml:"matchReplacePath,omitempty"`
	MatchReplaceQuery [][2]string `json:"matchReplaceQuery,omitempty" yaml:"matchReplaceQuery,omitempty"`

	SetProtocol string `json:"setProtocol,omitempty" yaml:"setProtocol,omitempty"`

	UpdateHostHeader interface{} `json:"updateHostHeader,omitempty" yaml:"updateHostHeader,omitempty"`
}

// JSONPatchOp is one RFC 6902 operation.
type JSONPatchOp struct {
	Op    string      `json:"op" yaml:"op"`
	Path  string      `json:"path" yaml:"path"`
	Value interface{} `json:"value,omitempty" yaml:"value,omitempty"`
	From  string      `json:"from,omitempty" yaml:"from,omitempty"`
}

// CompletionDef is the wire form of a CompletionChecker (§3, §6).
type CompletionDef struct {
	Type  string `json:"type" yaml:"type"`
	Count uint64 `json:"count,omitempty" yaml:"count,omitempty"`
}

// RuleDef is the wire form of a Rule (§3, §6): the payload a remote admin
// client transmits over the serialization channel to install a rule.
type RuleDef struct {
	ID                string         `json:"id,omitempty" yaml:"id,omitempty"`
	Priority          *uint          `json:"priority,omitempty" yaml:"priority,omitempty"`
	Matchers          []MatcherDef   `json:"matchers" yaml:"matchers"`
	Steps             []StepDef      `json:"steps" yaml:"steps"`
	CompletionChecker *CompletionDef `json:"completionChecker,omitempty" yaml:"completionChecker,omitempty"`
}

// RuleFile is the on-disk bootstrap format (§S2 of SPEC_FULL.md): engine
// config plus an initial rule set, loaded once at startup and re-applied on
// file change.
type RuleFile struct {
	Schema string       `json:"$schema,omitempty" yaml:"$schema,omitempty"`
	Engine EngineConfig `json:"engine" yaml:"engine"`
	Rules  []RuleDef    `json:"rules" yaml:"rules"`
}

// ApplyDefaults fills in the engine bootstrap config's zero values.
func (e *EngineConfig) ApplyDefaults() {
	if e.Port == 0 {
		e.Port = 8080
		mslogger.LogWarn("Config: engine.port not set → using default 8080")
	}

	if e.Fallback == "" {
		e.Fallback = FallbackUnmatchedRequest
	}

	if e.Debug == nil {
		e.Debug = &DebugConfig{}
	}
	if e.Debug.Path == "" {
		e.Debug.Path = "/__debug"
	}

	if e.Admin == nil {
		e.Admin = &AdminConfig{Enabled: true}
	}
	if e.Admin.Path == "" {
		e.Admin.Path = "/__admin"
	}
	if e.Admin.Auth == nil {
		e.Admin.Auth = &AdminAuthConfig{
			Enabled:  true,
			Username: "admin",
			Password: "123",
		}
		mslogger.LogWarn("Admin auth default credentials are in use (admin/123)")
	}

	if e.CORS == nil {
		e.CORS = &CORSConfig{}
	}
	if e.CORS.Enabled {
		if len(e.CORS.AllowOrigins) == 0 {
			e.CORS.AllowOrigins = []string{"*"}
		}
		if len(e.CORS.AllowMethods) == 0 {
			e.CORS.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
		}
		if len(e.CORS.AllowHeaders) == 0 {
			e.CORS.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
		}
	}

	if e.MaxBodyBytes == 0 {
		e.MaxBodyBytes = 10 << 20 // 10MiB
	}

	if e.Params == nil {
		e.Params = map[string]ParamDef{}
	}
}
