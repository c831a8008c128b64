package passthrough

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"mockproxy/config"
	"mockproxy/reqres"
	"mockproxy/steps"
)

// allowedPseudoHeaders is the allowlist a transform may override (§4.4
// step 3 rule, §8 P8).
var allowedPseudoHeaders = map[string]bool{
	":scheme":    true,
	":authority": true,
	":path":      true,
	":method":    true,
}

// HTTPForwarder implements steps.Forwarder — the HTTP pass-through
// algorithm of §4.4: target resolution, loop detection, request/response
// transforms, TLS policy, H1/H2 bridging, localhost-family fix, DNS
// caching, upstream proxy resolution, send, response handling, error
// classification, and abort coupling.
type HTTPForwarder struct {
	Def    *config.PassThroughDef
	Params map[string]config.ParamDef

	tls  *TLSPolicy
	dns  *DNSCache
	loop *LoopTracker

	h1 *http.Client
	h2 *http2.Transport
}

// NewHTTPForwarder builds a forwarder for one pass-through step instance;
// the returned value owns its own connection pools and DNS cache, dropped
// via Dispose when the owning rule is dropped (§5).
func NewHTTPForwarder(def *config.PassThroughDef, params map[string]config.ParamDef) *HTTPForwarder {
	f := &HTTPForwarder{
		Def:    def,
		Params: params,
		tls:    NewTLSPolicy(def),
		dns:    NewDefaultDNSCache(),
		loop:   NewLoopTracker(),
	}
	f.h1 = &http.Client{
		Transport: &http.Transport{
			DisableCompression: true,
			Proxy:              f.proxyFunc(),
		},
	}
	f.h2 = &http2.Transport{
		AllowHTTP: false,
	}
	return f
}

// Dispose drops the forwarder's connection pools (§5).
func (f *HTTPForwarder) Dispose() {
	if t, ok := f.h1.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}

func (f *HTTPForwarder) proxyFunc() func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		if f.Def == nil || f.Def.ProxyParamRef == "" {
			return nil, nil
		}
		param, ok := f.Params[f.Def.ProxyParamRef]
		if !ok {
			return nil, nil
		}
		s, ok := param.Value.(string)
		if !ok || s == "" {
			return nil, nil
		}
		return url.Parse(s)
	}
}

// Forward implements steps.Forwarder.
func (f *HTTPForwarder) Forward(ctx context.Context, e *steps.Exec) error {
	req := e.Req

	// Step 1: target resolution.
	targetHost, targetPort, scheme, path := resolveTarget(req, f.Def)

	// Step 2: loop detection (§8 P9).
	peerAddr := net.JoinHostPort(targetHost, strconv.Itoa(targetPort))
	if f.loop.Contains(req.RemoteIP) {
		req.AddTag("loop-detected")
		e.Events.Publish("client-error", "loop-detected: "+peerAddr)
		e.Res.WriteHeader(500, "", map[string]string{"Content-Type": "text/plain"})
		e.Res.Write([]byte("loop-detected: request would forward back into this proxy"))
		return nil
	}

	// Step 3: request transformation.
	body, err := req.Body.AsBuffer()
	if err != nil {
		body = nil
	}
	msg := &Message{
		Method:  req.Method,
		Host:    targetHost,
		Path:    path,
		Query:   req.URL.RawQuery,
		Headers: append([]reqres.HeaderPair(nil), req.RawHeaders...),
		Body:    body,
	}
	if msg.Query != "" {
		msg.Query = "?" + msg.Query
	}

	bodyReplaced := false
	if f.Def != nil && f.Def.TransformRequest != nil {
		t := f.Def.TransformRequest
		bodyReplaced = t.ReplaceBody != "" || t.ReplaceBodyFromFile != "" || len(t.UpdateJsonBody) > 0 ||
			len(t.PatchJsonBody) > 0 || len(t.MatchReplaceBody) > 0
		if err := ApplyTransform(msg, t); err != nil {
			return f.failUpstream(e, req, err)
		}
		if bodyReplaced {
			reencoded, err := reencodeForContentEncoding(msg.Body, msg.Headers)
			if err != nil {
				return f.failUpstream(e, req, err)
			}
			msg.Body = reencoded
			RecomputeContentLength(msg)
		}
		if t.SetProtocol != "" {
			scheme = t.SetProtocol
		}
		ApplyHostHeader(msg, t.UpdateHostHeader, msg.Host)
	}

	if err := rejectDisallowedPseudoHeaders(msg.Headers); err != nil {
		return f.failUpstream(e, req, err)
	}

	// Step 4: TLS policy.
	tlsCfg, err := f.tls.Config(msg.Host, targetPort, nil)
	if err != nil {
		return f.failUpstream(e, req, err)
	}

	// Step 6: localhost family fix.
	dialHost := msg.Host
	if strings.EqualFold(msg.Host, "localhost") {
		dialHost = f.resolveLocalhostFamily(ctx, targetPort)
	}

	// Step 7: DNS cache (only for non-localhost names; IPs pass through).
	if net.ParseIP(dialHost) == nil && !strings.EqualFold(dialHost, "localhost") {
		if addrs, err := f.dns.Lookup(ctx, dialHost); err == nil && len(addrs) > 0 {
			dialHost = addrs[0]
		}
	}

	release := f.loop.Enter(net.JoinHostPort(dialHost, strconv.Itoa(targetPort)))
	defer release()

	outURL := &url.URL{
		Scheme:   httpScheme(scheme),
		Host:     net.JoinHostPort(dialHost, strconv.Itoa(targetPort)),
		Path:     msg.Path,
		RawQuery: strings.TrimPrefix(msg.Query, "?"),
	}

	var bodyReader io.Reader
	if bodyReplaced || len(msg.Body) > 0 {
		bodyReader = bytes.NewReader(msg.Body)
	}

	outReq, err := http.NewRequestWithContext(ctx, msg.Method, outURL.String(), bodyReader)
	if err != nil {
		return f.failUpstream(e, req, err)
	}
	for _, h := range msg.Headers {
		outReq.Header.Add(h.Key, h.Value)
	}
	outReq.Host = hostHeaderValue(msg.Headers, msg.Host)

	// Step 5: HTTP version selection.
	client := f.clientFor(req.IsHTTP2, scheme, tlsCfg)

	// Step 9: send.
	resp, err := client.Do(outReq)
	if err != nil {
		return f.classifyError(e, req, err)
	}
	defer resp.Body.Close()

	// Step 10: response handling.
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return f.classifyError(e, req, err)
	}

	respMsg := &Message{Body: respBody}
	for k, vs := range resp.Header {
		for _, v := range vs {
			respMsg.Headers = append(respMsg.Headers, reqres.HeaderPair{Key: k, Value: v})
		}
	}

	if f.Def != nil && f.Def.TransformResponse != nil {
		rt := f.Def.TransformResponse
		bodyChanged := rt.ReplaceBody != "" || rt.ReplaceBodyFromFile != "" || len(rt.UpdateJsonBody) > 0 ||
			len(rt.PatchJsonBody) > 0 || len(rt.MatchReplaceBody) > 0
		if err := ApplyTransform(respMsg, rt); err != nil {
			return f.failUpstream(e, req, err)
		}
		if bodyChanged && req.Method != http.MethodHead {
			RecomputeContentLength(respMsg)
		}
	}

	headers := map[string]string{}
	for _, h := range respMsg.Headers {
		headers[h.Key] = h.Value
	}
	e.Res.WriteHeader(resp.StatusCode, resp.Status, headers)
	if len(respMsg.Body) > 0 {
		e.Res.Write(respMsg.Body)
	}
	return nil
}

func (f *HTTPForwarder) clientFor(downstreamIsH2 bool, scheme string, tlsCfg *tls.Config) *http.Client {
	if downstreamIsH2 && strings.EqualFold(scheme, "https") {
		return &http.Client{Transport: &http2.Transport{TLSClientConfig: tlsCfg}}
	}
	t := f.h1.Transport.(*http.Transport).Clone()
	t.TLSClientConfig = tlsCfg
	t.DisableKeepAlives = false
	return &http.Client{Transport: t}
}

func (f *HTTPForwarder) resolveLocalhostFamily(ctx context.Context, port int) string {
	d := net.Dialer{Timeout: 200 * time.Millisecond}
	for _, candidate := range []string{"::1", "127.0.0.1"} {
		conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(candidate, strconv.Itoa(port)))
		if err == nil {
			conn.Close()
			return candidate
		}
	}
	return "127.0.0.1"
}

// Step 11: error classification.
func (f *HTTPForwarder) classifyError(e *steps.Exec, req *reqres.Fingerprint, err error) error {
	if n, ok := alertNumber(err); ok {
		tag := fmt.Sprintf("passthrough-tls-error:ssl-alert-%d", n)
		req.AddTag(tag)
		e.Events.Publish("tls-client-error", tag)
		e.Res.WriteHeader(502, "", map[string]string{"Content-Type": "text/plain"})
		e.Res.Write([]byte("Error communicating with upstream server"))
		return nil
	}

	if errors.Is(err, context.Canceled) || isConnReset(err) {
		req.AddTag("passthrough-error:ECONNRESET")
		e.Events.Publish("abort", "upstream reset the connection")
		return &steps.AbortError{Reset: true}
	}

	return f.failUpstream(e, req, err)
}

func (f *HTTPForwarder) failUpstream(e *steps.Exec, req *reqres.Fingerprint, err error) error {
	code := classifyErrorCode(err)
	req.AddTag("passthrough-error:" + code)
	e.Events.Publish("client-error", err.Error())
	e.Res.WriteHeader(502, "", map[string]string{"Content-Type": "text/plain"})
	e.Res.Write([]byte("Error communicating with upstream server"))
	return nil
}

func classifyErrorCode(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such host"):
		return "ENOTFOUND"
	case strings.Contains(msg, "connection refused"):
		return "ECONNREFUSED"
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return "ETIMEDOUT"
	default:
		return "EUNKNOWN"
	}
}

func isConnReset(err error) bool {
	return strings.Contains(err.Error(), "connection reset") || strings.Contains(err.Error(), "broken pipe")
}

func resolveTarget(req *reqres.Fingerprint, def *config.PassThroughDef) (host string, port int, scheme, path string) {
	scheme = req.URL.Scheme
	host = req.URL.Hostname()
	path = req.URL.Path

	if def != nil && def.ForwardToHost != "" {
		target, err := url.Parse(def.ForwardToHost)
		if err == nil && target.Host != "" {
			host = target.Hostname()
			if target.Scheme != "" {
				scheme = target.Scheme
			}
			if p := target.Port(); p != "" {
				port, _ = strconv.Atoi(p)
			}
		} else {
			host = def.ForwardToHost
		}
	}

	if port == 0 {
		if p := req.URL.Port(); p != "" {
			port, _ = strconv.Atoi(p)
		} else {
			port = defaultPortForScheme(scheme)
		}
	}
	return host, port, scheme, path
}

func defaultPortForScheme(scheme string) int {
	switch strings.ToLower(scheme) {
	case "https", "wss":
		return 443
	default:
		return 80
	}
}

func httpScheme(scheme string) string {
	switch strings.ToLower(scheme) {
	case "wss":
		return "https"
	case "ws":
		return "http"
	default:
		return strings.ToLower(scheme)
	}
}

func hostHeaderValue(headers []reqres.HeaderPair, fallback string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Key, "Host") {
			return h.Value
		}
	}
	return fallback
}

func rejectDisallowedPseudoHeaders(headers []reqres.HeaderPair) error {
	for _, h := range headers {
		if strings.HasPrefix(h.Key, ":") && !allowedPseudoHeaders[h.Key] {
			return fmt.Errorf("validation: cannot override pseudo-header %q", h.Key)
		}
	}
	return nil
}

// reencodeForContentEncoding re-encodes body to match the Content-Encoding
// header already present in headers (§4.4 step 3: "body updates re-encode
// to match outgoing Content-Encoding"). Only gzip is handled; identity and
// unrecognized encodings pass the body through unchanged.
func reencodeForContentEncoding(body []byte, headers []reqres.HeaderPair) ([]byte, error) {
	enc := ""
	for _, h := range headers {
		if strings.EqualFold(h.Key, "Content-Encoding") {
			enc = h.Value
		}
	}
	if !strings.EqualFold(enc, "gzip") {
		return body, nil
	}
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(body); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
