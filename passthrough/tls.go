package passthrough

import (
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"

	"mockproxy/config"
)

// TLSPolicy resolves the effective TLS settings for one upstream connection
// (§4.4 step 4).
type TLSPolicy struct {
	def *config.PassThroughDef
}

func NewTLSPolicy(def *config.PassThroughDef) *TLSPolicy {
	return &TLSPolicy{def: def}
}

// IsStrict reports whether certificate verification is enforced for
// host:port. Strict = NOT (hostname in ignoreHostHttpsErrors OR host:port in
// same OR the list is the literal boolean true).
func (p *TLSPolicy) IsStrict(host string, port int) bool {
	if p.def == nil || p.def.IgnoreHostHTTPSErrors == nil {
		return true
	}
	switch v := p.def.IgnoreHostHTTPSErrors.(type) {
	case bool:
		return !v
	case []interface{}:
		hostPort := host + ":" + strconv.Itoa(port)
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				continue
			}
			if s == host || s == hostPort {
				return false
			}
		}
		return true
	case []string:
		hostPort := host + ":" + strconv.Itoa(port)
		for _, s := range v {
			if s == host || s == hostPort {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// ClientCertificateFor selects a client certificate by "host:port" then
// "host" lookup (§4.4 step 4).
func (p *TLSPolicy) ClientCertificateFor(host string, port int) (tls.Certificate, bool, error) {
	if p.def == nil || len(p.def.ClientCertificates) == 0 {
		return tls.Certificate{}, false, nil
	}
	hostPort := host + ":" + strconv.Itoa(port)
	pair, ok := p.def.ClientCertificates[hostPort]
	if !ok {
		pair, ok = p.def.ClientCertificates[host]
	}
	if !ok {
		return tls.Certificate{}, false, nil
	}
	cert, err := tls.X509KeyPair([]byte(pair.Cert), []byte(pair.Key))
	if err != nil {
		return tls.Certificate{}, false, fmt.Errorf("validation: client certificate for %s: %w", host, err)
	}
	return cert, true, nil
}

// Config builds the *tls.Config for one upstream connection, applying the
// strict/non-strict min-version split and extra trusted roots (§4.4 step 4).
func (p *TLSPolicy) Config(host string, port int, roots *tls.Config) (*tls.Config, error) {
	strict := p.IsStrict(host, port)

	cfg := &tls.Config{
		ServerName: host,
	}
	if roots != nil {
		cfg.RootCAs = roots.RootCAs
	}
	if strict {
		cfg.MinVersion = tls.VersionTLS12
		cfg.InsecureSkipVerify = false
	} else {
		cfg.MinVersion = tls.VersionTLS10
		cfg.InsecureSkipVerify = true
	}

	cert, ok, err := p.ClientCertificateFor(host, port)
	if err != nil {
		return nil, err
	}
	if ok {
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

// alertNumber extracts the TLS alert number from a standard-library TLS
// error string, e.g. "remote error: tls: bad certificate" → best-effort
// classification used for the passthrough-tls-error:ssl-alert-<n> tag
// (§4.4 step 11, §7).
func alertNumber(err error) (int, bool) {
	msg := err.Error()
	if !strings.Contains(msg, "tls:") {
		return 0, false
	}
	switch {
	case strings.Contains(msg, "bad certificate"):
		return 42, true
	case strings.Contains(msg, "certificate expired"):
		return 45, true
	case strings.Contains(msg, "unknown certificate authority") || strings.Contains(msg, "unknown certificate"):
		return 48, true
	case strings.Contains(msg, "handshake failure"):
		return 40, true
	case strings.Contains(msg, "protocol version"):
		return 70, true
	default:
		return 0, false
	}
}
