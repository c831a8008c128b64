// Package reqres holds the read-only request/response views shared across
// the rule matcher, step executor, pass-through and channel packages (§3 of
// the design notes: "Request fingerprint", "CompletedBody").
package reqres

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

// HeaderPair preserves the raw, ordered header pairs as received on the wire
// (§3: "raw ordered header pairs").
type HeaderPair struct {
	Key   string
	Value string
}

// Fingerprint is the read-only view of an in-flight request offered to the
// matcher set and the step pipeline.
type Fingerprint struct {
	Method   string
	URL      *url.URL
	Protocol string // http | https | ws | wss
	IsHTTP2  bool
	RemoteIP string

	RawHeaders []HeaderPair
	Cookies    map[string]string

	Body *Body

	// Tags is mutated by the engine to annotate observed errors, e.g.
	// "passthrough-error:ECONNRESET" (§3, §7).
	Tags []string
}

// AddTag appends an error/observability tag, matching §3's contract that
// tags are append-only annotations on the fingerprint.
func (f *Fingerprint) AddTag(tag string) {
	f.Tags = append(f.Tags, tag)
}

// Header returns the first value for a case-insensitive header name.
func (f *Fingerprint) Header(name string) (string, bool) {
	canon := textproto.CanonicalMIMEHeaderKey(name)
	for _, h := range f.RawHeaders {
		if textproto.CanonicalMIMEHeaderKey(h.Key) == canon {
			return h.Value, true
		}
	}
	return "", false
}

// HeaderValues returns every value for a case-insensitive header name.
func (f *Fingerprint) HeaderValues(name string) []string {
	canon := textproto.CanonicalMIMEHeaderKey(name)
	var out []string
	for _, h := range f.RawHeaders {
		if textproto.CanonicalMIMEHeaderKey(h.Key) == canon {
			out = append(out, h.Value)
		}
	}
	return out
}

// Body is a lazily-decoded capability object (§9 design notes:
// "Bodies as capability objects") exposing bytes/text/JSON/form/multipart,
// each decode memoized after first use.
type Body struct {
	raw         []byte
	contentType string

	decodedJSON    interface{}
	jsonDecoded    bool
	jsonErr        error
	decodedForm    url.Values
	formDecoded    bool
	formErr        error
	decodedParts   []*MultipartPart
	partsDecoded   bool
	partsErr       error
	decodeErr      error // set if the body failed to decode at all (gzip etc.)
}

// NewBody wraps raw bytes already decoded from any transport encoding.
func NewBody(raw []byte, contentType string) *Body {
	return &Body{raw: raw, contentType: contentType}
}

// NewUndecodableBody represents a body whose transport encoding could not be
// decoded; accessors surface decodeErr rather than silently returning
// garbage (§4.6: "A decoding error causes asText()/asJson() ... to throw").
func NewUndecodableBody(decodeErr error) *Body {
	return &Body{decodeErr: decodeErr}
}

func (b *Body) AsBuffer() ([]byte, error) {
	if b.decodeErr != nil {
		return nil, b.decodeErr
	}
	return b.raw, nil
}

func (b *Body) AsText() (string, error) {
	if b.decodeErr != nil {
		return "", b.decodeErr
	}
	return string(b.raw), nil
}

func (b *Body) AsJSON() (interface{}, error) {
	if b.decodeErr != nil {
		return nil, b.decodeErr
	}
	if b.jsonDecoded {
		return b.decodedJSON, b.jsonErr
	}
	b.jsonDecoded = true
	dec := json.NewDecoder(bytes.NewReader(b.raw))
	dec.UseNumber()
	b.jsonErr = dec.Decode(&b.decodedJSON)
	return b.decodedJSON, b.jsonErr
}

func (b *Body) AsFormData() (url.Values, error) {
	if b.decodeErr != nil {
		return nil, b.decodeErr
	}
	if b.formDecoded {
		return b.decodedForm, b.formErr
	}
	b.formDecoded = true
	b.decodedForm, b.formErr = url.ParseQuery(string(b.raw))
	return b.decodedForm, b.formErr
}

// MultipartPart is one decoded part of a multipart/form-data body, with its
// content retained (§4.1 MultipartForm conditions can match on `content`, not
// just `name`/`filename`).
type MultipartPart struct {
	Name     string
	Filename string
	Content  []byte
}

func (b *Body) AsMultipart(boundary string) ([]*MultipartPart, error) {
	if b.decodeErr != nil {
		return nil, b.decodeErr
	}
	if b.partsDecoded {
		return b.decodedParts, b.partsErr
	}
	b.partsDecoded = true
	mr := multipart.NewReader(bytes.NewReader(b.raw), boundary)
	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}
		data := &bytes.Buffer{}
		if _, err := data.ReadFrom(part); err != nil {
			b.partsErr = err
			break
		}
		b.decodedParts = append(b.decodedParts, &MultipartPart{
			Name:     part.FormName(),
			Filename: part.FileName(),
			Content:  data.Bytes(),
		})
	}
	return b.decodedParts, b.partsErr
}

// MultipartBoundary extracts the boundary parameter from a Content-Type
// header value, if present.
func MultipartBoundary(contentType string) (string, bool) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	b, ok := params["boundary"]
	return b, ok
}

// ResponseFingerprint is the read-only view of an outbound response.
type ResponseFingerprint struct {
	StatusCode int
	RawHeaders []HeaderPair
	Body       *Body
	Trailers   map[string]string
}

// CompletedRequest is the fully-observed record of one handled request
// (§3, §8 P5): headers, body, and timing, resolved regardless of whether
// the step pipeline succeeded, failed, or aborted.
type CompletedRequest struct {
	Method     string
	URL        string
	RawHeaders []HeaderPair
	Body       *Body
	StartedAt  time.Time
	FinishedAt time.Time

	ResponseStatus int
	Aborted        bool
}

// Duration reports how long the request took end to end.
func (c *CompletedRequest) Duration() time.Duration {
	if c.FinishedAt.IsZero() {
		return 0
	}
	return c.FinishedAt.Sub(c.StartedAt)
}

// String renders a short description, used in logs and event payloads.
func (c *CompletedRequest) String() string {
	return fmt.Sprintf("%s %s -> %d (%s)", c.Method, c.URL, c.ResponseStatus, c.Duration())
}

// ParseCookies parses an RFC 6265 Cookie header into k=v pairs, trimmed,
// matching §4.1's Cookie matcher contract.
func ParseCookies(header string) map[string]string {
	out := map[string]string{}
	for _, tok := range strings.Split(header, ";") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		kv := strings.SplitN(tok, "=", 2)
		if len(kv) != 2 {
			continue
		}
		out[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return out
}
