package steps

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"mockproxy/reqres"
)

var templateRe = regexp.MustCompile(`{{\s*([a-zA-Z0-9_.-]+)([^}]*)}}`)

// ProcessTemplate walks a JSON-able value (string, map, slice, or scalar)
// substituting `{{...}}` placeholders: gofakeit fakers (`{{name}}`,
// `{{uuid}}`, `{{email}}`, ...) and `{{request.*}}` references into the
// matched request (§S1 of the expanded design notes).
func ProcessTemplate(v interface{}, req *reqres.Fingerprint) (interface{}, error) {
	switch t := v.(type) {
	case string:
		return templateRe.ReplaceAllStringFunc(t, func(match string) string {
			return resolveTemplateMatch(match, req)
		}), nil

	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			processed, err := ProcessTemplate(val, req)
			if err != nil {
				return nil, err
			}
			out[k] = processed
		}
		return out, nil

	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			processed, err := ProcessTemplate(val, req)
			if err != nil {
				return nil, err
			}
			out[i] = processed
		}
		return out, nil

	default:
		return t, nil
	}
}

func resolveTemplateMatch(match string, req *reqres.Fingerprint) string {
	parts := templateRe.FindStringSubmatch(match)
	if len(parts) < 2 {
		return match
	}
	key := parts[1]
	args := strings.TrimSpace(parts[2])

	if strings.HasPrefix(key, "request.") {
		if req == nil {
			return match
		}
		if val, ok := resolveRequestValue(key, req); ok {
			return val
		}
		return match
	}

	switch key {
	case "name":
		return gofakeit.Name()
	case "uuid":
		return gofakeit.UUID()
	case "email":
		return gofakeit.Email()
	case "bool":
		return fmt.Sprintf("%v", gofakeit.Bool())
	case "date":
		return gofakeit.Date().Format("2006-01-02")
	case "dateFuture":
		days := 1
		fmt.Sscanf(args, "days=%d", &days)
		return gofakeit.DateRange(time.Now(), time.Now().AddDate(0, 0, days)).Format("2006-01-02")
	case "dateNow":
		return time.Now().Format("2006-01-02")
	case "number":
		min, max := 1, 1000
		fmt.Sscanf(args, "min=%d max=%d", &min, &max)
		return fmt.Sprintf("%d", gofakeit.Number(min, max))
	default:
		return match
	}
}

func resolveRequestValue(key string, req *reqres.Fingerprint) (string, bool) {
	switch {
	case key == "request.method":
		return req.Method, true
	case key == "request.path":
		if req.URL != nil {
			return req.URL.Path, true
		}
	case key == "request.url":
		if req.URL != nil {
			return req.URL.String(), true
		}
	case strings.HasPrefix(key, "request.header."):
		name := strings.TrimPrefix(key, "request.header.")
		if v, ok := req.Header(name); ok {
			return v, true
		}
	}
	return "", false
}
