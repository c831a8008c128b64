package passthrough

import (
	"fmt"
	"strconv"
	"strings"

	"mockproxy/config"
)

// ApplyJSONPatch applies a sequence of RFC 6902 operations to a decoded JSON
// value (§4.4 step 3: "JSON-patch operations are validated upfront"). No
// pack library covers RFC 6902 (searched for evanphx/json-patch and
// equivalents — none retrieved), and the algorithm is small and fully
// specified by the RFC, so this is hand-rolled on encoding/json's decoded
// interface{} tree rather than bytes.
func ApplyJSONPatch(doc interface{}, ops []config.JSONPatchOp) (interface{}, error) {
	for i, op := range ops {
		if err := validatePatchOp(op); err != nil {
			return nil, fmt.Errorf("validation: patch op %d: %w", i, err)
		}
		var err error
		doc, err = applyOne(doc, op)
		if err != nil {
			return nil, fmt.Errorf("patch op %d (%s %s): %w", i, op.Op, op.Path, err)
		}
	}
	return doc, nil
}

func validatePatchOp(op config.JSONPatchOp) error {
	switch op.Op {
	case "add", "remove", "replace", "move", "copy", "test":
	default:
		return fmt.Errorf("unknown op %q", op.Op)
	}
	if op.Path == "" {
		return fmt.Errorf("missing path")
	}
	if (op.Op == "move" || op.Op == "copy") && op.From == "" {
		return fmt.Errorf("%s requires from", op.Op)
	}
	return nil
}

func applyOne(doc interface{}, op config.JSONPatchOp) (interface{}, error) {
	switch op.Op {
	case "add":
		return setPointer(doc, op.Path, op.Value, true)
	case "replace":
		return setPointer(doc, op.Path, op.Value, false)
	case "remove":
		return removePointer(doc, op.Path)
	case "test":
		got, err := getPointer(doc, op.Path)
		if err != nil {
			return nil, err
		}
		if !deepEqual(got, op.Value) {
			return nil, fmt.Errorf("test failed: value mismatch at %s", op.Path)
		}
		return doc, nil
	case "move":
		val, err := getPointer(doc, op.From)
		if err != nil {
			return nil, err
		}
		doc, err = removePointer(doc, op.From)
		if err != nil {
			return nil, err
		}
		return setPointer(doc, op.Path, val, true)
	case "copy":
		val, err := getPointer(doc, op.From)
		if err != nil {
			return nil, err
		}
		return setPointer(doc, op.Path, val, true)
	}
	return doc, nil
}

func splitPointer(path string) []string {
	if path == "" || path == "/" {
		return nil
	}
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		p = strings.ReplaceAll(p, "~0", "~")
		parts[i] = p
	}
	return parts
}

func getPointer(doc interface{}, path string) (interface{}, error) {
	parts := splitPointer(path)
	cur := doc
	for _, p := range parts {
		switch t := cur.(type) {
		case map[string]interface{}:
			v, ok := t[p]
			if !ok {
				return nil, fmt.Errorf("no such key %q", p)
			}
			cur = v
		case []interface{}:
			idx, err := strconv.Atoi(p)
			if err != nil || idx < 0 || idx >= len(t) {
				return nil, fmt.Errorf("bad array index %q", p)
			}
			cur = t[idx]
		default:
			return nil, fmt.Errorf("cannot descend into scalar at %q", p)
		}
	}
	return cur, nil
}

func setPointer(doc interface{}, path string, value interface{}, insert bool) (interface{}, error) {
	parts := splitPointer(path)
	if len(parts) == 0 {
		return value, nil
	}
	return setRecursive(doc, parts, value, insert)
}

func setRecursive(node interface{}, parts []string, value interface{}, insert bool) (interface{}, error) {
	key := parts[0]
	last := len(parts) == 1

	switch t := node.(type) {
	case map[string]interface{}:
		if last {
			t[key] = value
			return t, nil
		}
		child, ok := t[key]
		if !ok {
			return nil, fmt.Errorf("no such key %q", key)
		}
		updated, err := setRecursive(child, parts[1:], value, insert)
		if err != nil {
			return nil, err
		}
		t[key] = updated
		return t, nil

	case []interface{}:
		if key == "-" {
			if !last {
				return nil, fmt.Errorf("cannot descend through array append marker")
			}
			return append(t, value), nil
		}
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx > len(t) {
			return nil, fmt.Errorf("bad array index %q", key)
		}
		if last {
			if insert {
				t = append(t, nil)
				copy(t[idx+1:], t[idx:])
				t[idx] = value
				return t, nil
			}
			if idx == len(t) {
				return nil, fmt.Errorf("index %d out of range for replace", idx)
			}
			t[idx] = value
			return t, nil
		}
		if idx >= len(t) {
			return nil, fmt.Errorf("index %d out of range", idx)
		}
		updated, err := setRecursive(t[idx], parts[1:], value, insert)
		if err != nil {
			return nil, err
		}
		t[idx] = updated
		return t, nil

	default:
		return nil, fmt.Errorf("cannot set into scalar")
	}
}

func removePointer(doc interface{}, path string) (interface{}, error) {
	parts := splitPointer(path)
	if len(parts) == 0 {
		return nil, fmt.Errorf("cannot remove document root")
	}
	return removeRecursive(doc, parts)
}

func removeRecursive(node interface{}, parts []string) (interface{}, error) {
	key := parts[0]
	last := len(parts) == 1

	switch t := node.(type) {
	case map[string]interface{}:
		if last {
			if _, ok := t[key]; !ok {
				return nil, fmt.Errorf("no such key %q", key)
			}
			delete(t, key)
			return t, nil
		}
		child, ok := t[key]
		if !ok {
			return nil, fmt.Errorf("no such key %q", key)
		}
		updated, err := removeRecursive(child, parts[1:])
		if err != nil {
			return nil, err
		}
		t[key] = updated
		return t, nil

	case []interface{}:
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= len(t) {
			return nil, fmt.Errorf("bad array index %q", key)
		}
		if last {
			return append(t[:idx], t[idx+1:]...), nil
		}
		updated, err := removeRecursive(t[idx], parts[1:])
		if err != nil {
			return nil, err
		}
		t[idx] = updated
		return t, nil

	default:
		return nil, fmt.Errorf("cannot remove from scalar")
	}
}

func deepEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			if !deepEqual(v, bv[k]) {
				return false
			}
		}
		return true
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !deepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
