package playbook

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// StatusSuccess is the status value a playbook reports on success.
const StatusSuccess = "success"

// Result is the parsed result document of one dispatch. Beyond the status
// key its contents are playbook-specific; typed accessors let call sites
// assert the keys they depend on.
type Result map[string]any

// parseResult parses raw YAML output into a Result. The document must be a
// mapping carrying at least a status key.
func parseResult(playbookName string, raw []byte) (Result, error) {
	result := Result{}
	if err := yaml.Unmarshal(raw, &result); err != nil {
		return nil, &OutputParseError{
			Playbook: playbookName,
			Snippet:  snippet(raw),
			Err:      err,
		}
	}
	if _, ok := result["status"]; !ok {
		return nil, &OutputParseError{
			Playbook: playbookName,
			Snippet:  snippet(raw),
			Err:      fmt.Errorf("result document has no status key"),
		}
	}
	return result, nil
}

func snippet(raw []byte) string {
	const max = 512
	if len(raw) > max {
		return string(raw[:max]) + "..."
	}
	return string(raw)
}

// Status returns the status value of the result.
func (r Result) Status() string {
	s, _ := r["status"].(string)
	return s
}

// OK reports whether the playbook declared success.
func (r Result) OK() bool {
	return r.Status() == StatusSuccess
}

// String returns the string value at key, if present.
func (r Result) String(key string) (string, bool) {
	s, ok := r[key].(string)
	return s, ok
}

// Bool returns the boolean value at key, if present.
func (r Result) Bool(key string) (bool, bool) {
	b, ok := r[key].(bool)
	return b, ok
}

// Int returns the integer value at key, if present.
func (r Result) Int(key string) (int, bool) {
	n, ok := r[key].(int)
	return n, ok
}

// Strings returns the value at key as a string slice. YAML sequences
// decode as []any, so each element is converted individually.
func (r Result) Strings(key string) ([]string, bool) {
	seq, ok := r[key].([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(seq))
	for _, v := range seq {
		out = append(out, fmt.Sprintf("%v", v))
	}
	return out, true
}
