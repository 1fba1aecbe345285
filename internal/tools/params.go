package tools

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

// Params are the decoded arguments of one tool call.
type Params map[string]any

// DecodeParams parses a tool_use input object. Empty input is an empty map.
func DecodeParams(raw json.RawMessage) (Params, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return Params{}, nil
	}
	var p Params
	if err := json.Unmarshal([]byte(trimmed), &p); err != nil {
		return nil, errors.Wrap(err, "tool input must be a JSON object")
	}
	if p == nil {
		p = Params{}
	}
	return p, nil
}

// String returns the trimmed string value of name, or "".
func (p Params) String(name string) string {
	s, _ := p[name].(string)
	return strings.TrimSpace(s)
}

// Strings returns the non-empty strings of an array parameter. A bare string
// is treated as a one-element list.
func (p Params) Strings(name string) []string {
	var out []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	switch v := p[name].(type) {
	case string:
		add(v)
	case []string:
		for _, s := range v {
			add(s)
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	}
	return out
}

func present(v any) bool {
	switch vv := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(vv) != ""
	case []any:
		return len(vv) > 0
	case []string:
		return len(vv) > 0
	}
	return true
}

// validate checks required parameters and declared kinds.
func (s Schema) validate(p Params) error {
	var missing []string
	for _, param := range s.Params {
		v, ok := p[param.Name]
		if !ok || !present(v) {
			if param.Required {
				missing = append(missing, param.Name)
			}
			continue
		}
		if param.Kind != nil && !param.Kind.accepts(v) {
			return errors.Newf("parameter %q has an invalid value", param.Name)
		}
	}
	if len(missing) > 0 {
		return errors.Newf("missing required parameters: %s", strings.Join(missing, ", "))
	}
	return nil
}
