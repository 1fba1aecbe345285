package tools

import (
	"sort"

	"assistant/internal/chat"
)

// Kind is the closed set of parameter kinds a tool can declare.
type Kind interface {
	schema(description string) map[string]any
	accepts(v any) bool
}

// StringKind is a free-form string parameter.
type StringKind struct{}

// StringArrayKind is a list of strings.
type StringArrayKind struct{}

// EnumKind is a string restricted to Values.
type EnumKind struct {
	Values []string
}

func (StringKind) schema(desc string) map[string]any {
	return withDescription(map[string]any{"type": "string"}, desc)
}

func (StringKind) accepts(v any) bool {
	_, ok := v.(string)
	return ok
}

func (StringArrayKind) schema(desc string) map[string]any {
	return withDescription(map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}, desc)
}

func (StringArrayKind) accepts(v any) bool {
	switch vv := v.(type) {
	case string:
		return true
	case []string:
		return true
	case []any:
		for _, item := range vv {
			if _, ok := item.(string); !ok {
				return false
			}
		}
		return true
	}
	return false
}

func (k EnumKind) schema(desc string) map[string]any {
	return withDescription(map[string]any{
		"type": "string",
		"enum": append([]string(nil), k.Values...),
	}, desc)
}

func (k EnumKind) accepts(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	for _, allowed := range k.Values {
		if s == allowed {
			return true
		}
	}
	return false
}

func withDescription(m map[string]any, desc string) map[string]any {
	if desc != "" {
		m["description"] = desc
	}
	return m
}

// Param declares one named tool parameter.
type Param struct {
	Name        string
	Description string
	Required    bool
	Kind        Kind
}

// Schema is the declarative description of one tool.
type Schema struct {
	Name        string
	Description string
	Params      []Param
}

// ToolSchema renders s as the JSON-Schema object sent to the model.
func (s Schema) ToolSchema() chat.ToolSchema {
	props := make(map[string]any, len(s.Params))
	required := []string{}
	for _, p := range s.Params {
		kind := p.Kind
		if kind == nil {
			kind = StringKind{}
		}
		props[p.Name] = kind.schema(p.Description)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	sort.Strings(required)
	return chat.ToolSchema{
		Name:        s.Name,
		Description: s.Description,
		InputSchema: map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}
