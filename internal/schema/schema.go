// Package schema validates decoded model payloads against per-stage
// contracts. Validation never fails: broken payloads are logged and repaired
// into a default-filled mapping that always carries every contract field.
package schema

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// Kind is the declared shape of a contract field.
type Kind int

const (
	KindString       Kind = iota // string
	KindOptString                // string or null
	KindEnum                     // one of Field.Enum, stored lower-case
	KindStrings                  // list of strings
	KindOptStrings               // list of string-or-null, order preserved
	KindStringMap                // string -> string
	KindOptStringMap             // string -> string-or-null
	KindMap                      // free-form object
	KindObjects                  // list of objects validated against Field.Item
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "str"
	case KindOptString:
		return "str?"
	case KindEnum:
		return "enum"
	case KindStrings:
		return "list[str]"
	case KindOptStrings:
		return "list[str?]"
	case KindStringMap:
		return "map[str]str"
	case KindOptStringMap:
		return "map[str]str?"
	case KindMap:
		return "map"
	case KindObjects:
		return "list[object]"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Field describes one key of a stage payload.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
	// Default replaces the zero value of Kind for optional fields. Only
	// immutable values (strings, nil) belong here.
	Default any
	Enum    []string
	Item    *Contract
	// EmptyAnswers marks a field whose explicit empty value is a valid
	// answer, such as "nothing new" from an expansion iteration.
	EmptyAnswers bool
}

// Contract is the ordered field list one stage must return.
type Contract struct {
	Stage  Stage
	Fields []Field
}

// Defaults builds a fresh default-filled payload for the contract.
func (c Contract) Defaults() Payload {
	out := make(Payload, len(c.Fields))
	for _, f := range c.Fields {
		out[f.Name] = f.defaultValue()
	}
	return out
}

// Required lists the names of the required fields in declaration order.
func (c Contract) Required() []string {
	var names []string
	for _, f := range c.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// NonDefault reports whether at least one field of p differs from the
// contract default, i.e. the model contributed something.
func (c Contract) NonDefault(p Payload) bool {
	for _, f := range c.Fields {
		v, ok := p[f.Name]
		if !ok {
			continue
		}
		if !reflect.DeepEqual(v, f.defaultValue()) {
			return true
		}
	}
	return false
}

// Answered reports whether the model contributed to p, which was validated
// from raw. Beyond NonDefault, a field marked EmptyAnswers counts when raw
// carries it with the declared kind, even if it is empty.
func (c Contract) Answered(raw map[string]any, p Payload) bool {
	if c.NonDefault(p) {
		return true
	}
	for _, f := range c.Fields {
		if !f.EmptyAnswers {
			continue
		}
		v, present := raw[f.Name]
		if !present || v == nil {
			continue
		}
		if _, _, ok := f.coerce(v); ok {
			return true
		}
	}
	return false
}

func (f Field) defaultValue() any {
	if !f.Required && f.Default != nil {
		return f.Default
	}
	switch f.Kind {
	case KindString, KindEnum:
		return ""
	case KindOptString:
		return nil
	case KindStrings:
		return []string{}
	case KindOptStrings:
		return []any{}
	case KindStringMap:
		return map[string]string{}
	case KindOptStringMap, KindMap:
		return map[string]any{}
	case KindObjects:
		return []map[string]any{}
	default:
		return nil
	}
}

// Validate checks payload against c and returns a mapping holding exactly the
// contract's fields. Correctly typed values are kept; missing or mistyped
// fields fall back to their defaults and are reported in one warning.
func Validate(payload map[string]any, c Contract, logger *zap.Logger) Payload {
	if logger == nil {
		logger = zap.NewNop()
	}

	out, problems := validate(payload, c)
	if len(problems) > 0 {
		logger.Warn("payload failed schema validation",
			zap.String("stage", string(c.Stage)),
			zap.Strings("fields", problems),
		)
	}
	return out
}

func validate(payload map[string]any, c Contract) (Payload, []string) {
	out := c.Defaults()
	var problems []string

	for _, f := range c.Fields {
		v, present := payload[f.Name]
		if !present || v == nil {
			if f.Required {
				problems = append(problems, f.Name+": missing")
			}
			continue
		}

		coerced, nested, ok := f.coerce(v)
		for _, p := range nested {
			problems = append(problems, f.Name+"."+p)
		}
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: expected %s, got %T", f.Name, f.Kind, v))
			continue
		}
		out[f.Name] = coerced
	}
	return out, problems
}

func (f Field) coerce(v any) (any, []string, bool) {
	switch f.Kind {
	case KindString, KindOptString:
		s, ok := v.(string)
		return s, nil, ok

	case KindEnum:
		s, ok := v.(string)
		if !ok {
			return nil, nil, false
		}
		s = strings.ToLower(strings.TrimSpace(s))
		if !slices.Contains(f.Enum, s) {
			return nil, nil, false
		}
		return s, nil, true

	case KindStrings:
		items, ok := v.([]any)
		if !ok {
			return nil, nil, false
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, nil, false
			}
			out = append(out, s)
		}
		return out, nil, true

	case KindOptStrings:
		items, ok := v.([]any)
		if !ok {
			return nil, nil, false
		}
		out := make([]any, 0, len(items))
		for _, item := range items {
			switch s := item.(type) {
			case nil, string:
				out = append(out, s)
			default:
				return nil, nil, false
			}
		}
		return out, nil, true

	case KindStringMap:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, nil, false
		}
		out := make(map[string]string, len(m))
		for k, item := range m {
			s, ok := item.(string)
			if !ok {
				return nil, nil, false
			}
			out[k] = s
		}
		return out, nil, true

	case KindOptStringMap:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, nil, false
		}
		out := make(map[string]any, len(m))
		for k, item := range m {
			switch s := item.(type) {
			case nil, string:
				out[k] = s
			default:
				return nil, nil, false
			}
		}
		return out, nil, true

	case KindMap:
		m, ok := v.(map[string]any)
		return m, nil, ok

	case KindObjects:
		items, ok := v.([]any)
		if !ok || f.Item == nil {
			return nil, nil, false
		}
		out := make([]map[string]any, 0, len(items))
		var nested []string
		for i, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, nil, false
			}
			obj, problems := validate(m, *f.Item)
			for _, p := range problems {
				nested = append(nested, fmt.Sprintf("%d.%s", i, p))
			}
			out = append(out, obj)
		}
		return out, nested, true
	}
	return nil, nil, false
}
