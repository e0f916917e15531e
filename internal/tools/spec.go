package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// ParamType is the type tag of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeEnum    ParamType = "enum"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrToolNotFound = errors.New("tool not found")
)

// ValidationError reports which parameter of which tool was rejected.
type ValidationError struct {
	Tool   string
	Param  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("%s: %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("%s: parameter %q: %s", e.Tool, e.Param, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Param declares one parameter of a tool.
type Param struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Required    bool      `json:"required"`
	Default     any       `json:"default,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Pattern     string    `json:"pattern,omitempty"` // strings only
	Description string    `json:"description,omitempty"`
}

// ToolSpec is the catalog entry of a tool.
type ToolSpec struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"parameters"`
}

// Params holds concrete parameter values keyed by name.
type Params map[string]any

func (p Params) String(name string) string {
	s, _ := p[name].(string)
	return s
}

func (p Params) Int(name string) int {
	n, _ := p[name].(int)
	return n
}

func (p Params) Float(name string) float64 {
	f, _ := p[name].(float64)
	return f
}

func (p Params) Bool(name string) bool {
	b, _ := p[name].(bool)
	return b
}

// Param returns the named parameter declaration.
func (s ToolSpec) Param(name string) (Param, bool) {
	for _, p := range s.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Defaults returns the declared default of every parameter that has one.
func (s ToolSpec) Defaults() Params {
	out := Params{}
	for _, p := range s.Params {
		if p.Default != nil {
			out[p.Name] = p.Default
		}
	}
	return out
}

// check verifies the declaration itself; registration refuses bad specs.
func (s ToolSpec) check() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("tool spec without a name")
	}
	seen := make(map[string]bool, len(s.Params))
	for _, p := range s.Params {
		if p.Name == "" {
			return fmt.Errorf("%s: parameter without a name", s.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("%s: duplicate parameter %q", s.Name, p.Name)
		}
		seen[p.Name] = true

		switch p.Type {
		case TypeString, TypeInteger, TypeNumber, TypeBoolean:
		case TypeEnum:
			if len(p.Enum) == 0 {
				return fmt.Errorf("%s: enum parameter %q declares no values", s.Name, p.Name)
			}
		default:
			return fmt.Errorf("%s: parameter %q has unknown type %q", s.Name, p.Name, p.Type)
		}
		if p.Pattern != "" {
			if p.Type != TypeString {
				return fmt.Errorf("%s: pattern on non-string parameter %q", s.Name, p.Name)
			}
			if _, err := regexp.Compile(p.Pattern); err != nil {
				return fmt.Errorf("%s: parameter %q: bad pattern: %w", s.Name, p.Name, err)
			}
		}
		if p.Required && p.Default != nil {
			return fmt.Errorf("%s: required parameter %q has a default", s.Name, p.Name)
		}
		if p.Default != nil {
			if _, reason := p.coerce(p.Default); reason != "" {
				return fmt.Errorf("%s: default of %q: %s", s.Name, p.Name, reason)
			}
		}
	}
	return nil
}

// Validate checks params against the ToolSpec and returns the concrete values
// with defaults applied. Integers come back as int, numbers as float64.
func (s ToolSpec) Validate(params map[string]any) (Params, error) {
	unknown := make([]string, 0)
	for k := range params {
		if _, ok := s.Param(k); !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &ValidationError{Tool: s.Name, Param: unknown[0], Reason: "unknown parameter"}
	}

	out := make(Params, len(s.Params))
	for _, p := range s.Params {
		v, ok := params[p.Name]
		if !ok || v == nil {
			if p.Required {
				return nil, &ValidationError{Tool: s.Name, Param: p.Name, Reason: "missing required parameter"}
			}
			if p.Default != nil {
				norm, _ := p.coerce(p.Default)
				out[p.Name] = norm
			}
			continue
		}
		norm, reason := p.coerce(v)
		if reason != "" {
			return nil, &ValidationError{Tool: s.Name, Param: p.Name, Reason: reason}
		}
		out[p.Name] = norm
	}
	return out, nil
}

func (p Param) coerce(v any) (any, string) {
	switch p.Type {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Sprintf("expected string, got %T", v)
		}
		if p.Pattern != "" && !regexp.MustCompile(p.Pattern).MatchString(s) {
			return nil, fmt.Sprintf("value %q does not match %s", s, p.Pattern)
		}
		return s, ""
	case TypeInteger:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Sprintf("expected integer, got %T", v)
		}
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return nil, fmt.Sprintf("expected integer, got %v", v)
		}
		if f < math.MinInt || f >= math.MaxInt {
			return nil, fmt.Sprintf("integer %v out of range", v)
		}
		return int(f), ""
	case TypeNumber:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Sprintf("expected number, got %T", v)
		}
		return f, ""
	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Sprintf("expected boolean, got %T", v)
		}
		return b, ""
	case TypeEnum:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Sprintf("expected one of %s, got %T", strings.Join(p.Enum, "|"), v)
		}
		for _, e := range p.Enum {
			if e == s {
				return s, ""
			}
		}
		return nil, fmt.Sprintf("value %q not in %s", s, strings.Join(p.Enum, "|"))
	}
	return nil, fmt.Sprintf("unknown type %q", p.Type)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
