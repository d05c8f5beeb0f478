// Package registry holds the catalog of tools the Keeper can invoke. Specs
// are registered once at startup and read-only thereafter; the dispatcher
// validates every tool call against its spec before the handler runs.
package registry

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ParamType is the JSON type of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	// TypeObject is a free-form JSON object. No nested schema is enforced;
	// handlers receive the map as-is.
	TypeObject ParamType = "object"
	// TypeStringArray is a JSON array of strings.
	TypeStringArray ParamType = "string_array"
)

// Param describes one tool parameter and its constraints.
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	// Min and Max bound numeric parameters (inclusive).
	Min *float64
	Max *float64
	// Enum restricts string parameters to a fixed set of values.
	Enum []string
}

// Handler executes a validated tool call. Arguments have already passed
// schema validation when a handler runs.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Spec describes a registered tool. Description is consumed verbatim by the
// model's instructions, so write it for the model, not for operators.
type Spec struct {
	Name        string
	Description string
	Params      []Param
	// External marks handlers that perform network I/O. The dispatcher gives
	// them a per-call timeout and retries transient failures; in-process
	// handlers run synchronously with no retry.
	External bool
	Handler  Handler
}

// Registry is the read-mostly tool catalog.
type Registry struct {
	specs  []*Spec
	byName map[string]*Spec
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{byName: make(map[string]*Spec)}
}

// Register adds a tool spec. Names must be unique and handlers non-nil.
func (r *Registry) Register(spec Spec) error {
	if spec.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if spec.Handler == nil {
		return fmt.Errorf("tool %q: handler is required", spec.Name)
	}
	if _, exists := r.byName[spec.Name]; exists {
		return fmt.Errorf("tool %q: already registered", spec.Name)
	}
	s := &spec
	r.specs = append(r.specs, s)
	r.byName[spec.Name] = s
	return nil
}

// Get looks up a spec by tool name.
func (r *Registry) Get(name string) (*Spec, bool) {
	spec, ok := r.byName[name]
	return spec, ok
}

// Specs returns all registered specs in registration order.
func (r *Registry) Specs() []Spec {
	out := make([]Spec, len(r.specs))
	for i, s := range r.specs {
		out[i] = *s
	}
	return out
}

// FieldError describes one schema violation for a named argument.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Validate checks the arguments against the spec's schema and returns every
// violation, not just the first, so the model can fix them all in one retry.
func (s *Spec) Validate(args map[string]any) []FieldError {
	var errs []FieldError

	byName := make(map[string]Param, len(s.Params))
	for _, p := range s.Params {
		byName[p.Name] = p
		if _, present := args[p.Name]; p.Required && !present {
			errs = append(errs, FieldError{Field: p.Name, Reason: "required field is missing"})
		}
	}

	// Unknown argument names are violations too: an invented field usually
	// means the model misread the schema.
	var unknown []string
	for name := range args {
		if _, ok := byName[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		errs = append(errs, FieldError{Field: name, Reason: "no such parameter"})
	}

	for _, p := range s.Params {
		value, present := args[p.Name]
		if !present {
			continue
		}
		if reason := checkValue(p, value); reason != "" {
			errs = append(errs, FieldError{Field: p.Name, Reason: reason})
		}
	}
	return errs
}

func checkValue(p Param, value any) string {
	switch p.Type {
	case TypeString:
		str, ok := value.(string)
		if !ok {
			return fmt.Sprintf("expected string, got %T", value)
		}
		if len(p.Enum) > 0 {
			for _, allowed := range p.Enum {
				if str == allowed {
					return ""
				}
			}
			return fmt.Sprintf("must be one of: %s", strings.Join(p.Enum, ", "))
		}
		return ""

	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("expected boolean, got %T", value)
		}
		return ""

	case TypeInteger, TypeNumber:
		num, ok := toFloat(value)
		if !ok {
			return fmt.Sprintf("expected %s, got %T", p.Type, value)
		}
		if p.Type == TypeInteger && num != math.Trunc(num) {
			return fmt.Sprintf("expected integer, got %v", num)
		}
		if p.Min != nil && num < *p.Min {
			return fmt.Sprintf("must be at least %v", *p.Min)
		}
		if p.Max != nil && num > *p.Max {
			return fmt.Sprintf("must be at most %v", *p.Max)
		}
		return ""

	case TypeObject:
		if _, ok := value.(map[string]any); !ok {
			return fmt.Sprintf("expected object, got %T", value)
		}
		return ""

	case TypeStringArray:
		items, ok := value.([]any)
		if !ok {
			if _, ok := value.([]string); ok {
				return ""
			}
			return fmt.Sprintf("expected array of strings, got %T", value)
		}
		for _, item := range items {
			if _, ok := item.(string); !ok {
				return fmt.Sprintf("expected array of strings, got element of type %T", item)
			}
		}
		return ""

	default:
		return fmt.Sprintf("unsupported parameter type %q", p.Type)
	}
}

// toFloat accepts the numeric representations produced by JSON decoding and
// the model SDKs.
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
