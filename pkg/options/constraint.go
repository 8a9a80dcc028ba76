package options

import (
	"encoding/json"

	"github.com/archivist-descry/descry/pkg/sane"
)

// Constraint describes the legal values of an option. It is one of
// Unconstrained, Range or Enumerated.
type Constraint interface {
	// Raw rebuilds the backend form the constraint was translated from.
	Raw() any
	constraint()
}

// Unconstrained accepts any value of the option's type.
type Unconstrained struct{}

func (Unconstrained) Raw() any     { return nil }
func (Unconstrained) constraint() {}

func (Unconstrained) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Range bounds a numeric option. Step 0 means any value in [Min, Max].
type Range struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step"`
}

func (r Range) Raw() any {
	return sane.Range{r.Min, r.Max, r.Step}
}
func (Range) constraint() {}

// Enumerated restricts an option to a fixed word or string list.
type Enumerated struct {
	Values []any
	// shape is the typed slice the list came from; nil for []any.
	shape any
}

func (e Enumerated) Raw() any {
	switch e.shape.(type) {
	case []string:
		return fromAny[string](e.Values)
	case []int:
		return fromAny[int](e.Values)
	case []int64:
		return fromAny[int64](e.Values)
	case []float64:
		return fromAny[float64](e.Values)
	}
	out := make([]any, len(e.Values))
	copy(out, e.Values)
	return out
}
func (Enumerated) constraint() {}

func (e Enumerated) MarshalJSON() ([]byte, error) {
	if e.Values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(e.Values)
}

// TranslateConstraint converts a raw backend constraint. Unknown shapes
// translate to Unconstrained.
func TranslateConstraint(raw any) Constraint {
	switch c := raw.(type) {
	case nil:
		return Unconstrained{}
	case sane.Range:
		return Range{Min: c.Min(), Max: c.Max(), Step: c.Step()}
	case []any:
		values := make([]any, len(c))
		copy(values, c)
		return Enumerated{Values: values}
	case []string:
		return Enumerated{Values: toAny(c), shape: []string(nil)}
	case []int:
		return Enumerated{Values: toAny(c), shape: []int(nil)}
	case []int64:
		return Enumerated{Values: toAny(c), shape: []int64(nil)}
	case []float64:
		return Enumerated{Values: toAny(c), shape: []float64(nil)}
	default:
		return Unconstrained{}
	}
}

func toAny[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func fromAny[T any](in []any) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[i], _ = v.(T)
	}
	return out
}
