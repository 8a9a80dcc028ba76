package options

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidValue marks a value that cannot be coerced to the option type or
// falls outside its constraint.
var ErrInvalidValue = errors.New("invalid option value")

const stepTolerance = 1e-6

// Coerce converts value to the Go type matching the option type: bool, int,
// float64 (fixed) or string.
func Coerce(opt Option, value any) (any, error) {
	switch opt.Type {
	case "bool":
		return toBool(value)
	case "int":
		return toInt(value)
	case "fixed":
		return toFloat(value)
	case "string":
		if s, ok := value.(string); ok {
			return s, nil
		}
		if value == nil {
			return nil, errors.Wrap(ErrInvalidValue, "nil string value")
		}
		return fmt.Sprint(value), nil
	default:
		return nil, errors.Wrapf(ErrInvalidValue, "option type %s does not take a value", opt.Type)
	}
}

// Validate coerces value and checks it against the option constraint. It
// returns the coerced value on success.
//
// Range steps are enforced for int options only; fixed point options are
// quantized by the driver.
func Validate(opt Option, value any) (any, error) {
	coerced, err := Coerce(opt, value)
	if err != nil {
		return nil, err
	}
	switch c := opt.Constraint.(type) {
	case Range:
		f, _ := toFloat(coerced)
		if f < c.Min || f > c.Max {
			return nil, errors.Wrapf(ErrInvalidValue, "%s: %v outside [%v, %v]", opt.Key, coerced, c.Min, c.Max)
		}
		if opt.Type == "int" && c.Step > 1 {
			steps := (f - c.Min) / c.Step
			if math.Abs(steps-math.Round(steps)) > stepTolerance {
				return nil, errors.Wrapf(ErrInvalidValue, "%s: %v not aligned to step %v", opt.Key, coerced, c.Step)
			}
		}
	case Enumerated:
		for _, allowed := range c.Values {
			if sameValue(coerced, allowed) {
				return coerced, nil
			}
		}
		return nil, errors.Wrapf(ErrInvalidValue, "%s: %v not one of %v", opt.Key, coerced, c.Values)
	}
	return coerced, nil
}

func sameValue(a, b any) bool {
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		return ok && as == bs
	}
	af, err := toFloat(a)
	if err != nil {
		return false
	}
	bf, err := toFloat(b)
	if err != nil {
		return false
	}
	return af == bf
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			return true, nil
		case "0", "false", "no", "off":
			return false, nil
		}
	case int, int64, float64:
		f, _ := toFloat(v)
		return f != 0, nil
	}
	return false, errors.Wrapf(ErrInvalidValue, "%v is not a bool", value)
}

func toInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, errors.Wrapf(ErrInvalidValue, "%v is not an integer", v)
		}
		return int(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, errors.Wrapf(ErrInvalidValue, "%q is not an integer", v)
		}
		return n, nil
	}
	return 0, errors.Wrapf(ErrInvalidValue, "%v is not an integer", value)
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, errors.Wrapf(ErrInvalidValue, "%q is not a number", v)
		}
		return f, nil
	}
	return 0, errors.Wrapf(ErrInvalidValue, "%v is not a number", value)
}
