package bus

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Args are the positional arguments of an event, a call or a result.
// Values come either from Go callers (LocalBus) or from a JSON decoder
// configured with UseNumber (wamp), so accessors accept both.
type Args []interface{}

// String returns the i-th argument as text. Missing and nil arguments yield "".
// Non-string values are rendered as JSON, so an opaque payload survives as-is.
func (a Args) String(i int) string {
	if i < 0 || i >= len(a) || a[i] == nil {
		return ""
	}
	switch v := a[i].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return v.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// Int returns the i-th argument as an integer.
// integral accepts floats carrying a whole number, as JSON decoders produce.
func integral(i int, f float64) (int, error) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("argument %d is not an integer: %v", i, f)
	}
	return int(f), nil
}

func (a Args) Int(i int) (int, error) {
	if i < 0 || i >= len(a) || a[i] == nil {
		return 0, fmt.Errorf("missing argument %d", i)
	}
	switch v := a[i].(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		return integral(i, v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return 0, fmt.Errorf("argument %d is not a number: %v", i, err)
			}
			return integral(i, f)
		}
		return int(n), nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, fmt.Errorf("argument %d is not a number: %v", i, v)
	}
}

// Float returns the i-th argument as a float.
func (a Args) Float(i int) (float64, error) {
	if i < 0 || i >= len(a) || a[i] == nil {
		return 0, fmt.Errorf("missing argument %d", i)
	}
	switch v := a[i].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("argument %d is not a number: %v", i, v)
	}
}
