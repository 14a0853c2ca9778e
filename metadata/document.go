package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// VectorsField is the reserved document field holding the embedding.
const VectorsField = "vectors"

var (
	// ErrNoVectors is returned when a document lacks the vectors field.
	ErrNoVectors = errors.New("metadata: document is missing the vectors field")

	// ErrMalformedVectors is returned when the vectors field is present but
	// not a non-empty numeric array.
	ErrMalformedVectors = errors.New("metadata: malformed vectors field")
)

// Document is a decoded JSON object stored alongside a vector.
type Document map[string]any

// Vectors extracts the embedding from the reserved vectors field.
//
// JSON decoding yields []any of float64, but documents built in code may
// carry []float32 or []float64 directly; all three forms are accepted.
func (d Document) Vectors() ([]float32, error) {
	raw, ok := d[VectorsField]
	if !ok {
		return nil, ErrNoVectors
	}

	switch v := raw.(type) {
	case []float32:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty array", ErrMalformedVectors)
		}
		out := make([]float32, len(v))
		copy(out, v)
		return out, nil
	case []float64:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty array", ErrMalformedVectors)
		}
		out := make([]float32, len(v))
		for i, f := range v {
			out[i] = float32(f)
		}
		return out, nil
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty array", ErrMalformedVectors)
		}
		out := make([]float32, len(v))
		for i, e := range v {
			f, err := toFloat64(e)
			if err != nil {
				return nil, fmt.Errorf("%w: element %d: %v", ErrMalformedVectors, i, err)
			}
			out[i] = float32(f)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrMalformedVectors, raw)
	}
}

// IntFields returns the top-level fields with integral numeric values, the
// ones the filter index can serve. The vectors field and non-integral
// values are skipped.
func (d Document) IntFields() map[string]int64 {
	out := make(map[string]int64)
	for k, v := range d {
		if k == VectorsField {
			continue
		}
		if n, ok := toInt64(v); ok {
			out[k] = n
		}
	}
	return out
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case float64:
		// JSON numbers decode as float64; only integral values in the
		// int64 range are filterable.
		if n == math.Trunc(n) && n >= math.MinInt64 && n < math.MaxInt64 {
			return int64(n), true
		}
		return 0, false
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
