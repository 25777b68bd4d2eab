package structure

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Array is a decoded numeric array in row-major order.
type Array struct {
	Shape  []int
	Values []float64
}

// Len returns the number of elements implied by the shape.
func (a Array) Len() int {
	if len(a.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// Rows3 reshapes an (n, 3) array into n vectors.
func (a Array) Rows3() ([][3]float64, error) {
	if len(a.Values) == 0 {
		return nil, nil
	}
	if len(a.Shape) != 2 || a.Shape[1] != 3 {
		return nil, fmt.Errorf("expected shape (n, 3), got %v", a.Shape)
	}
	out := make([][3]float64, a.Shape[0])
	for i := range out {
		copy(out[i][:], a.Values[3*i:3*i+3])
	}
	return out, nil
}

// DecodeArray accepts either a nested JSON list of numbers/booleans or the
// numpy envelope {"__ndarray__": [shape, dtype, flat]}.
func DecodeArray(raw json.RawMessage) (Array, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Array{}, nil
	}

	if raw[0] == '{' {
		var env struct {
			NDArray []json.RawMessage `json:"__ndarray__"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			return Array{}, fmt.Errorf("decode ndarray envelope: %w", err)
		}
		if len(env.NDArray) != 3 {
			return Array{}, errors.New("ndarray envelope must be [shape, dtype, data]")
		}
		var shape []int
		if err := json.Unmarshal(env.NDArray[0], &shape); err != nil {
			return Array{}, fmt.Errorf("decode ndarray shape: %w", err)
		}
		flat, err := DecodeArray(env.NDArray[2])
		if err != nil {
			return Array{}, fmt.Errorf("decode ndarray data: %w", err)
		}
		a := Array{Shape: shape, Values: flat.Values}
		if a.Len() != len(a.Values) {
			return Array{}, fmt.Errorf("ndarray shape %v does not match %d values", shape, len(a.Values))
		}
		return a, nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Array{}, fmt.Errorf("decode array: %w", err)
	}
	var a Array
	if err := flatten(v, 0, &a); err != nil {
		return Array{}, err
	}
	return a, nil
}

func flatten(v any, depth int, a *Array) error {
	switch x := v.(type) {
	case []any:
		if depth > len(a.Shape) || (depth == len(a.Shape) && len(a.Values) > 0) {
			return fmt.Errorf("ragged array at depth %d", depth)
		}
		if depth == len(a.Shape) {
			a.Shape = append(a.Shape, len(x))
		} else if a.Shape[depth] != len(x) {
			return fmt.Errorf("ragged array at depth %d: %d vs %d", depth, len(x), a.Shape[depth])
		}
		for _, item := range x {
			if err := flatten(item, depth+1, a); err != nil {
				return err
			}
		}
		return nil
	case float64:
		if depth != len(a.Shape) {
			return fmt.Errorf("ragged array at depth %d", depth)
		}
		a.Values = append(a.Values, x)
		return nil
	case bool:
		if depth != len(a.Shape) {
			return fmt.Errorf("ragged array at depth %d", depth)
		}
		if x {
			a.Values = append(a.Values, 1)
		} else {
			a.Values = append(a.Values, 0)
		}
		return nil
	default:
		return fmt.Errorf("unsupported array element %T", v)
	}
}
