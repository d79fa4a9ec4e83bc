// Package tensor implements the minimal dense value model the compilation
// layer operates on.
//
// The real numerical runtime lives outside this repository; the core only
// needs values that carry a shape, a dtype and a device tag, support the
// handful of elementwise operations the control-flow combinators are built
// on, and can be stacked into lane-batched form for vectorized execution.
// This package is that boundary: a flat float64-backed dense tensor with an
// explicit batch-level tag distinguishing a vectorization lane dimension
// from a genuine data dimension.
package tensor

import (
	"fmt"
	"strings"
)

// DType identifies the logical element type of a tensor.
type DType uint8

const (
	Float64 DType = iota
	Int64
	Bool
)

// String returns the short dtype name used in signatures and error messages.
func (d DType) String() string {
	switch d {
	case Float64:
		return "f64"
	case Int64:
		return "i64"
	case Bool:
		return "bool"
	}
	return fmt.Sprintf("dtype(%d)", uint8(d))
}

// ParseDType maps a manifest dtype name to its DType.
func ParseDType(name string) (DType, error) {
	switch name {
	case "f64", "float64":
		return Float64, nil
	case "i64", "int64":
		return Int64, nil
	case "bool":
		return Bool, nil
	}
	return 0, fmt.Errorf("unknown dtype %q", name)
}

// Device tags where a tensor's storage lives. Only the CPU device exists in
// this repository; the tag is part of the compile cache key so that adding a
// second device later does not change the keying scheme.
type Device string

// CPU is the only in-tree device.
const CPU Device = "cpu"

// Tensor is a dense, row-major value.
//
// When batchLevel > 0 the leading dimension of shape is a vectorization lane
// dimension introduced by the vmap transform at that nesting level, not a
// data dimension. Shape-dependent logic must consult BatchLevel before
// interpreting shape[0].
type Tensor struct {
	dtype      DType
	shape      []int
	data       []float64
	device     Device
	batchLevel int
}

// Scalar returns an unbatched rank-0 float64 tensor.
func Scalar(v float64) *Tensor {
	return &Tensor{dtype: Float64, shape: nil, data: []float64{v}, device: CPU}
}

// IntScalar returns an unbatched rank-0 int64 tensor.
func IntScalar(v int64) *Tensor {
	return &Tensor{dtype: Int64, shape: nil, data: []float64{float64(v)}, device: CPU}
}

// BoolScalar returns an unbatched rank-0 bool tensor.
func BoolScalar(v bool) *Tensor {
	return &Tensor{dtype: Bool, shape: nil, data: []float64{boolToFloat(v)}, device: CPU}
}

// FromSlice builds a tensor of the given shape from row-major values.
func FromSlice(vals []float64, shape ...int) (*Tensor, error) {
	n := numElems(shape)
	if len(vals) != n {
		return nil, fmt.Errorf("tensor: %d values do not fill shape %v (%d elements)", len(vals), shape, n)
	}
	data := make([]float64, n)
	copy(data, vals)
	return &Tensor{dtype: Float64, shape: cloneShape(shape), data: data, device: CPU}, nil
}

// MustFromSlice is FromSlice for statically correct literals in tests and
// example modules.
func MustFromSlice(vals []float64, shape ...int) *Tensor {
	t, err := FromSlice(vals, shape...)
	if err != nil {
		panic(err)
	}
	return t
}

// Zeros returns a zero-filled tensor of the given dtype and shape.
func Zeros(dtype DType, shape ...int) *Tensor {
	return &Tensor{
		dtype:  dtype,
		shape:  cloneShape(shape),
		data:   make([]float64, numElems(shape)),
		device: CPU,
	}
}

// Full returns a tensor of the given shape with every element set to v.
func Full(v float64, shape ...int) *Tensor {
	t := Zeros(Float64, shape...)
	for i := range t.data {
		t.data[i] = v
	}
	return t
}

// FullOf is Full with an explicit dtype, for callers synthesizing values
// from manifest declarations.
func FullOf(dtype DType, v float64, shape ...int) *Tensor {
	t := Zeros(dtype, shape...)
	for i := range t.data {
		t.data[i] = v
	}
	return t
}

// DType returns the element type.
func (t *Tensor) DType() DType { return t.dtype }

// Device returns the device tag.
func (t *Tensor) Device() Device { return t.device }

// Shape returns the full shape including any lane dimension. The returned
// slice must not be mutated.
func (t *Tensor) Shape() []int { return t.shape }

// DataShape returns the shape with the lane dimension stripped, i.e. the
// shape one logical lane sees.
func (t *Tensor) DataShape() []int {
	if t.batchLevel > 0 {
		return t.shape[1:]
	}
	return t.shape
}

// BatchLevel reports the vmap nesting level that owns the leading dimension,
// or 0 when the tensor is unbatched.
func (t *Tensor) BatchLevel() int { return t.batchLevel }

// Lanes returns the lane count, or 0 when the tensor is unbatched.
func (t *Tensor) Lanes() int {
	if t.batchLevel == 0 {
		return 0
	}
	return t.shape[0]
}

// NumElems returns the total element count including lanes.
func (t *Tensor) NumElems() int { return len(t.data) }

// Float returns the value of a rank-0, unbatched tensor.
func (t *Tensor) Float() (float64, error) {
	if len(t.shape) != 0 {
		return 0, fmt.Errorf("tensor: Float on non-scalar shape %v", t.shape)
	}
	return t.data[0], nil
}

// BoolAt reports element i interpreted as a boolean.
func (t *Tensor) BoolAt(i int) bool { return t.data[i] != 0 }

// At returns element i of the flat row-major storage.
func (t *Tensor) At(i int) float64 { return t.data[i] }

// Clone returns a deep copy sharing no storage with t.
func (t *Tensor) Clone() *Tensor {
	data := make([]float64, len(t.data))
	copy(data, t.data)
	return &Tensor{
		dtype:      t.dtype,
		shape:      cloneShape(t.shape),
		data:       data,
		device:     t.device,
		batchLevel: t.batchLevel,
	}
}

// Signature renders the dtype/shape/device triple used for compile cache
// keys, e.g. "f64[3,2]@cpu" or "f64[lanes:8][3]@cpu" for a batched tensor.
func (t *Tensor) Signature() string {
	var b strings.Builder
	b.WriteString(t.dtype.String())
	rest := t.shape
	if t.batchLevel > 0 {
		fmt.Fprintf(&b, "[lanes:%d]", t.shape[0])
		rest = t.shape[1:]
	}
	b.WriteByte('[')
	for i, d := range rest {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", d)
	}
	b.WriteByte(']')
	b.WriteByte('@')
	b.WriteString(string(t.device))
	return b.String()
}

// DataSignature renders the signature one logical lane sees, ignoring any
// lane dimension. Override-vs-default parity checks compare these, since a
// vectorized override legitimately returns lane-batched values.
func (t *Tensor) DataSignature() string {
	var b strings.Builder
	b.WriteString(t.dtype.String())
	b.WriteByte('[')
	for i, d := range t.DataShape() {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", d)
	}
	b.WriteByte(']')
	b.WriteByte('@')
	b.WriteString(string(t.device))
	return b.String()
}

// String renders the signature and the flat element values, for logs and
// CLI output.
func (t *Tensor) String() string {
	var b strings.Builder
	b.WriteString(t.Signature())
	b.WriteByte(' ')
	b.WriteByte('{')
	for i, v := range t.data {
		if i > 0 {
			b.WriteString(", ")
		}
		switch t.dtype {
		case Int64:
			fmt.Fprintf(&b, "%d", int64(v))
		case Bool:
			fmt.Fprintf(&b, "%t", v != 0)
		default:
			fmt.Fprintf(&b, "%g", v)
		}
	}
	b.WriteByte('}')
	return b.String()
}

// SameSignature reports whether two tensors agree on dtype, shape, device
// and batch tagging.
func SameSignature(a, b *Tensor) bool {
	return a.Signature() == b.Signature()
}

// Equal reports exact elementwise equality, including metadata. Used by
// determinism tests; no tolerance is applied.
func Equal(a, b *Tensor) bool {
	if !SameSignature(a, b) {
		return false
	}
	for i := range a.data {
		if a.data[i] != b.data[i] {
			return false
		}
	}
	return true
}

func cloneShape(shape []int) []int {
	if len(shape) == 0 {
		return nil
	}
	out := make([]int, len(shape))
	copy(out, shape)
	return out
}

func numElems(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
