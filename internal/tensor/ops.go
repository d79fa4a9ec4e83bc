package tensor

import "fmt"

// Binary ops broadcast along two axes only: a rank-0 scalar combines with any
// shape, and an unbatched tensor combines with a lane-batched one by reusing
// its values in every lane. Anything richer belongs to the external runtime.

// Add returns a + b elementwise.
func Add(a, b *Tensor) (*Tensor, error) {
	return zipArith("add", a, b, func(x, y float64) float64 { return x + y })
}

// Sub returns a - b elementwise.
func Sub(a, b *Tensor) (*Tensor, error) {
	return zipArith("sub", a, b, func(x, y float64) float64 { return x - y })
}

// Mul returns a * b elementwise.
func Mul(a, b *Tensor) (*Tensor, error) {
	return zipArith("mul", a, b, func(x, y float64) float64 { return x * y })
}

// Less returns the elementwise a < b as a bool tensor.
func Less(a, b *Tensor) (*Tensor, error) {
	return zipCmp("less", a, b, func(x, y float64) bool { return x < y })
}

// LessEq returns the elementwise a <= b as a bool tensor.
func LessEq(a, b *Tensor) (*Tensor, error) {
	return zipCmp("lesseq", a, b, func(x, y float64) bool { return x <= y })
}

// Greater returns the elementwise a > b as a bool tensor.
func Greater(a, b *Tensor) (*Tensor, error) {
	return zipCmp("greater", a, b, func(x, y float64) bool { return x > y })
}

// EqualTo returns the elementwise a == b as a bool tensor.
func EqualTo(a, b *Tensor) (*Tensor, error) {
	return zipCmp("equalto", a, b, func(x, y float64) bool { return x == y })
}

// Not returns the elementwise negation of a bool tensor.
func Not(p *Tensor) (*Tensor, error) {
	if p.dtype != Bool {
		return nil, fmt.Errorf("tensor: not on %s tensor", p.dtype)
	}
	out := p.Clone()
	for i := range out.data {
		out.data[i] = boolToFloat(out.data[i] == 0)
	}
	return out, nil
}

// And returns the elementwise conjunction of two bool tensors.
func And(a, b *Tensor) (*Tensor, error) {
	if a.dtype != Bool || b.dtype != Bool {
		return nil, fmt.Errorf("tensor: and on %s/%s tensors", a.dtype, b.dtype)
	}
	return zipCmp("and", a, b, func(x, y float64) bool { return x != 0 && y != 0 })
}

// Sum reduces all data elements to a rank-0 tensor. For a batched tensor the
// reduction runs per lane, preserving the lane dimension.
func Sum(t *Tensor) *Tensor {
	if t.batchLevel == 0 {
		acc := 0.0
		for _, v := range t.data {
			acc += v
		}
		out := Scalar(acc)
		out.dtype = t.dtype
		return out
	}
	lanes := t.shape[0]
	per := len(t.data) / lanes
	out := &Tensor{
		dtype:      t.dtype,
		shape:      []int{lanes},
		data:       make([]float64, lanes),
		device:     t.device,
		batchLevel: t.batchLevel,
	}
	for l := 0; l < lanes; l++ {
		acc := 0.0
		for i := 0; i < per; i++ {
			acc += t.data[l*per+i]
		}
		out.data[l] = acc
	}
	return out
}

// Where selects elements from a where pred is true and from b otherwise.
// pred is either elementwise (same signature as a and b) or a per-lane
// vector selecting whole lanes of batched operands.
func Where(pred, a, b *Tensor) (*Tensor, error) {
	if pred.dtype != Bool {
		return nil, fmt.Errorf("tensor: where predicate is %s, want bool", pred.dtype)
	}
	if !SameSignature(a, b) {
		return nil, fmt.Errorf("tensor: where branches disagree: %s vs %s", a.Signature(), b.Signature())
	}
	out := a.Clone()
	switch {
	case len(pred.data) == 1:
		if pred.data[0] == 0 {
			return b.Clone(), nil
		}
		return out, nil
	case pred.batchLevel > 0 && a.batchLevel > 0 && len(pred.shape) == 1 && pred.shape[0] == a.shape[0]:
		// Per-lane selection: one predicate value gates one whole lane.
		lanes := a.shape[0]
		per := len(a.data) / lanes
		for l := 0; l < lanes; l++ {
			if pred.data[l] == 0 {
				copy(out.data[l*per:(l+1)*per], b.data[l*per:(l+1)*per])
			}
		}
		return out, nil
	case len(pred.data) == len(a.data):
		for i := range out.data {
			if pred.data[i] == 0 {
				out.data[i] = b.data[i]
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("tensor: where predicate %s does not align with operands %s", pred.Signature(), a.Signature())
}

// All reports whether every element of a bool tensor is true.
func All(p *Tensor) (bool, error) {
	if p.dtype != Bool {
		return false, fmt.Errorf("tensor: all on %s tensor", p.dtype)
	}
	for _, v := range p.data {
		if v == 0 {
			return false, nil
		}
	}
	return true, nil
}

// Any reports whether at least one element of a bool tensor is true.
func Any(p *Tensor) (bool, error) {
	if p.dtype != Bool {
		return false, fmt.Errorf("tensor: any on %s tensor", p.dtype)
	}
	for _, v := range p.data {
		if v != 0 {
			return true, nil
		}
	}
	return false, nil
}

// Stack joins unbatched tensors of identical signature into one tensor whose
// leading dimension is a lane dimension owned by the given vmap level.
func Stack(level int, ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("tensor: stack of zero tensors")
	}
	first := ts[0]
	if first.batchLevel != 0 {
		return nil, fmt.Errorf("tensor: stack of already-batched tensor %s", first.Signature())
	}
	per := len(first.data)
	data := make([]float64, 0, per*len(ts))
	for i, t := range ts {
		if !SameSignature(first, t) {
			return nil, fmt.Errorf("tensor: stack lane %d has signature %s, lane 0 has %s", i, t.Signature(), first.Signature())
		}
		data = append(data, t.data...)
	}
	shape := append([]int{len(ts)}, first.shape...)
	return &Tensor{
		dtype:      first.dtype,
		shape:      shape,
		data:       data,
		device:     first.device,
		batchLevel: level,
	}, nil
}

// Unstack splits a batched tensor back into one unbatched tensor per lane.
func Unstack(t *Tensor) ([]*Tensor, error) {
	if t.batchLevel == 0 {
		return nil, fmt.Errorf("tensor: unstack of unbatched tensor %s", t.Signature())
	}
	lanes := t.shape[0]
	per := len(t.data) / lanes
	out := make([]*Tensor, lanes)
	for l := 0; l < lanes; l++ {
		data := make([]float64, per)
		copy(data, t.data[l*per:(l+1)*per])
		out[l] = &Tensor{
			dtype:  t.dtype,
			shape:  cloneShape(t.shape[1:]),
			data:   data,
			device: t.device,
		}
	}
	return out, nil
}

// Lane extracts a single lane of a batched tensor as an unbatched tensor.
func Lane(t *Tensor, l int) (*Tensor, error) {
	if t.batchLevel == 0 {
		return nil, fmt.Errorf("tensor: lane of unbatched tensor %s", t.Signature())
	}
	lanes := t.shape[0]
	if l < 0 || l >= lanes {
		return nil, fmt.Errorf("tensor: lane %d out of range [0,%d)", l, lanes)
	}
	per := len(t.data) / lanes
	data := make([]float64, per)
	copy(data, t.data[l*per:(l+1)*per])
	return &Tensor{
		dtype:  t.dtype,
		shape:  cloneShape(t.shape[1:]),
		data:   data,
		device: t.device,
	}, nil
}

func zipArith(op string, a, b *Tensor, f func(x, y float64) float64) (*Tensor, error) {
	if a.dtype == Bool || b.dtype == Bool {
		return nil, fmt.Errorf("tensor: %s on bool tensor", op)
	}
	if a.dtype != b.dtype {
		return nil, fmt.Errorf("tensor: %s dtype mismatch %s vs %s", op, a.dtype, b.dtype)
	}
	wide, narrow, swapped, err := align(op, a, b)
	if err != nil {
		return nil, err
	}
	out := wide.Clone()
	per := 1
	if len(narrow.data) > 0 {
		per = len(narrow.data)
	}
	for i := range out.data {
		nv := narrow.data[i%per]
		if swapped {
			out.data[i] = f(nv, wide.data[i])
		} else {
			out.data[i] = f(wide.data[i], nv)
		}
	}
	return out, nil
}

func zipCmp(op string, a, b *Tensor, f func(x, y float64) bool) (*Tensor, error) {
	wide, narrow, swapped, err := align(op, a, b)
	if err != nil {
		return nil, err
	}
	out := wide.Clone()
	out.dtype = Bool
	per := 1
	if len(narrow.data) > 0 {
		per = len(narrow.data)
	}
	for i := range out.data {
		nv := narrow.data[i%per]
		var v bool
		if swapped {
			v = f(nv, wide.data[i])
		} else {
			v = f(wide.data[i], nv)
		}
		out.data[i] = boolToFloat(v)
	}
	return out, nil
}

// align orders two operands as (wide, narrow) where narrow's elements repeat
// cyclically to cover wide. swapped reports that a and b were exchanged, so
// non-commutative callers can restore argument order.
func align(op string, a, b *Tensor) (wide, narrow *Tensor, swapped bool, err error) {
	switch {
	case sameDataShape(a, b) && a.batchLevel == b.batchLevel:
		if a.batchLevel > 0 && a.shape[0] != b.shape[0] {
			return nil, nil, false, fmt.Errorf("tensor: %s lane mismatch %d vs %d", op, a.shape[0], b.shape[0])
		}
		return a, b, false, nil
	case len(b.shape) == 0 && b.batchLevel == 0:
		return a, b, false, nil
	case len(a.shape) == 0 && a.batchLevel == 0:
		return b, a, true, nil
	case a.batchLevel > 0 && b.batchLevel == 0 && sameShape(a.shape[1:], b.shape):
		return a, b, false, nil
	case b.batchLevel > 0 && a.batchLevel == 0 && sameShape(b.shape[1:], a.shape):
		return b, a, true, nil
	}
	return nil, nil, false, fmt.Errorf("tensor: %s shape mismatch %s vs %s", op, a.Signature(), b.Signature())
}

func sameDataShape(a, b *Tensor) bool {
	return sameShape(a.DataShape(), b.DataShape())
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
