package encoding

import "fmt"

// #region tensor

// Tensor is a dense row-major float32 array. The first dimension is the
// row (batch) dimension when a tensor holds more than one sequence.
type Tensor struct {
	Shape []int
	Data  []float32
}

// Zeros allocates a zero tensor of the given shape.
func Zeros(shape ...int) Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return Tensor{Shape: append([]int(nil), shape...), Data: make([]float32, n)}
}

// Size is the number of scalars implied by Shape.
func (t Tensor) Size() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Rows is the length of the leading dimension.
func (t Tensor) Rows() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[0]
}

// RowSize is the number of scalars in one row.
func (t Tensor) RowSize() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape[1:] {
		n *= d
	}
	return n
}

// Row returns row i without copying.
func (t Tensor) Row(i int) []float32 {
	rs := t.RowSize()
	return t.Data[i*rs : (i+1)*rs]
}

// ArgMax returns, for each row, the index of its largest element. Ties keep
// the lowest index.
func (t Tensor) ArgMax() []int {
	rows := t.Rows()
	out := make([]int, rows)
	for i := 0; i < rows; i++ {
		out[i] = argMax(t.Row(i))
	}
	return out
}

func argMax(v []float32) int {
	best := 0
	for j := 1; j < len(v); j++ {
		if v[j] > v[best] {
			best = j
		}
	}
	return best
}

// Stack joins same-shaped tensors along a new leading dimension.
func Stack(items []Tensor, itemShape []int) (Tensor, error) {
	out := Zeros(append([]int{len(items)}, itemShape...)...)
	rs := out.RowSize()
	for i, it := range items {
		if len(it.Data) != rs || !sameShape(it.Shape, itemShape) {
			return Tensor{}, fmt.Errorf("%w: item %d has shape %v, want %v", ErrShapeMismatch, i, it.Shape, itemShape)
		}
		copy(out.Data[i*rs:], it.Data)
	}
	return out, nil
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

// #endregion tensor
