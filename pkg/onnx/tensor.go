package onnx

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// ElementType is the element type of a [Tensor].
type ElementType int

const (
	// Float32 tensors hold IEEE-754 single precision values.
	Float32 ElementType = iota
	// Int64 tensors hold signed 64-bit integers (token ids).
	Int64
)

// String returns the ONNX name of the element type.
func (t ElementType) String() string {
	switch t {
	case Float32:
		return "float32"
	case Int64:
		return "int64"
	}
	return fmt.Sprintf("ElementType(%d)", int(t))
}

// Tensor is an N-dimensional tensor held in Go memory.
//
// A Tensor is immutable once created. It is converted into an ONNX Runtime
// value only for the duration of a single [Session.Run], so the same Tensor
// may be passed to concurrent runs.
type Tensor struct {
	shape  []int64
	elem   ElementType
	floats []float32
	ints   []int64
}

// NewTensor creates a float32 tensor with the given shape and data.
// The shape must describe exactly len(data) elements.
func NewTensor(shape []int64, data []float32) (*Tensor, error) {
	if err := checkShape(shape, len(data)); err != nil {
		return nil, err
	}
	return &Tensor{shape: cloneShape(shape), elem: Float32, floats: data}, nil
}

// NewInt64Tensor creates an int64 tensor with the given shape and data.
// The shape must describe exactly len(data) elements.
func NewInt64Tensor(shape []int64, data []int64) (*Tensor, error) {
	if err := checkShape(shape, len(data)); err != nil {
		return nil, err
	}
	return &Tensor{shape: cloneShape(shape), elem: Int64, ints: data}, nil
}

func checkShape(shape []int64, n int) error {
	if n == 0 {
		return fmt.Errorf("onnx: empty tensor data")
	}
	if len(shape) == 0 {
		return fmt.Errorf("onnx: tensor shape has no dimensions")
	}
	total := int64(1)
	for i, d := range shape {
		if d <= 0 {
			return fmt.Errorf("onnx: invalid dimension %d at axis %d", d, i)
		}
		total *= d
	}
	if total != int64(n) {
		return fmt.Errorf("onnx: tensor data length mismatch: got %d, shape needs %d", n, total)
	}
	return nil
}

func cloneShape(shape []int64) []int64 {
	return append([]int64(nil), shape...)
}

// ElementType returns the element type of the tensor.
func (t *Tensor) ElementType() ElementType {
	return t.elem
}

// Shape returns a copy of the tensor dimensions.
func (t *Tensor) Shape() []int64 {
	return cloneShape(t.shape)
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	if t.elem == Int64 {
		return len(t.ints)
	}
	return len(t.floats)
}

// FloatData returns the float32 elements. It fails for non-float tensors.
func (t *Tensor) FloatData() ([]float32, error) {
	if t.elem != Float32 {
		return nil, fmt.Errorf("onnx: tensor is %s, not float32", t.elem)
	}
	return t.floats, nil
}

// Int64Data returns the int64 elements. It fails for non-int64 tensors.
func (t *Tensor) Int64Data() ([]int64, error) {
	if t.elem != Int64 {
		return nil, fmt.Errorf("onnx: tensor is %s, not int64", t.elem)
	}
	return t.ints, nil
}

// value builds a fresh ONNX Runtime value backed by the tensor data.
// The caller must Destroy it.
func (t *Tensor) value() (ort.Value, error) {
	shape := ort.NewShape(t.shape...)
	switch t.elem {
	case Float32:
		return ort.NewTensor(shape, t.floats)
	case Int64:
		return ort.NewTensor(shape, t.ints)
	}
	return nil, fmt.Errorf("onnx: unsupported element type %s", t.elem)
}

// fromValue copies an ONNX Runtime output value into Go memory.
func fromValue(v ort.Value) (*Tensor, error) {
	switch tv := v.(type) {
	case *ort.Tensor[float32]:
		data := append([]float32(nil), tv.GetData()...)
		return &Tensor{shape: cloneShape(tv.GetShape()), elem: Float32, floats: data}, nil
	case *ort.Tensor[int64]:
		data := append([]int64(nil), tv.GetData()...)
		return &Tensor{shape: cloneShape(tv.GetShape()), elem: Int64, ints: data}, nil
	}
	return nil, fmt.Errorf("onnx: unsupported output value %T", v)
}
