// Package tensor builds the padded batch tensors consumed by the model from
// sentence-structured documents.
package tensor

import (
	"fmt"
	"slices"
)

// Dense is a row-major n-dimensional array. Index errors panic.
type Dense[T comparable] struct {
	shape []int
	data  []T
}

// Long holds token ids, offsets and targets.
type Long = Dense[int64]

// Bool holds masks.
type Bool = Dense[bool]

// New returns a tensor of the given shape with every element set to fill.
// Zero-sized dimensions are allowed.
func New[T comparable](fill T, shape ...int) *Dense[T] {
	size := 1
	for _, d := range shape {
		if d < 0 {
			panic(fmt.Sprintf("tensor: negative dimension in shape %v", shape))
		}
		size *= d
	}
	data := make([]T, size)
	var zero T
	if fill != zero {
		for i := range data {
			data[i] = fill
		}
	}
	return &Dense[T]{shape: slices.Clone(shape), data: data}
}

// NewLong returns an int64 tensor filled with fill.
func NewLong(fill int64, shape ...int) *Long { return New(fill, shape...) }

// NewBool returns a bool tensor filled with fill.
func NewBool(fill bool, shape ...int) *Bool { return New(fill, shape...) }

// FromSlice wraps data with shape, panicking when sizes disagree.
func FromSlice[T comparable](data []T, shape ...int) *Dense[T] {
	t := &Dense[T]{shape: slices.Clone(shape), data: data}
	if size := t.size(); size != len(data) {
		panic(fmt.Sprintf("tensor: shape %v needs %d elements, got %d", shape, size, len(data)))
	}
	return t
}

func (t *Dense[T]) size() int {
	n := 1
	for _, d := range t.shape {
		n *= d
	}
	return n
}

// Shape returns the dimensions.
func (t *Dense[T]) Shape() []int { return slices.Clone(t.shape) }

// Dim returns dimension i.
func (t *Dense[T]) Dim(i int) int { return t.shape[i] }

// Data returns the backing slice.
func (t *Dense[T]) Data() []T { return t.data }

func (t *Dense[T]) offset(idx []int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor: %d indices for shape %v", len(idx), t.shape))
	}
	off := 0
	for i, x := range idx {
		if x < 0 || x >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, t.shape))
		}
		off = off*t.shape[i] + x
	}
	return off
}

// At returns the element at idx.
func (t *Dense[T]) At(idx ...int) T { return t.data[t.offset(idx)] }

// Set stores v at idx.
func (t *Dense[T]) Set(v T, idx ...int) { t.data[t.offset(idx)] = v }

// Row returns the innermost vector at the leading indices idx as a view.
func (t *Dense[T]) Row(idx ...int) []T {
	if t.shape[len(t.shape)-1] == 0 {
		return nil
	}
	full := append(slices.Clone(idx), 0)
	start := t.offset(full)
	return t.data[start : start+t.shape[len(t.shape)-1]]
}

// Equal reports whether t and o have the same shape and elements.
func (t *Dense[T]) Equal(o *Dense[T]) bool {
	if t == nil || o == nil {
		return t == o
	}
	return slices.Equal(t.shape, o.shape) && slices.Equal(t.data, o.data)
}

// Clone returns a deep copy.
func (t *Dense[T]) Clone() *Dense[T] {
	return &Dense[T]{shape: slices.Clone(t.shape), data: slices.Clone(t.data)}
}

// Count returns the number of elements equal to v.
func (t *Dense[T]) Count(v T) int {
	n := 0
	for _, x := range t.data {
		if x == v {
			n++
		}
	}
	return n
}

func (t *Dense[T]) String() string {
	return fmt.Sprintf("tensor%v", t.shape)
}
