// Package ndarray is a flat-backed, row-major n-dimensional array.
package ndarray

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer | constraints.Float
}

type Ndarray[T Number] struct {
	Data   []T   `json:"data"`
	Shape  []int `json:"shape"`
	Stride []int `json:"stride"`
}

func New[T Number](shape []int, fill T) *Ndarray[T] {
	n := 1
	for _, s := range shape {
		if s <= 0 {
			panic(fmt.Sprintf("ndarray: bad shape %v", shape))
		}
		n *= s
	}
	a := &Ndarray[T]{
		Data:   make([]T, n),
		Shape:  append([]int(nil), shape...),
		Stride: strides(shape),
	}
	if fill != 0 {
		for i := range a.Data {
			a.Data[i] = fill
		}
	}
	return a
}

func strides(shape []int) []int {
	out := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		out[i] = acc
		acc *= shape[i]
	}
	return out
}

func (a *Ndarray[T]) Len() int { return len(a.Data) }

func (a *Ndarray[T]) Contains(coords ...int) bool {
	if len(coords) != len(a.Shape) {
		return false
	}
	for i, c := range coords {
		if c < 0 || c >= a.Shape[i] {
			return false
		}
	}
	return true
}

// Index panics on out-of-range coordinates.
func (a *Ndarray[T]) Index(coords ...int) int {
	if !a.Contains(coords...) {
		panic(fmt.Sprintf("ndarray: index %v out of range for shape %v", coords, a.Shape))
	}
	idx := 0
	for i, c := range coords {
		idx += c * a.Stride[i]
	}
	return idx
}

func (a *Ndarray[T]) Get(coords ...int) T {
	return a.Data[a.Index(coords...)]
}

func (a *Ndarray[T]) Set(v T, coords ...int) {
	a.Data[a.Index(coords...)] = v
}

func (a *Ndarray[T]) Clone() *Ndarray[T] {
	return &Ndarray[T]{
		Data:   append([]T(nil), a.Data...),
		Shape:  append([]int(nil), a.Shape...),
		Stride: append([]int(nil), a.Stride...),
	}
}
