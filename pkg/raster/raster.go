// Package raster holds dense pixel arrays and the label-safe geometric
// operations (resize, crop) that the sample pipeline applies to images,
// masks and proposals.
package raster

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// Elem is the set of element types an Array can hold.
// Images are uint8, masks are int32 and proposals are float64.
type Elem interface {
	constraints.Integer | constraints.Float
}

// Size is the spatial extent of an array
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s Size) String() string {
	return fmt.Sprintf("%vx%v", s.Width, s.Height)
}

// Array is a row-major H×W×C buffer.
// The value of channel c at pixel (x,y) is Pixels[(y*Width+x)*NChan+c].
// A single channel array (NChan = 1) is how we represent 2D label maps, so that
// all arrays can be treated uniformly as H×W×C.
type Array[T Elem] struct {
	Width  int
	Height int
	NChan  int
	Pixels []T
}

// New allocates a zero-filled array
func New[T Elem](width, height, nchan int) Array[T] {
	return Array[T]{
		Width:  width,
		Height: height,
		NChan:  nchan,
		Pixels: make([]T, width*height*nchan),
	}
}

// Wrap an existing pixel buffer.
// Panics if the buffer length does not match the dimensions.
func Wrap[T Elem](width, height, nchan int, pixels []T) Array[T] {
	if len(pixels) != width*height*nchan {
		panic(fmt.Sprintf("raster: buffer of %v elements cannot hold %vx%vx%v", len(pixels), width, height, nchan))
	}
	return Array[T]{
		Width:  width,
		Height: height,
		NChan:  nchan,
		Pixels: pixels,
	}
}

func (a Array[T]) Size() Size {
	return Size{Width: a.Width, Height: a.Height}
}

// Number of elements in one row of the array
func (a Array[T]) Stride() int {
	return a.Width * a.NChan
}

func (a Array[T]) At(x, y, c int) T {
	return a.Pixels[(y*a.Width+x)*a.NChan+c]
}

func (a Array[T]) Set(x, y, c int, v T) {
	a.Pixels[(y*a.Width+x)*a.NChan+c] = v
}

// Clone returns a deep copy
func (a Array[T]) Clone() Array[T] {
	c := a
	c.Pixels = make([]T, len(a.Pixels))
	copy(c.Pixels, a.Pixels)
	return c
}

// Plane extracts a single channel into its own H×W slice
func (a Array[T]) Plane(c int) []T {
	plane := make([]T, a.Width*a.Height)
	for i := range plane {
		plane[i] = a.Pixels[i*a.NChan+c]
	}
	return plane
}

// Crop returns a copy of the rectangle [x1,x2) × [y1,y2).
// If any parameter is out of bounds, we panic. Use CenterCrop if you need
// a validated crop.
func (a Array[T]) Crop(x1, y1, x2, y2 int) Array[T] {
	if x1 < 0 || y1 < 0 || x2 < x1 || y2 < y1 || x2 > a.Width || y2 > a.Height {
		panic("Crop out of bounds")
	}
	dst := New[T](x2-x1, y2-y1, a.NChan)
	rowLen := dst.Stride()
	for y := y1; y < y2; y++ {
		src := a.Pixels[(y*a.Width+x1)*a.NChan:]
		copy(dst.Pixels[(y-y1)*rowLen:(y-y1+1)*rowLen], src[:rowLen])
	}
	return dst
}

// Convert casts every element to a new type.
// Float to integer conversion truncates toward zero.
func Convert[D, S Elem](src Array[S]) Array[D] {
	dst := Array[D]{
		Width:  src.Width,
		Height: src.Height,
		NChan:  src.NChan,
		Pixels: make([]D, len(src.Pixels)),
	}
	for i, v := range src.Pixels {
		dst.Pixels[i] = D(v)
	}
	return dst
}

// Distinct returns the set of values present in the array.
// This is mostly useful for checking that label maps have not been blended.
func Distinct[T Elem](a Array[T]) map[T]bool {
	values := map[T]bool{}
	for _, v := range a.Pixels {
		values[v] = true
	}
	return values
}
