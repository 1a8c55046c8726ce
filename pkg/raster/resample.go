package raster

import (
	"fmt"
	"math"
)

// InvalidScaleError is returned when a scale factor would produce an empty
// (or nonsensical) output array.
type InvalidScaleError struct {
	Scale  float64
	Width  int // Source width
	Height int // Source height
}

func (e *InvalidScaleError) Error() string {
	return fmt.Sprintf("scale %v is too small for a %vx%v array", e.Scale, e.Width, e.Height)
}

// ScaledSize returns the dimensions of a width×height array after scaling.
// Each dimension is round(scale * dim), with ties going to the even neighbour.
func ScaledSize(width, height int, scale float64) (Size, error) {
	if math.IsNaN(scale) || math.IsInf(scale, 0) || scale <= 0 {
		return Size{}, &InvalidScaleError{Scale: scale, Width: width, Height: height}
	}
	s := Size{
		Width:  int(math.RoundToEven(scale * float64(width))),
		Height: int(math.RoundToEven(scale * float64(height))),
	}
	if s.Width <= 0 || s.Height <= 0 {
		return Size{}, &InvalidScaleError{Scale: scale, Width: width, Height: height}
	}
	return s, nil
}

// Resize scales src uniformly by 'scale', using order-0 (nearest neighbour)
// sampling. Values are copied verbatim, so class IDs in masks and proposals
// are never blended, and the value range of images is preserved exactly.
func Resize[T Elem](src Array[T], scale float64) (Array[T], error) {
	size, err := ScaledSize(src.Width, src.Height, scale)
	if err != nil {
		return Array[T]{}, err
	}
	return ResizeTo(src, size.Width, size.Height), nil
}

// ResizeTo resamples src to exactly width×height with nearest neighbour sampling.
// Output sample centers are mapped back into the source, and source indices are
// clamped at the edges.
func ResizeTo[T Elem](src Array[T], width, height int) Array[T] {
	dst := New[T](width, height, src.NChan)

	// Precompute the column lookup, because it's the same for every row
	srcX := make([]int, width)
	for x := 0; x < width; x++ {
		srcX[x] = nearestSource(x, src.Width, width)
	}

	nchan := src.NChan
	for y := 0; y < height; y++ {
		sy := nearestSource(y, src.Height, height)
		srcRow := src.Pixels[sy*src.Width*nchan : (sy+1)*src.Width*nchan]
		dstRow := dst.Pixels[y*width*nchan : (y+1)*width*nchan]
		for x, sx := range srcX {
			copy(dstRow[x*nchan:(x+1)*nchan], srcRow[sx*nchan:(sx+1)*nchan])
		}
	}
	return dst
}

// nearestSource maps destination index i (of dstLen) to a source index (of srcLen).
// The center of destination pixel i sits at (i + 0.5) * srcLen / dstLen in source
// coordinates, and the nearest source pixel is the floor of that.
func nearestSource(i, srcLen, dstLen int) int {
	s := ((2*i + 1) * srcLen) / (2 * dstLen)
	if s < 0 {
		return 0
	}
	if s >= srcLen {
		return srcLen - 1
	}
	return s
}
