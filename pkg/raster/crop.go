package raster

import (
	"fmt"
	"math"
)

// CropError is returned when a center crop window does not fit inside the array.
// Arrays are never padded to make a crop fit.
type CropError struct {
	Crop   int
	Width  int
	Height int
}

func (e *CropError) Error() string {
	if e.Crop <= 0 {
		return fmt.Sprintf("crop size %v must be positive", e.Crop)
	}
	return fmt.Sprintf("crop size %v does not fit inside a %vx%v array", e.Crop, e.Width, e.Height)
}

// CenterCropOrigin returns the top-left corner of a size×size window centered
// on a width×height array. Odd leftovers are split with round-half-to-even.
func CenterCropOrigin(width, height, size int) (x, y int, err error) {
	if size <= 0 || size > width || size > height {
		return 0, 0, &CropError{Crop: size, Width: width, Height: height}
	}
	x = int(math.RoundToEven(float64(width-size) / 2))
	y = int(math.RoundToEven(float64(height-size) / 2))
	return x, y, nil
}

// CenterCrop extracts a size×size window centered on the array's midpoint.
func CenterCrop[T Elem](src Array[T], size int) (Array[T], error) {
	x, y, err := CenterCropOrigin(src.Width, src.Height, size)
	if err != nil {
		return Array[T]{}, err
	}
	return src.Crop(x, y, x+size, y+size), nil
}
