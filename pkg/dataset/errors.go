package dataset

import (
	"errors"
	"fmt"

	"github.com/cyclopcam/icepipe/pkg/raster"
)

var ErrIndexOutOfRange = errors.New("sample index out of range")

// ConfigurationError is returned when the pipeline settings cannot produce a valid sample,
// such as a scale of zero, an unknown split, or a crop larger than the resized array.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error // Optional underlying cause
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %v: %v: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid %v: %v", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// SizeMismatchError means that a raw image and its mask were not the same size on disk
type SizeMismatchError struct {
	Index int
	Name  string
	Image raster.Size
	Mask  raster.Size
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("sample %v (%v): image is %v but mask is %v", e.Index, e.Name, e.Image, e.Mask)
}

// ShapeMismatchError means that two arrays of a processed sample are not spatially aligned
type ShapeMismatchError struct {
	Index       int
	Name        string
	First       string // eg "mask"
	Second      string // eg "proposal"
	FirstShape  raster.Size
	SecondShape raster.Size
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("sample %v (%v): %v is %v but %v is %v", e.Index, e.Name, e.First, e.FirstShape, e.Second, e.SecondShape)
}
