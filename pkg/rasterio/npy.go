package rasterio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cyclopcam/icepipe/pkg/raster"
	"github.com/sbinet/npyio/npy"
)

var ErrUnsupportedArray = errors.New("unsupported NumPy array")

// LoadNpy reads a 2D (H×W) or 3D (H×W×1) NumPy array file.
// Whatever the on-disk dtype, values are returned as float64, which holds every
// label and score value we expect to see exactly.
func LoadNpy(path string) (raster.Array[float64], error) {
	f, err := os.Open(path)
	if err != nil {
		return raster.Array[float64]{}, err
	}
	defer f.Close()
	arr, err := ReadNpy(f)
	if err != nil {
		return raster.Array[float64]{}, fmt.Errorf("%v: %w", path, err)
	}
	return arr, nil
}

// ReadNpy decodes a NumPy array from r. See LoadNpy.
func ReadNpy(r io.Reader) (raster.Array[float64], error) {
	rd, err := npy.NewReader(r)
	if err != nil {
		return raster.Array[float64]{}, err
	}
	descr := rd.Header.Descr
	if descr.Fortran {
		return raster.Array[float64]{}, fmt.Errorf("%w: Fortran-ordered arrays are not supported", ErrUnsupportedArray)
	}
	shape := descr.Shape
	switch {
	case len(shape) == 2:
	case len(shape) == 3 && shape[2] == 1:
	default:
		return raster.Array[float64]{}, fmt.Errorf("%w: shape %v is not H×W or H×W×1", ErrUnsupportedArray, shape)
	}
	height, width := shape[0], shape[1]
	n := width * height

	values, err := readAsFloat64(rd, strings.TrimLeft(descr.Type, "<>|="), n)
	if err != nil {
		return raster.Array[float64]{}, err
	}
	return raster.Wrap(width, height, 1, values), nil
}

func readAsFloat64(rd *npy.Reader, dtype string, n int) ([]float64, error) {
	switch dtype {
	case "f8":
		v := make([]float64, n)
		err := rd.Read(&v)
		return v, err
	case "f4":
		return readConvert[float32](rd, n)
	case "u1":
		return readConvert[uint8](rd, n)
	case "i1":
		return readConvert[int8](rd, n)
	case "u2":
		return readConvert[uint16](rd, n)
	case "i2":
		return readConvert[int16](rd, n)
	case "u4":
		return readConvert[uint32](rd, n)
	case "i4":
		return readConvert[int32](rd, n)
	case "u8":
		return readConvert[uint64](rd, n)
	case "i8":
		return readConvert[int64](rd, n)
	case "b1":
		v := make([]bool, n)
		if err := rd.Read(&v); err != nil {
			return nil, err
		}
		out := make([]float64, n)
		for i, b := range v {
			if b {
				out[i] = 1
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: dtype %q", ErrUnsupportedArray, dtype)
}

func readConvert[T raster.Elem](rd *npy.Reader, n int) ([]float64, error) {
	v := make([]T, n)
	if err := rd.Read(&v); err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i, x := range v {
		out[i] = float64(x)
	}
	return out, nil
}
