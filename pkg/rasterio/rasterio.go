// Package rasterio decodes the files that make up a sample (images, label masks,
// and NumPy proposal arrays) into raster.Array values, and writes JPEG previews.
package rasterio

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/cyclopcam/icepipe/pkg/raster"
	_ "golang.org/x/image/tiff"
)

var ErrUnsupportedMask = errors.New("mask must be a single-channel (gray or paletted) raster")

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("Failed to decode %v: %w", path, err)
	}
	return img, nil
}

// DecodeSize reads only the header of an image file
func DecodeSize(path string) (raster.Size, error) {
	f, err := os.Open(path)
	if err != nil {
		return raster.Size{}, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return raster.Size{}, fmt.Errorf("Failed to decode header of %v: %w", path, err)
	}
	return raster.Size{Width: cfg.Width, Height: cfg.Height}, nil
}

// LoadImage decodes an image file (TIFF, PNG or JPEG) into an H×W×3 array
func LoadImage(path string) (raster.Array[uint8], error) {
	img, err := decodeFile(path)
	if err != nil {
		return raster.Array[uint8]{}, err
	}
	return ImageToRGB(img), nil
}

// ImageToRGB converts any decoded image into 8-bit RGB.
// Alpha is dropped, and gray images are replicated into all three channels.
func ImageToRGB(img image.Image) raster.Array[uint8] {
	b := img.Bounds()
	dst := raster.New[uint8](b.Dx(), b.Dy(), 3)
	switch src := img.(type) {
	case *image.RGBA:
		copyRGBX(dst, src.Pix, src.Stride, 4)
	case *image.NRGBA:
		copyRGBX(dst, src.Pix, src.Stride, 4)
	case *image.Gray:
		for y := 0; y < dst.Height; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+dst.Width]
			for x, v := range row {
				p := (y*dst.Width + x) * 3
				dst.Pixels[p] = v
				dst.Pixels[p+1] = v
				dst.Pixels[p+2] = v
			}
		}
	default:
		for y := 0; y < dst.Height; y++ {
			for x := 0; x < dst.Width; x++ {
				r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				p := (y*dst.Width + x) * 3
				dst.Pixels[p] = uint8(r >> 8)
				dst.Pixels[p+1] = uint8(g >> 8)
				dst.Pixels[p+2] = uint8(bl >> 8)
			}
		}
	}
	return dst
}

// copy the first three channels out of a packed buffer with 'nchan' channels per pixel
func copyRGBX(dst raster.Array[uint8], pix []uint8, stride, nchan int) {
	for y := 0; y < dst.Height; y++ {
		row := pix[y*stride:]
		for x := 0; x < dst.Width; x++ {
			p := (y*dst.Width + x) * 3
			copy(dst.Pixels[p:p+3], row[x*nchan:x*nchan+3])
		}
	}
}

// LoadMask decodes a class-label raster into an H×W×1 array.
func LoadMask(path string) (raster.Array[int32], error) {
	img, err := decodeFile(path)
	if err != nil {
		return raster.Array[int32]{}, err
	}
	mask, err := MaskFromImage(img)
	if err != nil {
		return raster.Array[int32]{}, fmt.Errorf("%v: %w", path, err)
	}
	return mask, nil
}

// MaskFromImage extracts class labels from a decoded image.
// Gray and Gray16 pixels are the label values. Paletted images use
// the palette index, not the color.
func MaskFromImage(img image.Image) (raster.Array[int32], error) {
	b := img.Bounds()
	dst := raster.New[int32](b.Dx(), b.Dy(), 1)
	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < dst.Height; y++ {
			for x := 0; x < dst.Width; x++ {
				dst.Pixels[y*dst.Width+x] = int32(src.Pix[y*src.Stride+x])
			}
		}
	case *image.Gray16:
		for y := 0; y < dst.Height; y++ {
			for x := 0; x < dst.Width; x++ {
				i := y*src.Stride + x*2
				dst.Pixels[y*dst.Width+x] = int32(src.Pix[i])<<8 | int32(src.Pix[i+1])
			}
		}
	case *image.Paletted:
		for y := 0; y < dst.Height; y++ {
			for x := 0; x < dst.Width; x++ {
				dst.Pixels[y*dst.Width+x] = int32(src.Pix[y*src.Stride+x])
			}
		}
	default:
		return raster.Array[int32]{}, fmt.Errorf("%w (got %T)", ErrUnsupportedMask, img)
	}
	return dst, nil
}
