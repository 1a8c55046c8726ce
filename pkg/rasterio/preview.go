package rasterio

import (
	"fmt"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/icepipe/pkg/raster"
)

// Colors used when rendering label maps. Class 0 is background.
var LabelPalette = [][3]uint8{
	{0, 0, 0},
	{40, 120, 255},
	{240, 240, 240},
	{255, 80, 40},
	{60, 200, 80},
	{250, 200, 30},
	{160, 60, 220},
	{0, 200, 200},
}

// LabelsToRGB renders a single channel label map with LabelPalette.
// Labels outside the palette wrap around, and negative labels are drawn magenta.
func LabelsToRGB[T raster.Elem](labels raster.Array[T]) raster.Array[uint8] {
	dst := raster.New[uint8](labels.Width, labels.Height, 3)
	for i := 0; i < labels.Width*labels.Height; i++ {
		v := int64(labels.Pixels[i*labels.NChan])
		c := [3]uint8{255, 0, 255}
		if v >= 0 {
			c = LabelPalette[v%int64(len(LabelPalette))]
		}
		copy(dst.Pixels[i*3:i*3+3], c[:])
	}
	return dst
}

// WritePreviewJPEG writes an RGB array to disk, for eyeballing what the pipeline produced
func WritePreviewJPEG(filename string, rgb raster.Array[uint8]) error {
	if rgb.NChan != 3 {
		return fmt.Errorf("preview needs an RGB array, not %v channels", rgb.NChan)
	}
	img := cimg.WrapImage(rgb.Width, rgb.Height, cimg.PixelFormatRGB, rgb.Pixels)
	return img.WriteJPEG(filename, cimg.MakeCompressParams(cimg.Sampling444, 95, 0), 0644)
}
