package rimage

import (
	"bufio"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// DefaultDepthScale is the number of raw 16-bit units per meter for millimeter depth images.
const DefaultDepthScale = 1000.0

// ReadDepthMap reads a 16-bit grayscale PNG where each raw value is depth*scale.
func ReadDepthMap(path string, scale float64) (*DepthMap, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	dm, err := DecodeDepthMap(bufio.NewReader(f), scale)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read depth map %q", path)
	}
	return dm, nil
}

// DecodeDepthMap decodes a depth PNG from r. See ReadDepthMap.
func DecodeDepthMap(r io.Reader, scale float64) (*DepthMap, error) {
	if scale <= 0 {
		return nil, errors.Errorf("depth scale must be positive, got %v", scale)
	}
	img, err := png.Decode(r)
	if err != nil {
		return nil, err
	}
	return ConvertImageToDepthMap(img, scale)
}

// ConvertImageToDepthMap converts a 16-bit grayscale image to a depth map in meters.
func ConvertImageToDepthMap(img image.Image, scale float64) (*DepthMap, error) {
	gray, ok := img.(*image.Gray16)
	if !ok {
		return nil, errors.Errorf("depth image must be 16-bit grayscale, got %T", img)
	}
	bounds := gray.Bounds()
	dm := NewEmptyDepthMap(bounds.Dx(), bounds.Dy())
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			raw := gray.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y
			if raw == 0 {
				continue
			}
			dm.data[y*dm.width+x] = float64(raw) / scale
		}
	}
	return dm, nil
}

// ToGray16Picture converts the depth map to a 16-bit image with raw values depth*scale,
// saturating at the 16-bit limit.
func (dm *DepthMap) ToGray16Picture(scale float64) *image.Gray16 {
	img := image.NewGray16(dm.Bounds())
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			d, ok := dm.Lookup(x, y)
			if !ok {
				continue
			}
			raw := math.Min(math.Round(d*scale), math.MaxUint16)
			img.SetGray16(x, y, color.Gray16{Y: uint16(raw)})
		}
	}
	return img
}

// WriteDepthMap writes dm as a 16-bit grayscale PNG with raw values depth*scale.
func WriteDepthMap(path string, dm *DepthMap, scale float64) (err error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return png.Encode(f, dm.ToGray16Picture(scale))
}
