// Package rimage holds the dense per-pixel buffers of the fusion pipeline: depth maps and
// point/normal maps, plus the depth filters that run on them.
package rimage

import (
	"image"
	"math"

	"github.com/pkg/errors"
)

// DepthMap is a dense, row major grid of depths in meters. A depth that is zero, negative or
// not finite means there was no measurement at that pixel.
type DepthMap struct {
	width  int
	height int

	data []float64
}

// NewEmptyDepthMap returns a depth map of the given size with no measurements.
func NewEmptyDepthMap(width, height int) *DepthMap {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	return &DepthMap{
		width:  width,
		height: height,
		data:   make([]float64, width*height),
	}
}

// NewDepthMapFromData wraps row major data of exactly width*height depths.
func NewDepthMapFromData(width, height int, data []float64) (*DepthMap, error) {
	if width < 0 || height < 0 || len(data) != width*height {
		return nil, errors.Errorf("depth data has %d values, need %dx%d", len(data), width, height)
	}
	return &DepthMap{width: width, height: height, data: data}, nil
}

// IsValidDepth reports whether d is a real measurement.
func IsValidDepth(d float64) bool {
	return d > 0 && !math.IsInf(d, 1) && !math.IsNaN(d)
}

// HasData returns whether the depth map has any pixels.
func (dm *DepthMap) HasData() bool {
	return dm.width > 0 && dm.height > 0
}

// Width returns the width of the map.
func (dm *DepthMap) Width() int {
	return dm.width
}

// Height returns the height of the map.
func (dm *DepthMap) Height() int {
	return dm.height
}

// Bounds returns the rectangle dimensions of the map.
func (dm *DepthMap) Bounds() image.Rectangle {
	return image.Rect(0, 0, dm.width, dm.height)
}

// In reports whether (x, y) is inside the map.
func (dm *DepthMap) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < dm.width && y < dm.height
}

// Get returns the raw depth at (x, y), or 0 when (x, y) is outside the map.
func (dm *DepthMap) Get(x, y int) float64 {
	if !dm.In(x, y) {
		return 0
	}
	return dm.data[y*dm.width+x]
}

// Lookup returns the depth at (x, y) and whether it is a valid measurement inside the map.
func (dm *DepthMap) Lookup(x, y int) (float64, bool) {
	d := dm.Get(x, y)
	if !IsValidDepth(d) {
		return 0, false
	}
	return d, true
}

// Valid reports whether (x, y) holds a measurement.
func (dm *DepthMap) Valid(x, y int) bool {
	_, ok := dm.Lookup(x, y)
	return ok
}

// Set stores d at (x, y). Writes outside the map are ignored.
func (dm *DepthMap) Set(x, y int, d float64) {
	if !dm.In(x, y) {
		return
	}
	dm.data[y*dm.width+x] = d
}

// Data returns the underlying row major buffer.
func (dm *DepthMap) Data() []float64 {
	return dm.data
}

// Clone returns a deep copy of the map.
func (dm *DepthMap) Clone() *DepthMap {
	return &DepthMap{
		width:  dm.width,
		height: dm.height,
		data:   append([]float64(nil), dm.data...),
	}
}

// Zero removes every measurement.
func (dm *DepthMap) Zero() {
	for i := range dm.data {
		dm.data[i] = 0
	}
}

// Resize changes the dimensions of the map and clears it.
func (dm *DepthMap) Resize(width, height int) {
	if width*height != len(dm.data) {
		dm.data = make([]float64, width*height)
	} else {
		dm.Zero()
	}
	dm.width, dm.height = width, height
}

// ValidCount returns the number of pixels with a measurement.
func (dm *DepthMap) ValidCount() int {
	n := 0
	for _, d := range dm.data {
		if IsValidDepth(d) {
			n++
		}
	}
	return n
}

// MinMax returns the smallest and largest valid depths. ok is false if the map has none.
func (dm *DepthMap) MinMax() (minDepth, maxDepth float64, ok bool) {
	minDepth, maxDepth = math.Inf(1), math.Inf(-1)
	for _, d := range dm.data {
		if !IsValidDepth(d) {
			continue
		}
		minDepth = math.Min(minDepth, d)
		maxDepth = math.Max(maxDepth, d)
		ok = true
	}
	if !ok {
		return 0, 0, false
	}
	return minDepth, maxDepth, true
}
