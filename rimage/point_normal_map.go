package rimage

import (
	"github.com/golang/geo/r3"
)

// PointNormal is a camera space position with its unit surface normal.
type PointNormal struct {
	Point  r3.Vector
	Normal r3.Vector
}

// PointNormalMap is a dense, row major grid of optional PointNormal entries.
type PointNormalMap struct {
	width  int
	height int

	data  []PointNormal
	valid []bool
}

// NewPointNormalMap returns a map of the given size with every entry invalid.
func NewPointNormalMap(width, height int) *PointNormalMap {
	return &PointNormalMap{
		width:  width,
		height: height,
		data:   make([]PointNormal, width*height),
		valid:  make([]bool, width*height),
	}
}

// Width returns the width of the map.
func (pm *PointNormalMap) Width() int {
	return pm.width
}

// Height returns the height of the map.
func (pm *PointNormalMap) Height() int {
	return pm.height
}

// In reports whether (x, y) is inside the map.
func (pm *PointNormalMap) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < pm.width && y < pm.height
}

// At returns the entry at (x, y) and whether it is valid. Positions outside the map are invalid.
func (pm *PointNormalMap) At(x, y int) (PointNormal, bool) {
	if !pm.In(x, y) {
		return PointNormal{}, false
	}
	i := y*pm.width + x
	return pm.data[i], pm.valid[i]
}

// Set stores a valid entry at (x, y).
func (pm *PointNormalMap) Set(x, y int, pn PointNormal) {
	if !pm.In(x, y) {
		return
	}
	i := y*pm.width + x
	pm.data[i] = pn
	pm.valid[i] = true
}

// Invalidate marks (x, y) as having no entry.
func (pm *PointNormalMap) Invalidate(x, y int) {
	if !pm.In(x, y) {
		return
	}
	i := y*pm.width + x
	pm.data[i] = PointNormal{}
	pm.valid[i] = false
}

// ValidCount returns the number of valid entries.
func (pm *PointNormalMap) ValidCount() int {
	n := 0
	for _, v := range pm.valid {
		if v {
			n++
		}
	}
	return n
}

// Iterate calls fn for every valid entry in row major order until fn returns false.
func (pm *PointNormalMap) Iterate(fn func(x, y int, pn PointNormal) bool) {
	for i, v := range pm.valid {
		if !v {
			continue
		}
		if !fn(i%pm.width, i/pm.width, pm.data[i]) {
			return
		}
	}
}

// Clone returns a deep copy of the map.
func (pm *PointNormalMap) Clone() *PointNormalMap {
	return &PointNormalMap{
		width:  pm.width,
		height: pm.height,
		data:   append([]PointNormal(nil), pm.data...),
		valid:  append([]bool(nil), pm.valid...),
	}
}

// PointMap is a dense, row major grid of optional camera space points.
type PointMap struct {
	width  int
	height int

	data  []r3.Vector
	valid []bool
}

// NewPointMap returns a map of the given size with every entry invalid.
func NewPointMap(width, height int) *PointMap {
	return &PointMap{
		width:  width,
		height: height,
		data:   make([]r3.Vector, width*height),
		valid:  make([]bool, width*height),
	}
}

// Width returns the width of the map.
func (pm *PointMap) Width() int {
	return pm.width
}

// Height returns the height of the map.
func (pm *PointMap) Height() int {
	return pm.height
}

// In reports whether (x, y) is inside the map.
func (pm *PointMap) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < pm.width && y < pm.height
}

// At returns the point at (x, y) and whether it is valid.
func (pm *PointMap) At(x, y int) (r3.Vector, bool) {
	if !pm.In(x, y) {
		return r3.Vector{}, false
	}
	i := y*pm.width + x
	return pm.data[i], pm.valid[i]
}

// Set stores a valid point at (x, y).
func (pm *PointMap) Set(x, y int, p r3.Vector) {
	if !pm.In(x, y) {
		return
	}
	i := y*pm.width + x
	pm.data[i] = p
	pm.valid[i] = true
}

// ValidCount returns the number of valid entries.
func (pm *PointMap) ValidCount() int {
	n := 0
	for _, v := range pm.valid {
		if v {
			n++
		}
	}
	return n
}
