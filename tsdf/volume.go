// Package tsdf implements a truncated signed distance volume: a fixed cube of voxels that fuses
// depth observations into a surface model and renders it back by ray casting.
package tsdf

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/kinfu/utils"
)

// Voxel is a single cell of the volume. A zero Weight means the voxel has never been observed and
// its Distance carries no information.
type Voxel struct {
	Distance float32
	Weight   float32
}

// Observed reports whether the voxel holds any evidence.
func (v Voxel) Observed() bool {
	return v.Weight > 0
}

// Volume is a cube of Size^3 voxels of edge Unit meters centered on Center in world space.
// Voxel (i, j, k) is stored at index i + Size*(j + Size*k).
type Volume struct {
	size       int
	unit       float64
	center     r3.Vector
	truncation float64
	maxWeight  float32

	origin r3.Vector
	voxels []Voxel
}

// NewVolume allocates a zeroed volume. truncation is the half width of the distance band in meters
// and maxWeight bounds the evidence a single voxel accumulates.
func NewVolume(size int, unit float64, center r3.Vector, truncation, maxWeight float64) (*Volume, error) {
	if size <= 0 {
		return nil, errors.Errorf("volume size must be positive, got %d", size)
	}
	if !(unit > 0) || math.IsInf(unit, 0) {
		return nil, errors.Errorf("voxel unit must be positive, got %v", unit)
	}
	if !(truncation > 0) || math.IsInf(truncation, 0) {
		return nil, errors.Errorf("truncation must be positive, got %v", truncation)
	}
	if !(maxWeight >= 1) {
		return nil, errors.Errorf("max weight must be at least 1, got %v", maxWeight)
	}
	half := float64(size) * unit / 2
	return &Volume{
		size:       size,
		unit:       unit,
		center:     center,
		truncation: truncation,
		maxWeight:  float32(maxWeight),
		origin:     center.Sub(r3.Vector{X: half, Y: half, Z: half}),
		voxels:     make([]Voxel, size*size*size),
	}, nil
}

// Size returns the number of voxels along each axis.
func (vol *Volume) Size() int {
	return vol.size
}

// Unit returns the voxel edge length in meters.
func (vol *Volume) Unit() float64 {
	return vol.unit
}

// Center returns the world position of the volume center.
func (vol *Volume) Center() r3.Vector {
	return vol.center
}

// Truncation returns the half width of the distance band.
func (vol *Volume) Truncation() float64 {
	return vol.truncation
}

// MaxWeight returns the weight cap.
func (vol *Volume) MaxWeight() float64 {
	return float64(vol.maxWeight)
}

// Bounds returns the world space corners of the volume.
func (vol *Volume) Bounds() (r3.Vector, r3.Vector) {
	extent := float64(vol.size) * vol.unit
	return vol.origin, vol.origin.Add(r3.Vector{X: extent, Y: extent, Z: extent})
}

// Zero marks every voxel unobserved.
func (vol *Volume) Zero() {
	for i := range vol.voxels {
		vol.voxels[i] = Voxel{}
	}
}

// In reports whether (i, j, k) is a voxel of the volume.
func (vol *Volume) In(i, j, k int) bool {
	return i >= 0 && j >= 0 && k >= 0 && i < vol.size && j < vol.size && k < vol.size
}

func (vol *Volume) index(i, j, k int) int {
	return i + vol.size*(j+vol.size*k)
}

// At returns the voxel at (i, j, k). ok is false outside the volume.
func (vol *Volume) At(i, j, k int) (Voxel, bool) {
	if !vol.In(i, j, k) {
		return Voxel{}, false
	}
	return vol.voxels[vol.index(i, j, k)], true
}

// Set overwrites the voxel at (i, j, k), clamping it to the band and weight cap. Positions
// outside the volume are ignored.
func (vol *Volume) Set(i, j, k int, v Voxel) {
	if !vol.In(i, j, k) {
		return
	}
	trunc := float32(vol.truncation)
	v.Distance = utils.ClampFloat32(v.Distance, -trunc, trunc)
	v.Weight = utils.ClampFloat32(v.Weight, 0, vol.maxWeight)
	vol.voxels[vol.index(i, j, k)] = v
}

// ObservedCount returns the number of voxels with non-zero weight.
func (vol *Volume) ObservedCount() int {
	n := 0
	for _, v := range vol.voxels {
		if v.Observed() {
			n++
		}
	}
	return n
}

// VoxelCenter returns the world position of the center of voxel (i, j, k).
func (vol *Volume) VoxelCenter(i, j, k int) r3.Vector {
	return vol.origin.Add(r3.Vector{
		X: (float64(i) + 0.5) * vol.unit,
		Y: (float64(j) + 0.5) * vol.unit,
		Z: (float64(k) + 0.5) * vol.unit,
	})
}

// WorldToGrid returns continuous grid coordinates of p, where voxel centers sit on integers.
func (vol *Volume) WorldToGrid(p r3.Vector) r3.Vector {
	g := p.Sub(vol.origin).Mul(1 / vol.unit)
	return r3.Vector{X: g.X - 0.5, Y: g.Y - 0.5, Z: g.Z - 0.5}
}

// Interpolate returns the trilinear distance at world position p. ok is false unless all eight
// surrounding voxels are inside the volume and observed.
func (vol *Volume) Interpolate(p r3.Vector) (float64, bool) {
	g := vol.WorldToGrid(p)
	fx, fy, fz := math.Floor(g.X), math.Floor(g.Y), math.Floor(g.Z)
	i, j, k := int(fx), int(fy), int(fz)
	if !vol.In(i, j, k) || !vol.In(i+1, j+1, k+1) {
		return 0, false
	}
	tx, ty, tz := g.X-fx, g.Y-fy, g.Z-fz

	var d [8]float64
	for n := 0; n < 8; n++ {
		v := vol.voxels[vol.index(i+(n&1), j+((n>>1)&1), k+((n>>2)&1))]
		if !v.Observed() {
			return 0, false
		}
		d[n] = float64(v.Distance)
	}

	x00 := d[0]*(1-tx) + d[1]*tx
	x10 := d[2]*(1-tx) + d[3]*tx
	x01 := d[4]*(1-tx) + d[5]*tx
	x11 := d[6]*(1-tx) + d[7]*tx
	y0 := x00*(1-ty) + x10*ty
	y1 := x01*(1-ty) + x11*ty
	return y0*(1-tz) + y1*tz, true
}

// Gradient returns the central difference gradient of the distance field at p, one voxel unit
// apart along each axis. It points away from the surface, toward free space.
func (vol *Volume) Gradient(p r3.Vector) (r3.Vector, bool) {
	h := vol.unit
	var g [3]float64
	for axis, step := range []r3.Vector{{X: h}, {Y: h}, {Z: h}} {
		plus, ok := vol.Interpolate(p.Add(step))
		if !ok {
			return r3.Vector{}, false
		}
		minus, ok := vol.Interpolate(p.Sub(step))
		if !ok {
			return r3.Vector{}, false
		}
		g[axis] = (plus - minus) / (2 * h)
	}
	return r3.Vector{X: g[0], Y: g[1], Z: g[2]}, true
}
