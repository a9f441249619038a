package pointcloud

import (
	"image/color"

	"github.com/golang/geo/r3"
)

// Data is the data associated with a single point.
type Data interface {
	// HasColor returns whether the data has color information.
	HasColor() bool
	// RGB255 returns the color as 8-bit channels.
	RGB255() (uint8, uint8, uint8)
	// SetColor sets the color.
	SetColor(c color.NRGBA) Data

	// HasNormal returns whether the data has a surface normal.
	HasNormal() bool
	// Normal returns the unit surface normal, if any.
	Normal() r3.Vector
	// SetNormal sets the surface normal.
	SetNormal(n r3.Vector) Data
}

type basicData struct {
	hasColor bool
	c        color.NRGBA

	hasNormal bool
	normal    r3.Vector
}

// NewBasicData returns data with nothing set.
func NewBasicData() Data {
	return &basicData{}
}

// NewColoredData returns data with only a color.
func NewColoredData(c color.NRGBA) Data {
	return &basicData{hasColor: true, c: c}
}

// NewNormalData returns data with only a surface normal.
func NewNormalData(n r3.Vector) Data {
	return &basicData{hasNormal: true, normal: n}
}

func (bd *basicData) HasColor() bool {
	return bd.hasColor
}

func (bd *basicData) RGB255() (uint8, uint8, uint8) {
	return bd.c.R, bd.c.G, bd.c.B
}

func (bd *basicData) SetColor(c color.NRGBA) Data {
	bd.hasColor = true
	bd.c = c
	return bd
}

func (bd *basicData) HasNormal() bool {
	return bd.hasNormal
}

func (bd *basicData) Normal() r3.Vector {
	return bd.normal
}

func (bd *basicData) SetNormal(n r3.Vector) Data {
	bd.hasNormal = true
	bd.normal = n
	return bd
}
