package rimage

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"go.viam.com/kinfu/utils"
)

const (
	// rangeTableScale is the number of range table entries per sigma of depth difference.
	rangeTableScale = 10.0
	rangeTableSize  = 100
)

// GaussianKernel returns the (2r+1)x(2r+1) spatial kernel used by BilateralFilterDepth, with
// r = round(3*sigma). Entry [ky+r][kx+r] weighs offset (kx, ky).
func GaussianKernel(sigma float64) [][]float64 {
	radius := utils.RoundInt(3 * sigma)
	norm := 1.0 / (math.Sqrt(2*math.Pi) * sigma)
	kernel := make([][]float64, 2*radius+1)
	for ky := -radius; ky <= radius; ky++ {
		row := make([]float64, 2*radius+1)
		for kx := -radius; kx <= radius; kx++ {
			r2 := float64(kx*kx + ky*ky)
			row[kx+radius] = norm * math.Exp(-r2/(2*sigma*sigma))
		}
		kernel[ky+radius] = row
	}
	return kernel
}

// rangeTable holds exp(-(i/scale)^2/2), covering depth differences up to 10 sigma.
func rangeTable() []float64 {
	table := make([]float64, rangeTableSize)
	for i := range table {
		r := float64(i) / rangeTableScale
		table[i] = math.Exp(-r * r / 2)
	}
	return table
}

// BilateralFilterDepth returns an edge preserving smoothing of src. sigmaSpatial is in pixels
// and sigmaRange in meters.
func BilateralFilterDepth(ctx context.Context, src *DepthMap, sigmaSpatial, sigmaRange float64) (*DepthMap, error) {
	dst := NewEmptyDepthMap(src.Width(), src.Height())
	if err := BilateralFilterDepthInto(ctx, dst, src, sigmaSpatial, sigmaRange); err != nil {
		return nil, err
	}
	return dst, nil
}

// BilateralFilterDepthInto writes the bilateral filtered src into dst, resizing dst to match.
// dst and src may be the same map. Pixels without a measurement stay empty and neighbours
// without a measurement do not contribute.
func BilateralFilterDepthInto(ctx context.Context, dst, src *DepthMap, sigmaSpatial, sigmaRange float64) error {
	if sigmaSpatial <= 0 || sigmaRange <= 0 {
		return errors.Errorf("bilateral sigmas must be positive, got spatial %v range %v", sigmaSpatial, sigmaRange)
	}
	if dst == src {
		src = src.Clone()
	}
	dst.Resize(src.Width(), src.Height())

	kernel := GaussianKernel(sigmaSpatial)
	radius := len(kernel) / 2
	table := rangeTable()
	width := src.Width()

	return utils.ParallelForEachRow(ctx, src.Height(), func(v int) {
		for u := 0; u < width; u++ {
			base, ok := src.Lookup(u, v)
			if !ok {
				continue
			}

			var sum, div float64
			for ky := -radius; ky <= radius; ky++ {
				for kx := -radius; kx <= radius; kx++ {
					val, ok := src.Lookup(u+kx, v+ky)
					if !ok {
						continue
					}
					idx := utils.RoundInt(rangeTableScale * math.Abs(val-base) / sigmaRange)
					if idx >= len(table) {
						continue
					}
					w := kernel[ky+radius][kx+radius] * table[idx]
					sum += w * val
					div += w
				}
			}
			if div > 0 {
				dst.data[v*width+u] = sum / div
			}
		}
	})
}

var pyrKernel = [3][3]float64{
	{1, 2, 1},
	{2, 4, 2},
	{1, 2, 1},
}

// PyrDownDepth returns src at half resolution, (w+1)/2 x (h+1)/2. Each output pixel is the
// [1 2 1] weighted mean of the valid samples around its source pixel (2u, 2v) and is left
// empty when that source pixel has no measurement.
func PyrDownDepth(src *DepthMap) *DepthMap {
	dst := NewEmptyDepthMap((src.Width()+1)/2, (src.Height()+1)/2)
	for v := 0; v < dst.Height(); v++ {
		for u := 0; u < dst.Width(); u++ {
			su, sv := 2*u, 2*v
			if !src.Valid(su, sv) {
				continue
			}

			var sum, div float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					val, ok := src.Lookup(su+kx, sv+ky)
					if !ok {
						continue
					}
					k := pyrKernel[ky+1][kx+1]
					sum += k * val
					div += k
				}
			}
			if div > 0 {
				dst.Set(u, v, sum/div)
			}
		}
	}
	return dst
}
