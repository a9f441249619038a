package rimage

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"go.viam.com/kinfu/utils"
)

// ShadeNormals renders a point+normal map as a gray image lit from the camera. Invalid entries
// are black.
func ShadeNormals(pm *PointNormalMap) *image.NRGBA {
	img := imaging.New(pm.Width(), pm.Height(), color.NRGBA{A: 255})
	pm.Iterate(func(x, y int, pn PointNormal) bool {
		// normals face the camera, so -z is the cosine to the viewing axis
		g := uint8(math.Round(255 * utils.Clamp(-pn.Normal.Z, 0, 1)))
		img.SetNRGBA(x, y, color.NRGBA{R: g, G: g, B: g, A: 255})
		return true
	})
	return img
}

// ShadeNormalsScaled is ShadeNormals enlarged by an integer factor with nearest neighbour
// sampling.
func ShadeNormalsScaled(pm *PointNormalMap, factor int) *image.NRGBA {
	img := ShadeNormals(pm)
	if factor <= 1 {
		return img
	}
	return imaging.Resize(img, img.Bounds().Dx()*factor, img.Bounds().Dy()*factor, imaging.NearestNeighbor)
}
