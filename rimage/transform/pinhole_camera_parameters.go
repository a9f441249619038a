package transform

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intriniscs are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrapf(ErrNoIntrinsics, msg)
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// PixelToPoint transforms a pixel with depth to a 3D point, ignoring lens distortion.
func (params *PinholeCameraIntrinsics) PixelToPoint(x, y, z float64) (float64, float64, float64) {
	if params == nil {
		return float64(0), float64(0), float64(0)
	}
	xOverZ := (x - params.Ppx) / params.Fx
	yOverZ := (y - params.Ppy) / params.Fy
	return xOverZ * z, yOverZ * z, z
}

// PinholeCameraModel is the model of a pinhole camera. Distortion may be nil for an ideal lens.
type PinholeCameraModel struct {
	*PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion               Distorter `json:"distortion"`
}

// NewPinholeCameraModel returns a camera model with the given intrinsics and distortion.
func NewPinholeCameraModel(intrinsics *PinholeCameraIntrinsics, distortion Distorter) *PinholeCameraModel {
	return &PinholeCameraModel{PinholeCameraIntrinsics: intrinsics, Distortion: distortion}
}

// DefaultCameraModel returns an ideal camera for a width x height image with focal length
// 0.8*(width+height) and the principal point at the image center.
func DefaultCameraModel(width, height int) *PinholeCameraModel {
	f := 0.8 * float64(width+height)
	return NewPinholeCameraModel(&PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     f,
		Fy:     f,
		Ppx:    float64(width-1) / 2,
		Ppy:    float64(height-1) / 2,
	}, nil)
}

// CheckValid checks the intrinsics and, when present, the distortion model.
func (params *PinholeCameraModel) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("camera model does not exist")
	}
	if err := params.PinholeCameraIntrinsics.CheckValid(); err != nil {
		return err
	}
	if params.Distortion != nil {
		return params.Distortion.CheckValid()
	}
	return nil
}

// Size returns the image resolution the model describes.
func (params *PinholeCameraModel) Size() (int, int) {
	return params.Width, params.Height
}

// PixelToNormalized removes the intrinsic matrix from a pixel.
func (params *PinholeCameraModel) PixelToNormalized(px r2.Point) r2.Point {
	return r2.Point{X: (px.X - params.Ppx) / params.Fx, Y: (px.Y - params.Ppy) / params.Fy}
}

// NormalizedToPixel applies the intrinsic matrix to a normalized point.
func (params *PinholeCameraModel) NormalizedToPixel(npx r2.Point) r2.Point {
	return r2.Point{X: npx.X*params.Fx + params.Ppx, Y: npx.Y*params.Fy + params.Ppy}
}

// Distort maps an ideal normalized point to where the lens images it.
func (params *PinholeCameraModel) Distort(npx r2.Point) r2.Point {
	if params.Distortion == nil {
		return npx
	}
	x, y := params.Distortion.Transform(npx.X, npx.Y)
	return r2.Point{X: x, Y: y}
}

// Undistort inverts Distort. Models that cannot be inverted are treated as ideal.
func (params *PinholeCameraModel) Undistort(npx r2.Point) r2.Point {
	inv, ok := params.Distortion.(InvertibleDistorter)
	if !ok || inv == nil {
		return npx
	}
	x, y := inv.Inverse().Transform(npx.X, npx.Y)
	return r2.Point{X: x, Y: y}
}

// Project maps a camera space point to its (distorted) pixel position. ok is false for points
// on or behind the image plane.
func (params *PinholeCameraModel) Project(p r3.Vector) (r2.Point, bool) {
	if p.Z <= 0 {
		return r2.Point{}, false
	}
	return params.NormalizedToPixel(params.Distort(r2.Point{X: p.X / p.Z, Y: p.Y / p.Z})), true
}

// Unproject returns the viewing ray through a pixel, scaled to unit depth (z == 1).
func (params *PinholeCameraModel) Unproject(px r2.Point) r3.Vector {
	npx := params.Undistort(params.PixelToNormalized(px))
	return r3.Vector{X: npx.X, Y: npx.Y, Z: 1}
}

// UnprojectDepth returns the camera space point seen at pixel px with depth z along the optical axis.
func (params *PinholeCameraModel) UnprojectDepth(px r2.Point, z float64) r3.Vector {
	if params.Distortion == nil {
		x, y, z := params.PixelToPoint(px.X, px.Y, z)
		return r3.Vector{X: x, Y: y, Z: z}
	}
	return params.Unproject(px).Mul(z)
}

// ProjectionJacobian returns the row major 2x6 derivative of the pixel position of camera
// space point p under a small motion p -> p + w x p + v, with respect to (w, v).
func (params *PinholeCameraModel) ProjectionJacobian(p r3.Vector) ([12]float64, bool) {
	var jacob [12]float64
	if p.Z <= 0 {
		return jacob, false
	}
	iz := 1 / p.Z
	npx := r2.Point{X: p.X * iz, Y: p.Y * iz}

	// pixel <- distorted normalized
	dist := [4]float64{1, 0, 0, 1}
	if bc, ok := params.Distortion.(*BrownConrady); ok && bc != nil {
		dist = bc.Jacobian(npx.X, npx.Y)
	}
	jPix := [4]float64{
		params.Fx * dist[0], params.Fx * dist[1],
		params.Fy * dist[2], params.Fy * dist[3],
	}

	// normalized <- point
	jNpx := [6]float64{
		iz, 0, -p.X * iz * iz,
		0, iz, -p.Y * iz * iz,
	}
	var jPoint [6]float64
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			jPoint[r*3+c] = jPix[r*2]*jNpx[c] + jPix[r*2+1]*jNpx[3+c]
		}
	}

	// point <- (w, v): d(w x p)/dw = -[p]x, d(v)/dv = I
	skew := [9]float64{
		0, p.Z, -p.Y,
		-p.Z, 0, p.X,
		p.Y, -p.X, 0,
	}
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			var s float64
			for k := 0; k < 3; k++ {
				s += jPoint[r*3+k] * skew[k*3+c]
			}
			jacob[r*6+c] = s
			jacob[r*6+3+c] = jPoint[r*3+c]
		}
	}
	return jacob, true
}

// Rescale returns the model for the image resized by (sx, sy). The size is rounded and the
// focal lengths and principal point are scaled.
func (params *PinholeCameraModel) Rescale(sx, sy float64) *PinholeCameraModel {
	in := *params.PinholeCameraIntrinsics
	in.Width = int(math.Round(float64(in.Width) * sx))
	in.Height = int(math.Round(float64(in.Height) * sy))
	in.Fx *= sx
	in.Fy *= sy
	in.Ppx *= sx
	in.Ppy *= sy
	return NewPinholeCameraModel(&in, params.Distortion)
}

// PyrDown returns the model for a half resolution pyramid level.
func (params *PinholeCameraModel) PyrDown() *PinholeCameraModel {
	return params.Rescale(0.5, 0.5)
}

type distortionJSON struct {
	Model      DistortionType `json:"model"`
	Parameters []float64      `json:"parameters"`
}

type pinholeCameraModelJSON struct {
	Intrinsics *PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion *distortionJSON          `json:"distortion,omitempty"`
}

// MarshalJSON writes the model with its distortion as {"model", "parameters"}.
func (params PinholeCameraModel) MarshalJSON() ([]byte, error) {
	out := pinholeCameraModelJSON{Intrinsics: params.PinholeCameraIntrinsics}
	if params.Distortion != nil {
		out.Distortion = &distortionJSON{Model: params.Distortion.ModelType(), Parameters: params.Distortion.Parameters()}
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the format written by MarshalJSON.
func (params *PinholeCameraModel) UnmarshalJSON(data []byte) error {
	var in pinholeCameraModelJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	params.PinholeCameraIntrinsics = in.Intrinsics
	params.Distortion = nil
	if in.Distortion != nil {
		d, err := NewDistorter(in.Distortion.Model, in.Distortion.Parameters)
		if err != nil {
			return err
		}
		params.Distortion = d
	}
	return nil
}

// NewPinholeCameraModelFromJSONFile reads a camera model written as
// {"intrinsic_parameters": {...}, "distortion": {"model": ..., "parameters": [...]}}.
func NewPinholeCameraModelFromJSONFile(jsonPath string) (*PinholeCameraModel, error) {
	//nolint:gosec
	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON data")
	}
	model := &PinholeCameraModel{}
	if err := json.Unmarshal(byteValue, model); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	if err := model.CheckValid(); err != nil {
		return nil, err
	}
	return model, nil
}
