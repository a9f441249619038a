package spatialmath

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose represents a rigid transform x -> R x + t, expressed as the translation t and the
// orientation R.
type Pose interface {
	Point() r3.Vector
	Orientation() Orientation
}

type basicPose struct {
	point       r3.Vector
	orientation quat.Number
}

// NewZeroPose returns the identity pose.
func NewZeroPose() Pose {
	return &basicPose{orientation: quat.Number{Real: 1}}
}

// NewPose returns a pose with the given translation and orientation.
func NewPose(p r3.Vector, o Orientation) Pose {
	if o == nil {
		return NewPoseFromPoint(p)
	}
	return &basicPose{point: p, orientation: Normalize(o.Quaternion())}
}

// NewPoseFromPoint returns a pure translation.
func NewPoseFromPoint(p r3.Vector) Pose {
	return &basicPose{point: p, orientation: quat.Number{Real: 1}}
}

// NewPoseFromOrientation returns a pure rotation.
func NewPoseFromOrientation(o Orientation) Pose {
	return NewPose(r3.Vector{}, o)
}

// NewPoseFromTwist returns the pose x -> exp([w]x) x + v for the 6-vector (w, v), where w is a
// rotation vector in radians. To first order it moves x by w cross x + v.
func NewPoseFromTwist(twist []float64) Pose {
	w := r3.Vector{X: twist[0], Y: twist[1], Z: twist[2]}
	v := r3.Vector{X: twist[3], Y: twist[4], Z: twist[5]}
	return &basicPose{point: v, orientation: R3ToR4(w).ToQuat()}
}

func (p *basicPose) Point() r3.Vector {
	return p.point
}

func (p *basicPose) Orientation() Orientation {
	q := quaternion(p.orientation)
	return &q
}

func (p *basicPose) String() string {
	aa := QuatToR4AA(p.orientation)
	return fmt.Sprintf("{X:%.6f Y:%.6f Z:%.6f Theta:%.6f RX:%.4f RY:%.4f RZ:%.4f}",
		p.point.X, p.point.Y, p.point.Z, aa.Theta, aa.RX, aa.RY, aa.RZ)
}

// Compose returns the pose a∘b, which applies b first and then a.
func Compose(a, b Pose) Pose {
	qa := a.Orientation().Quaternion()
	qb := b.Orientation().Quaternion()
	return &basicPose{
		point:       RotateVector(qa, b.Point()).Add(a.Point()),
		orientation: Normalize(quat.Mul(qa, qb)),
	}
}

// PoseInverse returns the pose that undoes p.
func PoseInverse(p Pose) Pose {
	qInv := quat.Conj(p.Orientation().Quaternion())
	return &basicPose{
		point:       RotateVector(qInv, p.Point()).Mul(-1),
		orientation: qInv,
	}
}

// PoseBetween returns the pose d such that Compose(a, d) == b.
func PoseBetween(a, b Pose) Pose {
	return Compose(PoseInverse(a), b)
}

// PoseDelta returns the pose d such that Compose(d, a) == b, the change from a to b measured in
// the frame b maps into.
func PoseDelta(a, b Pose) Pose {
	return Compose(b, PoseInverse(a))
}

// TransformPoint applies p to the point v.
func TransformPoint(p Pose, v r3.Vector) r3.Vector {
	return RotateVector(p.Orientation().Quaternion(), v).Add(p.Point())
}

// RotatePoint applies only the rotation of p to the direction v.
func RotatePoint(p Pose, v r3.Vector) r3.Vector {
	return RotateVector(p.Orientation().Quaternion(), v)
}

// PoseAlmostEqual returns whether the two poses are within 1e-8 in translation and orientation.
func PoseAlmostEqual(a, b Pose) bool {
	return PoseAlmostEqualEps(a, b, 1e-8)
}

// PoseAlmostEqualEps returns whether the two poses differ by at most eps in translation and at
// most eps radians in rotation.
func PoseAlmostEqualEps(a, b Pose, eps float64) bool {
	return a.Point().Sub(b.Point()).Norm() <= eps && OrientationAlmostEqualEps(a.Orientation(), b.Orientation(), eps)
}

// PoseAlmostCoincident returns whether the two poses are within 1e-6 of each other.
func PoseAlmostCoincident(a, b Pose) bool {
	return PoseAlmostEqualEps(a, b, 1e-6)
}

// PoseMagnitude returns the translation length and rotation angle of p.
func PoseMagnitude(p Pose) (translation, rotation float64) {
	return p.Point().Norm(), math.Abs(p.Orientation().AxisAngles().Theta)
}

// PoseToMat4 returns p as a homogeneous 4x4 matrix.
func PoseToMat4(p Pose) mgl64.Mat4 {
	q := p.Orientation().Quaternion()
	rot := mgl64.Quat{W: q.Real, V: mgl64.Vec3{q.Imag, q.Jmag, q.Kmag}}.Mat4()
	pt := p.Point()
	return mgl64.Translate3D(pt.X, pt.Y, pt.Z).Mul4(rot)
}

// NewPoseFromMat4 returns the rigid transform held in the upper 3x4 block of m.
func NewPoseFromMat4(m mgl64.Mat4) Pose {
	q := mgl64.Mat4ToQuat(m)
	col := m.Col(3)
	return &basicPose{
		point:       r3.Vector{X: col[0], Y: col[1], Z: col[2]},
		orientation: Normalize(quat.Number{Real: q.W, Imag: q.V[0], Jmag: q.V[1], Kmag: q.V[2]}),
	}
}
