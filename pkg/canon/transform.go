// pkg/canon/transform.go
package canon

import "math"

// Transform is the rigid placement applied to an origin's geometry at render time:
// a rotation about the vertical axis followed by a translation.
type Transform struct {
	Translate Point3  `json:"translate"`
	RotationZ float64 `json:"rotationZ"` // degrees
}

// Identity returns the transform that leaves points unchanged.
func Identity() Transform {
	return Transform{}
}

// Apply places p.
func (t Transform) Apply(p Point3) Point3 {
	x, y := p.X, p.Y
	if t.RotationZ != 0 {
		rad := t.RotationZ * math.Pi / 180.0
		cos, sin := math.Cos(rad), math.Sin(rad)
		x, y = p.X*cos-p.Y*sin, p.X*sin+p.Y*cos
	}
	return Point3{
		X: x + t.Translate.X,
		Y: y + t.Translate.Y,
		Z: p.Z + t.Translate.Z,
	}
}
