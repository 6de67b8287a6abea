// pkg/canon/position.go
package canon

// NumAxes is the number of axis values carried by every canonical position.
const NumAxes = 9

// Axis indexes into a Position.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
	AxisA
	AxisB
	AxisC
	AxisU
	AxisV
	AxisW
)

var axisLetters = [NumAxes]string{"X", "Y", "Z", "A", "B", "C", "U", "V", "W"}

func (a Axis) String() string {
	if a < 0 || int(a) >= NumAxes {
		return "?"
	}
	return axisLetters[a]
}

// Position holds the nine axis values of a canonical point in X,Y,Z,A,B,C,U,V,W order.
type Position [NumAxes]float64

// Point3 is a vertex in display space
type Point3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// XYZ projects the position onto its linear axes.
func (p Position) XYZ() Point3 {
	return Point3{X: p[AxisX], Y: p[AxisY], Z: p[AxisZ]}
}

// Scale multiplies every axis value by f.
func (p Position) Scale(f float64) Position {
	var out Position
	for i, v := range p {
		out[i] = v * f
	}
	return out
}

// Add returns the axis-wise sum of p and o.
func (p Position) Add(o Position) Position {
	var out Position
	for i := range p {
		out[i] = p[i] + o[i]
	}
	return out
}

// PositionFrom builds a Position from up to NumAxes values. Missing axes are zero.
func PositionFrom(values ...float64) Position {
	var p Position
	copy(p[:], values)
	return p
}

// Sub returns a - b.
func (a Point3) Sub(b Point3) Point3 {
	return Point3{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z}
}

// Add returns a + b.
func (a Point3) Add(b Point3) Point3 {
	return Point3{X: a.X + b.X, Y: a.Y + b.Y, Z: a.Z + b.Z}
}

// ToolOffset holds the tool length offsets for all nine axes.
type ToolOffset struct {
	Tool   int      `json:"tool"`
	Offset Position `json:"offset"`
}

// TipFrom derives the tool-tip location from a spindle position.
func (t ToolOffset) TipFrom(spindle Position) Point3 {
	return spindle.XYZ().Sub(t.Offset.XYZ())
}
