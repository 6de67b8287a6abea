// Package geo converts plotted tool paths to simple features geometry for
// archiving and WKT export. All geometry is XYZ in display units.
package geo

import (
	"errors"
	"strconv"
	"strings"

	"github.com/backplot/backplot/pkg/canon"
	geom "github.com/peterstace/simplefeatures/geom"
)

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// ErrEmpty is returned when a bounding box is requested for empty geometry.
var ErrEmpty = errors.New("empty geometry")

// Run is a stretch of consecutive edges sharing one motion kind.
type Run struct {
	Kind   canon.MotionKind
	Points []canon.Point3
}

// Point converts a display-space vertex.
func Point(p canon.Point3) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: p.X, Y: p.Y},
		Z:    p.Z,
		Type: geom.DimXYZ,
	})
}

// PointFromString parses "x,y" or "x,y,z".
func PointFromString(coords string) (canon.Point3, error) {
	parts := strings.Split(coords, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return canon.Point3{}, ErrInvalidCoordinates
	}
	var v [3]float64
	for i, s := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return canon.Point3{}, ErrInvalidCoordinates
		}
		v[i] = f
	}
	return canon.Point3{X: v[0], Y: v[1], Z: v[2]}, nil
}

// LineString builds an XYZ line string. Fewer than two points yield an empty one.
func LineString(points []canon.Point3) geom.LineString {
	if len(points) < 2 {
		return geom.LineString{}.ForceCoordinatesType(geom.DimXYZ)
	}
	coords := make([]float64, 0, len(points)*3)
	for _, p := range points {
		coords = append(coords, p.X, p.Y, p.Z)
	}
	return geom.NewLineString(geom.NewSequence(coords, geom.DimXYZ))
}

// Runs splits g into polylines at motion kind changes, with t applied to every
// vertex. Zero-length edges are dropped.
func Runs(g *canon.CompiledGeometry, t canon.Transform) []Run {
	if g.NumEdges() == 0 {
		return nil
	}
	var runs []Run
	var cur *Run
	lastEnd := -1
	for i, e := range g.Lines {
		kind := canon.Traverse
		if i < len(g.Colors) {
			kind = g.Colors[i]
		}
		a, b := t.Apply(g.Vertices[e[0]]), t.Apply(g.Vertices[e[1]])
		if a == b {
			continue
		}
		if cur == nil || cur.Kind != kind || lastEnd != e[0] {
			runs = append(runs, Run{Kind: kind, Points: []canon.Point3{a}})
			cur = &runs[len(runs)-1]
		}
		cur.Points = append(cur.Points, b)
		lastEnd = e[1]
	}
	return runs
}

// MultiLineString converts compiled geometry, placed by t, to one line string per run.
func MultiLineString(g *canon.CompiledGeometry, t canon.Transform) geom.MultiLineString {
	runs := Runs(g, t)
	lss := make([]geom.LineString, 0, len(runs))
	for _, r := range runs {
		lss = append(lss, LineString(r.Points))
	}
	return geom.NewMultiLineString(lss).ForceCoordinatesType(geom.DimXYZ)
}

// Trace converts live trace points to a line string.
func Trace(points []canon.Point3) geom.LineString {
	return LineString(points)
}

// WKT renders g as well-known text.
func WKT(g geom.Geometry) string {
	return g.AsText()
}

// Bounds returns the 3D bounding box of g.
func Bounds(g geom.Geometry) (min, max canon.Point3, err error) {
	env := g.Envelope()
	if env.IsEmpty() {
		return min, max, ErrEmpty
	}
	lo, _ := env.Min().XY()
	hi, _ := env.Max().XY()
	min = canon.Point3{X: lo.X, Y: lo.Y}
	max = canon.Point3{X: hi.X, Y: hi.Y}

	first := true
	eachSequence(g, func(seq geom.Sequence) {
		for i := 0; i < seq.Length(); i++ {
			z := seq.Get(i).Z
			if first || z < min.Z {
				min.Z = z
			}
			if first || z > max.Z {
				max.Z = z
			}
			first = false
		}
	})
	return min, max, nil
}

// Length returns the XY length of g.
func Length(g geom.Geometry) float64 {
	return g.Length()
}

func eachSequence(g geom.Geometry, fn func(geom.Sequence)) {
	switch {
	case g.IsLineString():
		fn(g.MustAsLineString().Coordinates())
	case g.IsMultiLineString():
		mls := g.MustAsMultiLineString()
		for i := 0; i < mls.NumLineStrings(); i++ {
			fn(mls.LineStringN(i).Coordinates())
		}
	case g.IsPoint():
		if c, ok := g.MustAsPoint().Coordinates(); ok {
			fn(geom.NewSequence([]float64{c.X, c.Y, c.Z}, geom.DimXYZ))
		}
	}
}
