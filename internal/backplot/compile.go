package backplot

import "github.com/backplot/backplot/pkg/canon"

// Compile builds the polyline of one origin. Segment k contributes its start point
// as vertex k and colors edge (k, k+1); the last end point closes the line.
// It returns nil for an empty list.
func Compile(origin canon.Origin, segments []canon.Segment) *canon.CompiledGeometry {
	if len(segments) == 0 {
		return nil
	}
	g := &canon.CompiledGeometry{
		Origin:   origin,
		Vertices: make([]canon.Point3, 0, len(segments)+1),
		Lines:    make([]canon.Edge, 0, len(segments)),
		Colors:   make([]canon.MotionKind, 0, len(segments)),
	}
	for i, seg := range segments {
		g.Vertices = append(g.Vertices, seg.Start.XYZ())
		if i > 0 {
			g.Lines = append(g.Lines, canon.Edge{i - 1, i})
		}
		g.Colors = append(g.Colors, seg.Kind)
	}
	last := len(segments)
	g.Vertices = append(g.Vertices, segments[last-1].End.XYZ())
	g.Lines = append(g.Lines, canon.Edge{last - 1, last})
	return g
}

// CompileAll compiles every origin with pending segments in first-seen order and
// empties the consumed lists. Origins without segments keep their entry but yield
// no geometry.
func (a *Accumulator) CompileAll() []*canon.CompiledGeometry {
	var out []*canon.CompiledGeometry
	for _, origin := range a.registry.Origins() {
		if g := Compile(origin, a.registry.Take(origin)); g != nil {
			out = append(out, g)
		}
	}
	return out
}
