// pkg/canon/geometry.go
package canon

// Edge joins two vertex indexes of a CompiledGeometry.
type Edge [2]int

// CompiledGeometry is the renderable polyline of one origin. Colors has one tag per edge.
// Consumers must treat it as read-only.
type CompiledGeometry struct {
	Origin   Origin       `json:"origin"`
	Vertices []Point3     `json:"vertices"`
	Lines    []Edge       `json:"lines"`
	Colors   []MotionKind `json:"colors"`
}

// NumVertices returns the vertex count.
func (g *CompiledGeometry) NumVertices() int {
	if g == nil {
		return 0
	}
	return len(g.Vertices)
}

// NumEdges returns the edge count.
func (g *CompiledGeometry) NumEdges() int {
	if g == nil {
		return 0
	}
	return len(g.Lines)
}

// Equal compares two geometries element by element.
func (g *CompiledGeometry) Equal(o *CompiledGeometry) bool {
	if g == nil || o == nil {
		return g == o
	}
	if g.Origin != o.Origin ||
		len(g.Vertices) != len(o.Vertices) ||
		len(g.Lines) != len(o.Lines) ||
		len(g.Colors) != len(o.Colors) {
		return false
	}
	for i := range g.Vertices {
		if g.Vertices[i] != o.Vertices[i] {
			return false
		}
	}
	for i := range g.Lines {
		if g.Lines[i] != o.Lines[i] {
			return false
		}
	}
	for i := range g.Colors {
		if g.Colors[i] != o.Colors[i] {
			return false
		}
	}
	return true
}
