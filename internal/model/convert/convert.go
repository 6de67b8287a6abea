package convert

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/backplot/backplot/internal/geo"
	"github.com/backplot/backplot/internal/livetrace"
	"github.com/backplot/backplot/internal/model"
	"github.com/backplot/backplot/internal/program"
	"github.com/backplot/backplot/pkg/canon"
	geom "github.com/peterstace/simplefeatures/geom"
)

// pointToTip converts a stored XY point and elevation to a tool tip
func pointToTip(p geom.Point, z float64) canon.Point3 {
	coord, ok := p.Coordinates()
	if !ok {
		return canon.Point3{Z: z}
	}
	return canon.Point3{X: coord.XY.X, Y: coord.XY.Y, Z: z}
}

// ProgramToInfo converts a GORM Program to a program description.
func ProgramToInfo(p model.Program) *program.Info {
	return &program.Info{
		ID:         p.ID,
		Name:       p.Name,
		Path:       p.Path,
		Units:      p.Units,
		LoadedAt:   p.LoadedAt,
		Duration:   time.Duration(p.DurationMs * float64(time.Millisecond)),
		Status:     p.Status,
		StatusText: p.StatusText,
		Line:       p.Line,
		Recorded:   p.Recorded,
		Suppressed: p.Suppressed,
	}
}

// GeometryToCanon rebuilds compiled geometry and its placement from the stored
// render arrays.
func GeometryToCanon(g model.OriginGeometry) (*canon.CompiledGeometry, canon.Transform, error) {
	out := &canon.CompiledGeometry{Origin: canon.Origin(g.OriginCode)}
	var tr canon.Transform

	if len(g.Vertices) > 0 {
		vertices, err := geo.ParsePolyline(g.Vertices)
		if err != nil {
			return nil, tr, fmt.Errorf("origin %s vertices: %w", g.Origin, err)
		}
		out.Vertices = vertices
	}
	if len(g.Lines) > 0 {
		if err := json.Unmarshal(g.Lines, &out.Lines); err != nil {
			return nil, tr, fmt.Errorf("origin %s lines: %w", g.Origin, err)
		}
	}
	if len(g.Colors) > 0 {
		if err := json.Unmarshal(g.Colors, &out.Colors); err != nil {
			return nil, tr, fmt.Errorf("origin %s colors: %w", g.Origin, err)
		}
	}
	if len(g.Transform) > 0 {
		if err := json.Unmarshal(g.Transform, &tr); err != nil {
			return nil, tr, fmt.Errorf("origin %s transform: %w", g.Origin, err)
		}
	}
	return out, tr, nil
}

// SampleToCore converts a GORM TraceSample to a live trace sample.
func SampleToCore(s model.TraceSample) livetrace.Sample {
	return livetrace.Sample{
		Time: s.Time,
		Seq:  s.Seq,
		Tool: s.Tool,
		Tip:  pointToTip(s.Position, s.Z),
	}
}
