// Package convert maps plot types to GORM models and back.
package convert

import (
	"database/sql"
	"encoding/json"

	"github.com/backplot/backplot/internal/geo"
	"github.com/backplot/backplot/internal/livetrace"
	"github.com/backplot/backplot/internal/model"
	"github.com/backplot/backplot/internal/program"
	"github.com/backplot/backplot/pkg/canon"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// toJSON marshals v for a JSON column, falling back to empty.
func toJSON(v any, empty string) datatypes.JSON {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return datatypes.JSON(empty)
	}
	return datatypes.JSON(data)
}

// tipToPoint converts a tool tip to an XY point; Z is stored separately
func tipToPoint(p canon.Point3) geom.Point {
	return geom.NewPoint(geom.Coordinates{XY: geom.XY{X: p.X, Y: p.Y}})
}

// ProgramToGorm converts a program description. stats is stored as JSON.
func ProgramToGorm(p *program.Info, stats any) model.Program {
	return model.Program{
		Name:       p.Name,
		Path:       p.Path,
		Units:      p.Units,
		LoadedAt:   p.LoadedAt,
		DurationMs: float64(p.Duration.Microseconds()) / 1000,
		Status:     p.Status,
		StatusText: p.StatusText,
		Line:       p.Line,
		Recorded:   p.Recorded,
		Suppressed: p.Suppressed,
		Stats:      toJSON(stats, "{}"),
		EndedAt:    sql.NullTime{},
	}
}

// GeometryToGorm converts compiled geometry placed by t.
func GeometryToGorm(g *canon.CompiledGeometry, t canon.Transform) model.OriginGeometry {
	colors := make([]string, len(g.Colors))
	for i, k := range g.Colors {
		colors[i] = k.String()
	}

	path := geo.MultiLineString(g, t).AsGeometry()
	out := model.OriginGeometry{
		Origin:      g.Origin.String(),
		OriginCode:  int(g.Origin),
		Vertices:    toJSON(geo.Polyline(g.Vertices), "[]"),
		Lines:       toJSON(g.Lines, "[]"),
		Colors:      toJSON(colors, "[]"),
		Transform:   toJSON(t, "{}"),
		Path:        path,
		NumVertices: g.NumVertices(),
		NumEdges:    g.NumEdges(),
		Length:      geo.Length(path),
	}
	if min, max, err := geo.Bounds(path); err == nil {
		out.MinX, out.MinY, out.MinZ = min.X, min.Y, min.Z
		out.MaxX, out.MaxY, out.MaxZ = max.X, max.Y, max.Z
	}
	return out
}

// SampleToGorm converts a live trace sample.
func SampleToGorm(s livetrace.Sample) model.TraceSample {
	return model.TraceSample{
		Time:     s.Time,
		Seq:      s.Seq,
		Tool:     s.Tool,
		Position: tipToPoint(s.Tip),
		Z:        s.Tip.Z,
	}
}
