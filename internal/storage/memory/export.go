package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/backplot/backplot/internal/geo"
	"github.com/backplot/backplot/pkg/canon"
)

// ExportVersion is written to every plot file.
const ExportVersion = 1

// PlotExport is the root JSON structure
type PlotExport struct {
	Version    int           `json:"version"`
	Program    string        `json:"program"`
	Path       string        `json:"path"`
	Units      string        `json:"units"`
	LoadedAt   time.Time     `json:"loadedAt"`
	Status     int           `json:"status"`
	StatusText string        `json:"statusText"`
	Line       int           `json:"line"`
	Palette    canon.Palette `json:"palette"`
	Origins    []OriginJSON  `json:"origins"`
	Trace      TraceJSON     `json:"trace"`
}

// OriginJSON is the geometry of one origin
type OriginJSON struct {
	Origin    string             `json:"origin"`
	Code      int                `json:"code"`
	Placement canon.Transform    `json:"placement"`
	Vertices  [][3]float64       `json:"vertices"`
	Lines     []canon.Edge       `json:"lines"`
	Colors    []canon.MotionKind `json:"colors"`
	RGBA      []canon.Color      `json:"rgba"`
	WKT       string             `json:"wkt"`
	Min       *canon.Point3      `json:"min,omitempty"`
	Max       *canon.Point3      `json:"max,omitempty"`
}

// TraceJSON is the sampled tool path. Polyline is readable by geo.ParsePolyline.
type TraceJSON struct {
	Polyline [][3]float64 `json:"polyline"`
	Tools    []int        `json:"tools"`
	Times    []time.Time  `json:"times"`
}

// exportFileName sanitizes the program name for the file system
func exportFileName(name string, at time.Time, compress bool) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case ' ', ':', '/', '\\':
			return '_'
		}
		return r
	}, name)
	if name == "" {
		name = "program"
	}
	ext := ".json"
	if compress {
		ext = ".json.gz"
	}
	return fmt.Sprintf("%s_%s%s", name, at.Format("20060102_150405"), ext)
}

// exportJSON writes the program data to a (gzipped) JSON file
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	filename := exportFileName(b.program.Name, b.program.LoadedAt, b.cfg.CompressOutput)
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	write := b.writeJSON
	if b.cfg.CompressOutput {
		write = b.writeGzipJSON
	}
	if err := write(outputPath, export); err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() PlotExport {
	palette := b.program.Palette
	if palette == nil {
		palette = canon.DefaultPalette()
	}
	export := PlotExport{
		Version:    ExportVersion,
		Program:    b.program.Name,
		Path:       b.program.Path,
		Units:      b.program.Units,
		LoadedAt:   b.program.LoadedAt,
		Status:     b.program.Status,
		StatusText: b.program.StatusText,
		Line:       b.program.Line,
		Palette:    palette,
		Origins:    make([]OriginJSON, 0, len(b.geometries)),
		Trace: TraceJSON{
			Polyline: make([][3]float64, 0, len(b.trace)),
			Tools:    make([]int, 0, len(b.trace)),
			Times:    make([]time.Time, 0, len(b.trace)),
		},
	}

	for _, rec := range b.geometries {
		g := rec.Geometry
		path := geo.MultiLineString(&g, rec.Placement).AsGeometry()
		o := OriginJSON{
			Origin:    g.Origin.String(),
			Code:      int(g.Origin),
			Placement: rec.Placement,
			Vertices:  geo.Polyline(g.Vertices),
			Lines:     g.Lines,
			Colors:    g.Colors,
			RGBA:      palette.Colorize(&g),
			WKT:       geo.WKT(path),
		}
		if min, max, err := geo.Bounds(path); err == nil {
			o.Min, o.Max = &min, &max
		}
		export.Origins = append(export.Origins, o)
	}

	for _, s := range b.trace {
		export.Trace.Polyline = append(export.Trace.Polyline, [3]float64{s.Tip.X, s.Tip.Y, s.Tip.Z})
		export.Trace.Tools = append(export.Trace.Tools, s.Tool)
		export.Trace.Times = append(export.Trace.Times, s.Time)
	}

	return export
}

func (b *Backend) writeJSON(path string, data PlotExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func (b *Backend) writeGzipJSON(path string, data PlotExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}

// ReadExport loads a plot file written by EndProgram, gzipped or not.
func ReadExport(path string) (*PlotExport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var dec *json.Decoder
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		dec = json.NewDecoder(gz)
	} else {
		dec = json.NewDecoder(f)
	}

	var out PlotExport
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode plot export: %w", err)
	}
	return &out, nil
}
