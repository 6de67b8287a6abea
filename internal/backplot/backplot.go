// Package backplot turns the canonical motion of a program into per-origin line
// geometry and keeps the live tool trace and offset placement alongside it.
package backplot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/backplot/backplot/internal/interp"
	"github.com/backplot/backplot/internal/livetrace"
	"github.com/backplot/backplot/internal/offsets"
	"github.com/backplot/backplot/internal/ordered"
	"github.com/backplot/backplot/internal/units"
	"github.com/backplot/backplot/pkg/canon"
)

// Settings is the fixed configuration of a session.
type Settings struct {
	// Units is the display unit.
	Units units.Mode
	// InterpreterUnits is the unit the interpreter reports canonical motion in.
	InterpreterUnits units.Mode
	// ParameterFile is the machine variable file, copied before every parse.
	ParameterFile string
	StartupCode   string
	Palette       canon.Palette
}

// DefaultSettings returns metric display of an inch-native interpreter.
func DefaultSettings() Settings {
	return Settings{
		Units:            units.Metric,
		InterpreterUnits: units.Imperial,
		Palette:          canon.DefaultPalette(),
	}
}

// LoadResult describes one Reload.
type LoadResult struct {
	Program  string        `json:"program"`
	Result   interp.Result `json:"result"`
	Stats    Stats         `json:"stats"`
	Duration time.Duration `json:"duration"`
	// Geometries holds the committed geometry of a successful load.
	Geometries []*canon.CompiledGeometry `json:"geometries,omitempty"`
	// Partial holds the geometry of the events before a parse failure. It is never
	// committed.
	Partial []*canon.CompiledGeometry `json:"partial,omitempty"`
}

// Box is an axis-aligned bounding box.
type Box struct {
	Min canon.Point3 `json:"min"`
	Max canon.Point3 `json:"max"`
}

// Backplot is the session core. It is not safe for concurrent use; callers
// serialize access.
type Backplot struct {
	settings   Settings
	logger     *slog.Logger
	normalizer *units.Normalizer

	registry *Registry
	geometry *ordered.Map[canon.Origin, *canon.CompiledGeometry]
	offsets  *offsets.Tracker
	live     *livetrace.Recorder

	lastTip   canon.Point3
	hasSample bool
	program   string
}

// New creates a session with an empty plot.
func New(settings Settings, logger *slog.Logger) *Backplot {
	if logger == nil {
		logger = slog.Default()
	}
	if settings.Palette == nil {
		settings.Palette = canon.DefaultPalette()
	}
	registry := NewRegistry()
	return &Backplot{
		settings:   settings,
		logger:     logger,
		normalizer: units.New(settings.Units, settings.InterpreterUnits),
		registry:   registry,
		geometry:   ordered.New[canon.Origin, *canon.CompiledGeometry](),
		offsets:    offsets.New(registry),
		live:       livetrace.New(canon.Point3{}),
	}
}

// Settings returns the session configuration.
func (b *Backplot) Settings() Settings {
	return b.settings
}

// Program returns the last successfully loaded program.
func (b *Backplot) Program() string {
	return b.program
}

func (b *Backplot) unitCode() string {
	if b.settings.Units == units.Imperial {
		return "G20"
	}
	return "G21"
}

// Reload parses program with in and replaces all compiled geometry. The load runs
// against a fresh accumulator and a copy of the offset state; nothing is committed
// unless the parse succeeds. A parse failure is returned as *interp.ParseFailure
// together with a result whose Partial field holds what was compiled before it.
func (b *Backplot) Reload(ctx context.Context, in interp.Interpreter, program string) (*LoadResult, error) {
	started := time.Now()

	params := interp.ParameterFile{Path: b.settings.ParameterFile}
	tempParams, err := params.Prepare()
	if err != nil {
		return nil, fmt.Errorf("preparing parameter file: %w", err)
	}
	defer func() {
		if err := params.Cleanup(); err != nil {
			b.logger.Warn("failed to remove temporary parameter file", "error", err)
		}
	}()

	tracker := b.offsets.Clone(nil)
	acc := NewAccumulator(b.normalizer, tracker, b.logger.With("program", program))

	res, err := in.Parse(ctx, program, acc, interp.Options{
		UnitCode:      b.unitCode(),
		InitCode:      b.settings.StartupCode,
		ParameterFile: tempParams,
	})
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", program, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("loading %s: %w", program, err)
	}

	geoms := acc.CompileAll()
	result := &LoadResult{
		Program:  program,
		Result:   res,
		Stats:    acc.Stats(),
		Duration: time.Since(started),
	}

	if perr := res.Err(); perr != nil {
		result.Partial = geoms
		b.logger.Error("program failed to parse",
			"program", program,
			"line", res.Line,
			"status", res.Status,
			"error", perr)
		return result, perr
	}

	b.registry = acc.Registry()
	b.offsets = tracker
	b.geometry.Clear()
	for _, g := range geoms {
		b.geometry.Set(g.Origin, g)
	}
	b.program = program
	result.Geometries = geoms

	b.logger.Info("program loaded",
		"program", program,
		"origins", len(geoms),
		"recorded", result.Stats.Recorded,
		"suppressed", result.Stats.Suppressed,
		"duration", result.Duration)
	return result, nil
}

// CompiledGeometry returns the geometry of origin, if any was compiled.
func (b *Backplot) CompiledGeometry(origin canon.Origin) (*canon.CompiledGeometry, bool) {
	return b.geometry.Get(origin)
}

// Geometries returns all compiled geometry in first-seen origin order.
func (b *Backplot) Geometries() []*canon.CompiledGeometry {
	out := make([]*canon.CompiledGeometry, 0, b.geometry.Len())
	b.geometry.Each(func(_ canon.Origin, g *canon.CompiledGeometry) {
		out = append(out, g)
	})
	return out
}

// Origins returns every origin in the registry, including those without geometry.
func (b *Backplot) Origins() []canon.Origin {
	return b.registry.Origins()
}

// LiveTrace returns the executed tool path. Callers must not modify it directly.
func (b *Backplot) LiveTrace() *livetrace.Recorder {
	return b.live
}

// ClearLiveTrace restarts the live trace at the current tool tip.
func (b *Backplot) ClearLiveTrace() {
	b.live.Clear()
}

// ActiveTransform returns the placement of origin's geometry.
func (b *Backplot) ActiveTransform(origin canon.Origin) canon.Transform {
	return b.offsets.Transform(origin)
}

// Offsets returns the offset tracker.
func (b *Backplot) Offsets() *offsets.Tracker {
	return b.offsets
}

// SampleTool records the tool tip derived from a polled spindle position. Samples
// equal to the previous one are skipped; it reports whether the trace grew.
func (b *Backplot) SampleTool(spindle canon.Position, tool canon.ToolOffset) bool {
	tip := tool.TipFrom(spindle)
	if b.hasSample && tip == b.lastTip {
		return false
	}
	b.lastTip = tip
	b.hasSample = true
	b.live.Append(tip)
	return true
}

// ApplyOffsets feeds polled offsets to the tracker and reports whether any
// placement changed.
func (b *Backplot) ApplyOffsets(s offsets.Sample) bool {
	return b.offsets.Poll(s)
}

// ErrNoGeometry is returned by Extents for origins without compiled geometry.
var ErrNoGeometry = errors.New("no geometry for origin")

// Extents returns the bounding box of origin's geometry after placement.
func (b *Backplot) Extents(origin canon.Origin) (Box, error) {
	g, ok := b.geometry.Get(origin)
	if !ok || g.NumVertices() == 0 {
		return Box{}, fmt.Errorf("%w %s", ErrNoGeometry, origin)
	}
	tr := b.offsets.Transform(origin)
	box := Box{
		Min: canon.Point3{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)},
		Max: canon.Point3{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)},
	}
	for _, v := range g.Vertices {
		p := tr.Apply(v)
		box.Min.X, box.Max.X = math.Min(box.Min.X, p.X), math.Max(box.Max.X, p.X)
		box.Min.Y, box.Max.Y = math.Min(box.Min.Y, p.Y), math.Max(box.Max.Y, p.Y)
		box.Min.Z, box.Max.Z = math.Min(box.Min.Z, p.Z), math.Max(box.Max.Z, p.Z)
	}
	return box, nil
}
