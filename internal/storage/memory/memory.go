package memory

import (
	"errors"
	"sync"

	"github.com/backplot/backplot/internal/config"
	"github.com/backplot/backplot/internal/livetrace"
	"github.com/backplot/backplot/internal/program"
	"github.com/backplot/backplot/pkg/canon"
)

// ErrNoProgram is returned when recording before StartProgram.
var ErrNoProgram = errors.New("no program started")

// GeometryRecord pairs an origin's geometry with its placement at load time
type GeometryRecord struct {
	Geometry  canon.CompiledGeometry
	Placement canon.Transform
}

// Backend stores plot data in memory and exports to JSON
type Backend struct {
	cfg     config.MemoryConfig
	program *program.Info

	geometries []GeometryRecord
	trace      []livetrace.Sample

	idCounter      uint
	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartProgram begins recording a new program
func (b *Backend) StartProgram(p *program.Info) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.idCounter++
	p.ID = b.idCounter
	b.program = p
	b.geometries = nil
	b.trace = nil
	b.lastExportPath = ""
	return nil
}

// EndProgram finalizes and exports the program data
func (b *Backend) EndProgram() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.program == nil {
		return nil
	}
	return b.exportJSON()
}

// RecordGeometry stores a copy of g
func (b *Backend) RecordGeometry(g *canon.CompiledGeometry, placement canon.Transform) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.program == nil {
		return ErrNoProgram
	}
	b.geometries = append(b.geometries, GeometryRecord{Geometry: *g, Placement: placement})
	return nil
}

// RecordTrace stores a trace sample
func (b *Backend) RecordTrace(s *livetrace.Sample) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.program == nil {
		return ErrNoProgram
	}
	b.trace = append(b.trace, *s)
	return nil
}

// Program returns the program being recorded
func (b *Backend) Program() (*program.Info, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.program, b.program != nil
}

// Geometries returns the recorded geometry in recording order
func (b *Backend) Geometries() []GeometryRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]GeometryRecord(nil), b.geometries...)
}

// Trace returns the recorded trace samples
func (b *Backend) Trace() []livetrace.Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]livetrace.Sample(nil), b.trace...)
}

// ExportedFilePath returns the file written by the last EndProgram
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
