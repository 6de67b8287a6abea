// Package worker binds dispatcher commands to the backplot session, the tool table
// and the storage backends.
package worker

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/backplot/backplot/internal/backplot"
	"github.com/backplot/backplot/internal/cache"
	"github.com/backplot/backplot/internal/influx"
	"github.com/backplot/backplot/internal/interp"
	"github.com/backplot/backplot/internal/program"
	"github.com/backplot/backplot/internal/storage"
	"github.com/backplot/backplot/pkg/canon"
)

// Commands handled by the manager.
const (
	CmdLoad      = ":LOAD:"
	CmdSample    = ":SAMPLE:"
	CmdOffsets   = ":OFFSETS:"
	CmdClearLive = ":CLEAR:LIVE:"
	CmdArchive   = ":ARCHIVE:"
)

// Sample is one polled machine status: the spindle position in display units and
// the tool in the spindle.
type Sample struct {
	Time     time.Time      `json:"time"`
	Position canon.Position `json:"position"`
	Tool     int            `json:"tool"`
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Backplot       *backplot.Backplot
	Interpreter    interp.Interpreter
	Tools          *cache.ToolCache
	ProgramContext *program.Context
	// Influx is optional.
	Influx *influx.Manager
	Logger *slog.Logger
}

// Manager serializes all access to the backplot session.
type Manager struct {
	deps    Dependencies
	backend storage.Backend

	mu  sync.Mutex
	seq cache.SafeCounter

	lastLoad time.Duration
}

// NewManager creates a new worker manager. backend may be nil.
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tools == nil {
		deps.Tools = cache.NewToolCache()
	}
	if deps.ProgramContext == nil {
		deps.ProgramContext = program.NewContext()
	}
	return &Manager{deps: deps, backend: backend}
}

func (m *Manager) hasBackend() bool {
	return m.backend != nil
}

// LastLoadDuration returns how long the last Reload took.
func (m *Manager) LastLoadDuration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastLoad
}

// SampleCount returns the number of trace samples recorded since the last load.
func (m *Manager) SampleCount() int {
	return m.seq.Value()
}

// WithBackplot runs f with exclusive access to the session.
func (m *Manager) WithBackplot(f func(b *backplot.Backplot) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return f(m.deps.Backplot)
}

func (m *Manager) unitName() string {
	return m.deps.Backplot.Settings().Units.String()
}

func (m *Manager) archiveGeometry(p *program.Info, res *backplot.LoadResult) error {
	if !m.hasBackend() {
		return nil
	}
	if err := m.backend.StartProgram(p); err != nil {
		return fmt.Errorf("starting program: %w", err)
	}
	for _, g := range res.Geometries {
		if err := m.backend.RecordGeometry(g, m.deps.Backplot.ActiveTransform(g.Origin)); err != nil {
			return fmt.Errorf("recording geometry %s: %w", g.Origin, err)
		}
	}
	return nil
}
