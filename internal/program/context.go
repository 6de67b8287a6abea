package program

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/backplot/backplot/internal/backplot"
	"github.com/backplot/backplot/internal/interp"
	"github.com/backplot/backplot/pkg/canon"
)

// Info describes the program currently shown in the plot.
type Info struct {
	ID         uint          `json:"id"`
	Name       string        `json:"name"`
	Path       string        `json:"path"`
	Units      string        `json:"units"`
	LoadedAt   time.Time     `json:"loadedAt"`
	Duration   time.Duration `json:"duration"`
	Status     int           `json:"status"`
	StatusText string        `json:"statusText"`
	Line       int           `json:"line"`
	Recorded   int           `json:"recorded"`
	Suppressed int           `json:"suppressed"`
	// Palette colors the archived plot.
	Palette canon.Palette `json:"palette,omitempty"`
}

// Failed reports whether the load ended with an interpreter error.
func (i *Info) Failed() bool {
	return i.Status > interp.MinError
}

// FromLoad builds the program description of a Reload result.
func FromLoad(res *backplot.LoadResult, units string, at time.Time) *Info {
	name := strings.TrimSuffix(filepath.Base(res.Program), filepath.Ext(res.Program))
	return &Info{
		Name:       name,
		Path:       res.Program,
		Units:      units,
		LoadedAt:   at,
		Duration:   res.Duration,
		Status:     res.Result.Status,
		StatusText: interp.Strerror(res.Result.Status),
		Line:       res.Result.Line,
		Recorded:   res.Stats.Recorded,
		Suppressed: res.Stats.Suppressed,
	}
}

// Context holds the current program
type Context struct {
	mu      sync.RWMutex
	program *Info
}

// NewContext creates a new Context with default values
func NewContext() *Context {
	return &Context{
		program: &Info{Name: "No program loaded"},
	}
}

// GetProgram returns the current program
func (c *Context) GetProgram() *Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.program
}

// SetProgram replaces the current program
func (c *Context) SetProgram(p *Info) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.program = p
}

// Loaded reports whether a program was set since the context was created.
func (c *Context) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.program.Path != ""
}
