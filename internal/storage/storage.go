// Package storage archives plotted programs: the compiled geometry of each load
// and the live tool trace sampled while it runs.
package storage

import (
	"github.com/backplot/backplot/internal/livetrace"
	"github.com/backplot/backplot/internal/program"
	"github.com/backplot/backplot/pkg/canon"
)

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Program management. StartProgram assigns p.ID.
	StartProgram(p *program.Info) error
	EndProgram() error

	// Recording
	RecordGeometry(g *canon.CompiledGeometry, placement canon.Transform) error
	RecordTrace(s *livetrace.Sample) error
}

// Exporter is an optional interface for backends that write a plot file per program.
type Exporter interface {
	ExportedFilePath() string
}
