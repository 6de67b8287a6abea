// Package monitor polls the machine status and feeds it to the dispatcher.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/backplot/backplot/internal/dispatcher"
	"github.com/backplot/backplot/internal/offsets"
	"github.com/backplot/backplot/internal/program"
	"github.com/backplot/backplot/internal/worker"
)

// DefaultPollInterval matches the display refresh of the plot.
const DefaultPollInterval = 100 * time.Millisecond

// ErrNoOffsets is returned by sources that have not seen any offset data yet.
var ErrNoOffsets = errors.New("no offsets available")

// StatusSource is the controller status channel.
type StatusSource interface {
	// Poll returns the current spindle position and tool. io.EOF ends monitoring.
	Poll(ctx context.Context) (worker.Sample, error)
	// PollOffsets returns the live offset state.
	PollOffsets(ctx context.Context) (offsets.Sample, error)
}

// Dispatcher is the part of dispatcher.Dispatcher the monitor needs.
type Dispatcher interface {
	Dispatch(e dispatcher.Event) (any, error)
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Source     StatusSource
	Dispatcher Dispatcher
	Logger     *slog.Logger
	// ProgramContext is optional; it names the program in the status file.
	ProgramContext *program.Context

	PollInterval time.Duration
	// OffsetEvery polls offsets on every n-th tick, starting with the first.
	// Zero disables offset polling.
	OffsetEvery int
	// StatusPath, when set, is rewritten with the last status on every tick.
	StatusPath string
}

// Status is the content of the status file.
type Status struct {
	Program string          `json:"program"`
	Ticks   int             `json:"ticks"`
	Sample  worker.Sample   `json:"sample"`
	Grew    bool            `json:"traceGrew"`
	Offsets *offsets.Sample `json:"offsets,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}

	ticks int
	last  Status
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.PollInterval <= 0 {
		deps.PollInterval = DefaultPollInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// LastStatus returns the status of the most recent tick.
func (s *Service) LastStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Done is closed when the running loop exits.
func (s *Service) Done() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done
}

// Tick polls the source once and dispatches the results. It returns io.EOF when
// the source is exhausted.
func (s *Service) Tick(ctx context.Context) error {
	s.mu.Lock()
	s.ticks++
	n := s.ticks
	s.mu.Unlock()

	sample, err := s.deps.Source.Poll(ctx)
	if err != nil {
		return err
	}

	status := Status{Ticks: n, Sample: sample}
	if pc := s.deps.ProgramContext; pc != nil {
		status.Program = pc.GetProgram().Name
	}

	if every := s.deps.OffsetEvery; every > 0 && (n-1)%every == 0 {
		off, err := s.deps.Source.PollOffsets(ctx)
		switch {
		case errors.Is(err, ErrNoOffsets):
		case err != nil:
			s.deps.Logger.Warn("offset poll failed", "error", err)
		default:
			status.Offsets = &off
			if _, err := s.deps.Dispatcher.Dispatch(dispatcher.Event{Command: worker.CmdOffsets, Payload: off}); err != nil {
				s.deps.Logger.Error("offset dispatch failed", "error", err)
			}
		}
	}

	out, err := s.deps.Dispatcher.Dispatch(dispatcher.Event{Command: worker.CmdSample, Payload: sample, Timestamp: sample.Time})
	if err != nil {
		s.deps.Logger.Error("sample dispatch failed", "error", err)
	}
	status.Grew, _ = out.(bool)

	s.mu.Lock()
	s.last = status
	s.mu.Unlock()

	if s.deps.StatusPath != "" {
		if err := writeStatus(s.deps.StatusPath, status); err != nil {
			s.deps.Logger.Warn("failed to write status file", "error", err)
		}
	}
	return nil
}

func writeStatus(path string, st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Run polls until ctx is cancelled, Stop is called or the source is exhausted.
func (s *Service) Run(ctx context.Context) error {
	s.mu.RLock()
	stop := s.stopChan
	s.mu.RUnlock()

	ticker := time.NewTicker(s.deps.PollInterval)
	defer ticker.Stop()

	logger := s.deps.Logger
	logger.Debug("status monitor running", "interval", s.deps.PollInterval, "offsetEvery", s.deps.OffsetEvery)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case <-ticker.C:
			err := s.Tick(ctx)
			if errors.Is(err, io.EOF) {
				logger.Info("status source exhausted", "ticks", s.LastStatus().Ticks)
				return nil
			}
			if err != nil {
				logger.Warn("status poll failed", "error", err)
			}
		}
	}
}

// Start starts the status monitor goroutine
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if s.deps.Source == nil || s.deps.Dispatcher == nil {
		s.mu.Unlock()
		return fmt.Errorf("monitor: source and dispatcher are required")
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			close(done)
		}()

		if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.deps.Logger.Error("status monitor stopped", "error", err)
		}
	}()

	return nil
}

// Stop stops the status monitor
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		select {
		case <-s.stopChan:
		default:
			close(s.stopChan)
		}
	}
}
