package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/backplot/backplot/internal/dispatcher"
	"github.com/backplot/backplot/internal/livetrace"
	"github.com/backplot/backplot/internal/offsets"
	"github.com/backplot/backplot/internal/program"
	"github.com/backplot/backplot/internal/storage"
)

// ErrBadPayload is returned when an event carries a payload of the wrong type.
var ErrBadPayload = errors.New("unexpected payload")

// RegisterHandlers registers all event handlers with the dispatcher
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(CmdLoad, m.handleLoad, dispatcher.Logged())
	d.Register(CmdSample, m.handleSample)
	d.Register(CmdOffsets, m.handleOffsets, dispatcher.Logged())
	d.Register(CmdClearLive, m.handleClearLive, dispatcher.Logged())

	// exports write to disk
	d.Register(CmdArchive, m.handleArchive, dispatcher.Buffered(16), dispatcher.Logged())
}

func programArg(e dispatcher.Event) (string, error) {
	if len(e.Args) > 0 && e.Args[0] != "" {
		return e.Args[0], nil
	}
	if s, ok := e.Payload.(string); ok && s != "" {
		return s, nil
	}
	return "", fmt.Errorf("%s: missing program path", e.Command)
}

// handleLoad reloads the plot. A program that fails to parse leaves the current
// plot and archive untouched; the failed attempt is still reported to influx.
func (m *Manager) handleLoad(e dispatcher.Event) (any, error) {
	path, err := programArg(e)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	res, loadErr := m.deps.Backplot.Reload(context.Background(), m.deps.Interpreter, path)
	if res == nil {
		return nil, fmt.Errorf("loading %s: %w", path, loadErr)
	}
	m.lastLoad = res.Duration

	info := program.FromLoad(res, m.unitName(), e.Timestamp)
	info.Palette = m.deps.Backplot.Settings().Palette
	m.writeLoad(info)

	if loadErr != nil {
		return res, loadErr
	}

	if m.deps.ProgramContext.Loaded() && m.hasBackend() {
		if err := m.backend.EndProgram(); err != nil {
			m.deps.Logger.Error("failed to end previous program", "error", err)
		}
	}
	m.deps.ProgramContext.SetProgram(info)
	m.seq.Set(0)

	if err := m.archiveGeometry(info, res); err != nil {
		return res, err
	}

	m.deps.Logger.Debug("program recorded", "program", info.Name, "id", info.ID)
	return res, nil
}

func samplePayload(e dispatcher.Event) (Sample, error) {
	switch p := e.Payload.(type) {
	case Sample:
		return p, nil
	case *Sample:
		if p != nil {
			return *p, nil
		}
	}
	return Sample{}, fmt.Errorf("%w for %s: %T", ErrBadPayload, e.Command, e.Payload)
}

// handleSample feeds one polled position to the live trace. It returns whether the
// trace grew.
func (m *Manager) handleSample(e dispatcher.Event) (any, error) {
	s, err := samplePayload(e)
	if err != nil {
		return nil, err
	}
	if s.Time.IsZero() {
		s.Time = e.Timestamp
	}

	m.mu.Lock()
	grew := m.deps.Backplot.SampleTool(s.Position, m.deps.Tools.Offset(s.Tool))
	var rec livetrace.Sample
	if grew {
		rec = livetrace.Sample{
			Time: s.Time,
			Seq:  uint(m.seq.Inc()),
			Tool: s.Tool,
			Tip:  m.deps.Backplot.LiveTrace().Current(),
		}
	}
	m.mu.Unlock()

	if !grew {
		return false, nil
	}

	if m.hasBackend() && m.deps.ProgramContext.Loaded() {
		if err := m.backend.RecordTrace(&rec); err != nil {
			return true, fmt.Errorf("recording trace sample: %w", err)
		}
	}
	if m.deps.Influx != nil {
		if err := m.deps.Influx.WriteSample(m.deps.ProgramContext.GetProgram().Name, rec); err != nil {
			m.deps.Logger.Debug("influx sample dropped", "error", err)
		}
	}
	return true, nil
}

// handleOffsets applies polled offsets and returns whether any placement changed.
func (m *Manager) handleOffsets(e dispatcher.Event) (any, error) {
	var s offsets.Sample
	switch p := e.Payload.(type) {
	case offsets.Sample:
		s = p
	case *offsets.Sample:
		if p == nil {
			return nil, fmt.Errorf("%w for %s: nil", ErrBadPayload, e.Command)
		}
		s = *p
	default:
		return nil, fmt.Errorf("%w for %s: %T", ErrBadPayload, e.Command, e.Payload)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	changed := m.deps.Backplot.ApplyOffsets(s)
	if changed {
		m.deps.Logger.Debug("placement changed", "g5x", s.Index, "rotation", s.Rotation)
	}
	return changed, nil
}

func (m *Manager) handleClearLive(e dispatcher.Event) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps.Backplot.ClearLiveTrace()
	return nil, nil
}

// handleArchive ends the current program in the backend. Exporting backends
// return the written file.
func (m *Manager) handleArchive(e dispatcher.Event) (any, error) {
	if !m.hasBackend() || !m.deps.ProgramContext.Loaded() {
		return nil, nil
	}
	if err := m.backend.EndProgram(); err != nil {
		return nil, fmt.Errorf("archiving %s: %w", m.deps.ProgramContext.GetProgram().Name, err)
	}
	if ex, ok := m.backend.(storage.Exporter); ok {
		return ex.ExportedFilePath(), nil
	}
	return nil, nil
}

func (m *Manager) writeLoad(p *program.Info) {
	if m.deps.Influx == nil {
		return
	}
	if err := m.deps.Influx.WriteLoad(p); err != nil {
		m.deps.Logger.Debug("influx load point dropped", "error", err)
	}
}
