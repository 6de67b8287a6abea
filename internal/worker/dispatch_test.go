package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/backplot/backplot/internal/backplot"
	"github.com/backplot/backplot/internal/cache"
	"github.com/backplot/backplot/internal/config"
	"github.com/backplot/backplot/internal/dispatcher"
	"github.com/backplot/backplot/internal/interp"
	"github.com/backplot/backplot/internal/offsets"
	"github.com/backplot/backplot/internal/program"
	"github.com/backplot/backplot/internal/storage/memory"
	"github.com/backplot/backplot/internal/units"
	"github.com/backplot/backplot/pkg/canon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements dispatcher.Logger for testing
type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *mockLogger) Debug(msg string, keysAndValues ...any) { l.add(msg) }
func (l *mockLogger) Info(msg string, keysAndValues ...any)  { l.add(msg) }
func (l *mockLogger) Error(msg string, keysAndValues ...any) { l.add(msg) }

func (l *mockLogger) add(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func newTestDispatcher(t *testing.T) *dispatcher.Dispatcher {
	t.Helper()
	d, err := dispatcher.New(&mockLogger{})
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

// squareProgram feeds a 10mm square at Z=-1 in G54; status selects success or failure.
func squareProgram(status int) interp.Interpreter {
	return interp.InterpreterFunc(func(ctx context.Context, path string, c interp.Canon, opts interp.Options) (interp.Result, error) {
		corners := []canon.Position{
			canon.PositionFrom(0, 0, -1),
			canon.PositionFrom(10, 0, -1),
			canon.PositionFrom(10, 10, -1),
			canon.PositionFrom(0, 10, -1),
			canon.PositionFrom(0, 0, -1),
		}
		c.NextLine(1)
		c.StraightTraverse(canon.Position{}, corners[0])
		for i := 1; i < len(corners); i++ {
			c.NextLine(i + 1)
			c.StraightFeed(corners[i-1], corners[i])
		}
		if status > interp.MinError {
			return interp.Result{Status: status, Line: 3, Message: "bad word"}, nil
		}
		return interp.Result{Status: status, Line: len(corners)}, nil
	})
}

type fixture struct {
	manager  *Manager
	backend  *memory.Backend
	programs *program.Context
	tools    *cache.ToolCache
	plot     *backplot.Backplot
}

func newFixture(t *testing.T, status int) *fixture {
	t.Helper()
	settings := backplot.DefaultSettings()
	settings.InterpreterUnits = units.Metric

	f := &fixture{
		backend:  memory.New(config.MemoryConfig{OutputDir: t.TempDir()}),
		programs: program.NewContext(),
		tools:    cache.NewToolCache(),
		plot:     backplot.New(settings, nil),
	}
	f.manager = NewManager(Dependencies{
		Backplot:       f.plot,
		Interpreter:    squareProgram(status),
		Tools:          f.tools,
		ProgramContext: f.programs,
	}, f.backend)
	return f
}

func TestRegisterHandlers_RegistersAllCommands(t *testing.T) {
	d := newTestDispatcher(t)
	f := newFixture(t, interp.StatusEndFile)

	f.manager.RegisterHandlers(d)

	assert.Equal(t, []string{CmdArchive, CmdClearLive, CmdLoad, CmdOffsets, CmdSample}, d.Commands())
}

func TestHandleLoad_RecordsProgramAndGeometry(t *testing.T) {
	d := newTestDispatcher(t)
	f := newFixture(t, interp.StatusEndFile)
	f.manager.RegisterHandlers(d)

	out, err := d.Dispatch(dispatcher.Event{Command: CmdLoad, Args: []string{"/nc/square.ngc"}})
	require.NoError(t, err)

	res, ok := out.(*backplot.LoadResult)
	require.True(t, ok)
	assert.Len(t, res.Geometries, 1)

	require.True(t, f.programs.Loaded())
	info := f.programs.GetProgram()
	assert.Equal(t, "square", info.Name)
	assert.Equal(t, "mm", info.Units)
	assert.False(t, info.Failed())

	stored, ok := f.backend.Program()
	require.True(t, ok)
	assert.Equal(t, uint(1), stored.ID)

	geoms := f.backend.Geometries()
	require.Len(t, geoms, 1)
	assert.Equal(t, canon.G54, geoms[0].Geometry.Origin)
}

func TestHandleLoad_FailureKeepsPreviousProgram(t *testing.T) {
	d := newTestDispatcher(t)
	f := newFixture(t, interp.StatusEndFile)
	f.manager.RegisterHandlers(d)

	_, err := d.Dispatch(dispatcher.Event{Command: CmdLoad, Args: []string{"good.ngc"}})
	require.NoError(t, err)

	f.manager.deps.Interpreter = squareProgram(interp.StatusError)
	out, err := d.Dispatch(dispatcher.Event{Command: CmdLoad, Args: []string{"bad.ngc"}})

	var failure *interp.ParseFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 3, failure.Line)

	res := out.(*backplot.LoadResult)
	assert.NotEmpty(t, res.Partial)
	assert.Equal(t, "good", f.programs.GetProgram().Name)

	stored, _ := f.backend.Program()
	assert.Equal(t, "good", stored.Name)
}

func TestHandleLoad_MissingPath(t *testing.T) {
	f := newFixture(t, interp.StatusEndFile)
	_, err := f.manager.handleLoad(dispatcher.Event{Command: CmdLoad})
	assert.ErrorContains(t, err, "missing program path")
}

func TestHandleLoad_PathFromPayload(t *testing.T) {
	f := newFixture(t, interp.StatusEndFile)
	_, err := f.manager.handleLoad(dispatcher.Event{Command: CmdLoad, Payload: "part.ngc", Timestamp: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, "part", f.programs.GetProgram().Name)
}

func TestHandleSample_AppliesToolOffset(t *testing.T) {
	d := newTestDispatcher(t)
	f := newFixture(t, interp.StatusEndFile)
	f.manager.RegisterHandlers(d)
	f.tools.Add(cache.Tool{ToolOffset: canon.ToolOffset{Tool: 3, Offset: canon.PositionFrom(0, 0, 50)}})

	_, err := d.Dispatch(dispatcher.Event{Command: CmdLoad, Args: []string{"part.ngc"}})
	require.NoError(t, err)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	out, err := d.Dispatch(dispatcher.Event{Command: CmdSample, Payload: Sample{
		Time:     at,
		Position: canon.PositionFrom(1, 2, 53),
		Tool:     3,
	}})
	require.NoError(t, err)
	assert.Equal(t, true, out)

	trace := f.backend.Trace()
	require.Len(t, trace, 1)
	assert.Equal(t, canon.Point3{X: 1, Y: 2, Z: 3}, trace[0].Tip)
	assert.Equal(t, uint(1), trace[0].Seq)
	assert.Equal(t, 3, trace[0].Tool)
	assert.Equal(t, at, trace[0].Time)
	assert.Equal(t, 1, f.manager.SampleCount())
}

func TestHandleSample_RepeatedPositionIsSkipped(t *testing.T) {
	f := newFixture(t, interp.StatusEndFile)
	s := &Sample{Position: canon.PositionFrom(1, 1, 1)}

	out, err := f.manager.handleSample(dispatcher.Event{Command: CmdSample, Payload: s})
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = f.manager.handleSample(dispatcher.Event{Command: CmdSample, Payload: s})
	require.NoError(t, err)
	assert.Equal(t, false, out)

	assert.Equal(t, 2, f.plot.LiveTrace().Len())
}

func TestHandleSample_NoProgramNotArchived(t *testing.T) {
	f := newFixture(t, interp.StatusEndFile)
	_, err := f.manager.handleSample(dispatcher.Event{Command: CmdSample, Payload: Sample{Position: canon.PositionFrom(5)}})
	require.NoError(t, err)
	assert.Empty(t, f.backend.Trace())
}

func TestHandleSample_BadPayload(t *testing.T) {
	f := newFixture(t, interp.StatusEndFile)
	_, err := f.manager.handleSample(dispatcher.Event{Command: CmdSample, Payload: 42})
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestHandleOffsets_ChangesPlacement(t *testing.T) {
	f := newFixture(t, interp.StatusEndFile)
	_, err := f.manager.handleLoad(dispatcher.Event{Command: CmdLoad, Args: []string{"part.ngc"}})
	require.NoError(t, err)

	s := offsets.Sample{Index: 1, G5xOffset: canon.PositionFrom(100, 50)}
	out, err := f.manager.handleOffsets(dispatcher.Event{Command: CmdOffsets, Payload: s})
	require.NoError(t, err)
	assert.Equal(t, true, out)

	box, err := f.plot.Extents(canon.G54)
	require.NoError(t, err)
	assert.InDelta(t, 100, box.Min.X, 1e-9)
	assert.InDelta(t, 60, box.Max.Y, 1e-9)

	out, err = f.manager.handleOffsets(dispatcher.Event{Command: CmdOffsets, Payload: &s})
	require.NoError(t, err)
	assert.Equal(t, false, out)
}

func TestHandleOffsets_BadPayload(t *testing.T) {
	f := newFixture(t, interp.StatusEndFile)
	_, err := f.manager.handleOffsets(dispatcher.Event{Command: CmdOffsets, Payload: "g54"})
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestHandleClearLive(t *testing.T) {
	f := newFixture(t, interp.StatusEndFile)
	for _, x := range []float64{1, 2, 3} {
		_, err := f.manager.handleSample(dispatcher.Event{Command: CmdSample, Payload: Sample{Position: canon.PositionFrom(x)}})
		require.NoError(t, err)
	}

	_, err := f.manager.handleClearLive(dispatcher.Event{Command: CmdClearLive})
	require.NoError(t, err)

	trace := f.plot.LiveTrace()
	assert.Equal(t, 1, trace.Len())
	assert.Equal(t, canon.Point3{X: 3}, trace.Current())
}

func TestHandleArchive_ExportsProgram(t *testing.T) {
	f := newFixture(t, interp.StatusEndFile)
	_, err := f.manager.handleLoad(dispatcher.Event{Command: CmdLoad, Args: []string{"part.ngc"}})
	require.NoError(t, err)

	out, err := f.manager.handleArchive(dispatcher.Event{Command: CmdArchive})
	require.NoError(t, err)

	path, ok := out.(string)
	require.True(t, ok)
	assert.FileExists(t, path)
}

func TestHandleArchive_NothingLoaded(t *testing.T) {
	f := newFixture(t, interp.StatusEndFile)
	out, err := f.manager.handleArchive(dispatcher.Event{Command: CmdArchive})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Dependencies{Backplot: backplot.New(backplot.DefaultSettings(), nil)}, nil)
	assert.NotNil(t, m.deps.Logger)
	assert.NotNil(t, m.deps.Tools)
	assert.False(t, m.deps.ProgramContext.Loaded())
	assert.False(t, m.hasBackend())

	err := m.WithBackplot(func(b *backplot.Backplot) error {
		assert.Empty(t, b.Geometries())
		return nil
	})
	assert.NoError(t, err)
}
