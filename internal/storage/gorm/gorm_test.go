package gormstorage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/backplot/backplot/internal/database"
	"github.com/backplot/backplot/internal/livetrace"
	"github.com/backplot/backplot/internal/model"
	"github.com/backplot/backplot/internal/program"
	"github.com/backplot/backplot/pkg/canon"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newQueueOnlyBackend creates a Backend that never connects.
func newQueueOnlyBackend() *Backend {
	return New(Dependencies{Logger: zerolog.Nop()})
}

// newSQLiteBackend creates an initialized Backend on a fresh SQLite file.
func newSQLiteBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)

	b := New(Dependencies{
		DB:            db,
		Machine:       model.MachineInfo{MachineName: "mill-1", Units: "mm"},
		Logger:        zerolog.Nop(),
		WriteInterval: time.Hour,
		BatchSize:     2,
	})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func square(origin canon.Origin) *canon.CompiledGeometry {
	return &canon.CompiledGeometry{
		Origin:   origin,
		Vertices: []canon.Point3{{Z: 5}, {X: 10}, {X: 10, Y: 10}},
		Lines:    []canon.Edge{{0, 1}, {1, 2}},
		Colors:   []canon.MotionKind{canon.Traverse, canon.Feed},
	}
}

func TestNew_Defaults(t *testing.T) {
	b := newQueueOnlyBackend()
	assert.Equal(t, DefaultWriteInterval, b.deps.WriteInterval)
	assert.Equal(t, DefaultBatchSize, b.deps.BatchSize)
	assert.NotNil(t, b.queues)
}

func TestQueueOnly(t *testing.T) {
	b := newQueueOnlyBackend()

	p := &program.Info{Name: "bracket"}
	require.NoError(t, b.StartProgram(p))
	assert.Zero(t, p.ID)

	require.NoError(t, b.RecordGeometry(square(canon.G54), canon.Identity()))
	require.NoError(t, b.RecordTrace(&livetrace.Sample{Seq: 1}))
	assert.Equal(t, 1, b.queues.Geometries.Len())
	assert.Equal(t, 1, b.queues.Samples.Len())

	require.NoError(t, b.Flush())
	require.NoError(t, b.EndProgram())
	require.NoError(t, b.Close())
	assert.Equal(t, 1, b.queues.Geometries.Len(), "nothing is written without a database")
}

func TestRecord_StampsProgramID(t *testing.T) {
	b := newQueueOnlyBackend()
	b.SetProgramID(7)
	require.NoError(t, b.RecordGeometry(square(canon.G55), canon.Identity()))
	require.NoError(t, b.RecordTrace(&livetrace.Sample{Seq: 1}))

	gs := b.queues.Geometries.Take(1)
	require.Len(t, gs, 1)
	g := gs[0]
	assert.Equal(t, uint(7), g.ProgramID)
	assert.Equal(t, "G55", g.Origin)

	ss := b.queues.Samples.Take(1)
	require.Len(t, ss, 1)
	s := ss[0]
	assert.Equal(t, uint(7), s.ProgramID)
}

func TestInit_Migrates(t *testing.T) {
	b := newSQLiteBackend(t)
	for _, m := range model.DatabaseModels {
		assert.True(t, b.DB().Migrator().HasTable(m), "%T", m)
	}
	var machine model.MachineInfo
	require.NoError(t, b.DB().First(&machine).Error)
	assert.Equal(t, "mill-1", machine.MachineName)
}

func TestProgramLifecycle(t *testing.T) {
	b := newSQLiteBackend(t)

	p := &program.Info{Name: "bracket", Path: "/nc/bracket.ngc", Units: "mm", LoadedAt: time.Now()}
	require.NoError(t, b.StartProgram(p))
	require.NotZero(t, p.ID)

	require.NoError(t, b.RecordGeometry(square(canon.G54), canon.Identity()))
	require.NoError(t, b.RecordGeometry(square(canon.G55), canon.Transform{Translate: canon.Point3{X: 50}}))
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= 5; i++ {
		require.NoError(t, b.RecordTrace(&livetrace.Sample{
			Time: start.Add(time.Duration(i) * time.Second),
			Seq:  uint(i),
			Tool: 1,
			Tip:  canon.Point3{X: float64(i), Y: 1, Z: -0.5},
		}))
	}
	require.NoError(t, b.EndProgram())
	assert.True(t, b.queues.Geometries.Empty())
	assert.True(t, b.queues.Samples.Empty())

	programs, err := b.Programs(10)
	require.NoError(t, err)
	require.Len(t, programs, 1)
	assert.Equal(t, p.ID, programs[0].ID)
	assert.Equal(t, "bracket", programs[0].Name)

	var stored model.Program
	require.NoError(t, b.DB().First(&stored, p.ID).Error)
	assert.True(t, stored.EndedAt.Valid)

	geoms, placements, err := b.Geometries(p.ID)
	require.NoError(t, err)
	require.Len(t, geoms, 2)
	assert.True(t, square(canon.G54).Equal(geoms[0]))
	assert.True(t, square(canon.G55).Equal(geoms[1]))
	assert.Equal(t, 50.0, placements[1].Translate.X)

	trace, err := b.Trace(p.ID)
	require.NoError(t, err)
	require.Len(t, trace, 5)
	assert.Equal(t, uint(1), trace[0].Seq)
	assert.Equal(t, canon.Point3{X: 5, Y: 1, Z: -0.5}, trace[4].Tip)
	assert.True(t, trace[4].Time.Equal(start.Add(5*time.Second)))

	var perf int64
	require.NoError(t, b.DB().Model(&model.WritePerformance{}).Count(&perf).Error)
	assert.Greater(t, perf, int64(0))
}

func TestStartProgram_FlushesPrevious(t *testing.T) {
	b := newSQLiteBackend(t)

	first := &program.Info{Name: "first"}
	require.NoError(t, b.StartProgram(first))
	require.NoError(t, b.RecordGeometry(square(canon.G54), canon.Identity()))

	second := &program.Info{Name: "second"}
	require.NoError(t, b.StartProgram(second))
	require.NoError(t, b.RecordGeometry(square(canon.G56), canon.Identity()))
	require.NoError(t, b.Flush())

	geoms, _, err := b.Geometries(first.ID)
	require.NoError(t, err)
	require.Len(t, geoms, 1)
	assert.Equal(t, canon.G54, geoms[0].Origin)

	geoms, _, err = b.Geometries(second.ID)
	require.NoError(t, err)
	require.Len(t, geoms, 1)
	assert.Equal(t, canon.G56, geoms[0].Origin)
}

func TestCloseWritesPending(t *testing.T) {
	b := newSQLiteBackend(t)
	p := &program.Info{Name: "pending"}
	require.NoError(t, b.StartProgram(p))
	require.NoError(t, b.RecordTrace(&livetrace.Sample{Seq: 1}))

	require.NoError(t, b.Close())
	var count int64
	require.NoError(t, b.DB().Model(&model.TraceSample{}).Where("program_id = ?", p.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// second close is a no-op
	require.NoError(t, b.Close())
}

func TestWriteLoop(t *testing.T) {
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "loop.db"))
	require.NoError(t, err)
	b := New(Dependencies{DB: db, Logger: zerolog.Nop(), WriteInterval: 10 * time.Millisecond})
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartProgram(&program.Info{Name: "loop"}))
	require.NoError(t, b.RecordTrace(&livetrace.Sample{Seq: 1}))

	assert.Eventually(t, func() bool {
		return b.queues.Samples.Empty()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReadsWithoutDB(t *testing.T) {
	b := newQueueOnlyBackend()
	programs, err := b.Programs(5)
	assert.NoError(t, err)
	assert.Empty(t, programs)

	_, _, err = b.Geometries(1)
	assert.ErrorIs(t, err, ErrNoProgram)
	_, err = b.Trace(1)
	assert.ErrorIs(t, err, ErrNoProgram)
}
