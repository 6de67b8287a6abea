package sqlitestorage

import (
	"os"
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

func TestEndProgramDumps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots", "backplot.db")
	b, err := New(Config{DumpPath: path}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	p := &program.Info{Name: "dumped", LoadedAt: time.Now()}
	require.NoError(t, b.StartProgram(p))
	require.NoError(t, b.RecordGeometry(&canon.CompiledGeometry{
		Origin:   canon.G54,
		Vertices: []canon.Point3{{}, {X: 1}},
		Lines:    []canon.Edge{{0, 1}},
		Colors:   []canon.MotionKind{canon.Feed},
	}, canon.Identity()))
	require.NoError(t, b.RecordTrace(&livetrace.Sample{Seq: 1}))
	require.NoError(t, b.EndProgram())

	// the dump is a standalone database file
	disk, err := database.OpenSQLite(path)
	require.NoError(t, err)
	var geoms []model.OriginGeometry
	require.NoError(t, disk.Where("program_id = ?", p.ID).Find(&geoms).Error)
	require.Len(t, geoms, 1)
	assert.Equal(t, "G54", geoms[0].Origin)
}

func TestDumpLoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.db")
	b, err := New(Config{DumpPath: path, DumpInterval: 10 * time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, b.Close())
}

func TestNoDumpPath(t *testing.T) {
	b, err := New(Config{}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	require.NoError(t, b.EndProgram())
	require.NoError(t, b.Close())
}
