package trace

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/backplot/backplot/internal/interp"
	"github.com/backplot/backplot/pkg/canon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type move struct {
	kind       canon.MotionKind
	start, end canon.Position
}

type recordingCanon struct {
	lines    []int
	moves    []move
	calls    []string
	fixtures map[int]canon.Position
	g92      canon.Position
	rotation float64
	comments []string
}

func newRecordingCanon() *recordingCanon {
	return &recordingCanon{fixtures: make(map[int]canon.Position)}
}

func (r *recordingCanon) NextLine(line int) { r.lines = append(r.lines, line) }
func (r *recordingCanon) StraightTraverse(s, e canon.Position) {
	r.moves = append(r.moves, move{canon.Traverse, s, e})
}
func (r *recordingCanon) StraightFeed(s, e canon.Position) {
	r.moves = append(r.moves, move{canon.Feed, s, e})
}
func (r *recordingCanon) ArcFeed(s, e canon.Position) {
	r.moves = append(r.moves, move{canon.ArcFeed, s, e})
}
func (r *recordingCanon) UserDefined(s, e canon.Position) {
	r.moves = append(r.moves, move{canon.User, s, e})
}
func (r *recordingCanon) Dwell() { r.moves = append(r.moves, move{kind: canon.Dwell}) }
func (r *recordingCanon) SelectCoordinateSystem(index int) {
	r.calls = append(r.calls, "select")
}
func (r *recordingCanon) SetFixtureOffset(index int, off canon.Position) {
	r.calls = append(r.calls, "fixture")
	r.fixtures[index] = off
}
func (r *recordingCanon) SetSecondaryOffset(off canon.Position) { r.g92 = off }
func (r *recordingCanon) SetRotation(angle float64)             { r.rotation = angle }
func (r *recordingCanon) Comment(text string)                   { r.comments = append(r.comments, text) }

func parse(t *testing.T, text string, resolution float64) (*recordingCanon, interp.Result) {
	t.Helper()
	c := newRecordingCanon()
	res, err := New(resolution, nil).ParseReader(context.Background(), strings.NewReader(text), c)
	require.NoError(t, err)
	return c, res
}

func TestParseReader_StraightMoves(t *testing.T) {
	c, res := parse(t, `
    1 N..... STRAIGHT_TRAVERSE(10.0000, 0.0000, 0.0000, 0.0000, 0.0000, 0.0000)
    2 N0020  STRAIGHT_FEED(10.0000, 10.0000, 0.0000, 0.0000, 0.0000, 0.0000)
    3 N..... DWELL(0.5000)
`, 0)

	assert.Equal(t, interp.StatusEndFile, res.Status)
	assert.False(t, res.Failed())
	require.Len(t, c.moves, 3)
	assert.Equal(t, move{canon.Traverse, canon.Position{}, canon.PositionFrom(10)}, c.moves[0])
	assert.Equal(t, move{canon.Feed, canon.PositionFrom(10), canon.PositionFrom(10, 10)}, c.moves[1])
	assert.Equal(t, canon.Dwell, c.moves[2].kind)
	assert.Equal(t, []int{2, 3, 4}, c.lines, "blank first line still counts")
}

func TestParseReader_ProgramEndStops(t *testing.T) {
	c, res := parse(t, "STRAIGHT_FEED(1, 0, 0)\nPROGRAM_END()\nSTRAIGHT_FEED(2, 0, 0)\n", 0)

	assert.Equal(t, interp.StatusExit, res.Status)
	assert.Equal(t, 2, res.Line)
	assert.Len(t, c.moves, 1)
}

func TestParseReader_ErrorLine(t *testing.T) {
	c, res := parse(t, "STRAIGHT_FEED(1, 0, 0)\nCOMMENT(\"ok\")\nSTRAIGHT_FEED(abc, 0, 0)\nSTRAIGHT_FEED(3, 0, 0)\n", 0)

	assert.Equal(t, interp.StatusError, res.Status)
	assert.Equal(t, 3, res.Line)
	assert.True(t, res.Failed())
	assert.Len(t, c.moves, 1)
	assert.Equal(t, []string{"ok"}, c.comments)

	var pf *interp.ParseFailure
	require.ErrorAs(t, res.Err(), &pf)
	assert.Equal(t, 3, pf.Line)
}

func TestParseReader_MalformedLine(t *testing.T) {
	_, res := parse(t, "STRAIGHT_FEED(1, 0, 0)\nnot a call\n", 0)
	assert.Equal(t, interp.StatusError, res.Status)
	assert.Equal(t, 2, res.Line)
}

func TestParseReader_Offsets(t *testing.T) {
	c, _ := parse(t, `
SET_G5X_OFFSET(2, 5.0000, 6.0000, 7.0000, 0.0000, 0.0000, 0.0000)
SET_G92_OFFSET(1.0000, 0.0000, 0.0000, 0.0000, 0.0000, 0.0000, 0.0000, 0.0000, 2.0000)
SET_XY_ROTATION(30.0000)
SELECT_COORDINATE_SYSTEM(3)
USE_LENGTH_UNITS(CANON_UNITS_MM)
`, 0)

	assert.Equal(t, []string{"fixture", "select", "select"}, c.calls)
	assert.Equal(t, canon.PositionFrom(5, 6, 7), c.fixtures[2])
	assert.Equal(t, canon.PositionFrom(1, 0, 0, 0, 0, 0, 0, 0, 2), c.g92)
	assert.Equal(t, 30.0, c.rotation)
}

func TestParseReader_UserDefinedAtCurrent(t *testing.T) {
	c, _ := parse(t, "STRAIGHT_TRAVERSE(1, 2, 3)\nUSER_DEFINED_FUNCTION_CALL(101, 0, 0)\n", 0)

	require.Len(t, c.moves, 2)
	assert.Equal(t, move{canon.User, canon.PositionFrom(1, 2, 3), canon.PositionFrom(1, 2, 3)}, c.moves[1])
}

func radiusOf(p canon.Position, cx, cy float64) float64 {
	return math.Hypot(p[0]-cx, p[1]-cy)
}

func TestParseReader_ArcCounterClockwise(t *testing.T) {
	c, _ := parse(t, "STRAIGHT_FEED(1, 0, 0)\nARC_FEED(0.0000, 1.0000, 0.0000, 0.0000, 1, 0.0000, 0.0000, 0.0000, 0.0000)\n", 0.5)

	arcs := c.moves[1:]
	require.Len(t, arcs, 3, "quarter circle of radius 1 at 0.5 resolution")
	assert.Equal(t, canon.PositionFrom(1), arcs[0].start)
	for i, m := range arcs {
		assert.Equal(t, canon.ArcFeed, m.kind)
		assert.InDelta(t, 1.0, radiusOf(m.end, 0, 0), 1e-9)
		if i > 0 {
			assert.Equal(t, arcs[i-1].end, m.start, "chords are contiguous")
		}
	}
	assert.InDelta(t, math.Cos(math.Pi/6), arcs[0].end[0], 1e-9)
	assert.Equal(t, canon.PositionFrom(0, 1), arcs[2].end)
}

func TestParseReader_ArcClockwiseTakesLongWay(t *testing.T) {
	c, _ := parse(t, "STRAIGHT_FEED(1, 0, 0)\nARC_FEED(0, 1, 0, 0, -1, 0)\n", 0.5)

	arcs := c.moves[1:]
	require.Greater(t, len(arcs), 3)
	assert.Less(t, arcs[0].end[1], 0.0, "clockwise from +X heads to -Y")
	assert.Equal(t, canon.PositionFrom(0, 1), arcs[len(arcs)-1].end)
}

func TestParseReader_ArcHelixAndPlane(t *testing.T) {
	c, _ := parse(t, "SELECT_PLANE(CANON_PLANE_XZ)\nSTRAIGHT_FEED(0, 0, 1)\nARC_FEED(0, -1, 0, 0, 1, 4)\n", 100)

	require.Len(t, c.moves, 2)
	// In XZ the first axis is Z, the second X and the helix runs along Y.
	assert.Equal(t, canon.PositionFrom(-1, 4, 0), c.moves[1].end)
}

func TestParseReader_FullCircle(t *testing.T) {
	c, _ := parse(t, "STRAIGHT_FEED(1, 0, 0)\nARC_FEED(1, 0, 0, 0, 1, 0)\n", 1)

	arcs := c.moves[1:]
	require.Len(t, arcs, 6, "circumference 2pi at resolution 1")
	assert.Equal(t, canon.PositionFrom(1), arcs[len(arcs)-1].end)
}

func TestParseReader_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(0, nil).ParseReader(ctx, strings.NewReader("STRAIGHT_FEED(1, 0, 0)\n"), newRecordingCanon())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParse_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.canon")
	require.NoError(t, os.WriteFile(path, []byte("STRAIGHT_TRAVERSE(1, 0, 0)\n"), 0o644))

	c := newRecordingCanon()
	res, err := New(0, nil).Parse(context.Background(), path, c, interp.Options{})
	require.NoError(t, err)
	assert.Equal(t, interp.StatusEndFile, res.Status)
	assert.Len(t, c.moves, 1)
}

func TestParse_MissingFile(t *testing.T) {
	res, err := New(0, nil).Parse(context.Background(), filepath.Join(t.TempDir(), "nope"), newRecordingCanon(), interp.Options{})
	require.NoError(t, err)
	assert.Equal(t, interp.StatusFileNotOpen, res.Status)
	assert.True(t, res.Failed())
}
