// Package trace replays the text output of a standalone canonical interpreter
// into an interp.Canon.
package trace

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/backplot/backplot/internal/interp"
	"github.com/backplot/backplot/internal/parser"
	"github.com/backplot/backplot/pkg/canon"
)

// DefaultArcResolution is the chord length used to tessellate arcs, in trace units.
const DefaultArcResolution = 0.1

// Interpreter reads canon trace files. It holds no per-parse state and may be
// reused.
type Interpreter struct {
	resolution float64
	logger     *slog.Logger
}

// New creates a trace interpreter. A non-positive resolution selects the default.
func New(resolution float64, logger *slog.Logger) *Interpreter {
	if resolution <= 0 {
		resolution = DefaultArcResolution
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{resolution: resolution, logger: logger}
}

// Parse opens program and replays it. An unreadable file is reported as
// StatusFileNotOpen.
func (in *Interpreter) Parse(ctx context.Context, program string, c interp.Canon, opts interp.Options) (interp.Result, error) {
	f, err := os.Open(program)
	if err != nil {
		return interp.Result{Status: interp.StatusFileNotOpen, Message: err.Error()}, nil
	}
	defer f.Close()
	return in.ParseReader(ctx, f, c)
}

// ParseReader replays trace lines from r.
func (in *Interpreter) ParseReader(ctx context.Context, r io.Reader, c interp.Canon) (interp.Result, error) {
	st := &state{in: in, canon: c}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return interp.Result{}, err
		}
		call, err := parser.ParseCall(sc.Text())
		if errors.Is(err, parser.ErrEmpty) {
			continue
		}
		if err != nil {
			return interp.Result{Status: interp.StatusError, Line: line, Message: err.Error()}, nil
		}
		c.NextLine(line)
		done, err := st.apply(call)
		if err != nil {
			return interp.Result{Status: interp.StatusError, Line: line, Message: err.Error()}, nil
		}
		if done {
			return interp.Result{Status: interp.StatusExit, Line: line}, nil
		}
	}
	if err := sc.Err(); err != nil {
		return interp.Result{}, fmt.Errorf("reading trace: %w", err)
	}
	return interp.Result{Status: interp.StatusEndFile, Line: line}, nil
}

type state struct {
	in      *Interpreter
	canon   interp.Canon
	current canon.Position
	plane   parser.Plane
}

// apply dispatches one call. It reports true when the program ended.
func (s *state) apply(c parser.Call) (bool, error) {
	switch c.Name {
	case "STRAIGHT_TRAVERSE":
		return false, s.straight(c, s.canon.StraightTraverse)
	case "STRAIGHT_FEED", "STRAIGHT_PROBE", "RIGID_TAP":
		return false, s.straight(c, s.canon.StraightFeed)
	case "USER_DEFINED", "USER_DEFINED_FUNCTION_CALL":
		// Carries no coordinates; drawn as a zero-length user move at the tool.
		s.canon.UserDefined(s.current, s.current)
	case "ARC_FEED":
		return false, s.arc(c)
	case "DWELL":
		s.canon.Dwell()
	case "SELECT_PLANE":
		p, err := c.Plane(0)
		if err != nil {
			return false, err
		}
		s.plane = p
	case "SET_G5X_OFFSET":
		index, err := c.Int(0)
		if err != nil {
			return false, err
		}
		off, err := c.Position(1)
		if err != nil {
			return false, err
		}
		s.canon.SetFixtureOffset(index, off)
		s.canon.SelectCoordinateSystem(index)
	case "SELECT_COORDINATE_SYSTEM":
		index, err := c.Int(0)
		if err != nil {
			return false, err
		}
		s.canon.SelectCoordinateSystem(index)
	case "SET_G92_OFFSET":
		off, err := c.Position(0)
		if err != nil {
			return false, err
		}
		s.canon.SetSecondaryOffset(off)
	case "SET_XY_ROTATION":
		angle, err := c.Float(0)
		if err != nil {
			return false, err
		}
		s.canon.SetRotation(angle)
	case "COMMENT", "MESSAGE":
		s.canon.Comment(c.String(0))
	case "PROGRAM_END", "PROGRAM_STOP":
		return true, nil
	default:
		s.in.logger.Debug("ignoring canon call", "call", c.Name, "seq", c.Seq)
	}
	return false, nil
}

func (s *state) straight(c parser.Call, emit func(start, end canon.Position)) error {
	end, err := c.Position(0)
	if err != nil {
		return err
	}
	emit(s.current, end)
	s.current = end
	return nil
}

// arc handles ARC_FEED(first_end, second_end, first_center, second_center,
// rotation, axis_end, a, b, c[, u, v, w]). Positive rotation is counter-clockwise.
func (s *state) arc(c parser.Call) error {
	vals := make([]float64, 6)
	for i := range vals {
		v, err := c.Float(i)
		if err != nil {
			return err
		}
		vals[i] = v
	}
	rotation := int(vals[4])
	first, second, normal := s.plane.Axes()

	end := s.current
	end[first], end[second], end[normal] = vals[0], vals[1], vals[5]
	for i := 0; i < 6 && 6+i < len(c.Args); i++ {
		v, err := c.Float(6 + i)
		if err != nil {
			return err
		}
		end[int(canon.AxisA)+i] = v
	}

	for _, p := range tessellate(s.current, end, vals[2], vals[3], rotation, first, second, s.in.resolution) {
		s.canon.ArcFeed(s.current, p)
		s.current = p
	}
	return nil
}

// tessellate returns the chord end points of an arc from start to end about the
// in-plane center (cf, cs). The last point is exactly end.
func tessellate(start, end canon.Position, cf, cs float64, rotation int, first, second canon.Axis, resolution float64) []canon.Position {
	if rotation == 0 {
		return []canon.Position{end}
	}
	rf, rs := start[first]-cf, start[second]-cs
	radius := math.Hypot(rf, rs)
	a0 := math.Atan2(rs, rf)
	a1 := math.Atan2(end[second]-cs, end[first]-cf)

	travel := a1 - a0
	if rotation > 0 {
		for travel <= 0 {
			travel += 2 * math.Pi
		}
		travel += float64(rotation-1) * 2 * math.Pi
	} else {
		for travel >= 0 {
			travel -= 2 * math.Pi
		}
		travel += float64(rotation+1) * 2 * math.Pi
	}

	flat := math.Abs(radius * travel)
	segments := math.Max(1, math.Floor(flat/resolution))
	n := int(segments)

	out := make([]canon.Position, 0, n)
	for i := 1; i < n; i++ {
		t := float64(i) / segments
		theta := a0 + travel*t
		var p canon.Position
		for ax := range p {
			p[ax] = start[ax] + (end[ax]-start[ax])*t
		}
		p[first] = cf + radius*math.Cos(theta)
		p[second] = cs + radius*math.Sin(theta)
		out = append(out, p)
	}
	return append(out, end)
}
