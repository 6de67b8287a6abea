package backplot

import (
	"log/slog"

	"github.com/backplot/backplot/internal/offsets"
	"github.com/backplot/backplot/internal/units"
	"github.com/backplot/backplot/pkg/canon"
)

// Stats counts the motion events seen during one parse pass.
type Stats struct {
	Recorded   int                      `json:"recorded"`
	Suppressed int                      `json:"suppressed"`
	ByKind     map[canon.MotionKind]int `json:"byKind"`
	Comments   int                      `json:"comments"`
	LastLine   int                      `json:"lastLine"`
}

// Accumulator receives canonical callbacks and files normalized segments under the
// active origin. It implements interp.Canon.
//
// The interpreter emits a transitional motion anchored to the old origin right after
// a coordinate system change. A switch arms suppression of exactly one motion;
// further switches before it is consumed do not add to it.
type Accumulator struct {
	normalizer *units.Normalizer
	registry   *Registry
	offsets    *offsets.Tracker
	logger     *slog.Logger

	active       canon.Origin
	previous     canon.Origin
	suppressNext bool

	// last normalized end point per origin, anchors dwells
	anchors map[canon.Origin]canon.Position
	// dwells seen before their origin had any motion; placed at the next start
	deferred map[canon.Origin][]canon.MotionEvent
	line     int
	stats    Stats
}

// NewAccumulator creates an accumulator with a fresh registry. Offset callbacks are
// forwarded to tracker, which is bound to the new registry.
func NewAccumulator(n *units.Normalizer, tracker *offsets.Tracker, logger *slog.Logger) *Accumulator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Accumulator{
		normalizer: n,
		registry:   NewRegistry(),
		offsets:    tracker,
		logger:     logger,
		active:     canon.DefaultOrigin,
		previous:   canon.DefaultOrigin,
		anchors:    make(map[canon.Origin]canon.Position),
		deferred:   make(map[canon.Origin][]canon.MotionEvent),
		stats:      Stats{ByKind: make(map[canon.MotionKind]int)},
	}
	if tracker != nil {
		tracker.Bind(a.registry)
	}
	return a
}

// Registry returns the origin registry filled by this accumulator.
func (a *Accumulator) Registry() *Registry {
	return a.registry
}

// Offsets returns the tracker receiving offset callbacks.
func (a *Accumulator) Offsets() *offsets.Tracker {
	return a.offsets
}

// Active returns the active origin.
func (a *Accumulator) Active() canon.Origin {
	return a.active
}

// Stats returns a copy of the counters.
func (a *Accumulator) Stats() Stats {
	s := a.stats
	s.ByKind = make(map[canon.MotionKind]int, len(a.stats.ByKind))
	for k, v := range a.stats.ByKind {
		s.ByKind[k] = v
	}
	return s
}

// SelectOrigin makes origin active, creating its entry on first use. Selecting the
// active origin changes nothing.
func (a *Accumulator) SelectOrigin(origin canon.Origin) {
	a.registry.Ensure(origin)
	if origin == a.active {
		return
	}
	a.previous = a.active
	a.active = origin
	a.suppressNext = true
}

// Record normalizes e and appends it to the active origin unless it is the
// transitional motion following an origin switch.
func (a *Accumulator) Record(e canon.MotionEvent) {
	if a.suppressNext {
		a.suppressNext = false
		a.stats.Suppressed++
		a.logger.Debug("dropping transitional motion", "line", e.Line, "kind", e.Kind, "origin", a.active, "previous", a.previous)
		return
	}

	e = a.normalizer.Normalize(e)
	if !e.HasPoints() {
		anchor, ok := a.anchors[a.active]
		if !ok {
			// the origin has no position yet; a dwell here would join the old origin
			a.deferred[a.active] = append(a.deferred[a.active], e)
			return
		}
		e.Start, e.End = anchor, anchor
	} else {
		for _, d := range a.deferred[a.active] {
			d.Start, d.End = e.Start, e.Start
			a.commit(d)
		}
		delete(a.deferred, a.active)
	}
	a.anchors[a.active] = e.End
	a.commit(e)
}

func (a *Accumulator) commit(e canon.MotionEvent) {
	a.registry.Append(a.active, canon.SegmentFrom(e))
	a.stats.Recorded++
	a.stats.ByKind[e.Kind]++
}

// Deferred returns the number of dwells still waiting for motion in their origin.
// They are dropped if none follows.
func (a *Accumulator) Deferred() int {
	n := 0
	for _, d := range a.deferred {
		n += len(d)
	}
	return n
}

func (a *Accumulator) motion(kind canon.MotionKind, start, end canon.Position) {
	a.Record(canon.MotionEvent{Kind: kind, Start: start, End: end, Line: a.line})
}

// NextLine records the source line of the following callbacks.
func (a *Accumulator) NextLine(line int) {
	a.line = line
	a.stats.LastLine = line
}

func (a *Accumulator) StraightTraverse(start, end canon.Position) {
	a.motion(canon.Traverse, start, end)
}

func (a *Accumulator) StraightFeed(start, end canon.Position) {
	a.motion(canon.Feed, start, end)
}

func (a *Accumulator) ArcFeed(start, end canon.Position) {
	a.motion(canon.ArcFeed, start, end)
}

func (a *Accumulator) UserDefined(start, end canon.Position) {
	a.motion(canon.User, start, end)
}

func (a *Accumulator) Dwell() {
	a.Record(canon.MotionEvent{Kind: canon.Dwell, Line: a.line})
}

// SelectCoordinateSystem switches to the origin of index (1..9).
func (a *Accumulator) SelectCoordinateSystem(index int) {
	origin, ok := canon.OriginForIndex(index)
	if !ok {
		a.logger.Warn("ignoring invalid coordinate system", "index", index, "line", a.line)
		return
	}
	a.SelectOrigin(origin)
	if a.offsets != nil {
		a.offsets.SetActiveIndex(index)
	}
}

// SetFixtureOffset stores the offset of coordinate system index in display units.
func (a *Accumulator) SetFixtureOffset(index int, offset canon.Position) {
	if _, ok := canon.OriginForIndex(index); !ok {
		a.logger.Warn("ignoring fixture offset for invalid coordinate system", "index", index, "line", a.line)
		return
	}
	if a.offsets != nil {
		a.offsets.SetFixtureOffset(index, a.normalizer.Scale(offset))
	} else {
		origin, _ := canon.OriginForIndex(index)
		a.registry.Ensure(origin)
	}
}

func (a *Accumulator) SetSecondaryOffset(offset canon.Position) {
	if a.offsets != nil {
		a.offsets.SetSecondaryOffset(a.normalizer.Scale(offset))
	}
}

func (a *Accumulator) SetRotation(angle float64) {
	if a.offsets != nil {
		a.offsets.SetRotation(angle)
	}
}

func (a *Accumulator) Comment(text string) {
	a.stats.Comments++
	a.logger.Debug("program comment", "line", a.line, "text", text)
}
