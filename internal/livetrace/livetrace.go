// Package livetrace records the executed tool path as a single growing polyline.
package livetrace

import (
	"time"

	"github.com/backplot/backplot/pkg/canon"
)

// Recorder holds sampled tool-tip points and the edges joining them.
// It is not safe for concurrent use.
type Recorder struct {
	points []canon.Point3
	lines  []canon.Edge
}

// New creates a recorder starting at the given tool tip.
func New(start canon.Point3) *Recorder {
	r := &Recorder{}
	r.reset(start)
	return r
}

// Append adds p and joins it to the previous point.
func (r *Recorder) Append(p canon.Point3) {
	r.points = append(r.points, p)
	if n := len(r.points); n > 1 {
		r.lines = append(r.lines, canon.Edge{n - 2, n - 1})
	}
}

// Clear drops the trace and restarts it at the current tool tip.
func (r *Recorder) Clear() {
	r.reset(r.Current())
}

// ClearAt drops the trace and restarts it at p.
func (r *Recorder) ClearAt(p canon.Point3) {
	r.reset(p)
}

func (r *Recorder) reset(p canon.Point3) {
	r.points = []canon.Point3{p}
	r.lines = nil
}

// Current returns the most recent point.
func (r *Recorder) Current() canon.Point3 {
	if len(r.points) == 0 {
		return canon.Point3{}
	}
	return r.points[len(r.points)-1]
}

// Points returns the recorded points. The slice must not be modified.
func (r *Recorder) Points() []canon.Point3 {
	return r.points
}

// Lines returns the edges. The slice must not be modified.
func (r *Recorder) Lines() []canon.Edge {
	return r.lines
}

// Len returns the number of points.
func (r *Recorder) Len() int {
	return len(r.points)
}

// Sample is one polled tool tip, as archived and streamed to time series stores.
type Sample struct {
	Time time.Time    `json:"time"`
	Seq  uint         `json:"seq"`
	Tool int          `json:"tool"`
	Tip  canon.Point3 `json:"tip"`
}
