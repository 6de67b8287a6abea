// Package units converts canonical motion events into the display unit.
package units

import (
	"errors"
	"strings"

	"github.com/backplot/backplot/pkg/canon"
)

// MMPerInch is the fixed imperial to metric conversion factor.
const MMPerInch = 25.4

// ErrUnitConfigurationMissing is returned when no usable linear unit is configured.
// The accompanying mode is always Metric.
var ErrUnitConfigurationMissing = errors.New("linear units not configured, defaulting to metric")

// Mode is a linear unit system.
type Mode int

const (
	Metric Mode = iota
	Imperial
)

func (m Mode) String() string {
	if m == Imperial {
		return "inch"
	}
	return "mm"
}

// ParseMode reads a configured linear unit name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mm", "metric", "millimeter", "millimeters":
		return Metric, nil
	case "in", "inch", "inches", "inchs", "imperial":
		return Imperial, nil
	default:
		return Metric, ErrUnitConfigurationMissing
	}
}

// Normalizer converts events from the interpreter's native unit to the display unit.
// The modes are fixed at construction.
type Normalizer struct {
	display Mode
	native  Mode
	factor  float64
}

// New creates a normalizer for the given display and interpreter-native units.
func New(display, native Mode) *Normalizer {
	factor := 1.0
	switch {
	case display == Metric && native == Imperial:
		factor = MMPerInch
	case display == Imperial && native == Metric:
		factor = 1 / MMPerInch
	}
	return &Normalizer{display: display, native: native, factor: factor}
}

// Display returns the display unit.
func (n *Normalizer) Display() Mode {
	return n.display
}

// Factor returns the multiplier applied to every axis value.
func (n *Normalizer) Factor() float64 {
	return n.factor
}

// Scale converts a single position.
func (n *Normalizer) Scale(p canon.Position) canon.Position {
	if n.factor == 1 {
		return p
	}
	return p.Scale(n.factor)
}

// Normalize converts the start and end points of e. Events already normalized are
// returned unchanged; dwell events carry no points and are only tagged.
func (n *Normalizer) Normalize(e canon.MotionEvent) canon.MotionEvent {
	if e.Normalized {
		return e
	}
	e.Normalized = true
	if !e.HasPoints() {
		return e
	}
	e.Start = n.Scale(e.Start)
	e.End = n.Scale(e.End)
	return e
}
