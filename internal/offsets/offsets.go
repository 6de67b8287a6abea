// Package offsets tracks fixture, secondary and rotation offsets and derives the
// placement transform of each origin's compiled geometry.
package offsets

import (
	"github.com/backplot/backplot/pkg/canon"
)

// Registrar creates placeholder registry entries for origins referenced before
// any geometry exists for them.
type Registrar interface {
	Ensure(origin canon.Origin)
}

// Fixture is the offset of one coordinate system.
type Fixture struct {
	Offset   canon.Position `json:"offset"`
	Rotation float64        `json:"rotation"`
}

// Sample is a snapshot of live offset state obtained by polling the controller.
type Sample struct {
	Index     int            `json:"g5xIndex"`
	G5xOffset canon.Position `json:"g5xOffset"`
	G92Offset canon.Position `json:"g92Offset"`
	Rotation  float64        `json:"rotationXY"`
}

// Tracker holds the last known offsets. It never touches compiled vertex data.
type Tracker struct {
	active     int
	fixtures   map[int]Fixture
	secondary  canon.Position
	transforms map[canon.Origin]canon.Transform
	registrar  Registrar
}

// New creates a tracker with coordinate system 1 active and all offsets zero.
func New(r Registrar) *Tracker {
	return &Tracker{
		active:     1,
		fixtures:   make(map[int]Fixture),
		transforms: make(map[canon.Origin]canon.Transform),
		registrar:  r,
	}
}

// Bind replaces the registrar.
func (t *Tracker) Bind(r Registrar) {
	t.registrar = r
}

// Clone returns an independent copy bound to r.
func (t *Tracker) Clone(r Registrar) *Tracker {
	c := &Tracker{
		active:     t.active,
		fixtures:   make(map[int]Fixture, len(t.fixtures)),
		secondary:  t.secondary,
		transforms: make(map[canon.Origin]canon.Transform, len(t.transforms)),
		registrar:  r,
	}
	for k, v := range t.fixtures {
		c.fixtures[k] = v
	}
	for k, v := range t.transforms {
		c.transforms[k] = v
	}
	return c
}

// ActiveIndex returns the active coordinate system index.
func (t *Tracker) ActiveIndex() int {
	return t.active
}

// Fixture returns the stored offset of a coordinate system.
func (t *Tracker) Fixture(index int) Fixture {
	return t.fixtures[index]
}

// Secondary returns the secondary (G92) offset.
func (t *Tracker) Secondary() canon.Position {
	return t.secondary
}

// SetActiveIndex records which coordinate system is active. Transforms are not
// recomputed until an offset changes.
func (t *Tracker) SetActiveIndex(index int) bool {
	if _, ok := canon.OriginForIndex(index); !ok {
		return false
	}
	t.active = index
	return true
}

// SetFixtureOffset stores the offset of coordinate system index and recomputes the
// transform of that origin only.
func (t *Tracker) SetFixtureOffset(index int, offset canon.Position) bool {
	origin, ok := canon.OriginForIndex(index)
	if !ok {
		return false
	}
	f := t.fixtures[index]
	f.Offset = offset
	t.fixtures[index] = f
	t.recompute(origin, index)
	return true
}

// SetSecondaryOffset stores the secondary offset and recomputes the active origin.
func (t *Tracker) SetSecondaryOffset(offset canon.Position) {
	t.secondary = offset
	t.recomputeActive()
}

// SetRotation stores the rotation of the active coordinate system and recomputes it.
func (t *Tracker) SetRotation(angle float64) {
	f := t.fixtures[t.active]
	f.Rotation = angle
	t.fixtures[t.active] = f
	t.recomputeActive()
}

// Poll applies a live sample and reports whether anything changed.
func (t *Tracker) Poll(s Sample) bool {
	changed := false
	if s.Index != t.active && t.SetActiveIndex(s.Index) {
		changed = true
	}
	f := t.fixtures[t.active]
	if f.Offset != s.G5xOffset || f.Rotation != s.Rotation {
		f.Offset = s.G5xOffset
		f.Rotation = s.Rotation
		t.fixtures[t.active] = f
		changed = true
	}
	if t.secondary != s.G92Offset {
		t.secondary = s.G92Offset
		changed = true
	}
	if changed {
		t.recomputeActive()
	}
	return changed
}

// Transform returns the placement of origin, or identity if none was computed.
func (t *Tracker) Transform(origin canon.Origin) canon.Transform {
	if tr, ok := t.transforms[origin]; ok {
		return tr
	}
	return canon.Identity()
}

func (t *Tracker) recomputeActive() {
	origin, ok := canon.OriginForIndex(t.active)
	if !ok {
		return
	}
	t.recompute(origin, t.active)
}

func (t *Tracker) recompute(origin canon.Origin, index int) {
	if t.registrar != nil {
		t.registrar.Ensure(origin)
	}
	f := t.fixtures[index]
	t.transforms[origin] = canon.Transform{
		Translate: f.Offset.XYZ().Add(t.secondary.XYZ()),
		RotationZ: f.Rotation,
	}
}
