package offsets

import (
	"testing"

	"github.com/backplot/backplot/pkg/canon"
	"github.com/stretchr/testify/assert"
)

type fakeRegistrar struct {
	ensured []canon.Origin
}

func (f *fakeRegistrar) Ensure(o canon.Origin) {
	f.ensured = append(f.ensured, o)
}

func TestTransform_DefaultsToIdentity(t *testing.T) {
	tr := New(nil)
	assert.Equal(t, canon.Identity(), tr.Transform(canon.G55))
}

func TestSetFixtureOffset_OnlyTargetOriginChanges(t *testing.T) {
	reg := &fakeRegistrar{}
	tr := New(reg)

	tr.SetFixtureOffset(1, canon.PositionFrom(10, 20, 30))
	before := tr.Transform(canon.G54)

	tr.SetFixtureOffset(2, canon.PositionFrom(-5, 0, 1))

	assert.Equal(t, before, tr.Transform(canon.G54))
	assert.Equal(t, canon.Point3{X: 10, Y: 20, Z: 30}, before.Translate)
	assert.Equal(t, canon.Point3{X: -5, Y: 0, Z: 1}, tr.Transform(canon.G55).Translate)
	assert.Equal(t, []canon.Origin{canon.G54, canon.G55}, reg.ensured)
}

func TestSetFixtureOffset_InvalidIndex(t *testing.T) {
	reg := &fakeRegistrar{}
	tr := New(reg)

	assert.False(t, tr.SetFixtureOffset(0, canon.PositionFrom(1)))
	assert.False(t, tr.SetFixtureOffset(10, canon.PositionFrom(1)))
	assert.Empty(t, reg.ensured)
}

func TestSecondaryOffset_LayersOnActiveFixture(t *testing.T) {
	tr := New(nil)
	tr.SetActiveIndex(3)
	tr.SetFixtureOffset(3, canon.PositionFrom(100, 0, 0))
	tr.SetFixtureOffset(1, canon.PositionFrom(1, 1, 1))

	tr.SetSecondaryOffset(canon.PositionFrom(0, 5, 0))

	assert.Equal(t, canon.Point3{X: 100, Y: 5, Z: 0}, tr.Transform(canon.G56).Translate)
	assert.Equal(t, canon.Point3{X: 1, Y: 1, Z: 1}, tr.Transform(canon.G54).Translate, "inactive origin keeps its transform")
}

func TestSetRotation_AppliesToActive(t *testing.T) {
	tr := New(nil)
	tr.SetActiveIndex(2)

	tr.SetRotation(90)

	assert.Equal(t, 90.0, tr.Transform(canon.G55).RotationZ)
	assert.Equal(t, canon.Identity(), tr.Transform(canon.G54))
	assert.Equal(t, 90.0, tr.Fixture(2).Rotation)
}

func TestPoll_DetectsChanges(t *testing.T) {
	reg := &fakeRegistrar{}
	tr := New(reg)

	s := Sample{Index: 1}
	assert.False(t, tr.Poll(s), "all-zero sample matches initial state")

	s.G5xOffset = canon.PositionFrom(2, 3, 4)
	assert.True(t, tr.Poll(s))
	assert.Equal(t, canon.Point3{X: 2, Y: 3, Z: 4}, tr.Transform(canon.G54).Translate)
	assert.False(t, tr.Poll(s), "repeat sample is not a change")

	s.Index = 4
	s.G92Offset = canon.PositionFrom(1, 0, 0)
	assert.True(t, tr.Poll(s))
	assert.Equal(t, 4, tr.ActiveIndex())
	assert.Equal(t, canon.Point3{X: 3, Y: 3, Z: 4}, tr.Transform(canon.G57).Translate)
	assert.Contains(t, reg.ensured, canon.G57)
}

func TestClone_IsIndependent(t *testing.T) {
	tr := New(nil)
	tr.SetFixtureOffset(1, canon.PositionFrom(1, 0, 0))

	reg := &fakeRegistrar{}
	c := tr.Clone(reg)
	c.SetFixtureOffset(1, canon.PositionFrom(9, 0, 0))
	c.SetFixtureOffset(5, canon.PositionFrom(0, 9, 0))

	assert.Equal(t, 1.0, tr.Transform(canon.G54).Translate.X)
	assert.Equal(t, canon.Identity(), tr.Transform(canon.G58))
	assert.Equal(t, 9.0, c.Transform(canon.G54).Translate.X)
	assert.Equal(t, []canon.Origin{canon.G54, canon.G58}, reg.ensured)
}
