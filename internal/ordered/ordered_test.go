package ordered

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap_InsertionOrder(t *testing.T) {
	m := New[int, string]()
	m.Set(590, "g59")
	m.Set(540, "g54")
	m.Set(560, "g56")
	m.Set(540, "again")

	assert.Equal(t, []int{590, 540, 560}, m.Keys())
	v, ok := m.Get(540)
	assert.True(t, ok)
	assert.Equal(t, "again", v)
	assert.Equal(t, 3, m.Len())
}

func TestMap_GetOrCreate(t *testing.T) {
	m := New[string, []int]()

	v, created := m.GetOrCreate("a", func() []int { return []int{1} })
	assert.True(t, created)
	assert.Equal(t, []int{1}, v)

	v, created = m.GetOrCreate("a", func() []int { return []int{2} })
	assert.False(t, created)
	assert.Equal(t, []int{1}, v)
}

func TestMap_EachAndClear(t *testing.T) {
	m := New[string, int]()
	m.Set("x", 1)
	m.Set("y", 2)

	var seen []string
	m.Each(func(k string, v int) { seen = append(seen, k) })
	assert.Equal(t, []string{"x", "y"}, seen)

	m.Clear()
	assert.Equal(t, 0, m.Len())
	assert.False(t, m.Has("x"))
}

func TestMap_CloneIsIndependent(t *testing.T) {
	m := New[string, int]()
	m.Set("a", 1)

	c := m.Clone()
	c.Set("b", 2)
	c.Set("a", 10)

	assert.Equal(t, []string{"a"}, m.Keys())
	v, _ := m.Get("a")
	assert.Equal(t, 1, v)
	assert.Equal(t, []string{"a", "b"}, c.Keys())
}
