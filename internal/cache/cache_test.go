package cache

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/backplot/backplot/pkg/canon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const toolTable = `T1 P1 X0 Y0 Z0.511 D0.125 ;1/8 end mill
t2 p2 z1.5 w-0.25 d0.25
; spare pocket

T99 P3 X0.1 Z2 I0 J0 Q1 ;probe
`

func TestParseToolTable(t *testing.T) {
	tools, err := ParseToolTable(strings.NewReader(toolTable))
	require.NoError(t, err)
	require.Len(t, tools, 3)

	t1 := tools[1]
	assert.Equal(t, 1, t1.Pocket)
	assert.Equal(t, 0.511, t1.Offset[canon.AxisZ])
	assert.Equal(t, 0.125, t1.Diameter)
	assert.Equal(t, "1/8 end mill", t1.Comment)

	t2 := tools[2]
	assert.Equal(t, 2, t2.Tool)
	assert.Equal(t, 1.5, t2.Offset[canon.AxisZ])
	assert.Equal(t, -0.25, t2.Offset[canon.AxisW])
	assert.Empty(t, t2.Comment)

	probe := tools[99]
	assert.Equal(t, canon.PositionFrom(0.1, 0, 2), probe.Offset)
	assert.Equal(t, "probe", probe.Comment)
}

func TestParseToolTable_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"bad tool number", "Tx P1 Z1"},
		{"bad pocket", "T1 P1.5"},
		{"bad offset", "T1 Zabc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToolTable(strings.NewReader(tt.input))
			assert.ErrorContains(t, err, "line 1")
		})
	}
}

func TestToolCache_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tool.tbl")
	require.NoError(t, os.WriteFile(path, []byte(toolTable), 0644))

	c := NewToolCache()
	c.Add(Tool{ToolOffset: canon.ToolOffset{Tool: 50}})
	require.NoError(t, c.Load(path))
	assert.Equal(t, 3, c.Len())

	_, ok := c.Get(50)
	assert.False(t, ok, "load replaces the cache")

	assert.Error(t, c.Load(filepath.Join(t.TempDir(), "missing.tbl")))
	assert.Equal(t, 3, c.Len(), "failed load keeps the old table")
}

func TestToolCache_Offset(t *testing.T) {
	c := NewToolCache()
	c.Add(Tool{ToolOffset: canon.ToolOffset{Tool: 3, Offset: canon.PositionFrom(0, 0, 1.25)}})

	off := c.Offset(3)
	assert.Equal(t, 1.25, off.Offset[canon.AxisZ])

	tip := off.TipFrom(canon.PositionFrom(10, 0, 5))
	assert.Equal(t, canon.Point3{X: 10, Z: 3.75}, tip)

	unknown := c.Offset(0)
	assert.Equal(t, canon.ToolOffset{}, unknown)
}

func TestToolCache_Reset(t *testing.T) {
	c := NewToolCache()
	c.Add(Tool{ToolOffset: canon.ToolOffset{Tool: 1}})
	c.Reset()
	assert.Equal(t, 0, c.Len())
}

func TestToolCache_Concurrent(t *testing.T) {
	c := NewToolCache()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			c.Add(Tool{ToolOffset: canon.ToolOffset{Tool: n}})
		}(i)
		go func(n int) {
			defer wg.Done()
			_ = c.Offset(n)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, c.Len())
}

func TestSafeCounter(t *testing.T) {
	var c SafeCounter
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Inc()
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, c.Value())

	c.Set(5)
	assert.Equal(t, 6, c.Inc())
}
