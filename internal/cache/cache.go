package cache

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/backplot/backplot/pkg/canon"
)

// axisWords maps tool table words to the offset axes they set.
var axisWords = map[byte]canon.Axis{
	'X': canon.AxisX, 'Y': canon.AxisY, 'Z': canon.AxisZ,
	'A': canon.AxisA, 'B': canon.AxisB, 'C': canon.AxisC,
	'U': canon.AxisU, 'V': canon.AxisV, 'W': canon.AxisW,
}

// Tool is one tool table entry.
type Tool struct {
	canon.ToolOffset
	Pocket   int     `json:"pocket"`
	Diameter float64 `json:"diameter"`
	Comment  string  `json:"comment,omitempty"`
}

// ToolCache caches the machine tool table so the poll loop can derive tool tips
// without touching the file. Latency in these calls is critical.
type ToolCache struct {
	m     sync.RWMutex
	tools map[int]Tool
}

func NewToolCache() *ToolCache {
	return &ToolCache{tools: make(map[int]Tool)}
}

func (c *ToolCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.tools = make(map[int]Tool)
}

func (c *ToolCache) Len() int {
	c.m.RLock()
	defer c.m.RUnlock()
	return len(c.tools)
}

func (c *ToolCache) Get(number int) (Tool, bool) {
	c.m.RLock()
	defer c.m.RUnlock()
	t, ok := c.tools[number]
	return t, ok
}

func (c *ToolCache) Add(t Tool) {
	c.m.Lock()
	defer c.m.Unlock()
	c.tools[t.Tool] = t
}

// Offset returns the length offsets of a tool. Unknown tools and T0 have none.
func (c *ToolCache) Offset(number int) canon.ToolOffset {
	if t, ok := c.Get(number); ok {
		return t.ToolOffset
	}
	return canon.ToolOffset{Tool: number}
}

// Load replaces the cache content with the tool table at path.
func (c *ToolCache) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening tool table: %w", err)
	}
	defer f.Close()

	tools, err := ParseToolTable(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	c.m.Lock()
	defer c.m.Unlock()
	c.tools = tools
	return nil
}

// ParseToolTable reads a LinuxCNC style tool table:
//
//	T1 P1 X0 Y0 Z1.5 D0.25 ;6mm end mill
//
// Lines without a T word are skipped.
func ParseToolTable(r io.Reader) (map[int]Tool, error) {
	tools := make(map[int]Tool)
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		var comment string
		if i := strings.IndexByte(text, ';'); i >= 0 {
			comment = strings.TrimSpace(text[i+1:])
			text = text[:i]
		}

		t := Tool{Comment: comment}
		hasTool := false
		for _, word := range strings.Fields(text) {
			letter := word[0] &^ 0x20 // upper case
			value := word[1:]
			switch letter {
			case 'T', 'P':
				n, err := strconv.Atoi(value)
				if err != nil {
					return nil, fmt.Errorf("line %d: bad %c word %q", line, letter, word)
				}
				if letter == 'T' {
					t.Tool, hasTool = n, true
				} else {
					t.Pocket = n
				}
			default:
				f, err := strconv.ParseFloat(value, 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: bad %c word %q", line, letter, word)
				}
				if axis, ok := axisWords[letter]; ok {
					t.Offset[axis] = f
				} else if letter == 'D' {
					t.Diameter = f
				}
			}
		}
		if hasTool {
			tools[t.Tool] = t
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return tools, nil
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

// Inc increments the counter and returns the new value.
func (c *SafeCounter) Inc() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v++
	return c.v
}
