// pkg/canon/color.go
package canon

// Color is an RGBA tuple with 8 bits per channel.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
	A uint8 `json:"a"`
}

// Palette maps motion kinds to edge colors.
type Palette map[MotionKind]Color

// DefaultPalette returns the stock path colors.
func DefaultPalette() Palette {
	return Palette{
		Traverse: {188, 252, 201, 75},
		ArcFeed:  {255, 255, 255, 128},
		Feed:     {255, 255, 255, 84},
		Dwell:    {100, 100, 100, 255},
		User:     {100, 100, 100, 255},
	}
}

// Color returns the color for k, falling back to the default palette.
func (p Palette) Color(k MotionKind) Color {
	if c, ok := p[k]; ok {
		return c
	}
	return DefaultPalette()[k]
}

// Colorize expands the per-edge tags of g into RGBA values.
func (p Palette) Colorize(g *CompiledGeometry) []Color {
	out := make([]Color, len(g.Colors))
	for i, k := range g.Colors {
		out[i] = p.Color(k)
	}
	return out
}
