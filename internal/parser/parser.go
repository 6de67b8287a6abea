// Package parser reads single lines of canonical interpreter trace output, e.g.
//
//	12 N0010  STRAIGHT_FEED(1.0000, 2.0000, 0.0000, 0.0000, 0.0000, 0.0000)
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/backplot/backplot/pkg/canon"
)

var (
	// ErrEmpty is returned for blank lines.
	ErrEmpty = errors.New("empty line")
	// ErrSyntax is returned when a line is not a call.
	ErrSyntax = errors.New("malformed call")
)

// Call is one parsed trace line.
type Call struct {
	// Seq is the leading sequence number, 0 if absent.
	Seq int
	// N is the program line word ("N0010"), empty when the trace prints "N.....".
	N    string
	Name string
	Args []string
}

// parseIntFromFloat parses a string that may be an integer ("3") or float ("3.0000").
func parseIntFromFloat(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("parseIntFromFloat: %q is not a valid integer", s)
	}
	return int64(f), nil
}

// ParseCall splits a trace line into its parts.
func ParseCall(line string) (Call, error) {
	var c Call
	rest := strings.TrimSpace(line)
	if rest == "" {
		return c, ErrEmpty
	}

	open := strings.IndexByte(rest, '(')
	if open < 0 || !strings.HasSuffix(rest, ")") {
		return c, fmt.Errorf("%w: %q", ErrSyntax, line)
	}

	head := strings.Fields(rest[:open])
	if len(head) == 0 {
		return c, fmt.Errorf("%w: missing call name in %q", ErrSyntax, line)
	}
	c.Name = head[len(head)-1]
	for _, f := range head[:len(head)-1] {
		switch {
		case strings.HasPrefix(f, "N"):
			if strings.Trim(f[1:], ".") != "" {
				c.N = f
			}
		default:
			seq, err := strconv.Atoi(f)
			if err != nil {
				return c, fmt.Errorf("%w: bad sequence number %q", ErrSyntax, f)
			}
			c.Seq = seq
		}
	}
	if !isIdent(c.Name) {
		return c, fmt.Errorf("%w: bad call name %q", ErrSyntax, c.Name)
	}

	args, err := splitArgs(rest[open+1 : len(rest)-1])
	if err != nil {
		return c, fmt.Errorf("%w: %v in %q", ErrSyntax, err, line)
	}
	c.Args = args
	return c, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// splitArgs splits on commas outside double quotes.
func splitArgs(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var (
		args    []string
		b       strings.Builder
		inQuote bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == ',' && !inQuote:
			args = append(args, strings.TrimSpace(b.String()))
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	if inQuote {
		return nil, errors.New("unterminated string")
	}
	return append(args, strings.TrimSpace(b.String())), nil
}

// Float returns argument i as a number.
func (c Call) Float(i int) (float64, error) {
	if i >= len(c.Args) {
		return 0, fmt.Errorf("%s: missing argument %d", c.Name, i)
	}
	v, err := strconv.ParseFloat(c.Args[i], 64)
	if err != nil {
		return 0, fmt.Errorf("%s: argument %d: %w", c.Name, i, err)
	}
	return v, nil
}

// Int returns argument i as an integer. "3.0000" is accepted.
func (c Call) Int(i int) (int, error) {
	if i >= len(c.Args) {
		return 0, fmt.Errorf("%s: missing argument %d", c.Name, i)
	}
	v, err := parseIntFromFloat(c.Args[i])
	if err != nil {
		return 0, fmt.Errorf("%s: argument %d: %w", c.Name, i, err)
	}
	return int(v), nil
}

// String returns argument i with surrounding quotes removed.
func (c Call) String(i int) string {
	if i >= len(c.Args) {
		return ""
	}
	s := c.Args[i]
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// Position reads up to nine axis values starting at argument from. Axes the trace
// omits (UVW on six-axis machines) are zero.
func (c Call) Position(from int) (canon.Position, error) {
	var p canon.Position
	if from > len(c.Args) {
		return p, fmt.Errorf("%s: missing position at argument %d", c.Name, from)
	}
	for i := 0; i < canon.NumAxes && from+i < len(c.Args); i++ {
		v, err := c.Float(from + i)
		if err != nil {
			return p, err
		}
		p[i] = v
	}
	return p, nil
}

// Plane is the active arc plane.
type Plane int

const (
	PlaneXY Plane = iota
	PlaneYZ
	PlaneXZ
)

func (p Plane) String() string {
	switch p {
	case PlaneYZ:
		return "YZ"
	case PlaneXZ:
		return "XZ"
	default:
		return "XY"
	}
}

// Axes returns the first and second in-plane axes and the normal axis.
func (p Plane) Axes() (first, second, normal canon.Axis) {
	switch p {
	case PlaneYZ:
		return canon.AxisY, canon.AxisZ, canon.AxisX
	case PlaneXZ:
		return canon.AxisZ, canon.AxisX, canon.AxisY
	default:
		return canon.AxisX, canon.AxisY, canon.AxisZ
	}
}

// Plane returns argument i as a plane. UVW planes map onto their XYZ counterparts.
func (c Call) Plane(i int) (Plane, error) {
	s := strings.TrimPrefix(c.String(i), "CANON_PLANE_")
	switch s {
	case "XY", "UV":
		return PlaneXY, nil
	case "YZ", "VW":
		return PlaneYZ, nil
	case "XZ", "UW":
		return PlaneXZ, nil
	}
	return PlaneXY, fmt.Errorf("%s: unknown plane %q", c.Name, c.String(i))
}
