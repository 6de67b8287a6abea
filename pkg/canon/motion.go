// pkg/canon/motion.go
package canon

import (
	"fmt"
	"strings"
)

// MotionKind classifies a canonical motion event. It doubles as the color tag of
// compiled edges.
type MotionKind uint8

const (
	Traverse MotionKind = iota
	Feed
	ArcFeed
	Dwell
	User
)

// MotionKinds lists every kind in declaration order.
var MotionKinds = []MotionKind{Traverse, Feed, ArcFeed, Dwell, User}

func (k MotionKind) String() string {
	switch k {
	case Traverse:
		return "traverse"
	case Feed:
		return "feed"
	case ArcFeed:
		return "arcfeed"
	case Dwell:
		return "dwell"
	case User:
		return "user"
	default:
		return fmt.Sprintf("MotionKind(%d)", uint8(k))
	}
}

// ParseMotionKind is the inverse of MotionKind.String.
func ParseMotionKind(s string) (MotionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "traverse":
		return Traverse, nil
	case "feed":
		return Feed, nil
	case "arcfeed", "arc_feed":
		return ArcFeed, nil
	case "dwell":
		return Dwell, nil
	case "user":
		return User, nil
	}
	return 0, fmt.Errorf("unknown motion kind %q", s)
}

// MarshalText renders the kind by name so exports stay readable.
func (k MotionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name.
func (k *MotionKind) UnmarshalText(b []byte) error {
	v, err := ParseMotionKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// MotionEvent is one canonical motion callback as emitted by the interpreter.
// Dwell events carry no points.
type MotionEvent struct {
	Kind  MotionKind
	Start Position
	End   Position
	// Line is the 1-based source line the interpreter attributed the event to.
	Line int
	// Normalized is set once the event has been converted to display units.
	Normalized bool
}

// HasPoints reports whether the event carries start and end points.
func (e MotionEvent) HasPoints() bool {
	return e.Kind != Dwell
}

// Segment is a unit-normalized motion stored for an origin.
type Segment struct {
	Kind  MotionKind
	Start Position
	End   Position
}

// SegmentFrom drops the interpreter bookkeeping from an event.
func SegmentFrom(e MotionEvent) Segment {
	return Segment{Kind: e.Kind, Start: e.Start, End: e.End}
}
