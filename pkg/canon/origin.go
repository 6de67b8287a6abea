// pkg/canon/origin.go
package canon

import "fmt"

// Origin identifies one of the nine fixed coordinate systems (G54 through G59.3).
type Origin int

const (
	G54  Origin = 540
	G55  Origin = 550
	G56  Origin = 560
	G57  Origin = 570
	G58  Origin = 580
	G59  Origin = 590
	G591 Origin = 591
	G592 Origin = 592
	G593 Origin = 593
)

// DefaultOrigin is active when a program starts.
const DefaultOrigin = G54

var originsByIndex = [...]Origin{G54, G55, G56, G57, G58, G59, G591, G592, G593}

// Origins returns all coordinate systems in index order (1..9).
func Origins() []Origin {
	out := make([]Origin, len(originsByIndex))
	copy(out, originsByIndex[:])
	return out
}

// OriginForIndex maps a coordinate system index (1..9) to its origin.
func OriginForIndex(index int) (Origin, bool) {
	if index < 1 || index > len(originsByIndex) {
		return 0, false
	}
	return originsByIndex[index-1], true
}

// Index returns the 1-based coordinate system index, or 0 for an unknown origin.
func (o Origin) Index() int {
	for i, v := range originsByIndex {
		if v == o {
			return i + 1
		}
	}
	return 0
}

// Valid reports whether o is one of the nine fixed coordinate systems.
func (o Origin) Valid() bool {
	return o.Index() != 0
}

func (o Origin) String() string {
	switch {
	case o >= G54 && o <= G59 && o%10 == 0:
		return fmt.Sprintf("G%d", int(o)/10)
	case o >= G591 && o <= G593:
		return fmt.Sprintf("G59.%d", int(o)-590)
	default:
		return fmt.Sprintf("Origin(%d)", int(o))
	}
}
