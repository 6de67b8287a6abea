package geo

import (
	"encoding/json"
	"fmt"

	"github.com/backplot/backplot/pkg/canon"
	geom "github.com/peterstace/simplefeatures/geom"
)

// ParsePolyline parses a JSON array of coordinates into trace points.
// Input format: "[[x1,y1,z1],[x2,y2,z2],...]"; z may be omitted.
func ParsePolyline(input []byte) ([]canon.Point3, error) {
	var coords [][]float64
	if err := json.Unmarshal(input, &coords); err != nil {
		return nil, fmt.Errorf("failed to parse polyline JSON: %w", err)
	}

	if len(coords) < 2 {
		return nil, fmt.Errorf("polyline must have at least 2 points, got %d", len(coords))
	}

	points := make([]canon.Point3, len(coords))
	for i, c := range coords {
		if len(c) < 2 {
			return nil, fmt.Errorf("coordinate %d has insufficient values", i)
		}
		points[i] = canon.Point3{X: c[0], Y: c[1]}
		if len(c) > 2 {
			points[i].Z = c[2]
		}
	}
	return points, nil
}

// ParsePolylineLineString parses a JSON polyline straight into a line string.
func ParsePolylineLineString(input []byte) (geom.LineString, error) {
	points, err := ParsePolyline(input)
	if err != nil {
		return geom.LineString{}, err
	}
	return LineString(points), nil
}

// Polyline returns points in the JSON array form read by ParsePolyline.
func Polyline(points []canon.Point3) [][3]float64 {
	out := make([][3]float64, len(points))
	for i, p := range points {
		out[i] = [3]float64{p.X, p.Y, p.Z}
	}
	return out
}
