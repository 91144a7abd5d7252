package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// PathKind tags the geometry carried by a Path.
type PathKind string

// PathKindLineString is the only geometry produced by mission planning.
const PathKindLineString PathKind = "LineString"

// Point is a single WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Path is an ordered sequence of points. On the wire it is a GeoJSON
// LineString ({"type":"LineString","coordinates":[[lng,lat],...]}).
// The zero Path has no kind and encodes as null.
type Path struct {
	Kind   PathKind
	Points []Point
}

// NewLineString returns a LineString over pts.
func NewLineString(pts ...Point) Path {
	return Path{Kind: PathKindLineString, Points: pts}
}

// Len returns the number of points in the path.
func (p Path) Len() int { return len(p.Points) }

// Empty reports whether the path has no usable points.
func (p Path) Empty() bool { return p.Kind != PathKindLineString || len(p.Points) == 0 }

// Prefix returns a LineString of the first n points of p, clamped to p's length.
func (p Path) Prefix(n int) Path {
	if n < 0 {
		n = 0
	}
	if n > len(p.Points) {
		n = len(p.Points)
	}
	pts := make([]Point, n)
	copy(pts, p.Points[:n])
	return NewLineString(pts...)
}

// Validate checks the kind and coordinate ranges.
func (p Path) Validate() error {
	if p.Kind != PathKindLineString {
		return fmt.Errorf("unsupported path type %q", p.Kind)
	}
	for i, pt := range p.Points {
		if pt.Lat < -90 || pt.Lat > 90 {
			return fmt.Errorf("point %d: latitude %v out of range", i, pt.Lat)
		}
		if pt.Lng < -180 || pt.Lng > 180 {
			return fmt.Errorf("point %d: longitude %v out of range", i, pt.Lng)
		}
	}
	return nil
}

type geoJSONLineString struct {
	Type        string      `json:"type"`
	Coordinates [][]float64 `json:"coordinates"`
}

// MarshalJSON encodes p as a GeoJSON LineString.
func (p Path) MarshalJSON() ([]byte, error) {
	if p.Kind == "" {
		return []byte("null"), nil
	}
	g := geoJSONLineString{Type: string(p.Kind), Coordinates: make([][]float64, len(p.Points))}
	for i, pt := range p.Points {
		g.Coordinates[i] = []float64{pt.Lng, pt.Lat}
	}
	return json.Marshal(g)
}

// UnmarshalJSON decodes and validates a GeoJSON LineString.
func (p *Path) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*p = Path{}
		return nil
	}
	parsed, err := ParsePath(b)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePath decodes a GeoJSON LineString and validates it.
func ParsePath(b []byte) (Path, error) {
	var g geoJSONLineString
	if err := json.Unmarshal(b, &g); err != nil {
		return Path{}, fmt.Errorf("decode path: %w", err)
	}
	if g.Type != string(PathKindLineString) {
		return Path{}, fmt.Errorf("unsupported path type %q", g.Type)
	}
	pts := make([]Point, 0, len(g.Coordinates))
	for i, c := range g.Coordinates {
		if len(c) < 2 {
			return Path{}, fmt.Errorf("point %d: expected [lng, lat]", i)
		}
		pts = append(pts, Point{Lng: c[0], Lat: c[1]})
	}
	p := NewLineString(pts...)
	if err := p.Validate(); err != nil {
		return Path{}, err
	}
	return p, nil
}

// ErrEmptyPath is returned when a path with no points is used where one is required.
var ErrEmptyPath = errors.New("path has no points")
