/*
The package geo implements the geographic part of geo-fencing: the broadcast area model
(polygons of WGS84 coordinates) and the Fence that decides from a sequence of location fixes
whether a device is inside the broadcast area.

Distances are computed on a local equirectangular projection centred on the location fix.
This is accurate to well below a metre for the few kilometres that matter for the accuracy
radius of a fix. Polygons crossing the antimeridian are not supported.
*/
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// EarthRadius is the mean earth radius in metres.
const EarthRadius = 6371008.8

const metresPerDegree = EarthRadius * math.Pi / 180

// LatLng is a WGS84 coordinate in decimal degrees.
type LatLng struct {
	Lat float64
	Lng float64
}

func (p LatLng) String() string {
	return fmt.Sprintf("(%.6f,%.6f)", p.Lat, p.Lng)
}

// Polygon is a closed area given by its vertices. The closing edge from the last to the first
// vertex is implicit.
type Polygon []LatLng

// Valid reports if the polygon has at least three vertices.
func (p Polygon) Valid() bool {
	return len(p) >= 3
}

// project the polygon onto a plane in metres with the origin at the given point.
func (p Polygon) project(origin LatLng) orb.Ring {
	scaleX := math.Cos(origin.Lat*math.Pi/180) * metresPerDegree
	result := make(orb.Ring, 0, len(p)+1)
	for _, vertex := range p {
		result = append(result, orb.Point{
			(vertex.Lng - origin.Lng) * scaleX,
			(vertex.Lat - origin.Lat) * metresPerDegree,
		})
	}
	if len(result) > 0 && result[0] != result[len(result)-1] {
		result = append(result, result[0])
	}
	return result
}

// Contains reports if the given point lies within the polygon.
func (p Polygon) Contains(point LatLng) bool {
	if !p.Valid() {
		return false
	}
	ring := p.project(point)
	return planar.PolygonContains(orb.Polygon{ring}, orb.Point{0, 0})
}

// BoundaryDistance returns the distance in metres from the given point to the closest edge of the polygon.
func (p Polygon) BoundaryDistance(point LatLng) float64 {
	if !p.Valid() {
		return math.Inf(1)
	}
	ring := p.project(point)
	origin := orb.Point{0, 0}
	result := math.Inf(1)
	for i := 1; i < len(ring); i++ {
		d := planar.DistanceFromSegment(ring[i-1], ring[i], origin)
		if d < result {
			result = d
		}
	}
	return result
}

// Union concatenates the given polygon lists into one broadcast area.
func Union(areas ...[]Polygon) []Polygon {
	var result []Polygon
	for _, area := range areas {
		result = append(result, area...)
	}
	return result
}
