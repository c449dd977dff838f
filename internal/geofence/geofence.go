// Package geofence answers whether a submitted GPS point lies inside a
// project boundary polygon.
package geofence

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Point is a GPS coordinate pair in decimal degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Contains reports whether point lies inside the boundary using planar
// ray casting. Boundaries with fewer than 3 points cannot enclose anything
// and always return true: a project without a usable boundary does not
// geofence its attestations.
func Contains(boundary []Point, point Point) bool {
	if len(boundary) < 3 {
		return true
	}

	ring := make(orb.Ring, 0, len(boundary)+1)
	for _, p := range boundary {
		ring = append(ring, orb.Point{p.Longitude, p.Latitude})
	}
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}

	return planar.PolygonContains(orb.Polygon{ring}, orb.Point{point.Longitude, point.Latitude})
}
