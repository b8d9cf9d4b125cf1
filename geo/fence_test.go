package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

var square = Polygon{
	{Lat: 0, Lng: 0},
	{Lat: 0, Lng: 0.01},
	{Lat: 0.01, Lng: 0.01},
	{Lat: 0.01, Lng: 0},
}

func TestPolygon_Contains(t *testing.T) {
	assert.True(t, square.Contains(LatLng{Lat: 0.005, Lng: 0.005}))
	assert.False(t, square.Contains(LatLng{Lat: 0.02, Lng: 0.005}))
	assert.False(t, Polygon{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}}.Contains(LatLng{Lat: 0.5, Lng: 0.5}))
}

func TestPolygon_BoundaryDistance(t *testing.T) {
	// 0.001 degrees of latitude are roughly 111 metres
	actual := square.BoundaryDistance(LatLng{Lat: 0.009, Lng: 0.005})

	assert.InDelta(t, 111.2, actual, 0.5)
	assert.True(t, math.IsInf(Polygon{}.BoundaryDistance(LatLng{}), 1))
}

func TestFence_Add(t *testing.T) {
	tt := []struct {
		desc      string
		point     LatLng
		accuracy  float64
		tolerance float64
		expected  State
	}{
		{"strictly inside", LatLng{Lat: 0.005, Lng: 0.005}, 0, 0, Inside},
		{"strictly outside", LatLng{Lat: 0.02, Lng: 0.02}, 0, 0, Outside},
		{"accuracy straddles edge from inside", LatLng{Lat: 0.005, Lng: 0.0099}, 200, 0, Ambiguous},
		{"accuracy straddles edge from outside", LatLng{Lat: 0.005, Lng: 0.0101}, 200, 0, Ambiguous},
		{"inside with small accuracy", LatLng{Lat: 0.005, Lng: 0.005}, 100, 0, Inside},
		{"outside beyond accuracy", LatLng{Lat: 0.005, Lng: 0.02}, 100, 0, Outside},
		{"tolerance widens the boundary", LatLng{Lat: 0.005, Lng: 0.0095}, 0, 100, Ambiguous},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			fence := NewFence([]Polygon{square}, tc.tolerance)

			actual := fence.Add(tc.point, tc.accuracy)

			assert.Equal(t, tc.expected, actual)
			assert.Equal(t, tc.expected, fence.State())
		})
	}
}

func TestFence_AmbiguousThenResolved(t *testing.T) {
	fence := NewFence([]Polygon{square}, 0)

	assert.Equal(t, Ambiguous, fence.Add(LatLng{Lat: 0.005, Lng: 0.0099}, 200))
	assert.False(t, fence.State().Resolved())
	assert.Equal(t, Inside, fence.Add(LatLng{Lat: 0.005, Lng: 0.005}, 10))
	assert.Equal(t, Inside, fence.Add(LatLng{Lat: 1, Lng: 1}, 0), "resolved fences ignore further fixes")
}

func TestFence_InsideAnyPolygon(t *testing.T) {
	other := Polygon{
		{Lat: 0, Lng: 0.009},
		{Lat: 0, Lng: 0.03},
		{Lat: 0.01, Lng: 0.03},
		{Lat: 0.01, Lng: 0.009},
	}
	fence := NewFence([]Polygon{square, other}, 0)

	// close to the edge of square, but well inside other
	assert.Equal(t, Inside, fence.Add(LatLng{Lat: 0.005, Lng: 0.0099}, 50))
}

func TestFence_WithoutPolygons(t *testing.T) {
	fence := NewFence(nil, 0)

	assert.Equal(t, Pending, fence.State())
	assert.Equal(t, Inside, fence.Add(LatLng{Lat: 50, Lng: 8}, 1000))
}

func TestFence_Resolve(t *testing.T) {
	fence := NewFence([]Polygon{square}, 0)
	fence.Add(LatLng{Lat: 0.005, Lng: 0.0099}, 200)

	assert.Equal(t, Outside, fence.Resolve(false))
	assert.Equal(t, Outside, fence.Resolve(true))
}
