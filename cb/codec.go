package cb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/ftl/cellbroadcast/geo"
)

// geometriesVersion is the first byte of every encoded geometry list.
const geometriesVersion = 1

// ErrUnknownGeometriesVersion is returned when decoding geometries written by a newer version.
var ErrUnknownGeometriesVersion = errors.New("unknown geometries version")

// EncodeGeometries serializes the given polygons for storage: a version byte, the number of
// polygons, and for each polygon the number of vertices followed by the vertices.
func EncodeGeometries(polygons []geo.Polygon) []byte {
	if len(polygons) == 0 {
		return nil
	}
	result := []byte{geometriesVersion}
	result = binary.AppendUvarint(result, uint64(len(polygons)))
	for _, polygon := range polygons {
		result = binary.AppendUvarint(result, uint64(len(polygon)))
		for _, vertex := range polygon {
			result = binary.BigEndian.AppendUint64(result, math.Float64bits(vertex.Lat))
			result = binary.BigEndian.AppendUint64(result, math.Float64bits(vertex.Lng))
		}
	}
	return result
}

// DecodeGeometries is the counterpart of EncodeGeometries. Empty data decodes to no polygons.
func DecodeGeometries(data []byte) ([]geo.Polygon, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] != geometriesVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnknownGeometriesVersion, data[0])
	}
	data = data[1:]

	polygonCount, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, fmt.Errorf("invalid polygon count")
	}
	data = data[n:]

	result := make([]geo.Polygon, 0, min(polygonCount, 64))
	for i := uint64(0); i < polygonCount; i++ {
		vertexCount, n := binary.Uvarint(data)
		if n <= 0 {
			return nil, fmt.Errorf("invalid vertex count of polygon %d", i)
		}
		data = data[n:]
		if vertexCount > uint64(len(data))/16 {
			return nil, fmt.Errorf("polygon %d: %d vertices exceed %d bytes", i, vertexCount, len(data))
		}
		polygon := make(geo.Polygon, vertexCount)
		for j := range polygon {
			polygon[j].Lat = math.Float64frombits(binary.BigEndian.Uint64(data[0:8]))
			polygon[j].Lng = math.Float64frombits(binary.BigEndian.Uint64(data[8:16]))
			data = data[16:]
		}
		result = append(result, polygon)
	}
	return result, nil
}
