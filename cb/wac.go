package cb

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ftl/cellbroadcast/geo"
)

// ErrMalformedWAC is wrapped by all errors while parsing warning area coordinates.
var ErrMalformedWAC = errors.New("malformed warning area coordinates")

// WAC element types according to [ATIS] 5.2.2
const (
	wacMaximumWaitTime = 1
	wacPolygon         = 2
	wacCircle          = 3
)

const coordinateBits = 22

// WarningArea holds the warning area coordinates of a message, see [CB] 9.4.2.2.5 and [ATIS] 5.2
type WarningArea struct {
	// MaximumWaitTime is zero if the message does not specify it.
	MaximumWaitTime time.Duration
	Polygons        []geo.Polygon
}

// ParseWAC parses the warning area coordinates starting with the two byte length field.
func ParseWAC(data []byte) (WarningArea, error) {
	if len(data) < 2 {
		return WarningArea{}, fmt.Errorf("%w: too short: %d", ErrMalformedWAC, len(data))
	}
	length := int(data[1])<<8 | int(data[0])
	if length > len(data)-2 {
		return WarningArea{}, fmt.Errorf("%w: length %d exceeds %d available bytes", ErrMalformedWAC, length, len(data)-2)
	}

	var result WarningArea
	reader := newBitReader(data[2 : 2+length])
	remaining := length
	for remaining > 0 {
		elementType, err := reader.Read(4)
		if err != nil {
			return WarningArea{}, fmt.Errorf("%w: %v", ErrMalformedWAC, err)
		}
		elementLength, err := reader.Read(10)
		if err != nil {
			return WarningArea{}, fmt.Errorf("%w: %v", ErrMalformedWAC, err)
		}
		if elementLength < 2 {
			return WarningArea{}, fmt.Errorf("%w: element length %d", ErrMalformedWAC, elementLength)
		}
		reader.Align()
		remaining -= int(elementLength)

		switch elementType {
		case wacMaximumWaitTime:
			seconds, err := reader.Read(8)
			if err != nil {
				return WarningArea{}, fmt.Errorf("%w: %v", ErrMalformedWAC, err)
			}
			result.MaximumWaitTime = time.Duration(seconds) * time.Second
		case wacPolygon:
			count := (int(elementLength) - 2) * 8 / (2 * coordinateBits)
			polygon := make(geo.Polygon, 0, count)
			for i := 0; i < count; i++ {
				coordinate, err := readCoordinate(reader)
				if err != nil {
					return WarningArea{}, fmt.Errorf("%w: %v", ErrMalformedWAC, err)
				}
				polygon = append(polygon, coordinate)
			}
			reader.Align()
			result.Polygons = append(result.Polygons, polygon)
		case wacCircle:
			return WarningArea{}, fmt.Errorf("%w: circle geometries are not supported", ErrMalformedWAC)
		default:
			return WarningArea{}, fmt.Errorf("%w: unknown element type %d", ErrMalformedWAC, elementType)
		}
	}

	return result, nil
}

func readCoordinate(reader *bitReader) (geo.LatLng, error) {
	lat, err := reader.Read(coordinateBits)
	if err != nil {
		return geo.LatLng{}, err
	}
	lng, err := reader.Read(coordinateBits)
	if err != nil {
		return geo.LatLng{}, err
	}
	return geo.LatLng{
		Lat: float64(lat)*180.0/(1<<coordinateBits) - 90.0,
		Lng: float64(lng)*360.0/(1<<coordinateBits) - 180.0,
	}, nil
}

// Encode this warning area including the two byte length field.
func (a WarningArea) Encode(bytes []byte) []byte {
	var writer bitWriter
	if a.MaximumWaitTime > 0 {
		writer.Write(wacMaximumWaitTime, 4)
		writer.Write(3, 10)
		writer.Align()
		seconds := a.MaximumWaitTime / time.Second
		if seconds > 255 {
			seconds = 255
		}
		writer.Write(uint32(seconds), 8)
	}
	for _, polygon := range a.Polygons {
		coordinateBytes := (len(polygon)*2*coordinateBits + 7) / 8
		writer.Write(wacPolygon, 4)
		writer.Write(uint32(coordinateBytes+2), 10)
		writer.Align()
		for _, vertex := range polygon {
			writer.Write(encodeCoordinate(vertex.Lat, 90, 180), coordinateBits)
			writer.Write(encodeCoordinate(vertex.Lng, 180, 360), coordinateBits)
		}
		writer.Align()
	}

	data := writer.Bytes()
	bytes = append(bytes, byte(len(data)&0xFF), byte(len(data)>>8))
	return append(bytes, data...)
}

func encodeCoordinate(value, offset, span float64) uint32 {
	result := math.Round((value + offset) * (1 << coordinateBits) / span)
	if result < 0 {
		return 0
	}
	if result > (1<<coordinateBits)-1 {
		return (1 << coordinateBits) - 1
	}
	return uint32(result)
}
