package cb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/cellbroadcast/geo"
)

func assertPolygonsInDelta(t *testing.T, expected, actual []geo.Polygon, delta float64) {
	t.Helper()
	require.Len(t, actual, len(expected))
	for i := range expected {
		require.Len(t, actual[i], len(expected[i]), "polygon %d", i)
		for j := range expected[i] {
			assert.InDelta(t, expected[i][j].Lat, actual[i][j].Lat, delta, "polygon %d vertex %d", i, j)
			assert.InDelta(t, expected[i][j].Lng, actual[i][j].Lng, delta, "polygon %d vertex %d", i, j)
		}
	}
}

// coordinate resolution of 22 bits
const wacDelta = 0.0001

func TestParseWAC(t *testing.T) {
	tt := []struct {
		desc     string
		data     []byte
		expected WarningArea
		invalid  bool
	}{
		{
			desc:     "empty",
			data:     []byte{0x00, 0x00},
			expected: WarningArea{},
		},
		{
			desc:     "maximum wait time",
			data:     []byte{0x03, 0x00, 0x10, 0x0C, 0x1E},
			expected: WarningArea{MaximumWaitTime: 30 * time.Second},
		},
		{
			desc:    "too short",
			data:    []byte{0x03},
			invalid: true,
		},
		{
			desc:    "length exceeds data",
			data:    []byte{0x05, 0x00, 0x10, 0x0C, 0x1E},
			invalid: true,
		},
		{
			desc:    "truncated element",
			data:    []byte{0x02, 0x00, 0x10, 0x0C},
			invalid: true,
		},
		{
			desc:    "circle",
			data:    []byte{0x03, 0x00, 0x30, 0x0C, 0x00},
			invalid: true,
		},
		{
			desc:    "unknown element type",
			data:    []byte{0x03, 0x00, 0x70, 0x0C, 0x00},
			invalid: true,
		},
		{
			desc:    "element length below two",
			data:    []byte{0x03, 0x00, 0x10, 0x04, 0x00},
			invalid: true,
		},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			actual, err := ParseWAC(tc.data)
			if tc.invalid {
				assert.ErrorIs(t, err, ErrMalformedWAC)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.expected, actual)
			}
		})
	}
}

func TestWarningArea_Encode(t *testing.T) {
	area := WarningArea{
		MaximumWaitTime: 45 * time.Second,
		Polygons: []geo.Polygon{
			{{Lat: 37.422, Lng: -122.084}, {Lat: 37.424, Lng: -122.084}, {Lat: 37.424, Lng: -122.080}, {Lat: 37.422, Lng: -122.080}},
			{{Lat: -33.85, Lng: 151.2}, {Lat: -33.86, Lng: 151.21}, {Lat: -33.87, Lng: 151.19}},
		},
	}

	data := area.Encode(nil)
	actual, err := ParseWAC(data)

	require.NoError(t, err)
	assert.Equal(t, area.MaximumWaitTime, actual.MaximumWaitTime)
	assertPolygonsInDelta(t, area.Polygons, actual.Polygons, wacDelta)
}

func TestWarningArea_Encode_LimitsWaitTime(t *testing.T) {
	data := WarningArea{MaximumWaitTime: time.Hour}.Encode(nil)

	actual, err := ParseWAC(data)

	require.NoError(t, err)
	assert.Equal(t, 255*time.Second, actual.MaximumWaitTime)
}
