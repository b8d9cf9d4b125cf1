package ctrl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/cellbroadcast/cell"
	"github.com/ftl/cellbroadcast/position"
)

// scriptedRequester answers each request with the configured lines, unknown requests fail.
type scriptedRequester struct {
	responses map[string][]string
	requests  []string
}

func (r *scriptedRequester) Request(_ context.Context, request string) ([]string, error) {
	r.requests = append(r.requests, request)
	response, ok := r.responses[request]
	if !ok {
		return nil, errors.New("ERROR")
	}
	return response, nil
}

func singleResponse(response string) cell.Requester {
	return cell.RequesterFunc(func(context.Context, string) ([]string, error) {
		return []string{response}, nil
	})
}

func TestMessageModeByName(t *testing.T) {
	mode, err := MessageModeByName(" pdu ")
	assert.NoError(t, err)
	assert.Equal(t, PDUMode, mode)
	assert.Equal(t, "TEXT", TextMode.String())

	_, err = MessageModeByName("binary")
	assert.Error(t, err)
}

func TestRequestMessageMode(t *testing.T) {
	mode, err := RequestMessageMode(context.Background(), singleResponse("+CMGF: 1"))

	assert.NoError(t, err)
	assert.Equal(t, TextMode, mode)
	assert.Equal(t, "AT+CMGF=0", SetMessageMode(PDUMode))
}

func TestFormatChannels(t *testing.T) {
	tt := []struct {
		desc     string
		channels []int
		expected string
	}{
		{"empty", nil, ""},
		{"single", []int{50}, "50"},
		{"range", []int{4372, 4370, 4371}, "4370-4372"},
		{"mixed", []int{4383, 50, 4370, 4371, 4372, 50, 919}, "50,919,4370-4372,4383"},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			actual := FormatChannels(tc.channels)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestParseChannels(t *testing.T) {
	tt := []struct {
		value    string
		expected []int
		invalid  bool
	}{
		{value: "", expected: nil},
		{value: "50", expected: []int{50}},
		{value: "50,4370-4372", expected: []int{50, 4370, 4371, 4372}},
		{value: "4372-4370", invalid: true},
		{value: "a-b", invalid: true},
		{value: "50,", invalid: true},
	}
	for _, tc := range tt {
		t.Run(tc.value, func(t *testing.T) {
			actual, err := ParseChannels(tc.value)
			if tc.invalid {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestSelectBroadcastChannels(t *testing.T) {
	assert.Equal(t, `AT+CSCB=1,"",""`, SelectBroadcastChannels(nil))
	assert.Equal(t, `AT+CSCB=0,"50,4370-4383",""`, SelectBroadcastChannels([]int{50, 4370, 4371, 4372, 4373, 4374, 4375, 4376, 4377, 4378, 4379, 4380, 4381, 4382, 4383}))
}

func TestRequestBroadcastChannels(t *testing.T) {
	tt := []struct {
		response string
		expected []int
		invalid  bool
	}{
		{response: `+CSCB: 0,"50,4370-4371",""`, expected: []int{50, 4370, 4371}},
		{response: `+CSCB: 0,"","0-3"`, expected: nil},
		{response: `+CSCB: 1,"50",""`, invalid: true},
		{response: `+CSCB: garbage`, invalid: true},
	}
	for _, tc := range tt {
		t.Run(tc.response, func(t *testing.T) {
			actual, err := RequestBroadcastChannels(context.Background(), singleResponse(tc.response))
			if tc.invalid {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestRequestOperator(t *testing.T) {
	tt := []struct {
		response string
		expected string
		invalid  bool
	}{
		{response: `+COPS: 0,2,"26201",7`, expected: "26201"},
		{response: `+COPS: 0,2,"310410"`, expected: "310410"},
		{response: `+COPS: 0`, expected: ""},
		{response: `+COPS: 0,0,"Telekom.de",7`, invalid: true},
		{response: `OK`, invalid: true},
	}
	for _, tc := range tt {
		t.Run(tc.response, func(t *testing.T) {
			actual, err := RequestOperator(context.Background(), singleResponse(tc.response))
			if tc.invalid {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestRequestRegistration(t *testing.T) {
	tt := []struct {
		desc     string
		domain   RegistrationDomain
		response string
		status   RegistrationStatus
		identity *cell.Identity
		invalid  bool
	}{
		{
			desc:     "gsm",
			domain:   CircuitSwitched,
			response: `+CREG: 2,1,"1234","5678",0`,
			status:   RegisteredHome,
			identity: &cell.Identity{Technology: cell.GSM, LAC: 0x1234, CID: 0x5678},
		},
		{
			desc:     "umts without access technology",
			domain:   PacketSwitched,
			response: `+CGREG: 2,5,"00A1","0001F2E3"`,
			status:   RegisteredRoaming,
			identity: &cell.Identity{Technology: cell.UMTS, LAC: 0xA1, CID: 0x1F2E3},
		},
		{
			desc:     "gprs with routing area",
			domain:   PacketSwitched,
			response: `+CGREG: 2,1,"1234","5678",3,"01"`,
			status:   RegisteredHome,
			identity: &cell.Identity{Technology: cell.GSM, LAC: 0x1234, CID: 0x5678},
		},
		{
			desc:     "lte",
			domain:   EPS,
			response: `+CEREG: 2,1,"ab12","01a2b3c4",7`,
			status:   RegisteredHome,
			identity: &cell.Identity{Technology: cell.LTE, LAC: 0xAB12, CID: 0x01A2B3C4},
		},
		{
			desc:     "nr",
			domain:   EPS,
			response: `+CEREG: 2,1,"ab12","1F",12`,
			status:   RegisteredHome,
			identity: &cell.Identity{Technology: cell.NR, LAC: 0xAB12, CID: 0x1F},
		},
		{
			desc:     "unknown tracking area",
			domain:   EPS,
			response: `+CEREG: 2,1,,"1F",7`,
			status:   RegisteredHome,
			identity: &cell.Identity{Technology: cell.LTE, LAC: cell.Unknown, CID: 0x1F},
		},
		{
			desc:     "not registered",
			domain:   CircuitSwitched,
			response: `+CREG: 0,2`,
			status:   Searching,
		},
		{
			desc:     "garbage",
			domain:   CircuitSwitched,
			response: `+CREG: registered`,
			invalid:  true,
		},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			status, identity, err := RequestRegistration(context.Background(), singleResponse(tc.response), tc.domain)
			if tc.invalid {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.identity, identity)
		})
	}
}

func TestGPSPositionResponse(t *testing.T) {
	value := "+GPSPOS: 12:34:56,N: 49_01.2345,E: 010_12.3456,5"
	expectedParts := []string{value, "12", "34", "56", "N", "49", "01.2345", "E", "010", "12.3456", "5"}
	actualParts := gpsPositionResponse.FindStringSubmatch(value)

	assert.Equal(t, expectedParts, actualParts)
}

func TestDegreesMinutesToDecimalDegrees(t *testing.T) {
	tt := []struct {
		direction string
		degrees   float64
		minutes   float64
		expected  float64
	}{
		{"N", 49, 1.2345, 49.020575},
		{"S", 49, 1.2345, -49.020575},
		{"W", 49, 1.2345, -49.020575},
		{"E", 49, 1.2345, 49.020575},
	}
	for _, tc := range tt {
		t.Run(tc.direction, func(t *testing.T) {
			actual := degreesMinutesToDecimalDegrees(tc.direction, tc.degrees, tc.minutes)
			assert.InDelta(t, tc.expected, actual, 1e-9)
		})
	}
}

func TestRequestGPSPosition(t *testing.T) {
	tt := []struct {
		response string
		lat, lng float64
		noFix    bool
		invalid  bool
	}{
		{response: "+GPSPOS: 12:34:56,N: 49_01.2345,E: 010_12.3456,5", lat: 49.020575, lng: 10.20576},
		{response: "+GPSPOS: 12:34:56,S: 33_52.0000,W: 151_12.0000,7", lat: -33.866667, lng: -151.2},
		{response: "+GPSPOS: 12:34:56,N: 49_01.2345,E: 010_12.3456,0", noFix: true},
		{response: "+GPSPOS: no fix", noFix: true},
		{response: "+GPSPOS: 1234", invalid: true},
	}
	for _, tc := range tt {
		t.Run(tc.response, func(t *testing.T) {
			actual, err := RequestGPSPosition(context.Background(), singleResponse(tc.response))
			switch {
			case tc.noFix:
				assert.ErrorIs(t, err, position.ErrNoFix)
			case tc.invalid:
				assert.Error(t, err)
			default:
				require.NoError(t, err)
				assert.InDelta(t, tc.lat, actual.Position.Lat, 1e-6)
				assert.InDelta(t, tc.lng, actual.Position.Lng, 1e-6)
				assert.Equal(t, 12, actual.Time.Hour())
				assert.Equal(t, 34, actual.Time.Minute())
				assert.Equal(t, 56, actual.Time.Second())
			}
		})
	}
}
