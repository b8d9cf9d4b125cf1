package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ftl/cellbroadcast/cell"
)

func TestAttributor_CurrentLocation(t *testing.T) {
	unknown := &cell.Identity{Technology: cell.LTE, LAC: cell.Unknown, CID: cell.Unknown}
	tt := []struct {
		desc         string
		registration cell.Registration
		err          error
		expected     cell.Location
	}{
		{
			desc: "circuit switched first",
			registration: cell.Registration{
				PLMN: "26201",
				CS:   &cell.Identity{Technology: cell.GSM, LAC: 1, CID: 2},
				PS:   &cell.Identity{Technology: cell.LTE, LAC: 3, CID: 4},
			},
			expected: cell.Location{PLMN: "26201", LAC: 1, CID: 2},
		},
		{
			desc: "packet switched if circuit switched is unknown",
			registration: cell.Registration{
				PLMN: "26201",
				CS:   unknown,
				PS:   &cell.Identity{Technology: cell.LTE, LAC: 3, CID: 4},
			},
			expected: cell.Location{PLMN: "26201", LAC: 3, CID: 4},
		},
		{
			desc: "packet switched only",
			registration: cell.Registration{
				PLMN: "26202",
				PS:   &cell.Identity{Technology: cell.NR, LAC: 5, CID: cell.Unknown},
			},
			expected: cell.Location{PLMN: "26202", LAC: 5, CID: cell.Unknown},
		},
		{
			desc: "first known neighbour",
			registration: cell.Registration{
				PLMN: "26201",
				PS:   unknown,
				Neighbours: []cell.Identity{
					*unknown,
					{Technology: cell.LTE, LAC: 7, CID: 8},
					{Technology: cell.LTE, LAC: 9, CID: 10},
				},
			},
			expected: cell.Location{PLMN: "26201", LAC: 7, CID: 8},
		},
		{
			desc:         "nothing known",
			registration: cell.Registration{PLMN: "26201", CS: unknown},
			expected:     cell.UnknownLocation("26201"),
		},
		{
			desc:     "registration not available",
			err:      errors.New("no modem"),
			expected: cell.UnknownLocation(""),
		},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			attributor := NewAttributor(&staticRegistration{registration: tc.registration, err: tc.err}, nil)

			actual := attributor.CurrentLocation(context.Background(), 0)

			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestAttributor_NoSource(t *testing.T) {
	attributor := NewAttributor(nil, nil)

	assert.Equal(t, cell.UnknownLocation(""), attributor.CurrentLocation(context.Background(), 0))
}
