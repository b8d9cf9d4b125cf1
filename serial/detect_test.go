package serial

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsModemPort(t *testing.T) {
	tt := []struct {
		description string
		expected    bool
	}{
		{"Quectel EG25-G AT Port", true},
		{"SIMCOM SIM7600 AT Interface", true},
		{"Sierra Wireless Modem", true},
		{"Quectel EG25-G NMEA Port", false},
		{"FT232R USB UART", false},
		{"", false},
	}
	for _, tc := range tt {
		t.Run(tc.description, func(t *testing.T) {
			assert.Equal(t, tc.expected, isModemPort(tc.description))
		})
	}
}
