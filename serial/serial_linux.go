//go:build linux

package serial

import (
	"github.com/hedhyw/Go-Serial-Detector/pkg/v1/serialdet"
)

// FindModemPortName returns the path of the first serial device whose description looks like a modem's AT port.
func FindModemPortName() (string, error) {
	devices, err := serialdet.List()
	if err != nil {
		return "", err
	}

	for _, device := range devices {
		if isModemPort(device.Description()) {
			return device.Path(), nil
		}
	}

	return "", ErrNoModemFound
}
