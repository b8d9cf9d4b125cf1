// Package serial opens the serial port of a cellular modem.
package serial

import (
	"errors"
	"io"

	"github.com/jacobsa/go-serial/serial"

	"github.com/ftl/cellbroadcast/com"
)

// ErrNoModemFound is returned if no serial device looks like a modem's AT port.
var ErrNoModemFound = errors.New("no modem AT port found")

// DefaultBaudRate of modem AT ports.
const DefaultBaudRate = 115200

// Open opens the given serial port and starts an AT session on it. The returned closer closes the port.
func Open(portName string, config com.Config) (*com.COM, io.Closer, error) {
	device, err := openSerial(portName)
	if err != nil {
		return nil, nil, err
	}

	return com.New(device, config), device, nil
}

func openSerial(portName string) (io.ReadWriteCloser, error) {
	portConfig := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              DefaultBaudRate,
		DataBits:              8,
		StopBits:              1,
		ParityMode:            serial.PARITY_NONE,
		RTSCTSFlowControl:     true,
		MinimumReadSize:       4,
		InterCharacterTimeout: 100,
	}

	return serial.Open(portConfig)
}

// modemPortKeywords identify the AT port among the interfaces a modem exposes.
var modemPortKeywords = []string{"at port", "at interface", "modem", "at command"}
