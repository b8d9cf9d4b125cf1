//go:build !linux

package serial

// FindModemPortName is only supported on Linux.
func FindModemPortName() (string, error) {
	return "", ErrNoModemFound
}
