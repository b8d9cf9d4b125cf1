package ctrl

import (
	"fmt"
	"strings"
)

// MessageModeByName returns the MessageMode with the given name
func MessageModeByName(name string) (MessageMode, error) {
	sanitized := strings.ToUpper(strings.TrimSpace(name))
	result, ok := MessageModesByName[sanitized]
	if !ok {
		return 0, fmt.Errorf("invalid message mode %s", name)
	}
	return result, nil
}

// MessageMode represents the message format according to 3GPP TS 27.005 3.2.3
type MessageMode byte

func (m MessageMode) String() string {
	for k, v := range MessageModesByName {
		if v == m {
			return k
		}
	}
	return "UNKNOWN"
}

// All supported message modes
const (
	PDUMode MessageMode = iota
	TextMode
)

// MessageModesByName maps all supported message modes by their string representation
var MessageModesByName = map[string]MessageMode{
	"PDU":  PDUMode,
	"TEXT": TextMode,
}

// RegistrationStatus according to 3GPP TS 27.007 7.2 <stat>
type RegistrationStatus byte

// All defined registration states
const (
	NotRegistered RegistrationStatus = iota
	RegisteredHome
	Searching
	RegistrationDenied
	RegistrationUnknown
	RegisteredRoaming
)

func (s RegistrationStatus) String() string {
	switch s {
	case NotRegistered:
		return "not registered"
	case RegisteredHome:
		return "registered, home network"
	case Searching:
		return "searching"
	case RegistrationDenied:
		return "registration denied"
	case RegisteredRoaming:
		return "registered, roaming"
	default:
		return "unknown"
	}
}

// Registered reports if the status means the slot is attached to a network.
func (s RegistrationStatus) Registered() bool {
	return s == RegisteredHome || s == RegisteredRoaming
}
