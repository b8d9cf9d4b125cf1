package cb

import (
	"errors"
	"fmt"
)

// ErrMalformedTrigger is wrapped by all errors while parsing geo-fencing trigger messages.
var ErrMalformedTrigger = errors.New("malformed geo-fencing trigger")

// TriggerType according to [ATIS] 5.3
type TriggerType byte

// All defined trigger types
const (
	TriggerActiveAlertShareWAC    TriggerType = 2
	TriggerActiveAlertUpdateWAC   TriggerType = 3
	TriggerActiveAlertsReshareWAC TriggerType = 4
)

// Identity identifies one broadcast message.
type Identity struct {
	MessageIdentifier uint16
	SerialNumber      uint16
}

func (i Identity) String() string {
	return fmt.Sprintf("0x%04x/0x%04x", i.MessageIdentifier, i.SerialNumber)
}

// Trigger is a geo-fencing trigger message. It names previously received messages that are
// now subject to geo-fencing.
type Trigger struct {
	Type       TriggerType
	Identities []Identity
}

// ShareBroadcastArea reports if all named messages share the union of their broadcast areas.
func (t Trigger) ShareBroadcastArea() bool {
	return t.Type == TriggerActiveAlertShareWAC
}

// triggerOffset is the offset of the trigger payload: header plus the number-of-pages octet.
const triggerOffset = HeaderLength + 1

// ParseTrigger parses a geo-fencing trigger message according to [ATIS] 5.3
func ParseTrigger(pdu []byte) (Trigger, error) {
	header, err := ParseHeader(pdu)
	if err != nil {
		return Trigger{}, err
	}
	if !header.IsGeoFencingTrigger() {
		return Trigger{}, fmt.Errorf("%w: message identifier 0x%04x", ErrMalformedTrigger, header.MessageIdentifier)
	}
	if len(pdu) <= triggerOffset {
		return Trigger{}, fmt.Errorf("%w: no payload", ErrMalformedTrigger)
	}

	reader := newBitReader(pdu[triggerOffset:])
	triggerType, err := reader.Read(4)
	if err != nil {
		return Trigger{}, fmt.Errorf("%w: %v", ErrMalformedTrigger, err)
	}
	length, err := reader.Read(7)
	if err != nil {
		return Trigger{}, fmt.Errorf("%w: %v", ErrMalformedTrigger, err)
	}
	reader.Align()
	if length < 2 {
		return Trigger{}, fmt.Errorf("%w: length %d", ErrMalformedTrigger, length)
	}

	count := (int(length) - 2) * 8 / 32
	result := Trigger{
		Type:       TriggerType(triggerType),
		Identities: make([]Identity, 0, count),
	}
	for i := 0; i < count; i++ {
		messageIdentifier, err := reader.Read(16)
		if err != nil {
			return Trigger{}, fmt.Errorf("%w: %v", ErrMalformedTrigger, err)
		}
		serialNumber, err := reader.Read(16)
		if err != nil {
			return Trigger{}, fmt.Errorf("%w: %v", ErrMalformedTrigger, err)
		}
		result.Identities = append(result.Identities, Identity{
			MessageIdentifier: uint16(messageIdentifier),
			SerialNumber:      uint16(serialNumber),
		})
	}

	return result, nil
}

// Encode this trigger as UMTS format PDU with the given serial number.
func (t Trigger) Encode(serialNumber uint16) []byte {
	var writer bitWriter
	writer.Write(uint32(t.Type), 4)
	writer.Write(uint32(len(t.Identities)*4+2), 7)
	writer.Align()
	for _, identity := range t.Identities {
		writer.Write(uint32(identity.MessageIdentifier), 16)
		writer.Write(uint32(identity.SerialNumber), 16)
	}
	payload := writer.Bytes()

	return NewUMTSPDU(MessageIDGeoFencingTrigger, serialNumber, 0x44, [][]byte{payload}, nil)
}
