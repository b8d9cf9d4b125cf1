package cb

import (
	"errors"
	"fmt"

	"github.com/ftl/cellbroadcast/cell"
)

const (
	// HeaderLength is the length of the fixed header in both formats.
	HeaderLength = 6
	// MaxGSMPDULength is the maximum length of a GSM format PDU, see [CB] 9.4.1.
	// Longer buffers are UMTS format PDUs.
	MaxGSMPDULength = 88
	// PageBodyLength is the length of the content of one page, see [CB] 9.4.1.2.6 and 9.4.2.2.5
	PageBodyLength = 82
	// MaxPages is the maximum number of pages of one message.
	MaxPages = 15

	umtsMessageTypeCBS = 1
)

// Well known message identifiers according to [CB] 9.4.1.2.2
const (
	MessageIDETWSFirst         uint16 = 0x1100
	MessageIDETWSLast          uint16 = 0x1107
	MessageIDCMASFirst         uint16 = 0x1112
	MessageIDCMASLast          uint16 = 0x112F
	MessageIDGeoFencingTrigger uint16 = 0x1130
)

// Format of a cell broadcast PDU
type Format byte

// All supported formats
const (
	GSMFormat Format = iota
	UMTSFormat
)

func (f Format) String() string {
	switch f {
	case GSMFormat:
		return "GSM"
	case UMTSFormat:
		return "UMTS"
	default:
		return "unknown"
	}
}

// ErrMalformedHeader is wrapped by all header parsing errors.
var ErrMalformedHeader = errors.New("malformed cell broadcast header")

// MalformedHeaderError describes why a buffer could not be parsed as cell broadcast header.
type MalformedHeaderError struct {
	Length int
	Reason string
}

func (e *MalformedHeaderError) Error() string {
	return fmt.Sprintf("%v (%d bytes): %s", ErrMalformedHeader, e.Length, e.Reason)
}

func (e *MalformedHeaderError) Unwrap() error {
	return ErrMalformedHeader
}

func malformedHeader(pdu []byte, format string, args ...any) error {
	return &MalformedHeaderError{
		Length: len(pdu),
		Reason: fmt.Sprintf(format, args...),
	}
}

// Header of a cell broadcast PDU. The page index and page count refer to the radio pages of a
// concatenated GSM format message. UMTS format PDUs carry all pages at once, their PageIndex and
// PageCount are always 1 and BodyPages holds the number of pages in the PDU.
type Header struct {
	Format            Format
	MessageIdentifier uint16
	SerialNumber      uint16
	DataCodingScheme  byte
	PageIndex         uint8
	PageCount         uint8
	BodyPages         uint8
}

// ParseHeader parses the fixed header of a cell broadcast PDU according to [CB] 9.4.1.2 (GSM format)
// or [CB] 9.4.2.2 (UMTS format). The format is determined by the length of the PDU.
func ParseHeader(pdu []byte) (Header, error) {
	if len(pdu) < HeaderLength {
		return Header{}, malformedHeader(pdu, "shorter than %d bytes", HeaderLength)
	}

	var result Header
	if len(pdu) <= MaxGSMPDULength {
		result.Format = GSMFormat
		result.SerialNumber = uint16(pdu[0])<<8 | uint16(pdu[1])
		result.MessageIdentifier = uint16(pdu[2])<<8 | uint16(pdu[3])
		result.DataCodingScheme = pdu[4]
		result.PageIndex = (pdu[5] & 0xF0) >> 4
		result.PageCount = pdu[5] & 0x0F
		result.BodyPages = 1

		if result.PageIndex == 0 || result.PageCount == 0 {
			return Header{}, malformedHeader(pdu, "invalid page parameter 0x%02x", pdu[5])
		}
		if result.PageIndex > result.PageCount {
			return Header{}, malformedHeader(pdu, "page %d of %d", result.PageIndex, result.PageCount)
		}
		return result, nil
	}

	if pdu[0] != umtsMessageTypeCBS {
		return Header{}, malformedHeader(pdu, "unsupported message type %d", pdu[0])
	}
	result.Format = UMTSFormat
	result.MessageIdentifier = uint16(pdu[1])<<8 | uint16(pdu[2])
	result.SerialNumber = uint16(pdu[3])<<8 | uint16(pdu[4])
	result.DataCodingScheme = pdu[5]
	result.BodyPages = pdu[6]
	result.PageIndex = 1
	result.PageCount = 1

	if result.BodyPages == 0 || result.BodyPages > MaxPages {
		return Header{}, malformedHeader(pdu, "invalid number of pages %d", result.BodyPages)
	}
	return result, nil
}

// GeographicalScope returns the scope encoded in the serial number, see [CB] 9.4.1.2.1
func (h Header) GeographicalScope() cell.GeographicalScope {
	return cell.GeographicalScope((h.SerialNumber & 0xC000) >> 14)
}

// MessageCode returns the message code encoded in the serial number.
func (h Header) MessageCode() int {
	return int((h.SerialNumber & 0x3FF0) >> 4)
}

// UpdateNumber returns the update number encoded in the serial number.
func (h Header) UpdateNumber() int {
	return int(h.SerialNumber & 0x000F)
}

// IsGeoFencingTrigger reports if the PDU is a geo-fencing trigger message according to [ATIS].
func (h Header) IsGeoFencingTrigger() bool {
	return h.MessageIdentifier == MessageIDGeoFencingTrigger
}

// IsEmergency reports if the message identifier belongs to the ETWS or CMAS ranges.
func (h Header) IsEmergency() bool {
	id := h.MessageIdentifier
	return (id >= MessageIDETWSFirst && id <= MessageIDETWSLast) || (id >= MessageIDCMASFirst && id <= MessageIDCMASLast)
}

func (h Header) String() string {
	return fmt.Sprintf("%s header id=0x%04x serial=0x%04x dcs=0x%02x page=%d/%d",
		h.Format, h.MessageIdentifier, h.SerialNumber, h.DataCodingScheme, h.PageIndex, h.PageCount)
}
