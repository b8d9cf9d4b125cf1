package cb

import (
	"fmt"
	"strings"
	"time"

	"github.com/ftl/cellbroadcast/cell"
	"github.com/ftl/cellbroadcast/geo"
)

// Message is a complete, decoded cell broadcast message.
type Message struct {
	MessageIdentifier uint16
	SerialNumber      uint16
	// ServiceCategory is the channel the message was received on, i.e. its message identifier.
	ServiceCategory  int
	DataCodingScheme byte
	Location         cell.Location
	Language         string
	Body             string
	Geometries       []geo.Polygon
	// MaximumWaitTime is the longest time to wait for a location fix, zero if not specified.
	MaximumWaitTime time.Duration
	SlotIndex       int
	ReceivedAt      time.Time
}

// Identity returns the identity of this message.
func (m Message) Identity() Identity {
	return Identity{MessageIdentifier: m.MessageIdentifier, SerialNumber: m.SerialNumber}
}

// GeographicalScope returns the scope encoded in the serial number.
func (m Message) GeographicalScope() cell.GeographicalScope {
	return Header{SerialNumber: m.SerialNumber}.GeographicalScope()
}

// NeedsGeoFencing reports if the message declares a broadcast area.
func (m Message) NeedsGeoFencing() bool {
	return len(m.Geometries) > 0
}

func (m Message) String() string {
	return fmt.Sprintf("Message 0x%04x/0x%04x on slot %d at %s in %s (%d geometries):\n%s",
		m.MessageIdentifier, m.SerialNumber, m.SlotIndex, m.ReceivedAt.Format(time.RFC3339), m.Location, len(m.Geometries), m.Body)
}

// Record is a message as kept in the message history.
type Record struct {
	ID        int64
	Message   Message
	Delivered bool
}

// DecodeMessage decodes the pages of a complete message. The pages must be ordered by page index.
// For UMTS format messages there is exactly one page that contains all body pages and optionally
// the warning area coordinates.
func DecodeMessage(header Header, pages [][]byte, location cell.Location, slotIndex int, receivedAt time.Time) (Message, error) {
	if len(pages) == 0 {
		return Message{}, fmt.Errorf("no pages")
	}

	result := Message{
		MessageIdentifier: header.MessageIdentifier,
		SerialNumber:      header.SerialNumber,
		ServiceCategory:   int(header.MessageIdentifier),
		DataCodingScheme:  header.DataCodingScheme,
		Location:          location.Scoped(header.GeographicalScope()),
		SlotIndex:         slotIndex,
		ReceivedAt:        receivedAt,
	}

	scheme := ParseDataCodingScheme(header.DataCodingScheme)
	result.Language = scheme.Language

	var body strings.Builder
	appendPage := func(content []byte) error {
		text, language, err := DecodePage(scheme, content)
		if err != nil {
			return err
		}
		if result.Language == "" {
			result.Language = language
		}
		body.WriteString(text)
		return nil
	}

	switch header.Format {
	case GSMFormat:
		for i, page := range pages {
			if len(page) < HeaderLength {
				return Message{}, fmt.Errorf("page %d too short: %d", i+1, len(page))
			}
			if err := appendPage(page[HeaderLength:]); err != nil {
				return Message{}, fmt.Errorf("page %d: %w", i+1, err)
			}
		}
	case UMTSFormat:
		pdu := pages[0]
		offset := HeaderLength + 1
		for i := 0; i < int(header.BodyPages); i++ {
			end := offset + PageBodyLength
			if end >= len(pdu) {
				return Message{}, fmt.Errorf("page %d exceeds PDU of %d bytes", i+1, len(pdu))
			}
			usedLength := int(pdu[end])
			if usedLength > PageBodyLength {
				return Message{}, fmt.Errorf("page %d has invalid length %d", i+1, usedLength)
			}
			if err := appendPage(pdu[offset : offset+usedLength]); err != nil {
				return Message{}, fmt.Errorf("page %d: %w", i+1, err)
			}
			offset = end + 1
		}
		if offset < len(pdu) {
			area, err := ParseWAC(pdu[offset:])
			if err != nil {
				return Message{}, err
			}
			result.Geometries = area.Polygons
			result.MaximumWaitTime = area.MaximumWaitTime
		}
	default:
		return Message{}, fmt.Errorf("unknown format %d", header.Format)
	}

	result.Body = body.String()
	return result, nil
}

// NewGSMPage returns a GSM format PDU for one page. Short content is filled up with zero bytes;
// use PackPage to get a properly padded GSM 7-bit page.
func NewGSMPage(messageIdentifier, serialNumber uint16, dcs byte, pageIndex, pageCount uint8, content []byte) []byte {
	result := make([]byte, HeaderLength+PageBodyLength)
	result[0] = byte(serialNumber >> 8)
	result[1] = byte(serialNumber)
	result[2] = byte(messageIdentifier >> 8)
	result[3] = byte(messageIdentifier)
	result[4] = dcs
	result[5] = (pageIndex&0x0F)<<4 | (pageCount & 0x0F)
	copy(result[HeaderLength:], content)
	return result
}

// pageSeptets is the number of GSM 7-bit characters that fit into one page.
const pageSeptets = PageBodyLength * 8 / 7

// PackPage encodes the given text with the GSM 7-bit default alphabet and fills the page up with
// carriage returns. Text that does not fit into one page is cut off.
func PackPage(text string) []byte {
	septets := EncodeSeptets(text)
	if len(septets) > pageSeptets {
		septets = septets[:pageSeptets]
	}
	for len(septets) < pageSeptets {
		septets = append(septets, '\r')
	}
	return PackSeptets(septets)
}

// NewUMTSPDU returns a UMTS format PDU with the given page contents and, if not nil, the given
// encoded warning area coordinates.
func NewUMTSPDU(messageIdentifier, serialNumber uint16, dcs byte, pages [][]byte, wac []byte) []byte {
	result := make([]byte, 0, HeaderLength+1+len(pages)*(PageBodyLength+1)+len(wac))
	result = append(result,
		umtsMessageTypeCBS,
		byte(messageIdentifier>>8), byte(messageIdentifier),
		byte(serialNumber>>8), byte(serialNumber),
		dcs,
		byte(len(pages)),
	)
	for _, content := range pages {
		if len(content) > PageBodyLength {
			content = content[:PageBodyLength]
		}
		page := make([]byte, PageBodyLength+1)
		copy(page, content)
		for i := len(content); i < PageBodyLength; i++ {
			page[i] = '\r'
		}
		page[PageBodyLength] = byte(len(content))
		result = append(result, page...)
	}
	return append(result, wac...)
}
