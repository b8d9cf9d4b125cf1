package cell

import (
	"context"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// Unknown marks an unavailable location area code or cell id.
const Unknown = -1

// GeographicalScope enum according to 3GPP TS 23.041 9.4.1.2.1
type GeographicalScope byte

// All defined geographical scopes
const (
	CellWideImmediate GeographicalScope = iota
	PLMNWide
	LocationAreaWide
	CellWide
)

func (s GeographicalScope) String() string {
	switch s {
	case CellWideImmediate:
		return "cell-immediate"
	case PLMNWide:
		return "plmn"
	case LocationAreaWide:
		return "location-area"
	case CellWide:
		return "cell"
	default:
		return "unknown"
	}
}

// Location describes where a broadcast was received: the network (MCC+MNC), the location area
// (LAC for GSM/UMTS, TAC for LTE/NR) and the cell id. LAC and CID may be Unknown.
type Location struct {
	PLMN string
	LAC  int
	CID  int
}

// UnknownLocation returns a location without area and cell information for the given network.
func UnknownLocation(plmn string) Location {
	return Location{PLMN: plmn, LAC: Unknown, CID: Unknown}
}

func (l Location) String() string {
	return fmt.Sprintf("[plmn=%s,lac=%d,cid=%d]", l.PLMN, l.LAC, l.CID)
}

// Known reports if at least the location area or the cell id is available.
func (l Location) Known() bool {
	return l.LAC != Unknown || l.CID != Unknown
}

// Scoped returns a copy that only keeps the fields relevant for the given geographical scope.
// Fields outside the scope are set to Unknown and therefore match any value.
func (l Location) Scoped(scope GeographicalScope) Location {
	switch scope {
	case PLMNWide:
		return Location{PLMN: l.PLMN, LAC: Unknown, CID: Unknown}
	case LocationAreaWide:
		return Location{PLMN: l.PLMN, LAC: l.LAC, CID: Unknown}
	default:
		return l
	}
}

// InLocationArea reports if the given current location lies within this location.
// Unknown fields of this location match any value.
func (l Location) InLocationArea(current Location) bool {
	if l.CID != Unknown && l.CID != current.CID {
		return false
	}
	if l.LAC != Unknown && l.LAC != current.LAC {
		return false
	}
	return l.PLMN == current.PLMN
}

// Identity of a serving or neighbouring cell as reported by the modem.
type Identity struct {
	Technology Technology
	// LAC holds the location area code (GSM, UMTS, TD-SCDMA) or the tracking area code (LTE, NR).
	LAC int
	// CID holds the cell id (GSM, UMTS, TD-SCDMA), the cell identity (LTE) or the physical cell id (NR).
	CID int
}

// Known reports if the identity carries an area code or cell id.
func (i Identity) Known() bool {
	return i.LAC != Unknown || i.CID != Unknown
}

// Technology of a radio access network, according to 3GPP TS 27.007 7.2 <AcT>
type Technology byte

// All relevant access technologies
const (
	GSM Technology = iota
	UMTS
	TDSCDMA
	LTE
	NR
)

// Registration is a snapshot of the registration state of one slot.
// CS and PS are nil if the slot is not registered in the respective domain.
type Registration struct {
	PLMN       string
	CS         *Identity
	PS         *Identity
	Neighbours []Identity
}

// Requester sends an AT request and returns the response lines.
type Requester interface {
	Request(context.Context, string) ([]string, error)
}

// RequesterFunc wraps a function to implement Requester.
type RequesterFunc func(context.Context, string) ([]string, error)

func (f RequesterFunc) Request(ctx context.Context, request string) ([]string, error) {
	return f(ctx, request)
}

var hexSanitizer = regexp.MustCompile(`\s+`)

// HexToBinary converts the hex representation used along the AT interface for binary data into a slice of bytes
func HexToBinary(s string) ([]byte, error) {
	sanitized := hexSanitizer.ReplaceAllString(s, "")
	return hex.DecodeString(sanitized)
}

// BinaryToHex converts a slice of bytes into the hex representation used along the AT interface for binary data
func BinaryToHex(pdu []byte) string {
	return strings.ToUpper(hex.EncodeToString(pdu))
}
