package com

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ftl/cellbroadcast/cell"
)

// BroadcastPrefix starts the indication of a received cell broadcast page in PDU mode, see 3GPP TS 27.005 3.4.1
const BroadcastPrefix = "+CBM:"

var broadcastIndication = regexp.MustCompile(`^\+CBM: ?(\d+)$`)

// BroadcastHandler receives the PDU of a cell broadcast page that was received on the given slot.
type BroadcastHandler func(slot int, pdu []byte) error

// BroadcastFeed forwards all cell broadcast pages the modem indicates with +CBM to the given handler.
// The modem must route broadcasts directly to the terminal, e.g. with AT+CNMI=2,0,2,0,0.
func (c *COM) BroadcastFeed(slot int, handler BroadcastHandler) error {
	return c.AddIndication(BroadcastPrefix, 1, func(lines []string) {
		pdu, err := ParseBroadcastIndication(lines)
		if err != nil {
			if c.log != nil {
				c.log.Warnf("slot %d: %v", slot, err)
			}
			return
		}
		if c.log != nil {
			c.log.Tracef("slot %d: broadcast page %s", slot, cell.BinaryToHex(pdu))
		}
		if err := handler(slot, pdu); err != nil && c.log != nil {
			c.log.Errorf("slot %d: cannot handle broadcast page: %v", slot, err)
		}
	})
}

// ParseBroadcastIndication parses the two lines of a +CBM indication into the PDU bytes.
// Excess bytes beyond the indicated length are cut off.
func ParseBroadcastIndication(lines []string) ([]byte, error) {
	if len(lines) != 2 {
		return nil, fmt.Errorf("broadcast indication needs 2 lines, got %d", len(lines))
	}
	parts := broadcastIndication.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(lines[0])))
	if len(parts) != 2 {
		return nil, fmt.Errorf("unexpected broadcast indication: %s", lines[0])
	}
	length, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, err
	}

	pdu, err := cell.HexToBinary(lines[1])
	if err != nil {
		return nil, fmt.Errorf("cannot decode hex PDU data: %w", err)
	}
	if len(pdu) < length {
		return nil, fmt.Errorf("broadcast PDU too short, expected %d bytes, but got %d", length, len(pdu))
	}
	return pdu[:length], nil
}
