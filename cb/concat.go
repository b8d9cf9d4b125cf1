package cb

import (
	"github.com/ftl/cellbroadcast/cell"
)

type concatKey struct {
	SerialNumber uint16
	Location     cell.Location
}

type pendingMessage struct {
	pages [][]byte
}

func newPendingMessage(pageCount int) pendingMessage {
	return pendingMessage{
		pages: make([][]byte, pageCount),
	}
}

func (m pendingMessage) Complete() bool {
	for _, page := range m.pages {
		if page == nil {
			return false
		}
	}
	return true
}

// SetPage stores the page with the given index, starting with 1. Existing pages are replaced.
func (m *pendingMessage) SetPage(i int, pdu []byte) {
	i -= 1
	if i < 0 || i >= len(m.pages) {
		return
	}
	m.pages[i] = pdu
}

// Reassembler collects the pages of multi-page messages until they are complete. Pages are collected
// per serial number and location, where the location is reduced to what the geographical scope
// of the message requires. The Reassembler is not safe for concurrent use.
type Reassembler struct {
	pendingMessages map[concatKey]pendingMessage
}

func NewReassembler() *Reassembler {
	return &Reassembler{
		pendingMessages: make(map[concatKey]pendingMessage),
	}
}

// Put adds the given page, received at the current location. If this page completes its message,
// Put returns the PDUs of all pages ordered by page index and true.
func (r *Reassembler) Put(header Header, pdu []byte, current cell.Location) ([][]byte, bool) {
	r.prune(current)

	if header.PageCount <= 1 {
		return [][]byte{pdu}, true
	}

	key := concatKey{
		SerialNumber: header.SerialNumber,
		Location:     current.Scoped(header.GeographicalScope()),
	}
	message, ok := r.pendingMessages[key]
	if !ok || len(message.pages) != int(header.PageCount) {
		message = newPendingMessage(int(header.PageCount))
	}
	message.SetPage(int(header.PageIndex), pdu)

	if message.Complete() {
		delete(r.pendingMessages, key)
		return message.pages, true
	}
	r.pendingMessages[key] = message
	return nil, false
}

// Pending returns the number of incomplete messages.
func (r *Reassembler) Pending() int {
	return len(r.pendingMessages)
}

// Reset drops all incomplete messages.
func (r *Reassembler) Reset() {
	clear(r.pendingMessages)
}

func (r *Reassembler) prune(current cell.Location) {
	for key := range r.pendingMessages {
		if !key.Location.InLocationArea(current) {
			delete(r.pendingMessages, key)
		}
	}
}
