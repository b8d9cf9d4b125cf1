package engine

import (
	"sync"

	"github.com/pion/logging"

	"github.com/ftl/cellbroadcast/cb"
)

// AreaInfo keeps the latest area info text per slot. Area info messages are never delivered,
// their text replaces the area info of the slot instead.
type AreaInfo struct {
	mu         sync.Mutex
	infos      map[int]string
	categories map[int]bool
	slots      int
	notifiers  []AreaInfoNotifier
	log        logging.LeveledLogger
}

// NewAreaInfo returns a new AreaInfo for the given number of slots that handles the given service categories.
func NewAreaInfo(slots int, categories []int, notifiers []AreaInfoNotifier, log logging.LeveledLogger) *AreaInfo {
	result := &AreaInfo{
		infos:     make(map[int]string),
		slots:     slots,
		notifiers: notifiers,
		log:       log,
	}
	result.SetCategories(categories)
	return result
}

// SetCategories replaces the service categories that are handled as area info.
func (a *AreaInfo) SetCategories(categories []int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.categories = make(map[int]bool, len(categories))
	for _, category := range categories {
		a.categories[category] = true
	}
}

// Handle reports if the message is an area info message. If so, the message is absorbed and, if its
// body differs from the current area info of the slot, the area info is replaced and all notifiers
// are told about the change.
func (a *AreaInfo) Handle(slot int, msg cb.Message) bool {
	a.mu.Lock()
	if !a.categories[msg.ServiceCategory] {
		a.mu.Unlock()
		return false
	}
	current, ok := a.infos[slot]
	if ok && current == msg.Body {
		a.mu.Unlock()
		if a.log != nil {
			a.log.Debugf("area info of slot %d unchanged", slot)
		}
		return true
	}
	a.infos[slot] = msg.Body
	a.mu.Unlock()

	if a.log != nil {
		a.log.Infof("area info of slot %d changed on channel %d", slot, msg.ServiceCategory)
	}
	a.notify(slot, true)
	return true
}

// Get returns the area info of the given slot, empty if there is none.
func (a *AreaInfo) Get(slot int) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.infos[slot]
}

// Clear removes the area info of the given slot without notification.
func (a *AreaInfo) Clear(slot int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.infos[slot]; !ok {
		return
	}
	delete(a.infos, slot)
	if a.log != nil {
		a.log.Infof("area info of slot %d cleared", slot)
	}
}

// SetEnabled tells all notifiers for all slots that area info was switched on or off. Switching it
// off clears the area info of all slots before the notifiers are called.
func (a *AreaInfo) SetEnabled(enabled bool) {
	a.mu.Lock()
	if !enabled {
		clear(a.infos)
	}
	slots := a.slots
	a.mu.Unlock()

	if a.log != nil {
		a.log.Infof("area info enabled: %t", enabled)
	}
	for slot := 0; slot < slots; slot++ {
		a.notify(slot, enabled)
	}
}

func (a *AreaInfo) notify(slot int, enabled bool) {
	for _, notifier := range a.notifiers {
		notifier.AreaInfoChanged(slot, enabled)
	}
}
