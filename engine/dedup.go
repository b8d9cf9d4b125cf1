package engine

import (
	"context"
	"time"

	"github.com/ftl/cellbroadcast/cb"
)

// lowerBound returns the earliest receive time of messages that are considered for duplicate
// detection and geo-fencing triggers.
func (e *Engine) lowerBound() time.Time {
	result := e.now().Add(-e.config.DuplicateWindow.Std())
	if !e.config.ResetOnPowerCycle {
		return result
	}
	if e.airplaneModeTime.After(result) {
		result = e.airplaneModeTime
	}
	if e.bootTime.After(result) {
		result = e.bootTime
	}
	return result
}

// isDuplicate reports if a message with the same identity was already delivered within the
// duplicate window or is currently being geo-fenced.
func (e *Engine) isDuplicate(ctx context.Context, msg cb.Message) bool {
	identity := msg.Identity()
	if e.inSession(identity) {
		return true
	}
	duplicate, err := e.store.QueryDeliveredDuplicate(ctx, identity, e.lowerBound())
	if err != nil {
		e.log.Warnf("duplicate detection for %s failed: %v", identity, err)
		return false
	}
	return duplicate
}
