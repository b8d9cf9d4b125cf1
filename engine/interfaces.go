package engine

import (
	"context"
	"time"

	"github.com/ftl/cellbroadcast/cb"
	"github.com/ftl/cellbroadcast/cell"
	"github.com/ftl/cellbroadcast/position"
)

// Store is the message history. The engine records every message it processes and relies on the
// delivered flag for duplicate detection and geo-fencing.
type Store interface {
	// Insert records a message and returns its record id.
	Insert(ctx context.Context, msg cb.Message, delivered bool) (int64, error)
	// QueryUndeliveredByIdentity returns the undelivered records with the given identity received at or after since.
	QueryUndeliveredByIdentity(ctx context.Context, identity cb.Identity, since time.Time) ([]cb.Record, error)
	// QueryDeliveredDuplicate reports if a delivered record with the given identity was received at or after since.
	QueryDeliveredDuplicate(ctx context.Context, identity cb.Identity, since time.Time) (bool, error)
	// MarkDelivered flags the record as delivered and reports if this call changed the flag.
	MarkDelivered(ctx context.Context, id int64) (bool, error)
}

// PositionProvider hands out location updates for geo-fencing.
type PositionProvider interface {
	RequestLocationUpdates(budget time.Duration, callbacks position.Callbacks) (position.Subscription, error)
	Cancel(position.Subscription)
}

// Sink receives the messages that should be presented to the user.
type Sink interface {
	Deliver(ctx context.Context, msg cb.Message) error
}

// SinkFunc wraps a function to implement Sink.
type SinkFunc func(context.Context, cb.Message) error

func (f SinkFunc) Deliver(ctx context.Context, msg cb.Message) error {
	return f(ctx, msg)
}

// RegistrationSource reports the registration state of a slot.
type RegistrationSource interface {
	Registration(ctx context.Context, slot int) (cell.Registration, error)
}

// AreaInfoNotifier is told that the area info of a slot changed. The notification does not carry
// the area info itself, receivers need to query it.
type AreaInfoNotifier interface {
	AreaInfoChanged(slot int, enabled bool)
}

// AreaInfoNotifierFunc wraps a function to implement AreaInfoNotifier.
type AreaInfoNotifierFunc func(slot int, enabled bool)

func (f AreaInfoNotifierFunc) AreaInfoChanged(slot int, enabled bool) {
	f(slot, enabled)
}

// ServiceState of a slot
type ServiceState int

// All service states
const (
	InService ServiceState = iota
	OutOfService
	EmergencyOnly
	PowerOff
)

func (s ServiceState) String() string {
	switch s {
	case InService:
		return "in service"
	case OutOfService:
		return "out of service"
	case EmergencyOnly:
		return "emergency only"
	case PowerOff:
		return "power off"
	default:
		return "unknown"
	}
}
