package ctrl

import (
	"context"
	"fmt"

	"github.com/pion/logging"

	"github.com/ftl/cellbroadcast/cell"
	"github.com/ftl/cellbroadcast/position"
)

// ModemConfig of a Modem.
type ModemConfig struct {
	// Slot is the slot index the modem serves.
	Slot int
	// Channels are the broadcast channels (service categories) to receive.
	Channels []int
	// GPSAccuracyMeters is reported as accuracy of every GPS fix.
	GPSAccuracyMeters float64
	LoggerFactory     logging.LoggerFactory
}

// Modem provides the registration state and the GPS position of one modem.
type Modem struct {
	requester cell.Requester
	slot      int
	channels  []int
	accuracy  float64
	log       logging.LeveledLogger
}

func NewModem(requester cell.Requester, config ModemConfig) *Modem {
	result := &Modem{
		requester: requester,
		slot:      config.Slot,
		channels:  config.Channels,
		accuracy:  config.GPSAccuracyMeters,
	}
	if config.LoggerFactory != nil {
		result.log = config.LoggerFactory.NewLogger("modem")
	}
	return result
}

// Setup switches the modem into PDU mode, selects the broadcast channels, routes broadcasts to
// the terminal, and enables location reporting for all registration domains.
func (m *Modem) Setup(ctx context.Context) error {
	requests := []string{
		"ATE0",
		SetMessageMode(PDUMode),
		SetNumericOperatorFormat(),
		SelectBroadcastChannels(m.channels),
		EnableBroadcastIndications(),
	}
	for _, request := range requests {
		if _, err := m.requester.Request(ctx, request); err != nil {
			return fmt.Errorf("%s failed: %w", request, err)
		}
	}
	for _, request := range EnableRegistrationLocation() {
		if _, err := m.requester.Request(ctx, request); err != nil && m.log != nil {
			m.log.Warnf("%s not supported: %v", request, err)
		}
	}
	if m.log != nil && len(m.channels) == 0 {
		m.log.Infof("slot %d receives all broadcast channels", m.slot)
	} else if m.log != nil {
		m.log.Infof("slot %d receives broadcast channels %s", m.slot, FormatChannels(m.channels))
	}
	return nil
}

// Registration returns the current registration of the modem. Only the slot this modem serves is known.
// Neighbours stay empty, 3GPP TS 27.007 defines no command that lists neighbouring cells.
func (m *Modem) Registration(ctx context.Context, slot int) (cell.Registration, error) {
	if slot != m.slot {
		return cell.Registration{}, fmt.Errorf("unknown slot %d", slot)
	}
	plmn, err := RequestOperator(ctx, m.requester)
	if err != nil {
		return cell.Registration{}, fmt.Errorf("cannot read operator: %w", err)
	}

	result := cell.Registration{PLMN: plmn}
	result.CS = m.registeredIdentity(ctx, CircuitSwitched)
	result.PS = m.registeredIdentity(ctx, EPS)
	if result.PS == nil {
		result.PS = m.registeredIdentity(ctx, PacketSwitched)
	}
	return result, nil
}

func (m *Modem) registeredIdentity(ctx context.Context, domain RegistrationDomain) *cell.Identity {
	status, identity, err := RequestRegistration(ctx, m.requester, domain)
	if err != nil {
		if m.log != nil {
			m.log.Debugf("cannot read %s registration: %v", domain, err)
		}
		return nil
	}
	if !status.Registered() {
		return nil
	}
	return identity
}

// Registered reports if the modem is registered in any domain.
func (m *Modem) Registered(ctx context.Context) (bool, error) {
	var lastErr error
	answered := false
	for _, domain := range []RegistrationDomain{EPS, PacketSwitched, CircuitSwitched} {
		status, _, err := RequestRegistration(ctx, m.requester, domain)
		if err != nil {
			lastErr = err
			continue
		}
		if status.Registered() {
			return true, nil
		}
		answered = true
	}
	if answered {
		return false, nil
	}
	return false, lastErr
}

// Position implements position.Source using the modem's GPS receiver.
func (m *Modem) Position(ctx context.Context) (position.Fix, error) {
	result, err := RequestGPSPosition(ctx, m.requester)
	if err != nil {
		return position.Fix{}, err
	}
	result.AccuracyMeters = m.accuracy
	return result, nil
}
