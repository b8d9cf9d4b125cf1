package engine

import (
	"context"

	"github.com/pion/logging"

	"github.com/ftl/cellbroadcast/cell"
)

// Attributor determines the location a broadcast was received at from the registration state.
type Attributor struct {
	source RegistrationSource
	log    logging.LeveledLogger
}

func NewAttributor(source RegistrationSource, log logging.LeveledLogger) *Attributor {
	return &Attributor{
		source: source,
		log:    log,
	}
}

// CurrentLocation returns the location of the given slot. The circuit switched registration has
// priority over the packet switched registration, which has priority over the neighbouring cells.
// The first cell identity with a known area code or cell id wins.
func (a *Attributor) CurrentLocation(ctx context.Context, slot int) cell.Location {
	if a.source == nil {
		return cell.UnknownLocation("")
	}
	registration, err := a.source.Registration(ctx, slot)
	if err != nil {
		if a.log != nil {
			a.log.Warnf("cannot get registration of slot %d: %v", slot, err)
		}
		return cell.UnknownLocation("")
	}

	candidates := make([]cell.Identity, 0, 2+len(registration.Neighbours))
	if registration.CS != nil {
		candidates = append(candidates, *registration.CS)
	}
	if registration.PS != nil {
		candidates = append(candidates, *registration.PS)
	}
	candidates = append(candidates, registration.Neighbours...)

	for _, identity := range candidates {
		if identity.Known() {
			return cell.Location{PLMN: registration.PLMN, LAC: identity.LAC, CID: identity.CID}
		}
	}
	return cell.UnknownLocation(registration.PLMN)
}
