package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ftl/cellbroadcast/cb"
	"github.com/ftl/cellbroadcast/config"
	"github.com/ftl/cellbroadcast/geo"
	"github.com/ftl/cellbroadcast/position"
)

type locationUpdateEvent struct {
	session uuid.UUID
	fix     position.Fix
}

type locationUnavailableEvent struct {
	session uuid.UUID
}

// session geo-fences a batch of stored messages with one subscription for location updates.
type session struct {
	id           uuid.UUID
	engine       *Engine
	entries      []*sessionEntry
	subscription position.Subscription
	subscribed   bool
	resolved     atomic.Bool
}

type sessionEntry struct {
	record cb.Record
	fence  *geo.Fence
	done   bool
}

func (s *session) OnLocationUpdate(fix position.Fix) {
	s.engine.post(locationUpdateEvent{session: s.id, fix: fix})
}

func (s *session) OnLocationUnavailable() {
	s.engine.post(locationUnavailableEvent{session: s.id})
}

func (s *session) AllResolved() bool {
	return s.resolved.Load()
}

func (s *session) complete() bool {
	for _, entry := range s.entries {
		if !entry.done {
			return false
		}
	}
	return true
}

// inSession reports if a message with the given identity is currently being geo-fenced.
func (e *Engine) inSession(identity cb.Identity) bool {
	for _, s := range e.sessions {
		for _, entry := range s.entries {
			if !entry.done && entry.record.Message.Identity() == identity {
				return true
			}
		}
	}
	return false
}

func (e *Engine) ownedBySession(recordID int64) bool {
	for _, s := range e.sessions {
		for _, entry := range s.entries {
			if !entry.done && entry.record.ID == recordID {
				return true
			}
		}
	}
	return false
}

// handleTrigger looks up the undelivered messages named by the trigger and starts geo-fencing them.
func (e *Engine) handleTrigger(ctx context.Context, slot int, pdu []byte) {
	trigger, err := cb.ParseTrigger(pdu)
	if err != nil {
		e.log.Warnf("dropping trigger from slot %d: %v", slot, err)
		return
	}

	since := e.lowerBound()
	seen := make(map[int64]bool)
	var records []cb.Record
	for _, identity := range trigger.Identities {
		found, err := e.store.QueryUndeliveredByIdentity(ctx, identity, since)
		if err != nil {
			e.log.Warnf("cannot look up %s: %v", identity, err)
			continue
		}
		for _, record := range found {
			if seen[record.ID] || e.ownedBySession(record.ID) {
				continue
			}
			seen[record.ID] = true
			records = append(records, record)
		}
	}

	e.log.Infof("trigger from slot %d names %d identities, found %d undelivered messages since %s",
		slot, len(trigger.Identities), len(records), since.Format(time.RFC3339))
	if len(records) == 0 {
		return
	}
	e.startSession(ctx, records, trigger.ShareBroadcastArea())
}

// startSession creates one fence per record and requests location updates for the longest
// maximum wait time of all records.
func (e *Engine) startSession(ctx context.Context, records []cb.Record, shareBroadcastArea bool) {
	var sharedArea []geo.Polygon
	if shareBroadcastArea {
		areas := make([][]geo.Polygon, 0, len(records))
		for _, record := range records {
			areas = append(areas, record.Message.Geometries)
		}
		sharedArea = geo.Union(areas...)
	}

	s := &session{
		id:      uuid.New(),
		engine:  e,
		entries: make([]*sessionEntry, 0, len(records)),
	}
	var budget time.Duration
	for _, record := range records {
		area := record.Message.Geometries
		if len(sharedArea) > 0 {
			area = sharedArea
		}
		s.entries = append(s.entries, &sessionEntry{
			record: record,
			fence:  geo.NewFence(area, e.config.AmbiguityToleranceMeters),
		})

		wait := record.Message.MaximumWaitTime
		if wait <= 0 {
			wait = e.config.DefaultMaxWait.Std()
		}
		budget = max(budget, wait)
	}
	e.sessions[s.id] = s

	if e.positions == nil {
		e.log.Warnf("no position provider for session %s", s.id)
		e.resolveUnavailable(ctx, s)
		return
	}
	subscription, err := e.positions.RequestLocationUpdates(budget, s)
	if err != nil {
		e.log.Warnf("cannot request location updates for session %s: %v", s.id, err)
		e.resolveUnavailable(ctx, s)
		return
	}
	s.subscription = subscription
	s.subscribed = true
	e.log.Debugf("session %s geo-fences %d messages within %s", s.id, len(s.entries), budget)
}

func (e *Engine) handleLocationUpdate(ctx context.Context, id uuid.UUID, fix position.Fix) {
	s, ok := e.sessions[id]
	if !ok {
		return
	}
	for _, entry := range s.entries {
		if entry.done {
			continue
		}
		switch entry.fence.Add(fix.Position, fix.AccuracyMeters) {
		case geo.Inside:
			e.finish(ctx, entry, true)
		case geo.Outside:
			e.finish(ctx, entry, false)
		}
	}
	e.endIfComplete(s)
}

func (e *Engine) handleLocationUnavailable(ctx context.Context, id uuid.UUID) {
	s, ok := e.sessions[id]
	if !ok {
		return
	}
	e.resolveUnavailable(ctx, s)
}

// resolveUnavailable resolves all open fences of the session according to the unavailable policy.
func (e *Engine) resolveUnavailable(ctx context.Context, s *session) {
	deliver := e.config.UnavailablePolicy == config.DeliverWhenUnavailable
	for _, entry := range s.entries {
		if entry.done {
			continue
		}
		e.log.Infof("no location for %s (%s), deliver: %t", entry.record.Message.Identity(), entry.fence.State(), deliver)
		entry.fence.Resolve(deliver)
		e.finish(ctx, entry, deliver)
	}
	e.endIfComplete(s)
}

// finish marks the record of the entry as delivered and delivers its message if requested and if
// no one else delivered it in the meantime.
func (e *Engine) finish(ctx context.Context, entry *sessionEntry, deliver bool) {
	entry.done = true
	msg := entry.record.Message

	marked, err := e.store.MarkDelivered(ctx, entry.record.ID)
	switch {
	case err != nil:
		e.log.Warnf("cannot mark %s as delivered: %v", msg.Identity(), err)
		if deliver {
			e.deliver(ctx, msg)
		}
	case !marked:
		e.log.Debugf("%s was already delivered", msg.Identity())
	case deliver:
		e.deliver(ctx, msg)
	default:
		e.log.Infof("%s is not meant for this location", msg.Identity())
	}
}

func (e *Engine) endIfComplete(s *session) {
	if !s.complete() {
		return
	}
	s.resolved.Store(true)
	delete(e.sessions, s.id)
	if s.subscribed {
		e.positions.Cancel(s.subscription)
	}
	e.log.Debugf("session %s complete", s.id)
}

// abandonSessions cancels all running sessions without resolving them.
func (e *Engine) abandonSessions() {
	for id, s := range e.sessions {
		s.resolved.Store(true)
		if s.subscribed {
			e.positions.Cancel(s.subscription)
		}
		delete(e.sessions, id)
	}
}
