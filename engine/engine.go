// Package engine processes received cell broadcast PDUs: it reassembles multi-page messages,
// filters duplicates, maintains the area info of each slot, and geo-fences messages that carry a
// broadcast area before they are delivered.
//
// All processing happens on a single worker goroutine, the Submit methods only queue the input.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/ftl/cellbroadcast/cb"
	"github.com/ftl/cellbroadcast/config"
)

// ErrClosed is returned when input is submitted to a closed engine.
var ErrClosed = errors.New("engine closed")

const defaultQueueSize = 64

// Config of an Engine. Store and Sink are required.
type Config struct {
	Engine       config.Engine
	Store        Store
	Sink         Sink
	Positions    PositionProvider
	Registration RegistrationSource
	Notifiers    []AreaInfoNotifier
	// Slots is the number of slots, at least one.
	Slots         int
	QueueSize     int
	LoggerFactory logging.LoggerFactory
	// Now returns the current time, time.Now if nil.
	Now func() time.Time
}

// Engine is the cell broadcast processing engine.
type Engine struct {
	events    chan event
	closing   chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	cancel    context.CancelFunc

	store      Store
	sink       Sink
	positions  PositionProvider
	areaInfo   *AreaInfo
	attributor *Attributor
	now        func() time.Time
	log        logging.LeveledLogger

	// owned by the worker goroutine
	config           config.Engine
	reassemblers     map[int]*cb.Reassembler
	sessions         map[uuid.UUID]*session
	bootTime         time.Time
	airplaneModeTime time.Time
}

type event any

type rawMessageEvent struct {
	slot       int
	pdu        []byte
	receivedAt time.Time
}

type triggerEvent struct {
	slot       int
	pdu        []byte
	receivedAt time.Time
}

type airplaneModeEvent struct {
	on bool
	at time.Time
}

type serviceStateEvent struct {
	slot  int
	state ServiceState
}

type reconfigureEvent struct {
	config config.Engine
}

type syncEvent struct {
	done chan struct{}
}

// New creates a new engine and starts its worker goroutine.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("no store")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("no sink")
	}
	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}
	if cfg.Slots < 1 {
		cfg.Slots = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	log := cfg.LoggerFactory.NewLogger("engine")
	ctx, cancel := context.WithCancel(context.Background())
	result := &Engine{
		events:       make(chan event, cfg.QueueSize),
		closing:      make(chan struct{}),
		closed:       make(chan struct{}),
		cancel:       cancel,
		store:        cfg.Store,
		sink:         cfg.Sink,
		positions:    cfg.Positions,
		areaInfo:     NewAreaInfo(cfg.Slots, cfg.Engine.AreaInfoCategories, cfg.Notifiers, cfg.LoggerFactory.NewLogger("areainfo")),
		attributor:   NewAttributor(cfg.Registration, log),
		now:          cfg.Now,
		log:          log,
		config:       cfg.Engine,
		reassemblers: make(map[int]*cb.Reassembler),
		sessions:     make(map[uuid.UUID]*session),
		bootTime:     cfg.Now(),
	}

	go result.run(ctx)

	return result, nil
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.closed)
	defer e.abandonSessions()

	for {
		select {
		case <-e.closing:
			return
		case ev := <-e.events:
			e.handle(ctx, ev)
		}
	}
}

func (e *Engine) handle(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case rawMessageEvent:
		e.handleRawMessage(ctx, ev.slot, ev.pdu, ev.receivedAt)
	case triggerEvent:
		e.handleTrigger(ctx, ev.slot, ev.pdu)
	case locationUpdateEvent:
		e.handleLocationUpdate(ctx, ev.session, ev.fix)
	case locationUnavailableEvent:
		e.handleLocationUnavailable(ctx, ev.session)
	case airplaneModeEvent:
		e.airplaneModeTime = ev.at
		e.log.Debugf("airplane mode %t at %s", ev.on, ev.at.Format(time.RFC3339))
	case serviceStateEvent:
		if ev.state == PowerOff {
			e.reassembler(ev.slot).Reset()
		}
		if e.config.ResetAreaInfoOnOutOfService && ev.state != InService {
			e.areaInfo.Clear(ev.slot)
		}
	case reconfigureEvent:
		e.config = ev.config
		e.areaInfo.SetCategories(ev.config.AreaInfoCategories)
		e.log.Infof("configuration changed")
	case syncEvent:
		close(ev.done)
	default:
		e.log.Errorf("unexpected event %T", ev)
	}
}

// post queues the given event. It returns false if the engine is closed.
func (e *Engine) post(ev event) bool {
	select {
	case <-e.closing:
		return false
	default:
	}
	select {
	case e.events <- ev:
		return true
	case <-e.closing:
		return false
	}
}

func (e *Engine) submit(ev event) error {
	if !e.post(ev) {
		return ErrClosed
	}
	return nil
}

// SubmitRawMessage queues a raw cell broadcast PDU received on the given slot.
func (e *Engine) SubmitRawMessage(slot int, pdu []byte) error {
	return e.submit(rawMessageEvent{slot: slot, pdu: pdu, receivedAt: e.now()})
}

// SubmitGeofenceTrigger queues a geo-fencing trigger PDU received on the given slot.
func (e *Engine) SubmitGeofenceTrigger(slot int, pdu []byte) error {
	return e.submit(triggerEvent{slot: slot, pdu: pdu, receivedAt: e.now()})
}

// SubmitAirplaneModeChange tells the engine that airplane mode was switched at the given time.
// With ResetOnPowerCycle, messages received before are not considered for duplicate detection.
func (e *Engine) SubmitAirplaneModeChange(on bool, at time.Time) error {
	return e.submit(airplaneModeEvent{on: on, at: at})
}

// SubmitServiceState tells the engine about the service state of the given slot. Power off drops
// the incomplete multi-page messages of the slot.
func (e *Engine) SubmitServiceState(slot int, state ServiceState) error {
	return e.submit(serviceStateEvent{slot: slot, state: state})
}

// Reconfigure replaces the engine configuration. Running geo-fencing sessions keep their budget.
func (e *Engine) Reconfigure(cfg config.Engine) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return e.submit(reconfigureEvent{config: cfg})
}

// SetAreaInfoEnabled switches the area info on or off.
func (e *Engine) SetAreaInfoEnabled(enabled bool) {
	e.areaInfo.SetEnabled(enabled)
}

// AreaInfo returns the current area info of the given slot.
func (e *Engine) AreaInfo(slot int) string {
	return e.areaInfo.Get(slot)
}

// Sync waits until all input that was submitted before is processed.
func (e *Engine) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if !e.post(syncEvent{done: done}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-e.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the worker and cancels all running geo-fencing sessions. Messages of cancelled
// sessions stay undelivered in the store.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.closing)
		e.cancel()
	})
	<-e.closed
}

func (e *Engine) reassembler(slot int) *cb.Reassembler {
	result, ok := e.reassemblers[slot]
	if !ok {
		result = cb.NewReassembler()
		e.reassemblers[slot] = result
	}
	return result
}

func (e *Engine) handleRawMessage(ctx context.Context, slot int, pdu []byte, receivedAt time.Time) {
	header, err := cb.ParseHeader(pdu)
	if err != nil {
		e.log.Warnf("dropping PDU from slot %d: %v", slot, err)
		return
	}
	if header.IsGeoFencingTrigger() {
		e.handleTrigger(ctx, slot, pdu)
		return
	}

	location := e.attributor.CurrentLocation(ctx, slot)
	pages, complete := e.reassembler(slot).Put(header, pdu, location)
	if !complete {
		e.log.Debugf("%s: waiting for more pages", header)
		return
	}

	msg, err := cb.DecodeMessage(header, pages, location, slot, receivedAt)
	if err != nil {
		e.log.Warnf("cannot decode %s: %v", header, err)
		return
	}
	e.handleMessage(ctx, msg)
}

func (e *Engine) handleMessage(ctx context.Context, msg cb.Message) {
	if e.isDuplicate(ctx, msg) {
		e.log.Debugf("dropping duplicate %s", msg.Identity())
		return
	}
	if e.areaInfo.Handle(msg.SlotIndex, msg) {
		return
	}

	if msg.NeedsGeoFencing() {
		id, err := e.store.Insert(ctx, msg, false)
		if err != nil {
			e.log.Warnf("cannot record %s for geo-fencing, delivering right away: %v", msg.Identity(), err)
			e.deliver(ctx, msg)
			return
		}
		e.startSession(ctx, []cb.Record{{ID: id, Message: msg}}, false)
		return
	}

	if _, err := e.store.Insert(ctx, msg, true); err != nil {
		e.log.Warnf("cannot record %s: %v", msg.Identity(), err)
	}
	e.deliver(ctx, msg)
}

func (e *Engine) deliver(ctx context.Context, msg cb.Message) {
	e.log.Infof("delivering %s from slot %d", msg.Identity(), msg.SlotIndex)
	if err := e.sink.Deliver(ctx, msg); err != nil {
		e.log.Errorf("cannot deliver %s: %v", msg.Identity(), err)
	}
}
