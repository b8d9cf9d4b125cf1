// Package position provides location updates for geo-fencing. A Provider polls a Source for
// position fixes on behalf of each subscription until its time budget is spent or the
// subscriber has no more use for them.
package position

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/ftl/cellbroadcast/geo"
)

// ErrNoFix is returned by a Source that currently has no position.
var ErrNoFix = errors.New("no position fix")

// ErrClosed is returned for subscriptions requested after Close.
var ErrClosed = errors.New("position provider closed")

// Fix is a measured position.
type Fix struct {
	Position geo.LatLng
	// AccuracyMeters is the radius of uncertainty, zero if unknown.
	AccuracyMeters float64
	Time           time.Time
}

func (f Fix) String() string {
	return fmt.Sprintf("%.6f,%.6f ±%.0fm", f.Position.Lat, f.Position.Lng, f.AccuracyMeters)
}

// Callbacks receive the location updates of one subscription.
type Callbacks interface {
	OnLocationUpdate(Fix)
	// OnLocationUnavailable is called if the budget elapsed before AllResolved reported true.
	OnLocationUnavailable()
	// AllResolved reports if the subscriber needs no further updates.
	AllResolved() bool
}

// Subscription identifies one request for location updates.
type Subscription uuid.UUID

func (s Subscription) String() string {
	return uuid.UUID(s).String()
}

// Source delivers the current position.
type Source interface {
	Position(ctx context.Context) (Fix, error)
}

// SourceFunc wraps a function to implement Source.
type SourceFunc func(context.Context) (Fix, error)

func (f SourceFunc) Position(ctx context.Context) (Fix, error) {
	return f(ctx)
}

// Fixed is a Source that always returns the same position.
type Fixed struct {
	Position       geo.LatLng
	AccuracyMeters float64
}

func (f Fixed) Position(_ context.Context) (Fix, error) {
	return Fix{Position: f.Position, AccuracyMeters: f.AccuracyMeters, Time: time.Now()}, nil
}

// Unavailable is a Source that never has a position.
type Unavailable struct{}

func (Unavailable) Position(_ context.Context) (Fix, error) {
	return Fix{}, ErrNoFix
}

// Config of a Provider.
type Config struct {
	Source Source
	// Interval between two polls of the source.
	Interval      time.Duration
	LoggerFactory logging.LoggerFactory
}

// Provider hands out location updates to any number of concurrent subscriptions.
type Provider struct {
	source        Source
	interval      time.Duration
	subscriptions *xsync.Map[uuid.UUID, *subscription]
	log           logging.LeveledLogger

	// mu orders wg.Add against Close.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

type subscription struct {
	id        uuid.UUID
	callbacks Callbacks
	cancel    context.CancelFunc
}

const defaultInterval = time.Second

func NewProvider(config Config) *Provider {
	result := &Provider{
		source:        config.Source,
		interval:      config.Interval,
		subscriptions: xsync.NewMap[uuid.UUID, *subscription](),
	}
	if result.source == nil {
		result.source = Unavailable{}
	}
	if result.interval <= 0 {
		result.interval = defaultInterval
	}
	if config.LoggerFactory != nil {
		result.log = config.LoggerFactory.NewLogger("position")
	}
	return result
}

// RequestLocationUpdates starts polling the source for the given subscriber until the budget is
// spent, the subscriber reports that all is resolved, or the subscription is cancelled.
func (p *Provider) RequestLocationUpdates(budget time.Duration, callbacks Callbacks) (Subscription, error) {
	if budget <= 0 {
		return Subscription{}, fmt.Errorf("invalid budget %s", budget)
	}
	if callbacks == nil {
		return Subscription{}, fmt.Errorf("no callbacks")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return Subscription{}, ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), budget)
	sub := &subscription{
		id:        uuid.New(),
		callbacks: callbacks,
		cancel:    cancel,
	}
	p.subscriptions.Store(sub.id, sub)
	if p.log != nil {
		p.log.Debugf("subscription %s started with budget %s", sub.id, budget)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.subscriptions.Delete(sub.id)
		defer cancel()
		p.run(ctx, sub)
	}()

	return Subscription(sub.id), nil
}

// Cancel stops the given subscription. No further callbacks are started after Cancel returns,
// but a callback that is already running may still complete.
func (p *Provider) Cancel(s Subscription) {
	sub, ok := p.subscriptions.LoadAndDelete(uuid.UUID(s))
	if !ok {
		return
	}
	sub.cancel()
	if p.log != nil {
		p.log.Debugf("subscription %s cancelled", sub.id)
	}
}

// Active returns the number of running subscriptions.
func (p *Provider) Active() int {
	return p.subscriptions.Size()
}

// Close cancels all subscriptions and waits until they are stopped. Later requests fail with ErrClosed.
func (p *Provider) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.subscriptions.Range(func(id uuid.UUID, sub *subscription) bool {
		p.Cancel(Subscription(id))
		return true
	})
	p.wg.Wait()
}

func (p *Provider) run(ctx context.Context, sub *subscription) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		fix, err := p.source.Position(ctx)
		switch {
		case ctx.Err() != nil:
		case err != nil:
			if p.log != nil {
				p.log.Tracef("subscription %s: no position: %v", sub.id, err)
			}
		default:
			sub.callbacks.OnLocationUpdate(fix)
			if sub.callbacks.AllResolved() {
				if p.log != nil {
					p.log.Debugf("subscription %s resolved", sub.id)
				}
				return
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !sub.callbacks.AllResolved() {
				if p.log != nil {
					p.log.Debugf("subscription %s: budget elapsed", sub.id)
				}
				sub.callbacks.OnLocationUnavailable()
			}
			return
		case <-ticker.C:
		}
	}
}
