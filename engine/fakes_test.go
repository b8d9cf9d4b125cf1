package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ftl/cellbroadcast/cb"
	"github.com/ftl/cellbroadcast/cell"
	"github.com/ftl/cellbroadcast/position"
)

type memoryStore struct {
	mu      sync.Mutex
	records []cb.Record
	nextID  int64
	fail    bool
	// failDuplicateQuery lets QueryDeliveredDuplicate fail.
	failDuplicateQuery bool
}

func (s *memoryStore) Insert(_ context.Context, msg cb.Message, delivered bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return 0, errors.New("store failure")
	}
	s.nextID++
	s.records = append(s.records, cb.Record{ID: s.nextID, Message: msg, Delivered: delivered})
	return s.nextID, nil
}

func (s *memoryStore) QueryUndeliveredByIdentity(_ context.Context, identity cb.Identity, since time.Time) ([]cb.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []cb.Record
	for _, record := range s.records {
		if !record.Delivered && record.Message.Identity() == identity && !record.Message.ReceivedAt.Before(since) {
			result = append(result, record)
		}
	}
	return result, nil
}

func (s *memoryStore) QueryDeliveredDuplicate(_ context.Context, identity cb.Identity, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDuplicateQuery {
		return false, errors.New("query failure")
	}
	for _, record := range s.records {
		if record.Delivered && record.Message.Identity() == identity && !record.Message.ReceivedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryStore) MarkDelivered(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			if s.records[i].Delivered {
				return false, nil
			}
			s.records[i].Delivered = true
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryStore) delivered(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.records {
		if record.ID == id {
			return record.Delivered
		}
	}
	return false
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type collectingSink struct {
	mu       sync.Mutex
	messages []cb.Message
}

func (s *collectingSink) Deliver(_ context.Context, msg cb.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *collectingSink) bodies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]string, 0, len(s.messages))
	for _, msg := range s.messages {
		result = append(result, msg.Body)
	}
	return result
}

// manualProvider hands out subscriptions but never calls back on its own. Tests drive the
// callbacks explicitly.
type manualProvider struct {
	mu        sync.Mutex
	requests  map[position.Subscription]position.Callbacks
	budgets   []time.Duration
	cancelled []position.Subscription
	fail      bool
}

func newManualProvider() *manualProvider {
	return &manualProvider{requests: make(map[position.Subscription]position.Callbacks)}
}

func (p *manualProvider) RequestLocationUpdates(budget time.Duration, callbacks position.Callbacks) (position.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return position.Subscription{}, errors.New("no positioning")
	}
	subscription := position.Subscription(uuid.New())
	p.requests[subscription] = callbacks
	p.budgets = append(p.budgets, budget)
	return subscription, nil
}

func (p *manualProvider) Cancel(subscription position.Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.requests, subscription)
	p.cancelled = append(p.cancelled, subscription)
}

func (p *manualProvider) active() []position.Callbacks {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make([]position.Callbacks, 0, len(p.requests))
	for _, callbacks := range p.requests {
		result = append(result, callbacks)
	}
	return result
}

func (p *manualProvider) update(fix position.Fix) {
	for _, callbacks := range p.active() {
		callbacks.OnLocationUpdate(fix)
	}
}

func (p *manualProvider) unavailable() {
	for _, callbacks := range p.active() {
		callbacks.OnLocationUnavailable()
	}
}

func (p *manualProvider) cancelCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cancelled)
}

type staticRegistration struct {
	registration cell.Registration
	err          error
}

func (r *staticRegistration) Registration(_ context.Context, _ int) (cell.Registration, error) {
	return r.registration, r.err
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
