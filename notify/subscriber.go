package notify

import (
	"sync"
	"sync/atomic"
)

// Subscriber is one consumer on the status bus. Events arrive on a
// buffered channel and delivery never blocks the publisher: a delivery
// that finds no credit or a full buffer is dropped and counted, not
// queued. The credit balance bounds how far a consumer may fall behind
// before the broker stops sending to it; gateways replenish it as the
// client acknowledges progress.
type Subscriber struct {
	id string
	ch chan *Event

	// credits is spent one per delivery and replenished by Grant.
	// At zero the subscriber is skipped.
	credits atomic.Int64

	// dropped counts deliveries lost to exhausted credit or a full
	// buffer, surfaced through BrokerStats.
	dropped atomic.Int64

	mu     sync.RWMutex
	topics map[string]struct{}

	closed atomic.Bool
}

// NewSubscriber creates a subscriber with the given channel buffer and
// starting credit balance.
func NewSubscriber(id string, bufferSize int, credits int64) *Subscriber {
	s := &Subscriber{
		id:     id,
		ch:     make(chan *Event, bufferSize),
		topics: make(map[string]struct{}),
	}
	s.credits.Store(credits)
	return s
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the channel events are delivered on. It is closed when the
// subscriber is removed.
func (s *Subscriber) C() <-chan *Event { return s.ch }

// Grant adds n flow-control credits.
func (s *Subscriber) Grant(n int64) { s.credits.Add(n) }

// Credits returns the remaining credit balance.
func (s *Subscriber) Credits() int64 { return s.credits.Load() }

// Dropped returns how many deliveries to this subscriber were dropped.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

func (s *Subscriber) addTopic(topic string) {
	s.mu.Lock()
	s.topics[topic] = struct{}{}
	s.mu.Unlock()
}

func (s *Subscriber) removeTopic(topic string) {
	s.mu.Lock()
	delete(s.topics, topic)
	s.mu.Unlock()
}

// Topics returns the names of the topics the subscriber is on.
func (s *Subscriber) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.topics))
	for name := range s.topics {
		names = append(names, name)
	}
	return names
}

// deliver hands an event to the subscriber without blocking. Each
// delivered event spends one credit; a failed buffer write refunds it.
// Reports whether the event was delivered.
func (s *Subscriber) deliver(evt *Event) bool {
	if s.closed.Load() {
		return false
	}
	for {
		c := s.credits.Load()
		if c <= 0 {
			s.dropped.Add(1)
			return false
		}
		if s.credits.CompareAndSwap(c, c-1) {
			break
		}
	}
	select {
	case s.ch <- evt:
		return true
	default:
		s.credits.Add(1)
		s.dropped.Add(1)
		return false
	}
}

// Close closes the delivery channel. Safe to call more than once.
func (s *Subscriber) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}
