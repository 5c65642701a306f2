// Package events publishes onboarding outcomes for downstream consumers
// (provisioning systems, compliance). The in-process store is the default
// sink; a Kafka sink is available for deployments with a broker.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	ActionUserOnboarded    = "user_onboarded"
	ActionOnboardingFailed = "onboarding_failed"
)

// Event records one onboarding outcome.
type Event struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employee_id"`
	Action     string    `json:"action"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Store is where the publisher lands events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByEmployee(ctx context.Context, employeeID string) ([]Event, error)
}

// InMemoryStore keeps events per employee in a mutex-guarded map.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string][]Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string][]Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.EmployeeID] = append(s.events[event.EmployeeID], event)
	return nil
}

func (s *InMemoryStore) ListByEmployee(_ context.Context, employeeID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events[employeeID]...), nil
}

// Publisher stamps and emits events. Synchronous by default; WithAsyncBuffer
// switches to a buffered worker that drops events when the buffer is full
// rather than blocking the enrichment path.
type Publisher struct {
	store Store

	ch     chan Event
	wg     sync.WaitGroup
	closed sync.Once
}

type PublisherOption func(*Publisher)

func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		p.ch = make(chan Event, size)
	}
}

func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.ch != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit stamps the event with an ID and timestamp when missing and hands it to
// the store.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if p.ch == nil {
		return p.store.Append(ctx, event)
	}

	select {
	case p.ch <- event:
	default:
		// Buffer full: onboarding must not block on event delivery.
	}
	return nil
}

// List returns the events recorded for an employee.
func (p *Publisher) List(ctx context.Context, employeeID string) ([]Event, error) {
	return p.store.ListByEmployee(ctx, employeeID)
}

// Close drains the async buffer. Safe to call more than once.
func (p *Publisher) Close() {
	p.closed.Do(func() {
		if p.ch != nil {
			close(p.ch)
			p.wg.Wait()
		}
	})
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.ch {
		_ = p.store.Append(context.Background(), event)
	}
}
