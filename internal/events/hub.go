// Package events is the in-process feed of back-office activity. Services
// publish after commit; the admin stream endpoint subscribes. Delivery is
// best effort, a slow subscriber drops events rather than blocking billing.
package events

import (
	"sync"
	"time"
)

const (
	TypeCustomerOnboarded = "customer.onboarded"
	TypeInvoiceGenerated  = "invoice.generated"
	TypeInvoicesOverdue   = "invoices.overdue"
	TypePaymentRecorded   = "payment.recorded"
	TypePaymentRefunded   = "payment.refunded"
)

const (
	DefaultBufferSize       = 100
	DefaultSubscriberBuffer = 16
)

type Event struct {
	Type       string         `json:"type"`
	CustomerID string         `json:"customer_id,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Hub struct {
	mu     sync.Mutex
	buffer []Event
	subs   map[uint64]chan Event
	nextID uint64

	bufferSize       int
	subscriberBuffer int
}

type Subscription struct {
	hub  *Hub
	id   uint64
	ch   chan Event
	once sync.Once
}

func NewHub() *Hub {
	return &Hub{
		subs:             make(map[uint64]chan Event),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

func (h *Hub) Publish(event Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.buffer = append(h.buffer, event)
	if len(h.buffer) > h.bufferSize {
		h.buffer = h.buffer[len(h.buffer)-h.bufferSize:]
	}
	subs := make([]chan Event, 0, len(h.subs))
	for _, ch := range h.subs {
		subs = append(subs, ch)
	}
	h.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers a listener and returns the recent event buffer so new
// subscribers see context immediately.
func (h *Hub) Subscribe() (*Subscription, []Event) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	ch := make(chan Event, h.subscriberBuffer)
	h.subs[id] = ch
	buffer := append([]Event(nil), h.buffer...)
	h.mu.Unlock()

	return &Subscription{hub: h, id: id, ch: ch}, buffer
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

func (s *Subscription) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.id)
	})
}
