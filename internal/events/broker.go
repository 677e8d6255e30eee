package events

import (
	"log"
	"sync"
	"time"
)

// Phase is the lifecycle stage of a single tool invocation.
type Phase string

const (
	PhaseStarting  Phase = "starting"
	PhaseExecuting Phase = "executing"
	PhaseCompleted Phase = "completed"
	PhaseError     Phase = "error"
)

// ToolExecutionEvent is one progress notification for a tool invocation.
// Events are never mutated after publication.
type ToolExecutionEvent struct {
	ToolCallID string    `json:"tool_call_id"`
	ToolName   string    `json:"tool_name"`
	Phase      Phase     `json:"phase"`
	Timestamp  time.Time `json:"timestamp"`
	Error      string    `json:"error,omitempty"`
}

// Handler receives every event published after it subscribes.
type Handler func(ToolExecutionEvent)

// Subscription identifies a registered handler so it can be removed later.
type Subscription struct {
	id int64
}

type subscriber struct {
	id      int64
	handler Handler
}

// Broker is an in-process pub/sub bus for tool-execution events. One Broker
// is owned by exactly one run; concurrent runs each get their own instance
// via NewBroker so subscriber lists and histories never leak across runs.
//
// Delivery is synchronous and preserves publish order: publishers are
// serialized, and each event reaches subscribers in registration order.
type Broker struct {
	publishMu sync.Mutex // serializes whole publish cycles

	mu      sync.Mutex // guards subs and history
	nextID  int64
	subs    []subscriber
	history []ToolExecutionEvent
}

func NewBroker() *Broker {
	return &Broker{}
}

// Subscribe registers a handler for all future events.
func (b *Broker) Subscribe(h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs = append(b.subs, subscriber{id: b.nextID, handler: h})
	return &Subscription{id: b.nextID}
}

// Unsubscribe removes a handler. It is idempotent and safe to call from
// inside the handler itself while a publish is in flight.
func (b *Broker) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.id == s.id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish appends the event to the history and delivers it to every current
// subscriber. A panicking handler is logged and skipped; it never prevents
// delivery to the remaining subscribers or fails the publishing stage.
func (b *Broker) Publish(evt ToolExecutionEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.Lock()
	b.history = append(b.history, evt)
	snapshot := make([]subscriber, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.Unlock()

	for _, sub := range snapshot {
		if !b.active(sub.id) {
			// Unsubscribed by an earlier handler in this same cycle.
			continue
		}
		b.deliver(sub, evt)
	}
}

func (b *Broker) active(id int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if sub.id == id {
			return true
		}
	}
	return false
}

func (b *Broker) deliver(sub subscriber, evt ToolExecutionEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("event subscriber panicked on %s/%s: %v", evt.ToolName, evt.Phase, r)
		}
	}()
	sub.handler(evt)
}

// History returns a copy of every event published so far, in publish order.
func (b *Broker) History() []ToolExecutionEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ToolExecutionEvent, len(b.history))
	copy(out, b.history)
	return out
}

// ToolUsage counts completed invocations per tool name, for post-run summaries.
func (b *Broker) ToolUsage() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	usage := make(map[string]int)
	for _, evt := range b.history {
		if evt.Phase == PhaseCompleted {
			usage[evt.ToolName]++
		}
	}
	return usage
}
