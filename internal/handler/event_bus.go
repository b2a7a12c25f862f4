// internal/handler/event_bus.go
package handler

import (
	"sync"

	"go.uber.org/zap"

	"glider-device-service/internal/model"
)

// EventBus fans device events out to subscribers. Publish never blocks:
// events are dropped when the queue or a subscriber is full.
type EventBus struct {
	events chan model.DeviceEvent
	done   chan struct{}
	once   sync.Once

	mutex       sync.RWMutex
	subscribers map[*Subscription]struct{}

	logger *zap.Logger
}

// Subscription receives the events accepted by its filter
type Subscription struct {
	C      <-chan model.DeviceEvent
	c      chan model.DeviceEvent
	filter func(model.DeviceEvent) bool
}

func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		events:      make(chan model.DeviceEvent, 1000),
		done:        make(chan struct{}),
		subscribers: make(map[*Subscription]struct{}),
		logger:      logger.With(zap.String("component", "event_bus")),
	}
}

// Start distributes events until Stop is called
func (eb *EventBus) Start() {
	for {
		select {
		case <-eb.done:
			return
		case event := <-eb.events:
			eb.distribute(event)
		}
	}
}

func (eb *EventBus) Stop() {
	eb.once.Do(func() { close(eb.done) })
}

func (eb *EventBus) Publish(event model.DeviceEvent) {
	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(event.EventType)),
			zap.Int("device_index", event.DeviceIndex))
	}
}

// Subscribe registers a subscriber; a nil filter accepts every event
func (eb *EventBus) Subscribe(buffer int, filter func(model.DeviceEvent) bool) *Subscription {
	c := make(chan model.DeviceEvent, buffer)
	sub := &Subscription{C: c, c: c, filter: filter}

	eb.mutex.Lock()
	eb.subscribers[sub] = struct{}{}
	eb.mutex.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channel
func (eb *EventBus) Unsubscribe(sub *Subscription) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if _, ok := eb.subscribers[sub]; ok {
		delete(eb.subscribers, sub)
		close(sub.c)
	}
}

func (eb *EventBus) SubscriberCount() int {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()
	return len(eb.subscribers)
}

func (eb *EventBus) distribute(event model.DeviceEvent) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for sub := range eb.subscribers {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		select {
		case sub.c <- event:
		default:
			// slow subscriber
		}
	}
}
