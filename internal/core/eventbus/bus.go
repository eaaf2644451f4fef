package eventbus

import (
	"context"
	"sync"
)

// Event names a published event.
type Event string

const (
	EventDocumentClosed        Event = "document.closed"
	EventDocumentFailed        Event = "document.failed"
	EventDocumentLoaded        Event = "document.loaded"
	EventNotificationPublished Event = "notification.published"
	EventPageChanged           Event = "page.changed"
	EventPageFailed            Event = "page.failed"
	EventPageRendered          Event = "page.rendered"
	EventStateChanged          Event = "state.changed"
	EventZoomChanged           Event = "zoom.changed"
)

type envelope struct {
	event   Event
	payload any
}

// EventBus delivers events asynchronously on the goroutine running Start.
// Publishing never blocks: when the buffer is full the event is dropped and
// OnDrop hooks fire.
type EventBus struct {
	ch    chan envelope
	hooks hooks

	mu   sync.RWMutex
	subs map[Event][]func(any)
}

// New creates a bus with the given buffer size.
func New(buffer int) *EventBus {
	return &EventBus{
		ch:   make(chan envelope, buffer),
		subs: make(map[Event][]func(any)),
	}
}

// Start dispatches events until ctx is cancelled.
func (bus *EventBus) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-bus.ch:
			bus.dispatch(env)
		}
	}
}

func (bus *EventBus) dispatch(env envelope) {
	bus.mu.RLock()
	subs := make([]func(any), len(bus.subs[env.event]))
	copy(subs, bus.subs[env.event])
	bus.mu.RUnlock()

	for _, fn := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					bus.runOnPanic(env.event, env.payload, r)
				}
			}()
			fn(env.payload)
		}()
	}
}

func (bus *EventBus) subscribe(event Event, fn func(any)) {
	bus.mu.Lock()
	bus.subs[event] = append(bus.subs[event], fn)
	bus.mu.Unlock()
	bus.runOnSubscribe(event)
}

func subscribeTyped[T any](bus *EventBus, event Event, fn func(T)) {
	bus.subscribe(event, func(p any) {
		if v, ok := p.(T); ok {
			fn(v)
		}
	})
}

// PublishDocumentLoaded publishes EventDocumentLoaded.
func (bus *EventBus) PublishDocumentLoaded(p DocumentLoadedPayload) {
	bus.send(EventDocumentLoaded, p)
}

// SubscribeDocumentLoaded registers fn for EventDocumentLoaded.
func (bus *EventBus) SubscribeDocumentLoaded(fn func(DocumentLoadedPayload)) {
	subscribeTyped(bus, EventDocumentLoaded, fn)
}

// PublishDocumentFailed publishes EventDocumentFailed.
func (bus *EventBus) PublishDocumentFailed(p DocumentFailedPayload) {
	bus.send(EventDocumentFailed, p)
}

// SubscribeDocumentFailed registers fn for EventDocumentFailed.
func (bus *EventBus) SubscribeDocumentFailed(fn func(DocumentFailedPayload)) {
	subscribeTyped(bus, EventDocumentFailed, fn)
}

// PublishDocumentClosed publishes EventDocumentClosed.
func (bus *EventBus) PublishDocumentClosed(p DocumentClosedPayload) {
	bus.send(EventDocumentClosed, p)
}

// SubscribeDocumentClosed registers fn for EventDocumentClosed.
func (bus *EventBus) SubscribeDocumentClosed(fn func(DocumentClosedPayload)) {
	subscribeTyped(bus, EventDocumentClosed, fn)
}

// PublishPageRendered publishes EventPageRendered.
func (bus *EventBus) PublishPageRendered(p PageRenderedPayload) {
	bus.send(EventPageRendered, p)
}

// SubscribePageRendered registers fn for EventPageRendered.
func (bus *EventBus) SubscribePageRendered(fn func(PageRenderedPayload)) {
	subscribeTyped(bus, EventPageRendered, fn)
}

// PublishPageFailed publishes EventPageFailed.
func (bus *EventBus) PublishPageFailed(p PageFailedPayload) {
	bus.send(EventPageFailed, p)
}

// SubscribePageFailed registers fn for EventPageFailed.
func (bus *EventBus) SubscribePageFailed(fn func(PageFailedPayload)) {
	subscribeTyped(bus, EventPageFailed, fn)
}

// PublishPageChanged publishes EventPageChanged.
func (bus *EventBus) PublishPageChanged(p PageChangedPayload) {
	bus.send(EventPageChanged, p)
}

// SubscribePageChanged registers fn for EventPageChanged.
func (bus *EventBus) SubscribePageChanged(fn func(PageChangedPayload)) {
	subscribeTyped(bus, EventPageChanged, fn)
}

// PublishZoomChanged publishes EventZoomChanged.
func (bus *EventBus) PublishZoomChanged(p ZoomChangedPayload) {
	bus.send(EventZoomChanged, p)
}

// SubscribeZoomChanged registers fn for EventZoomChanged.
func (bus *EventBus) SubscribeZoomChanged(fn func(ZoomChangedPayload)) {
	subscribeTyped(bus, EventZoomChanged, fn)
}

// PublishStateChanged publishes EventStateChanged.
func (bus *EventBus) PublishStateChanged(p StateChangedPayload) {
	bus.send(EventStateChanged, p)
}

// SubscribeStateChanged registers fn for EventStateChanged.
func (bus *EventBus) SubscribeStateChanged(fn func(StateChangedPayload)) {
	subscribeTyped(bus, EventStateChanged, fn)
}

// PublishNotificationPublished publishes EventNotificationPublished.
func (bus *EventBus) PublishNotificationPublished(p NotificationPublishedPayload) {
	bus.send(EventNotificationPublished, p)
}

// SubscribeNotificationPublished registers fn for EventNotificationPublished.
func (bus *EventBus) SubscribeNotificationPublished(fn func(NotificationPublishedPayload)) {
	subscribeTyped(bus, EventNotificationPublished, fn)
}

// hooks holds the lifecycle hook state for the EventBus.
type hooks struct {
	mu          sync.RWMutex
	onPublish   []func(Event, any)
	onDrop      []func(Event, any)
	onSubscribe []func(Event)
	onPanic     []func(Event, any, any)
}

// OnPublish registers a hook that fires after an event is successfully enqueued.
func (bus *EventBus) OnPublish(fn func(Event, any)) {
	bus.hooks.mu.Lock()
	bus.hooks.onPublish = append(bus.hooks.onPublish, fn)
	bus.hooks.mu.Unlock()
}

// OnDrop registers a hook that fires when an event is dropped due to a full buffer.
func (bus *EventBus) OnDrop(fn func(Event, any)) {
	bus.hooks.mu.Lock()
	bus.hooks.onDrop = append(bus.hooks.onDrop, fn)
	bus.hooks.mu.Unlock()
}

// OnSubscribe registers a hook that fires after a subscriber is registered.
func (bus *EventBus) OnSubscribe(fn func(Event)) {
	bus.hooks.mu.Lock()
	bus.hooks.onSubscribe = append(bus.hooks.onSubscribe, fn)
	bus.hooks.mu.Unlock()
}

// OnPanic registers a hook that fires when a subscriber panics.
func (bus *EventBus) OnPanic(fn func(Event, any, any)) {
	bus.hooks.mu.Lock()
	bus.hooks.onPanic = append(bus.hooks.onPanic, fn)
	bus.hooks.mu.Unlock()
}

func (bus *EventBus) send(event Event, payload any) {
	select {
	case bus.ch <- envelope{event: event, payload: payload}:
		bus.runOnPublish(event, payload)
	default:
		bus.runOnDrop(event, payload)
	}
}

func (bus *EventBus) runOnPublish(event Event, payload any) {
	bus.hooks.mu.RLock()
	hooks := make([]func(Event, any), len(bus.hooks.onPublish))
	copy(hooks, bus.hooks.onPublish)
	bus.hooks.mu.RUnlock()
	for _, fn := range hooks {
		fn(event, payload)
	}
}

func (bus *EventBus) runOnDrop(event Event, payload any) {
	bus.hooks.mu.RLock()
	hooks := make([]func(Event, any), len(bus.hooks.onDrop))
	copy(hooks, bus.hooks.onDrop)
	bus.hooks.mu.RUnlock()
	for _, fn := range hooks {
		fn(event, payload)
	}
}

func (bus *EventBus) runOnSubscribe(event Event) {
	bus.hooks.mu.RLock()
	hooks := make([]func(Event), len(bus.hooks.onSubscribe))
	copy(hooks, bus.hooks.onSubscribe)
	bus.hooks.mu.RUnlock()
	for _, fn := range hooks {
		fn(event)
	}
}

func (bus *EventBus) runOnPanic(event Event, payload any, recovered any) {
	bus.hooks.mu.RLock()
	hooks := make([]func(Event, any, any), len(bus.hooks.onPanic))
	copy(hooks, bus.hooks.onPanic)
	bus.hooks.mu.RUnlock()
	for _, fn := range hooks {
		func() {
			defer func() { recover() }() //nolint:errcheck
			fn(event, payload, recovered)
		}()
	}
}
