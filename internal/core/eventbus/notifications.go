package eventbus

import "fmt"

// NotificationRouter maps viewer events to user-facing notifications.
type NotificationRouter struct {
	bus *EventBus
}

// NewNotificationRouter constructs a router for event-to-notification mappings.
func NewNotificationRouter(bus *EventBus) *NotificationRouter {
	return &NotificationRouter{bus: bus}
}

// Register subscribes all supported event mappings.
func (r *NotificationRouter) Register() {
	if r == nil || r.bus == nil {
		return
	}

	r.bus.SubscribeDocumentLoaded(func(p DocumentLoadedPayload) {
		r.notifyf(LevelInfo, "opened document (%d pages)", p.Pages)
	})

	r.bus.SubscribeDocumentFailed(func(p DocumentFailedPayload) {
		msg := p.Message
		if msg == "" && p.Err != nil {
			msg = p.Err.Error()
		}
		r.notifyf(LevelError, "%s", msg)
	})

	r.bus.SubscribePageFailed(func(p PageFailedPayload) {
		r.notifyf(LevelWarning, "page %d could not be rendered", p.Page)
	})
}

func (r *NotificationRouter) notifyf(level Level, format string, args ...any) {
	r.bus.PublishNotificationPublished(NotificationPublishedPayload{
		Level:   level,
		Message: fmt.Sprintf(format, args...),
	})
}
