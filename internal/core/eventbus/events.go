// Package eventbus provides a typed publish/subscribe event bus that carries
// viewer events to hosts (the terminal UI and the HTTP server).
package eventbus

// Events defines all event types and their payload structs.
var Events = map[string]any{
	// Keep list sorted A-Z
	"document.closed":        DocumentClosedPayload{},
	"document.failed":        DocumentFailedPayload{},
	"document.loaded":        DocumentLoadedPayload{},
	"notification.published": NotificationPublishedPayload{},
	"page.changed":           PageChangedPayload{},
	"page.failed":            PageFailedPayload{},
	"page.rendered":          PageRenderedPayload{},
	"state.changed":          StateChangedPayload{},
	"zoom.changed":           ZoomChangedPayload{},
}

// DocumentLoadedPayload is emitted when a decoded document is adopted.
type DocumentLoadedPayload struct {
	DocumentID uint64
	Pages      int
}

// DocumentFailedPayload is emitted when a document cannot be decoded.
type DocumentFailedPayload struct {
	Err     error
	Message string
}

// DocumentClosedPayload is emitted when the viewer drops its document.
type DocumentClosedPayload struct {
	DocumentID uint64
}

// PageRenderedPayload is emitted when a page's pixels are committed.
type PageRenderedPayload struct {
	DocumentID uint64
	Page       int
	Width      int
	Height     int
}

// PageFailedPayload is emitted when a page fails to rasterize.
type PageFailedPayload struct {
	DocumentID uint64
	Page       int
	Err        error
}

// PageChangedPayload is emitted when the current page changes.
type PageChangedPayload struct {
	Page int
}

// ZoomChangedPayload is emitted on every effective zoom change.
type ZoomChangedPayload struct {
	Level   float64
	Percent int
}

// StateChangedPayload is emitted whenever the viewer publishes a new state
// snapshot. Version increases with every snapshot.
type StateChangedPayload struct {
	Version uint64
}

// Level is the severity of a user-facing notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// NotificationPublishedPayload is a user-facing message.
type NotificationPublishedPayload struct {
	Level   Level
	Message string
}
