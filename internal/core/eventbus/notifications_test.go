package eventbus_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/folio/internal/core/eventbus"
	"github.com/colonyops/folio/internal/core/eventbus/testbus"
)

func latestNotificationPayload(tb *testbus.Bus, t *testing.T) eventbus.NotificationPublishedPayload {
	t.Helper()
	tb.AssertPublished(t, eventbus.EventNotificationPublished)

	var payload eventbus.NotificationPublishedPayload
	for _, e := range tb.Events() {
		if e.Event != eventbus.EventNotificationPublished {
			continue
		}
		p, ok := e.Payload.(eventbus.NotificationPublishedPayload)
		require.True(t, ok)
		payload = p
	}

	return payload
}

func TestNotificationRouter_DocumentLoaded(t *testing.T) {
	tb := testbus.New(t)
	eventbus.NewNotificationRouter(tb.EventBus).Register()

	tb.PublishDocumentLoaded(eventbus.DocumentLoadedPayload{DocumentID: 4, Pages: 12})
	p := latestNotificationPayload(tb, t)

	assert.Equal(t, eventbus.LevelInfo, p.Level)
	assert.Contains(t, p.Message, "12 pages")
}

func TestNotificationRouter_DocumentFailed(t *testing.T) {
	tb := testbus.New(t)
	eventbus.NewNotificationRouter(tb.EventBus).Register()

	tb.PublishDocumentFailed(eventbus.DocumentFailedPayload{Message: "Unable to open this document"})
	p := latestNotificationPayload(tb, t)

	assert.Equal(t, eventbus.LevelError, p.Level)
	assert.Equal(t, "Unable to open this document", p.Message)
}

func TestNotificationRouter_DocumentFailed_fallsBackToError(t *testing.T) {
	tb := testbus.New(t)
	eventbus.NewNotificationRouter(tb.EventBus).Register()

	tb.PublishDocumentFailed(eventbus.DocumentFailedPayload{Err: errors.New("bad xref")})
	p := latestNotificationPayload(tb, t)

	assert.Equal(t, "bad xref", p.Message)
}

func TestNotificationRouter_PageFailed(t *testing.T) {
	tb := testbus.New(t)
	eventbus.NewNotificationRouter(tb.EventBus).Register()

	tb.PublishPageFailed(eventbus.PageFailedPayload{Page: 7, Err: errors.New("boom")})
	p := latestNotificationPayload(tb, t)

	assert.Equal(t, eventbus.LevelWarning, p.Level)
	assert.Contains(t, p.Message, "page 7")
}

func TestNotificationRouter_PageRendered_doesNotPublish(t *testing.T) {
	tb := testbus.New(t)
	eventbus.NewNotificationRouter(tb.EventBus).Register()

	tb.PublishPageRendered(eventbus.PageRenderedPayload{Page: 1, Width: 10, Height: 10})
	tb.AssertNotPublished(t, eventbus.EventNotificationPublished, 100*time.Millisecond)
}

func TestNotificationRouter_ZoomChanged_doesNotPublish(t *testing.T) {
	tb := testbus.New(t)
	eventbus.NewNotificationRouter(tb.EventBus).Register()

	tb.PublishZoomChanged(eventbus.ZoomChangedPayload{Level: 0.9, Percent: 90})
	tb.AssertNotPublished(t, eventbus.EventNotificationPublished, 100*time.Millisecond)
}
