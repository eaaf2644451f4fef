package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/colonyops/folio/internal/core/eventbus"
)

const (
	defaultNoticeTTL   = 5 * time.Second
	defaultMaxNotices  = 5
	noticeTickInterval = 100 * time.Millisecond
)

type noticeTickMsg time.Time

func scheduleNoticeTick() tea.Cmd {
	return tea.Tick(noticeTickInterval, func(t time.Time) tea.Msg {
		return noticeTickMsg(t)
	})
}

type notice struct {
	payload   eventbus.NotificationPublishedPayload
	remaining time.Duration
}

// Notices is the queue of transient messages shown in the status bar. The
// newest notice is displayed until it expires or is dismissed.
type Notices struct {
	items   []notice
	ttl     time.Duration
	ticking bool
}

func NewNotices() *Notices {
	return &Notices{ttl: defaultNoticeTTL}
}

// Push adds a notice. Beyond defaultMaxNotices the oldest one is evicted.
func (n *Notices) Push(p eventbus.NotificationPublishedPayload) {
	n.items = append(n.items, notice{payload: p, remaining: n.ttl})
	if len(n.items) > defaultMaxNotices {
		n.items = n.items[len(n.items)-defaultMaxNotices:]
	}
}

// Tick ages every notice by d and drops expired ones.
func (n *Notices) Tick(d time.Duration) {
	alive := n.items[:0]
	for _, it := range n.items {
		it.remaining -= d
		if it.remaining > 0 {
			alive = append(alive, it)
		}
	}
	n.items = alive
}

// Dismiss removes the newest notice.
func (n *Notices) Dismiss() {
	if len(n.items) > 0 {
		n.items = n.items[:len(n.items)-1]
	}
}

// Latest returns the newest notice.
func (n *Notices) Latest() (eventbus.NotificationPublishedPayload, bool) {
	if len(n.items) == 0 {
		return eventbus.NotificationPublishedPayload{}, false
	}
	return n.items[len(n.items)-1].payload, true
}

func (n *Notices) Len() int { return len(n.items) }
