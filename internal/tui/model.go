// Package tui is the terminal host: it draws the page surfaces with half
// block characters and maps keys and mouse wheel to viewer commands.
package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/colonyops/folio/internal/core/eventbus"
	"github.com/colonyops/folio/internal/core/styles"
	"github.com/colonyops/folio/internal/viewer"
)

const (
	// CellWidth is the assumed pixel width of a terminal cell when the page
	// width follows the terminal.
	CellWidth = 8

	searchTimeout = 5 * time.Second
	scrollRows    = 3
)

// Viewer is the part of *viewer.Viewer the terminal host drives.
type Viewer interface {
	SurfaceSource
	State() viewer.State
	Resize(width, height int)
	ScrollBy(dy float64)
	ScrollToPage(n int)
	NextPage()
	PrevPage()
	ZoomIn()
	ZoomOut()
	ZoomFit()
	Wheel(ev viewer.WheelEvent)
	Sweep()
	Search(ctx context.Context, query string) ([]int, error)
}

// Options configures the Model.
type Options struct {
	Styles styles.Styles
	Keys   KeyMap
	// PageWidth is the document width in pixels. Zero uses CellWidth pixels
	// per terminal column.
	PageWidth int
}

type (
	stateMsg  viewer.State
	noticeMsg eventbus.NotificationPublishedPayload

	searchResultMsg struct {
		query string
		pages []int
		err   error
	}
)

// Model is the bubbletea model of the terminal viewer.
type Model struct {
	v      Viewer
	states <-chan viewer.State
	notes  <-chan eventbus.NotificationPublishedPayload
	opts   Options

	help    help.Model
	search  SearchMode
	notices *Notices

	state    viewer.State
	width    int
	height   int
	showHelp bool
}

// New creates a Model. states and notes are typically the channels returned
// by Subscribe; either may be nil.
func New(v Viewer, states <-chan viewer.State, notes <-chan eventbus.NotificationPublishedPayload, opts Options) Model {
	h := help.New()
	h.Styles.ShortKey = opts.Styles.StatusKey
	h.Styles.FullKey = opts.Styles.SearchPrompt
	h.Styles.FullDesc = opts.Styles.Help

	return Model{
		v:       v,
		states:  states,
		notes:   notes,
		opts:    opts,
		help:    h,
		search:  NewSearchMode(),
		notices: NewNotices(),
		state:   v.State(),
	}
}

// Subscribe bridges viewer state changes and notifications into channels for
// New. The state channel keeps only the newest snapshot; notifications are
// dropped when the buffer is full.
func Subscribe(v *viewer.Viewer) (<-chan viewer.State, <-chan eventbus.NotificationPublishedPayload) {
	states := make(chan viewer.State, 1)
	notes := make(chan eventbus.NotificationPublishedPayload, 16)

	v.Subscribe(func(st viewer.State) {
		for {
			select {
			case states <- st:
				return
			default:
			}
			select {
			case <-states:
			default:
			}
		}
	})
	v.Bus().SubscribeNotificationPublished(func(p eventbus.NotificationPublishedPayload) {
		select {
		case notes <- p:
		default:
		}
	})
	return states, notes
}

func waitForState(ch <-chan viewer.State) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return nil
		}
		return stateMsg(st)
	}
}

func waitForNotice(ch <-chan eventbus.NotificationPublishedPayload) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		p, ok := <-ch
		if !ok {
			return nil
		}
		return noticeMsg(p)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForState(m.states), waitForNotice(m.notes))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.resize()
		return m, nil

	case stateMsg:
		m.state = viewer.State(msg)
		return m, waitForState(m.states)

	case noticeMsg:
		return m, tea.Batch(m.pushNotice(eventbus.NotificationPublishedPayload(msg)), waitForNotice(m.notes))

	case noticeTickMsg:
		m.notices.Tick(noticeTickInterval)
		if m.notices.Len() == 0 {
			m.notices.ticking = false
			return m, nil
		}
		return m, scheduleNoticeTick()

	case searchResultMsg:
		return m, m.handleSearchResult(msg)

	case tea.MouseMsg:
		m.handleMouse(msg)
		return m, nil

	case tea.KeyMsg:
		if m.search.IsActive() {
			var (
				cmd       tea.Cmd
				submitted bool
			)
			m.search, cmd, submitted = m.search.Update(msg)
			if submitted {
				return m, tea.Batch(cmd, m.runSearch(m.search.Query()))
			}
			return m, cmd
		}
		return m.handleKey(msg)
	}
	return m, nil
}

// resize maps the terminal onto a document viewport. One row is kept for the
// status bar; every other row shows two pixel rows.
func (m *Model) resize() {
	rows := m.height - 1
	if m.width <= 0 || rows <= 0 {
		return
	}
	width := m.opts.PageWidth
	if width <= 0 {
		width = m.width * CellWidth
	}
	scale := float64(width) / float64(m.width)
	m.v.Resize(width, int(math.Round(float64(rows*2)*scale)))
}

// rowPixels is the document height covered by one terminal row.
func (m Model) rowPixels() float64 {
	if m.width <= 0 || m.state.ViewportWidth <= 0 {
		return 2 * CellWidth
	}
	return 2 * float64(m.state.ViewportWidth) / float64(m.width)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	k := m.opts.Keys
	switch {
	case key.Matches(msg, k.Quit):
		return m, tea.Quit
	case key.Matches(msg, k.Help):
		m.showHelp = !m.showHelp
	case key.Matches(msg, k.Down):
		m.v.ScrollBy(scrollRows * m.rowPixels())
	case key.Matches(msg, k.Up):
		m.v.ScrollBy(-scrollRows * m.rowPixels())
	case key.Matches(msg, k.NextPage):
		m.v.NextPage()
	case key.Matches(msg, k.PrevPage):
		m.v.PrevPage()
	case key.Matches(msg, k.FirstPage):
		m.v.ScrollToPage(1)
	case key.Matches(msg, k.LastPage):
		m.v.ScrollToPage(max(m.state.TotalPages, 1))
	case key.Matches(msg, k.ZoomIn):
		m.v.ZoomIn()
	case key.Matches(msg, k.ZoomOut):
		m.v.ZoomOut()
	case key.Matches(msg, k.ZoomFit):
		m.v.ZoomFit()
	case key.Matches(msg, k.Retry):
		m.v.Sweep()
	case key.Matches(msg, k.Search):
		return m, m.search.Activate()
	case key.Matches(msg, k.NextMatch):
		if page := m.search.NextMatch(); page > 0 {
			m.v.ScrollToPage(page)
		}
	case key.Matches(msg, k.PrevMatch):
		if page := m.search.PrevMatch(); page > 0 {
			m.v.ScrollToPage(page)
		}
	case msg.Type == tea.KeyEsc:
		m.notices.Dismiss()
	}
	return m, nil
}

// handleMouse scrolls on the wheel, or zooms with Ctrl or Alt held.
func (m Model) handleMouse(msg tea.MouseMsg) {
	if msg.Action != tea.MouseActionPress {
		return
	}
	var dy float64
	switch msg.Button {
	case tea.MouseButtonWheelDown:
		dy = scrollRows * m.rowPixels()
	case tea.MouseButtonWheelUp:
		dy = -scrollRows * m.rowPixels()
	default:
		return
	}
	m.v.Wheel(viewer.WheelEvent{DeltaY: dy, Ctrl: msg.Ctrl, Meta: msg.Alt})
}

func (m Model) runSearch(query string) tea.Cmd {
	v := m.v
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
		defer cancel()
		pages, err := v.Search(ctx, query)
		return searchResultMsg{query: query, pages: pages, err: err}
	}
}

func (m *Model) handleSearchResult(msg searchResultMsg) tea.Cmd {
	if msg.err != nil {
		return m.pushNotice(eventbus.NotificationPublishedPayload{
			Level:   eventbus.LevelError,
			Message: "search failed: " + msg.err.Error(),
		})
	}

	m.search.SetMatches(msg.query, msg.pages)
	if msg.query != m.search.Query() {
		return nil
	}
	if page := m.search.CurrentMatch(); page > 0 {
		m.v.ScrollToPage(page)
		return nil
	}
	return m.pushNotice(eventbus.NotificationPublishedPayload{
		Level:   eventbus.LevelInfo,
		Message: fmt.Sprintf("no matches for %q", msg.query),
	})
}

func (m Model) pushNotice(p eventbus.NotificationPublishedPayload) tea.Cmd {
	m.notices.Push(p)
	if m.notices.ticking {
		return nil
	}
	m.notices.ticking = true
	return scheduleNoticeTick()
}

func (m Model) View() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}

	rows := m.height - 1
	var helpView string
	if m.showHelp {
		helpView = m.help.FullHelpView(m.opts.Keys.FullHelp())
		rows -= lipgloss.Height(helpView)
	}

	parts := make([]string, 0, 3)
	if rows > 0 {
		parts = append(parts, halfBlocks(Frame(m.state, m.v, m.width, rows, m.opts.Styles)))
	}
	if helpView != "" {
		parts = append(parts, helpView)
	}
	parts = append(parts, m.statusBar())
	return strings.Join(parts, "\n")
}

func (m Model) statusBar() string {
	sty := m.opts.Styles
	inner := max(m.width-2, 0)

	if m.search.IsActive() {
		return sty.StatusBar.Width(m.width).Render(ansi.Truncate(sty.SearchPrompt.Render(m.search.View()), inner, "…"))
	}

	st := m.state
	var segs []string
	switch {
	case st.Loading:
		segs = append(segs, sty.StatusMuted.Render("loading"))
	case st.TotalPages == 0:
		segs = append(segs, sty.StatusMuted.Render("no document"))
	default:
		segs = append(segs, sty.StatusKey.Render("page")+sty.StatusValue.Render(fmt.Sprintf(" %d/%d", st.CurrentPage, st.TotalPages)))
	}
	segs = append(segs, sty.StatusValue.Render(fmt.Sprintf("%d%%", st.ZoomPercent)))

	if st.TotalPages > 0 && !st.Settled() {
		segs = append(segs, sty.StatusMuted.Render(fmt.Sprintf("rendered %d/%d", st.RenderedPages, st.TotalPages)))
	}
	if st.FailedPages > 0 {
		segs = append(segs, sty.NoticeWarning.Render(fmt.Sprintf("%d failed, r to retry", st.FailedPages)))
	}
	if q := m.search.Query(); q != "" {
		if n := m.search.MatchCount(); n > 0 {
			segs = append(segs, sty.StatusMuted.Render(fmt.Sprintf("%q %d/%d", q, m.search.MatchIndex()+1, n)))
		} else {
			segs = append(segs, sty.StatusMuted.Render(fmt.Sprintf("%q no matches", q)))
		}
	}

	if st.Error != "" {
		segs = append(segs, sty.NoticeError.Render(st.Error))
	} else if n, ok := m.notices.Latest(); ok {
		segs = append(segs, noticeStyle(sty, n.Level).Render(n.Message))
	}
	if !m.showHelp {
		segs = append(segs, sty.StatusMuted.Render("? help"))
	}

	line := strings.Join(segs, sty.StatusMuted.Render(" · "))
	return sty.StatusBar.Width(m.width).Render(ansi.Truncate(line, inner, "…"))
}

func noticeStyle(sty styles.Styles, level eventbus.Level) lipgloss.Style {
	switch level {
	case eventbus.LevelError:
		return sty.NoticeError
	case eventbus.LevelWarning:
		return sty.NoticeWarning
	default:
		return sty.NoticeInfo
	}
}
