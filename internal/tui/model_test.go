package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/folio/internal/core/eventbus"
	"github.com/colonyops/folio/internal/core/styles"
	"github.com/colonyops/folio/internal/core/surface"
	"github.com/colonyops/folio/internal/viewer"
	"github.com/colonyops/folio/pkg/tuitest"
)

type fakeViewer struct {
	mu        sync.Mutex
	st        viewer.State
	calls     []string
	wheels    []viewer.WheelEvent
	results   map[string][]int
	searchErr error
}

func newFakeViewer() *fakeViewer {
	return &fakeViewer{
		st: viewer.State{
			TotalPages:    5,
			CurrentPage:   1,
			RenderedPages: 5,
			Zoom:          1,
			ZoomPercent:   100,
			ViewportWidth: 800,
		},
		results: map[string][]int{},
	}
}

func (f *fakeViewer) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeViewer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeViewer) Surface(int) (*surface.Surface, bool) { return nil, false }
func (f *fakeViewer) State() viewer.State                  { return f.st }
func (f *fakeViewer) Resize(w, h int)                      { f.record("resize %dx%d", w, h) }
func (f *fakeViewer) ScrollBy(dy float64)                  { f.record("scroll %.0f", dy) }
func (f *fakeViewer) ScrollToPage(n int)                   { f.record("page %d", n) }
func (f *fakeViewer) NextPage()                            { f.record("next") }
func (f *fakeViewer) PrevPage()                            { f.record("prev") }
func (f *fakeViewer) ZoomIn()                              { f.record("zoom in") }
func (f *fakeViewer) ZoomOut()                             { f.record("zoom out") }
func (f *fakeViewer) ZoomFit()                             { f.record("zoom fit") }
func (f *fakeViewer) Sweep()                               { f.record("sweep") }

func (f *fakeViewer) Wheel(ev viewer.WheelEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wheels = append(f.wheels, ev)
}

func (f *fakeViewer) Search(_ context.Context, q string) ([]int, error) {
	return f.results[q], f.searchErr
}

func testModel(t *testing.T, fv *fakeViewer, width, height int) Model {
	t.Helper()
	m := New(fv, nil, nil, Options{Styles: styles.Default(), Keys: DefaultKeyMap()})
	return send(t, m, tuitest.WindowSize(width, height))
}

func send(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

// run executes cmd and returns every message it produces, expanding batches.
func run(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, run(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func plain(m Model) string { return tuitest.StripANSI(m.View()) }

func TestModel_ResizeMapsTerminalToViewport(t *testing.T) {
	tests := []struct {
		name      string
		pageWidth int
		width     int
		height    int
		want      []string
	}{
		{name: "follows terminal", width: 100, height: 31, want: []string{"resize 800x480"}},
		{name: "fixed page width", pageWidth: 612, width: 100, height: 31, want: []string{"resize 612x367"}},
		{name: "no room", width: 100, height: 1, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fv := newFakeViewer()
			m := New(fv, nil, nil, Options{Styles: styles.Default(), Keys: DefaultKeyMap(), PageWidth: tt.pageWidth})
			send(t, m, tuitest.WindowSize(tt.width, tt.height))
			assert.Equal(t, tt.want, fv.Calls())
		})
	}
}

func TestModel_Keys(t *testing.T) {
	tests := []struct {
		key  tea.KeyMsg
		want string
	}{
		{tuitest.KeyPress('j'), "scroll 48"},
		{tuitest.KeyPress('k'), "scroll -48"},
		{tuitest.Key(tea.KeyPgDown), "next"},
		{tuitest.KeyPress('l'), "next"},
		{tuitest.Key(tea.KeyLeft), "prev"},
		{tuitest.KeyPress('g'), "page 1"},
		{tuitest.KeyPress('G'), "page 5"},
		{tuitest.KeyPress('+'), "zoom in"},
		{tuitest.KeyPress('='), "zoom in"},
		{tuitest.KeyPress('-'), "zoom out"},
		{tuitest.KeyPress('0'), "zoom fit"},
		{tuitest.KeyPress('r'), "sweep"},
	}

	for _, tt := range tests {
		t.Run(tt.key.String(), func(t *testing.T) {
			fv := newFakeViewer()
			m := testModel(t, fv, 100, 31)
			send(t, m, tt.key)
			calls := fv.Calls()
			require.NotEmpty(t, calls)
			assert.Equal(t, tt.want, calls[len(calls)-1])
		})
	}
}

func TestModel_Quit(t *testing.T) {
	m := testModel(t, newFakeViewer(), 100, 31)
	_, cmd := m.Update(tuitest.KeyPress('q'))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_WheelScrollsOrZooms(t *testing.T) {
	fv := newFakeViewer()
	m := testModel(t, fv, 100, 31)

	send(t, m, tuitest.Wheel(true, false), tuitest.Wheel(false, true))
	send(t, m, tea.MouseMsg{Button: tea.MouseButtonLeft, Action: tea.MouseActionPress})

	assert.Equal(t, []viewer.WheelEvent{
		{DeltaY: 48},
		{DeltaY: -48, Ctrl: true},
	}, fv.wheels)
}

func TestModel_Search(t *testing.T) {
	fv := newFakeViewer()
	fv.results["diag"] = []int{2, 4}
	m := testModel(t, fv, 120, 11)

	m = send(t, m, tuitest.KeyPress('/'))
	require.True(t, m.search.IsActive())
	m = send(t, m, tuitest.Type("diag")...)
	assert.Contains(t, plain(m), "/diag")

	next, cmd := m.Update(tuitest.Key(tea.KeyEnter))
	m = next.(Model)
	assert.False(t, m.search.IsActive())

	m = send(t, m, run(cmd)...)
	assert.Equal(t, "page 2", fv.Calls()[len(fv.Calls())-1])
	assert.Contains(t, plain(m), `"diag" 1/2`)

	m = send(t, m, tuitest.KeyPress('n'))
	assert.Equal(t, "page 4", fv.Calls()[len(fv.Calls())-1])
	m = send(t, m, tuitest.KeyPress('N'))
	assert.Equal(t, "page 2", fv.Calls()[len(fv.Calls())-1])
	assert.Contains(t, plain(m), `"diag" 1/2`)
}

func TestModel_SearchWithoutMatches(t *testing.T) {
	fv := newFakeViewer()
	m := testModel(t, fv, 120, 11)

	m = send(t, m, tuitest.KeyPress('/'))
	m = send(t, m, tuitest.Type("zzz")...)
	next, cmd := m.Update(tuitest.Key(tea.KeyEnter))
	m = send(t, next.(Model), run(cmd)...)

	view := plain(m)
	assert.Contains(t, view, `"zzz" no matches`)
	assert.Contains(t, view, `no matches for "zzz"`)
}

func TestModel_SearchFailure(t *testing.T) {
	fv := newFakeViewer()
	fv.searchErr = errors.New("viewer stopped")
	m := testModel(t, fv, 120, 11)

	m = send(t, m, searchResultMsg{query: "x", err: fv.searchErr})
	assert.Contains(t, plain(m), "search failed: viewer stopped")
}

func TestModel_SearchEscCancels(t *testing.T) {
	fv := newFakeViewer()
	m := testModel(t, fv, 120, 11)

	m = send(t, m, tuitest.KeyPress('/'), tuitest.KeyPress('a'), tuitest.Key(tea.KeyEsc))
	assert.False(t, m.search.IsActive())
	assert.Empty(t, m.search.Query())

	m = send(t, m, tuitest.KeyPress('+'))
	assert.Equal(t, "zoom in", fv.Calls()[len(fv.Calls())-1], "keys reach the viewer again")
}

func TestModel_View(t *testing.T) {
	fv := newFakeViewer()
	m := testModel(t, fv, 120, 11)

	view := plain(m)
	lines := strings.Split(m.View(), "\n")
	assert.Len(t, lines, 11)
	assert.Contains(t, view, "page 1/5")
	assert.Contains(t, view, "100%")
	assert.Contains(t, view, "? help")
	assert.NotContains(t, view, "rendered 5/5")

	m = send(t, m, stateMsg(viewer.State{TotalPages: 5, CurrentPage: 3, RenderedPages: 2, FailedPages: 1, ZoomPercent: 120}))
	view = plain(m)
	assert.Contains(t, view, "page 3/5")
	assert.Contains(t, view, "120%")
	assert.Contains(t, view, "rendered 2/5")
	assert.Contains(t, view, "1 failed, r to retry")

	m = send(t, m, stateMsg(viewer.State{Error: "Unable to open this document: bad header"}))
	view = plain(m)
	assert.Contains(t, view, "no document")
	assert.Contains(t, view, "Unable to open this document")

	m = send(t, m, stateMsg(viewer.State{Loading: true}))
	assert.Contains(t, plain(m), "loading")
}

func TestModel_ViewBeforeSize(t *testing.T) {
	m := New(newFakeViewer(), nil, nil, Options{Styles: styles.Default(), Keys: DefaultKeyMap()})
	assert.Empty(t, m.View())
}

func TestModel_HelpToggle(t *testing.T) {
	m := testModel(t, newFakeViewer(), 120, 20)

	m = send(t, m, tuitest.KeyPress('?'))
	view := plain(m)
	assert.Contains(t, view, "zoom in")
	assert.Contains(t, view, "retry failed pages")
	assert.NotContains(t, view, "? help")
	assert.Len(t, strings.Split(m.View(), "\n"), 20)

	m = send(t, m, tuitest.KeyPress('?'))
	assert.Contains(t, plain(m), "? help")
}

func TestModel_Notices(t *testing.T) {
	m := testModel(t, newFakeViewer(), 120, 11)

	next, cmd := m.Update(noticeMsg{Level: eventbus.LevelWarning, Message: "page 3 could not be rendered"})
	m = next.(Model)
	require.NotNil(t, cmd, "first notice starts the tick")
	assert.Contains(t, plain(m), "page 3 could not be rendered")

	for range int(defaultNoticeTTL / noticeTickInterval) {
		m = send(t, m, noticeTickMsg(time.Now()))
	}
	assert.NotContains(t, plain(m), "could not be rendered")
	assert.False(t, m.notices.ticking)
}

func TestModel_StateChannel(t *testing.T) {
	fv := newFakeViewer()
	states := make(chan viewer.State, 1)
	m := New(fv, states, nil, Options{Styles: styles.Default(), Keys: DefaultKeyMap()})

	states <- viewer.State{TotalPages: 2, CurrentPage: 2, ZoomPercent: 90}
	msgs := run(m.Init())
	require.Len(t, msgs, 1)

	m = send(t, m, msgs...)
	m = send(t, m, tuitest.WindowSize(120, 11))
	assert.Contains(t, plain(m), "page 2/2")
	assert.Contains(t, plain(m), "90%")
}
