package tui

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// SearchMode holds the search prompt and the pages matching the last query.
type SearchMode struct {
	active  bool
	input   textinput.Model
	query   string
	matches []int // page numbers, ascending
	current int
}

// NewSearchMode creates an inactive SearchMode.
func NewSearchMode() SearchMode {
	ti := textinput.New()
	ti.Placeholder = "Search..."
	ti.CharLimit = 100
	ti.Prompt = "/"

	return SearchMode{input: ti}
}

// Activate opens the prompt with an empty query.
func (s *SearchMode) Activate() tea.Cmd {
	s.active = true
	s.input.SetValue("")
	return s.input.Focus()
}

// Deactivate closes the prompt. Matches of the last submitted query are kept.
func (s *SearchMode) Deactivate() {
	s.active = false
	s.input.Blur()
}

// Update feeds key messages to the prompt. submitted is true when enter was
// pressed; the caller runs the query.
func (s SearchMode) Update(msg tea.Msg) (SearchMode, tea.Cmd, bool) {
	if !s.active {
		return s, nil, false
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return s, nil, false
	}

	switch keyMsg.Type {
	case tea.KeyEnter:
		s.query = s.input.Value()
		s.Deactivate()
		return s, nil, s.query != ""
	case tea.KeyEsc:
		s.Deactivate()
		return s, nil, false
	}

	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	return s, cmd, false
}

// View renders the prompt, or "" when inactive.
func (s SearchMode) View() string {
	if !s.active {
		return ""
	}
	return s.input.View()
}

// SetMatches stores the result for query. Results for a superseded query
// are ignored.
func (s *SearchMode) SetMatches(query string, pages []int) {
	if query != s.query {
		return
	}
	s.matches = pages
	s.current = 0
}

// NextMatch advances to the next match and returns its page, or 0.
func (s *SearchMode) NextMatch() int {
	if len(s.matches) == 0 {
		return 0
	}
	s.current = (s.current + 1) % len(s.matches)
	return s.matches[s.current]
}

// PrevMatch goes back to the previous match and returns its page, or 0.
func (s *SearchMode) PrevMatch() int {
	if len(s.matches) == 0 {
		return 0
	}
	s.current = (s.current - 1 + len(s.matches)) % len(s.matches)
	return s.matches[s.current]
}

// CurrentMatch returns the page of the current match, or 0.
func (s SearchMode) CurrentMatch() int {
	if len(s.matches) == 0 {
		return 0
	}
	return s.matches[s.current]
}

func (s SearchMode) IsActive() bool  { return s.active }
func (s SearchMode) Query() string   { return s.query }
func (s SearchMode) MatchCount() int { return len(s.matches) }
func (s SearchMode) MatchIndex() int { return s.current }
