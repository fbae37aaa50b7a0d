// Package tui is a terminal browser for address books.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/r9s-ai/cardq/pkg/cardfilter"
	"github.com/r9s-ai/cardq/pkg/cardreport"
	"github.com/r9s-ai/cardq/pkg/vcard"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	detailStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Properties searched by the filter box.
var searchedProps = []string{"FN", "NICKNAME", "EMAIL", "ORG", "TEL"}

type item struct {
	res   cardreport.Resource
	title string
	sub   string
	data  []byte
}

type loadedMsg struct {
	path  string
	items []item
	err   error
}

// Model lists the children of one collection. Enter opens a collection or
// shows a card, esc goes back up.
type Model struct {
	ctx     context.Context
	store   cardreport.Store
	path    string
	items   []item
	visible []int
	cursor  int
	filter  textinput.Model
	// filtering routes key presses to the filter box.
	filtering bool
	detail    *item
	err       error
}

func New(ctx context.Context, st cardreport.Store, start string) Model {
	ti := textinput.New()
	ti.Placeholder = "name, nickname, email, org or phone"
	ti.Prompt = "/ "
	if start == "" {
		start = "/"
	}
	return Model{ctx: ctx, store: st, path: start, filter: ti}
}

func (m Model) Init() tea.Cmd {
	return m.load(m.path)
}

func (m Model) load(p string) tea.Cmd {
	ctx, st := m.ctx, m.store
	return func() tea.Msg {
		items, err := loadItems(ctx, st, p)
		return loadedMsg{path: p, items: items, err: err}
	}
}

func loadItems(ctx context.Context, st cardreport.Store, p string) ([]item, error) {
	res, err := st.Stat(ctx, p)
	if err != nil {
		return nil, err
	}
	if !res.Kind.IsCollection() {
		return nil, fmt.Errorf("%s is not a collection", res.Path)
	}
	children, err := st.Children(ctx, res.Path)
	if err != nil {
		return nil, err
	}
	out := make([]item, 0, len(children))
	for _, c := range children {
		it := item{res: c, title: path.Base(c.Path)}
		switch c.Kind {
		case cardreport.KindAddressBook:
			if c.DisplayName != "" {
				it.title = c.DisplayName
			}
			it.sub = "address book"
		case cardreport.KindCollection:
			it.sub = "collection"
		case cardreport.KindCard:
			data, err := st.Get(ctx, c.Path)
			if err != nil {
				return nil, err
			}
			it.data = data
			if card, _, err := vcard.Read(data); err == nil {
				if fn := card.Value("FN"); fn != "" {
					it.title = fn
				}
				it.sub = card.Value("EMAIL")
			}
		default:
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func (m *Model) applyFilter() {
	q := strings.TrimSpace(m.filter.Value())
	m.visible = make([]int, 0, len(m.items))
	tm := cardfilter.TextMatch{Value: q, Collation: cardfilter.CollationUnicodeCasemap, MatchType: cardfilter.Contains}
	fs := cardfilter.FilterSet{Test: cardfilter.AnyOf}
	for _, name := range searchedProps {
		fs.Filters = append(fs.Filters, cardfilter.PropertyFilter{Name: name, TextMatches: []cardfilter.TextMatch{tm}})
	}
	for i, it := range m.items {
		ok := q == ""
		if !ok {
			if it.res.Kind == cardreport.KindCard {
				ok, _ = cardfilter.MatchesData(it.data, fs)
			} else {
				ok = tm.Match(it.title)
			}
		}
		if ok {
			m.visible = append(m.visible, i)
		}
	}
	if m.cursor >= len(m.visible) {
		m.cursor = max(len(m.visible)-1, 0)
	}
}

func (m Model) selected() *item {
	if m.cursor < 0 || m.cursor >= len(m.visible) {
		return nil
	}
	return &m.items[m.visible[m.cursor]]
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.path = msg.path
		m.items = msg.items
		m.cursor = 0
		m.detail = nil
		m.filter.SetValue("")
		m.applyFilter()
		return m, nil

	case tea.KeyMsg:
		if m.filtering {
			switch msg.Type {
			case tea.KeyEnter, tea.KeyEsc:
				m.filtering = false
				m.filter.Blur()
				return m, nil
			}
			var cmd tea.Cmd
			m.filter, cmd = m.filter.Update(msg)
			m.applyFilter()
			return m, cmd
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up", "k":
			if m.detail == nil && m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.detail == nil && m.cursor < len(m.visible)-1 {
				m.cursor++
			}
		case "/":
			if m.detail == nil {
				m.filtering = true
				return m, m.filter.Focus()
			}
		case "enter":
			sel := m.selected()
			switch {
			case m.detail != nil || sel == nil:
			case sel.res.Kind.IsCollection():
				return m, m.load(sel.res.Path)
			default:
				m.detail = sel
			}
		case "esc", "backspace", "h":
			if m.detail != nil {
				m.detail = nil
				return m, nil
			}
			if m.path != "/" {
				return m, m.load(path.Dir(m.path))
			}
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("cardq " + m.path))
	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	}
	if m.detail != nil {
		body := strings.TrimRight(strings.ReplaceAll(string(m.detail.data), "\r\n", "\n"), "\n")
		b.WriteString(detailStyle.Render(body))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("esc back • q quit"))
		return b.String()
	}
	if m.filtering || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
		b.WriteString("\n")
	}
	if len(m.visible) == 0 {
		b.WriteString(dimStyle.Render("  (empty)"))
		b.WriteString("\n")
	}
	for i, idx := range m.visible {
		it := m.items[idx]
		line := "  " + it.title
		if i == m.cursor {
			line = selectedStyle.Render("> " + it.title)
		}
		if it.sub != "" {
			line += " " + dimStyle.Render(it.sub)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render("↑/↓ move • enter open • / filter • esc back • q quit"))
	return b.String()
}

// Run starts the browser at start and blocks until the user quits.
func Run(ctx context.Context, st cardreport.Store, start string, in io.Reader, out io.Writer) error {
	if st == nil {
		return errors.New("tui: store is required")
	}
	p := tea.NewProgram(New(ctx, st, start), tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui run failed: %w", err)
	}
	return nil
}
