package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/lamacheck/pkg/model"
)

var (
	listDimStyle    = lipgloss.NewStyle().Foreground(colorDim)
	listCursorStyle = lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
	listCellStyle   = lipgloss.NewStyle().Foreground(colorWhite)
)

// RepoItem is a repository offered for selection.
type RepoItem struct {
	Repo      model.Repository
	Artifacts int
}

// matches reports whether the item's id or URL contains filter, ignoring case.
func (it RepoItem) matches(filter string) bool {
	if filter == "" {
		return true
	}
	f := strings.ToLower(filter)
	return strings.Contains(strings.ToLower(it.Repo.ID), f) ||
		strings.Contains(strings.ToLower(it.Repo.URL), f)
}

// RepoListModel is a bubbletea model for picking one repository. Typing
// after "/" narrows the list to repositories whose id or URL contains the
// typed text.
type RepoListModel struct {
	Repos    []RepoItem
	Selected *RepoItem

	Filter    string
	filtering bool
	visible   []int // indexes into Repos that match Filter
	cursor    int   // index into visible
	offset    int
	height    int
}

// NewRepoListModel creates a picker over repos.
func NewRepoListModel(repos []RepoItem) RepoListModel {
	m := RepoListModel{Repos: repos, height: 15}
	m.applyFilter()
	return m
}

func (m *RepoListModel) applyFilter() {
	m.visible = make([]int, 0, len(m.Repos))
	for i, it := range m.Repos {
		if it.matches(m.Filter) {
			m.visible = append(m.visible, i)
		}
	}
	m.cursor, m.offset = 0, 0
}

func (m *RepoListModel) move(delta int) {
	m.cursor = max(0, min(m.cursor+delta, len(m.visible)-1))
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+m.height {
		m.offset = m.cursor - m.height + 1
	}
}

func (m RepoListModel) Init() tea.Cmd {
	return nil
}

func (m RepoListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.filtering {
			return m.updateFilter(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "/":
			m.filtering = true
		case "up", "k":
			m.move(-1)
		case "down", "j":
			m.move(1)
		case "enter":
			return m.selectCurrent()
		}
	case tea.WindowSizeMsg:
		m.height = max(msg.Height-7, 5)
	}
	return m, nil
}

func (m RepoListModel) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.filtering = false
		m.Filter = ""
		m.applyFilter()
	case tea.KeyEnter:
		m.filtering = false
	case tea.KeyBackspace:
		if m.Filter != "" {
			r := []rune(m.Filter)
			m.Filter = string(r[:len(r)-1])
			m.applyFilter()
		}
	case tea.KeyRunes:
		m.Filter += string(msg.Runes)
		m.applyFilter()
	case tea.KeyUp:
		m.move(-1)
	case tea.KeyDown:
		m.move(1)
	}
	return m, nil
}

func (m RepoListModel) selectCurrent() (tea.Model, tea.Cmd) {
	if len(m.visible) > 0 {
		item := m.Repos[m.visible[m.cursor]]
		m.Selected = &item
	}
	return m, tea.Quit
}

func (m RepoListModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Reset Repository"))
	b.WriteString("\n")
	switch {
	case m.filtering:
		b.WriteString("/" + m.Filter + "█")
	case m.Filter != "":
		b.WriteString(listDimStyle.Render("filter: " + m.Filter + "  / edit  esc clear"))
	default:
		b.WriteString(listDimStyle.Render("↑/↓ navigate  / filter  ⏎ select  q quit"))
	}
	b.WriteString("\n\n")

	if len(m.visible) == 0 {
		b.WriteString(listDimStyle.Render("  no repository matches"))
		return b.String()
	}

	end := min(m.offset+m.height, len(m.visible))
	rows := make([][]string, 0, end-m.offset)
	for i := m.offset; i < end; i++ {
		r := m.Repos[m.visible[i]]
		cursor := "  "
		if i == m.cursor {
			cursor = "▸ "
		}
		rows = append(rows, []string{cursor, r.Repo.ID, r.Repo.URL, strconv.Itoa(r.Artifacts), orNone(r.Repo.Note)})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(listDimStyle).
		Headers("", "Repository", "URL", "Artifacts", "Note").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return styleHeader
			case m.offset+row == m.cursor:
				return listCursorStyle
			case col == 4:
				return listDimStyle
			default:
				return listCellStyle
			}
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.cursor+1, len(m.visible))))
	return b.String()
}

// formatRelativeTime renders t as minutes, hours or days ago, or as a date
// when it is more than a week old.
func formatRelativeTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("Jan 2, 2006")
	}
}
