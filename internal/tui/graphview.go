package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/waabox/pipegraph/internal/domain"
	"github.com/waabox/pipegraph/internal/layout"
)

// GraphModel is an immutable model for the column graph. The cursor moves
// over the rows of one column at a time: groups in stage and layer columns,
// pipelines in linked columns.
type GraphModel struct {
	layout layout.Layout
	col    int
	row    int
}

// NewGraphModel creates a graph model with the cursor on the first group.
func NewGraphModel(l layout.Layout) GraphModel {
	m := GraphModel{layout: l}
	for i, c := range l.Columns {
		if c.Kind == layout.ColumnStage || c.Kind == layout.ColumnLayer {
			m.col = i
			break
		}
	}
	return m.clamp()
}

// WithLayout swaps the layout while keeping the cursor on the same group
// when it still exists.
func (m GraphModel) WithLayout(l layout.Layout) GraphModel {
	selected, ok := m.SelectedGroup()
	next := NewGraphModel(l)
	if !ok {
		return next
	}
	for ci, c := range l.Columns {
		for ri, g := range c.Groups {
			if g.Name == selected.Name {
				next.col, next.row = ci, ri
				return next
			}
		}
	}
	return next
}

// Layout returns the rendered layout.
func (m GraphModel) Layout() layout.Layout { return m.layout }

// Cursor returns the current column and row.
func (m GraphModel) Cursor() (col, row int) { return m.col, m.row }

func (m GraphModel) rows(col int) int {
	if col < 0 || col >= len(m.layout.Columns) {
		return 0
	}
	c := m.layout.Columns[col]
	if len(c.Linked) > 0 {
		return len(c.Linked)
	}
	return len(c.Groups)
}

func (m GraphModel) clamp() GraphModel {
	if m.col >= len(m.layout.Columns) {
		m.col = len(m.layout.Columns) - 1
	}
	if m.col < 0 {
		m.col = 0
	}
	if n := m.rows(m.col); m.row >= n {
		m.row = n - 1
	}
	if m.row < 0 {
		m.row = 0
	}
	return m
}

// MoveDown returns a new model with the cursor moved down by one.
func (m GraphModel) MoveDown() GraphModel {
	if m.row < m.rows(m.col)-1 {
		m.row++
	}
	return m
}

// MoveUp returns a new model with the cursor moved up by one.
func (m GraphModel) MoveUp() GraphModel {
	if m.row > 0 {
		m.row--
	}
	return m
}

// MoveRight returns a new model with the cursor on the next column.
func (m GraphModel) MoveRight() GraphModel {
	if m.col < len(m.layout.Columns)-1 {
		m.col++
	}
	return m.clamp()
}

// MoveLeft returns a new model with the cursor on the previous column.
func (m GraphModel) MoveLeft() GraphModel {
	if m.col > 0 {
		m.col--
	}
	return m.clamp()
}

// SelectedGroup returns the group under the cursor, if any.
func (m GraphModel) SelectedGroup() (domain.Group, bool) {
	if m.col >= len(m.layout.Columns) {
		return domain.Group{}, false
	}
	c := m.layout.Columns[m.col]
	if m.row >= len(c.Groups) {
		return domain.Group{}, false
	}
	return c.Groups[m.row], true
}

// SelectedLinked returns the linked pipeline under the cursor, if any.
func (m GraphModel) SelectedLinked() (layout.LinkedEntry, bool) {
	if m.col >= len(m.layout.Columns) {
		return layout.LinkedEntry{}, false
	}
	c := m.layout.Columns[m.col]
	if m.row >= len(c.Linked) {
		return layout.LinkedEntry{}, false
	}
	return c.Linked[m.row], true
}

// View renders the columns side by side.
func (m GraphModel) View() string {
	if len(m.layout.Columns) == 0 {
		return MutedStyle.Render("This pipeline has no jobs.")
	}
	rendered := make([]string, len(m.layout.Columns))
	for i, c := range m.layout.Columns {
		rendered[i] = m.renderColumn(i, c)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func (m GraphModel) renderColumn(index int, c layout.Column) string {
	var sb strings.Builder
	sb.WriteString(columnTitleStyle.Render(truncate(c.Title, columnWidth)))
	sb.WriteString("\n")

	if len(c.Linked) > 0 {
		for ri, e := range c.Linked {
			sb.WriteString(m.cell(index, ri, e.Pipeline.Status.Kind, linkedLabel(e), false))
			sb.WriteString("\n")
		}
		return columnStyle.Render(sb.String())
	}

	for ri, g := range c.Groups {
		sb.WriteString(m.cell(index, ri, g.Status.Kind, groupLabel(g), c.GroupDimmed(g)))
		sb.WriteString("\n")
	}
	return columnStyle.Render(sb.String())
}

func (m GraphModel) cell(col, row int, kind domain.StatusKind, label string, dimmed bool) string {
	switch {
	case col == m.col && row == m.row:
		return SelectedStyle.Render(statusIcon(kind) + " " + label)
	case dimmed:
		return DimmedStyle.Render(statusIcon(kind) + " " + label)
	}
	return styledIcon(kind) + " " + label
}

// groupLabel is the group name, followed by its size for parallel groups.
func groupLabel(g domain.Group) string {
	name := g.Name
	if g.Size > 1 {
		name = fmt.Sprintf("%s %d", g.Name, g.Size)
	}
	return truncate(name, columnWidth-2)
}

func linkedLabel(e layout.LinkedEntry) string {
	text := e.Pipeline.ProjectPath + " #" + string(e.Pipeline.IID)
	if e.Label != "" {
		text = e.Label + " #" + string(e.Pipeline.IID)
	}
	return truncate(text, columnWidth-2)
}
