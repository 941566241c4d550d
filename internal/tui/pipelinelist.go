package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/waabox/pipegraph/internal/domain"
)

// PipelineListModel is an immutable Bubbletea-compatible model for the pipeline list panel.
type PipelineListModel struct {
	pipelines []domain.Pipeline
	cursor    int
}

// NewPipelineListModel creates a pipeline list model with the given pipelines.
func NewPipelineListModel(pipelines []domain.Pipeline) PipelineListModel {
	return PipelineListModel{pipelines: pipelines, cursor: 0}
}

// UpdatePipelines replaces the list, keeping the cursor on the same pipeline
// when it is still present.
func (m PipelineListModel) UpdatePipelines(pipelines []domain.Pipeline) PipelineListModel {
	selected := m.SelectedPipeline()
	next := PipelineListModel{pipelines: pipelines}
	for i, p := range pipelines {
		if p.IID == selected.IID {
			next.cursor = i
			return next
		}
	}
	if m.cursor < len(pipelines) {
		next.cursor = m.cursor
	}
	return next
}

// Pipelines returns the listed pipelines.
func (m PipelineListModel) Pipelines() []domain.Pipeline {
	return m.pipelines
}

// MoveDown returns a new model with the cursor moved down by one.
func (m PipelineListModel) MoveDown() PipelineListModel {
	if m.cursor < len(m.pipelines)-1 {
		m.cursor++
	}
	return m
}

// MoveUp returns a new model with the cursor moved up by one.
func (m PipelineListModel) MoveUp() PipelineListModel {
	if m.cursor > 0 {
		m.cursor--
	}
	return m
}

// SelectedIndex returns the current cursor position.
func (m PipelineListModel) SelectedIndex() int {
	return m.cursor
}

// SelectedPipeline returns the currently highlighted pipeline.
// Returns zero-value Pipeline if the list is empty.
func (m PipelineListModel) SelectedPipeline() domain.Pipeline {
	if len(m.pipelines) == 0 {
		return domain.Pipeline{}
	}
	return m.pipelines[m.cursor]
}

// View renders the pipeline list as a string.
func (m PipelineListModel) View() string {
	if len(m.pipelines) == 0 {
		return "No pipelines found."
	}
	var sb strings.Builder
	for i, p := range m.pipelines {
		prefix := "  "
		if i == m.cursor {
			prefix = "> "
		}
		sb.WriteString(fmt.Sprintf("%s%s #%-6s %-20s %-10s %s\n",
			prefix,
			styledIcon(p.Status.Kind),
			p.IID,
			truncate(p.Branch, 20),
			p.Status.Label,
			formatAge(p.CreatedAt),
		))
	}
	return sb.String()
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "--"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
