package tui

import (
	"fmt"
	"strings"

	"github.com/waabox/pipegraph/internal/domain"
	"github.com/waabox/pipegraph/internal/graph"
)

// JobDetailModel is an immutable model for the detail pane of the selected group.
type JobDetailModel struct {
	group domain.Group
	edges graph.EdgeSet
}

// NewJobDetailModel creates a detail pane for group. edges supplies the
// effective predecessors of each job.
func NewJobDetailModel(group domain.Group, edges graph.EdgeSet) JobDetailModel {
	return JobDetailModel{group: group, edges: edges}
}

// Group returns the group being described.
func (m JobDetailModel) Group() domain.Group { return m.group }

// View renders one block per job: status, tooltip, action and what it waits for.
func (m JobDetailModel) View() string {
	if len(m.group.Jobs) == 0 {
		return MutedStyle.Render("Select a job to see its details.")
	}
	var sb strings.Builder
	for _, j := range m.group.Jobs {
		kind := ""
		if j.Kind == domain.JobKindBridge {
			kind = MutedStyle.Render(" (trigger)")
		}
		sb.WriteString(fmt.Sprintf("%s %s%s  %s\n",
			styledIcon(j.Status.Kind),
			BoldStyle.Render(j.Name),
			kind,
			SecondaryStyle.Render(j.Status.Label),
		))
		if j.Status.Tooltip != "" && j.Status.Tooltip != j.Status.Label {
			sb.WriteString("    " + MutedStyle.Render(j.Status.Tooltip) + "\n")
		}
		if a := j.Status.Action; a != nil {
			sb.WriteString(fmt.Sprintf("    action: %s %s\n", a.Kind, MutedStyle.Render(a.ButtonTitle)))
		}
		sb.WriteString("    " + m.waitsFor(j) + "\n")
	}
	return sb.String()
}

func (m JobDetailModel) waitsFor(j domain.Job) string {
	preds := m.edges.Predecessors(j.Name)
	switch {
	case len(preds) == 0:
		return MutedStyle.Render("starts immediately")
	case m.edges.Implicit(j.Name):
		return "waits for previous stage: " + strings.Join(preds, ", ")
	}
	return "needs: " + strings.Join(preds, ", ")
}
