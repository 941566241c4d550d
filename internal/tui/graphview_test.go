package tui_test

import (
	"strings"
	"testing"

	"github.com/waabox/pipegraph/internal/domain"
	"github.com/waabox/pipegraph/internal/layout"
	"github.com/waabox/pipegraph/internal/tui"
)

func TestGraphModel_StartsOnFirstJobColumn(t *testing.T) {
	p := sampleStagePipeline()
	p.Upstream = &domain.LinkedPipeline{ID: "9", IID: "9", ProjectPath: "group/parent", Status: domain.NewStatus(domain.StatusSuccess)}

	m := tui.NewGraphModel(layout.BuildColumns(p, layout.StageView, ""))

	if col, row := m.Cursor(); col != 1 || row != 0 {
		t.Errorf("expected cursor on (1, 0), got (%d, %d)", col, row)
	}
	g, ok := m.SelectedGroup()
	if !ok || g.Name != "build_a" {
		t.Errorf("expected build_a selected, got %q (ok=%v)", g.Name, ok)
	}

	m = m.MoveLeft()
	e, ok := m.SelectedLinked()
	if !ok || e.Pipeline.ProjectPath != "group/parent" {
		t.Errorf("expected upstream pipeline selected, got %+v (ok=%v)", e, ok)
	}
	if _, ok := m.SelectedGroup(); ok {
		t.Error("expected no group selected on the upstream column")
	}
}

func TestGraphModel_MovementIsClamped(t *testing.T) {
	m := tui.NewGraphModel(layout.BuildColumns(sampleStagePipeline(), layout.StageView, ""))

	m = m.MoveUp()
	if _, row := m.Cursor(); row != 0 {
		t.Errorf("expected row 0 at top edge, got %d", row)
	}
	m = m.MoveDown().MoveDown().MoveDown()
	if _, row := m.Cursor(); row != 1 {
		t.Errorf("expected row clamped to 1, got %d", row)
	}
	m = m.MoveRight()
	if col, row := m.Cursor(); col != 1 || row != 0 {
		t.Errorf("expected (1, 0) after moving into the shorter column, got (%d, %d)", col, row)
	}
	m = m.MoveRight()
	if col, _ := m.Cursor(); col != 1 {
		t.Errorf("expected col clamped to 1, got %d", col)
	}
}

func TestGraphModel_WithLayoutKeepsSelectedGroup(t *testing.T) {
	p := sampleStagePipeline()
	m := tui.NewGraphModel(layout.BuildColumns(p, layout.StageView, ""))
	m = m.MoveRight()

	m = m.WithLayout(layout.BuildColumns(p, layout.LayerView, ""))

	g, ok := m.SelectedGroup()
	if !ok || g.Name != "test_a" {
		t.Errorf("expected test_a to stay selected, got %q (ok=%v)", g.Name, ok)
	}
}

func TestGraphModel_View(t *testing.T) {
	p := sampleStagePipeline()
	p.Stages[0].Groups[1].Size = 3
	view := tui.NewGraphModel(layout.BuildColumns(p, layout.StageView, "")).View()

	for _, want := range []string{"build", "build_a", "build_b 3", "test_a"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected %q in graph view, got:\n%s", want, view)
		}
	}
}

func TestGraphModel_EmptyPipeline(t *testing.T) {
	view := tui.NewGraphModel(layout.BuildColumns(domain.Pipeline{}, layout.StageView, "")).View()
	if !strings.Contains(view, "no jobs") {
		t.Errorf("expected empty message, got:\n%s", view)
	}
}
