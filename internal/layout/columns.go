// Package layout arranges a pipeline snapshot into the columns the graph view
// renders: an optional upstream column, the stage or layer columns, and an
// optional downstream column.
package layout

import (
	"fmt"
	"log/slog"

	"github.com/waabox/pipegraph/internal/domain"
	"github.com/waabox/pipegraph/internal/graph"
)

// ViewType selects how jobs are grouped into columns.
type ViewType string

const (
	StageView ViewType = "STAGE"
	LayerView ViewType = "LAYER"
)

// ParseViewType accepts the persisted form ("STAGE", "LAYER") and the
// lowercase names used on the command line.
func ParseViewType(s string) (ViewType, error) {
	switch s {
	case "STAGE", "stage":
		return StageView, nil
	case "LAYER", "layer":
		return LayerView, nil
	}
	return "", fmt.Errorf("unknown view type %q", s)
}

// ColumnKind tells the renderer which variant of Column it holds.
type ColumnKind int

const (
	ColumnUpstream ColumnKind = iota
	ColumnStage
	ColumnLayer
	ColumnDownstream
)

// Column is one vertical strip of the graph.
type Column struct {
	Kind ColumnKind
	// Title is the stage name for stage columns, "Upstream" or "Downstream"
	// for linked columns, and empty for layer columns.
	Title  string
	Layer  int
	Groups []domain.Group
	// HighlightedJobNames is the set of jobs rendered at full opacity. Nil
	// means nothing is highlighted and every job renders normally.
	HighlightedJobNames map[string]struct{}
	Linked              []LinkedEntry
}

// Highlighting reports whether a highlight is active.
func (c Column) Highlighting() bool {
	return c.HighlightedJobNames != nil
}

// Dimmed reports whether the named job renders at reduced opacity.
func (c Column) Dimmed(jobName string) bool {
	if c.HighlightedJobNames == nil {
		return false
	}
	_, ok := c.HighlightedJobNames[jobName]
	return !ok
}

// GroupDimmed reports whether every job of g is dimmed.
func (c Column) GroupDimmed(g domain.Group) bool {
	for _, j := range g.Jobs {
		if !c.Dimmed(j.Name) {
			return false
		}
	}
	return len(g.Jobs) > 0 && c.Highlighting()
}

// Layout is the result of one layout pass.
type Layout struct {
	Columns []Column
	// View is the view actually rendered. It differs from the requested view
	// when layering failed and the layout fell back to stages.
	View ViewType
	// Links is the number of explicit needs edges in the pipeline.
	Links int
	// Fallback holds the error that forced a fall back to stage view.
	Fallback error
}

// Adapter builds layouts and logs recovered layering errors.
type Adapter struct {
	Logger *slog.Logger
}

// Build lays out snapshot for view, highlighting everything connected to
// highlighted (a job or group name; empty for none).
func (a Adapter) Build(s *Snapshot, view ViewType, highlighted string) Layout {
	out := s.Columns(view, highlighted)
	if out.Fallback != nil && a.Logger != nil {
		a.Logger.Warn("pipeline is not layerable, showing stages",
			"pipeline", s.Pipeline().ID,
			"err", out.Fallback,
		)
	}
	return out
}

// BuildColumns lays out a single pipeline without keeping the snapshot.
func BuildColumns(p domain.Pipeline, view ViewType, highlighted string) Layout {
	return NewSnapshot(p).Columns(view, highlighted)
}

func stageColumns(p domain.Pipeline, highlight map[string]struct{}) []Column {
	var cols []Column
	for _, s := range p.Stages {
		if len(s.Groups) == 0 {
			continue
		}
		cols = append(cols, Column{
			Kind:                ColumnStage,
			Title:               s.Name,
			Layer:               s.Index,
			Groups:              s.Groups,
			HighlightedJobNames: highlight,
		})
	}
	return cols
}

func layerColumns(layers []graph.Layer, highlight map[string]struct{}) []Column {
	cols := make([]Column, 0, len(layers))
	for _, l := range layers {
		cols = append(cols, Column{
			Kind:                ColumnLayer,
			Layer:               l.Index,
			Groups:              l.Groups,
			HighlightedJobNames: highlight,
		})
	}
	return cols
}
