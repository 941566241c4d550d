package layout

import (
	"github.com/waabox/pipegraph/internal/domain"
	"github.com/waabox/pipegraph/internal/graph"
)

// Snapshot is one fetched pipeline and everything derived from it. A new
// fetch produces a new Snapshot; nothing carries over from the previous one.
//
// Layers are computed on first use and reused for the life of the snapshot,
// so switching views back and forth never recomputes them.
type Snapshot struct {
	pipeline  domain.Pipeline
	edges     graph.EdgeSet
	edgesErr  error
	layers    []graph.Layer
	layersErr error
	layered   bool
	passes    int
}

// NewSnapshot resolves the dependency edges of p.
func NewSnapshot(p domain.Pipeline) *Snapshot {
	edges, err := graph.Resolve(p)
	return &Snapshot{pipeline: p, edges: edges, edgesErr: err}
}

// Pipeline returns the snapshot's pipeline.
func (s *Snapshot) Pipeline() domain.Pipeline { return s.pipeline }

// Edges returns the resolved dependency edges. They may be partial when
// needs are malformed; Layerable reports that case.
func (s *Snapshot) Edges() graph.EdgeSet { return s.edges }

// LayerPasses reports how many times layers were computed for this snapshot.
func (s *Snapshot) LayerPasses() int { return s.passes }

// Layers returns the layer grouping, computing it once.
func (s *Snapshot) Layers() ([]graph.Layer, error) {
	if !s.layered {
		s.layered = true
		s.passes++
		if s.edgesErr != nil {
			s.layersErr = s.edgesErr
		} else {
			s.layers, s.layersErr = graph.ListByLayersWith(s.pipeline, s.edges)
		}
	}
	return s.layers, s.layersErr
}

// Layerable reports whether the layer view can be shown.
func (s *Snapshot) Layerable() bool {
	_, err := s.Layers()
	return err == nil
}

// Highlight returns the jobs connected to name, or nil when name is empty or unknown.
func (s *Snapshot) Highlight(name string) map[string]struct{} {
	if name == "" {
		return nil
	}
	return graph.Closure(s.edges, name)
}

// Columns lays out the snapshot. A layering error is recovered by showing the
// stage view; the error is reported in Layout.Fallback.
func (s *Snapshot) Columns(view ViewType, highlighted string) Layout {
	highlight := s.Highlight(highlighted)
	out := Layout{View: view, Links: s.edges.LinkCount()}

	var body []Column
	if view == LayerView {
		layers, err := s.Layers()
		if err != nil {
			out.View = StageView
			out.Fallback = err
			body = stageColumns(s.pipeline, highlight)
		} else {
			body = layerColumns(layers, highlight)
		}
	} else {
		out.View = StageView
		body = stageColumns(s.pipeline, highlight)
	}

	if len(body) == 0 {
		return out
	}
	if up, ok := upstreamColumn(s.pipeline); ok {
		out.Columns = append(out.Columns, up)
	}
	out.Columns = append(out.Columns, body...)
	if down, ok := downstreamColumn(s.pipeline); ok {
		out.Columns = append(out.Columns, down)
	}
	return out
}
