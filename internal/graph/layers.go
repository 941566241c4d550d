package graph

import (
	"fmt"
	"strings"

	"github.com/waabox/pipegraph/internal/domain"
)

// CycleError reports jobs whose dependencies never resolve because they form a cycle.
type CycleError struct {
	Jobs []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle among jobs: %s", strings.Join(e.Jobs, ", "))
}

func (e *CycleError) Unwrap() error { return domain.ErrCycleDetected }

// Layer is one column of the layer view: every group sitting at the same
// dependency depth, in stage-then-declaration order.
type Layer struct {
	Index  int
	Groups []domain.Group
}

// ComputeLayers returns the dependency depth of every job, keyed by job id.
// A job without predecessors sits at layer 0; any other job sits one layer
// past its deepest predecessor.
func ComputeLayers(p domain.Pipeline) (map[domain.JobID]int, error) {
	edges, err := Resolve(p)
	if err != nil {
		return nil, err
	}
	byName, err := assignLayers(edges)
	if err != nil {
		return nil, err
	}
	layers := make(map[domain.JobID]int, len(byName))
	for _, j := range p.Jobs() {
		layers[j.ID] = byName[j.Name]
	}
	return layers, nil
}

// LayersByName is ComputeLayers keyed by job name, for an already resolved edge set.
func LayersByName(edges EdgeSet) (map[string]int, error) {
	return assignLayers(edges)
}

// assignLayers runs Kahn's algorithm seeded in stage-then-declaration order,
// pushing each job one layer past the deepest predecessor seen so far.
func assignLayers(edges EdgeSet) (map[string]int, error) {
	order := edges.Jobs()
	inDegree := make(map[string]int, len(order))
	layers := make(map[string]int, len(order))
	queue := make([]string, 0, len(order))

	for _, name := range order {
		d := len(edges.Predecessors(name))
		inDegree[name] = d
		if d == 0 {
			queue = append(queue, name)
		}
	}

	processed := 0
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		processed++

		for _, next := range edges.Successors(curr) {
			if l := layers[curr] + 1; l > layers[next] {
				layers[next] = l
			}
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if processed != len(order) {
		var stuck []string
		for _, name := range order {
			if inDegree[name] > 0 {
				stuck = append(stuck, name)
			}
		}
		return nil, &CycleError{Jobs: stuck}
	}
	return layers, nil
}

// ListByLayers groups the pipeline's groups by dependency depth. A group sits
// at the deepest layer of any of its jobs so that it renders once. Layers are
// returned in ascending order; empty depths are omitted.
func ListByLayers(p domain.Pipeline) ([]Layer, error) {
	edges, err := Resolve(p)
	if err != nil {
		return nil, err
	}
	return ListByLayersWith(p, edges)
}

// ListByLayersWith is ListByLayers for an already resolved edge set.
func ListByLayersWith(p domain.Pipeline, edges EdgeSet) ([]Layer, error) {
	byName, err := assignLayers(edges)
	if err != nil {
		return nil, err
	}

	buckets := make(map[int][]domain.Group)
	maxLayer := -1
	for _, s := range p.Stages {
		for _, g := range s.Groups {
			depth := 0
			for _, j := range g.Jobs {
				if l := byName[j.Name]; l > depth {
					depth = l
				}
			}
			buckets[depth] = append(buckets[depth], g)
			if depth > maxLayer {
				maxLayer = depth
			}
		}
	}

	var out []Layer
	for i := 0; i <= maxLayer; i++ {
		if groups, ok := buckets[i]; ok {
			out = append(out, Layer{Index: i, Groups: groups})
		}
	}
	return out, nil
}
