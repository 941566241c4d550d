package graph

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/waabox/pipegraph/internal/domain"
)

// MalformedNeedsError reports a needs entry that names no job or group of the pipeline.
type MalformedNeedsError struct {
	Job  string
	Need string
}

func (e *MalformedNeedsError) Error() string {
	return fmt.Sprintf("job %q needs unknown job %q", e.Job, e.Need)
}

func (e *MalformedNeedsError) Unwrap() error { return domain.ErrMalformedNeeds }

// DuplicateJobError reports a job name declared more than once. Needs refer to
// jobs by name, so a repeated name makes every reference to it ambiguous.
type DuplicateJobError struct {
	Job    string
	Stages []string
}

func (e *DuplicateJobError) Error() string {
	return fmt.Sprintf("job %q is declared more than once (stages %v)", e.Job, e.Stages)
}

func (e *DuplicateJobError) Unwrap() error { return domain.ErrMalformedNeeds }

// EdgeSet is the effective dependency graph of a pipeline, keyed by job name.
type EdgeSet struct {
	order    []string
	stageOf  map[string]int
	preds    map[string][]string
	succs    map[string][]string
	implicit map[string]bool
	groupOf  map[string]string
	members  map[string][]string
	links    int
}

// Jobs returns job names in stage-then-declaration order.
func (e EdgeSet) Jobs() []string { return e.order }

// Has reports whether name is a job of the pipeline.
func (e EdgeSet) Has(name string) bool {
	_, ok := e.stageOf[name]
	return ok
}

// Predecessors returns the jobs name must wait for.
func (e EdgeSet) Predecessors(name string) []string { return e.preds[name] }

// Successors returns the jobs that wait for name.
func (e EdgeSet) Successors(name string) []string { return e.succs[name] }

// Implicit reports whether the predecessors of name come from the
// previous-stage barrier rather than from explicit needs.
func (e EdgeSet) Implicit(name string) bool { return e.implicit[name] }

// GroupOf returns the group a job belongs to.
func (e EdgeSet) GroupOf(job string) string { return e.groupOf[job] }

// Members returns the jobs of a group, or nil if name is not a group.
func (e EdgeSet) Members(group string) []string { return e.members[group] }

// StageIndex returns the position of the stage a job belongs to.
func (e EdgeSet) StageIndex(name string) int { return e.stageOf[name] }

// LinkCount is the number of explicit needs edges, the links drawn in the layer view.
func (e EdgeSet) LinkCount() int { return e.links }

// Link is an explicit needs edge: To waits for From.
type Link struct {
	From string
	To   string
}

// Links returns the explicit needs edges in job order.
func (e EdgeSet) Links() []Link {
	out := make([]Link, 0, e.links)
	for _, job := range e.order {
		if e.implicit[job] {
			continue
		}
		for _, pred := range e.preds[job] {
			out = append(out, Link{From: pred, To: job})
		}
	}
	return out
}

// EdgeCount is the number of effective predecessor edges.
func (e EdgeSet) EdgeCount() int {
	n := 0
	for _, p := range e.preds {
		n += len(p)
	}
	return n
}

// Resolve computes every job's effective predecessors.
//
// A job with explicit needs depends exactly on the named jobs; a need naming a
// group depends on all of that group's jobs. A job without needs depends on
// every job of the nearest preceding non-empty stage. Jobs of the first stage
// have no predecessors.
//
// Needs naming nothing in the pipeline are reported, all of them, as
// *MalformedNeedsError values aggregated in a *multierror.Error. A job name
// declared twice is reported as a *DuplicateJobError; only its first
// declaration takes part in the graph. The partial EdgeSet is still returned.
func Resolve(p domain.Pipeline) (EdgeSet, error) {
	e := EdgeSet{
		stageOf:  make(map[string]int),
		preds:    make(map[string][]string),
		succs:    make(map[string][]string),
		implicit: make(map[string]bool),
		groupOf:  make(map[string]string),
		members:  make(map[string][]string),
	}

	var result *multierror.Error
	dups := make(map[string]*DuplicateJobError)
	for si, s := range p.Stages {
		for _, g := range s.Groups {
			for _, j := range g.Jobs {
				if first, ok := e.stageOf[j.Name]; ok {
					d, seen := dups[j.Name]
					if !seen {
						d = &DuplicateJobError{Job: j.Name, Stages: []string{p.Stages[first].Name}}
						dups[j.Name] = d
						result = multierror.Append(result, d)
					}
					d.Stages = append(d.Stages, s.Name)
					continue
				}
				e.order = append(e.order, j.Name)
				e.stageOf[j.Name] = si
				e.groupOf[j.Name] = g.Name
				e.members[g.Name] = append(e.members[g.Name], j.Name)
			}
		}
	}

	done := make(map[string]bool, len(e.order))
	var previous []string
	for _, s := range p.Stages {
		var current []domain.Job
		for _, j := range s.Jobs() {
			if done[j.Name] {
				continue
			}
			done[j.Name] = true
			current = append(current, j)
		}
		for _, j := range current {
			if len(j.Needs) == 0 {
				if len(previous) > 0 {
					e.implicit[j.Name] = true
				}
				for _, pred := range previous {
					e.addEdge(pred, j.Name)
				}
				continue
			}
			seen := make(map[string]bool, len(j.Needs))
			for _, need := range j.Needs {
				targets, err := e.lookup(j.Name, need)
				if err != nil {
					result = multierror.Append(result, err)
					continue
				}
				for _, t := range targets {
					if seen[t] {
						continue
					}
					seen[t] = true
					e.addEdge(t, j.Name)
					e.links++
				}
			}
		}
		if len(current) > 0 {
			previous = make([]string, len(current))
			for i, j := range current {
				previous[i] = j.Name
			}
		}
	}
	return e, result.ErrorOrNil()
}

func (e *EdgeSet) lookup(job, need string) ([]string, error) {
	if _, ok := e.stageOf[need]; ok {
		return []string{need}, nil
	}
	if members, ok := e.members[need]; ok {
		return members, nil
	}
	return nil, &MalformedNeedsError{Job: job, Need: need}
}

func (e *EdgeSet) addEdge(from, to string) {
	e.preds[to] = append(e.preds[to], from)
	e.succs[from] = append(e.succs[from], to)
}
