// Package graph turns a pipeline snapshot into the dependency structures used
// to lay it out: collapsed job groups, the effective predecessor of every job,
// and the dependency depth ("layer") of every job.
//
// Everything here is a pure function of its input. Nothing is cached between
// calls and no input is mutated.
package graph

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/waabox/pipegraph/internal/domain"
)

// Precedence orders status kinds from most to least severe. The aggregate
// status of a group or stage is the member status that ranks first.
type Precedence []domain.StatusKind

// DefaultPrecedence lets a single failure dominate everything else.
var DefaultPrecedence = Precedence{
	domain.StatusFailed,
	domain.StatusCanceled,
	domain.StatusRunning,
	domain.StatusPending,
	domain.StatusManual,
	domain.StatusScheduled,
	domain.StatusSkipped,
	domain.StatusSuccess,
}

func (p Precedence) rank(kind domain.StatusKind) int {
	for i, k := range p {
		if k == kind {
			return i
		}
	}
	return len(p)
}

// Worst returns the highest-ranked status among statuses. Ties keep the first.
// It returns the zero Status when statuses is empty.
func (p Precedence) Worst(statuses ...domain.Status) domain.Status {
	var worst domain.Status
	best := -1
	for _, s := range statuses {
		r := p.rank(s.Kind)
		if best == -1 || r < best {
			worst, best = s, r
		}
	}
	return worst
}

// parallelSuffix matches the instance suffix GitLab appends to parallel and
// matrix jobs: "rspec 1/3", "rspec 1 3", "rspec:1/3", "deploy: [eu, prod]".
var parallelSuffix = regexp.MustCompile(`(?:[\s:]+(?:\[.*\]|\d+[\s:/\\]+\d+))+\s*$`)

var instanceTotal = regexp.MustCompile(`\d+[\s:/\\]+(\d+)\s*$`)

// GroupName splits a job name into its group base name and the declared
// number of parallel instances. total is 0 when the name carries no numeric
// "i/N" suffix (matrix jobs and plain jobs).
func GroupName(name string) (base string, total int) {
	loc := parallelSuffix.FindStringIndex(name)
	if loc == nil || loc[0] == 0 {
		return name, 0
	}
	base = strings.TrimSpace(name[:loc[0]])
	if m := instanceTotal.FindStringSubmatch(name[loc[0]:]); m != nil {
		total, _ = strconv.Atoi(m[1])
	}
	return base, total
}

// Normalizer collapses raw jobs into groups and stages.
type Normalizer struct {
	// Precedence decides aggregate statuses; DefaultPrecedence when nil.
	Precedence Precedence
}

func (n Normalizer) precedence() Precedence {
	if n.Precedence == nil {
		return DefaultPrecedence
	}
	return n.Precedence
}

// Normalize groups jobs by base name, in order of first appearance.
func Normalize(jobs []domain.Job) []domain.Group {
	return Normalizer{}.Normalize(jobs)
}

// Normalize groups jobs by base name, in order of first appearance.
//
// Parallel instances missing from jobs (a partial restart) are simply absent:
// the group's size still reports the declared total, while its status only
// reflects the members present.
func (n Normalizer) Normalize(jobs []domain.Job) []domain.Group {
	prec := n.precedence()
	var groups []domain.Group
	index := make(map[string]int)
	declared := make(map[string]int)

	for _, j := range jobs {
		base, total := GroupName(j.Name)
		i, ok := index[base]
		if !ok {
			i = len(groups)
			index[base] = i
			groups = append(groups, domain.Group{Name: base})
		}
		groups[i].Jobs = append(groups[i].Jobs, j)
		if total > declared[base] {
			declared[base] = total
		}
	}

	for i := range groups {
		g := &groups[i]
		g.Size = len(g.Jobs)
		if total := declared[g.Name]; total > 0 {
			g.Size = total
		}
		statuses := make([]domain.Status, len(g.Jobs))
		for k, j := range g.Jobs {
			statuses[k] = j.Status
		}
		g.Status = prec.Worst(statuses...)
	}
	return groups
}

// GroupStages partitions flat jobs into stages following stageOrder. Stages
// named by jobs but absent from stageOrder are appended in order of first
// appearance. Stages without jobs are dropped.
func (n Normalizer) GroupStages(jobs []domain.Job, stageOrder []string) []domain.Stage {
	byStage := make(map[string][]domain.Job)
	order := append([]string(nil), stageOrder...)
	known := make(map[string]bool, len(order))
	for _, s := range order {
		known[s] = true
	}
	for _, j := range jobs {
		if !known[j.Stage] {
			known[j.Stage] = true
			order = append(order, j.Stage)
		}
		byStage[j.Stage] = append(byStage[j.Stage], j)
	}

	prec := n.precedence()
	var stages []domain.Stage
	for _, name := range order {
		members := byStage[name]
		if len(members) == 0 {
			continue
		}
		groups := n.Normalize(members)
		statuses := make([]domain.Status, len(groups))
		for i, g := range groups {
			statuses[i] = g.Status
		}
		stages = append(stages, domain.Stage{
			Name:   name,
			Index:  len(stages),
			Status: prec.Worst(statuses...),
			Groups: groups,
		})
	}
	return stages
}
