package layout

import (
	"strconv"
	"strings"

	"github.com/waabox/pipegraph/internal/domain"
)

const (
	upstreamTitle   = "Upstream"
	downstreamTitle = "Downstream"
	parentLabel     = "Parent"
	childLabel      = "Child"
)

// LinkedEntry is one upstream or downstream pipeline card.
type LinkedEntry struct {
	Pipeline  domain.LinkedPipeline
	ProjectID string
	// Label is "Parent" or "Child" for pipelines of the same project, empty
	// for cross-project pipelines.
	Label string
}

func upstreamColumn(p domain.Pipeline) (Column, bool) {
	if p.Upstream == nil {
		return Column{}, false
	}
	return Column{
		Kind:   ColumnUpstream,
		Title:  upstreamTitle,
		Linked: []LinkedEntry{linkedEntry(p, *p.Upstream, parentLabel)},
	}, true
}

func downstreamColumn(p domain.Pipeline) (Column, bool) {
	kept := DedupDownstream(p.Downstream)
	if len(kept) == 0 {
		return Column{}, false
	}
	entries := make([]LinkedEntry, len(kept))
	for i, d := range kept {
		entries[i] = linkedEntry(p, d, childLabel)
	}
	return Column{Kind: ColumnDownstream, Title: downstreamTitle, Linked: entries}, true
}

func linkedEntry(p domain.Pipeline, linked domain.LinkedPipeline, sameProjectLabel string) LinkedEntry {
	e := LinkedEntry{Pipeline: linked, ProjectID: linked.ProjectID}
	if linked.ProjectID != "" && linked.ProjectID == p.ProjectID {
		e.Label = sameProjectLabel
	}
	return e
}

// DedupDownstream keeps one downstream pipeline per source job. Retrying a
// bridge job triggers a new pipeline and marks the old source job retried, so
// the non-retried entry wins; among several candidates the latest one does.
// Output order follows the first appearance of each source job.
func DedupDownstream(downstream []domain.LinkedPipeline) []domain.LinkedPipeline {
	var order []string
	picked := make(map[string]int)
	for i, d := range downstream {
		key := d.SourceJob.Name
		if key == "" {
			key = "#" + d.ID
		}
		cur, ok := picked[key]
		if !ok {
			order = append(order, key)
			picked[key] = i
			continue
		}
		if supersedes(downstream[i], downstream[cur], i, cur) {
			picked[key] = i
		}
	}

	out := make([]domain.LinkedPipeline, 0, len(order))
	for _, key := range order {
		out = append(out, downstream[picked[key]])
	}
	return out
}

func supersedes(candidate, current domain.LinkedPipeline, ci, cur int) bool {
	if candidate.SourceJob.Retried != current.SourceJob.Retried {
		return !candidate.SourceJob.Retried
	}
	cs, cok := sequence(candidate.ID)
	ks, kok := sequence(current.ID)
	if cok && kok && cs != ks {
		return cs > ks
	}
	return ci > cur
}

// sequence extracts the numeric id from "123" or "gid://gitlab/Ci::Pipeline/123".
func sequence(id string) (int64, bool) {
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		id = id[i+1:]
	}
	n, err := strconv.ParseInt(id, 10, 64)
	return n, err == nil
}
