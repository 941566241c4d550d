package snapshot

import (
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/hashicorp/go-multierror"

	"github.com/waabox/pipegraph/internal/domain"
	"github.com/waabox/pipegraph/internal/graph"
)

// DefaultStages is the stage list GitLab uses when a file declares none.
var DefaultStages = []string{"build", "test", "deploy"}

const defaultJobStage = "test"

// reserved top-level keys that are not jobs.
var reserved = map[string]bool{
	"stages": true, "variables": true, "default": true, "include": true,
	"workflow": true, "image": true, "services": true, "before_script": true,
	"after_script": true, "cache": true,
}

type ciJob struct {
	Stage    string      `yaml:"stage"`
	Needs    []ciNeed    `yaml:"needs"`
	Parallel *ciParallel `yaml:"parallel"`
	Trigger  any         `yaml:"trigger"`
	When     string      `yaml:"when"`
}

// ciNeed accepts both "job" and {job: name} forms. Needs on other projects or
// pipelines carry no edge inside this pipeline.
type ciNeed struct {
	Job      string
	External bool
}

func (n *ciNeed) UnmarshalYAML(unmarshal func(any) error) error {
	var name string
	if err := unmarshal(&name); err == nil {
		n.Job = name
		return nil
	}
	var obj struct {
		Job      string `yaml:"job"`
		Project  string `yaml:"project"`
		Pipeline string `yaml:"pipeline"`
	}
	if err := unmarshal(&obj); err != nil {
		return err
	}
	n.Job = obj.Job
	n.External = obj.Project != "" || obj.Pipeline != ""
	return nil
}

// ciParallel accepts "parallel: N" and "parallel: {matrix: [...]}".
type ciParallel struct {
	Count  int
	Matrix []yaml.MapSlice
}

func (p *ciParallel) UnmarshalYAML(unmarshal func(any) error) error {
	var n int
	if err := unmarshal(&n); err == nil {
		p.Count = n
		return nil
	}
	var obj struct {
		Matrix []yaml.MapSlice `yaml:"matrix"`
	}
	if err := unmarshal(&obj); err != nil {
		return err
	}
	p.Matrix = obj.Matrix
	return nil
}

// ParseCI builds a pipeline from a .gitlab-ci.yml document. Jobs keep their
// declaration order; hidden jobs (".name") and global keywords are skipped.
// Every job starts out created, manual or scheduled depending on "when".
// Problems are reported together.
func ParseCI(data []byte) (domain.Pipeline, error) {
	var doc yaml.MapSlice
	if err := yaml.UnmarshalWithOptions(data, &doc, yaml.UseOrderedMap()); err != nil {
		return domain.Pipeline{}, fmt.Errorf("parsing CI YAML: %w", err)
	}

	stages := DefaultStages
	var result *multierror.Error
	var jobs []domain.Job

	for _, item := range doc {
		key, ok := item.Key.(string)
		if !ok {
			continue
		}
		if key == "stages" {
			declared, err := stringList(item.Value)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("stages: %w", err))
				continue
			}
			stages = declared
			continue
		}
		if reserved[key] || strings.HasPrefix(key, ".") {
			continue
		}
		raw, err := yaml.Marshal(item.Value)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("job %s: %w", key, err))
			continue
		}
		var cj ciJob
		if err := yaml.Unmarshal(raw, &cj); err != nil {
			result = multierror.Append(result, fmt.Errorf("job %s: %w", key, err))
			continue
		}
		jobs = append(jobs, expand(key, cj)...)
	}

	order := append(append([]string{".pre"}, stages...), ".post")
	known := make(map[string]bool, len(order))
	for _, s := range order {
		known[s] = true
	}
	usesNeeds := false
	for _, j := range jobs {
		if !known[j.Stage] {
			result = multierror.Append(result, fmt.Errorf("job %s: chosen stage %s does not exist", j.Name, j.Stage))
		}
		if len(j.Needs) > 0 {
			usesNeeds = true
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return domain.Pipeline{}, err
	}

	stageList := graph.Normalizer{}.GroupStages(jobs, order)
	p := domain.Pipeline{
		IID:       "local",
		UsesNeeds: usesNeeds,
		Stages:    stageList,
	}
	statuses := make([]domain.Status, len(stageList))
	for i, s := range stageList {
		statuses[i] = s.Status
	}
	p.Status = graph.DefaultPrecedence.Worst(statuses...)
	return p, nil
}

// expand turns one job definition into its instances.
func expand(name string, cj ciJob) []domain.Job {
	base := domain.Job{
		Kind:   domain.JobKindBuild,
		Stage:  cj.Stage,
		Status: whenStatus(cj.When),
	}
	if base.Stage == "" {
		base.Stage = defaultJobStage
	}
	if cj.Trigger != nil {
		base.Kind = domain.JobKindBridge
	}
	for _, n := range cj.Needs {
		if n.External || n.Job == "" {
			continue
		}
		base.Needs = append(base.Needs, n.Job)
	}

	var names []string
	switch {
	case cj.Parallel != nil && cj.Parallel.Count > 1:
		for i := 1; i <= cj.Parallel.Count; i++ {
			names = append(names, fmt.Sprintf("%s %d/%d", name, i, cj.Parallel.Count))
		}
	case cj.Parallel != nil && len(cj.Parallel.Matrix) > 0:
		for _, combo := range matrixCombinations(cj.Parallel.Matrix) {
			names = append(names, fmt.Sprintf("%s: [%s]", name, strings.Join(combo, ", ")))
		}
	default:
		names = []string{name}
	}

	out := make([]domain.Job, len(names))
	for i, n := range names {
		j := base
		j.ID = domain.JobID(n)
		j.Name = n
		j.Needs = append([]string(nil), base.Needs...)
		out[i] = j
	}
	return out
}

// matrixCombinations expands every matrix entry into the cartesian product of
// its variable values, in declaration order.
func matrixCombinations(matrix []yaml.MapSlice) [][]string {
	var out [][]string
	for _, entry := range matrix {
		combos := [][]string{nil}
		for _, item := range entry {
			values, err := stringList(item.Value)
			if err != nil {
				values = []string{fmt.Sprint(item.Value)}
			}
			var next [][]string
			for _, c := range combos {
				for _, v := range values {
					next = append(next, append(append([]string(nil), c...), v))
				}
			}
			combos = next
		}
		out = append(out, combos...)
	}
	return out
}

func whenStatus(when string) domain.Status {
	switch when {
	case "manual":
		return domain.NewStatus(domain.StatusManual)
	case "delayed":
		return domain.NewStatus(domain.StatusScheduled)
	}
	st := domain.NewStatus(domain.StatusPending)
	st.Label = "created"
	st.Tooltip = "created"
	return st
}

func stringList(v any) ([]string, error) {
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			switch e.(type) {
			case yaml.MapSlice, map[string]any, []any:
				return nil, fmt.Errorf("expected a list of scalars, got %T", e)
			}
			out = append(out, fmt.Sprint(e))
		}
		return out, nil
	case nil:
		return nil, nil
	}
	switch v.(type) {
	case yaml.MapSlice, map[string]any:
		return nil, fmt.Errorf("expected a list, got a mapping")
	}
	return []string{fmt.Sprint(v)}, nil
}
