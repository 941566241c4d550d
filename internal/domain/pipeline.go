package domain

import "time"

// PipelineID identifies a pipeline within a project. For GitLab this is the
// project-scoped iid used in URLs, not the global database id.
type PipelineID string

// JobID identifies a job within a pipeline.
type JobID string

// JobKind separates regular jobs from bridge jobs, which trigger a downstream
// pipeline instead of running a script.
type JobKind string

const (
	JobKindBuild  JobKind = "build"
	JobKindBridge JobKind = "bridge"
)

// Job represents a single unit of work within a pipeline.
type Job struct {
	ID          JobID
	Name        string
	Kind        JobKind
	Stage       string
	Status      Status
	ScheduledAt time.Time
	// Needs holds the names of jobs (or job groups) this job explicitly waits for,
	// in declaration order. Empty means the job waits for the previous stage.
	Needs []string
}

// Group is one or more parallel instances of the same job collapsed under a
// shared base name ("rspec 1/3", "rspec 2/3" -> "rspec").
type Group struct {
	Name   string
	Size   int
	Status Status
	Jobs   []Job
}

// Stage is an ordered bucket of groups.
type Stage struct {
	Name   string
	Index  int
	Status Status
	Groups []Group
}

// Title returns the stage name followed by its status label, e.g. "build: passed".
func (s Stage) Title() string {
	if s.Status.Label == "" {
		return s.Name
	}
	return s.Name + ": " + s.Status.Label
}

// Jobs returns every job of the stage in declaration order.
func (s Stage) Jobs() []Job {
	var jobs []Job
	for _, g := range s.Groups {
		jobs = append(jobs, g.Jobs...)
	}
	return jobs
}

// SourceJob is the bridge job that triggered a linked pipeline.
type SourceJob struct {
	ID      JobID
	Name    string
	Retried bool
}

// LinkedPipeline is an upstream or downstream pipeline, as seen from the
// pipeline currently being rendered.
type LinkedPipeline struct {
	ID          string
	IID         PipelineID
	ProjectID   string
	ProjectPath string
	Status      Status
	SourceJob   SourceJob
}

// Pipeline represents a CI pipeline run.
type Pipeline struct {
	ID          string
	IID         PipelineID
	ProjectID   string
	ProjectPath string
	Branch      string
	CommitSHA   string
	CommitMsg   string
	Author      string
	Status      Status
	CreatedAt   time.Time
	Duration    time.Duration
	UsesNeeds   bool
	Upstream    *LinkedPipeline
	Downstream  []LinkedPipeline
	Stages      []Stage
}

// Jobs returns every job of the pipeline in stage-then-declaration order.
func (p Pipeline) Jobs() []Job {
	var jobs []Job
	for _, s := range p.Stages {
		jobs = append(jobs, s.Jobs()...)
	}
	return jobs
}

// GroupCount returns the number of groups across all stages.
func (p Pipeline) GroupCount() int {
	n := 0
	for _, s := range p.Stages {
		n += len(s.Groups)
	}
	return n
}
