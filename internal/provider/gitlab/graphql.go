package gitlab

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/waabox/pipegraph/internal/domain"
	"github.com/waabox/pipegraph/internal/graph"
)

const statusFields = `
      id
      group
      icon
      label
      text
      tooltip
      hasDetails
      detailsPath
      action { id icon title buttonTitle path }`

const linkedFields = `
      id
      iid
      project { id fullPath }
      sourceJob { id name retried }
      detailedStatus {` + statusFields + `
      }`

const pipelineDetailsQuery = `query getPipelineDetails($projectPath: ID!, $iid: ID!) {
  project(fullPath: $projectPath) {
    id
    fullPath
    pipeline(iid: $iid) {
      id
      iid
      ref
      usesNeeds
      createdAt
      duration
      commit { sha title }
      user { name }
      detailedStatus {` + statusFields + `
      }
      upstream {` + linkedFields + `
      }
      downstream {
        nodes {` + linkedFields + `
        }
      }
      stages {
        nodes {
          name
          detailedStatus {` + statusFields + `
          }
          groups {
            nodes {
              name
              size
              detailedStatus {` + statusFields + `
              }
              jobs {
                nodes {
                  id
                  name
                  kind
                  scheduledAt
                  needs { nodes { name } }
                  detailedStatus {` + statusFields + `
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// err folds every GraphQL error into one.
func (r graphqlResponse) err() error {
	var result *multierror.Error
	for _, e := range r.Errors {
		result = multierror.Append(result, fmt.Errorf("gitlab graphql: %s", e.Message))
	}
	return result.ErrorOrNil()
}

type nodes[T any] struct {
	Nodes []T `json:"nodes"`
}

type statusActionNode struct {
	Icon        string `json:"icon"`
	Title       string `json:"title"`
	ButtonTitle string `json:"buttonTitle"`
	Path        string `json:"path"`
}

type detailedStatus struct {
	Group       string            `json:"group"`
	Icon        string            `json:"icon"`
	Label       string            `json:"label"`
	Text        string            `json:"text"`
	Tooltip     string            `json:"tooltip"`
	HasDetails  bool              `json:"hasDetails"`
	DetailsPath string            `json:"detailsPath"`
	Action      *statusActionNode `json:"action"`
}

func (s *detailedStatus) toStatus() domain.Status {
	if s == nil {
		return domain.NewStatus(domain.StatusPending)
	}
	st := domain.NewStatus(mapStatus(s.Group))
	if s.Icon != "" {
		st.Icon = s.Icon
	}
	if s.Label != "" {
		st.Label = s.Label
	}
	if s.Tooltip != "" {
		st.Tooltip = s.Tooltip
	}
	st.HasDetails = s.HasDetails
	st.DetailsPath = s.DetailsPath
	if s.Action != nil {
		if kind, err := domain.ParseActionKind(s.Action.Icon); err == nil {
			st.Action = &domain.StatusAction{
				Kind:        kind,
				Title:       s.Action.Title,
				ButtonTitle: s.Action.ButtonTitle,
				Path:        s.Action.Path,
			}
		}
	}
	return st
}

type projectRef struct {
	ID       string `json:"id"`
	FullPath string `json:"fullPath"`
}

type sourceJobNode struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Retried bool   `json:"retried"`
}

type linkedNode struct {
	ID             string          `json:"id"`
	IID            string          `json:"iid"`
	Project        *projectRef     `json:"project"`
	SourceJob      *sourceJobNode  `json:"sourceJob"`
	DetailedStatus *detailedStatus `json:"detailedStatus"`
}

func (n linkedNode) toLinked() domain.LinkedPipeline {
	lp := domain.LinkedPipeline{
		ID:     n.ID,
		IID:    domain.PipelineID(n.IID),
		Status: n.DetailedStatus.toStatus(),
	}
	if n.Project != nil {
		lp.ProjectID = n.Project.ID
		lp.ProjectPath = n.Project.FullPath
	}
	if n.SourceJob != nil {
		lp.SourceJob = domain.SourceJob{
			ID:      domain.JobID(n.SourceJob.ID),
			Name:    n.SourceJob.Name,
			Retried: n.SourceJob.Retried,
		}
	}
	return lp
}

type needNode struct {
	Name string `json:"name"`
}

type jobNode struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Kind           string           `json:"kind"`
	ScheduledAt    *string          `json:"scheduledAt"`
	Needs          *nodes[needNode] `json:"needs"`
	DetailedStatus *detailedStatus  `json:"detailedStatus"`
}

func (n jobNode) toJob(stage string) domain.Job {
	j := domain.Job{
		ID:     domain.JobID(n.ID),
		Name:   n.Name,
		Kind:   domain.JobKind(strings.ToLower(n.Kind)),
		Stage:  stage,
		Status: n.DetailedStatus.toStatus(),
	}
	if j.Kind == "" {
		j.Kind = domain.JobKindBuild
	}
	if n.ScheduledAt != nil {
		j.ScheduledAt, _ = time.Parse(time.RFC3339, *n.ScheduledAt)
	}
	if n.Needs != nil {
		for _, need := range n.Needs.Nodes {
			j.Needs = append(j.Needs, need.Name)
		}
	}
	return j
}

type groupNode struct {
	Name           string          `json:"name"`
	Size           int             `json:"size"`
	DetailedStatus *detailedStatus `json:"detailedStatus"`
	Jobs           *nodes[jobNode] `json:"jobs"`
}

func (n groupNode) toGroup(stage string) domain.Group {
	g := domain.Group{Name: n.Name, Size: n.Size}
	if n.Jobs != nil {
		for _, jn := range n.Jobs.Nodes {
			g.Jobs = append(g.Jobs, jn.toJob(stage))
		}
	}
	if g.Size == 0 {
		g.Size = len(g.Jobs)
	}
	if n.DetailedStatus != nil {
		g.Status = n.DetailedStatus.toStatus()
	} else {
		g.Status = worstOfJobs(g.Jobs)
	}
	return g
}

type stageNode struct {
	Name           string            `json:"name"`
	DetailedStatus *detailedStatus   `json:"detailedStatus"`
	Groups         *nodes[groupNode] `json:"groups"`
}

func (n stageNode) toStage(index int) domain.Stage {
	s := domain.Stage{Name: n.Name, Index: index}
	if n.Groups != nil {
		for _, gn := range n.Groups.Nodes {
			s.Groups = append(s.Groups, gn.toGroup(n.Name))
		}
	}
	if n.DetailedStatus != nil {
		s.Status = n.DetailedStatus.toStatus()
	} else {
		s.Status = worstOfJobs(s.Jobs())
	}
	return s
}

type pipelineNode struct {
	ID        string `json:"id"`
	IID       string `json:"iid"`
	Ref       string `json:"ref"`
	UsesNeeds bool   `json:"usesNeeds"`
	CreatedAt string `json:"createdAt"`
	Duration  *int   `json:"duration"`
	Commit    *struct {
		SHA   string `json:"sha"`
		Title string `json:"title"`
	} `json:"commit"`
	User *struct {
		Name string `json:"name"`
	} `json:"user"`
	DetailedStatus *detailedStatus    `json:"detailedStatus"`
	Upstream       *linkedNode        `json:"upstream"`
	Downstream     *nodes[linkedNode] `json:"downstream"`
	Stages         *nodes[stageNode]  `json:"stages"`
}

type pipelineResponse struct {
	Project *struct {
		ID       string        `json:"id"`
		FullPath string        `json:"fullPath"`
		Pipeline *pipelineNode `json:"pipeline"`
	} `json:"project"`
}

func (r pipelineResponse) toPipeline(requested domain.PipelineID) (domain.Pipeline, error) {
	if r.Project == nil || r.Project.Pipeline == nil {
		if requested == "" {
			return domain.Pipeline{}, fmt.Errorf("pipeline details: %w", domain.ErrNotFound)
		}
		return domain.Pipeline{}, fmt.Errorf("pipeline %s: %w", requested, domain.ErrNotFound)
	}
	n := r.Project.Pipeline
	p := domain.Pipeline{
		ID:          n.ID,
		IID:         domain.PipelineID(n.IID),
		ProjectID:   r.Project.ID,
		ProjectPath: r.Project.FullPath,
		Branch:      n.Ref,
		UsesNeeds:   n.UsesNeeds,
		Status:      n.DetailedStatus.toStatus(),
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, n.CreatedAt)
	if n.Duration != nil {
		p.Duration = time.Duration(*n.Duration) * time.Second
	}
	if n.Commit != nil {
		p.CommitSHA = n.Commit.SHA
		p.CommitMsg = n.Commit.Title
	}
	if n.User != nil {
		p.Author = n.User.Name
	}
	if n.Upstream != nil {
		up := n.Upstream.toLinked()
		p.Upstream = &up
	}
	if n.Downstream != nil {
		for _, d := range n.Downstream.Nodes {
			p.Downstream = append(p.Downstream, d.toLinked())
		}
	}
	if n.Stages != nil {
		for i, sn := range n.Stages.Nodes {
			p.Stages = append(p.Stages, sn.toStage(i))
		}
	}
	return p, nil
}

func worstOfJobs(jobs []domain.Job) domain.Status {
	statuses := make([]domain.Status, len(jobs))
	for i, j := range jobs {
		statuses[i] = j.Status
	}
	return graph.DefaultPrecedence.Worst(statuses...)
}
