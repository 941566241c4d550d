package domain

import (
	"context"
	"time"
)

// PipelineProvider is the port interface that CI provider adapters implement.
// The domain does not know about GitLab or any specific CI system.
type PipelineProvider interface {
	ListPipelines(ctx context.Context, repo Repository) ([]Pipeline, error)
	// GetPipeline returns a pipeline with its stages, groups, jobs and needs,
	// plus its upstream and downstream pipelines.
	GetPipeline(ctx context.Context, repo Repository, id PipelineID) (Pipeline, error)
}

// PollAdvisor is implemented by providers whose server advertises how often
// clients may poll. Zero means no advice has been received yet.
type PollAdvisor interface {
	PollInterval() time.Duration
}

// CalloutStore records one-time hints a user has dismissed.
type CalloutStore interface {
	IsDismissed(ctx context.Context, feature string) (bool, error)
	Dismiss(ctx context.Context, feature string) error
}
