package provider

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/waabox/pipegraph/internal/domain"
)

// RetryOptions tunes the backoff of a RetryingProvider.
type RetryOptions struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
}

// DefaultRetryOptions retries three times starting at 250ms.
var DefaultRetryOptions = RetryOptions{
	Attempts: 3,
	Delay:    250 * time.Millisecond,
	MaxDelay: 2 * time.Second,
}

// RetryingProvider wraps a PipelineProvider and retries transient failures
// with exponential backoff. Unauthorized and not-found responses, and a
// cancelled context, are returned immediately.
type RetryingProvider struct {
	inner  domain.PipelineProvider
	opts   RetryOptions
	logger *slog.Logger
}

// Ensure RetryingProvider implements PipelineProvider.
var _ domain.PipelineProvider = (*RetryingProvider)(nil)

// NewRetryingProvider creates a RetryingProvider.
func NewRetryingProvider(inner domain.PipelineProvider, opts RetryOptions, logger *slog.Logger) *RetryingProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingProvider{inner: inner, opts: opts, logger: logger}
}

func (rp *RetryingProvider) do(ctx context.Context, op string, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(rp.opts.Attempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(rp.opts.Delay),
		retry.MaxDelay(rp.opts.MaxDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			rp.logger.Warn("retrying provider call", "op", op, "attempt", n+1, "error", err)
		}),
	)
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

func (rp *RetryingProvider) ListPipelines(ctx context.Context, repo domain.Repository) ([]domain.Pipeline, error) {
	var result []domain.Pipeline
	err := rp.do(ctx, "list_pipelines", func() error {
		var e error
		result, e = rp.inner.ListPipelines(ctx, repo)
		return e
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (rp *RetryingProvider) GetPipeline(ctx context.Context, repo domain.Repository, id domain.PipelineID) (domain.Pipeline, error) {
	var result domain.Pipeline
	err := rp.do(ctx, "get_pipeline", func() error {
		var e error
		result, e = rp.inner.GetPipeline(ctx, repo, id)
		return e
	})
	if err != nil {
		return domain.Pipeline{}, err
	}
	return result, nil
}
