package provider_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/waabox/pipegraph/internal/domain"
	"github.com/waabox/pipegraph/internal/provider"
)

// scriptedProvider returns errs in order, then succeeds.
type scriptedProvider struct {
	errs  []error
	calls int
}

func (s *scriptedProvider) next() error {
	s.calls++
	if s.calls <= len(s.errs) {
		return s.errs[s.calls-1]
	}
	return nil
}

func (s *scriptedProvider) ListPipelines(_ context.Context, _ domain.Repository) ([]domain.Pipeline, error) {
	if err := s.next(); err != nil {
		return nil, err
	}
	return []domain.Pipeline{{ID: "1"}}, nil
}

func (s *scriptedProvider) GetPipeline(_ context.Context, _ domain.Repository, id domain.PipelineID) (domain.Pipeline, error) {
	if err := s.next(); err != nil {
		return domain.Pipeline{}, err
	}
	return domain.Pipeline{IID: id}, nil
}

var fastRetry = provider.RetryOptions{Attempts: 3, Delay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func TestRetryingProvider_PassesThroughOnSuccess(t *testing.T) {
	inner := &scriptedProvider{}
	rp := provider.NewRetryingProvider(inner, fastRetry, nil)

	result, err := rp.ListPipelines(context.Background(), domain.Repository{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 || result[0].ID != "1" {
		t.Errorf("unexpected result: %v", result)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call, got %d", inner.calls)
	}
}

func TestRetryingProvider_RetriesTransientErrors(t *testing.T) {
	inner := &scriptedProvider{errs: []error{
		fmt.Errorf("network timeout"),
		fmt.Errorf("gitlab API error: 502 Bad Gateway"),
	}}
	rp := provider.NewRetryingProvider(inner, fastRetry, nil)

	p, err := rp.GetPipeline(context.Background(), domain.Repository{}, "163")
	if err != nil {
		t.Fatalf("expected success after retries, got: %v", err)
	}
	if p.IID != "163" {
		t.Errorf("expected pipeline 163, got %s", p.IID)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 calls, got %d", inner.calls)
	}
}

func TestRetryingProvider_GivesUpAfterAttempts(t *testing.T) {
	inner := &scriptedProvider{errs: []error{
		fmt.Errorf("boom 1"), fmt.Errorf("boom 2"), fmt.Errorf("boom 3"), fmt.Errorf("boom 4"),
	}}
	rp := provider.NewRetryingProvider(inner, fastRetry, nil)

	_, err := rp.ListPipelines(context.Background(), domain.Repository{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if err.Error() != "boom 3" {
		t.Errorf("expected last error 'boom 3', got: %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 calls, got %d", inner.calls)
	}
}

func TestRetryingProvider_DoesNotRetryUnauthorized(t *testing.T) {
	inner := &scriptedProvider{errs: []error{
		fmt.Errorf("gitlab API error: 401 Unauthorized: %w", domain.ErrUnauthorized),
	}}
	rp := provider.NewRetryingProvider(inner, fastRetry, nil)

	_, err := rp.ListPipelines(context.Background(), domain.Repository{})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call, got %d", inner.calls)
	}
}

func TestRetryingProvider_DoesNotRetryNotFound(t *testing.T) {
	inner := &scriptedProvider{errs: []error{
		fmt.Errorf("pipeline 9: %w", domain.ErrNotFound),
	}}
	rp := provider.NewRetryingProvider(inner, fastRetry, nil)

	_, err := rp.GetPipeline(context.Background(), domain.Repository{}, "9")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call, got %d", inner.calls)
	}
}
