package gitlab_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/waabox/pipegraph/internal/domain"
	gitlabprovider "github.com/waabox/pipegraph/internal/provider/gitlab"
)

var repo = domain.Repository{Host: "gitlab.com", ProjectPath: "mygroup/myproject", Name: "myproject"}

type graphqlBody struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func decodeGraphQL(t *testing.T, r *http.Request) graphqlBody {
	t.Helper()
	var body graphqlBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Fatalf("decoding graphql body: %v", err)
	}
	return body
}

func TestListPipelines_ReturnsPipelines(t *testing.T) {
	response := []map[string]interface{}{
		{
			"id":         float64(201),
			"iid":        float64(12),
			"project_id": float64(20),
			"ref":        "main",
			"sha":        "def5678",
			"status":     "success",
			"created_at": time.Now().Add(-1 * time.Hour).Format(time.RFC3339),
			"updated_at": time.Now().Add(-55 * time.Minute).Format(time.RFC3339),
		},
	}

	var gotPerPage, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() == "/api/v4/projects/mygroup%2Fmyproject/pipelines" {
			gotPerPage = r.URL.Query().Get("per_page")
			gotAuth = r.Header.Get("Authorization")
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(response)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	adapter := gitlabprovider.NewAdapter("test-token", srv.URL, 5)

	pipelines, err := adapter.ListPipelines(context.Background(), repo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pipelines) != 1 {
		t.Fatalf("expected 1 pipeline, got %d", len(pipelines))
	}
	if pipelines[0].IID != "12" {
		t.Errorf("expected IID '12', got '%s'", pipelines[0].IID)
	}
	if pipelines[0].Status.Kind != domain.StatusSuccess {
		t.Errorf("expected status success, got '%s'", pipelines[0].Status.Kind)
	}
	if pipelines[0].Duration != 5*time.Minute {
		t.Errorf("expected duration 5m, got %s", pipelines[0].Duration)
	}
	if gotPerPage != "5" {
		t.Errorf("expected per_page 5, got '%s'", gotPerPage)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("expected bearer token, got '%s'", gotAuth)
	}
}

func TestListPipelines_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	adapter := gitlabprovider.NewAdapter("expired", srv.URL, 5)
	_, err := adapter.ListPipelines(context.Background(), repo)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got: %v", err)
	}
}

func TestListPipelines_TracksPollInterval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Poll-Interval", "15000")
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	adapter := gitlabprovider.NewAdapter("t", srv.URL, 5)
	if adapter.PollInterval() != 0 {
		t.Errorf("expected no advice before first request, got %s", adapter.PollInterval())
	}
	if _, err := adapter.ListPipelines(context.Background(), repo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if adapter.PollInterval() != 15*time.Second {
		t.Errorf("expected poll interval 15s, got %s", adapter.PollInterval())
	}
}

func TestGetPipeline_ReturnsGraph(t *testing.T) {
	fixture, err := os.ReadFile("testdata/pipeline_details.json")
	if err != nil {
		t.Fatal(err)
	}

	var gotVars map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/graphql" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		body := decodeGraphQL(t, r)
		if !strings.Contains(body.Query, "getPipelineDetails") {
			t.Errorf("unexpected query: %s", body.Query)
		}
		gotVars = body.Variables
		w.Header().Set("Content-Type", "application/json")
		w.Write(fixture)
	}))
	defer srv.Close()

	adapter := gitlabprovider.NewAdapter("t", srv.URL, 5)
	p, err := adapter.GetPipeline(context.Background(), repo, "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotVars["projectPath"] != "mygroup/myproject" || gotVars["iid"] != "42" {
		t.Errorf("unexpected variables: %v", gotVars)
	}
	if !p.UsesNeeds {
		t.Error("expected usesNeeds to be true")
	}
	if len(p.Stages) != 3 {
		t.Fatalf("expected 3 stages, got %d", len(p.Stages))
	}
	if p.Stages[1].Title() != "test: failed" {
		t.Errorf("expected stage title 'test: failed', got '%s'", p.Stages[1].Title())
	}

	rspec := p.Stages[1].Groups[1]
	if rspec.Name != "rspec" || rspec.Size != 2 || len(rspec.Jobs) != 2 {
		t.Errorf("unexpected rspec group: %+v", rspec)
	}
	if rspec.Status.Kind != domain.StatusFailed {
		t.Errorf("expected rspec group status derived as failed, got '%s'", rspec.Status.Kind)
	}

	testA := p.Stages[1].Groups[0].Jobs[0]
	if len(testA.Needs) != 2 || testA.Needs[0] != "build_a" || testA.Needs[1] != "build_b" {
		t.Errorf("unexpected needs for test_a: %v", testA.Needs)
	}

	buildA := p.Stages[0].Groups[0].Jobs[0]
	if buildA.Status.Action == nil || buildA.Status.Action.Kind != domain.ActionRetry {
		t.Errorf("expected retry action on build_a, got %+v", buildA.Status.Action)
	}
	if !buildA.Status.HasDetails || buildA.Status.DetailsPath != "/mygroup/myproject/-/jobs/1" {
		t.Errorf("unexpected details for build_a: %+v", buildA.Status)
	}

	deploy := p.Stages[2].Groups[0].Jobs[0]
	if deploy.Kind != domain.JobKindBridge {
		t.Errorf("expected bridge job, got '%s'", deploy.Kind)
	}

	if p.Upstream == nil || p.Upstream.IID != "7" {
		t.Errorf("unexpected upstream: %+v", p.Upstream)
	}
	if len(p.Downstream) != 2 || !p.Downstream[0].SourceJob.Retried {
		t.Errorf("unexpected downstream: %+v", p.Downstream)
	}
	if p.Downstream[1].Status.Kind != domain.StatusSuccess {
		t.Errorf("expected success-with-warnings mapped to success, got '%s'", p.Downstream[1].Status.Kind)
	}
	if p.Author != "Ada" || p.CommitMsg != "Add layer view" || p.Duration != 312*time.Second {
		t.Errorf("unexpected metadata: author=%s msg=%s duration=%s", p.Author, p.CommitMsg, p.Duration)
	}
}

func TestGetPipeline_MissingPipelineIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"project":{"id":"gid://gitlab/Project/20","pipeline":null}}}`))
	}))
	defer srv.Close()

	adapter := gitlabprovider.NewAdapter("t", srv.URL, 5)
	_, err := adapter.GetPipeline(context.Background(), repo, "999")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestGetPipeline_GraphQLErrorsAreReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"Field 'usesNeeds' doesn't exist"},{"message":"second problem"}]}`))
	}))
	defer srv.Close()

	adapter := gitlabprovider.NewAdapter("t", srv.URL, 5)
	_, err := adapter.GetPipeline(context.Background(), repo, "42")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "usesNeeds") || !strings.Contains(err.Error(), "second problem") {
		t.Errorf("expected both graphql errors in message, got: %v", err)
	}
}

func TestParsePipelineDetails_ReadsSavedResponse(t *testing.T) {
	fixture, err := os.ReadFile("testdata/pipeline_details.json")
	if err != nil {
		t.Fatal(err)
	}
	p, err := gitlabprovider.ParsePipelineDetails(bytes.NewReader(fixture))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.IID != "42" || p.ProjectPath != "mygroup/myproject" {
		t.Errorf("unexpected pipeline identity: iid=%s path=%s", p.IID, p.ProjectPath)
	}
	if len(p.Jobs()) != 6 {
		t.Errorf("expected 6 jobs, got %d", len(p.Jobs()))
	}
}

func TestIsDismissed_MatchesFeatureNameCaseInsensitively(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeGraphQL(t, r)
		if !strings.Contains(body.Query, "callouts") {
			t.Errorf("unexpected query: %s", body.Query)
		}
		w.Write([]byte(`{"data":{"currentUser":{"id":"gid://gitlab/User/1","callouts":{"nodes":[{"featureName":"PIPELINE_NEEDS_HOVER_TIP","dismissedAt":"2026-01-01T00:00:00Z"}]}}}}`))
	}))
	defer srv.Close()

	adapter := gitlabprovider.NewAdapter("t", srv.URL, 5)
	dismissed, err := adapter.IsDismissed(context.Background(), "pipeline_needs_hover_tip")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dismissed {
		t.Error("expected callout to be dismissed")
	}
	dismissed, err = adapter.IsDismissed(context.Background(), "some_other_tip")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dismissed {
		t.Error("expected other callout not to be dismissed")
	}
}

func TestDismiss_SendsMutation(t *testing.T) {
	var got graphqlBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = decodeGraphQL(t, r)
		w.Write([]byte(`{"data":{"userCalloutCreate":{"errors":[],"userCallout":{"featureName":"PIPELINE_NEEDS_HOVER_TIP"}}}}`))
	}))
	defer srv.Close()

	adapter := gitlabprovider.NewAdapter("t", srv.URL, 5)
	if err := adapter.Dismiss(context.Background(), "pipeline_needs_hover_tip"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got.Query, "userCalloutCreate") {
		t.Errorf("expected userCalloutCreate mutation, got: %s", got.Query)
	}
	input, _ := got.Variables["input"].(map[string]any)
	if input["featureName"] != "pipeline_needs_hover_tip" {
		t.Errorf("unexpected mutation input: %v", got.Variables)
	}
}

func TestDismiss_PayloadErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Write([]byte(`{"data":{"userCalloutCreate":{"errors":["Feature name is invalid"],"userCallout":null}}}`))
	}))
	defer srv.Close()

	adapter := gitlabprovider.NewAdapter("t", srv.URL, 5)
	err := adapter.Dismiss(context.Background(), "bogus")
	if !errors.Is(err, gitlabprovider.ErrCalloutRejected) {
		t.Errorf("expected ErrCalloutRejected, got: %v", err)
	}
}

func TestHost(t *testing.T) {
	if h := gitlabprovider.NewAdapter("t", "", 5).Host(); h != "gitlab.com" {
		t.Errorf("expected default host gitlab.com, got '%s'", h)
	}
	if h := gitlabprovider.NewAdapter("t", "https://gitlab.example.com/", 5).Host(); h != "gitlab.example.com" {
		t.Errorf("expected gitlab.example.com, got '%s'", h)
	}
}
