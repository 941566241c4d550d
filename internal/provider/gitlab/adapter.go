package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/waabox/pipegraph/internal/domain"
)

const defaultBaseURL = "https://gitlab.com"

// pollIntervalHeader is set by GitLab on pipeline endpoints, in milliseconds.
const pollIntervalHeader = "Poll-Interval"

// Adapter implements domain.PipelineProvider, domain.PollAdvisor and
// domain.CalloutStore for GitLab. Pipeline lists come from the REST API,
// pipeline details and callouts from GraphQL.
type Adapter struct {
	token   string
	baseURL string
	limit   int
	client  *http.Client

	// pollMillis holds the last Poll-Interval received, or 0.
	pollMillis atomic.Int64
}

// Ensure Adapter fully implements its ports.
var (
	_ domain.PipelineProvider = (*Adapter)(nil)
	_ domain.PollAdvisor      = (*Adapter)(nil)
	_ domain.CalloutStore     = (*Adapter)(nil)
)

// NewAdapter creates a GitLab adapter.
// baseURL can be a self-managed GitLab instance URL; pass empty string for gitlab.com.
// limit controls how many pipelines are listed; must be >= 1.
func NewAdapter(token string, baseURL string, limit int) *Adapter {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		limit:   limit,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Host returns the host name of the GitLab instance.
func (a *Adapter) Host() string {
	u, err := url.Parse(a.baseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// ListPipelines returns the most recent pipelines for the repository.
func (a *Adapter) ListPipelines(ctx context.Context, repo domain.Repository) ([]domain.Pipeline, error) {
	projectID := url.PathEscape(repo.ProjectPath)
	apiURL := fmt.Sprintf("%s/api/v4/projects/%s/pipelines?per_page=%d", a.baseURL, projectID, a.limit)
	var runs []restPipeline
	if err := a.get(ctx, apiURL, &runs); err != nil {
		return nil, err
	}
	pipelines := make([]domain.Pipeline, len(runs))
	for i, r := range runs {
		pipelines[i] = r.toPipeline(repo.ProjectPath)
	}
	return pipelines, nil
}

// GetPipeline returns the full graph of a pipeline: stages, groups, jobs with
// their needs, and the linked upstream and downstream pipelines.
func (a *Adapter) GetPipeline(ctx context.Context, repo domain.Repository, id domain.PipelineID) (domain.Pipeline, error) {
	var resp pipelineResponse
	vars := map[string]any{"projectPath": repo.ProjectPath, "iid": string(id)}
	if err := a.graphql(ctx, pipelineDetailsQuery, vars, &resp); err != nil {
		return domain.Pipeline{}, err
	}
	return resp.toPipeline(id)
}

// PollInterval returns the refresh interval last advised by the server.
// Zero means no advice; a negative value means the server asked clients to
// stop polling.
func (a *Adapter) PollInterval() time.Duration {
	return time.Duration(a.pollMillis.Load()) * time.Millisecond
}

func (a *Adapter) trackPollInterval(h http.Header) {
	raw := h.Get(pollIntervalHeader)
	if raw == "" {
		return
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return
	}
	a.pollMillis.Store(ms)
}

func (a *Adapter) get(ctx context.Context, apiURL string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return a.do(req, target)
}

func (a *Adapter) graphql(ctx context.Context, query string, vars map[string]any, target interface{}) error {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("encoding graphql request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/graphql", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var envelope graphqlResponse
	if err := a.do(req, &envelope); err != nil {
		return err
	}
	if err := envelope.err(); err != nil {
		return err
	}
	if len(envelope.Data) == 0 {
		return fmt.Errorf("gitlab graphql: empty response")
	}
	return json.Unmarshal(envelope.Data, target)
}

func (a *Adapter) do(req *http.Request, target interface{}) error {
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()
	a.trackPollInterval(resp.Header)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("gitlab API error: %s: %w", resp.Status, domain.ErrUnauthorized)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("gitlab API error: %s: %w", resp.Status, domain.ErrNotFound)
	case resp.StatusCode >= 400:
		return fmt.Errorf("gitlab API error: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ParsePipelineDetails decodes a saved GraphQL pipeline details response, as
// returned by the /api/graphql endpoint, into a pipeline.
func ParsePipelineDetails(r io.Reader) (domain.Pipeline, error) {
	var envelope graphqlResponse
	if err := json.NewDecoder(r).Decode(&envelope); err != nil {
		return domain.Pipeline{}, fmt.Errorf("decoding pipeline details: %w", err)
	}
	if err := envelope.err(); err != nil {
		return domain.Pipeline{}, err
	}
	var resp pipelineResponse
	if err := json.Unmarshal(envelope.Data, &resp); err != nil {
		return domain.Pipeline{}, fmt.Errorf("decoding pipeline details: %w", err)
	}
	return resp.toPipeline("")
}

type restPipeline struct {
	ID        int64  `json:"id"`
	IID       int64  `json:"iid"`
	ProjectID int64  `json:"project_id"`
	Ref       string `json:"ref"`
	SHA       string `json:"sha"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func (r restPipeline) toPipeline(projectPath string) domain.Pipeline {
	created, _ := time.Parse(time.RFC3339, r.CreatedAt)
	updated, _ := time.Parse(time.RFC3339, r.UpdatedAt)
	var duration time.Duration
	if !created.IsZero() && !updated.IsZero() {
		duration = updated.Sub(created)
	}
	return domain.Pipeline{
		ID:          strconv.FormatInt(r.ID, 10),
		IID:         domain.PipelineID(strconv.FormatInt(r.IID, 10)),
		ProjectID:   strconv.FormatInt(r.ProjectID, 10),
		ProjectPath: projectPath,
		Branch:      r.Ref,
		CommitSHA:   r.SHA,
		Status:      domain.NewStatus(mapStatus(r.Status)),
		CreatedAt:   created,
		Duration:    duration,
	}
}

// mapStatus maps a GitLab status onto a StatusKind; states the engine does
// not know render as pending.
func mapStatus(status string) domain.StatusKind {
	kind, err := domain.ParseStatusKind(strings.ToLower(status))
	if err != nil {
		return domain.StatusPending
	}
	return kind
}
