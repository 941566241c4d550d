package snapshot_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waabox/pipegraph/internal/domain"
	"github.com/waabox/pipegraph/internal/graph"
	"github.com/waabox/pipegraph/internal/snapshot"
)

func stageNames(p domain.Pipeline) []string {
	names := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		names[i] = s.Name
	}
	return names
}

func layerGroupNames(layers []graph.Layer) [][]string {
	out := make([][]string, len(layers))
	for i, l := range layers {
		for _, g := range l.Groups {
			out[i] = append(out[i], g.Name)
		}
	}
	return out
}

func TestLoadFile_CIDefinition(t *testing.T) {
	p, err := snapshot.LoadFile("testdata/gitlab-ci.yml")
	require.NoError(t, err)

	assert.Equal(t, "gitlab-ci.yml", p.ID)
	assert.True(t, p.UsesNeeds)
	assert.Equal(t, []string{"build", "test", "deploy"}, stageNames(p))

	test := p.Stages[1]
	require.Len(t, test.Groups, 2)
	assert.Equal(t, "rspec", test.Groups[0].Name)
	assert.Equal(t, 2, test.Groups[0].Size)
	assert.Equal(t, "rspec 1/2", test.Groups[0].Jobs[0].Name)
	assert.Equal(t, []string{"build_a"}, test.Groups[0].Jobs[1].Needs)
	assert.Empty(t, test.Groups[1].Jobs[0].Needs)

	deploy := p.Stages[2].Groups[0].Jobs[0]
	assert.Equal(t, domain.JobKindBridge, deploy.Kind)
	assert.Equal(t, domain.StatusManual, deploy.Status.Kind)
	assert.Equal(t, []string{"rspec", "lint"}, deploy.Needs)
}

func TestLoadFile_CIDefinitionLayers(t *testing.T) {
	p, err := snapshot.LoadFile("testdata/gitlab-ci.yml")
	require.NoError(t, err)

	layers, err := graph.ListByLayers(p)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"build_a", "build_b"},
		{"rspec", "lint"},
		{"deploy"},
	}, layerGroupNames(layers))
}

func TestLoadFile_GraphQLSnapshot(t *testing.T) {
	p, err := snapshot.LoadFile("testdata/pipeline.json")
	require.NoError(t, err)

	assert.Equal(t, domain.PipelineID("42"), p.IID)
	assert.Equal(t, []string{"build", "test"}, stageNames(p))
	assert.Equal(t, []string{"compile"}, p.Stages[1].Groups[0].Jobs[0].Needs)
}

func TestLoadFile_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))
	_, err := snapshot.LoadFile(path)
	assert.Error(t, err)
}

func TestParseCI_DefaultStages(t *testing.T) {
	p, err := snapshot.ParseCI([]byte(`
compile:
  stage: build
  script: make
unit:
  script: make test
`))
	require.NoError(t, err)
	assert.False(t, p.UsesNeeds)
	assert.Equal(t, []string{"build", "test"}, stageNames(p))
	assert.Equal(t, "test", p.Stages[1].Groups[0].Jobs[0].Stage)
}

func TestParseCI_PreAndPostStages(t *testing.T) {
	p, err := snapshot.ParseCI([]byte(`
cleanup:
  stage: .post
  script: rm -rf tmp
setup:
  stage: .pre
  script: mkdir tmp
unit:
  script: make test
`))
	require.NoError(t, err)
	assert.Equal(t, []string{".pre", "test", ".post"}, stageNames(p))
}

func TestParseCI_MatrixJobs(t *testing.T) {
	p, err := snapshot.ParseCI([]byte(`
stages: [deploy]
deploy:
  stage: deploy
  script: ./deploy
  parallel:
    matrix:
      - PROVIDER: aws
        STACK: [monitoring, app]
      - PROVIDER: gcp
        STACK: data
`))
	require.NoError(t, err)
	require.Len(t, p.Stages, 1)
	group := p.Stages[0].Groups[0]
	assert.Equal(t, "deploy", group.Name)
	assert.Equal(t, 3, group.Size)

	names := make([]string, len(group.Jobs))
	for i, j := range group.Jobs {
		names[i] = j.Name
	}
	assert.Equal(t, []string{
		"deploy: [aws, monitoring]",
		"deploy: [aws, app]",
		"deploy: [gcp, data]",
	}, names)
}

func TestParseCI_DelayedJobIsScheduled(t *testing.T) {
	p, err := snapshot.ParseCI([]byte(`
rollout:
  stage: deploy
  when: delayed
  start_in: 30 minutes
  script: ./rollout
`))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusScheduled, p.Stages[0].Groups[0].Jobs[0].Status.Kind)
}

func TestParseCI_ReportsEveryUndefinedStage(t *testing.T) {
	_, err := snapshot.ParseCI([]byte(`
stages: [build]
a:
  stage: verify
  script: x
b:
  stage: release
  script: y
`))
	require.Error(t, err)
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 2)
}

func TestParseCI_InvalidYAML(t *testing.T) {
	_, err := snapshot.ParseCI([]byte("stages: [build\n  - oops"))
	assert.Error(t, err)
}
