package processor

import (
	"testing"

	"job-agent-go/internal/agent"
	"job-agent-go/internal/config"
	"job-agent-go/internal/workspace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(t *testing.T) (*Pipeline, *workspace.Workspace) {
	dir := t.TempDir()
	ws := workspace.New(dir, dir+"/output")

	mockLLM := agent.NewMockChatClient("ok", nil)
	analyzer, err := NewJobAnalyzer(mockLLM)
	require.NoError(t, err)
	cvGen, err := NewCVGenerator(mockLLM)
	require.NoError(t, err)
	letterGen, err := NewCoverLetterGenerator(mockLLM)
	require.NoError(t, err)

	profiles := NewProfileLoader(config.WorkspaceConfig{ProfilePath: dir + "/profile.json"})
	renderer := NewRenderer(testPDFConfig())

	p, err := NewPipeline(analyzer, profiles, cvGen, letterGen, renderer, ws)
	require.NoError(t, err)
	return p, ws
}

func TestPipelineValidateFirstIteration(t *testing.T) {
	p, _ := newTestPipeline(t)

	// 首轮必须带url或text
	assert.Error(t, p.Validate(PipelineInput{Comments: "x"}))
	assert.NoError(t, p.Validate(PipelineInput{Text: "job posting"}))
	assert.NoError(t, p.Validate(PipelineInput{URL: "https://example.com/job"}))
	assert.NoError(t, p.Validate(PipelineInput{Text: "job posting", Iteration: 1}))
}

func TestPipelineValidateRefinement(t *testing.T) {
	p, ws := newTestPipeline(t)

	// 细化轮次要求已有岗位分析
	err := p.Validate(PipelineInput{Iteration: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "细化")

	require.NoError(t, ws.EnsureDirs())
	require.NoError(t, ws.SaveJSON(workspace.FileJobAnalysis, sampleAnalysis("en")))
	assert.NoError(t, p.Validate(PipelineInput{Iteration: 2}))
}

func TestNewPipelineMissingDependency(t *testing.T) {
	_, err := NewPipeline(nil, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}
