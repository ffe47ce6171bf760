package processor

import (
	"context"
	"testing"

	"job-agent-go/internal/agent"
	"job-agent-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAnalysis(language string) *types.JobAnalysis {
	return &types.JobAnalysis{
		Language:       language,
		JobTitle:       "Backend Engineer",
		Company:        "Acme",
		RequiredSkills: []string{"Go"},
		Tone:           "technical",
	}
}

func sampleProfile() *types.CandidateProfile {
	return &types.CandidateProfile{
		PersonalInfo: types.PersonalInfo{
			Name:  "Jane Doe",
			Email: "jane@example.com",
		},
		ProfessionalTitle: "Software Engineer",
		Summary:           "Ten years building backend services.",
	}
}

func TestCVGenerateSplitsResponse(t *testing.T) {
	raw := "# Jane Doe\n## Professional Summary\nExperienced engineer.\n\n---GAP_ANALYSIS_SEPARATOR---\n## Gap Analysis\n- Missing Kubernetes"
	mockLLM := agent.NewMockChatClient(raw, nil)
	gen, err := NewCVGenerator(mockLLM)
	require.NoError(t, err)

	result, err := gen.Generate(context.Background(), sampleAnalysis("en"), sampleProfile(), types.GenerateOptions{Comments: "emphasize backend"})
	require.NoError(t, err)

	assert.Equal(t, "# Jane Doe\n## Professional Summary\nExperienced engineer.", result.CVContent)
	assert.Equal(t, "## Gap Analysis\n- Missing Kubernetes", result.GapAnalysis)
	assert.Equal(t, SplitMethodSeparator, result.Method)
}

func TestCVGeneratePromptCarriesLanguageAndComments(t *testing.T) {
	mockLLM := agent.NewMockChatClient("cv body", nil)
	gen, err := NewCVGenerator(mockLLM)
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), sampleAnalysis("es"), sampleProfile(), types.GenerateOptions{Comments: "highlight the fintech project"})
	require.NoError(t, err)

	messages := mockLLM.LastMessages()
	require.Len(t, messages, 1)
	prompt := messages[0].Content
	assert.Contains(t, prompt, "SPANISH")
	assert.Contains(t, prompt, "language code: 'es'")
	assert.Contains(t, prompt, "highlight the fintech project")
	assert.Contains(t, prompt, "Jane Doe")
	assert.Contains(t, prompt, GapSeparator)
	// 首轮生成不带细化上下文
	assert.NotContains(t, prompt, "REFINEMENT ITERATION")
}

func TestCVGenerateRefinementContext(t *testing.T) {
	mockLLM := agent.NewMockChatClient("cv body", nil)
	gen, err := NewCVGenerator(mockLLM)
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), sampleAnalysis("en"), sampleProfile(), types.GenerateOptions{
		Comments:           "same angle",
		Iteration:          2,
		RefinementFeedback: "shorten the summary",
	})
	require.NoError(t, err)

	prompt := mockLLM.LastMessages()[0].Content
	assert.Contains(t, prompt, "REFINEMENT ITERATION 2")
	assert.Contains(t, prompt, "shorten the summary")
}

func TestCVGenerateGithubProjectsSection(t *testing.T) {
	mockLLM := agent.NewMockChatClient("cv body", nil)
	gen, err := NewCVGenerator(mockLLM)
	require.NoError(t, err)

	profile := sampleProfile()
	profile.GithubProjects = []types.RepoSummary{
		{Name: "job-agent", Technologies: []string{"Go"}, HTMLURL: "https://github.com/jane/job-agent", IsRecent: true},
	}

	_, err = gen.Generate(context.Background(), sampleAnalysis("en"), profile, types.GenerateOptions{})
	require.NoError(t, err)

	prompt := mockLLM.LastMessages()[0].Content
	assert.Contains(t, prompt, "RELEVANT GITHUB PROJECTS")
	assert.Contains(t, prompt, "job-agent")
}

func TestCVGenerateNilInputs(t *testing.T) {
	gen, err := NewCVGenerator(agent.NewMockChatClient("cv", nil))
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), nil, sampleProfile(), types.GenerateOptions{})
	assert.Error(t, err)

	_, err = gen.Generate(context.Background(), sampleAnalysis("en"), nil, types.GenerateOptions{})
	assert.Error(t, err)
}

func TestLanguageName(t *testing.T) {
	assert.Equal(t, "SPANISH", LanguageName("es"))
	assert.Equal(t, "PORTUGUESE", LanguageName("pt"))
	// 未知语言码回退英语
	assert.Equal(t, "ENGLISH", LanguageName("ja"))
	assert.Equal(t, "ENGLISH", LanguageName(""))
}
