package processor

import (
	"context"
	"testing"

	"job-agent-go/internal/agent"
	"job-agent-go/internal/types"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildLengthConstraint(t *testing.T) {
	gen, err := NewCoverLetterGenerator(agent.NewMockChatClient("letter", nil))
	require.NoError(t, err)

	constraint, err := gen.BuildLengthConstraint(300, 0)
	require.NoError(t, err)
	assert.Equal(t, "approximately 300 words", constraint)

	constraint, err = gen.BuildLengthConstraint(0, 1500)
	require.NoError(t, err)
	assert.Equal(t, "approximately 1500 characters", constraint)

	constraint, err = gen.BuildLengthConstraint(0, 0)
	require.NoError(t, err)
	assert.Equal(t, "approximately 300-400 words", constraint)

	// 两种限制互斥
	_, err = gen.BuildLengthConstraint(300, 1500)
	assert.Error(t, err)
}

func TestCoverLetterGenerateMessageLayout(t *testing.T) {
	mockLLM := agent.NewMockChatClient("## Backend Engineer at Acme\n\nDear team...", nil)
	gen, err := NewCoverLetterGenerator(mockLLM)
	require.NoError(t, err)

	letter, err := gen.Generate(context.Background(), sampleAnalysis("en"), "# Jane Doe\nTailored CV body", types.LetterOptions{
		GenerateOptions: types.GenerateOptions{Comments: "mention the migration project"},
		MaxWords:        250,
	})
	require.NoError(t, err)
	assert.Contains(t, letter, "Backend Engineer at Acme")

	// 定制简历进入system消息，岗位内容进入user消息
	messages := mockLLM.LastMessages()
	require.Len(t, messages, 3)
	assert.Equal(t, schema.System, messages[0].Role)
	assert.Equal(t, schema.System, messages[1].Role)
	assert.Contains(t, messages[1].Content, "Tailored CV body")
	assert.Equal(t, schema.User, messages[2].Role)
	assert.Contains(t, messages[2].Content, "approximately 250 words")
	assert.Contains(t, messages[2].Content, "mention the migration project")
	assert.Contains(t, messages[2].Content, "## [Job Title] at [Company Name]")
}

func TestCoverLetterGenerateSpanish(t *testing.T) {
	mockLLM := agent.NewMockChatClient("carta", nil)
	gen, err := NewCoverLetterGenerator(mockLLM)
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), sampleAnalysis("es"), "cv", types.LetterOptions{})
	require.NoError(t, err)

	userPrompt := mockLLM.LastMessages()[2].Content
	assert.Contains(t, userPrompt, "SPANISH")
	assert.Contains(t, userPrompt, "language code: 'es'")
}

func TestCoverLetterGenerateRequiresInputs(t *testing.T) {
	gen, err := NewCoverLetterGenerator(agent.NewMockChatClient("letter", nil))
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), nil, "cv", types.LetterOptions{})
	assert.Error(t, err)

	_, err = gen.Generate(context.Background(), sampleAnalysis("en"), "   ", types.LetterOptions{})
	assert.Error(t, err)
}

func TestCoverLetterGenerateConstraintConflict(t *testing.T) {
	gen, err := NewCoverLetterGenerator(agent.NewMockChatClient("letter", nil))
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), sampleAnalysis("en"), "cv", types.LetterOptions{
		MaxWords: 300,
		MaxChars: 1500,
	})
	assert.Error(t, err)
}

func TestWithDefaultLength(t *testing.T) {
	gen, err := NewCoverLetterGenerator(agent.NewMockChatClient("letter", nil), WithDefaultLength("approximately 200 words"))
	require.NoError(t, err)

	constraint, err := gen.BuildLengthConstraint(0, 0)
	require.NoError(t, err)
	assert.Equal(t, "approximately 200 words", constraint)
}
