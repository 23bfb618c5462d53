package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeToolCaller scripts the behavior of a remote tool server.
type fakeToolCaller struct {
	name  string
	calls int
	fn    func(tool string, args map[string]interface{}) (*mcp.CallToolResult, error)
}

func (f *fakeToolCaller) CallTool(ctx context.Context, tool string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	f.calls++
	return f.fn(tool, args)
}

func (f *fakeToolCaller) Name() string { return f.name }

// fakeGenerator scripts the draft collaborator.
type fakeGenerator struct {
	calls int
	draft string
	err   error
}

func (f *fakeGenerator) GenerateDraft(ctx context.Context, topic, research string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.draft, nil
}

func textResult(text string) *mcp.CallToolResult {
	return mcp.NewToolResultText(text)
}

func succeedingTool(name, text string) *fakeToolCaller {
	return &fakeToolCaller{
		name: name,
		fn: func(tool string, args map[string]interface{}) (*mcp.CallToolResult, error) {
			return textResult(text), nil
		},
	}
}

func failingTool(name string, err error) *fakeToolCaller {
	return &fakeToolCaller{
		name: name,
		fn: func(tool string, args map[string]interface{}) (*mcp.CallToolResult, error) {
			return nil, err
		},
	}
}

func testConfig(research, translator, fallback *fakeToolCaller, gen *fakeGenerator) Config {
	cfg := Config{
		Research:       research,
		Translator:     translator,
		Generator:      gen,
		RetryAttempts:  3,
		RetryBaseDelay: time.Millisecond,
	}
	if fallback != nil {
		cfg.TranslatorFallback = fallback
	}
	return cfg
}

func TestPipelineFullSuccess(t *testing.T) {
	research := succeedingTool("search", "golang is a language")
	translator := succeedingTool("translate", "golang es un lenguaje")
	gen := &fakeGenerator{draft: "Go article"}

	result := New(testConfig(research, translator, nil, gen)).Run(context.Background(), "golang", "es")

	assert.True(t, result.Success)
	assert.NotEmpty(t, result.RunID)

	researchStep, ok := result.StepFor(StepResearch)
	require.True(t, ok)
	assert.True(t, researchStep.Success)
	assert.Equal(t, "golang is a language", researchStep.Data["results"])

	draftStep, ok := result.StepFor(StepDraft)
	require.True(t, ok)
	assert.True(t, draftStep.Success)
	assert.Equal(t, "Go article", draftStep.Data["draft"])

	translateStep, ok := result.StepFor(StepTranslate)
	require.True(t, ok)
	assert.True(t, translateStep.Success)
	assert.Equal(t, "golang es un lenguaje", translateStep.Data["translated_text"])
	assert.NotContains(t, translateStep.Data, "fallback_used")
	assert.NotContains(t, translateStep.Data, "fallback_applied")

	workflowStep, ok := result.StepFor(StepWorkflow)
	require.True(t, ok)
	assert.True(t, workflowStep.Success)
	assert.Equal(t, "complete", workflowStep.Data["workflow_status"])
}

func TestPipelineResearchTimeoutHaltsWithClassification(t *testing.T) {
	research := failingTool("search", errors.New("request timeout"))
	translator := succeedingTool("translate", "unused")
	gen := &fakeGenerator{draft: "unused"}

	result := New(testConfig(research, translator, nil, gen)).Run(context.Background(), "golang", "es")

	assert.False(t, result.Success)

	researchStep, ok := result.StepFor(StepResearch)
	require.True(t, ok)
	assert.False(t, researchStep.Success)
	assert.Equal(t, "transient", researchStep.Metadata["error_type"])
	assert.Equal(t, true, researchStep.Metadata["retryable"])

	// The retry policy runs its attempts before the classification
	assert.Equal(t, 3, research.calls)

	// Draft and translate are never invoked
	assert.Equal(t, 0, gen.calls)
	assert.Equal(t, 0, translator.calls)

	_, reachedDraft := result.StepFor(StepDraft)
	assert.False(t, reachedDraft)
}

func TestPipelineResearchPermanentError(t *testing.T) {
	research := failingTool("search", errors.New("invalid payload"))
	translator := succeedingTool("translate", "unused")
	gen := &fakeGenerator{draft: "unused"}

	result := New(testConfig(research, translator, nil, gen)).Run(context.Background(), "golang", "es")

	assert.False(t, result.Success)

	researchStep, ok := result.StepFor(StepResearch)
	require.True(t, ok)
	assert.Equal(t, "permanent", researchStep.Metadata["error_type"])
	assert.Equal(t, false, researchStep.Metadata["retryable"])
}

func TestPipelineDraftFailureHalts(t *testing.T) {
	research := succeedingTool("search", "notes")
	translator := succeedingTool("translate", "unused")
	gen := &fakeGenerator{err: errors.New("OPENAI_API_KEY environment variable not set")}

	result := New(testConfig(research, translator, nil, gen)).Run(context.Background(), "golang", "es")

	assert.False(t, result.Success)

	draftStep, ok := result.StepFor(StepDraft)
	require.True(t, ok)
	assert.False(t, draftStep.Success)
	assert.ErrorContains(t, draftStep.Err, "OPENAI_API_KEY")

	// Translation is never attempted
	assert.Equal(t, 0, translator.calls)
}

func TestPipelineTranslationFallbackProvider(t *testing.T) {
	research := succeedingTool("search", "notes")
	primaryErr := errors.New("translate_text unavailable")
	translator := failingTool("translate", primaryErr)
	fallback := succeedingTool("translate-fallback", "texto traducido")
	gen := &fakeGenerator{draft: "draft text"}

	result := New(testConfig(research, translator, fallback, gen)).Run(context.Background(), "golang", "es")

	assert.True(t, result.Success, "fallback translation keeps the workflow successful")

	translateStep, ok := result.StepFor(StepTranslate)
	require.True(t, ok)
	assert.True(t, translateStep.Success)
	assert.Equal(t, "texto traducido", translateStep.Data["translated_text"])
	assert.Equal(t, "translate-fallback", translateStep.Data["fallback_used"])
	assert.Equal(t, primaryErr.Error(), translateStep.Data["primary_error"])
}

func TestPipelineTranslationFallbackUsesDifferentArguments(t *testing.T) {
	research := succeedingTool("search", "notes")
	translator := failingTool("translate", errors.New("unavailable"))
	gen := &fakeGenerator{draft: "draft text"}

	var fallbackArgs map[string]interface{}
	fallback := &fakeToolCaller{
		name: "translate-fallback",
		fn: func(tool string, args map[string]interface{}) (*mcp.CallToolResult, error) {
			fallbackArgs = args
			return textResult("texto"), nil
		},
	}

	New(testConfig(research, translator, fallback, gen)).Run(context.Background(), "golang", "es")

	require.NotNil(t, fallbackArgs)
	assert.Equal(t, "draft text", fallbackArgs["input"])
	assert.Equal(t, "es", fallbackArgs["lang"])
}

func TestPipelineAllTranslationPathsFail(t *testing.T) {
	research := succeedingTool("search", "notes")
	primaryErr := errors.New("primary down")
	translator := failingTool("translate", primaryErr)
	fallback := failingTool("translate-fallback", errors.New("secondary down"))
	gen := &fakeGenerator{draft: "draft text"}

	result := New(testConfig(research, translator, fallback, gen)).Run(context.Background(), "golang", "es")

	assert.True(t, result.Success, "translation fallback never aborts the workflow")

	translateStep, ok := result.StepFor(StepTranslate)
	require.True(t, ok)
	assert.True(t, translateStep.Success)
	assert.Equal(t, map[string]any{
		"original_text":    "draft text",
		"translated_text":  "draft text",
		"fallback_applied": true,
		"target_language":  "es",
		"error":            primaryErr.Error(),
	}, translateStep.Data)
}

func TestPipelineSingleProviderDegradesToOriginalText(t *testing.T) {
	research := succeedingTool("search", "notes")
	translator := failingTool("translate", errors.New("primary down"))
	gen := &fakeGenerator{draft: "draft text"}

	result := New(testConfig(research, translator, nil, gen)).Run(context.Background(), "golang", "es")

	assert.True(t, result.Success)

	translateStep, _ := result.StepFor(StepTranslate)
	assert.Equal(t, "draft text", translateStep.Data["translated_text"])
	assert.Equal(t, true, translateStep.Data["fallback_applied"])
}

func TestPipelineToolSideErrorIsNotRetried(t *testing.T) {
	research := &fakeToolCaller{
		name: "search",
		fn: func(tool string, args map[string]interface{}) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError("invalid payload: bad query"), nil
		},
	}
	translator := succeedingTool("translate", "unused")
	gen := &fakeGenerator{draft: "unused"}

	result := New(testConfig(research, translator, nil, gen)).Run(context.Background(), "golang", "es")

	assert.False(t, result.Success)
	// A tool-side error is delivered as a successful transport call, so the
	// retry policy sees a success and runs once.
	assert.Equal(t, 1, research.calls)

	researchStep, _ := result.StepFor(StepResearch)
	assert.ErrorContains(t, researchStep.Err, "invalid payload")
	assert.Equal(t, "permanent", researchStep.Metadata["error_type"])
}

func TestPipelinePassesQueryToSearchTool(t *testing.T) {
	var searchArgs map[string]interface{}
	var searchTool string
	research := &fakeToolCaller{
		name: "search",
		fn: func(tool string, args map[string]interface{}) (*mcp.CallToolResult, error) {
			searchTool = tool
			searchArgs = args
			return textResult("notes"), nil
		},
	}
	translator := succeedingTool("translate", "texto")
	gen := &fakeGenerator{draft: "draft"}

	New(testConfig(research, translator, nil, gen)).Run(context.Background(), "history of go", "es")

	assert.Equal(t, "search", searchTool)
	assert.Equal(t, "history of go", searchArgs["query"])
}

func TestStepResultInvariants(t *testing.T) {
	research := failingTool("search", errors.New("boom"))
	translator := succeedingTool("translate", "texto")
	gen := &fakeGenerator{draft: "draft"}

	result := New(testConfig(research, translator, nil, gen)).Run(context.Background(), "q", "es")

	for _, step := range result.Steps {
		if step.Success {
			assert.NotNil(t, step.Data, "step %s: success implies data", step.Step)
		} else {
			assert.Error(t, step.Err, fmt.Sprintf("step %s: failure implies error", step.Step))
		}
	}
}
