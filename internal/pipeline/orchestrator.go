// Package pipeline sequences the research → draft → translate workflow over
// authenticated MCP tool clients, with per-step retry and fallback policy.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-pipeline/internal/agent"
)

// ToolCaller is the slice of the agent client the orchestrator depends on.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error)
	Name() string
}

// Config wires the orchestrator to its collaborators.
type Config struct {
	// Research serves the search tool.
	Research ToolCaller

	// Translator serves the primary translation tool.
	Translator ToolCaller

	// TranslatorFallback optionally serves the secondary translation tool,
	// which takes differently named arguments.
	TranslatorFallback ToolCaller

	// Generator drafts content from research notes.
	Generator Generator

	Logger *agent.Logger

	// Tool names; defaults cover the reference servers.
	SearchTool            string
	TranslateTool         string
	FallbackTranslateTool string

	// Research retry policy.
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

func (c *Config) withDefaults() {
	if c.SearchTool == "" {
		c.SearchTool = "search"
	}
	if c.TranslateTool == "" {
		c.TranslateTool = "translate_text"
	}
	if c.FallbackTranslateTool == "" {
		c.FallbackTranslateTool = "translate"
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
}

// Orchestrator runs the three-stage content pipeline. Stages execute
// strictly in sequence: each stage's output feeds the next.
type Orchestrator struct {
	cfg    Config
	logger *agent.Logger
}

// New creates an orchestrator from a configuration.
func New(cfg Config) *Orchestrator {
	cfg.withDefaults()
	if cfg.Logger == nil {
		cfg.Logger = agent.NewLoggerWithWriter(false, false, false, io.Discard)
	}
	return &Orchestrator{
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Run executes research → draft → translate for the query and returns the
// aggregated result. A failed research or draft step halts the pipeline;
// translation failures degrade to fallback output and never abort the
// workflow. Failures outside the steps are reported as a workflow-scoped
// step so the caller always gets a terminal result.
func (o *Orchestrator) Run(ctx context.Context, query, targetLang string) (result *PipelineResult) {
	result = &PipelineResult{RunID: uuid.NewString()}

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Steps = append(result.Steps, StepResult{
				Step: StepWorkflow,
				Err:  fmt.Errorf("workflow failure: %v", r),
			})
		}
	}()

	research := o.runResearch(ctx, query)
	result.Steps = append(result.Steps, research)
	if !research.Success {
		o.finishFailed(result, research)
		return result
	}

	draft := o.runDraft(ctx, query, research)
	result.Steps = append(result.Steps, draft)
	if !draft.Success {
		o.finishFailed(result, draft)
		return result
	}

	translate := o.runTranslate(ctx, draft, targetLang)
	result.Steps = append(result.Steps, translate)

	result.Success = true
	result.Steps = append(result.Steps, StepResult{
		Step:    StepWorkflow,
		Success: true,
		Data:    map[string]any{"workflow_status": "complete"},
	})
	return result
}

func (o *Orchestrator) finishFailed(result *PipelineResult, failed StepResult) {
	result.Success = false
	result.Steps = append(result.Steps, StepResult{
		Step: StepWorkflow,
		Err:  fmt.Errorf("%s step failed: %w", failed.Step, failed.Err),
	})
}

// runResearch invokes the search tool under the retry policy. On
// exhaustion, the terminal error is classified as transient or permanent so
// the caller knows whether retrying the whole workflow later is worthwhile.
func (o *Orchestrator) runResearch(ctx context.Context, query string) StepResult {
	o.logger.Info("Research: searching for %q...", query)

	result, err := CallWithRetry(ctx, func(ctx context.Context) (*mcp.CallToolResult, error) {
		return o.cfg.Research.CallTool(ctx, o.cfg.SearchTool, map[string]interface{}{
			"query": query,
		})
	}, o.cfg.RetryAttempts, o.cfg.RetryBaseDelay)

	if err == nil && result.IsError {
		// Tool-side failure delivered as result content; not retried, the
		// arguments won't get better.
		err = fmt.Errorf("search tool error: %s", extractText(result))
	}

	if err != nil {
		class := Classify(err)
		o.logger.Error("Research failed after %d attempts: %v (%s, retryable=%t)",
			o.cfg.RetryAttempts, err, class.Type, class.Retryable)
		return StepResult{
			Step: StepResearch,
			Err:  err,
			Metadata: map[string]any{
				"error_type": string(class.Type),
				"retryable":  class.Retryable,
			},
		}
	}

	text := extractText(result)
	o.logger.Success("Research complete (%d characters)", len(text))
	return StepResult{
		Step:    StepResearch,
		Success: true,
		Data: map[string]any{
			"query":   query,
			"results": text,
		},
	}
}

// runDraft forwards the research text to the content-generation
// collaborator. No retry: drafting is expensive and the external call is
// not guaranteed idempotent.
func (o *Orchestrator) runDraft(ctx context.Context, topic string, research StepResult) StepResult {
	notes, _ := research.Data["results"].(string)

	o.logger.Info("Draft: generating content...")
	draft, err := o.cfg.Generator.GenerateDraft(ctx, topic, notes)
	if err != nil {
		o.logger.Error("Draft failed: %v", err)
		return StepResult{Step: StepDraft, Err: err}
	}

	o.logger.Success("Draft complete (%d characters)", len(draft))
	return StepResult{
		Step:    StepDraft,
		Success: true,
		Data:    map[string]any{"draft": draft},
	}
}

// runTranslate tries the primary translation tool, then the secondary
// provider, and finally degrades to the untranslated text. The step always
// reports success: the pipeline's contract is "always produce usable output,
// translated or original", and every degradation is flagged in the data so
// it never happens silently.
func (o *Orchestrator) runTranslate(ctx context.Context, draft StepResult, targetLang string) StepResult {
	text, _ := draft.Data["draft"].(string)

	o.logger.Info("Translate: translating to %q...", targetLang)
	translated, primaryErr := o.callTranslation(ctx, o.cfg.Translator, o.cfg.TranslateTool, map[string]interface{}{
		"text":            text,
		"target_language": targetLang,
	})
	if primaryErr == nil {
		o.logger.Success("Translation complete")
		return StepResult{
			Step:    StepTranslate,
			Success: true,
			Data: map[string]any{
				"original_text":   text,
				"translated_text": translated,
				"target_language": targetLang,
			},
		}
	}
	o.logger.Warning("Primary translation failed: %v", primaryErr)

	if o.cfg.TranslatorFallback != nil {
		o.logger.Info("Translate: trying fallback provider %q...", o.cfg.TranslatorFallback.Name())
		translated, fallbackErr := o.callTranslation(ctx, o.cfg.TranslatorFallback, o.cfg.FallbackTranslateTool, map[string]interface{}{
			"input": text,
			"lang":  targetLang,
		})
		if fallbackErr == nil {
			o.logger.Success("Fallback translation complete")
			return StepResult{
				Step:    StepTranslate,
				Success: true,
				Data: map[string]any{
					"original_text":   text,
					"translated_text": translated,
					"target_language": targetLang,
					"fallback_used":   o.cfg.TranslatorFallback.Name(),
					"primary_error":   primaryErr.Error(),
				},
			}
		}
		o.logger.Warning("Fallback translation failed: %v", fallbackErr)
	}

	// Last resort: return the original text so the workflow still produces
	// usable output.
	o.logger.Warning("Translation unavailable, returning original text")
	return StepResult{
		Step:    StepTranslate,
		Success: true,
		Data: map[string]any{
			"original_text":    text,
			"translated_text":  text,
			"fallback_applied": true,
			"target_language":  targetLang,
			"error":            primaryErr.Error(),
		},
	}
}

func (o *Orchestrator) callTranslation(ctx context.Context, caller ToolCaller, tool string, args map[string]interface{}) (string, error) {
	result, err := caller.CallTool(ctx, tool, args)
	if err != nil {
		return "", err
	}
	if result.IsError {
		return "", fmt.Errorf("%s tool error: %s", tool, extractText(result))
	}
	return extractText(result), nil
}

// extractText joins the text content blocks of a tool result. Non-text
// blocks are skipped; the orchestrator only pattern-matches text content.
func extractText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}

	var parts []string
	for _, content := range result.Content {
		if textContent, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, textContent.Text)
		}
	}
	return strings.Join(parts, "\n")
}
