package pipeline

import (
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// Generator produces draft content from research material. It is an
// external collaborator; the orchestrator treats the call as opaque and
// applies no retry to it.
type Generator interface {
	GenerateDraft(ctx context.Context, topic, research string) (string, error)
}

const defaultDraftModel = openai.GPT4oMini

// OpenAIGenerator drafts content through the OpenAI chat completion API.
// The client is constructed lazily from OPENAI_API_KEY at call time, so a
// missing key surfaces as a draft-step failure rather than a startup crash.
type OpenAIGenerator struct {
	// Model overrides the default completion model when set.
	Model string

	client *openai.Client
}

// GenerateDraft implements Generator.
func (g *OpenAIGenerator) GenerateDraft(ctx context.Context, topic, research string) (string, error) {
	if g.client == nil {
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return "", fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
		g.client = openai.NewClient(apiKey)
	}

	model := g.Model
	if model == "" {
		model = defaultDraftModel
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are a writing assistant. Draft a short, well-structured article on the given topic using the provided research notes.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Topic: %s\n\nResearch notes:\n%s", topic, research),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("draft generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("draft generation returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
