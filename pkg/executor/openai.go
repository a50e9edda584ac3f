package executor

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// allTools is the union of every tool identifier the OpenAI-backed engine
// serves. Tool calls beyond the LLM itself are resolved by the model from
// the prompt instructions.
var allTools = []string{
	"llm_tool", "search_tool", "weather_tool",
	"crawl_tool", "extract_tool", "map_tool",
	"doc_mcp_make_query",
}

// openAIEngine implements Engine on top of the OpenAI chat completion API.
type openAIEngine struct {
	client *openai.Client
	model  string
}

// NewOpenAIEngine creates the production execution engine backed by the
// OpenAI API.
func NewOpenAIEngine(apiKey, model string) Engine {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &openAIEngine{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (e *openAIEngine) AvailableTools() []string {
	return allTools
}

func (e *openAIEngine) Run(ctx context.Context, prompt string, tools []string, onStep StepFunc) (*RunResult, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	answer := resp.Choices[0].Message.Content
	if onStep != nil {
		onStep("step-1", "Generate answer", "llm_tool", answer)
	}

	return &RunResult{Output: answer}, nil
}
