package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/llm"

	goopenai "github.com/sashabaranov/go-openai"
)

const providerName = "openai"

type OpenAIProvider struct {
	client    *goopenai.Client
	modelName string
}

// Ensure OpenAIProvider implements LLMProvider
var _ llm.LLMProvider = &OpenAIProvider{}

// NewClient builds the SDK client shared by the provider, the sandbox and the embedder.
// An empty baseURL keeps the public endpoint.
func NewClient(apiKey, baseURL string) *goopenai.Client {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return goopenai.NewClientWithConfig(cfg)
}

func NewOpenAIProvider(client *goopenai.Client, modelName string) *OpenAIProvider {
	return &OpenAIProvider{client: client, modelName: modelName}
}

func (p *OpenAIProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	options := llm.Apply(llm.Options{Temperature: 0.1}, opts...)

	model := p.modelName
	if options.Model != "" {
		model = options.Model
	}

	messages := make([]goopenai.ChatCompletionMessage, 0, len(history))
	for _, msg := range history {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    mapRole(msg.Role),
			Content: msg.Content,
		})
	}

	req := goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(options.Temperature),
	}
	if options.MaxTokens > 0 {
		req.MaxTokens = options.MaxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices for model %s", model)
	}

	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return p.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

func mapRole(role string) string {
	switch role {
	case "system":
		return goopenai.ChatMessageRoleSystem
	case "assistant", "model":
		return goopenai.ChatMessageRoleAssistant
	default:
		return goopenai.ChatMessageRoleUser
	}
}

// wrapError exposes the HTTP status of SDK errors to llm.Classify.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return &llm.ProviderError{Provider: providerName, StatusCode: apiErr.HTTPStatusCode, Err: err}
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return &llm.ProviderError{Provider: providerName, StatusCode: reqErr.HTTPStatusCode, Err: err}
	}

	return err
}
