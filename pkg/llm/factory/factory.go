package factory

import (
	"context"
	"fmt"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/llm"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/llm/ollama"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/llm/openai"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/llm/vertex"
)

type Settings struct {
	Provider string
	Model    string

	OpenAIKey     string
	OpenAIBaseURL string

	VertexProject string
	VertexRegion  string

	OllamaBaseURL string

	SandboxProvider string
	SandboxModel    string
}

func NewLLMProvider(ctx context.Context, s Settings) (llm.LLMProvider, error) {
	switch s.Provider {
	case "openai":
		if s.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
		return openai.NewOpenAIProvider(openai.NewClient(s.OpenAIKey, s.OpenAIBaseURL), s.Model), nil
	case "vertex":
		provider, err := vertex.NewGeminiProvider(ctx, s.VertexProject, s.VertexRegion, s.Model)
		if err != nil {
			return nil, err
		}
		return provider, nil
	case "ollama":
		baseURL := s.OllamaBaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(baseURL, s.Model), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", s.Provider)
	}
}

// NewCodeSandbox returns nil without error when code execution is switched off.
func NewCodeSandbox(s Settings) (llm.CodeSandbox, error) {
	switch s.SandboxProvider {
	case "", "none":
		return nil, nil
	case "openai":
		if s.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai code sandbox")
		}
		return openai.NewSandbox(s.OpenAIKey, s.OpenAIBaseURL, s.SandboxModel), nil
	default:
		return nil, fmt.Errorf("unsupported code sandbox provider: %s", s.SandboxProvider)
	}
}
