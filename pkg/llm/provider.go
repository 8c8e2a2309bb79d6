package llm

import (
	"context"
)

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
}

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // Override default model
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// Apply resolves options on top of the given defaults.
func Apply(defaults Options, opts ...Option) Options {
	for _, opt := range opts {
		opt(&defaults)
	}
	return defaults
}

// LLMProvider defines the contract for any LLM backend
type LLMProvider interface {
	// Chat sends a chat history to the model and returns the response
	Chat(ctx context.Context, history []Message, options ...Option) (string, error)

	// Generate sends a single prompt to the model (convenience method)
	Generate(ctx context.Context, prompt string, options ...Option) (string, error)
}

// Artifact is a file handed to the code sandbox, e.g. one exported table.
type Artifact struct {
	Name string
	Data []byte
}

// UploadedArtifact is the provider handle of an uploaded Artifact.
type UploadedArtifact struct {
	ID   string
	Name string
}

// ExecutionOutput separates what the executed code printed from the model's prose.
type ExecutionOutput struct {
	Outputs []string
	Text    []string
}

// CodeSandbox runs model-generated code against uploaded files.
type CodeSandbox interface {
	Upload(ctx context.Context, artifact Artifact) (UploadedArtifact, error)
	Delete(ctx context.Context, id string) error
	Execute(ctx context.Context, prompt string, files []UploadedArtifact) (*ExecutionOutput, error)
}
