package vertex

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/llm"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const providerName = "vertex"

// GeminiProvider talks to Gemini models hosted on Vertex AI.
type GeminiProvider struct {
	client    *genai.Client
	modelName string
}

var _ llm.LLMProvider = &GeminiProvider{}

func NewGeminiProvider(ctx context.Context, projectID, region, modelName string) (*GeminiProvider, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("vertex: projectID and region cannot be empty")
	}

	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	return &GeminiProvider{client: client, modelName: modelName}, nil
}

func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

func (p *GeminiProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	options := llm.Apply(llm.Options{Temperature: 0.1}, opts...)

	name := p.modelName
	if options.Model != "" {
		name = options.Model
	}
	model := p.client.GenerativeModel(name)
	model.SetTemperature(float32(options.Temperature))
	if options.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(options.MaxTokens))
	}

	var system []string
	var contents []*genai.Content
	for _, msg := range history {
		switch msg.Role {
		case "system":
			system = append(system, msg.Content)
		case "assistant", "model":
			contents = append(contents, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(msg.Content)}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		}
	}
	if len(contents) == 0 {
		return "", fmt.Errorf("vertex: no user message to send")
	}
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))},
		}
	}

	session := model.StartChat()
	session.History = contents[:len(contents)-1]

	resp, err := session.SendMessage(ctx, contents[len(contents)-1].Parts...)
	if err != nil {
		return "", wrapError(err)
	}

	return textOf(resp)
}

func (p *GeminiProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return p.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

func textOf(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("vertex returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

// wrapError maps REST and gRPC failures onto HTTP-like status codes for llm.Classify.
func wrapError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &llm.ProviderError{Provider: providerName, StatusCode: apiErr.Code, Err: err}
	}

	if st, ok := status.FromError(err); ok {
		if st.Code() == codes.Canceled {
			return fmt.Errorf("%w: %v", context.Canceled, err)
		}
		return &llm.ProviderError{Provider: providerName, StatusCode: httpStatus(st.Code()), Err: err}
	}

	return err
}

func httpStatus(code codes.Code) int {
	switch code {
	case codes.ResourceExhausted:
		return 429
	case codes.Unavailable, codes.Internal, codes.Aborted, codes.Unknown:
		return 503
	case codes.DeadlineExceeded:
		return 504
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return 400
	case codes.Unauthenticated:
		return 401
	case codes.PermissionDenied:
		return 403
	case codes.NotFound:
		return 404
	default:
		return 500
	}
}
