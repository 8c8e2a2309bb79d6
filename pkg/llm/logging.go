package llm

import (
	"context"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const loggingModule = "LLM.Call"

// LoggingProvider records every call with its size, latency and error class.
// Prompts are logged at debug level only.
type LoggingProvider struct {
	inner  LLMProvider
	name   string
	logger logger.ILogger
}

var _ LLMProvider = &LoggingProvider{}

func NewLoggingProvider(inner LLMProvider, name string, log logger.ILogger) *LoggingProvider {
	return &LoggingProvider{inner: inner, name: name, logger: log}
}

func (p *LoggingProvider) Chat(ctx context.Context, history []Message, opts ...Option) (string, error) {
	size := 0
	for _, m := range history {
		size += len(m.Content)
	}
	return p.call(ctx, "chat", size, func(ctx context.Context) (string, error) {
		return p.inner.Chat(ctx, history, opts...)
	})
}

func (p *LoggingProvider) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	p.logger.Debug(loggingModule, "Prompt", map[string]interface{}{
		"provider": p.name,
		"prompt":   prompt,
	})
	return p.call(ctx, "generate", len(prompt), func(ctx context.Context) (string, error) {
		return p.inner.Generate(ctx, prompt, opts...)
	})
}

func (p *LoggingProvider) call(ctx context.Context, op string, promptChars int, fn func(context.Context) (string, error)) (string, error) {
	ctx, span := otel.Tracer("llm").Start(ctx, "llm."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", p.name),
		attribute.Int("llm.prompt_chars", promptChars),
	)

	start := time.Now()
	out, err := fn(ctx)
	details := map[string]interface{}{
		"provider":       p.name,
		"op":             op,
		"prompt_chars":   promptChars,
		"response_chars": len(out),
		"duration_ms":    time.Since(start).Milliseconds(),
	}
	if err != nil {
		class := Classify(err)
		details["class"] = string(class)
		details["error"] = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(class))
		p.logger.Warn(loggingModule, "Call failed", details)
		return out, err
	}
	p.logger.Info(loggingModule, "Call completed", details)
	return out, nil
}
