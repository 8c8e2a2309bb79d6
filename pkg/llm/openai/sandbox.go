package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/llm"

	goopenai "github.com/sashabaranov/go-openai"
)

const sandboxInstructions = "You are a data analyst. Load the attached CSV files with pandas, " +
	"run the requested computation with the code interpreter and print the final result explicitly."

// Sandbox runs analysis code through an Assistant equipped with the code_interpreter tool.
// Every Execute creates a throwaway assistant and thread and deletes both afterwards.
type Sandbox struct {
	client       *goopenai.Client
	steps        *runSteps
	modelName    string
	pollInterval time.Duration
}

var _ llm.CodeSandbox = &Sandbox{}

// NewSandbox talks to the public endpoint when baseURL is empty.
func NewSandbox(apiKey, baseURL, modelName string) *Sandbox {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Sandbox{
		client:       NewClient(apiKey, baseURL),
		steps:        &runSteps{client: &http.Client{}, baseURL: baseURL, apiKey: apiKey},
		modelName:    modelName,
		pollInterval: time.Second,
	}
}

func (s *Sandbox) Upload(ctx context.Context, artifact llm.Artifact) (llm.UploadedArtifact, error) {
	file, err := s.client.CreateFileBytes(ctx, goopenai.FileBytesRequest{
		Name:    artifact.Name,
		Bytes:   artifact.Data,
		Purpose: goopenai.PurposeAssistants,
	})
	if err != nil {
		return llm.UploadedArtifact{}, fmt.Errorf("upload %s: %w", artifact.Name, wrapError(err))
	}
	return llm.UploadedArtifact{ID: file.ID, Name: artifact.Name}, nil
}

func (s *Sandbox) Delete(ctx context.Context, id string) error {
	if err := s.client.DeleteFile(ctx, id); err != nil {
		return fmt.Errorf("delete file %s: %w", id, wrapError(err))
	}
	return nil
}

func (s *Sandbox) Execute(ctx context.Context, prompt string, files []llm.UploadedArtifact) (*llm.ExecutionOutput, error) {
	fileIDs := make([]string, 0, len(files))
	for _, f := range files {
		fileIDs = append(fileIDs, f.ID)
	}

	name := "table-analyst"
	instructions := sandboxInstructions
	assistant, err := s.client.CreateAssistant(ctx, goopenai.AssistantRequest{
		Model:        s.modelName,
		Name:         &name,
		Instructions: &instructions,
		Tools:        []goopenai.AssistantTool{{Type: goopenai.AssistantToolTypeCodeInterpreter}},
		ToolResources: &goopenai.AssistantToolResource{
			CodeInterpreter: &goopenai.AssistantToolCodeInterpreter{FileIDs: fileIDs},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create assistant: %w", wrapError(err))
	}
	defer s.cleanup(func(c context.Context) error {
		_, err := s.client.DeleteAssistant(c, assistant.ID)
		return err
	})

	run, err := s.client.CreateThreadAndRun(ctx, goopenai.CreateThreadAndRunRequest{
		RunRequest: goopenai.RunRequest{AssistantID: assistant.ID},
		Thread: goopenai.ThreadRequest{
			Messages: []goopenai.ThreadMessage{{
				Role:    goopenai.ThreadMessageRoleUser,
				Content: prompt,
			}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("start run: %w", wrapError(err))
	}
	defer s.cleanup(func(c context.Context) error {
		_, err := s.client.DeleteThread(c, run.ThreadID)
		return err
	})

	run, err = s.waitForRun(ctx, run)
	if err != nil {
		return nil, err
	}

	if run.Status != goopenai.RunStatusCompleted {
		execErr := &llm.ExecutionError{Status: string(run.Status)}
		if run.LastError != nil {
			execErr.Message = run.LastError.Message
		}
		return nil, execErr
	}

	return s.collectOutput(ctx, run)
}

func (s *Sandbox) waitForRun(ctx context.Context, run goopenai.Run) (goopenai.Run, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for !isTerminal(run.Status) {
		select {
		case <-ctx.Done():
			s.cleanup(func(c context.Context) error {
				_, err := s.client.CancelRun(c, run.ThreadID, run.ID)
				return err
			})
			return run, ctx.Err()
		case <-ticker.C:
		}

		next, err := s.client.RetrieveRun(ctx, run.ThreadID, run.ID)
		if err != nil {
			return run, fmt.Errorf("poll run: %w", wrapError(err))
		}
		run = next
	}
	return run, nil
}

func isTerminal(status goopenai.RunStatus) bool {
	switch status {
	case goopenai.RunStatusCompleted,
		goopenai.RunStatusFailed,
		goopenai.RunStatusCancelled,
		goopenai.RunStatusExpired,
		goopenai.RunStatusIncomplete,
		goopenai.RunStatusRequiresAction:
		return true
	}
	return false
}

func (s *Sandbox) collectOutput(ctx context.Context, run goopenai.Run) (*llm.ExecutionOutput, error) {
	order := "asc"
	runID := run.ID
	list, err := s.client.ListMessage(ctx, run.ThreadID, nil, &order, nil, nil, &runID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", wrapError(err))
	}

	out := &llm.ExecutionOutput{}
	for _, msg := range list.Messages {
		if msg.Role != goopenai.ChatMessageRoleAssistant {
			continue
		}
		for _, content := range msg.Content {
			if content.Text == nil {
				continue
			}
			if text := strings.TrimSpace(content.Text.Value); text != "" {
				out.Text = append(out.Text, text)
			}
		}
	}

	logs, err := s.steps.codeLogs(ctx, run.ThreadID, run.ID)
	if err != nil {
		return nil, err
	}
	out.Outputs = logs
	return out, nil
}

// cleanup runs release calls on a fresh context so they still happen after cancellation.
func (s *Sandbox) cleanup(release func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = release(ctx)
}
