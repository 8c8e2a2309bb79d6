package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/llm"
)

const defaultBaseURL = "https://api.openai.com/v1"

// runSteps reads run steps straight from the REST API. The SDK's ToolCall
// type has no code_interpreter field, so its step list loses the logs.
type runSteps struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

type runStepPage struct {
	Data []struct {
		StepDetails struct {
			Type      string `json:"type"`
			ToolCalls []struct {
				Type            string `json:"type"`
				CodeInterpreter *struct {
					Outputs []struct {
						Type string `json:"type"`
						Logs string `json:"logs"`
					} `json:"outputs"`
				} `json:"code_interpreter"`
			} `json:"tool_calls"`
		} `json:"step_details"`
	} `json:"data"`
	LastID  string `json:"last_id"`
	HasMore bool   `json:"has_more"`
}

// codeLogs returns the log outputs of every code_interpreter call of the run, in step order.
func (r *runSteps) codeLogs(ctx context.Context, threadID, runID string) ([]string, error) {
	var logs []string
	after := ""
	for {
		page, err := r.page(ctx, threadID, runID, after)
		if err != nil {
			return nil, err
		}
		for _, step := range page.Data {
			if step.StepDetails.Type != "tool_calls" {
				continue
			}
			for _, call := range step.StepDetails.ToolCalls {
				if call.Type != "code_interpreter" || call.CodeInterpreter == nil {
					continue
				}
				for _, out := range call.CodeInterpreter.Outputs {
					if out.Type != "logs" {
						continue
					}
					if text := strings.TrimSpace(out.Logs); text != "" {
						logs = append(logs, text)
					}
				}
			}
		}
		if !page.HasMore || page.LastID == "" {
			return logs, nil
		}
		after = page.LastID
	}
}

func (r *runSteps) page(ctx context.Context, threadID, runID, after string) (*runStepPage, error) {
	query := url.Values{}
	query.Set("order", "asc")
	query.Set("limit", "100")
	if after != "" {
		query.Set("after", after)
	}
	endpoint := fmt.Sprintf("%s/threads/%s/runs/%s/steps?%s",
		strings.TrimRight(r.baseURL, "/"), threadID, runID, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list run steps: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read run steps: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &llm.ProviderError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("list run steps: %s", string(body)),
		}
	}

	var page runStepPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("unmarshal run steps: %w", err)
	}
	return &page, nil
}
