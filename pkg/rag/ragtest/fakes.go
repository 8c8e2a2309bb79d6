// Package ragtest holds scripted stand-ins for the pipeline's external boundaries.
package ragtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/llm"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/access"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/catalog"
)

// Reply answers prompts containing Match. An empty Match matches everything.
type Reply struct {
	Match string
	Text  string
	Err   error
}

// ScriptedLLM returns the first Reply whose Match occurs in the prompt.
type ScriptedLLM struct {
	mu      sync.Mutex
	replies []Reply
	prompts []string
}

var _ llm.LLMProvider = &ScriptedLLM{}

func NewScriptedLLM(replies ...Reply) *ScriptedLLM {
	return &ScriptedLLM{replies: replies}
}

func (s *ScriptedLLM) Generate(ctx context.Context, prompt string, _ ...llm.Option) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()

	for _, r := range s.replies {
		if r.Match == "" || strings.Contains(prompt, r.Match) {
			return r.Text, r.Err
		}
	}
	return "", fmt.Errorf("ragtest: no scripted reply for prompt")
}

func (s *ScriptedLLM) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	if len(history) == 0 {
		return s.Generate(ctx, "", opts...)
	}
	return s.Generate(ctx, history[len(history)-1].Content, opts...)
}

func (s *ScriptedLLM) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.prompts))
	copy(out, s.prompts)
	return out
}

func (s *ScriptedLLM) Calls() int {
	return len(s.Prompts())
}

// BlockingLLM waits for cancellation and signals each call on Started.
type BlockingLLM struct {
	Started chan struct{}
}

var _ llm.LLMProvider = &BlockingLLM{}

func NewBlockingLLM() *BlockingLLM {
	return &BlockingLLM{Started: make(chan struct{}, 16)}
}

func (b *BlockingLLM) Generate(ctx context.Context, _ string, _ ...llm.Option) (string, error) {
	select {
	case b.Started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return "", ctx.Err()
}

func (b *BlockingLLM) Chat(ctx context.Context, _ []llm.Message, opts ...llm.Option) (string, error) {
	return b.Generate(ctx, "", opts...)
}

// Sandbox records uploads and deletions and returns a fixed execution result.
type Sandbox struct {
	mu       sync.Mutex
	Output   *llm.ExecutionOutput
	Err      error
	Block    bool
	uploads  []llm.Artifact
	deleted  []string
	executes int
}

var _ llm.CodeSandbox = &Sandbox{}

func (s *Sandbox) Upload(ctx context.Context, artifact llm.Artifact) (llm.UploadedArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, artifact)
	return llm.UploadedArtifact{ID: fmt.Sprintf("file-%d", len(s.uploads)), Name: artifact.Name}, nil
}

func (s *Sandbox) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *Sandbox) Execute(ctx context.Context, prompt string, files []llm.UploadedArtifact) (*llm.ExecutionOutput, error) {
	s.mu.Lock()
	s.executes++
	block := s.Block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.Output, s.Err
}

func (s *Sandbox) Uploads() []llm.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Artifact{}, s.uploads...)
}

func (s *Sandbox) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.deleted...)
}

func (s *Sandbox) Executions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executes
}

// Retriever returns Items, or Err, regardless of the query.
type Retriever struct {
	Items []catalog.RetrievedItem
	Err   error
}

var _ catalog.Retriever = &Retriever{}

func (r *Retriever) Search(ctx context.Context, query string, limit int) ([]catalog.RetrievedItem, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	items := r.Items
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// Table builds a usable tabular record.
func Table(id, title string, level string, rows ...[]string) catalog.Record {
	if len(rows) == 0 {
		rows = [][]string{{"year", "value"}, {"2021", "10"}}
	}
	return catalog.Record{
		ID:            id,
		Kind:          catalog.KindTabular,
		Title:         title,
		SourceLocator: title + ".xlsx",
		AccessLevel:   access.NormalizeLevel(level),
		Rows:          rows,
	}
}

// Text builds a textual record.
func Text(id, title, level, summary string) catalog.Record {
	return catalog.Record{
		ID:            id,
		Kind:          catalog.KindTextual,
		Title:         title,
		SourceLocator: title + ".pdf",
		AccessLevel:   access.NormalizeLevel(level),
		Summary:       summary,
	}
}

// Item converts a record back into retriever output.
func Item(r catalog.Record) catalog.RetrievedItem {
	return catalog.RetrievedItem{
		ID:          r.ID,
		Kind:        string(r.Kind),
		Title:       r.Title,
		Source:      r.SourceLocator,
		Sheet:       r.Sheet,
		AccessLevel: string(r.AccessLevel),
		Description: r.Description,
		Rows:        r.Rows,
		Summary:     r.Summary,
	}
}
