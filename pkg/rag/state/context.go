package state

import (
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/catalog"
)

// Plan is the computation recipe extracted from the analysis response.
type Plan struct {
	Description string
	Steps       string
	Code        string
}

// TraceEntry records one stage transition.
type TraceEntry struct {
	Stage  string
	Next   string
	Detail string
	At     time.Time
}

// Context is the single record threaded through every stage of one request.
// It is owned by exactly one goroutine and never shared.
type Context struct {
	Question        string
	SessionID       string
	UserRole        string
	UserPermissions []string
	Username        string
	Email           string
	HistoryContext  string

	CandidateRecords  []catalog.Record
	AuthorizedRecords []catalog.Record
	SelectedRecords   []catalog.Record

	NeedsComputation  bool
	ComputationPlan   *Plan
	ComputationResult string
	ComputationError  string

	DirectAnswer string
	AnalysisText string
	FinalAnswer  string

	NoDocuments            bool
	AuthorizationExhausted bool

	Trace   []TraceEntry
	Version int
}

type Request struct {
	Question    string
	SessionID   string
	Role        string
	Permissions []string
	Username    string
	Email       string
}

// New returns a Context with every collection initialized to an empty, non-nil value.
func New(req Request) *Context {
	perms := make([]string, len(req.Permissions))
	copy(perms, req.Permissions)

	return &Context{
		Question:          req.Question,
		SessionID:         req.SessionID,
		UserRole:          req.Role,
		UserPermissions:   perms,
		Username:          req.Username,
		Email:             req.Email,
		CandidateRecords:  []catalog.Record{},
		AuthorizedRecords: []catalog.Record{},
		SelectedRecords:   []catalog.Record{},
		Trace:             []TraceEntry{},
	}
}

// HasIdentity reports whether the conversation can be remembered.
func (c *Context) HasIdentity() bool {
	return c.Username != "" || c.Email != ""
}

// Touch marks a stage write.
func (c *Context) Touch() {
	c.Version++
}

func (c *Context) Record(stage, next, detail string, at time.Time) {
	c.Trace = append(c.Trace, TraceEntry{Stage: stage, Next: next, Detail: detail, At: at})
	c.Touch()
}

// SelectedTabular returns the selected tabular records in selection order.
func (c *Context) SelectedTabular() []catalog.Record {
	out := []catalog.Record{}
	for _, r := range c.SelectedRecords {
		if r.IsTabular() {
			out = append(out, r)
		}
	}
	return out
}

// SourceTitles lists the titles of the selected records, used as memory sources.
func (c *Context) SourceTitles() []string {
	titles := make([]string, 0, len(c.SelectedRecords))
	for _, r := range c.SelectedRecords {
		titles = append(titles, r.Title)
	}
	return titles
}
