package catalog

import (
	"strings"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/access"
)

type Kind string

const (
	KindTabular Kind = "tabular"
	KindTextual Kind = "textual"
	KindUnknown Kind = "unknown"
)

// Record is one retrievable unit of knowledge. Read-only once built.
type Record struct {
	ID            string
	Kind          Kind
	Title         string
	SourceLocator string
	Sheet         string
	AccessLevel   access.AccessLevel
	Description   string

	// Rows holds tabular content; Rows[0] is the header.
	Rows [][]string
	// Summary holds textual content.
	Summary string

	Score float64
}

func (r Record) IsTabular() bool { return r.Kind == KindTabular }

// Columns returns the header row of a tabular record.
func (r Record) Columns() []string {
	if len(r.Rows) == 0 {
		return nil
	}
	return r.Rows[0]
}

// DataRowCount excludes the header.
func (r Record) DataRowCount() int {
	if len(r.Rows) == 0 {
		return 0
	}
	return len(r.Rows) - 1
}

// Usable applies the content invariants: a tabular record needs a header,
// at least one data row and one column.
func (r Record) Usable() bool {
	switch r.Kind {
	case KindTabular:
		return len(r.Rows) >= 2 && len(r.Rows[0]) >= 1
	case KindTextual:
		return true
	default:
		return false
	}
}

// DisplaySource renders "source -> sheet" when a sheet is known.
func (r Record) DisplaySource() string {
	src := r.SourceLocator
	if src == "" {
		src = "N/A"
	}
	if r.Sheet != "" {
		return src + " -> " + r.Sheet
	}
	return src
}

var (
	tabularHints = []string{"tableau", "table", "xls", "excel", "csv", "sheet"}
	textualHints = []string{"pdf", "doc", "text", "report"}
)

// DetectKind trusts a valid declared kind and otherwise inspects the id.
// Ambiguous ids stay unknown instead of being forced into tabular.
func DetectKind(id, declared string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(declared))) {
	case KindTabular:
		return KindTabular
	case KindTextual:
		return KindTextual
	}

	lower := strings.ToLower(id)
	for _, h := range tabularHints {
		if strings.Contains(lower, h) {
			return KindTabular
		}
	}
	for _, h := range textualHints {
		if strings.Contains(lower, h) {
			return KindTextual
		}
	}
	return KindUnknown
}

// Authorizer is satisfied by *access.Policy.
type Authorizer interface {
	IsAuthorized(role string, level access.AccessLevel) bool
}

// Authorize keeps the records role may read, checking each record exactly once.
func Authorize(policy Authorizer, role string, records []Record) (authorized []Record, denied int) {
	authorized = make([]Record, 0, len(records))
	for _, r := range records {
		if policy.IsAuthorized(role, r.AccessLevel) {
			authorized = append(authorized, r)
			continue
		}
		denied++
	}
	return authorized, denied
}

// CatalogOrder puts tabular records first and keeps retrieval order inside each kind.
func CatalogOrder(records []Record) []Record {
	ordered := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Kind == KindTabular {
			ordered = append(ordered, r)
		}
	}
	for _, r := range records {
		if r.Kind != KindTabular {
			ordered = append(ordered, r)
		}
	}
	return ordered
}

// CountByLevel tallies records per access level.
func CountByLevel(records []Record) map[access.AccessLevel]int {
	counts := map[access.AccessLevel]int{
		access.LevelPublic:       0,
		access.LevelInternal:     0,
		access.LevelConfidential: 0,
	}
	for _, r := range records {
		counts[access.NormalizeLevel(string(r.AccessLevel))]++
	}
	return counts
}
