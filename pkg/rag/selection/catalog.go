package selection

import (
	"fmt"
	"strings"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/catalog"
)

const (
	maxCatalogColumns = 5
	maxSummaryChars   = 200
)

// RenderCatalog numbers records from 1 in the order given.
func RenderCatalog(records []catalog.Record) string {
	var sb strings.Builder
	for i, r := range records {
		if r.IsTabular() {
			cols := r.Columns()
			if len(cols) > maxCatalogColumns {
				cols = cols[:maxCatalogColumns]
			}
			fmt.Fprintf(&sb, "DOCUMENT %d: Title: %s, Source: %s, Columns: %s, Rows: %d\n",
				i+1, r.Title, r.DisplaySource(), strings.Join(cols, ", "), r.DataRowCount())
			continue
		}
		fmt.Fprintf(&sb, "DOCUMENT %d: Title: %s, Source: %s, Summary: %s\n",
			i+1, r.Title, r.DisplaySource(), Truncate(r.Summary, maxSummaryChars))
	}
	return sb.String()
}

// Truncate cuts s to n runes and appends "..." when it was longer.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
