package computation

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/llm"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/catalog"
)

// FileName is the name a tabular record gets inside the sandbox.
func FileName(alias int) string {
	return fmt.Sprintf("df%d.csv", alias)
}

// ExportCSV writes the record rows, header included, as an uploadable artifact.
func ExportCSV(alias int, record catalog.Record) (llm.Artifact, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(record.Rows); err != nil {
		return llm.Artifact{}, fmt.Errorf("export %s: %w", record.ID, err)
	}
	return llm.Artifact{Name: FileName(alias), Data: buf.Bytes()}, nil
}
