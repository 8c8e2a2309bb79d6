package entity

import "time"

// CatalogRecord is a parsed spreadsheet sheet or document summary with its embedding.
type CatalogRecord struct {
	Id          string
	Kind        string
	Title       string
	Source      string
	Sheet       string
	AccessLevel string
	Description string
	Rows        [][]string
	Summary     string
	Embedding   []float32
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

type ScoredCatalogRecord struct {
	Record     *CatalogRecord
	Similarity float64
}
