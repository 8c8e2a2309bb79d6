package model

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// CatalogRecord stores one retrievable record. Content is {"rows": [[...]]} for
// tabular records and {"summary": "..."} for textual ones.
type CatalogRecord struct {
	Id          string          `gorm:"type:varchar(255);primaryKey"`
	Kind        string          `gorm:"type:varchar(32);not null;default:'unknown'"`
	Title       string          `gorm:"type:text"`
	Source      string          `gorm:"type:text"`
	Sheet       string          `gorm:"type:varchar(255)"`
	AccessLevel string          `gorm:"type:varchar(32);not null;default:'public';index"`
	Description string          `gorm:"type:text"`
	Content     datatypes.JSON  `gorm:"type:jsonb"`
	Embedding   pgvector.Vector `gorm:"type:vector(768)"` // nomic-embed-text dimension
	CreatedAt   time.Time       `gorm:"autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime"`
}

func (CatalogRecord) TableName() string {
	return "catalog_records"
}
