package main

import (
	"log"
	"os"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/model"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/database"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type step struct {
	name     string
	sql      string
	required bool
}

// Extensions AutoMigrate cannot create. pgvector is required by catalog_records.
var extensions = []step{
	{name: "pgcrypto", sql: `CREATE EXTENSION IF NOT EXISTS pgcrypto`},
	{name: "pgvector", sql: `CREATE EXTENSION IF NOT EXISTS vector`, required: true},
}

var indexes = []step{
	// Retention pruning scans by age across all users.
	{name: "conversations.timestamp", sql: `CREATE INDEX IF NOT EXISTS idx_conversations_timestamp
		ON conversations (timestamp)`},
	{name: "catalog_records.embedding", sql: `CREATE INDEX IF NOT EXISTS idx_catalog_records_embedding
		ON catalog_records USING hnsw (embedding vector_cosine_ops)`},
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.Open(dsn, database.DefaultPoolConfig(), logger.Info)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Step 1: Extensions")
	run(db, extensions)

	log.Println("Step 2: AutoMigrate conversations, catalog_records")
	if err := db.AutoMigrate(&model.Conversation{}, &model.CatalogRecord{}); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	log.Println("Step 3: Indexes")
	run(db, indexes)

	log.Println("✅ Success: Database migration completed.")
}

func run(db *gorm.DB, steps []step) {
	for _, s := range steps {
		if err := db.Exec(s.sql).Error; err != nil {
			if s.required {
				log.Fatalf("Error: %s: %v", s.name, err)
			}
			log.Printf("Warn: %s: %v. Continuing...", s.name, err)
			continue
		}
		log.Printf("  ok %s", s.name)
	}
}
