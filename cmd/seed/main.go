package main

import (
	"context"
	"log"
	"os"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/bootstrap"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/config"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/pkg/logger"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/repository/unitofwork"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/database"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/catalog"
)

// Usage: seed <catalog.yaml>
func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: seed <catalog.yaml>")
	}

	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	records, err := catalog.LoadSeedFile(os.Args[1])
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	log.Printf("Seeding %d catalog records...", len(records))

	ingester := catalog.NewIngester(
		unitofwork.NewRepositoryFactory(db),
		bootstrap.NewEmbeddingProvider(cfg),
		logger.NewZapLogger(cfg.App.LogFilePath, false),
	)
	written, err := ingester.Ingest(context.Background(), records)
	if err != nil {
		log.Printf("Warn: some records were skipped:\n%v", err)
	}

	log.Printf("Catalog seeding completed: %d records written.", written)
}
