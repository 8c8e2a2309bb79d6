package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/bootstrap"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/config"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/server"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/tracer"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/database"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// 0. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Database
	var gormDB *gorm.DB
	if cfg.Database.Connection != "" {
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
		if err != nil {
			log.Panicf("Unable to connect to GORM DB: %v", err)
		}
		gormDB = db
	}

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(gormDB, cfg)
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, container)
	g, gctx := errgroup.WithContext(ctx)

	// 4. Background consumer
	g.Go(func() error {
		log.Println("Background: Starting Consumer Service...")
		return container.ConsumerService.Consume(gctx)
	})

	// 5. HTTP server
	g.Go(func() error {
		return srv.Run()
	})

	// 6. Graceful shutdown: stop accepting requests, then cancel running executions
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		serverErr := srv.Shutdown(shutdownTimeout)
		execErr := container.ChatbotService.Shutdown(shutdownCtx)
		return errors.Join(serverErr, execErr)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Server stopped with error: %v", err)
	}
}
