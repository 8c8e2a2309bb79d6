package bootstrap

import (
	"context"
	"log"
	"time"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/config"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/controller"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/pkg/logger"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/repository/memory"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/repository/unitofwork"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/service"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/embedding"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/llm"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/llm/factory"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/llm/openai"
	pktNats "github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/nats"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/access"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/analysis"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/catalog"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/computation"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/executor"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/history"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/progress"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/selection"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/synthesis"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ChatbotController controller.IChatbotController
	HistoryController controller.IHistoryController
	AdminController   controller.IAdminController

	// Services (exposed for cmd/chatbot and main.go)
	ChatbotService  service.IChatbotService
	HistoryService  service.IHistoryService
	AdminService    service.IAdminService
	ConsumerService service.IConsumerService

	Logger logger.ILogger

	closers []func()
}

// NewContainer wires the application. A nil db switches every repository to
// process memory, which is enough for local runs and demos.
func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	llmLogger := logger.NewFileOnlyLogger(cfg.App.LLMLogFilePath)
	c := &Container{Logger: sysLogger}

	if cfg.App.JWTSecret == "" {
		log.Fatalf("[FATAL] JWT_SECRET is required")
	}

	// 1. Storage
	var uowFactory unitofwork.RepositoryFactory
	if db != nil {
		uowFactory = unitofwork.NewRepositoryFactory(db)
	} else {
		log.Printf("[WARN] No database configured, conversation memory and catalog live in process memory")
		uowFactory = memory.NewRepositoryFactory()
	}

	policy, err := access.Load(cfg.App.PolicyFile)
	if err != nil {
		log.Fatalf("[FATAL] Failed to load access policy: %v", err)
	}

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermillLogger)
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
	var eventPublisher pktNats.EventPublisher
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	} else {
		eventPublisher = natsPub
		c.closers = append(c.closers, natsPub.Close)
	}

	// 3. Progress messages
	messages := newMessageStore(cfg.App.RedisURL, c)

	// 4. AI providers
	settings := factory.Settings{
		Provider:        cfg.Ai.LLMProvider,
		Model:           cfg.Ai.LLMModel,
		OpenAIKey:       cfg.Ai.OpenAIKey,
		OpenAIBaseURL:   cfg.Ai.OpenAIBaseURL,
		VertexProject:   cfg.Ai.VertexProject,
		VertexRegion:    cfg.Ai.VertexRegion,
		OllamaBaseURL:   cfg.Ai.OllamaBaseURL,
		SandboxProvider: cfg.Ai.SandboxProvider,
		SandboxModel:    cfg.Ai.SandboxModel,
	}
	rawProvider, err := factory.NewLLMProvider(context.Background(), settings)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	llmProvider := llm.NewGuard(
		llm.NewLoggingProvider(rawProvider, cfg.Ai.LLMProvider, llmLogger),
		llm.GuardConfig{
			CallTimeout:       cfg.Pipeline.CallTimeout,
			RequestsPerSecond: cfg.Pipeline.RequestsPerSecond,
			Burst:             cfg.Pipeline.Burst,
		},
	)

	sandbox, err := factory.NewCodeSandbox(settings)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize code sandbox: %v", err)
	}
	if sandbox == nil {
		log.Printf("[WARN] Code sandbox disabled, calculation plans will fail gracefully")
	} else {
		sandbox = llm.NewSandboxGuard(sandbox, llm.GuardConfig{
			CallTimeout:       cfg.Pipeline.SandboxTimeout,
			RequestsPerSecond: cfg.Pipeline.RequestsPerSecond,
			Burst:             cfg.Pipeline.Burst,
		})
	}

	embeddingProvider := NewEmbeddingProvider(cfg)

	// 5. Pipeline
	retry := llm.RetryPolicy{
		MaxAttempts:     cfg.Pipeline.RetryAttempts,
		InitialInterval: cfg.Pipeline.RetryInitial,
		MaxInterval:     4 * cfg.Pipeline.RetryInitial,
	}
	memoryStore := history.NewStore(uowFactory, history.Config{
		Window:    cfg.Pipeline.HistoryWindow,
		Retention: cfg.Pipeline.Retention,
	}, sysLogger)

	pipeline := executor.NewPipeline(executor.Dependencies{
		Catalog: catalog.NewClient(catalog.NewPgvectorRetriever(uowFactory, embeddingProvider), catalog.ClientConfig{
			Retry:       retry,
			CallTimeout: cfg.Pipeline.CallTimeout,
		}, sysLogger),
		Policy:  policy,
		Selector: selection.NewSelector(llmProvider, selection.Config{
			MaxSelected:   cfg.Pipeline.MaxSelected,
			FallbackCount: cfg.Pipeline.FallbackSelected,
			Retry:         retry,
		}, sysLogger),
		Analyzer:    analysis.NewAnalyzer(llmProvider, retry, sysLogger),
		Computer:    computation.NewExecutor(sandbox, computation.Config{Retry: retry}, sysLogger),
		Synthesizer: synthesis.NewSynthesizer(llmProvider, memoryStore, retry, sysLogger),
		History:     memoryStore,
		Progress:    progress.NewReporter(messages, sysLogger),
		Logger:      sysLogger,
	}, executor.Config{
		CandidateLimit:     cfg.Pipeline.CandidateLimit,
		HistoryContextSize: cfg.Pipeline.HistoryContextSize,
	})

	// 6. Services
	publisherService := service.NewPublisherService(cfg.Events.ConversationTopic, pubSub)
	c.ConsumerService = service.NewConsumerService(
		pubSub,
		cfg.Events.ConversationTopic,
		eventPublisher,
		memoryStore,
		cfg.Pipeline.RetentionInterval,
		sysLogger,
	)

	c.ChatbotService = service.NewChatbotService(
		pipeline,
		policy,
		memory.NewExecutionRepository(),
		messages,
		publisherService,
		service.ChatbotConfig{
			ExecutionTimeout: cfg.Pipeline.ExecutionTimeout,
			CancelGrace:      cfg.Pipeline.CancelGrace,
		},
		sysLogger,
	)
	c.HistoryService = service.NewHistoryService(memoryStore)
	c.AdminService = service.NewAdminService(memoryStore, sysLogger)

	// 7. Controllers
	c.ChatbotController = controller.NewChatbotController(c.ChatbotService)
	c.HistoryController = controller.NewHistoryController(c.HistoryService)
	c.AdminController = controller.NewAdminController(c.AdminService, policy)

	return c
}

// newMessageStore prefers Redis so progress survives restarts and can be
// streamed across instances.
func newMessageStore(redisURL string, c *Container) progress.Store {
	if redisURL == "" {
		return progress.NewMemoryStore()
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{Addr: redisURL}
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v. Session messages stay in memory", err)
		_ = rdb.Close()
		return progress.NewMemoryStore()
	}

	c.closers = append(c.closers, func() { _ = rdb.Close() })
	return progress.NewRedisStore(rdb, 24*time.Hour)
}

// NewEmbeddingProvider picks the query embedder used by catalog retrieval and seeding.
func NewEmbeddingProvider(cfg *config.Config) embedding.EmbeddingProvider {
	if cfg.Ai.EmbeddingProvider == "openai" {
		if cfg.Ai.OpenAIKey == "" {
			log.Fatalf("[FATAL] OPENAI_API_KEY is required for openai embeddings")
		}
		log.Printf("[INFO] Using Embedding Provider: OPENAI (%s)", cfg.Ai.EmbeddingModel)
		return embedding.NewOpenAIProvider(openai.NewClient(cfg.Ai.OpenAIKey, cfg.Ai.OpenAIBaseURL), cfg.Ai.EmbeddingModel)
	}
	log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Ai.EmbeddingModel)
	return embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.EmbeddingModel)
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	_ = c.Logger.Sync()
}
