package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Ai       AIConfig
	Pipeline PipelineConfig
	Events   EventsConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	LLMLogFilePath     string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	PolicyFile         string
	JWTSecret          string
}

type DatabaseConfig struct {
	Connection string
}

type AIConfig struct {
	LLMProvider string // "openai", "vertex" or "ollama"
	LLMModel    string

	OpenAIKey     string
	OpenAIBaseURL string

	VertexProject string
	VertexRegion  string

	OllamaBaseURL string

	EmbeddingProvider string // "ollama" or "openai"
	EmbeddingModel    string

	SandboxProvider string // "openai" or "none"
	SandboxModel    string
}

type PipelineConfig struct {
	CandidateLimit     int
	MaxSelected        int
	FallbackSelected   int
	HistoryWindow      time.Duration
	HistoryContextSize int
	Retention          time.Duration
	RetentionInterval  time.Duration

	CallTimeout      time.Duration
	SandboxTimeout   time.Duration
	ExecutionTimeout time.Duration
	CancelGrace      time.Duration

	RetryAttempts     int
	RetryInitial      time.Duration
	RequestsPerSecond float64
	Burst             int
}

type EventsConfig struct {
	ConversationTopic string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			LLMLogFilePath:     getEnv("LLM_LOG_FILE_PATH", "logs/llm.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			PolicyFile:         getEnv("ACCESS_POLICY_FILE", ""),
			JWTSecret:          getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Ai: AIConfig{
			LLMProvider:       getEnv("LLM_PROVIDER", "openai"),
			LLMModel:          getEnv("LLM_MODEL", "gpt-4o-mini"),
			OpenAIKey:         getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
			VertexProject:     getEnv("VERTEX_PROJECT_ID", ""),
			VertexRegion:      getEnv("VERTEX_REGION", "europe-west1"),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "ollama"),
			EmbeddingModel:    getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
			SandboxProvider:   getEnv("SANDBOX_PROVIDER", "openai"),
			SandboxModel:      getEnv("SANDBOX_MODEL", "gpt-4o-mini"),
		},
		Pipeline: PipelineConfig{
			CandidateLimit:     getEnvAsInt("PIPELINE_CANDIDATE_LIMIT", 10),
			MaxSelected:        getEnvAsInt("PIPELINE_MAX_SELECTED", 5),
			FallbackSelected:   getEnvAsInt("PIPELINE_FALLBACK_SELECTED", 3),
			HistoryWindow:      getEnvAsDuration("HISTORY_WINDOW", 24*time.Hour),
			HistoryContextSize: getEnvAsInt("HISTORY_CONTEXT_SIZE", 5),
			Retention:          getEnvAsDuration("HISTORY_RETENTION", 30*24*time.Hour),
			RetentionInterval:  getEnvAsDuration("HISTORY_RETENTION_INTERVAL", time.Hour),
			CallTimeout:        getEnvAsDuration("LLM_CALL_TIMEOUT", 90*time.Second),
			SandboxTimeout:     getEnvAsDuration("SANDBOX_CALL_TIMEOUT", 3*time.Minute),
			ExecutionTimeout:   getEnvAsDuration("PIPELINE_EXECUTION_TIMEOUT", 10*time.Minute),
			CancelGrace:        getEnvAsDuration("PIPELINE_CANCEL_GRACE", 5*time.Second),
			RetryAttempts:      getEnvAsInt("LLM_RETRY_ATTEMPTS", 3),
			RetryInitial:       getEnvAsDuration("LLM_RETRY_INITIAL", time.Second),
			RequestsPerSecond:  getEnvAsFloat("LLM_REQUESTS_PER_SECOND", 5),
			Burst:              getEnvAsInt("LLM_BURST", 5),
		},
		Events: EventsConfig{
			ConversationTopic: getEnv("CONVERSATION_TOPIC_NAME", "CONVERSATION_ANSWERED"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go duration strings ("90s", "24h").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
