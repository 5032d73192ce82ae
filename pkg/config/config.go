package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// App
	Port    string
	Env     string
	DataDir string

	// AI
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	ModelID           string
	TranscribeModelID string
	LLMTimeoutSeconds int

	// Graph persistence
	GraphBackend  string // "file" or "neo4j"
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// Detection scheduler
	DetectionTickSeconds int
	DetectionBatchSize   int
	DetectionMinQueued   int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "3001"),
		Env:               getEnv("ENV", "development"),
		DataDir:           getEnv("DATA_DIR", "data"),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
		ModelID:           getEnv("MODEL_ID", "gpt-4o-mini"),
		TranscribeModelID: getEnv("TRANSCRIBE_MODEL_ID", "whisper-1"),
		LLMTimeoutSeconds: getEnvInt("LLM_TIMEOUT_SECONDS", 60),
		GraphBackend:      getEnv("GRAPH_BACKEND", "file"),
		Neo4jURI:          getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:         getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:     getEnv("NEO4J_PASSWORD", "password"),

		DetectionTickSeconds: getEnvInt("DETECTION_TICK_SECONDS", 60),
		DetectionBatchSize:   getEnvInt("DETECTION_BATCH_SIZE", 10),
		DetectionMinQueued:   getEnvInt("DETECTION_MIN_QUEUED", 3),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if c.ModelID == "" {
		return fmt.Errorf("MODEL_ID is required")
	}
	if c.GraphBackend != "file" && c.GraphBackend != "neo4j" {
		return fmt.Errorf("GRAPH_BACKEND must be \"file\" or \"neo4j\", got %q", c.GraphBackend)
	}
	if c.GraphBackend == "neo4j" {
		if c.Neo4jURI == "" {
			return fmt.Errorf("NEO4J_URI is required when GRAPH_BACKEND=neo4j")
		}
		if c.Neo4jUser == "" {
			return fmt.Errorf("NEO4J_USER is required when GRAPH_BACKEND=neo4j")
		}
	}
	if c.DetectionBatchSize < 1 {
		return fmt.Errorf("DETECTION_BATCH_SIZE must be positive")
	}
	// OpenAI API key is optional for development; LLM features degrade to
	// their fallbacks without it
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
