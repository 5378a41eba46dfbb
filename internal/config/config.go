package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all environmentally dependent settings for the Platewise API.
type Config struct {
	HTTPAddr string
	LogLevel string

	// Canonical store
	DatabaseDriver string
	DatabaseDSN    string

	// Embeddings
	GeminiAPIKey          string
	GeminiEmbedModel      string
	OllamaHost            string
	OllamaEmbedModel      string
	UseLocalOnlyEmbedding bool
	EmbeddingDimension    int
	EmbeddingBatchSize    int
	DefaultTimeout        time.Duration
	EmbeddingTimeout      time.Duration

	// Qdrant Vector DB
	QdrantHost       string
	QdrantPort       int
	QdrantCollection string

	// Neo4j Graph DB
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// Providers
	YelpAPIKey         string
	YelpBaseURL        string
	PlacesAPIKey       string
	PlacesBaseURL      string
	ProviderRPS        float64
	ProviderBurst      int
	BreakerFailures    int
	BreakerOpenTimeout time.Duration
	AggregateRadiusMax int
	AggregateWorkers   int
	StalenessTTL       time.Duration
	ReservationDelay   time.Duration
	GazetteerPath      string

	// Personalization service; empty leaves match and quality scores unset
	PersonalizationURL string

	// Tracing
	OTLPEndpoint    string
	TraceSampleRate float64
}

// Validate ensures that all required configuration is present and valid.
func (c *Config) Validate() error {
	if !c.UseLocalOnlyEmbedding && c.GeminiAPIKey == "" {
		return fmt.Errorf("PW_GEMINI_API_KEY is required when PW_USE_LOCAL_ONLY_EMBEDDING is false")
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("PW_HTTP_ADDR is required")
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("PW_DATABASE_DRIVER must be sqlite or postgres, got %q", c.DatabaseDriver)
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("PW_DATABASE_DSN is required")
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("PW_EMBEDDING_DIMENSION must be positive, got %d", c.EmbeddingDimension)
	}
	if c.StalenessTTL <= 0 {
		return fmt.Errorf("PW_STALENESS_TTL_HOURS must be positive")
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		return fmt.Errorf("PW_TRACE_SAMPLE_RATE must be within [0, 1], got %v", c.TraceSampleRate)
	}
	return nil
}

// Load reads settings from environment variables with sensible defaults.
func Load() *Config {
	cfg := &Config{
		HTTPAddr: getEnv("PW_HTTP_ADDR", ":8080"),
		LogLevel: getEnv("PW_LOG_LEVEL", "info"),

		DatabaseDriver: getEnv("PW_DATABASE_DRIVER", "sqlite"),
		DatabaseDSN:    getEnv("PW_DATABASE_DSN", "file:platewise.db?cache=shared"),

		GeminiAPIKey:          getEnv("PW_GEMINI_API_KEY", ""),
		GeminiEmbedModel:      getEnv("PW_GEMINI_EMBED_MODEL", "text-embedding-004"),
		OllamaHost:            getEnv("PW_OLLAMA_HOST", "http://localhost:11434"),
		OllamaEmbedModel:      getEnv("PW_OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		UseLocalOnlyEmbedding: getEnvBool("PW_USE_LOCAL_ONLY_EMBEDDING", false),
		EmbeddingDimension:    getEnvInt("PW_EMBEDDING_DIMENSION", 768),
		EmbeddingBatchSize:    getEnvInt("PW_EMBEDDING_BATCH_SIZE", 100),
		DefaultTimeout:        getEnvDuration("PW_DEFAULT_TIMEOUT_SEC", 30) * time.Second,
		EmbeddingTimeout:      getEnvDuration("PW_EMBEDDING_TIMEOUT_SEC", 5) * time.Second,

		QdrantHost:       getEnv("PW_QDRANT_HOST", "localhost"),
		QdrantPort:       getEnvInt("PW_QDRANT_PORT", 6334),
		QdrantCollection: getEnv("PW_QDRANT_COLLECTION", "restaurants"),

		Neo4jURI:      getEnv("PW_NEO4J_URI", "neo4j://localhost:7687"),
		Neo4jUser:     getEnv("PW_NEO4J_USER", "neo4j"),
		Neo4jPassword: getEnv("PW_NEO4J_PASSWORD", "platewise_dev"),

		YelpAPIKey:         getEnv("PW_YELP_API_KEY", ""),
		YelpBaseURL:        getEnv("PW_YELP_BASE_URL", "https://api.yelp.com"),
		PlacesAPIKey:       getEnv("PW_PLACES_API_KEY", ""),
		PlacesBaseURL:      getEnv("PW_PLACES_BASE_URL", "https://maps.googleapis.com"),
		ProviderRPS:        getEnvFloat("PW_PROVIDER_RPS", 5),
		ProviderBurst:      getEnvInt("PW_PROVIDER_BURST", 5),
		BreakerFailures:    getEnvInt("PW_BREAKER_FAILURES", 5),
		BreakerOpenTimeout: getEnvDuration("PW_BREAKER_OPEN_TIMEOUT_SEC", 30) * time.Second,
		AggregateRadiusMax: getEnvInt("PW_AGGREGATE_RADIUS_MAX_M", 40000),
		AggregateWorkers:   getEnvInt("PW_AGGREGATE_WORKERS", 8),
		StalenessTTL:       getEnvDuration("PW_STALENESS_TTL_HOURS", 7*24) * time.Hour,
		ReservationDelay:   getEnvDuration("PW_RESERVATION_DELAY_MS", 1500) * time.Millisecond,
		GazetteerPath:      getEnv("PW_GAZETTEER_PATH", ""),

		PersonalizationURL: getEnv("PW_PERSONALIZATION_URL", ""),

		OTLPEndpoint:    getEnv("PW_OTLP_ENDPOINT", ""),
		TraceSampleRate: getEnvFloat("PW_TRACE_SAMPLE_RATE", 0.1),
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("[Config] Validation failed: %v", err)
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return fallback
}

func getEnvDuration(key string, fallback int) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return time.Duration(fallback)
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("[Config] Warning: Invalid duration for %s: %v. Using fallback %d", key, err, fallback)
		return time.Duration(fallback)
	}
	return time.Duration(value)
}

func getEnvInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("[Config] Warning: Invalid int for %s: %v. Using fallback %d", key, err, fallback)
		return fallback
	}
	return value
}

func getEnvFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("[Config] Warning: Invalid float for %s: %v. Using fallback %v", key, err, fallback)
		return fallback
	}
	return value
}
