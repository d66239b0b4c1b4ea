package config

import (
	"os"
	"strconv"
	"time"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// OllamaConfig holds settings for the embedding/generation backend.
type OllamaConfig struct {
	BaseURL         string
	EmbeddingModel  string
	GenerativeModel string
	Timeout         time.Duration
}

// QdrantConfig holds connection details for the vector index.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// MinIOConfig holds object storage settings for the raw-content archive.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Enabled   bool
}

// ChunkingConfig controls how document content is split before embedding.
type ChunkingConfig struct {
	SplitBy      string
	SplitLength  int
	SplitOverlap int
	MinChunkSize int
}

// RetrievalConfig holds the tunables of the retrieval filtering pipeline.
type RetrievalConfig struct {
	MinScore       float64
	RelativeMargin float64
	DefaultLimit   int
	SearchTopK     int
}

// ProcessingConfig holds the document lifecycle tunables.
type ProcessingConfig struct {
	MaxRetries     int
	MaxContentSize int
	SweepInterval  time.Duration
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	Port       string
	LogLevel   string
	Database   DatabaseConfig
	Ollama     OllamaConfig
	Qdrant     QdrantConfig
	MinIO      MinIOConfig
	Chunking   ChunkingConfig
	Retrieval  RetrievalConfig
	Processing ProcessingConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		Ollama: OllamaConfig{
			BaseURL:         getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			EmbeddingModel:  getEnv("EMBEDDING_MODEL", "mxbai-embed-large"),
			GenerativeModel: getEnv("GENERATIVE_MODEL", "gemma3n:e4b"),
			Timeout:         getEnvDuration("OLLAMA_TIMEOUT_SEC", 120*time.Second),
		},
		Qdrant: QdrantConfig{
			URL:        getEnv("QDRANT_URL", "http://localhost:6333"),
			APIKey:     getEnv("QDRANT_API_KEY", ""),
			Collection: getEnv("QDRANT_COLLECTION", "knowledge_base"),
			Timeout:    getEnvDuration("QDRANT_TIMEOUT_SEC", 15*time.Second),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "capture-archive"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			Enabled:   getEnv("MINIO_ENDPOINT", "") != "",
		},
		Chunking: ChunkingConfig{
			SplitBy:      getEnv("CHUNK_SPLIT_BY", "sentence"),
			SplitLength:  getEnvInt("CHUNK_SPLIT_LENGTH", 10),
			SplitOverlap: getEnvInt("CHUNK_SPLIT_OVERLAP", 2),
			MinChunkSize: getEnvInt("CHUNK_MIN_SIZE", 3),
		},
		Retrieval: RetrievalConfig{
			MinScore:       getEnvFloat("RETRIEVAL_MIN_SCORE", 0.25),
			RelativeMargin: getEnvFloat("RETRIEVAL_RELATIVE_MARGIN", 0.25),
			DefaultLimit:   getEnvInt("RETRIEVAL_DEFAULT_LIMIT", 5),
			SearchTopK:     getEnvInt("RETRIEVAL_SEARCH_TOP_K", 50),
		},
		Processing: ProcessingConfig{
			MaxRetries:     getEnvInt("PROCESSING_MAX_RETRIES", 3),
			MaxContentSize: getEnvInt("MAX_CONTENT_SIZE", 1_000_000),
			SweepInterval:  getEnvDuration("RETRY_SWEEP_INTERVAL_SEC", 15*time.Minute),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		secs, err := strconv.Atoi(v)
		if err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}
