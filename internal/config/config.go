package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        int               `json:"port"`
	RoutePrefix string            `json:"route_prefix"`
	LogConfig   logger.LogConfig  `json:"log_config"`
	Database    DatabaseConfig    `json:"database"`
	FileStore   FileStoreConfig   `json:"file_store"`
	Queue       QueueConfig       `json:"queue"`
	Worker      WorkerConfig      `json:"worker"`
	VectorIndex VectorIndexConfig `json:"vector_index"`
	AI          AIConfig          `json:"ai"`
	RAG         RAGConfig         `json:"rag"`
	Loader      LoaderConfig      `json:"loader"`
	Upload      UploadConfig      `json:"upload"`
	Auth        AuthConfig        `json:"auth"`
	CORS        CORSConfig        `json:"cors"`
	Schedule    ScheduleConfig    `json:"schedule"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

func (c DatabaseConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, port, c.User, c.Password, c.DBName, sslmode)
}

func (c DatabaseConfig) Enabled() bool {
	return c.DSN != "" || c.Host != ""
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type QueueConfig struct {
	Type           string `json:"type"`
	PollIntervalMs int    `json:"poll_interval_ms"`
	Notify         bool   `json:"notify"`
}

type WorkerConfig struct {
	Embedded          bool `json:"embedded"`
	Concurrency       int  `json:"concurrency"`
	JobTimeoutSeconds int  `json:"job_timeout_seconds"`
}

type VectorIndexConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type AIProviderConfig struct {
	Name string      `json:"name"`
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type AIModelRef struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type AIConfig struct {
	Providers         []AIProviderConfig `json:"providers"`
	Generators        []AIModelRef       `json:"generators"`
	Embedders         []AIModelRef       `json:"embedders"`
	GeneratorFallback bool               `json:"generator_fallback"`
	TimeoutSeconds    int                `json:"timeout_seconds"`
	EmbedBatchSize    int                `json:"embed_batch_size"`
	EmbedRPS          float64            `json:"embed_rps"`
	EmbedCache        EmbedCacheConfig   `json:"embed_cache"`
}

type EmbedCacheConfig struct {
	LRUSize    int  `json:"lru_size"`
	LRUTTLSecs int  `json:"lru_ttl_seconds"`
	DB         bool `json:"db"`
	MaxAgeDays int  `json:"max_age_days"`
}

// RAGConfig.ChunkOverlap is a pointer so an explicit 0 survives defaulting.
type RAGConfig struct {
	ChatTopK     int  `json:"chat_top_k"`
	SummaryTopK  int  `json:"summary_top_k"`
	ChunkSize    int  `json:"chunk_size"`
	ChunkOverlap *int `json:"chunk_overlap"`
}

type LoaderConfig struct {
	// PDFEngine is "native" (in-process) or "pdftotext" (poppler binary).
	PDFEngine string `json:"pdf_engine"`
}

type UploadConfig struct {
	MaxSizeBytes int64    `json:"max_size_bytes"`
	AllowedExts  []string `json:"allowed_exts"`
}

type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

type CORSConfig struct {
	AllowOrigins []string `json:"allow_origins"`
}

type ScheduleConfig struct {
	Enabled               bool `json:"enabled"`
	StaleActiveMinutes    int  `json:"stale_active_minutes"`
	JobRetentionHours     int  `json:"job_retention_hours"`
	RateLimitWindowMillis int  `json:"rate_limit_window_ms"`
}

// Load reads the config file at path. The format follows the extension:
// .yaml/.yml and .toml are accepted besides JSON. ${VAR} references are
// expanded from the environment after loading an optional .env file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	data, err := normalize(filepath.Ext(path), []byte(os.ExpandEnv(string(raw))))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	var cfg Config
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func normalize(ext string, data []byte) ([]byte, error) {
	var generic map[string]interface{}
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, err
		}
	case ".toml":
		if err := toml.Unmarshal(data, &generic); err != nil {
			return nil, err
		}
	default:
		return data, nil
	}
	return json.Marshal(generic)
}

func applyDefaults(cfg *Config) error {
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.RoutePrefix == "" {
		cfg.RoutePrefix = "/"
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.Queue.Type == "" {
		cfg.Queue.Type = "postgres"
	}
	if cfg.Queue.PollIntervalMs <= 0 {
		cfg.Queue.PollIntervalMs = 2000
	}
	if cfg.Worker.Concurrency <= 0 {
		cfg.Worker.Concurrency = 1
	}
	if cfg.Worker.JobTimeoutSeconds <= 0 {
		cfg.Worker.JobTimeoutSeconds = 300
	}
	if cfg.VectorIndex.Type == "" {
		cfg.VectorIndex.Type = "pgvector"
	}
	if cfg.AI.TimeoutSeconds <= 0 {
		cfg.AI.TimeoutSeconds = 60
	}
	if cfg.AI.EmbedBatchSize <= 0 {
		cfg.AI.EmbedBatchSize = 32
	}
	if cfg.AI.EmbedCache.MaxAgeDays <= 0 {
		cfg.AI.EmbedCache.MaxAgeDays = 30
	}
	if cfg.RAG.ChatTopK <= 0 {
		cfg.RAG.ChatTopK = 2
	}
	if cfg.RAG.SummaryTopK <= 0 {
		cfg.RAG.SummaryTopK = 10
	}
	if cfg.RAG.ChunkSize <= 0 {
		cfg.RAG.ChunkSize = 1000
	}
	if cfg.RAG.ChunkOverlap == nil {
		overlap := 200
		cfg.RAG.ChunkOverlap = &overlap
	}
	if *cfg.RAG.ChunkOverlap < 0 {
		return fmt.Errorf("rag.chunk_overlap must not be negative")
	}
	if cfg.Loader.PDFEngine == "" {
		cfg.Loader.PDFEngine = "native"
	}
	switch cfg.Loader.PDFEngine {
	case "native", "pdftotext":
	default:
		return fmt.Errorf("loader.pdf_engine must be native or pdftotext")
	}
	if cfg.Upload.MaxSizeBytes <= 0 {
		cfg.Upload.MaxSizeBytes = 20 * 1024 * 1024
	}
	if len(cfg.Upload.AllowedExts) == 0 {
		cfg.Upload.AllowedExts = []string{".pdf", ".md", ".markdown", ".txt"}
	}
	if cfg.Schedule.StaleActiveMinutes <= 0 {
		cfg.Schedule.StaleActiveMinutes = 30
	}
	if cfg.Schedule.JobRetentionHours <= 0 {
		cfg.Schedule.JobRetentionHours = 168
	}

	// the reaper must never fail a job the worker is still allowed to run
	if cfg.Worker.JobTimeoutSeconds >= cfg.Schedule.StaleActiveMinutes*60 {
		return fmt.Errorf("worker.job_timeout_seconds (%d) must be less than schedule.stale_active_minutes (%d) in seconds",
			cfg.Worker.JobTimeoutSeconds, cfg.Schedule.StaleActiveMinutes)
	}

	// conversations always live in postgres
	if !cfg.Database.Enabled() {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	switch cfg.Queue.Type {
	case "postgres", "memory":
	default:
		return fmt.Errorf("queue.type must be postgres or memory")
	}
	if len(cfg.AI.Providers) == 0 {
		return fmt.Errorf("ai.providers is required")
	}
	if len(cfg.AI.Generators) == 0 {
		return fmt.Errorf("ai.generators is required")
	}
	if len(cfg.AI.Generators) > 1 && !cfg.AI.GeneratorFallback {
		return fmt.Errorf("ai.generators lists more than one model but ai.generator_fallback is off")
	}
	if len(cfg.AI.Embedders) != 1 {
		return fmt.Errorf("ai.embedders must list exactly one model")
	}
	return nil
}
