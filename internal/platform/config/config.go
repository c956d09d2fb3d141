package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// VectorStore の種別
const (
	VectorStorePGVector = "pgvector"
	VectorStoreMemory   = "memory"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	OpenAI    OpenAIConfig
	Redis     RedisConfig
	Retrieval RetrievalConfig
	Prompt    PromptConfig
	Log       LogConfig

	// VectorStore は "pgvector" または "memory"
	VectorStore string

	// PersistTimeout はチャットログ保存1件あたりの上限時間
	PersistTimeout time.Duration
}

// ServerConfig はHTTPサーバー設定
type ServerConfig struct {
	Port          int
	PublicKeys    []string
	AdminKey      string
	TenantDomains map[string]string // host -> tenant
	AllowOrigins  []string
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// URL はgolang-migrate用の接続URLを返します
func (c DatabaseConfig) URL(scheme string) string {
	return fmt.Sprintf("%s://%s:%s@%s:%d/%s?sslmode=%s",
		scheme, c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// OpenAIConfig はOpenAI API設定（Embeddings + LLM）
type OpenAIConfig struct {
	APIKey             string
	BaseURL            string // OpenAI互換サーバー（Ollama等）を使う場合に指定
	EmbeddingModel     string
	EmbeddingDimension int
	LLMModel           string
	Temperature        float64
	Timeout            time.Duration
}

// RedisConfig は埋め込みキャッシュ用のRedis設定
// Addr が空の場合キャッシュは無効
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RetrievalConfig は検索件数の設定
type RetrievalConfig struct {
	DefaultTopK int
	MaxTopK     int
}

// PromptConfig はプロンプト組み立ての予算
type PromptConfig struct {
	MaxSnippets int
	MaxChars    int

	// TokenEncoding は tiktoken のエンコーディング名。"none" でトークン計測を無効にする
	TokenEncoding string
}

// LogConfig はログ出力設定
type LogConfig struct {
	Level  string
	Format string
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:          getEnvAsInt("SERVER_PORT", 8080),
			PublicKeys:    getEnvAsList("API_PUBLIC_KEYS"),
			AdminKey:      getEnv("ADMIN_API_KEY", ""),
			TenantDomains: parseMap(getEnv("TENANT_DOMAINS", "")),
			AllowOrigins:  getEnvAsList("CORS_ALLOW_ORIGINS"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "tenantrag"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "tenantrag"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			BaseURL:            getEnv("OPENAI_BASE_URL", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			LLMModel:           getEnv("OPENAI_LLM_MODEL", "gpt-4o-mini"),
			Temperature:        getEnvAsFloat("LLM_TEMPERATURE", 0.2),
			Timeout:            getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			TTL:      getEnvAsDuration("EMBEDDING_CACHE_TTL", 24*time.Hour),
		},
		Retrieval: RetrievalConfig{
			DefaultTopK: getEnvAsInt("RETRIEVAL_DEFAULT_TOP_K", 5),
			MaxTopK:     getEnvAsInt("RETRIEVAL_MAX_TOP_K", 20),
		},
		Prompt: PromptConfig{
			MaxSnippets:   getEnvAsInt("PROMPT_MAX_SNIPPETS", 8),
			MaxChars:      getEnvAsInt("PROMPT_MAX_CHARS", 4000),
			TokenEncoding: getEnv("PROMPT_TOKEN_ENCODING", "cl100k_base"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		VectorStore:    strings.ToLower(getEnv("VECTOR_STORE", VectorStorePGVector)),
		PersistTimeout: getEnvAsDuration("PERSIST_TIMEOUT", 5*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate は設定値の整合性を検証します
func (c *Config) Validate() error {
	switch c.VectorStore {
	case VectorStorePGVector, VectorStoreMemory:
	default:
		return fmt.Errorf("unsupported VECTOR_STORE: %q", c.VectorStore)
	}
	if c.Retrieval.MaxTopK < 1 {
		return fmt.Errorf("RETRIEVAL_MAX_TOP_K must be positive: %d", c.Retrieval.MaxTopK)
	}
	if c.Retrieval.DefaultTopK < 1 || c.Retrieval.DefaultTopK > c.Retrieval.MaxTopK {
		return fmt.Errorf("RETRIEVAL_DEFAULT_TOP_K must be within 1..%d: %d", c.Retrieval.MaxTopK, c.Retrieval.DefaultTopK)
	}
	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は "30s" 形式、または秒数の整数を受け付けます
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// getEnvAsList はカンマ区切りの値を空要素を除いて返します
func getEnvAsList(key string) []string {
	var values []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// parseMap は "a.example.com:site-a,b.example.com:site-b" 形式を解析します
// ホスト名は小文字に正規化します。不正な要素は無視します。
func parseMap(s string) map[string]string {
	m := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, ":")
		k, v = strings.ToLower(strings.TrimSpace(k)), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		m[k] = v
	}
	return m
}
