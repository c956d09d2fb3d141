package container

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jinford/tenant-rag/internal/core/ask"
	"github.com/jinford/tenant-rag/internal/core/ingestion"
	"github.com/jinford/tenant-rag/internal/core/retrieval"
	"github.com/jinford/tenant-rag/internal/infra/memory"
	"github.com/jinford/tenant-rag/internal/infra/openai"
	"github.com/jinford/tenant-rag/internal/infra/postgres"
	"github.com/jinford/tenant-rag/internal/infra/postgres/sqlc"
	"github.com/jinford/tenant-rag/internal/infra/redis"
	"github.com/jinford/tenant-rag/internal/infra/tokenizer"
	"github.com/jinford/tenant-rag/internal/platform/config"
	"github.com/jinford/tenant-rag/internal/platform/database"
	"github.com/jinford/tenant-rag/internal/platform/metrics"
)

// ServiceContainer はアプリケーションの依存関係を保持する。
type ServiceContainer struct {
	RetrievalService *retrieval.Service
	AskService       *ask.Service
	IngestionService *ingestion.Service
	ChatLogs         ask.ChatLogStore
	Metrics          *metrics.Metrics

	config    *config.Config
	logger    *slog.Logger
	database  *database.DB
	redis     *goredis.Client
	persister *ask.Persister
}

// NewContainer は設定とロガーからコンテナを生成する。
// VectorStore が pgvector の場合のみデータベースに接続する。
func NewContainer(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*ServiceContainer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.VectorStore != config.VectorStorePGVector {
		return NewContainerWithDB(ctx, logger, cfg, nil)
	}

	db, err := database.New(ctx, database.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
	}

	c, err := NewContainerWithDB(ctx, logger, cfg, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// NewContainerWithDB は既存の DB を受け取りコンテナを生成する。
// db が nil の場合はインメモリのバックエンドとチャットログを使う。
func NewContainerWithDB(ctx context.Context, logger *slog.Logger, cfg *config.Config, db *database.DB) (*ServiceContainer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := metrics.New()

	// Backend / ChatLogStore
	var backend retrieval.Backend
	var chatLogs ask.ChatLogStore
	if db != nil {
		backend = postgres.NewVectorBackend(db.Pool, logger)
		chatLogs = postgres.NewChatLogRepository(sqlc.New(db.Pool))
	} else {
		backend = memory.NewVectorBackend()
		chatLogs = memory.NewChatLogStore()
	}
	registry := retrieval.NewRegistry(backend, retrieval.WithRegistryLogger(logger))

	// Embedder (OpenAI) + Redis キャッシュ
	var embedder retrieval.Embedder = openai.NewEmbedder(cfg.OpenAI.APIKey,
		openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
		openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
		openai.WithEmbeddingBaseURL(cfg.OpenAI.BaseURL),
	)
	var redisClient *goredis.Client
	if cfg.Redis.Addr != "" {
		client, err := redis.Connect(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Warn("embedding cache disabled", "error", err)
		} else {
			redisClient = client
			namespace := fmt.Sprintf("%s:%d", cfg.OpenAI.EmbeddingModel, cfg.OpenAI.EmbeddingDimension)
			embedder = redis.NewCachedEmbedder(embedder, client, namespace,
				redis.WithTTL(cfg.Redis.TTL),
				redis.WithCacheMetrics(m),
				redis.WithCacheLogger(logger),
			)
		}
	}

	// Generator (OpenAI)
	generator, err := openai.NewClient(cfg.OpenAI.APIKey,
		openai.WithModel(cfg.OpenAI.LLMModel),
		openai.WithTemperature(cfg.OpenAI.Temperature),
		openai.WithTimeout(cfg.OpenAI.Timeout),
		openai.WithBaseURL(cfg.OpenAI.BaseURL),
	)
	if err != nil {
		closeRedis(redisClient)
		return nil, fmt.Errorf("LLMクライアント初期化に失敗しました: %w", err)
	}

	retrievalService := retrieval.NewService(registry, embedder,
		retrieval.WithLogger(logger),
		retrieval.WithDefaultTopK(cfg.Retrieval.DefaultTopK),
	)

	persister := ask.NewPersister(chatLogs,
		ask.WithPersistTimeout(cfg.PersistTimeout),
		ask.WithPersisterLogger(logger),
		ask.WithPersisterMetrics(m),
	)

	askOpts := []ask.ServiceOption{
		ask.WithLogger(logger),
		ask.WithPersister(persister),
		ask.WithMetrics(m),
		ask.WithDefaultBudget(ask.Budget{
			MaxSnippets: cfg.Prompt.MaxSnippets,
			MaxChars:    cfg.Prompt.MaxChars,
		}),
	}
	if counter := newTokenCounter(cfg.Prompt.TokenEncoding, logger); counter != nil {
		askOpts = append(askOpts, ask.WithTokenCounter(counter))
	}
	askService := ask.NewService(retrievalService, generator, askOpts...)

	ingestionService := ingestion.NewService(registry, embedder,
		ingestion.WithLogger(logger),
		ingestion.WithMetrics(m),
		ingestion.WithRedactor(ingestion.NewRedactor()),
	)

	logger.Info("container initialized",
		"vectorStore", registry.Backend(),
		"embeddingCache", redisClient != nil,
		"llmModel", generator.ModelName(),
	)

	return &ServiceContainer{
		RetrievalService: retrievalService,
		AskService:       askService,
		IngestionService: ingestionService,
		ChatLogs:         chatLogs,
		Metrics:          m,
		config:           cfg,
		logger:           logger,
		database:         db,
		redis:            redisClient,
		persister:        persister,
	}, nil
}

// Close は保存中のチャットログを待ってから内部リソースを解放する。
func (c *ServiceContainer) Close() {
	if c == nil {
		return
	}
	if c.persister != nil {
		c.persister.Wait()
	}
	closeRedis(c.redis)
	if c.database != nil {
		c.database.Close()
	}
}

// Logger はロガーを返す。
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// Config は設定を返す。
func (c *ServiceContainer) Config() *config.Config {
	return c.config
}

// Database はデータベースを返す。インメモリ構成では nil。
func (c *ServiceContainer) Database() *database.DB {
	if c == nil {
		return nil
	}
	return c.database
}

// newTokenCounter は "none" なら nil を返す
// BPE を取得できない場合は文字数からの概算に切り替える。
func newTokenCounter(encoding string, logger *slog.Logger) ask.TokenCounter {
	if encoding == "none" {
		return nil
	}
	counter, err := tokenizer.NewCounter(encoding)
	if err != nil {
		logger.Warn("falling back to estimated token counts", "encoding", encoding, "error", err)
		return tokenizer.Estimator{}
	}
	return counter
}

func closeRedis(client *goredis.Client) {
	if client != nil {
		_ = client.Close()
	}
}
