package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/tenant-rag/internal/core/retrieval"
	"github.com/jinford/tenant-rag/internal/infra/postgres/sqlc"
	"github.com/jinford/tenant-rag/internal/platform/database"
)

// BackendName はこのバックエンドの名前
const BackendName = "pgvector"

// VectorBackend は pgvector を使ってテナントごとのコレクションを扱う
// 全テナントが documents テーブルを共有し、collection 列（docs-<tenant>）で分離する。
type VectorBackend struct {
	pool   *pgxpool.Pool
	q      sqlc.Querier
	logger *slog.Logger
}

// NewVectorBackend は新しい VectorBackend を作成する
func NewVectorBackend(pool *pgxpool.Pool, logger *slog.Logger) *VectorBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &VectorBackend{pool: pool, q: sqlc.New(pool), logger: logger}
}

// Name implements retrieval.Backend.
func (b *VectorBackend) Name() string {
	return BackendName
}

// Open はテナントのコレクションを返す
// スキーマ未適用の場合はここでエラーになる。
func (b *VectorBackend) Open(ctx context.Context, tenantID string) (retrieval.Index, error) {
	collection := retrieval.CollectionName(tenantID)

	count, err := b.q.CountDocuments(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", collection, err)
	}

	b.logger.Info("collection opened", "collection", collection, "documents", count)

	return &Collection{pool: b.pool, q: b.q, name: collection}, nil
}

// Collection はテナント1つ分の pgvector インデックス
type Collection struct {
	pool *pgxpool.Pool
	q    sqlc.Querier
	name string
}

// Upsert はアイテムを1トランザクションで登録する
func (c *Collection) Upsert(ctx context.Context, items []retrieval.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	params := make([]sqlc.UpsertDocumentParams, 0, len(items))
	for _, item := range items {
		if item.ID == "" || len(item.Vector) == 0 {
			continue
		}
		meta, err := MetadataToJSON(item.Metadata)
		if err != nil {
			return 0, err
		}
		params = append(params, sqlc.UpsertDocumentParams{
			Collection: c.name,
			ID:         item.ID,
			Embedding:  pgvector.NewVector(item.Vector),
			Metadata:   meta,
		})
	}
	if len(params) == 0 {
		return 0, nil
	}

	return database.Transact(ctx, c.pool, func(tx pgx.Tx) (int, error) {
		qtx := sqlc.New(tx)
		for i, p := range params {
			if err := qtx.UpsertDocument(ctx, p); err != nil {
				return 0, fmt.Errorf("upsert document %d: %w", i, err)
			}
		}
		return len(params), nil
	})
}

// Query はコサイン距離の昇順で最大 topK 件を返す
func (c *Collection) Query(ctx context.Context, vector []float32, topK int, filter retrieval.Filter) ([]retrieval.Hit, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if topK <= 0 {
		topK = retrieval.DefaultTopK
	}

	rows, err := c.q.SearchDocuments(ctx, sqlc.SearchDocumentsParams{
		QueryVector: pgvector.NewVector(vector),
		Collection:  c.name,
		CustomerID:  OptionToPgtext(filter.CustomerID),
		RowLimit:    int32(topK),
	})
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}

	// Score は pgvector のコサイン距離（小さいほど近い）
	hits := make([]retrieval.Hit, 0, len(rows))
	for _, row := range rows {
		hits = append(hits, retrieval.Hit{
			ID:       row.ID,
			Score:    row.Distance,
			Metadata: JSONToMetadata(row.Metadata),
		})
	}

	return hits, nil
}

var (
	_ retrieval.Backend = (*VectorBackend)(nil)
	_ retrieval.Index   = (*Collection)(nil)
)
