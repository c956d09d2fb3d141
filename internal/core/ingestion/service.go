package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/tenant-rag/internal/core/retrieval"
)

// DefaultEmbedBatchSize は1回の埋め込みリクエストに含めるチャンク数
const DefaultEmbedBatchSize = 100

// ErrEmptyDocument は取り込むテキストが空の場合のエラー
var ErrEmptyDocument = errors.New("empty document")

// IngestParams はドキュメント取り込みのパラメータ
type IngestParams struct {
	TenantID   string
	Filename   string
	CustomerID mo.Option[string]
	Text       string
}

// IngestResult は取り込み結果
type IngestResult struct {
	DocID  string
	Chunks int
}

// Metrics は取り込みの計測先
type Metrics interface {
	ChunksIngested(n int)
}

// Service はテキストを分割・埋め込みしてテナントのインデックスに登録する
type Service struct {
	registry  *retrieval.Registry
	embedder  retrieval.Embedder
	chunkSize int
	overlap   int
	batchSize int
	metrics   Metrics
	redactor  *Redactor
	logger    *slog.Logger
	newID     func() string
}

// ServiceOption は Service のオプション
type ServiceOption func(*Service)

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithChunking はチャンクサイズとオーバーラップを設定する
func WithChunking(size, overlap int) ServiceOption {
	return func(s *Service) {
		s.chunkSize = size
		s.overlap = overlap
	}
}

// WithEmbedBatchSize は埋め込みのバッチサイズを設定する
func WithEmbedBatchSize(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithMetrics は計測先を設定する
func WithMetrics(metrics Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// WithRedactor は取り込み前に秘匿情報をマスクする
func WithRedactor(redactor *Redactor) ServiceOption {
	return func(s *Service) {
		s.redactor = redactor
	}
}

// NewService は新しい Service を作成する
func NewService(registry *retrieval.Registry, embedder retrieval.Embedder, opts ...ServiceOption) *Service {
	s := &Service{
		registry:  registry,
		embedder:  embedder,
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		batchSize: DefaultEmbedBatchSize,
		newID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Ingest はテキストを取り込み、生成したドキュメントIDとチャンク数を返す
// チャンクID は "<docID>-<連番>"、メタデータの page は 1 始まりの連番。
func (s *Service) Ingest(ctx context.Context, params IngestParams) (*IngestResult, error) {
	if strings.TrimSpace(params.Text) == "" {
		return nil, ErrEmptyDocument
	}

	index, err := s.registry.Get(ctx, params.TenantID)
	if err != nil {
		return nil, err
	}

	text := params.Text
	if s.redactor != nil {
		var masked int
		if text, masked = s.redactor.Redact(text); masked > 0 {
			s.logger.Warn("secrets masked before ingestion", "tenant", params.TenantID, "filename", params.Filename, "count", masked)
		}
	}

	chunks := ChunkText(text, s.chunkSize, s.overlap)
	docID := s.newID()
	customerID := params.CustomerID.OrEmpty()

	s.logger.Info("ingesting document",
		"tenant", params.TenantID,
		"docID", docID,
		"filename", params.Filename,
		"chunks", len(chunks),
	)

	total := 0
	for start := 0; start < len(chunks); start += s.batchSize {
		end := min(start+s.batchSize, len(chunks))
		batch := chunks[start:end]

		vectors, err := s.embedder.Embed(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		items := make([]retrieval.Item, len(batch))
		for i, text := range batch {
			idx := start + i
			items[i] = retrieval.Item{
				ID:     fmt.Sprintf("%s-%d", docID, idx),
				Vector: vectors[i],
				Metadata: retrieval.Metadata{
					DocID:      docID,
					Filename:   params.Filename,
					Page:       mo.Some(idx + 1),
					Text:       text,
					CustomerID: customerID,
				},
			}
		}

		n, err := index.Upsert(ctx, items)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert chunks: %w", err)
		}
		total += n
		s.logger.Debug("batch upserted", "docID", docID, "from", start, "count", n)
	}

	if s.metrics != nil {
		s.metrics.ChunksIngested(total)
	}

	s.logger.Info("document ingested", "tenant", params.TenantID, "docID", docID, "chunks", total)

	return &IngestResult{DocID: docID, Chunks: total}, nil
}
