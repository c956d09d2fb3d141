package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// DefaultTopK は topK 未指定時の取得件数
const DefaultTopK = 5

// Service は質問文からテナントのインデックスを検索する
type Service struct {
	registry    *Registry
	embedder    Embedder
	defaultTopK int
	logger      *slog.Logger
}

// ServiceOption は Service のオプション
type ServiceOption func(*Service)

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithDefaultTopK は topK <= 0 の場合に使う件数を設定する
func WithDefaultTopK(topK int) ServiceOption {
	return func(s *Service) {
		if topK > 0 {
			s.defaultTopK = topK
		}
	}
}

// NewService は新しい Service を作成する
func NewService(registry *Registry, embedder Embedder, opts ...ServiceOption) *Service {
	s := &Service{
		registry:    registry,
		embedder:    embedder,
		defaultTopK: DefaultTopK,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Retrieve は質問文を埋め込み、テナントのインデックスから類似チャンクを返す
// 結果の順序はバックエンドの返した順のまま。再試行は行わない。
func (s *Service) Retrieve(ctx context.Context, tenantID, question string, topK int, filter Filter) ([]Hit, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	if err := ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = s.defaultTopK
	}

	s.logger.Debug("embedding question", "tenant", tenantID, "topK", topK)

	vectors, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("%w: embed question: %w", ErrRetrievalFailed, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for 1 input", ErrRetrievalFailed, len(vectors))
	}

	index, err := s.registry.Get(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrievalFailed, err)
	}

	hits, err := index.Query(ctx, vectors[0], topK, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: query index: %w", ErrRetrievalFailed, err)
	}

	s.logger.Info("retrieval completed", "tenant", tenantID, "topK", topK, "hits", len(hits))

	return hits, nil
}
