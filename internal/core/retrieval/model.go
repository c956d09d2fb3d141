package retrieval

import (
	"context"

	"github.com/samber/mo"
)

// Hit はベクトル検索の1件分の結果を表す
// Score はバックエンドの値をそのまま保持する（pgvector はコサイン距離、memory はコサイン類似度）
type Hit struct {
	ID       string
	Score    float64
	Metadata Metadata
}

// Metadata はチャンクに付随するメタデータ
type Metadata struct {
	DocID      string
	Filename   string
	Text       string
	CustomerID string
	Page       mo.Option[int]
}

// Filter は検索時のメタデータ等価フィルタ
type Filter struct {
	CustomerID mo.Option[string]
}

// Item はインデックスに登録する1チャンク
type Item struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Embedder はテキストのEmbedding生成インターフェース
// 入力と同じ数・同じ順序のベクトルを返すことが期待されるが、呼び出し側で件数を検証する
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Index はテナント1つ分のベクトルインデックス
type Index interface {
	// Upsert はアイテムを登録（同一IDは上書き）し、登録件数を返す
	Upsert(ctx context.Context, items []Item) (int, error)
	// Query は類似度順に最大 topK 件を返す
	Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Hit, error)
}

// Backend はテナントごとの Index を開くベクトルストア実装
type Backend interface {
	Name() string
	Open(ctx context.Context, tenantID string) (Index, error)
}

// CollectionName はテナントのコレクション名を返す
func CollectionName(tenantID string) string {
	return "docs-" + tenantID
}
