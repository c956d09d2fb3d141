package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/jinford/tenant-rag/internal/core/retrieval"
)

// BackendName はこのバックエンドの名前
const BackendName = "memory"

// VectorBackend はプロセス内メモリにテナントごとのコレクションを保持する
// 開発・テスト用。Score はコサイン類似度（大きいほど近い）。
type VectorBackend struct {
	mu          sync.Mutex
	collections map[string]*Collection
}

// NewVectorBackend は新しい VectorBackend を作成する
func NewVectorBackend() *VectorBackend {
	return &VectorBackend{
		collections: make(map[string]*Collection),
	}
}

// Name implements retrieval.Backend.
func (b *VectorBackend) Name() string {
	return BackendName
}

// Open はテナントのコレクションを返す（存在しなければ作成する）
func (b *VectorBackend) Open(_ context.Context, tenantID string) (retrieval.Index, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	name := retrieval.CollectionName(tenantID)
	c, ok := b.collections[name]
	if !ok {
		c = &Collection{name: name, items: make(map[string]retrieval.Item)}
		b.collections[name] = c
	}
	return c, nil
}

// Collection はテナント1つ分のインメモリインデックス
type Collection struct {
	name string

	mu    sync.RWMutex
	items map[string]retrieval.Item
	order []string // 挿入順（同スコア時の順序を安定させる）
}

// Upsert はアイテムを登録（同一IDは上書き）する
func (c *Collection) Upsert(_ context.Context, items []retrieval.Item) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, item := range items {
		if item.ID == "" || len(item.Vector) == 0 {
			continue
		}
		if _, exists := c.items[item.ID]; !exists {
			c.order = append(c.order, item.ID)
		}
		item.Vector = append([]float32(nil), item.Vector...)
		c.items[item.ID] = item
		n++
	}
	return n, nil
}

// Query はコサイン類似度の降順で最大 topK 件を返す
func (c *Collection) Query(_ context.Context, vector []float32, topK int, filter retrieval.Filter) ([]retrieval.Hit, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if topK <= 0 {
		topK = retrieval.DefaultTopK
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	customerID, filterByCustomer := filter.CustomerID.Get()

	hits := make([]retrieval.Hit, 0, len(c.order))
	for _, id := range c.order {
		item := c.items[id]
		if filterByCustomer && item.Metadata.CustomerID != customerID {
			continue
		}
		score := cosineSimilarity(vector, item.Vector)
		if math.IsNaN(score) {
			continue
		}
		hits = append(hits, retrieval.Hit{ID: id, Score: score, Metadata: item.Metadata})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Len は登録件数を返す
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		av := float64(a[i])
		bv := float64(b[i])
		dot += av * bv
		na += av * av
		nb += bv * bv
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var (
	_ retrieval.Backend = (*VectorBackend)(nil)
	_ retrieval.Index   = (*Collection)(nil)
)
