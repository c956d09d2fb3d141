package redis

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jinford/tenant-rag/internal/core/retrieval"
)

// DefaultTTL はキャッシュエントリの有効期限
const DefaultTTL = 24 * time.Hour

const keyPrefix = "tenant-rag:emb:"

// CacheMetrics はヒット/ミスの計測先
type CacheMetrics interface {
	EmbeddingCacheLookup(hits, misses int)
}

// CachedEmbedder は Embedder の結果を Redis にキャッシュする
// Redis の障害はキャッシュなしとして扱い、埋め込み処理自体は失敗させない。
type CachedEmbedder struct {
	next      retrieval.Embedder
	client    goredis.Cmdable
	namespace string
	ttl       time.Duration
	metrics   CacheMetrics
	logger    *slog.Logger
}

// CacheOption は CachedEmbedder のオプション
type CacheOption func(*CachedEmbedder)

// WithTTL はキャッシュの有効期限を設定する
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *CachedEmbedder) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheMetrics は計測先を設定する
func WithCacheMetrics(metrics CacheMetrics) CacheOption {
	return func(c *CachedEmbedder) {
		c.metrics = metrics
	}
}

// WithCacheLogger はロガーを設定する
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *CachedEmbedder) {
		c.logger = logger
	}
}

// NewCachedEmbedder は next をキャッシュで包む
// namespace にはモデル名と次元など、ベクトルの互換性を決める値を渡す。
func NewCachedEmbedder(next retrieval.Embedder, client goredis.Cmdable, namespace string, opts ...CacheOption) *CachedEmbedder {
	c := &CachedEmbedder{
		next:      next,
		client:    client,
		namespace: namespace,
		ttl:       DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Embed はキャッシュ済みのベクトルを使い、未キャッシュ分だけ next に問い合わせる
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return c.next.Embed(ctx, texts)
	}

	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = c.key(text)
	}

	cached, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("embedding cache lookup failed", "error", err)
		return c.next.Embed(ctx, texts)
	}

	result := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, v := range cached {
		if s, ok := v.(string); ok {
			if vec, err := decodeVector([]byte(s)); err == nil {
				result[i] = vec
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, texts[i])
	}

	if c.metrics != nil {
		c.metrics.EmbeddingCacheLookup(len(texts)-len(missTexts), len(missTexts))
	}

	if len(missTexts) == 0 {
		return result, nil
	}

	fresh, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(fresh), len(missTexts))
	}

	pipe := c.client.Pipeline()
	for j, idx := range missIdx {
		result[idx] = fresh[j]
		pipe.Set(ctx, keys[idx], encodeVector(fresh[j]), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("embedding cache store failed", "error", err)
	}

	return result, nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return keyPrefix + c.namespace + ":" + hex.EncodeToString(sum[:])
}

// encodeVector は float32 をリトルエンディアンで詰める
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid vector payload length %d", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

var _ retrieval.Embedder = (*CachedEmbedder)(nil)
