package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder は呼び出された入力を記録する Embedder
type countingEmbedder struct {
	calls [][]string
	err   error
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls = append(e.calls, append([]string(nil), texts...))
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 0.5, -1}
	}
	return out, nil
}

type lookupRecorder struct {
	hits, misses int
}

func (r *lookupRecorder) EmbeddingCacheLookup(hits, misses int) {
	r.hits += hits
	r.misses += misses
}

func TestVectorEncoding(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3.4028235e38}

	out, err := decodeVector(encodeVector(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
	_, err = decodeVector(nil)
	assert.Error(t, err)
}

func TestCachedEmbedder_KeyIncludesNamespace(t *testing.T) {
	a := NewCachedEmbedder(&countingEmbedder{}, nil, "model-a:1536")
	b := NewCachedEmbedder(&countingEmbedder{}, nil, "model-b:1536")

	assert.NotEqual(t, a.key("hello"), b.key("hello"))
	assert.Equal(t, a.key("hello"), a.key("hello"))
	assert.Contains(t, a.key("hello"), "model-a:1536")
}

func TestCachedEmbedder_FallsBackWhenRedisIsDown(t *testing.T) {
	// Setup
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	next := &countingEmbedder{}
	cache := NewCachedEmbedder(next, client, "m")

	// Execute
	vecs, err := cache.Embed(context.Background(), []string{"abc"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{3, 0.5, -1}}, vecs)
	assert.Len(t, next.calls, 1)
}

func startRedis(t *testing.T) *goredis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker not reachable: %v", err)
	}
	pool.MaxWait = 60 * time.Second

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "redis",
		Tag:        "7-alpine",
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Purge(resource) })

	var client *goredis.Client
	err = pool.Retry(func() error {
		var err error
		client, err = Connect(context.Background(), Options{Addr: "localhost:" + resource.GetPort("6379/tcp")})
		return err
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestCachedEmbedder_Integration(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()

	t.Run("second lookup is served from cache", func(t *testing.T) {
		next := &countingEmbedder{}
		rec := &lookupRecorder{}
		cache := NewCachedEmbedder(next, client, "it-1", WithTTL(time.Minute), WithCacheMetrics(rec))

		first, err := cache.Embed(ctx, []string{"a", "bb"})
		require.NoError(t, err)

		second, err := cache.Embed(ctx, []string{"bb", "ccc", "a"})
		require.NoError(t, err)

		assert.Equal(t, [][]float32{{1, 0.5, -1}, {2, 0.5, -1}}, first)
		assert.Equal(t, [][]float32{{2, 0.5, -1}, {3, 0.5, -1}, {1, 0.5, -1}}, second)
		assert.Equal(t, [][]string{{"a", "bb"}, {"ccc"}}, next.calls)
		assert.Equal(t, 2, rec.hits)
		assert.Equal(t, 3, rec.misses)

		ttl, err := client.TTL(ctx, cache.key("a")).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
	})

	t.Run("embedder error is returned and nothing is cached", func(t *testing.T) {
		next := &countingEmbedder{err: errors.New("upstream down")}
		cache := NewCachedEmbedder(next, client, "it-2")

		_, err := cache.Embed(ctx, []string{"x"})
		require.Error(t, err)

		n, err := client.Exists(ctx, cache.key("x")).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})
}
