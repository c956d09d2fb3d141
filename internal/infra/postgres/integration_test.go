package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/tenant-rag/internal/core/ask"
	"github.com/jinford/tenant-rag/internal/core/retrieval"
	"github.com/jinford/tenant-rag/internal/infra/postgres/sqlc"
	"github.com/jinford/tenant-rag/internal/platform/config"
	"github.com/jinford/tenant-rag/internal/platform/database"
)

// startPostgres は pgvector 入りの PostgreSQL コンテナを起動し、マイグレーション済みの接続を返す
// Docker が使えない環境ではスキップする。
func startPostgres(t *testing.T) *database.DB {
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
	pool.MaxWait = 90 * time.Second

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "pgvector/pgvector",
		Tag:        "pg16",
		Env: []string{
			"POSTGRES_USER=tenantrag",
			"POSTGRES_PASSWORD=tenantrag",
			"POSTGRES_DB=tenantrag",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Purge(resource) })

	var port int
	_, err = fmt.Sscanf(resource.GetPort("5432/tcp"), "%d", &port)
	require.NoError(t, err)

	dbCfg := config.DatabaseConfig{
		Host:     "localhost",
		Port:     port,
		User:     "tenantrag",
		Password: "tenantrag",
		DBName:   "tenantrag",
		SSLMode:  "disable",
	}

	var db *database.DB
	err = pool.Retry(func() error {
		var err error
		db, err = database.New(context.Background(), database.ConnectionParams{
			Host: dbCfg.Host, Port: dbCfg.Port, User: dbCfg.User,
			Password: dbCfg.Password, DBName: dbCfg.DBName, SSLMode: dbCfg.SSLMode,
		})
		return err
	})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, database.Migrate(dbCfg.URL(database.MigrationScheme), "up", 0))
	// 2回目は変更なしでもエラーにならない
	require.NoError(t, database.Migrate(dbCfg.URL(database.MigrationScheme), "up", 0))

	return db
}

func TestPostgresIntegration(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	t.Run("vector backend upsert and query", func(t *testing.T) {
		backend := NewVectorBackend(db.Pool, nil)
		index, err := backend.Open(ctx, "site-a")
		require.NoError(t, err)

		n, err := index.Upsert(ctx, []retrieval.Item{
			{ID: "d1-0", Vector: []float32{1, 0, 0}, Metadata: retrieval.Metadata{DocID: "d1", Filename: "a.txt", Page: mo.Some(1), Text: "alpha", CustomerID: "c1"}},
			{ID: "d1-1", Vector: []float32{0, 1, 0}, Metadata: retrieval.Metadata{DocID: "d1", Filename: "a.txt", Page: mo.Some(2), Text: "bravo", CustomerID: "c2"}},
			{ID: "d2-0", Vector: []float32{0.9, 0.1, 0}, Metadata: retrieval.Metadata{DocID: "d2", Text: "charlie"}},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		hits, err := index.Query(ctx, []float32{1, 0, 0}, 2, retrieval.Filter{})
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "d1-0", hits[0].ID)
		assert.Equal(t, "d2-0", hits[1].ID)
		assert.LessOrEqual(t, hits[0].Score, hits[1].Score, "cosine distance ascending")
		assert.Equal(t, retrieval.Metadata{DocID: "d1", Filename: "a.txt", Page: mo.Some(1), Text: "alpha", CustomerID: "c1"}, hits[0].Metadata)

		filtered, err := index.Query(ctx, []float32{1, 0, 0}, 5, retrieval.Filter{CustomerID: mo.Some("c2")})
		require.NoError(t, err)
		require.Len(t, filtered, 1)
		assert.Equal(t, "d1-1", filtered[0].ID)

		other, err := backend.Open(ctx, "site-b")
		require.NoError(t, err)
		empty, err := other.Query(ctx, []float32{1, 0, 0}, 5, retrieval.Filter{})
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("upsert overwrites by id", func(t *testing.T) {
		index, err := NewVectorBackend(db.Pool, nil).Open(ctx, "site-c")
		require.NoError(t, err)

		_, err = index.Upsert(ctx, []retrieval.Item{{ID: "x", Vector: []float32{1, 0}, Metadata: retrieval.Metadata{Text: "old"}}})
		require.NoError(t, err)
		_, err = index.Upsert(ctx, []retrieval.Item{{ID: "x", Vector: []float32{1, 0}, Metadata: retrieval.Metadata{Text: "new"}}})
		require.NoError(t, err)

		hits, err := index.Query(ctx, []float32{1, 0}, 5, retrieval.Filter{})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "new", hits[0].Metadata.Text)
	})

	t.Run("chat log record and list", func(t *testing.T) {
		repo := NewChatLogRepository(sqlc.New(db.Pool))
		base := time.Now().UTC().Truncate(time.Millisecond)

		require.NoError(t, repo.Record(ctx, ask.ChatLog{TenantID: "site-a", Question: "q1", Answer: "a1", Mode: ask.ModeSingle, CreatedAt: base}))
		require.NoError(t, repo.Record(ctx, ask.ChatLog{TenantID: "site-a", CustomerID: mo.Some("c1"), Question: "q2", Answer: "a", Mode: ask.ModeStream, Partial: true, CreatedAt: base.Add(time.Second)}))
		require.NoError(t, repo.Record(ctx, ask.ChatLog{TenantID: "site-b", Question: "other", Answer: "x", Mode: ask.ModeSingle, CreatedAt: base}))

		logs, err := repo.ListRecent(ctx, "site-a", 10, 0)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, "q2", logs[0].Question)
		assert.True(t, logs[0].Partial)
		assert.Equal(t, mo.Some("c1"), logs[0].CustomerID)
		assert.True(t, logs[1].CustomerID.IsAbsent())

		older, err := repo.ListRecent(ctx, "site-a", 10, 1)
		require.NoError(t, err)
		require.Len(t, older, 1)
		assert.Equal(t, "q1", older[0].Question)
	})
}
