package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/tenant-rag/internal/core/ask"
	"github.com/jinford/tenant-rag/internal/core/retrieval"
	"github.com/jinford/tenant-rag/internal/infra/postgres/sqlc"
)

// stubQuerier は sqlc.Querier のスタブ
type stubQuerier struct {
	sqlc.Querier
	InsertChatLogFunc   func(ctx context.Context, arg sqlc.InsertChatLogParams) error
	ListChatLogsFunc    func(ctx context.Context, arg sqlc.ListChatLogsParams) ([]sqlc.ChatLog, error)
	SearchDocumentsFunc func(ctx context.Context, arg sqlc.SearchDocumentsParams) ([]sqlc.SearchDocumentsRow, error)
}

func (s *stubQuerier) InsertChatLog(ctx context.Context, arg sqlc.InsertChatLogParams) error {
	return s.InsertChatLogFunc(ctx, arg)
}

func (s *stubQuerier) ListChatLogs(ctx context.Context, arg sqlc.ListChatLogsParams) ([]sqlc.ChatLog, error) {
	return s.ListChatLogsFunc(ctx, arg)
}

func (s *stubQuerier) SearchDocuments(ctx context.Context, arg sqlc.SearchDocumentsParams) ([]sqlc.SearchDocumentsRow, error) {
	return s.SearchDocumentsFunc(ctx, arg)
}

func TestChatLogRepository_Record(t *testing.T) {
	// Setup
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var got sqlc.InsertChatLogParams
	repo := NewChatLogRepository(&stubQuerier{
		InsertChatLogFunc: func(_ context.Context, arg sqlc.InsertChatLogParams) error {
			got = arg
			return nil
		},
	})

	// Execute
	err := repo.Record(context.Background(), ask.ChatLog{
		TenantID:   "site-a",
		CustomerID: mo.Some("c1"),
		Question:   "q",
		Answer:     "a",
		Mode:       ask.ModeStream,
		Partial:    true,
		CreatedAt:  created,
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, sqlc.InsertChatLogParams{
		TenantID:   "site-a",
		CustomerID: pgtype.Text{String: "c1", Valid: true},
		Question:   "q",
		Answer:     "a",
		Mode:       ask.ModeStream,
		Partial:    true,
		CreatedAt:  created,
	}, got)
}

func TestChatLogRepository_ListRecent(t *testing.T) {
	var got sqlc.ListChatLogsParams
	q := &stubQuerier{
		ListChatLogsFunc: func(_ context.Context, arg sqlc.ListChatLogsParams) ([]sqlc.ChatLog, error) {
			got = arg
			return []sqlc.ChatLog{
				{ID: 2, TenantID: "site-a", CustomerID: pgtype.Text{String: "c1", Valid: true}, Question: "q2", Mode: ask.ModeSingle},
				{ID: 1, TenantID: "site-a", Question: "q1", Mode: ask.ModeStream, Partial: true},
			}, nil
		},
	}
	repo := NewChatLogRepository(q)

	t.Run("limit and offset are passed through", func(t *testing.T) {
		logs, err := repo.ListRecent(context.Background(), "site-a", 10, 20)
		require.NoError(t, err)

		assert.Equal(t, sqlc.ListChatLogsParams{TenantID: "site-a", RowLimit: 10, RowOffset: 20}, got)
		require.Len(t, logs, 2)
		assert.Equal(t, mo.Some("c1"), logs[0].CustomerID)
		assert.True(t, logs[1].CustomerID.IsAbsent())
		assert.True(t, logs[1].Partial)
	})

	t.Run("non positive limit uses default", func(t *testing.T) {
		_, err := repo.ListRecent(context.Background(), "site-a", 0, -5)
		require.NoError(t, err)

		assert.Equal(t, int32(DefaultChatLogLimit), got.RowLimit)
		assert.Equal(t, int32(0), got.RowOffset)
	})

	t.Run("query error is wrapped", func(t *testing.T) {
		q.ListChatLogsFunc = func(context.Context, sqlc.ListChatLogsParams) ([]sqlc.ChatLog, error) {
			return nil, errors.New("boom")
		}
		_, err := repo.ListRecent(context.Background(), "site-a", 1, 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "list chat logs")
	})
}

func TestCollection_Query(t *testing.T) {
	// Setup
	var got sqlc.SearchDocumentsParams
	c := &Collection{
		name: "docs-site-a",
		q: &stubQuerier{
			SearchDocumentsFunc: func(_ context.Context, arg sqlc.SearchDocumentsParams) ([]sqlc.SearchDocumentsRow, error) {
				got = arg
				return []sqlc.SearchDocumentsRow{
					{ID: "d1-0", Distance: 0.1, Metadata: []byte(`{"doc_id":"d1","page":2,"text":"alpha"}`)},
					{ID: "d2-0", Distance: 0.4, Metadata: []byte(`not json`)},
				}, nil
			},
		},
	}

	// Execute
	hits, err := c.Query(context.Background(), []float32{1, 0}, 0, retrieval.Filter{CustomerID: mo.Some("c1")})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "docs-site-a", got.Collection)
	assert.Equal(t, int32(retrieval.DefaultTopK), got.RowLimit)
	assert.Equal(t, pgtype.Text{String: "c1", Valid: true}, got.CustomerID)
	assert.Equal(t, []float32{1, 0}, got.QueryVector.Slice())

	require.Len(t, hits, 2)
	assert.Equal(t, retrieval.Hit{ID: "d1-0", Score: 0.1, Metadata: retrieval.Metadata{DocID: "d1", Page: mo.Some(2), Text: "alpha"}}, hits[0])
	assert.Equal(t, retrieval.Metadata{}, hits[1].Metadata)
}

func TestCollection_QueryRejectsEmptyVector(t *testing.T) {
	c := &Collection{name: "docs-site-a", q: &stubQuerier{}}

	_, err := c.Query(context.Background(), nil, 3, retrieval.Filter{})
	assert.Error(t, err)
}
