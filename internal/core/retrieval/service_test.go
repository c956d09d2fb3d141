package retrieval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	calls   int
	inputs  [][]string
	vectors [][]float32
	err     error
}

func (e *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	e.inputs = append(e.inputs, texts)
	return e.vectors, e.err
}

type stubIndex struct {
	calls      int
	lastTopK   int
	lastFilter Filter
	hits       []Hit
	err        error
}

func (i *stubIndex) Upsert(ctx context.Context, items []Item) (int, error) {
	return len(items), nil
}

func (i *stubIndex) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Hit, error) {
	i.calls++
	i.lastTopK = topK
	i.lastFilter = filter
	return i.hits, i.err
}

type stubBackend struct {
	index   Index
	openErr error
	opens   int
}

func (b *stubBackend) Name() string { return "stub" }

func (b *stubBackend) Open(ctx context.Context, tenantID string) (Index, error) {
	b.opens++
	if b.openErr != nil {
		return nil, b.openErr
	}
	return b.index, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newTestService(embedder Embedder, index *stubIndex) *Service {
	registry := NewRegistry(&stubBackend{index: index}, WithRegistryLogger(discardLogger()))
	return NewService(registry, embedder, WithLogger(discardLogger()))
}

func TestService_RetrieveReturnsHitsInBackendOrder(t *testing.T) {
	// Setup
	index := &stubIndex{hits: []Hit{
		{ID: "b", Score: 0.2},
		{ID: "a", Score: 0.1},
	}}
	embedder := &stubEmbedder{vectors: [][]float32{{1, 0}}}
	svc := newTestService(embedder, index)
	filter := Filter{CustomerID: mo.Some("c-1")}

	// Execute
	hits, err := svc.Retrieve(context.Background(), "default", "what is the return policy?", 3, filter)

	// Assert
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "b", hits[0].ID)
	assert.Equal(t, "a", hits[1].ID)
	assert.Equal(t, 3, index.lastTopK)
	assert.Equal(t, filter, index.lastFilter)
	require.Len(t, embedder.inputs, 1)
	assert.Equal(t, []string{"what is the return policy?"}, embedder.inputs[0])
}

func TestService_RetrieveUsesDefaultTopK(t *testing.T) {
	index := &stubIndex{}
	svc := newTestService(&stubEmbedder{vectors: [][]float32{{1}}}, index)

	_, err := svc.Retrieve(context.Background(), "default", "hello", 0, Filter{})
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, index.lastTopK)
}

func TestService_RetrieveRejectsBlankQuestionWithoutEmbedding(t *testing.T) {
	for _, q := range []string{"", "   ", "\n\t"} {
		embedder := &stubEmbedder{vectors: [][]float32{{1}}}
		index := &stubIndex{}
		svc := newTestService(embedder, index)

		_, err := svc.Retrieve(context.Background(), "default", q, 5, Filter{})

		require.ErrorIs(t, err, ErrEmptyQuestion)
		assert.Zero(t, embedder.calls)
		assert.Zero(t, index.calls)
	}
}

func TestService_RetrieveFailsWhenEmbedderReturnsWrongCount(t *testing.T) {
	for _, vectors := range [][][]float32{nil, {{1}, {2}}} {
		index := &stubIndex{}
		svc := newTestService(&stubEmbedder{vectors: vectors}, index)

		_, err := svc.Retrieve(context.Background(), "default", "hello", 5, Filter{})

		require.ErrorIs(t, err, ErrRetrievalFailed)
		assert.Zero(t, index.calls, "index must not be queried")
	}
}

func TestService_RetrieveWrapsEmbedderAndIndexErrors(t *testing.T) {
	cause := errors.New("connection refused")

	svc := newTestService(&stubEmbedder{err: cause}, &stubIndex{})
	_, err := svc.Retrieve(context.Background(), "default", "hello", 5, Filter{})
	require.ErrorIs(t, err, ErrRetrievalFailed)
	require.ErrorIs(t, err, cause)

	svc = newTestService(&stubEmbedder{vectors: [][]float32{{1}}}, &stubIndex{err: cause})
	_, err = svc.Retrieve(context.Background(), "default", "hello", 5, Filter{})
	require.ErrorIs(t, err, ErrRetrievalFailed)
	require.ErrorIs(t, err, cause)
}

func TestService_RetrieveRejectsInvalidTenant(t *testing.T) {
	embedder := &stubEmbedder{vectors: [][]float32{{1}}}
	svc := newTestService(embedder, &stubIndex{})

	_, err := svc.Retrieve(context.Background(), "../etc", "hello", 5, Filter{})

	require.ErrorIs(t, err, ErrInvalidTenant)
	assert.Zero(t, embedder.calls)
}

func TestService_RetrieveOpenFailureIsRetrievalFailure(t *testing.T) {
	registry := NewRegistry(&stubBackend{openErr: errors.New("db down")}, WithRegistryLogger(discardLogger()))
	svc := NewService(registry, &stubEmbedder{vectors: [][]float32{{1}}}, WithLogger(discardLogger()))

	_, err := svc.Retrieve(context.Background(), "default", "hello", 5, Filter{})
	require.ErrorIs(t, err, ErrRetrievalFailed)
}
