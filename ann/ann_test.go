package ann

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/densekit/densekit/estimator"
	"github.com/densekit/densekit/internal/tensor"
)

// oneHot builds n distinct unit vectors, one per row.
func oneHot(n int) estimator.InferenceResult {
	emb := tensor.New(n, n)
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		emb.Set(i, i, 1)
		ids[i] = string(rune('a' + i))
	}
	return estimator.InferenceResult{Embeddings: emb, IDs: ids}
}

func TestBuildValidation(t *testing.T) {
	ctx := context.Background()

	_, err := Build(ctx, estimator.InferenceResult{}, Options{})
	assert.Error(t, err)

	res := oneHot(3)
	res.IDs = res.IDs[:2]
	_, err = Build(ctx, res, Options{})
	assert.Error(t, err)

	_, err = Build(ctx, oneHot(3), Options{Metric: "euclid"})
	assert.Error(t, err)

	_, err = Build(ctx, oneHot(3), Options{IndexType: "ivf"})
	assert.Error(t, err)
}

func TestFlatSearchFindsExactMatch(t *testing.T) {
	ctx := context.Background()
	res := oneHot(4)

	ix, err := Build(ctx, res, Options{Metric: MetricCosine, IndexType: IndexFlat})
	require.NoError(t, err)
	defer ix.Close()

	for i := 0; i < 4; i++ {
		neighbors, err := ix.Search(ctx, res.Embeddings.Row(i), 1)
		require.NoError(t, err)
		require.Len(t, neighbors, 1)
		assert.Equal(t, res.IDs[i], neighbors[0].DocID)
	}
}

func TestSearchBatchShape(t *testing.T) {
	ctx := context.Background()
	res := oneHot(4)

	ix, err := Build(ctx, res, Options{Metric: MetricDot, IndexType: IndexFlat})
	require.NoError(t, err)
	defer ix.Close()

	hits, err := ix.SearchBatch(ctx, res.Embeddings, 2)
	require.NoError(t, err)
	require.Len(t, hits, 4)
	for i, h := range hits {
		assert.Len(t, h, 2, "query %d", i)
	}
}

func TestSaveOpenRoundtrip(t *testing.T) {
	ctx := context.Background()
	res := oneHot(4)
	path := filepath.Join(t.TempDir(), "index.snapshot")

	ix, err := Build(ctx, res, Options{Metric: MetricCosine, IndexType: IndexFlat})
	require.NoError(t, err)
	require.NoError(t, ix.Save(path))
	require.NoError(t, ix.Close())

	reopened, err := Open(path, Options{})
	require.NoError(t, err)
	defer reopened.Close()

	neighbors, err := reopened.Search(ctx, res.Embeddings.Row(2), 1)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, "c", neighbors[0].DocID)
}

func TestRecallAt(t *testing.T) {
	got := []Neighbor{{DocID: "a"}, {DocID: "b"}, {DocID: "x"}}
	want := []Neighbor{{DocID: "a"}, {DocID: "b"}, {DocID: "c"}}

	assert.InDelta(t, 2.0/3.0, recallAt(got, want), 1e-9)
	assert.Equal(t, 1.0, recallAt(nil, nil))
	assert.Equal(t, 0.0, recallAt(nil, want))
}

func TestEvaluateExactIndexRejected(t *testing.T) {
	_, err := Evaluate(context.Background(), oneHot(4), Options{IndexType: IndexFlat}, 2, 0)
	assert.Error(t, err)
}

// fan builds unit-norm 2D vectors with distinct pairwise angles, so every
// query has an unambiguous neighbor ordering.
func fan(n int) estimator.InferenceResult {
	emb := tensor.New(n, 2)
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		x := float32(1)
		y := float32(i) * 0.37
		norm := float32(1) / float32(1+y*y)
		emb.Set(i, 0, x*norm)
		emb.Set(i, 1, y*norm)
		ids[i] = string(rune('a' + i))
	}
	return estimator.InferenceResult{Embeddings: emb, IDs: ids}
}

func TestEvaluatePerfectRecallOnTinyIndex(t *testing.T) {
	// With 8 well-separated vectors, HNSW degenerates to exact search.
	report, err := Evaluate(context.Background(), fan(8), Options{Metric: MetricCosine}, 2, 4)
	require.NoError(t, err)

	assert.Equal(t, 2, report.K)
	assert.Equal(t, 4, report.Queries)
	assert.InDelta(t, 1.0, report.MeanRecall, 1e-9)
}
