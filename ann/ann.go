// Package ann builds and queries approximate nearest-neighbor indexes over
// persisted document embeddings. The index structures themselves come from
// vecgo; this package maps retriever ids onto vecgo vector ids and adds
// recall evaluation against exact search.
package ann

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hupe1980/vecgo"

	"github.com/densekit/densekit/estimator"
	"github.com/densekit/densekit/internal/tensor"
)

// Similarity metrics.
const (
	MetricDot    = "dot"
	MetricCosine = "cosine"
)

// Index kinds.
const (
	IndexFlat = "flat"
	IndexHNSW = "hnsw"
)

// Options configures index construction and search.
type Options struct {
	// Metric is "dot" or "cosine". Defaults to "dot".
	Metric string
	// IndexType is "flat" or "hnsw". Defaults to "hnsw".
	IndexType string

	// M is the HNSW connectivity. 0 uses the vecgo default.
	M int
	// EFConstruction is the HNSW build-time exploration factor. 0 uses the
	// vecgo default.
	EFConstruction int
	// EFSearch is the query-time exploration factor. 0 uses the index
	// default.
	EFSearch int

	Logger *slog.Logger
}

func (o *Options) withDefaults() {
	if o.Metric == "" {
		o.Metric = MetricDot
	}
	if o.IndexType == "" {
		o.IndexType = IndexHNSW
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Neighbor is one search hit: a document id and its distance to the query.
type Neighbor struct {
	DocID    string
	Distance float32
}

// Index wraps a vecgo database whose payload is the document id.
type Index struct {
	db   *vecgo.Vecgo[string]
	opts Options
}

// Build indexes every embedding row under its document id.
func Build(ctx context.Context, res estimator.InferenceResult, opts Options) (*Index, error) {
	opts.withDefaults()
	if res.Embeddings == nil || res.Embeddings.Rows() == 0 {
		return nil, errors.New("ann: no embeddings to index")
	}
	if res.Embeddings.Rows() != len(res.IDs) {
		return nil, fmt.Errorf("ann: %d embedding rows for %d ids", res.Embeddings.Rows(), len(res.IDs))
	}

	db, err := newDB(res.Embeddings.Cols(), opts)
	if err != nil {
		return nil, err
	}

	items := make([]vecgo.VectorWithData[string], res.Embeddings.Rows())
	for i := range items {
		items[i] = vecgo.VectorWithData[string]{
			Vector: res.Embeddings.Row(i),
			Data:   res.IDs[i],
		}
	}
	result := db.BatchInsert(ctx, items)
	for i, err := range result.Errors {
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("ann: insert row %d: %w", i, err)
		}
	}

	opts.Logger.Info("index built",
		"index_type", opts.IndexType,
		"metric", opts.Metric,
		"vectors", len(items),
		"dimension", res.Embeddings.Cols(),
	)
	return &Index{db: db, opts: opts}, nil
}

func newDB(dim int, opts Options) (*vecgo.Vecgo[string], error) {
	switch opts.IndexType {
	case IndexFlat:
		b := vecgo.Flat[string](dim)
		switch opts.Metric {
		case MetricDot:
			b = b.DotProduct()
		case MetricCosine:
			b = b.Cosine()
		default:
			return nil, fmt.Errorf("ann: unsupported metric %q", opts.Metric)
		}
		return b.Build()
	case IndexHNSW:
		b := vecgo.HNSW[string](dim)
		switch opts.Metric {
		case MetricDot:
			b = b.DotProduct()
		case MetricCosine:
			b = b.Cosine()
		default:
			return nil, fmt.Errorf("ann: unsupported metric %q", opts.Metric)
		}
		if opts.M > 0 {
			b = b.M(opts.M)
		}
		if opts.EFConstruction > 0 {
			b = b.EFConstruction(opts.EFConstruction)
		}
		return b.Build()
	default:
		return nil, fmt.Errorf("ann: unsupported index type %q", opts.IndexType)
	}
}

// Search returns the k nearest document ids for one query vector.
func (ix *Index) Search(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	sb := ix.db.Search(query).KNN(k)
	if ix.opts.EFSearch > 0 {
		sb = sb.EF(ix.opts.EFSearch)
	}
	hits, err := sb.Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("ann: search: %w", err)
	}

	neighbors := make([]Neighbor, len(hits))
	for i, h := range hits {
		neighbors[i] = Neighbor{DocID: h.Data, Distance: h.Distance}
	}
	return neighbors, nil
}

// SearchBatch runs Search for every row of queries.
func (ix *Index) SearchBatch(ctx context.Context, queries *tensor.Matrix, k int) ([][]Neighbor, error) {
	out := make([][]Neighbor, queries.Rows())
	for i := 0; i < queries.Rows(); i++ {
		neighbors, err := ix.Search(ctx, queries.Row(i), k)
		if err != nil {
			return nil, fmt.Errorf("ann: query %d: %w", i, err)
		}
		out[i] = neighbors
	}
	return out, nil
}

// Save writes an index snapshot to path.
func (ix *Index) Save(path string) error {
	if err := ix.db.SaveToFile(path); err != nil {
		return fmt.Errorf("ann: save index: %w", err)
	}
	return nil
}

// Open loads a prebuilt index snapshot. opts only affects search behavior;
// the index structure and metric come from the snapshot.
func Open(path string, opts Options) (*Index, error) {
	opts.withDefaults()
	db, err := vecgo.NewFromFile[string](path)
	if err != nil {
		return nil, fmt.Errorf("ann: open index %s: %w", path, err)
	}
	return &Index{db: db, opts: opts}, nil
}

// Close releases the underlying database.
func (ix *Index) Close() error { return ix.db.Close() }
