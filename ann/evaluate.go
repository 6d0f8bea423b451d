package ann

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/densekit/densekit/estimator"
)

// Report summarizes an index quality evaluation.
type Report struct {
	K          int
	Queries    int
	MeanRecall float64
	MinRecall  float64
}

// Evaluate measures recall@k of the configured approximate index against
// exact search over the same embeddings. The first numQueries embedding rows
// serve as queries; numQueries <= 0 uses every row.
func Evaluate(ctx context.Context, res estimator.InferenceResult, opts Options, k, numQueries int) (*Report, error) {
	opts.withDefaults()
	if opts.IndexType == IndexFlat {
		return nil, fmt.Errorf("ann: evaluating a flat index against itself is vacuous")
	}
	if k <= 0 {
		return nil, fmt.Errorf("ann: k must be positive, got %d", k)
	}

	approx, err := Build(ctx, res, opts)
	if err != nil {
		return nil, err
	}
	defer approx.Close()

	exactOpts := opts
	exactOpts.IndexType = IndexFlat
	exact, err := Build(ctx, res, exactOpts)
	if err != nil {
		return nil, err
	}
	defer exact.Close()

	n := res.Embeddings.Rows()
	if numQueries <= 0 || numQueries > n {
		numQueries = n
	}

	recalls := make([]float64, numQueries)
	for i := 0; i < numQueries; i++ {
		query := res.Embeddings.Row(i)

		got, err := approx.Search(ctx, query, k)
		if err != nil {
			return nil, err
		}
		want, err := exact.Search(ctx, query, k)
		if err != nil {
			return nil, err
		}
		recalls[i] = recallAt(got, want)
	}

	report := &Report{
		K:          k,
		Queries:    numQueries,
		MeanRecall: stat.Mean(recalls, nil),
		MinRecall:  minOf(recalls),
	}
	opts.Logger.Info("index evaluated",
		"k", k,
		"queries", numQueries,
		"mean_recall", report.MeanRecall,
		"min_recall", report.MinRecall,
	)
	return report, nil
}

// recallAt is the fraction of exact neighbors the approximate search found.
func recallAt(got, want []Neighbor) float64 {
	if len(want) == 0 {
		return 1
	}
	exact := make(map[string]bool, len(want))
	for _, n := range want {
		exact[n.DocID] = true
	}
	var hits int
	for _, n := range got {
		if exact[n.DocID] {
			hits++
		}
	}
	return float64(hits) / float64(len(want))
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}
