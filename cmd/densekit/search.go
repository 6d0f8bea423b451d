package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/densekit/densekit/ann"
	"github.com/densekit/densekit/estimator"
	"github.com/densekit/densekit/retriever"
)

// hit is one line of search output.
type hit struct {
	QueryID   string  `json:"query_id"`
	Rank      int     `json:"rank"`
	DocID     string  `json:"doc_id"`
	Distance  float32 `json:"distance"`
	IndexType string  `json:"index_type"`
}

func runSearchFromScratch(args []string) {
	fs := flag.NewFlagSet("search_from_scratch", flag.ExitOnError)
	embDir := fs.String("embeddings", "", "Inference results directory (required)")
	queryDir := fs.String("queries", "", "Query embeddings directory (default: same as -embeddings)")
	k := fs.Int("k", 10, "Neighbors per query")
	metric := fs.String("metric", ann.MetricDot, "Similarity metric: dot|cosine")
	indexType := fs.String("index-type", ann.IndexHNSW, "Index type: flat|hnsw")
	m := fs.Int("m", 0, "HNSW connectivity (0 = library default)")
	efc := fs.Int("ef-construction", 0, "HNSW build exploration factor (0 = library default)")
	efs := fs.Int("ef-search", 0, "Query exploration factor (0 = index default)")
	savePath := fs.String("save", "", "Optional snapshot path for the built index")
	if err := fs.Parse(args); err != nil {
		log.Fatal(err)
	}
	if *embDir == "" {
		fs.Usage()
		os.Exit(2)
	}
	ctx := context.Background()

	res, err := retriever.LoadInferenceResults(*embDir)
	if err != nil {
		log.Fatalf("search: %v", err)
	}

	ix, err := ann.Build(ctx, res, ann.Options{
		Metric:         *metric,
		IndexType:      *indexType,
		M:              *m,
		EFConstruction: *efc,
		EFSearch:       *efs,
	})
	if err != nil {
		log.Fatalf("search: %v", err)
	}
	defer ix.Close()

	if *savePath != "" {
		if err := ix.Save(*savePath); err != nil {
			log.Fatalf("search: %v", err)
		}
	}

	queries := res
	if *queryDir != "" && *queryDir != *embDir {
		queries, err = retriever.LoadInferenceResults(*queryDir)
		if err != nil {
			log.Fatalf("search: %v", err)
		}
	}
	searchAll(ctx, ix, queries, *k, *indexType)
}

func runSearchFromPrebuilt(args []string) {
	fs := flag.NewFlagSet("search_from_prebuilt", flag.ExitOnError)
	indexPath := fs.String("index", "", "Index snapshot path (required)")
	embDir := fs.String("embeddings", "", "Inference results directory holding the queries (required)")
	k := fs.Int("k", 10, "Neighbors per query")
	efs := fs.Int("ef-search", 0, "Query exploration factor (0 = index default)")
	if err := fs.Parse(args); err != nil {
		log.Fatal(err)
	}
	if *indexPath == "" || *embDir == "" {
		fs.Usage()
		os.Exit(2)
	}
	ctx := context.Background()

	ix, err := ann.Open(*indexPath, ann.Options{EFSearch: *efs})
	if err != nil {
		log.Fatalf("search: %v", err)
	}
	defer ix.Close()

	res, err := retriever.LoadInferenceResults(*embDir)
	if err != nil {
		log.Fatalf("search: %v", err)
	}

	searchAll(ctx, ix, res, *k, "prebuilt")
}

// searchAll queries the index with every embedding row and writes one JSON
// line per hit to stdout.
func searchAll(ctx context.Context, ix *ann.Index, res estimator.InferenceResult, k int, indexType string) {
	enc := json.NewEncoder(os.Stdout)
	hits, err := ix.SearchBatch(ctx, res.Embeddings, k)
	if err != nil {
		log.Fatalf("search: %v", err)
	}
	for i, neighbors := range hits {
		for rank, n := range neighbors {
			out := hit{
				QueryID:   res.IDs[i],
				Rank:      rank + 1,
				DocID:     n.DocID,
				Distance:  n.Distance,
				IndexType: indexType,
			}
			if err := enc.Encode(out); err != nil {
				log.Fatalf("search: %v", err)
			}
		}
	}
}
