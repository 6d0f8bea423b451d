package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/densekit/densekit/ann"
	"github.com/densekit/densekit/retriever"
)

func runEvaluateIndex(args []string) {
	fs := flag.NewFlagSet("evaluate_index", flag.ExitOnError)
	embDir := fs.String("embeddings", "", "Inference results directory (required)")
	k := fs.Int("k", 10, "Neighbors per query")
	queries := fs.Int("queries", 0, "Number of query rows to sample (0 = all)")
	metric := fs.String("metric", ann.MetricDot, "Similarity metric: dot|cosine")
	m := fs.Int("m", 0, "HNSW connectivity (0 = library default)")
	efc := fs.Int("ef-construction", 0, "HNSW build exploration factor (0 = library default)")
	efs := fs.Int("ef-search", 0, "Query exploration factor (0 = index default)")
	if err := fs.Parse(args); err != nil {
		log.Fatal(err)
	}
	if *embDir == "" {
		fs.Usage()
		os.Exit(2)
	}

	res, err := retriever.LoadInferenceResults(*embDir)
	if err != nil {
		log.Fatalf("evaluate: %v", err)
	}

	report, err := ann.Evaluate(context.Background(), res, ann.Options{
		Metric:         *metric,
		IndexType:      ann.IndexHNSW,
		M:              *m,
		EFConstruction: *efc,
		EFSearch:       *efs,
	}, *k, *queries)
	if err != nil {
		log.Fatalf("evaluate: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Fatalf("evaluate: %v", err)
	}
}
