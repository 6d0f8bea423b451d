package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/densekit/densekit/estimator"
	"github.com/densekit/densekit/retriever"
)

func runEmbed(args []string) {
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	modelPath := fs.String("model", "", "Trained model directory (required)")
	modelType := fs.String("model-type", "", "Model type key (required)")
	datasetDir := fs.String("dataset", "", "Tokenized dataset directory (required)")
	out := fs.String("out", "", "Output directory for embeddings and ids (required)")
	batchSize := fs.Int("batch-size", 32, "Inference batch size")
	device := fs.String("device", "", "Compute device: serial|parallel (default: auto)")
	idColumn := fs.String("id-col", "doc_id", "Dataset column holding document ids")
	if err := fs.Parse(args); err != nil {
		log.Fatal(err)
	}
	if *modelPath == "" || *modelType == "" || *datasetDir == "" || *out == "" {
		fs.Usage()
		os.Exit(2)
	}

	est, err := estimator.New(estimator.Config{
		ModelNameOrPath: *modelPath,
		ModelType:       *modelType,
		BatchSize:       *batchSize,
		Device:          *device,
		IDColumn:        *idColumn,
	}, &retriever.Hooks{})
	if err != nil {
		log.Fatalf("embed: %v", err)
	}

	emb, err := est.Predict(context.Background(), *datasetDir, *out)
	if err != nil {
		log.Fatalf("embed: %v", err)
	}
	log.Printf("wrote %d embeddings of dimension %d to %s", emb.Rows(), emb.Cols(), *out)
}
