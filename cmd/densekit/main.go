// Command densekit trains dense retriever models, runs embedding inference
// and builds/searches/evaluates nearest-neighbor indexes over the results.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

func usage() {
	fmt.Fprintf(os.Stderr, `densekit commands:

  tokenize             Encode a raw text dataset into token-id columns
  train                Train a retriever model on a tokenized dataset
  embed                Run batched embedding inference over a dataset
  search_from_prebuilt Search a saved index snapshot
  search_from_scratch  Build an index from embeddings, then search it
  evaluate_index       Measure recall@k of the approximate index

Example:
  %[1]s tokenize -train train.jsonl -test test.jsonl -out data/encoded -max-length 256
  %[1]s train -config train.yaml -dataset data/encoded -out models/bce
  %[1]s embed -model models/bce -model-type bert-dot-bce -dataset data/encoded -out runs/embeddings
  %[1]s search_from_scratch -embeddings runs/embeddings -k 10
  %[1]s evaluate_index -embeddings runs/embeddings -k 10 -queries 500

`, filepath.Base(os.Args[0]))
	os.Exit(2)
}

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
	}
	switch os.Args[1] {
	case "tokenize":
		runTokenize(os.Args[2:])
	case "train":
		runTrain(os.Args[2:])
	case "embed":
		runEmbed(os.Args[2:])
	case "search_from_prebuilt":
		runSearchFromPrebuilt(os.Args[2:])
	case "search_from_scratch":
		runSearchFromScratch(os.Args[2:])
	case "evaluate_index":
		runEvaluateIndex(os.Args[2:])
	default:
		usage()
	}
}
