package main

import (
	"context"
	"flag"
	"log"
	"log/slog"

	"github.com/densekit/densekit/tokenize"
)

func runTokenize(args []string) {
	fs := flag.NewFlagSet("tokenize", flag.ExitOnError)
	trainFile := fs.String("train", "", "Path to the train source file (required)")
	testFile := fs.String("test", "", "Path to the test source file (optional)")
	out := fs.String("out", "", "Output dataset directory (required)")
	encoding := fs.String("encoding", tokenize.DefaultEncoding, "tiktoken encoding name")
	fileType := fs.String("file-type", tokenize.FileTypeJSONL, "Source format: csv|json")
	zipPath := fs.String("zip", "", "Optional zip archive of the output directory")
	maxLength := fs.Int("max-length", 256, "Maximum tokens per text")
	padding := fs.Bool("padding", false, "Pad every encoding to max-length")
	workers := fs.Int("workers", 0, "Encoding parallelism (0 = GOMAXPROCS)")
	if err := fs.Parse(args); err != nil {
		log.Fatal(err)
	}

	err := tokenize.TrainDataset(context.Background(), tokenize.Options{
		TrainFile: *trainFile,
		TestFile:  *testFile,
		OutPath:   *out,
		Encoding:  *encoding,
		FileType:  *fileType,
		ZipPath:   *zipPath,
		MaxLength: *maxLength,
		Padding:   *padding,
		Workers:   *workers,
		Logger:    slog.Default(),
	})
	if err != nil {
		log.Fatalf("tokenize: %v", err)
	}
}
