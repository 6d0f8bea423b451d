package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/densekit/densekit/estimator"
	"github.com/densekit/densekit/model"
	"github.com/densekit/densekit/retriever"
)

// trainConfig is the YAML shape of a training run.
type trainConfig struct {
	ModelNameOrPath string  `yaml:"model_name_or_path"`
	ModelType       string  `yaml:"model_type"`
	TrainSteps      int     `yaml:"train_steps"`
	NumEpochs       int     `yaml:"num_epochs"`
	BatchSize       int     `yaml:"batch_size"`
	EvalBatchSize   int     `yaml:"eval_batch_size"`
	AccumSteps      int     `yaml:"accum_steps"`
	LR              float32 `yaml:"learning_rate"`
	SaveSteps       int     `yaml:"save_steps"`
	Device          string  `yaml:"device"`
	Resume          bool    `yaml:"resume"`
	InBatchNeg      bool    `yaml:"in_batch_neg"`
	OutputDir       string  `yaml:"output_dir"`
	Seed            int64   `yaml:"seed"`
}

func loadTrainConfig(path string) (trainConfig, error) {
	var cfg trainConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func runTrain(args []string) {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML training config (required)")
	datasetDir := fs.String("dataset", "", "Tokenized dataset directory (required)")
	modelOut := fs.String("out", "", "Directory for the trained model (required)")
	resume := fs.Bool("resume", false, "Resume from the latest checkpoint")
	if err := fs.Parse(args); err != nil {
		log.Fatal(err)
	}
	if *configPath == "" || *datasetDir == "" || *modelOut == "" {
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := loadTrainConfig(*configPath)
	if err != nil {
		log.Fatalf("train: %v", err)
	}
	if *resume {
		cfg.Resume = true
	}

	est, err := estimator.New(estimator.Config{
		ModelNameOrPath: cfg.ModelNameOrPath,
		ModelType:       cfg.ModelType,
		TrainSteps:      cfg.TrainSteps,
		NumEpochs:       cfg.NumEpochs,
		BatchSize:       cfg.BatchSize,
		EvalBatchSize:   cfg.EvalBatchSize,
		AccumSteps:      cfg.AccumSteps,
		LR:              cfg.LR,
		SaveSteps:       cfg.SaveSteps,
		Device:          cfg.Device,
		Resume:          cfg.Resume,
		InBatchNeg:      cfg.InBatchNeg,
		OutputDir:       cfg.OutputDir,
		Seed:            cfg.Seed,
	}, &retriever.Hooks{
		ModelConfig: model.BertDotConfig{
			Seed:       cfg.Seed,
			InBatchNeg: cfg.InBatchNeg,
		},
	})
	if err != nil {
		log.Fatalf("train: %v", err)
	}

	if err := est.Fit(context.Background(), *datasetDir, *modelOut); err != nil {
		log.Fatalf("train: %v", err)
	}
}
