// Package estimator orchestrates retriever training and batched embedding
// inference. It owns no model math: model loading, dataset I/O and result
// persistence are supplied through the Hooks interface, and the training loop
// itself lives in internal/train.
package estimator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/densekit/densekit/dataset"
	"github.com/densekit/densekit/internal/tensor"
	"github.com/densekit/densekit/internal/train"
	"github.com/densekit/densekit/model"
)

// Tensor columns loaded for inference.
var predictColumns = []string{"input_ids", "attention_mask"}

// Estimator drives fit and predict over a model resolved at construction.
// Not safe for concurrent Fit/Predict on the same instance.
type Estimator struct {
	cfg    Config
	hooks  Hooks
	model  model.Model
	device model.Device

	evalBatchSize int
	saveStrategy  train.SaveStrategy

	logger *slog.Logger
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(e *Estimator) { e.logger = l }
}

// New validates the configuration, loads the model through the hooks and
// resolves the effective device, eval batch size and checkpoint strategy.
func New(cfg Config, hooks Hooks, opts ...Option) (*Estimator, error) {
	if hooks == nil {
		return nil, errors.New("estimator: nil hooks")
	}
	if !model.Supported(cfg.ModelType) {
		return nil, &UnknownModelTypeError{ModelType: cfg.ModelType}
	}

	m, err := hooks.LoadModel(cfg.ModelNameOrPath, model.Kind(cfg.ModelType))
	if err != nil {
		return nil, fmt.Errorf("estimator: load model: %w", err)
	}

	device, err := model.ResolveDevice(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("estimator: %w", err)
	}

	e := &Estimator{
		cfg:    cfg,
		hooks:  hooks,
		model:  m,
		device: device,

		evalBatchSize: cfg.EvalBatchSize,
		saveStrategy:  train.SaveEpoch,

		logger: slog.Default(),
	}
	if e.evalBatchSize <= 0 {
		e.evalBatchSize = cfg.BatchSize
	}
	if cfg.SaveSteps > 0 {
		e.saveStrategy = train.SaveSteps
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Model returns the model loaded at construction.
func (e *Estimator) Model() model.Model { return e.model }

// Device returns the resolved compute device.
func (e *Estimator) Device() model.Device { return e.device }

// trainArgs builds the training configuration from the estimator fields.
// Warmup, weight decay, logging and evaluation cadence are fixed.
func (e *Estimator) trainArgs() train.Args {
	lr := e.cfg.LR
	if lr == 0 {
		lr = DefaultLR
	}
	outputDir := e.cfg.OutputDir
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}
	return train.Args{
		MaxSteps:       e.cfg.TrainSteps,
		NumEpochs:      e.cfg.NumEpochs,
		TrainBatchSize: e.cfg.BatchSize,
		EvalBatchSize:  e.evalBatchSize,
		AccumSteps:     e.cfg.AccumSteps,
		LR:             lr,
		WarmupSteps:    WarmupSteps,
		WeightDecay:    WeightDecay,
		Scheduler:      train.SchedulerConstant,
		LoggingSteps:   LoggingSteps,
		EvalSteps:      EvalSteps,
		SaveStrategy:   e.saveStrategy,
		SaveSteps:      e.cfg.SaveSteps,
		OutputDir:      outputDir,
		Seed:           e.cfg.Seed,
		Logger:         e.logger,
	}
}

// Fit trains the model on the dataset directory and persists the result
// under modelOutDir through the model-save hook.
func (e *Estimator) Fit(ctx context.Context, datasetDir, modelOutDir string) error {
	ds, err := e.hooks.LoadDataset(datasetDir, nil)
	if err != nil {
		return fmt.Errorf("estimator: load dataset: %w", err)
	}
	trainSplit, err := ds.Train()
	if err != nil {
		return fmt.Errorf("estimator: %w", err)
	}
	evalSplit, _ := ds.Test()

	e.model.To(e.device)

	var metric train.MetricFunc
	if evalSplit != nil {
		metric = ComputeF1
	}
	trainer := train.New(e.model, e.trainArgs(), trainSplit, evalSplit, metric)

	e.logger.Info("starting fit",
		"model_type", e.cfg.ModelType,
		"device", e.device,
		"resume", e.cfg.Resume,
	)
	if err := trainer.Train(ctx, e.cfg.Resume); err != nil {
		return fmt.Errorf("estimator: fit: %w", err)
	}
	if err := trainer.SaveState(); err != nil {
		return fmt.Errorf("estimator: fit: %w", err)
	}

	if err := e.hooks.SaveModel(trainer, modelOutDir); err != nil {
		return fmt.Errorf("estimator: save model: %w", err)
	}
	return nil
}

// PredictOption configures one Predict call.
type PredictOption func(*predictConfig)

type predictConfig struct {
	idColumn string
}

// WithIDColumn overrides the id column for this call.
func WithIDColumn(col string) PredictOption {
	return func(c *predictConfig) { c.idColumn = col }
}

// Predict runs batched embedding inference over the test split of the
// dataset directory, persists (embeddings, ids) under outDir through the
// inference-save hook, and returns the embeddings. Row i of the returned
// matrix is the embedding of the example holding row i of the id column.
func (e *Estimator) Predict(ctx context.Context, datasetDir, outDir string, opts ...PredictOption) (*tensor.Matrix, error) {
	pc := predictConfig{idColumn: e.cfg.IDColumn}
	if pc.idColumn == "" {
		pc.idColumn = "doc_id"
	}
	for _, opt := range opts {
		opt(&pc)
	}

	columns := append(append([]string(nil), predictColumns...), pc.idColumn)
	ds, err := e.hooks.LoadDataset(datasetDir, columns)
	if err != nil {
		return nil, fmt.Errorf("estimator: load dataset: %w", err)
	}
	split, err := ds.Test()
	if err != nil {
		return nil, fmt.Errorf("estimator: %w", err)
	}

	ids, err := split.StringIDs(pc.idColumn)
	if err != nil {
		return nil, fmt.Errorf("estimator: %w", err)
	}

	e.model.To(e.device)
	e.model.Eval()
	release := e.model.NoGrad()
	defer release()

	e.logger.Info("starting predict",
		"rows", split.Len(),
		"batch_size", e.evalBatchSize,
		"device", e.device,
	)

	var blocks []*tensor.Matrix
	for batch := range split.Batches(e.evalBatchSize) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("estimator: predict interrupted: %w", err)
		}
		inputIDs, err := dataset.IntColumn(batch, "input_ids")
		if err != nil {
			return nil, fmt.Errorf("estimator: %w", err)
		}
		attentionMask, err := dataset.IntColumn(batch, "attention_mask")
		if err != nil {
			return nil, fmt.Errorf("estimator: %w", err)
		}

		emb, err := e.model.GetEmbed(inputIDs, attentionMask)
		if err != nil {
			return nil, fmt.Errorf("estimator: embed: %w", err)
		}
		blocks = append(blocks, emb)
	}

	embeddings, err := tensor.VStack(blocks)
	if err != nil {
		return nil, fmt.Errorf("estimator: %w", err)
	}
	if embeddings.Rows() != len(ids) {
		return nil, fmt.Errorf("estimator: %d embedding rows for %d ids", embeddings.Rows(), len(ids))
	}

	res := InferenceResult{Embeddings: embeddings, IDs: ids}
	if err := e.hooks.SaveInferenceResults(res, outDir); err != nil {
		return nil, fmt.Errorf("estimator: save inference results: %w", err)
	}
	return embeddings, nil
}
