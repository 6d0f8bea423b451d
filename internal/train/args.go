// Package train implements the generic training-loop driver: epoch/step
// scheduling, gradient accumulation, warmup + constant learning rate,
// periodic logging, evaluation and checkpointing, and resume from the latest
// checkpoint.
package train

import (
	"log/slog"

	"github.com/densekit/densekit/internal/tensor"
)

// SaveStrategy selects the checkpoint cadence.
type SaveStrategy string

// Checkpoint cadences.
const (
	SaveEpoch SaveStrategy = "epoch" // once at the end of every epoch
	SaveSteps SaveStrategy = "steps" // every Args.SaveSteps optimizer steps
)

// SchedulerConstant keeps the learning rate constant after warmup.
const SchedulerConstant = "constant"

// Metrics is a named evaluation-score record.
type Metrics map[string]float64

// MetricFunc scores raw model logits against reference labels.
type MetricFunc func(logits *tensor.Matrix, labels []float32) (Metrics, error)

// Args configures one training run.
type Args struct {
	// MaxSteps caps the number of optimizer steps. When > 0 it overrides
	// NumEpochs and the loop cycles through epochs until the cap is hit.
	MaxSteps int
	// NumEpochs is the number of passes over the training split.
	NumEpochs int

	TrainBatchSize int
	EvalBatchSize  int
	// AccumSteps is the number of batches whose gradients are accumulated
	// before each optimizer step.
	AccumSteps int

	LR          float32
	WarmupSteps int
	WeightDecay float32
	Scheduler   string

	LoggingSteps int
	EvalSteps    int

	SaveStrategy SaveStrategy
	SaveSteps    int

	// OutputDir is the working directory for checkpoints and trainer state.
	OutputDir string

	// Seed drives the per-epoch shuffle.
	Seed int64

	Logger *slog.Logger
}

func (a *Args) withDefaults() {
	if a.NumEpochs <= 0 && a.MaxSteps <= 0 {
		a.NumEpochs = 1
	}
	if a.TrainBatchSize <= 0 {
		a.TrainBatchSize = 1
	}
	if a.EvalBatchSize <= 0 {
		a.EvalBatchSize = a.TrainBatchSize
	}
	if a.AccumSteps <= 0 {
		a.AccumSteps = 1
	}
	if a.Scheduler == "" {
		a.Scheduler = SchedulerConstant
	}
	if a.SaveStrategy == "" {
		a.SaveStrategy = SaveEpoch
	}
	if a.OutputDir == "" {
		a.OutputDir = "./tmp"
	}
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
}

// lrAt returns the scheduled learning rate for an optimizer step (1-based):
// linear warmup to LR over WarmupSteps, constant afterwards.
func (a *Args) lrAt(step int) float32 {
	if a.WarmupSteps > 0 && step < a.WarmupSteps {
		return a.LR * float32(step) / float32(a.WarmupSteps)
	}
	return a.LR
}
