package train

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"

	"github.com/densekit/densekit/dataset"
	"github.com/densekit/densekit/internal/checkpoint"
	"github.com/densekit/densekit/internal/nn"
	"github.com/densekit/densekit/internal/tensor"
)

// Checkpoint file names inside a checkpoint-<step> directory.
const (
	ModelFileName     = "model.dkt"
	OptimizerFileName = "optimizer.dkt"
)

// Trainable is the model contract the driver needs: mode toggles, parameter
// access for the optimizer, a fused forward/backward step, and logits for
// evaluation.
type Trainable interface {
	Train()
	Eval()
	Parameters() []*nn.Parameter
	TrainStep(batch []dataset.Example) (float32, error)
	EvalLogits(batch []dataset.Example) (*tensor.Matrix, error)
	StateDict() map[string]*tensor.Matrix
	LoadStateDict(map[string]*tensor.Matrix) error
}

// Trainer drives the optimization loop over a train split, with periodic
// evaluation against an eval split using a metric function.
type Trainer struct {
	model Trainable
	args  Args
	train *dataset.Split
	eval  *dataset.Split

	metric MetricFunc
	opt    *AdamW
	state  State
}

// New creates a Trainer. evalSplit and metric may be nil together, in which
// case periodic evaluation is skipped.
func New(model Trainable, args Args, trainSplit, evalSplit *dataset.Split, metric MetricFunc) *Trainer {
	args.withDefaults()
	return &Trainer{
		model:  model,
		args:   args,
		train:  trainSplit,
		eval:   evalSplit,
		metric: metric,
		opt:    NewAdamW(model.Parameters(), args.WeightDecay),
	}
}

// Model returns the trained model.
func (t *Trainer) Model() Trainable { return t.model }

// State returns a copy of the trainer's bookkeeping state.
func (t *Trainer) State() State { return t.state }

// Args returns the effective (defaulted) training arguments.
func (t *Trainer) Args() Args { return t.args }

// Train runs the optimization loop. When resume is true, the trainer loads
// the most recent checkpoint under Args.OutputDir and continues from its
// global step; when no checkpoint exists it starts fresh.
func (t *Trainer) Train(ctx context.Context, resume bool) error {
	if t.train == nil || t.train.Len() == 0 {
		return errors.New("train: empty training split")
	}
	if resume {
		if err := t.restoreLatest(); err != nil {
			return err
		}
	}

	if t.args.MaxSteps > 0 && t.state.GlobalStep >= t.args.MaxSteps {
		t.args.Logger.Info("step cap already reached", "step", t.state.GlobalStep)
		return nil
	}

	t.model.Train()
	t.opt.ZeroGrad()

	logger := t.args.Logger
	var runningLoss float64
	var lossBatches int
	micro := 0

	for epoch := t.state.Epoch; ; epoch++ {
		if t.args.MaxSteps <= 0 && epoch >= t.args.NumEpochs {
			break
		}
		t.state.Epoch = epoch

		for _, batch := range t.epochBatches(epoch) {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("train: interrupted at step %d: %w", t.state.GlobalStep, err)
			}

			loss, err := t.model.TrainStep(batch)
			if err != nil {
				return fmt.Errorf("train: step %d: %w", t.state.GlobalStep, err)
			}
			runningLoss += float64(loss)
			lossBatches++
			micro++
			if micro < t.args.AccumSteps {
				continue
			}
			micro = 0

			if t.args.AccumSteps > 1 {
				scale := 1 / float32(t.args.AccumSteps)
				for _, p := range t.model.Parameters() {
					p.Grad().Scale(scale)
				}
			}
			step := t.state.GlobalStep + 1
			lr := t.args.lrAt(step)
			t.opt.Step(lr)
			t.opt.ZeroGrad()
			t.state.GlobalStep = step

			if t.args.LoggingSteps > 0 && step%t.args.LoggingSteps == 0 {
				avg := runningLoss / float64(lossBatches)
				runningLoss, lossBatches = 0, 0
				t.state.LogHistory = append(t.state.LogHistory, LogEntry{
					Step: step, Epoch: epoch, Loss: avg, LR: float64(lr),
				})
				logger.Info("training step", "step", step, "epoch", epoch, "loss", avg, "lr", lr)
			}

			if t.args.EvalSteps > 0 && step%t.args.EvalSteps == 0 && t.eval != nil && t.metric != nil {
				metrics, err := t.Evaluate()
				if err != nil {
					return fmt.Errorf("train: evaluation at step %d: %w", step, err)
				}
				t.model.Train()
				t.state.LogHistory = append(t.state.LogHistory, LogEntry{
					Step: step, Epoch: epoch, Metrics: metrics,
				})
				logger.Info("evaluation", "step", step, "metrics", metrics)
			}

			if t.args.SaveStrategy == SaveSteps && t.args.SaveSteps > 0 && step%t.args.SaveSteps == 0 {
				if err := t.saveCheckpoint(); err != nil {
					return err
				}
			}

			if t.args.MaxSteps > 0 && step >= t.args.MaxSteps {
				return t.finishEpochSave()
			}
		}

		if t.args.SaveStrategy == SaveEpoch {
			if err := t.saveCheckpoint(); err != nil {
				return err
			}
		}
	}
	return nil
}

// finishEpochSave writes a final checkpoint when the step cap ends a run
// under epoch-based saving, so the last weights are never lost.
func (t *Trainer) finishEpochSave() error {
	if t.args.SaveStrategy == SaveEpoch {
		return t.saveCheckpoint()
	}
	return nil
}

// epochBatches returns the shuffled batches for one epoch. The shuffle is
// deterministic in (Seed, epoch) so resumed runs see the same order.
func (t *Trainer) epochBatches(epoch int) [][]dataset.Example {
	rng := rand.New(rand.NewSource(t.args.Seed + int64(epoch)))
	perm := rng.Perm(t.train.Len())

	shuffled := make([]dataset.Example, len(perm))
	for i, j := range perm {
		shuffled[i] = t.train.Examples[j]
	}

	var batches [][]dataset.Example
	for lo := 0; lo < len(shuffled); lo += t.args.TrainBatchSize {
		hi := min(lo+t.args.TrainBatchSize, len(shuffled))
		batches = append(batches, shuffled[lo:hi])
	}
	return batches
}

// Evaluate runs the metric function over the eval split in sequential
// batches of Args.EvalBatchSize. The model is left in evaluation mode.
func (t *Trainer) Evaluate() (Metrics, error) {
	if t.eval == nil || t.metric == nil {
		return nil, errors.New("train: no eval split or metric configured")
	}
	t.model.Eval()

	var blocks []*tensor.Matrix
	var labels []float32
	for batch := range t.eval.Batches(t.args.EvalBatchSize) {
		logits, err := t.model.EvalLogits(batch)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, logits)

		batchLabels, err := dataset.FloatColumn(batch, "label")
		if err != nil {
			return nil, err
		}
		labels = append(labels, batchLabels...)
	}

	logits, err := tensor.VStack(blocks)
	if err != nil {
		return nil, err
	}
	return t.metric(logits, labels)
}

// SaveState persists the trainer bookkeeping under Args.OutputDir.
func (t *Trainer) SaveState() error {
	return t.state.Save(t.args.OutputDir)
}

func (t *Trainer) saveCheckpoint() error {
	dir := checkpoint.StepDir(t.args.OutputDir, t.state.GlobalStep)

	if err := checkpoint.Write(filepath.Join(dir, ModelFileName), t.model.StateDict(), nil); err != nil {
		return err
	}
	optSD, optMeta := t.opt.StateDict()
	if err := checkpoint.Write(filepath.Join(dir, OptimizerFileName), optSD, optMeta); err != nil {
		return err
	}
	if err := t.state.Save(dir); err != nil {
		return err
	}
	t.args.Logger.Info("checkpoint saved", "dir", dir, "step", t.state.GlobalStep)
	return nil
}

// restoreLatest loads the highest-step checkpoint under Args.OutputDir, if
// any, restoring model weights, optimizer moments and trainer state.
func (t *Trainer) restoreLatest() error {
	step, dir, err := checkpoint.LatestStep(t.args.OutputDir)
	if err != nil {
		return err
	}
	if step < 0 {
		t.args.Logger.Info("no checkpoint found, starting fresh", "dir", t.args.OutputDir)
		return nil
	}

	modelSD, _, err := checkpoint.Read(filepath.Join(dir, ModelFileName))
	if err != nil {
		return err
	}
	if err := t.model.LoadStateDict(modelSD); err != nil {
		return err
	}

	optSD, optMeta, err := checkpoint.Read(filepath.Join(dir, OptimizerFileName))
	if err != nil {
		return err
	}
	if err := t.opt.LoadStateDict(optSD, optMeta); err != nil {
		return err
	}

	state, err := LoadState(dir)
	if err != nil {
		return err
	}
	t.state = *state
	t.args.Logger.Info("resumed from checkpoint", "dir", dir, "step", step)
	return nil
}
