// Package model implements the dense retriever models: feature-hashed token
// embeddings pooled into a fixed-width vector, projected and scored by dot
// product. Two trainable variants are supported, one with a binary
// cross-entropy objective and one with a pairwise ranking objective.
package model

import (
	"fmt"
	"slices"

	"github.com/densekit/densekit/dataset"
	"github.com/densekit/densekit/internal/nn"
	"github.com/densekit/densekit/internal/tensor"
)

// Kind identifies a supported model type.
type Kind string

// Supported model types.
const (
	KindBertDotBCE             Kind = "bert-dot-bce"
	KindBertDotPairwiseRanking Kind = "bert-dot-pairwise-ranking"
)

// kinds is the fixed set of supported model types. Built once, never mutated.
var kinds = map[Kind]struct{}{
	KindBertDotBCE:             {},
	KindBertDotPairwiseRanking: {},
}

// Supported reports whether s names a known model type.
func Supported(s string) bool {
	_, ok := kinds[Kind(s)]
	return ok
}

// SupportedKinds returns the supported model type names, sorted.
func SupportedKinds() []string {
	out := make([]string, 0, len(kinds))
	for k := range kinds {
		out = append(out, string(k))
	}
	slices.Sort(out)
	return out
}

// Model is the trainable object the estimator orchestrates. Implementations
// embed text token batches, expose their parameters to the optimizer, and
// run their own forward/backward in TrainStep.
type Model interface {
	// GetEmbed computes one embedding row per input sequence. Row order
	// matches input order.
	GetEmbed(inputIDs, attentionMask [][]int32) (*tensor.Matrix, error)

	// To moves the model's compute to the given device.
	To(Device)

	// Train puts the model in training mode.
	Train()
	// Eval puts the model in evaluation mode.
	Eval()

	// NoGrad disables gradient bookkeeping and returns a release func that
	// restores the previous tracking state. Callers must invoke the release
	// on all exit paths.
	NoGrad() func()

	// Parameters returns the trainable parameters.
	Parameters() []*nn.Parameter

	// TrainStep runs forward and backward over one batch, accumulating
	// gradients into the parameters, and returns the batch loss.
	TrainStep(batch []dataset.Example) (float32, error)

	// EvalLogits computes per-example class logits for metric evaluation.
	EvalLogits(batch []dataset.Example) (*tensor.Matrix, error)

	// StateDict returns the named weight matrices for persistence.
	StateDict() map[string]*tensor.Matrix

	// LoadStateDict restores weights from a state dict.
	LoadStateDict(map[string]*tensor.Matrix) error

	// Kind returns the model type.
	Kind() Kind
}

// New constructs a model of the given kind with fresh weights.
func New(kind Kind, cfg BertDotConfig) (Model, error) {
	if _, ok := kinds[kind]; !ok {
		return nil, fmt.Errorf("model: unsupported kind %q (supported: %v)", kind, SupportedKinds())
	}
	return newBertDot(kind, cfg), nil
}
