package estimator

import (
	"github.com/densekit/densekit/dataset"
	"github.com/densekit/densekit/internal/tensor"
	"github.com/densekit/densekit/internal/train"
	"github.com/densekit/densekit/model"
)

// InferenceResult pairs a block of embeddings with the ids of the examples
// that produced them. Row i of Embeddings belongs to IDs[i].
type InferenceResult struct {
	Embeddings *tensor.Matrix
	IDs        []string
}

// Hooks supplies the Estimator's persistence and loading behavior. A concrete
// retriever implements all four; there are no default implementations, so a
// missing hook is a compile error rather than a runtime one.
type Hooks interface {
	// LoadModel resolves a model name or checkpoint path into a model of the
	// given kind.
	LoadModel(nameOrPath string, kind model.Kind) (model.Model, error)

	// LoadDataset reads a dataset directory. A non-nil tensorColumns list
	// restricts the loaded columns.
	LoadDataset(dir string, tensorColumns []string) (*dataset.Dataset, error)

	// SaveModel persists the trained model under dir.
	SaveModel(t *train.Trainer, dir string) error

	// SaveInferenceResults persists embeddings and ids under dir.
	SaveInferenceResults(res InferenceResult, dir string) error
}
