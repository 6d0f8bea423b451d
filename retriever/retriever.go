// Package retriever provides the concrete estimator hooks for the dense
// retriever: checkpoint-backed model loading, dataset-directory loading with
// inference column mapping, and persistence of trained weights and inference
// results.
package retriever

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/densekit/densekit/dataset"
	"github.com/densekit/densekit/estimator"
	"github.com/densekit/densekit/internal/checkpoint"
	"github.com/densekit/densekit/internal/tensor"
	"github.com/densekit/densekit/internal/train"
	"github.com/densekit/densekit/model"
)

// Files written by SaveInferenceResults.
const (
	EmbeddingsFileName = "embeddings.dkt"
	IDsFileName        = "doc_ids.json"
)

const metaModelType = "model_type"

// Inference inputs are tokenized doc columns; the stored names carry the
// doc_ prefix, the model consumes the bare names.
var inferenceColumnSource = map[string]string{
	"input_ids":      "doc_input_ids",
	"attention_mask": "doc_attention_mask",
}

// Hooks is the concrete estimator.Hooks implementation. ModelConfig is used
// when LoadModel initializes a fresh model; a zero value picks the model
// package defaults.
type Hooks struct {
	ModelConfig model.BertDotConfig
}

var _ estimator.Hooks = (*Hooks)(nil)

// LoadModel resolves nameOrPath: a directory containing a model checkpoint
// loads its weights, anything else initializes fresh weights of the given
// kind.
func (h *Hooks) LoadModel(nameOrPath string, kind model.Kind) (model.Model, error) {
	ckpt := filepath.Join(nameOrPath, train.ModelFileName)
	if nameOrPath == "" || !fileExists(ckpt) {
		return model.New(kind, h.ModelConfig)
	}

	sd, meta, err := checkpoint.Read(ckpt)
	if err != nil {
		return nil, fmt.Errorf("retriever: load model %s: %w", nameOrPath, err)
	}
	if stored, ok := meta[metaModelType]; ok && stored != string(kind) {
		return nil, fmt.Errorf("retriever: checkpoint %s holds model type %q, want %q", nameOrPath, stored, kind)
	}

	cfg, err := configFromStateDict(h.ModelConfig, sd)
	if err != nil {
		return nil, fmt.Errorf("retriever: load model %s: %w", nameOrPath, err)
	}
	m, err := model.New(kind, cfg)
	if err != nil {
		return nil, err
	}
	if err := m.LoadStateDict(sd); err != nil {
		return nil, fmt.Errorf("retriever: load model %s: %w", nameOrPath, err)
	}
	return m, nil
}

// configFromStateDict sizes the model from the checkpointed tensor shapes so
// a saved model reloads without an external config file.
func configFromStateDict(base model.BertDotConfig, sd map[string]*tensor.Matrix) (model.BertDotConfig, error) {
	emb, ok := sd[model.ParamEmbedding]
	if !ok {
		return base, fmt.Errorf("checkpoint has no %q tensor", model.ParamEmbedding)
	}
	proj, ok := sd[model.ParamProjection]
	if !ok {
		return base, fmt.Errorf("checkpoint has no %q tensor", model.ParamProjection)
	}
	base.Buckets = emb.Rows()
	base.Dim = emb.Cols()
	base.ProjDim = proj.Cols()
	return base, nil
}

// LoadDataset reads a dataset directory. When tensorColumns asks for the
// bare inference names, the stored doc_-prefixed columns are renamed to
// match before selection.
func (h *Hooks) LoadDataset(dir string, tensorColumns []string) (*dataset.Dataset, error) {
	ds, err := dataset.Load(dir, nil)
	if err != nil {
		return nil, err
	}
	if tensorColumns == nil {
		return ds, nil
	}

	for _, name := range ds.SplitNames() {
		split, err := ds.Split(name)
		if err != nil {
			return nil, err
		}
		for bare, stored := range inferenceColumnSource {
			if !split.HasColumn(bare) && split.HasColumn(stored) {
				if err := split.RenameColumn(stored, bare); err != nil {
					return nil, err
				}
			}
		}
		selected, err := split.Select(tensorColumns)
		if err != nil {
			return nil, fmt.Errorf("retriever: split %q: %w", name, err)
		}
		*split = *selected
	}
	return ds, nil
}

// SaveModel persists the trained weights under dir, tagged with the model
// type.
func (h *Hooks) SaveModel(t *train.Trainer, dir string) error {
	m, ok := t.Model().(model.Model)
	if !ok {
		return fmt.Errorf("retriever: trainer holds a %T, want model.Model", t.Model())
	}
	path := filepath.Join(dir, train.ModelFileName)
	meta := map[string]string{metaModelType: string(m.Kind())}
	if err := checkpoint.Write(path, m.StateDict(), meta); err != nil {
		return fmt.Errorf("retriever: save model: %w", err)
	}
	return nil
}

// SaveInferenceResults writes the embeddings matrix and the parallel id list
// under dir.
func (h *Hooks) SaveInferenceResults(res estimator.InferenceResult, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("retriever: %w", err)
	}

	tensors := map[string]*tensor.Matrix{"embeddings": res.Embeddings}
	meta := map[string]string{"rows": fmt.Sprint(res.Embeddings.Rows())}
	if err := checkpoint.Write(filepath.Join(dir, EmbeddingsFileName), tensors, meta); err != nil {
		return fmt.Errorf("retriever: save embeddings: %w", err)
	}

	raw, err := json.Marshal(res.IDs)
	if err != nil {
		return fmt.Errorf("retriever: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, IDsFileName), raw, 0o644); err != nil {
		return fmt.Errorf("retriever: %w", err)
	}
	return nil
}

// LoadInferenceResults reads back what SaveInferenceResults wrote.
func LoadInferenceResults(dir string) (estimator.InferenceResult, error) {
	var res estimator.InferenceResult

	sd, _, err := checkpoint.Read(filepath.Join(dir, EmbeddingsFileName))
	if err != nil {
		return res, fmt.Errorf("retriever: load embeddings: %w", err)
	}
	emb, ok := sd["embeddings"]
	if !ok {
		return res, fmt.Errorf("retriever: %s has no embeddings tensor", EmbeddingsFileName)
	}

	raw, err := os.ReadFile(filepath.Join(dir, IDsFileName))
	if err != nil {
		return res, fmt.Errorf("retriever: %w", err)
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return res, fmt.Errorf("retriever: %s: %w", IDsFileName, err)
	}
	if emb.Rows() != len(ids) {
		return res, fmt.Errorf("retriever: %d embedding rows for %d ids", emb.Rows(), len(ids))
	}

	res.Embeddings = emb
	res.IDs = ids
	return res, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
