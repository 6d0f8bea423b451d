package estimator

// Training-loop constants shared by every fit run.
const (
	WarmupSteps  = 500
	WeightDecay  = 0.01
	LoggingSteps = 500
	EvalSteps    = 5000

	DefaultOutputDir = "./tmp"
	DefaultLR        = 3e-5
)

// Config holds the hyperparameters for one Estimator. Treated as immutable
// after New.
type Config struct {
	// ModelNameOrPath is a checkpoint directory or a fresh-model name, passed
	// through to the model-loading hook.
	ModelNameOrPath string
	// ModelType selects one of the supported retriever model types.
	ModelType string

	// TrainSteps caps training at a number of optimizer steps. When 0,
	// NumEpochs governs the run length.
	TrainSteps int
	NumEpochs  int

	BatchSize int
	// EvalBatchSize defaults to BatchSize when 0.
	EvalBatchSize int
	// AccumSteps is the number of gradient-accumulation micro-batches per
	// optimizer step.
	AccumSteps int

	// LR defaults to DefaultLR when 0.
	LR float32

	// SaveSteps switches checkpointing from once-per-epoch to every N steps
	// when > 0.
	SaveSteps int

	// Device is "serial", "parallel" or empty for auto-detection.
	Device string

	// Resume continues from the latest checkpoint under the output directory.
	Resume bool

	// InBatchNeg enables in-batch negative sampling during training.
	InBatchNeg bool

	// IDColumn names the dataset column holding example ids for predict.
	// Defaults to "doc_id".
	IDColumn string

	// OutputDir is the training working directory. Defaults to "./tmp".
	OutputDir string

	// Seed drives weight initialization and the epoch shuffle.
	Seed int64
}
