package tokenize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/densekit/densekit/dataset"
)

// Text columns encoded by TrainDataset, in order.
var textColumns = []string{"query", "doc"}

// Options configures TrainDataset.
type Options struct {
	// TrainFile is the source file for the train split. Required.
	TrainFile string
	// TestFile is the source file for the test split. When empty the output
	// dataset has a train split only.
	TestFile string
	// OutPath is the dataset directory to write. Required.
	OutPath string

	// Encoding names the tiktoken encoding. Ignored when Encoder is set.
	Encoding string
	// Encoder overrides the tiktoken encoder.
	Encoder Encoder

	// FileType is "csv" or "json" (JSON Lines).
	FileType string
	// ZipPath, when non-empty, receives a zip archive of OutPath.
	ZipPath string

	// MaxLength truncates every encoding. Required, > 0.
	MaxLength int
	// Padding pads ids and mask with zeros up to MaxLength.
	Padding bool

	// Workers bounds the encoding parallelism. Defaults to GOMAXPROCS.
	Workers int

	Logger *slog.Logger
}

// TrainDataset loads the source file(s), encodes the query and doc columns,
// saves the encoded dataset under Options.OutPath and optionally zips it.
func TrainDataset(ctx context.Context, opts Options) error {
	if opts.TrainFile == "" {
		return errors.New("tokenize: train file is required")
	}
	if opts.OutPath == "" {
		return errors.New("tokenize: out path is required")
	}
	if opts.MaxLength <= 0 {
		return errors.New("tokenize: max length must be positive")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enc := opts.Encoder
	if enc == nil {
		var err error
		if enc, err = NewTiktoken(opts.Encoding); err != nil {
			return err
		}
	}

	logger.Info("loading dataset", "train", opts.TrainFile, "test", opts.TestFile)
	// The two arities stay distinct: a missing test file means a train-only
	// dataset, not an empty test split.
	var ds *dataset.Dataset
	if opts.TestFile == "" {
		train, err := loadSplit("train", opts.TrainFile, opts.FileType)
		if err != nil {
			return err
		}
		ds = dataset.New(train)
	} else {
		train, err := loadSplit("train", opts.TrainFile, opts.FileType)
		if err != nil {
			return err
		}
		test, err := loadSplit("test", opts.TestFile, opts.FileType)
		if err != nil {
			return err
		}
		ds = dataset.New(train, test)
	}

	logger.Info("tokenizing dataset", "max_length", opts.MaxLength, "padding", opts.Padding)
	for _, col := range textColumns {
		if err := encodeColumn(ctx, ds, enc, col, opts); err != nil {
			return err
		}
	}

	logger.Info("saving dataset", "dir", opts.OutPath)
	if err := ds.Save(opts.OutPath); err != nil {
		return err
	}

	if opts.ZipPath != "" {
		logger.Info("zipping dataset", "zip", opts.ZipPath)
		if err := ZipDir(opts.OutPath, opts.ZipPath); err != nil {
			return err
		}
	}
	return nil
}

// encodeColumn replaces the named text column in every split with
// {col}_input_ids and {col}_attention_mask columns.
func encodeColumn(ctx context.Context, ds *dataset.Dataset, enc Encoder, col string, opts Options) error {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	idsCol := col + "_input_ids"
	maskCol := col + "_attention_mask"

	for _, name := range ds.SplitNames() {
		split, err := ds.Split(name)
		if err != nil {
			return err
		}
		if !split.HasColumn(col) {
			return fmt.Errorf("tokenize: split %q has no %q column", name, col)
		}

		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, ex := range split.Examples {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				text, ok := ex[col].(string)
				if !ok {
					return fmt.Errorf("tokenize: split %q column %q: want string, got %T", name, col, ex[col])
				}
				ids, mask := encodeText(enc, text, opts.MaxLength, opts.Padding)
				ex[idsCol] = ids
				ex[maskCol] = mask
				delete(ex, col)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		renameEncodedColumn(split, col, idsCol, maskCol)
	}
	return nil
}

// renameEncodedColumn swaps the text column name for the two encoded column
// names, keeping the original column position.
func renameEncodedColumn(split *dataset.Split, col, idsCol, maskCol string) {
	cols := make([]string, 0, len(split.Columns)+1)
	for _, c := range split.Columns {
		if c == col {
			cols = append(cols, idsCol, maskCol)
			continue
		}
		cols = append(cols, c)
	}
	split.Columns = cols
}

// encodeText encodes one text value: truncate to maxLength, mask 1 for real
// tokens, then zero-pad both to maxLength when padding is on.
func encodeText(enc Encoder, text string, maxLength int, padding bool) ([]int32, []int32) {
	raw := enc.Encode(text)
	if len(raw) > maxLength {
		raw = raw[:maxLength]
	}

	n := len(raw)
	size := n
	if padding {
		size = maxLength
	}
	ids := make([]int32, size)
	mask := make([]int32, size)
	for i, id := range raw {
		ids[i] = int32(id)
		mask[i] = 1
	}
	return ids, mask
}
