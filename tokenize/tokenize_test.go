package tokenize

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/densekit/densekit/dataset"
)

// wordEncoder assigns one token per whitespace-separated word.
type wordEncoder struct{}

func (wordEncoder) Encode(text string) []int {
	words := strings.Fields(text)
	ids := make([]int, len(words))
	for i := range words {
		ids[i] = 100 + i
	}
	return ids
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const trainJSONL = `{"query": "red shoes", "doc": "buy red running shoes online today", "label": 1, "doc_id": "d0"}
{"query": "blue hat", "doc": "knitted hat", "label": 0, "doc_id": "d1"}
`

const testJSONL = `{"query": "green socks", "doc": "wool socks for winter", "label": 1, "doc_id": "d2"}
`

func TestTrainDatasetTrainOnly(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "encoded")

	err := TrainDataset(context.Background(), Options{
		TrainFile: writeFile(t, dir, "train.jsonl", trainJSONL),
		OutPath:   out,
		Encoder:   wordEncoder{},
		FileType:  FileTypeJSONL,
		MaxLength: 4,
	})
	require.NoError(t, err)

	ds, err := dataset.Load(out, nil)
	require.NoError(t, err)

	_, err = ds.Test()
	assert.ErrorIs(t, err, dataset.ErrSplitNotFound)

	train, err := ds.Train()
	require.NoError(t, err)
	require.Equal(t, 2, train.Len())

	assert.False(t, train.HasColumn("query"))
	assert.False(t, train.HasColumn("doc"))
	for _, col := range []string{
		"query_input_ids", "query_attention_mask",
		"doc_input_ids", "doc_attention_mask",
		"label", "doc_id",
	} {
		assert.True(t, train.HasColumn(col), col)
	}
}

func TestTrainDatasetTrainAndTest(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "encoded")

	err := TrainDataset(context.Background(), Options{
		TrainFile: writeFile(t, dir, "train.jsonl", trainJSONL),
		TestFile:  writeFile(t, dir, "test.jsonl", testJSONL),
		OutPath:   out,
		Encoder:   wordEncoder{},
		FileType:  FileTypeJSONL,
		MaxLength: 8,
	})
	require.NoError(t, err)

	ds, err := dataset.Load(out, nil)
	require.NoError(t, err)

	test, err := ds.Test()
	require.NoError(t, err)
	assert.Equal(t, 1, test.Len())
}

func TestTruncationAndPadding(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "encoded")

	err := TrainDataset(context.Background(), Options{
		TrainFile: writeFile(t, dir, "train.jsonl", trainJSONL),
		OutPath:   out,
		Encoder:   wordEncoder{},
		FileType:  FileTypeJSONL,
		MaxLength: 4,
		Padding:   true,
	})
	require.NoError(t, err)

	ds, err := dataset.Load(out, nil)
	require.NoError(t, err)
	train, err := ds.Train()
	require.NoError(t, err)

	ids, err := dataset.IntColumn(train.Examples, "doc_input_ids")
	require.NoError(t, err)
	masks, err := dataset.IntColumn(train.Examples, "doc_attention_mask")
	require.NoError(t, err)

	// Row 0: "buy red running shoes online today" has 6 words, truncated to 4.
	assert.Len(t, ids[0], 4)
	assert.Equal(t, []int32{1, 1, 1, 1}, masks[0])

	// Row 1: "knitted hat" has 2 words, padded to 4 with a zeroed mask tail.
	assert.Equal(t, []int32{100, 101, 0, 0}, ids[1])
	assert.Equal(t, []int32{1, 1, 0, 0}, masks[1])
}

func TestCSVSource(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "encoded")
	csv := "query,doc,label,doc_id\nred shoes,buy shoes,1,d0\n"

	err := TrainDataset(context.Background(), Options{
		TrainFile: writeFile(t, dir, "train.csv", csv),
		OutPath:   out,
		Encoder:   wordEncoder{},
		FileType:  FileTypeCSV,
		MaxLength: 4,
	})
	require.NoError(t, err)

	ds, err := dataset.Load(out, nil)
	require.NoError(t, err)
	train, err := ds.Train()
	require.NoError(t, err)
	require.Equal(t, 1, train.Len())
	assert.True(t, train.HasColumn("query_input_ids"))
}

func TestUnsupportedFileType(t *testing.T) {
	dir := t.TempDir()
	err := TrainDataset(context.Background(), Options{
		TrainFile: writeFile(t, dir, "train.parquet", "x"),
		OutPath:   filepath.Join(dir, "encoded"),
		Encoder:   wordEncoder{},
		FileType:  "parquet",
		MaxLength: 4,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestMissingTextColumn(t *testing.T) {
	dir := t.TempDir()
	err := TrainDataset(context.Background(), Options{
		TrainFile: writeFile(t, dir, "train.jsonl", `{"doc": "no query here", "label": 0}`+"\n"),
		OutPath:   filepath.Join(dir, "encoded"),
		Encoder:   wordEncoder{},
		FileType:  FileTypeJSONL,
		MaxLength: 4,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no "query" column`)
}

func TestZipDir(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "encoded")
	zipPath := filepath.Join(dir, "encoded.zip")

	err := TrainDataset(context.Background(), Options{
		TrainFile: writeFile(t, dir, "train.jsonl", trainJSONL),
		OutPath:   out,
		Encoder:   wordEncoder{},
		FileType:  FileTypeJSONL,
		MaxLength: 4,
		ZipPath:   zipPath,
	})
	require.NoError(t, err)

	zr, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer zr.Close()

	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	assert.True(t, names["dataset_info.json"])
	assert.True(t, names["train.jsonl"])
}

func TestOptionValidation(t *testing.T) {
	ctx := context.Background()
	assert.Error(t, TrainDataset(ctx, Options{OutPath: "x", MaxLength: 4}))
	assert.Error(t, TrainDataset(ctx, Options{TrainFile: "x", MaxLength: 4}))
	assert.Error(t, TrainDataset(ctx, Options{TrainFile: "x", OutPath: "y"}))
}
