package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() *Dataset {
	train := &Split{
		Name:    "train",
		Columns: []string{"doc_id", "input_ids", "attention_mask", "label"},
	}
	test := &Split{
		Name:    "test",
		Columns: []string{"doc_id", "input_ids", "attention_mask", "label"},
	}
	for i := 0; i < 5; i++ {
		row := Example{
			"doc_id":         float64(i),
			"input_ids":      []any{float64(i), float64(i + 1), float64(i + 2)},
			"attention_mask": []any{float64(1), float64(1), float64(0)},
			"label":          float64(i % 2),
		}
		train.Examples = append(train.Examples, row)
		test.Examples = append(test.Examples, row)
	}
	return New(train, test)
}

func TestSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, sampleDataset().Save(dir))

	got, err := Load(dir, nil)
	require.NoError(t, err)

	test, err := got.Test()
	require.NoError(t, err)
	assert.Equal(t, 5, test.Len())
	assert.ElementsMatch(t, []string{"doc_id", "input_ids", "attention_mask", "label"}, test.Columns)

	ids, err := test.StringIDs("doc_id")
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", "2", "3", "4"}, ids)
}

func TestLoadWithColumnSelection(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, sampleDataset().Save(dir))

	got, err := Load(dir, []string{"input_ids", "attention_mask"})
	require.NoError(t, err)

	train, err := got.Train()
	require.NoError(t, err)
	assert.Equal(t, []string{"input_ids", "attention_mask"}, train.Columns)
	_, ok := train.Examples[0]["doc_id"]
	assert.False(t, ok)

	_, err = Load(dir, []string{"missing"})
	require.Error(t, err)
}

func TestSelectMissingColumn(t *testing.T) {
	ds := sampleDataset()
	train, err := ds.Train()
	require.NoError(t, err)

	_, err = train.Select([]string{"nope"})
	require.ErrorContains(t, err, "no column")
}

func TestRenameColumn(t *testing.T) {
	ds := sampleDataset()
	train, err := ds.Train()
	require.NoError(t, err)

	require.NoError(t, train.RenameColumn("input_ids", "doc_input_ids"))
	assert.True(t, train.HasColumn("doc_input_ids"))
	assert.False(t, train.HasColumn("input_ids"))
	_, ok := train.Examples[0]["doc_input_ids"]
	assert.True(t, ok)

	require.Error(t, train.RenameColumn("input_ids", "x"))
}

func TestBatchesPreserveOrder(t *testing.T) {
	ds := sampleDataset()
	test, err := ds.Test()
	require.NoError(t, err)

	var seen []string
	for batch := range test.Batches(2) {
		ids, err := IntColumn(batch, "input_ids")
		require.NoError(t, err)
		require.NotEmpty(t, ids)
		batchIDs, err := (&Split{Name: "b", Examples: batch}).StringIDs("doc_id")
		require.NoError(t, err)
		seen = append(seen, batchIDs...)
	}
	assert.Equal(t, []string{"0", "1", "2", "3", "4"}, seen)
	assert.Equal(t, 3, test.NumBatches(2))
}

func TestColumnAccessors(t *testing.T) {
	batch := []Example{
		{"input_ids": []any{float64(7), float64(8)}, "label": float64(1)},
	}

	ids, err := IntColumn(batch, "input_ids")
	require.NoError(t, err)
	assert.Equal(t, [][]int32{{7, 8}}, ids)

	labels, err := FloatColumn(batch, "label")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, labels)

	_, err = IntColumn(batch, "missing")
	require.Error(t, err)
	_, err = FloatColumn(batch, "missing")
	require.Error(t, err)
}

func TestMissingSplit(t *testing.T) {
	ds := New(&Split{Name: "train"})
	_, err := ds.Test()
	require.ErrorIs(t, err, ErrSplitNotFound)
}
