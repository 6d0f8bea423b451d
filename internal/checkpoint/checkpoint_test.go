package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/densekit/densekit/internal/tensor"
)

func TestWriteReadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.dkt")

	tensors := map[string]*tensor.Matrix{
		"embedding.weight":  tensor.FromSlice(2, 3, []float32{1, 2, 3, 4, 5, 6}),
		"projection.weight": tensor.FromSlice(3, 1, []float32{-1, 0.5, 2}),
	}
	meta := map[string]string{"model_type": "bert-dot-bce"}

	require.NoError(t, Write(path, tensors, meta))

	got, gotMeta, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, meta, gotMeta)
	require.Len(t, got, 2)
	for name, want := range tensors {
		assert.Equal(t, want.Data(), got[name].Data(), name)
		assert.Equal(t, want.Rows(), got[name].Rows(), name)
	}
}

func TestReadRejectsCorruptPayload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.dkt")

	require.NoError(t, Write(path, map[string]*tensor.Matrix{
		"w": tensor.FromSlice(1, 4, []float32{1, 2, 3, 4}),
	}, nil))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, _, err = Read(path)
	require.ErrorContains(t, err, "checksum mismatch")
}

func TestReadRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bogus.dkt")
	require.NoError(t, os.WriteFile(path, []byte("NOPE1234"), 0o644))

	_, _, err := Read(path)
	require.ErrorContains(t, err, "not a .dkt file")
}

func TestLatestStep(t *testing.T) {
	dir := t.TempDir()

	step, path, err := LatestStep(dir)
	require.NoError(t, err)
	assert.Equal(t, -1, step)
	assert.Empty(t, path)

	for _, name := range []string{"checkpoint-100", "checkpoint-2000", "checkpoint-999", "notes"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, name), 0o755))
	}

	step, path, err = LatestStep(dir)
	require.NoError(t, err)
	assert.Equal(t, 2000, step)
	assert.Equal(t, filepath.Join(dir, "checkpoint-2000"), path)

	step, _, err = LatestStep(filepath.Join(dir, "does-not-exist"))
	require.NoError(t, err)
	assert.Equal(t, -1, step)
}
