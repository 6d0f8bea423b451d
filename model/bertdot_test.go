package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/densekit/densekit/dataset"
	"github.com/densekit/densekit/internal/tensor"
)

func trainingBatch(n int) []dataset.Example {
	batch := make([]dataset.Example, n)
	for i := range batch {
		batch[i] = dataset.Example{
			ColQueryInputIDs:      []any{float64(10 + i), float64(20 + i)},
			ColQueryAttentionMask: []any{float64(1), float64(1)},
			ColDocInputIDs:        []any{float64(30 + i), float64(40 + i), float64(50 + i)},
			ColDocAttentionMask:   []any{float64(1), float64(1), float64(0)},
			ColLabel:              float64(i % 2),
		}
	}
	return batch
}

func newTestModel(t *testing.T, kind Kind) Model {
	t.Helper()
	m, err := New(kind, BertDotConfig{Buckets: 64, Dim: 8, ProjDim: 4, Seed: 7})
	require.NoError(t, err)
	return m
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New(Kind("bert-dot-magic"), BertDotConfig{})
	require.Error(t, err)

	assert.True(t, Supported("bert-dot-bce"))
	assert.True(t, Supported("bert-dot-pairwise-ranking"))
	assert.False(t, Supported("bert-dot-magic"))
	assert.Equal(t, []string{"bert-dot-bce", "bert-dot-pairwise-ranking"}, SupportedKinds())
}

func TestGetEmbedShapeAndOrder(t *testing.T) {
	m := newTestModel(t, KindBertDotBCE)

	ids := [][]int32{{1, 2, 3}, {4, 5, 6}, {1, 2, 3}}
	mask := [][]int32{{1, 1, 1}, {1, 1, 0}, {1, 1, 1}}

	out, err := m.GetEmbed(ids, mask)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Rows())
	assert.Equal(t, 4, out.Cols())

	// Identical inputs produce identical rows, regardless of position.
	assert.Equal(t, out.Row(0), out.Row(2))
	assert.NotEqual(t, out.Row(0), out.Row(1))
}

func TestGetEmbedDeviceParity(t *testing.T) {
	serial := newTestModel(t, KindBertDotBCE)
	parallel := newTestModel(t, KindBertDotBCE)
	parallel.To(DeviceParallel)

	ids := make([][]int32, 16)
	mask := make([][]int32, 16)
	for i := range ids {
		ids[i] = []int32{int32(i), int32(i * 3), int32(i * 7)}
		mask[i] = []int32{1, 1, 1}
	}

	a, err := serial.GetEmbed(ids, mask)
	require.NoError(t, err)
	b, err := parallel.GetEmbed(ids, mask)
	require.NoError(t, err)
	assert.Equal(t, a.Data(), b.Data())
}

func TestGetEmbedValidatesShapes(t *testing.T) {
	m := newTestModel(t, KindBertDotBCE)

	_, err := m.GetEmbed([][]int32{{1}}, [][]int32{{1}, {1}})
	require.Error(t, err)

	_, err = m.GetEmbed([][]int32{{1, 2}}, [][]int32{{1}})
	require.Error(t, err)
}

func TestTrainStepAccumulatesGradients(t *testing.T) {
	for _, kind := range []Kind{KindBertDotBCE, KindBertDotPairwiseRanking} {
		t.Run(string(kind), func(t *testing.T) {
			m := newTestModel(t, kind)
			m.Train()

			loss, err := m.TrainStep(trainingBatch(4))
			require.NoError(t, err)
			assert.Greater(t, loss, float32(0))

			nonZero := false
			for _, p := range m.Parameters() {
				for _, g := range p.Grad().Data() {
					if g != 0 {
						nonZero = true
					}
				}
			}
			assert.True(t, nonZero, "expected gradients after TrainStep")
		})
	}
}

func TestTrainStepModeGuards(t *testing.T) {
	m := newTestModel(t, KindBertDotBCE)

	_, err := m.TrainStep(trainingBatch(2))
	require.ErrorContains(t, err, "training mode")

	m.Train()
	release := m.NoGrad()
	_, err = m.TrainStep(trainingBatch(2))
	require.ErrorContains(t, err, "no-grad")
	release()

	_, err = m.TrainStep(trainingBatch(2))
	require.NoError(t, err)
}

func TestNoGradScopesNest(t *testing.T) {
	m := newTestModel(t, KindBertDotBCE).(*BertDot)
	assert.True(t, m.tracking)

	outer := m.NoGrad()
	inner := m.NoGrad()
	assert.False(t, m.tracking)
	inner()
	assert.False(t, m.tracking)
	outer()
	assert.True(t, m.tracking)
}

func TestEvalLogitsSumToZeroPerRow(t *testing.T) {
	m := newTestModel(t, KindBertDotBCE)

	logits, err := m.EvalLogits(trainingBatch(3))
	require.NoError(t, err)
	assert.Equal(t, 3, logits.Rows())
	assert.Equal(t, 2, logits.Cols())
	for i := 0; i < logits.Rows(); i++ {
		assert.InDelta(t, 0, logits.At(i, 0)+logits.At(i, 1), 1e-6)
	}
}

func TestStateDictRoundtrip(t *testing.T) {
	src := newTestModel(t, KindBertDotPairwiseRanking)
	dst, err := New(KindBertDotPairwiseRanking, BertDotConfig{Buckets: 64, Dim: 8, ProjDim: 4, Seed: 99})
	require.NoError(t, err)

	require.NoError(t, dst.LoadStateDict(src.StateDict()))

	ids := [][]int32{{1, 2, 3}}
	mask := [][]int32{{1, 1, 1}}
	a, err := src.GetEmbed(ids, mask)
	require.NoError(t, err)
	b, err := dst.GetEmbed(ids, mask)
	require.NoError(t, err)
	assert.Equal(t, a.Data(), b.Data())

	err = dst.LoadStateDict(map[string]*tensor.Matrix{})
	require.Error(t, err)
}

func TestResolveDevice(t *testing.T) {
	d, err := ResolveDevice("")
	require.NoError(t, err)
	assert.Contains(t, []Device{DeviceSerial, DeviceParallel}, d)

	d, err = ResolveDevice("serial")
	require.NoError(t, err)
	assert.Equal(t, DeviceSerial, d)

	_, err = ResolveDevice("cuda")
	require.Error(t, err)
}
