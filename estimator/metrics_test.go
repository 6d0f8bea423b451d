package estimator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/densekit/densekit/internal/tensor"
)

func TestSoftmaxRowsSumToOne(t *testing.T) {
	logits := tensor.FromSlice(3, 3, []float32{
		1, 2, 3,
		-5, 0, 5,
		100, 100, 100,
	})

	probs, err := Softmax(logits)
	require.NoError(t, err)

	for i := 0; i < probs.Rows(); i++ {
		var sum float32
		for j := 0; j < probs.Cols(); j++ {
			p := probs.At(i, j)
			assert.GreaterOrEqual(t, p, float32(0))
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-5, "row %d", i)
	}
}

func TestSoftmaxShiftInvariance(t *testing.T) {
	base := tensor.FromSlice(1, 3, []float32{1, 2, 3})
	shifted := tensor.FromSlice(1, 3, []float32{1001, 1002, 1003})

	p1, err := Softmax(base)
	require.NoError(t, err)
	p2, err := Softmax(shifted)
	require.NoError(t, err)

	for j := 0; j < 3; j++ {
		assert.InDelta(t, p1.At(0, j), p2.At(0, j), 1e-5)
	}
}

func TestSoftmaxLargeLogitsStayFinite(t *testing.T) {
	logits := tensor.FromSlice(1, 2, []float32{1e20, 1e20})
	probs, err := Softmax(logits)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, probs.At(0, 0), 1e-5)
}

func TestSoftmaxEmpty(t *testing.T) {
	_, err := Softmax(tensor.New(0, 2))
	assert.ErrorIs(t, err, ErrEmptyLogits)
	_, err = Softmax(nil)
	assert.ErrorIs(t, err, ErrEmptyLogits)
}

func TestComputeF1(t *testing.T) {
	// Rows 0 and 1 predict class 1, rows 2 and 3 predict class 0.
	logits := tensor.FromSlice(4, 2, []float32{
		-1, 1,
		-2, 2,
		3, -3,
		4, -4,
	})

	// tp=1 (row 0), fp=1 (row 1), fn=1 (row 2), tn=1 (row 3).
	metrics, err := ComputeF1(logits, []float32{1, 0, 1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, metrics["f1"], 1e-6)
}

func TestComputeF1AllCorrect(t *testing.T) {
	logits := tensor.FromSlice(2, 2, []float32{
		-1, 1,
		1, -1,
	})
	metrics, err := ComputeF1(logits, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, metrics["f1"], 1e-6)
}

func TestComputeF1NoPositives(t *testing.T) {
	logits := tensor.FromSlice(2, 2, []float32{
		1, -1,
		1, -1,
	})
	metrics, err := ComputeF1(logits, []float32{1, 1})
	require.NoError(t, err)
	assert.Equal(t, 0.0, metrics["f1"])
}

func TestComputeF1Empty(t *testing.T) {
	_, err := ComputeF1(tensor.New(0, 2), nil)
	assert.ErrorIs(t, err, ErrEmptyLogits)
}
