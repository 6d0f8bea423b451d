package estimator

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/densekit/densekit/internal/tensor"
	"github.com/densekit/densekit/internal/train"
)

// Softmax normalizes each row of logits into a probability distribution.
// The row max is subtracted before exponentiating to keep the sums finite.
func Softmax(logits *tensor.Matrix) (*tensor.Matrix, error) {
	if logits == nil || logits.Rows() == 0 {
		return nil, ErrEmptyLogits
	}

	out := tensor.New(logits.Rows(), logits.Cols())
	row := make([]float64, logits.Cols())
	for i := 0; i < logits.Rows(); i++ {
		for j := range row {
			row[j] = float64(logits.At(i, j))
		}
		max := floats.Max(row)
		var sum float64
		for j := range row {
			row[j] = math.Exp(row[j] - max)
			sum += row[j]
		}
		for j := range row {
			out.Set(i, j, float32(row[j]/sum))
		}
	}
	return out, nil
}

// ComputeF1 scores binary-classification logits against reference labels
// with the F1 measure. The predicted class is the softmax argmax per row.
// It satisfies train.MetricFunc.
func ComputeF1(logits *tensor.Matrix, labels []float32) (train.Metrics, error) {
	probs, err := Softmax(logits)
	if err != nil {
		return nil, err
	}

	var tp, fp, fn float64
	for i := 0; i < probs.Rows(); i++ {
		pred := argmaxRow(probs, i)
		truth := int(labels[i])
		switch {
		case pred == 1 && truth == 1:
			tp++
		case pred == 1 && truth == 0:
			fp++
		case pred == 0 && truth == 1:
			fn++
		}
	}

	var f1 float64
	if tp > 0 {
		precision := tp / (tp + fp)
		recall := tp / (tp + fn)
		f1 = 2 * precision * recall / (precision + recall)
	}
	return train.Metrics{"f1": f1}, nil
}

func argmaxRow(m *tensor.Matrix, i int) int {
	best, bestVal := 0, m.At(i, 0)
	for j := 1; j < m.Cols(); j++ {
		if v := m.At(i, j); v > bestVal {
			best, bestVal = j, v
		}
	}
	return best
}
