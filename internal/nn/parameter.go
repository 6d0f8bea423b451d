// Package nn holds the trainable-parameter primitive shared by the retriever
// models and the training driver.
package nn

import (
	"github.com/densekit/densekit/internal/tensor"
)

// Parameter is a named trainable matrix with an accumulated gradient.
//
// Gradients are accumulated in place by the model's backward pass and
// consumed by the optimizer; ZeroGrad must be called at accumulation
// boundaries, not per step.
type Parameter struct {
	name  string
	value *tensor.Matrix
	grad  *tensor.Matrix
}

// NewParameter creates a parameter wrapping the given value matrix.
// The gradient is allocated eagerly with the same shape.
func NewParameter(name string, value *tensor.Matrix) *Parameter {
	return &Parameter{
		name:  name,
		value: value,
		grad:  tensor.New(value.Rows(), value.Cols()),
	}
}

// Name returns the parameter name (e.g. "embedding.weight").
func (p *Parameter) Name() string { return p.name }

// Value returns the parameter matrix.
func (p *Parameter) Value() *tensor.Matrix { return p.value }

// Grad returns the accumulated gradient matrix.
func (p *Parameter) Grad() *tensor.Matrix { return p.grad }

// SetValue replaces the parameter matrix. Shape must match.
func (p *Parameter) SetValue(v *tensor.Matrix) {
	if v.Rows() != p.value.Rows() || v.Cols() != p.value.Cols() {
		panic("nn: SetValue shape mismatch for " + p.name)
	}
	p.value = v
}

// ZeroGrad clears the accumulated gradient.
func (p *Parameter) ZeroGrad() {
	p.grad.Zero()
}
