package train

import (
	"fmt"
	"math"
	"strconv"

	"github.com/densekit/densekit/internal/nn"
	"github.com/densekit/densekit/internal/tensor"
)

// AdamW implements Adam with decoupled weight decay.
//
// Update rule per element, with bias-corrected first and second moments:
//
//	m = beta1*m + (1-beta1)*g
//	v = beta2*v + (1-beta2)*g^2
//	w = w - lr*(mhat/(sqrt(vhat)+eps) + weightDecay*w)
type AdamW struct {
	params      []*nn.Parameter
	beta1       float32
	beta2       float32
	eps         float32
	weightDecay float32
	t           int
	m           []*tensor.Matrix
	v           []*tensor.Matrix
}

// NewAdamW creates an AdamW optimizer over the given parameters with default
// betas (0.9, 0.999) and eps 1e-8.
func NewAdamW(params []*nn.Parameter, weightDecay float32) *AdamW {
	o := &AdamW{
		params:      params,
		beta1:       0.9,
		beta2:       0.999,
		eps:         1e-8,
		weightDecay: weightDecay,
		m:           make([]*tensor.Matrix, len(params)),
		v:           make([]*tensor.Matrix, len(params)),
	}
	for i, p := range params {
		o.m[i] = tensor.New(p.Value().Rows(), p.Value().Cols())
		o.v[i] = tensor.New(p.Value().Rows(), p.Value().Cols())
	}
	return o
}

// Step applies one update with the given learning rate, consuming the
// gradients currently accumulated on the parameters.
func (o *AdamW) Step(lr float32) {
	o.t++
	bc1 := 1 - float32(math.Pow(float64(o.beta1), float64(o.t)))
	bc2 := 1 - float32(math.Pow(float64(o.beta2), float64(o.t)))

	for i, p := range o.params {
		w := p.Value().Data()
		g := p.Grad().Data()
		m := o.m[i].Data()
		v := o.v[i].Data()
		for j := range w {
			gj := g[j]
			m[j] = o.beta1*m[j] + (1-o.beta1)*gj
			v[j] = o.beta2*v[j] + (1-o.beta2)*gj*gj
			mhat := m[j] / bc1
			vhat := v[j] / bc2
			w[j] -= lr * (mhat/(float32(math.Sqrt(float64(vhat)))+o.eps) + o.weightDecay*w[j])
		}
	}
}

// ZeroGrad clears all parameter gradients.
func (o *AdamW) ZeroGrad() {
	for _, p := range o.params {
		p.ZeroGrad()
	}
}

// Steps returns the number of updates applied so far.
func (o *AdamW) Steps() int { return o.t }

// StateDict returns the optimizer moments keyed by parameter name, plus the
// step counter in the metadata map.
func (o *AdamW) StateDict() (map[string]*tensor.Matrix, map[string]string) {
	sd := make(map[string]*tensor.Matrix, 2*len(o.params))
	for i, p := range o.params {
		sd["m."+p.Name()] = o.m[i]
		sd["v."+p.Name()] = o.v[i]
	}
	return sd, map[string]string{"adamw_step": strconv.Itoa(o.t)}
}

// LoadStateDict restores moments and the step counter.
func (o *AdamW) LoadStateDict(sd map[string]*tensor.Matrix, meta map[string]string) error {
	for i, p := range o.params {
		m, ok := sd["m."+p.Name()]
		if !ok {
			return fmt.Errorf("train: optimizer state missing m.%s", p.Name())
		}
		v, ok := sd["v."+p.Name()]
		if !ok {
			return fmt.Errorf("train: optimizer state missing v.%s", p.Name())
		}
		o.m[i] = m.Clone()
		o.v[i] = v.Clone()
	}
	if raw, ok := meta["adamw_step"]; ok {
		t, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("train: bad adamw_step %q: %w", raw, err)
		}
		o.t = t
	}
	return nil
}
