package model

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/densekit/densekit/dataset"
	"github.com/densekit/densekit/internal/nn"
	"github.com/densekit/densekit/internal/tensor"
)

// Column names produced by the tokenization pipeline.
const (
	ColQueryInputIDs      = "query_input_ids"
	ColQueryAttentionMask = "query_attention_mask"
	ColDocInputIDs        = "doc_input_ids"
	ColDocAttentionMask   = "doc_attention_mask"
	ColLabel              = "label"
)

// BertDotConfig configures a bert-dot model.
type BertDotConfig struct {
	// Buckets is the size of the hashed token-embedding table.
	Buckets int
	// Dim is the pooled token-embedding width.
	Dim int
	// ProjDim is the output embedding width.
	ProjDim int
	// Seed seeds weight initialization.
	Seed int64
	// Margin is the pairwise ranking margin.
	Margin float32
	// InBatchNeg adds in-batch negatives to the BCE objective.
	InBatchNeg bool
}

func (c *BertDotConfig) withDefaults() {
	if c.Buckets <= 0 {
		c.Buckets = 1 << 15
	}
	if c.Dim <= 0 {
		c.Dim = 128
	}
	if c.ProjDim <= 0 {
		c.ProjDim = 64
	}
	if c.Margin <= 0 {
		c.Margin = 1.0
	}
}

// State-dict tensor names.
const (
	ParamEmbedding  = "embedding.weight"
	ParamProjection = "projection.weight"
)

// BertDot scores query/document pairs by the dot product of their pooled,
// projected token embeddings. Token ids are feature-hashed into a fixed
// number of buckets so the table size is independent of the tokenizer vocab.
type BertDot struct {
	cfg  BertDotConfig
	kind Kind

	emb  *nn.Parameter // Buckets x Dim
	proj *nn.Parameter // Dim x ProjDim

	device   Device
	training bool
	tracking bool
}

func newBertDot(kind Kind, cfg BertDotConfig) *BertDot {
	cfg.withDefaults()
	std := 1.0 / math.Sqrt(float64(cfg.Dim))
	return &BertDot{
		cfg:      cfg,
		kind:     kind,
		emb:      nn.NewParameter(ParamEmbedding, tensor.Randn(cfg.Buckets, cfg.Dim, std, cfg.Seed)),
		proj:     nn.NewParameter(ParamProjection, tensor.Randn(cfg.Dim, cfg.ProjDim, std, cfg.Seed+1)),
		device:   DeviceSerial,
		training: false,
		tracking: true,
	}
}

// Kind returns the model type.
func (m *BertDot) Kind() Kind { return m.kind }

// Config returns the model configuration.
func (m *BertDot) Config() BertDotConfig { return m.cfg }

// To moves the model's compute to the given device.
func (m *BertDot) To(d Device) { m.device = d }

// Train puts the model in training mode.
func (m *BertDot) Train() { m.training = true }

// Eval puts the model in evaluation mode.
func (m *BertDot) Eval() { m.training = false }

// NoGrad disables gradient bookkeeping until the returned release func is
// called. The release restores the previous tracking state, so nested scopes
// compose.
func (m *BertDot) NoGrad() func() {
	prev := m.tracking
	m.tracking = false
	return func() { m.tracking = prev }
}

// Parameters returns the trainable parameters.
func (m *BertDot) Parameters() []*nn.Parameter {
	return []*nn.Parameter{m.emb, m.proj}
}

// StateDict returns the named weight matrices.
func (m *BertDot) StateDict() map[string]*tensor.Matrix {
	return map[string]*tensor.Matrix{
		m.emb.Name():  m.emb.Value(),
		m.proj.Name(): m.proj.Value(),
	}
}

// LoadStateDict restores weights from a state dict.
func (m *BertDot) LoadStateDict(sd map[string]*tensor.Matrix) error {
	for _, p := range m.Parameters() {
		v, ok := sd[p.Name()]
		if !ok {
			return fmt.Errorf("model: state dict missing %q", p.Name())
		}
		if v.Rows() != p.Value().Rows() || v.Cols() != p.Value().Cols() {
			return fmt.Errorf("model: %q shape mismatch: have %dx%d, want %dx%d",
				p.Name(), v.Rows(), v.Cols(), p.Value().Rows(), p.Value().Cols())
		}
		p.SetValue(v.Clone())
	}
	return nil
}

func (m *BertDot) bucket(id int32) int {
	return int((uint32(id) * 2654435761) % uint32(m.cfg.Buckets))
}

// embedCache retains the forward intermediates needed by the backward pass.
type embedCache struct {
	pooled  *tensor.Matrix // n x Dim
	buckets [][]int        // contributing buckets per row, repeats included
	counts  []int
}

// embed computes one projected embedding row per sequence. The returned
// cache is nil when gradient tracking is off.
func (m *BertDot) embed(inputIDs, attentionMask [][]int32) (*tensor.Matrix, *embedCache, error) {
	if len(inputIDs) != len(attentionMask) {
		return nil, nil, fmt.Errorf("model: input_ids rows (%d) != attention_mask rows (%d)", len(inputIDs), len(attentionMask))
	}
	n := len(inputIDs)
	out := tensor.New(n, m.cfg.ProjDim)

	var cache *embedCache
	if m.tracking {
		cache = &embedCache{
			pooled:  tensor.New(n, m.cfg.Dim),
			buckets: make([][]int, n),
			counts:  make([]int, n),
		}
	}

	embedRow := func(i int) error {
		ids, mask := inputIDs[i], attentionMask[i]
		if len(ids) != len(mask) {
			return fmt.Errorf("model: row %d: input_ids length %d != attention_mask length %d", i, len(ids), len(mask))
		}
		h := make([]float32, m.cfg.Dim)
		var rowBuckets []int
		count := 0
		for pos, id := range ids {
			if mask[pos] == 0 {
				continue
			}
			b := m.bucket(id)
			row := m.emb.Value().Row(b)
			for d, v := range row {
				h[d] += v
			}
			if cache != nil {
				rowBuckets = append(rowBuckets, b)
			}
			count++
		}
		if count > 0 {
			inv := 1 / float32(count)
			for d := range h {
				h[d] *= inv
			}
		}
		m.proj.Value().MulVec(h, out.Row(i))
		if cache != nil {
			copy(cache.pooled.Row(i), h)
			cache.buckets[i] = rowBuckets
			cache.counts[i] = count
		}
		return nil
	}

	workers := runtime.GOMAXPROCS(0)
	if m.device != DeviceParallel || workers < 2 || n < 2 {
		for i := 0; i < n; i++ {
			if err := embedRow(i); err != nil {
				return nil, nil, err
			}
		}
		return out, cache, nil
	}

	errs := make([]error, n)
	var wg sync.WaitGroup
	chunk := (n + workers - 1) / workers
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				errs[i] = embedRow(i)
			}
		}(lo, hi)
	}
	wg.Wait()
	return out, cache, errors.Join(errs...)
}

// GetEmbed computes one embedding row per input sequence, preserving input
// order.
func (m *BertDot) GetEmbed(inputIDs, attentionMask [][]int32) (*tensor.Matrix, error) {
	out, _, err := m.embed(inputIDs, attentionMask)
	return out, err
}

// embedBackward accumulates gradients for one embed call: dOut is the loss
// gradient with respect to the projected output rows.
func (m *BertDot) embedBackward(cache *embedCache, dOut *tensor.Matrix) {
	proj := m.proj.Value()
	projGrad := m.proj.Grad()
	embGrad := m.emb.Grad()

	dh := make([]float32, m.cfg.Dim)
	for i := 0; i < dOut.Rows(); i++ {
		h := cache.pooled.Row(i)
		dout := dOut.Row(i)

		for a, ha := range h {
			if ha == 0 {
				continue
			}
			row := projGrad.Row(a)
			for j, dj := range dout {
				row[j] += ha * dj
			}
		}

		for a := range dh {
			sum := float32(0)
			row := proj.Row(a)
			for j, dj := range dout {
				sum += row[j] * dj
			}
			dh[a] = sum
		}

		if cache.counts[i] == 0 {
			continue
		}
		inv := 1 / float32(cache.counts[i])
		for _, b := range cache.buckets[i] {
			row := embGrad.Row(b)
			for a, v := range dh {
				row[a] += v * inv
			}
		}
	}
}

func dot(a, b []float32) float32 {
	var s float32
	for i, v := range a {
		s += v * b[i]
	}
	return s
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

// bceTerm returns the binary cross-entropy loss for score s against label y
// and the gradient of that loss with respect to s.
func bceTerm(s, y float32) (loss, ds float32) {
	p := sigmoid(s)
	const eps = 1e-7
	pc := min(max(p, eps), 1-eps)
	loss = -(y*float32(math.Log(float64(pc))) + (1-y)*float32(math.Log(float64(1-pc))))
	return loss, p - y
}

// TrainStep runs forward and backward over one batch of tokenized
// query/document pairs, accumulating gradients into the parameters.
func (m *BertDot) TrainStep(batch []dataset.Example) (float32, error) {
	if !m.training {
		return 0, errors.New("model: TrainStep called outside training mode")
	}
	if !m.tracking {
		return 0, errors.New("model: TrainStep called inside a no-grad scope")
	}
	if len(batch) == 0 {
		return 0, errors.New("model: empty training batch")
	}

	qIDs, err := dataset.IntColumn(batch, ColQueryInputIDs)
	if err != nil {
		return 0, err
	}
	qMask, err := dataset.IntColumn(batch, ColQueryAttentionMask)
	if err != nil {
		return 0, err
	}
	dIDs, err := dataset.IntColumn(batch, ColDocInputIDs)
	if err != nil {
		return 0, err
	}
	dMask, err := dataset.IntColumn(batch, ColDocAttentionMask)
	if err != nil {
		return 0, err
	}

	qOut, qCache, err := m.embed(qIDs, qMask)
	if err != nil {
		return 0, err
	}
	dOut, dCache, err := m.embed(dIDs, dMask)
	if err != nil {
		return 0, err
	}

	n := len(batch)
	dQ := tensor.New(n, m.cfg.ProjDim)
	dD := tensor.New(n, m.cfg.ProjDim)

	var loss float32
	switch m.kind {
	case KindBertDotBCE:
		labels, err := dataset.FloatColumn(batch, ColLabel)
		if err != nil {
			return 0, err
		}
		inv := 1 / float32(n)
		for i := 0; i < n; i++ {
			q, d := qOut.Row(i), dOut.Row(i)
			l, ds := bceTerm(dot(q, d), labels[i])
			loss += l * inv
			scale := ds * inv
			for j := range q {
				dQ.Row(i)[j] += scale * d[j]
				dD.Row(i)[j] += scale * q[j]
			}
		}
		if m.cfg.InBatchNeg && n > 1 {
			for i := 0; i < n; i++ {
				neg := (i + 1) % n
				q, d := qOut.Row(i), dOut.Row(neg)
				l, ds := bceTerm(dot(q, d), 0)
				loss += l * inv
				scale := ds * inv
				for j := range q {
					dQ.Row(i)[j] += scale * d[j]
					dD.Row(neg)[j] += scale * q[j]
				}
			}
		}

	case KindBertDotPairwiseRanking:
		if n < 2 {
			// A single example has no in-batch negative to rank against.
			return 0, nil
		}
		inv := 1 / float32(n)
		for i := 0; i < n; i++ {
			neg := (i + 1) % n
			q := qOut.Row(i)
			pos, negDoc := dOut.Row(i), dOut.Row(neg)
			margin := m.cfg.Margin - dot(q, pos) + dot(q, negDoc)
			if margin <= 0 {
				continue
			}
			loss += margin * inv
			for j := range q {
				dQ.Row(i)[j] += inv * (negDoc[j] - pos[j])
				dD.Row(i)[j] -= inv * q[j]
				dD.Row(neg)[j] += inv * q[j]
			}
		}

	default:
		return 0, fmt.Errorf("model: unsupported kind %q", m.kind)
	}

	m.embedBackward(qCache, dQ)
	m.embedBackward(dCache, dD)
	return loss, nil
}

// EvalLogits computes two-class logits per example: column 1 favors a
// relevant pair, column 0 an irrelevant one.
func (m *BertDot) EvalLogits(batch []dataset.Example) (*tensor.Matrix, error) {
	qIDs, err := dataset.IntColumn(batch, ColQueryInputIDs)
	if err != nil {
		return nil, err
	}
	qMask, err := dataset.IntColumn(batch, ColQueryAttentionMask)
	if err != nil {
		return nil, err
	}
	dIDs, err := dataset.IntColumn(batch, ColDocInputIDs)
	if err != nil {
		return nil, err
	}
	dMask, err := dataset.IntColumn(batch, ColDocAttentionMask)
	if err != nil {
		return nil, err
	}

	qOut, _, err := m.embed(qIDs, qMask)
	if err != nil {
		return nil, err
	}
	dOut, _, err := m.embed(dIDs, dMask)
	if err != nil {
		return nil, err
	}

	logits := tensor.New(len(batch), 2)
	for i := 0; i < len(batch); i++ {
		s := dot(qOut.Row(i), dOut.Row(i))
		logits.Set(i, 0, -s/2)
		logits.Set(i, 1, s/2)
	}
	return logits, nil
}
