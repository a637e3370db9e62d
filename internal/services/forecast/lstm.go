package forecast

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"DexSignal/internal/domain/service"
)

var _ service.SequenceRegressor = (*LSTM)(nil)

// LSTMConfig sizes the sequence regressor.
type LSTMConfig struct {
	Units        int
	Epochs       int
	BatchSize    int
	LearningRate float64
	ClipNorm     float64
	Seed         int64
}

// LSTM is a single recurrent layer with relu cell activation followed by a
// dense unit, trained with Adam on mean squared error. Inputs are scalar
// time steps.
type LSTM struct {
	cfg LSTMConfig

	// gate order in the stacked weights: input, forget, candidate, output
	W  []float64   // 4H input weights (input dim 1)
	U  [][]float64 // 4H x H recurrent weights
	B  []float64   // 4H
	Wy []float64   // H
	By float64

	trained bool
	rng     *rand.Rand
}

// NewLSTM returns an untrained network with initialized weights.
func NewLSTM(cfg LSTMConfig) *LSTM {
	if cfg.Units <= 0 {
		cfg.Units = 50
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = 50
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.001
	}
	if cfg.ClipNorm <= 0 {
		cfg.ClipNorm = 5
	}
	m := &LSTM{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
	m.init()
	return m
}

func (m *LSTM) init() {
	h := m.cfg.Units
	inLimit := math.Sqrt(6.0 / float64(1+4*h))
	recLimit := math.Sqrt(6.0 / float64(h+4*h))
	outLimit := math.Sqrt(6.0 / float64(h+1))

	m.W = make([]float64, 4*h)
	m.U = make([][]float64, 4*h)
	m.B = make([]float64, 4*h)
	for g := 0; g < 4*h; g++ {
		m.W[g] = (m.rng.Float64()*2 - 1) * inLimit
		m.U[g] = make([]float64, h)
		for k := range m.U[g] {
			m.U[g][k] = (m.rng.Float64()*2 - 1) * recLimit
		}
	}
	// unit forget bias
	for k := h; k < 2*h; k++ {
		m.B[k] = 1
	}
	m.Wy = make([]float64, h)
	for k := range m.Wy {
		m.Wy[k] = (m.rng.Float64()*2 - 1) * outLimit
	}
	m.By = 0
}

func (m *LSTM) Trained() bool { return m.trained }

// Units returns the hidden size.
func (m *LSTM) Units() int { return m.cfg.Units }

type lstmStep struct {
	x     float64
	hPrev []float64
	cPrev []float64
	i     []float64
	f     []float64
	g     []float64
	o     []float64
	zg    []float64
	c     []float64
	h     []float64
}

func (m *LSTM) forward(seq []float64) (float64, []lstmStep) {
	hn := m.cfg.Units
	h := make([]float64, hn)
	c := make([]float64, hn)
	steps := make([]lstmStep, len(seq))

	for t, x := range seq {
		st := lstmStep{
			x:     x,
			hPrev: h,
			cPrev: c,
			i:     make([]float64, hn),
			f:     make([]float64, hn),
			g:     make([]float64, hn),
			o:     make([]float64, hn),
			zg:    make([]float64, hn),
			c:     make([]float64, hn),
			h:     make([]float64, hn),
		}
		for k := 0; k < hn; k++ {
			zi := m.gate(k, x, h)
			zf := m.gate(hn+k, x, h)
			zg := m.gate(2*hn+k, x, h)
			zo := m.gate(3*hn+k, x, h)

			st.i[k] = sigmoid(zi)
			st.f[k] = sigmoid(zf)
			st.zg[k] = zg
			st.g[k] = relu(zg)
			st.o[k] = sigmoid(zo)
			st.c[k] = st.f[k]*c[k] + st.i[k]*st.g[k]
			st.h[k] = st.o[k] * relu(st.c[k])
		}
		steps[t] = st
		h, c = st.h, st.c
	}

	y := m.By
	for k := 0; k < hn; k++ {
		y += m.Wy[k] * h[k]
	}
	return y, steps
}

func (m *LSTM) gate(row int, x float64, h []float64) float64 {
	z := m.W[row]*x + m.B[row]
	u := m.U[row]
	for k, hv := range h {
		z += u[k] * hv
	}
	return z
}

type lstmGrads struct {
	W  []float64
	U  [][]float64
	B  []float64
	Wy []float64
	By float64
}

func (m *LSTM) newGrads() *lstmGrads {
	h := m.cfg.Units
	g := &lstmGrads{
		W:  make([]float64, 4*h),
		U:  make([][]float64, 4*h),
		B:  make([]float64, 4*h),
		Wy: make([]float64, h),
	}
	for i := range g.U {
		g.U[i] = make([]float64, h)
	}
	return g
}

// backward accumulates gradients of dy (dLoss/dOutput) through time.
func (m *LSTM) backward(steps []lstmStep, dy float64, g *lstmGrads) {
	hn := m.cfg.Units
	last := steps[len(steps)-1]

	dh := make([]float64, hn)
	for k := 0; k < hn; k++ {
		g.Wy[k] += dy * last.h[k]
		dh[k] = dy * m.Wy[k]
	}
	g.By += dy

	dcNext := make([]float64, hn)
	dz := make([]float64, 4*hn)
	for t := len(steps) - 1; t >= 0; t-- {
		st := steps[t]
		for k := 0; k < hn; k++ {
			actC := relu(st.c[k])
			dO := dh[k] * actC
			dc := dh[k]*st.o[k]*reluGrad(st.c[k]) + dcNext[k]

			dI := dc * st.g[k]
			dG := dc * st.i[k]
			dF := dc * st.cPrev[k]
			dcNext[k] = dc * st.f[k]

			dz[k] = dI * st.i[k] * (1 - st.i[k])
			dz[hn+k] = dF * st.f[k] * (1 - st.f[k])
			dz[2*hn+k] = dG * reluGrad(st.zg[k])
			dz[3*hn+k] = dO * st.o[k] * (1 - st.o[k])
		}

		next := make([]float64, hn)
		for row := 0; row < 4*hn; row++ {
			d := dz[row]
			if d == 0 {
				continue
			}
			g.W[row] += d * st.x
			g.B[row] += d
			u := m.U[row]
			gu := g.U[row]
			for k := 0; k < hn; k++ {
				gu[k] += d * st.hPrev[k]
				next[k] += u[k] * d
			}
		}
		dh = next
	}
}

// Fit trains the network from scratch on windows of scaled prices.
func (m *LSTM) Fit(windows [][]float64, labels []float64) error {
	if len(windows) == 0 {
		return errors.New("lstm: empty dataset")
	}
	if len(windows) != len(labels) {
		return fmt.Errorf("lstm: %d windows but %d labels", len(windows), len(labels))
	}
	steps := len(windows[0])
	for i, w := range windows {
		if len(w) != steps || steps == 0 {
			return fmt.Errorf("lstm: window %d has length %d, want %d", i, len(w), steps)
		}
	}

	m.init()
	opt := newAdam(m.cfg.LearningRate)
	params := m.paramViews()

	order := make([]int, len(windows))
	for i := range order {
		order[i] = i
	}

	for epoch := 0; epoch < m.cfg.Epochs; epoch++ {
		m.rng.Shuffle(len(order), func(a, b int) { order[a], order[b] = order[b], order[a] })
		for start := 0; start < len(order); start += m.cfg.BatchSize {
			end := min(start+m.cfg.BatchSize, len(order))
			grads := m.newGrads()
			n := float64(end - start)
			for _, idx := range order[start:end] {
				y, trace := m.forward(windows[idx])
				dy := 2 * (y - labels[idx]) / n
				m.backward(trace, dy, grads)
			}
			gv := gradViews(grads)
			clipByNorm(gv, m.cfg.ClipNorm)
			opt.step(params, gv)
			m.By = params[len(params)-1][0]
		}
	}

	m.trained = true
	return nil
}

// Predict runs one window through the network.
func (m *LSTM) Predict(window []float64) (float64, error) {
	if !m.trained {
		return 0, errNotTrained
	}
	if len(window) == 0 {
		return 0, errors.New("lstm: empty window")
	}
	y, _ := m.forward(window)
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, errors.New("lstm: non-finite prediction")
	}
	return y, nil
}

// paramViews exposes every parameter as a flat slice so the optimizer can
// update them in place. The output bias is boxed in a one-element slice and
// copied back after each step.
func (m *LSTM) paramViews() [][]float64 {
	views := [][]float64{m.W, m.B, m.Wy}
	views = append(views, m.U...)
	views = append(views, []float64{m.By})
	return views
}

func gradViews(g *lstmGrads) [][]float64 {
	views := [][]float64{g.W, g.B, g.Wy}
	views = append(views, g.U...)
	views = append(views, []float64{g.By})
	return views
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func relu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

func reluGrad(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}
