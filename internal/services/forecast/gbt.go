package forecast

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"DexSignal/internal/domain/service"
)

var _ service.FeatureRegressor = (*GBT)(nil)

// GBTConfig controls the boosted ensemble.
type GBTConfig struct {
	Rounds       int
	LearningRate float64
	MaxDepth     int
	Lambda       float64 // L2 penalty on leaf weights
	MinChild     int     // minimum samples per leaf
}

// GBT is a gradient-boosted ensemble of regression trees on squared error.
type GBT struct {
	cfg GBTConfig

	Base     float64 `json:"base"`
	Rate     float64 `json:"learningRate"`
	Trees    []Tree  `json:"trees"`
	Features int     `json:"features"`
}

// Tree is a binary regression tree stored as a flat node list; node 0 is
// the root.
type Tree struct {
	Nodes []TreeNode `json:"nodes"`
}

type TreeNode struct {
	Leaf      bool    `json:"leaf"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Value     float64 `json:"value,omitempty"`
}

func NewGBT(cfg GBTConfig) *GBT {
	if cfg.Rounds <= 0 {
		cfg.Rounds = 100
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.1
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 3
	}
	if cfg.Lambda < 0 {
		cfg.Lambda = 0
	}
	if cfg.MinChild <= 0 {
		cfg.MinChild = 1
	}
	return &GBT{cfg: cfg}
}

func (m *GBT) Trained() bool { return len(m.Trees) > 0 }

// Fit replaces the ensemble with one trained on X and y.
func (m *GBT) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return errors.New("gbt: empty dataset")
	}
	if len(X) != len(y) {
		return fmt.Errorf("gbt: %d rows but %d labels", len(X), len(y))
	}
	nf := len(X[0])
	for i, row := range X {
		if len(row) != nf || nf == 0 {
			return fmt.Errorf("gbt: row %d has %d features, want %d", i, len(row), nf)
		}
	}

	base := 0.0
	for _, v := range y {
		base += v
	}
	base /= float64(len(y))

	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = base
	}
	residual := make([]float64, len(y))
	idx := make([]int, len(y))
	for i := range idx {
		idx[i] = i
	}

	trees := make([]Tree, 0, m.cfg.Rounds)
	for r := 0; r < m.cfg.Rounds; r++ {
		for i := range residual {
			residual[i] = y[i] - pred[i]
		}
		b := &treeBuilder{X: X, r: residual, cfg: m.cfg}
		b.grow(append([]int(nil), idx...), 0)
		tree := Tree{Nodes: b.nodes}
		for i, row := range X {
			pred[i] += m.cfg.LearningRate * tree.predict(row)
		}
		trees = append(trees, tree)
	}

	m.Base = base
	m.Rate = m.cfg.LearningRate
	m.Trees = trees
	m.Features = nf
	return nil
}

// Predict evaluates the ensemble on one feature vector.
func (m *GBT) Predict(features []float64) (float64, error) {
	if !m.Trained() {
		return 0, errNotTrained
	}
	if len(features) != m.Features {
		return 0, fmt.Errorf("gbt: got %d features, want %d", len(features), m.Features)
	}
	out := m.Base
	for _, t := range m.Trees {
		out += m.Rate * t.predict(features)
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, errors.New("gbt: non-finite prediction")
	}
	return out, nil
}

func (t Tree) predict(x []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	n := t.Nodes[0]
	for !n.Leaf {
		if x[n.Feature] <= n.Threshold {
			n = t.Nodes[n.Left]
		} else {
			n = t.Nodes[n.Right]
		}
	}
	return n.Value
}

type treeBuilder struct {
	X     [][]float64
	r     []float64
	cfg   GBTConfig
	nodes []TreeNode
}

// grow appends the subtree for rows and returns its node index.
func (b *treeBuilder) grow(rows []int, depth int) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{})

	sum := 0.0
	for _, i := range rows {
		sum += b.r[i]
	}
	leaf := TreeNode{Leaf: true, Value: sum / (float64(len(rows)) + b.cfg.Lambda)}

	if depth >= b.cfg.MaxDepth || len(rows) < 2*b.cfg.MinChild {
		b.nodes[id] = leaf
		return id
	}

	feature, threshold, ok := b.bestSplit(rows, sum)
	if !ok {
		b.nodes[id] = leaf
		return id
	}

	var left, right []int
	for _, i := range rows {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id] = TreeNode{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return id
}

func (b *treeBuilder) bestSplit(rows []int, total float64) (int, float64, bool) {
	lambda := b.cfg.Lambda
	n := float64(len(rows))
	parent := total * total / (n + lambda)

	bestGain := 1e-12
	bestFeature, bestThreshold, found := 0, 0.0, false

	sorted := append([]int(nil), rows...)
	for f := 0; f < len(b.X[rows[0]]); f++ {
		sort.Slice(sorted, func(a, c int) bool { return b.X[sorted[a]][f] < b.X[sorted[c]][f] })

		leftSum := 0.0
		for k := 0; k < len(sorted)-1; k++ {
			leftSum += b.r[sorted[k]]
			cur, next := b.X[sorted[k]][f], b.X[sorted[k+1]][f]
			if cur == next {
				continue
			}
			nl := float64(k + 1)
			nr := n - nl
			if int(nl) < b.cfg.MinChild || int(nr) < b.cfg.MinChild {
				continue
			}
			rightSum := total - leftSum
			gain := leftSum*leftSum/(nl+lambda) + rightSum*rightSum/(nr+lambda) - parent
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (cur + next) / 2
				found = true
			}
		}
	}
	return bestFeature, bestThreshold, found
}
