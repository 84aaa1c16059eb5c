package detect

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

const (
	anomalyTrees    = 200
	anomalySeed     = 42
	maxSubsample    = 256
	normalizeFloor  = 1e-10
	eulerMascheroni = 0.5772156649
)

// AnomalyResult carries the normalized anomaly score in [0, 1] (higher
// means more anomalous) and the contamination-derived outlier flag.
type AnomalyResult struct {
	Score float64
	Flag  bool
}

// Anomalies runs an isolation forest over the feature matrix. Raw scores
// are shifted by the contamination quantile to derive the flag, then
// negated and min-max normalized across the batch so the fused risk always
// lands in [0, 1].
func Anomalies(X [][]float64, contamination float64) ([]AnomalyResult, error) {
	if len(X) == 0 {
		return nil, fmt.Errorf("anomaly: empty feature matrix")
	}
	if contamination <= 0 || contamination >= 0.5 {
		return nil, fmt.Errorf("anomaly: contamination must be in (0, 0.5), got %f", contamination)
	}
	nFeatures := len(X[0])
	for i, row := range X {
		if len(row) != nFeatures {
			return nil, fmt.Errorf("anomaly: row %d has %d features, expected %d", i, len(row), nFeatures)
		}
	}

	forest := fitIsolationForest(X, anomalyTrees, anomalySeed)
	scores := forest.scoreSamples(X)

	offset := percentile(scores, contamination*100)

	results := make([]AnomalyResult, len(scores))
	minNeg, maxNeg := math.Inf(1), math.Inf(-1)
	for _, s := range scores {
		neg := -(s - offset)
		if neg < minNeg {
			minNeg = neg
		}
		if neg > maxNeg {
			maxNeg = neg
		}
	}
	span := maxNeg - minNeg
	if span < normalizeFloor {
		span = normalizeFloor
	}
	for i, s := range scores {
		df := s - offset
		results[i] = AnomalyResult{
			Score: (-df - minNeg) / span,
			Flag:  df < 0,
		}
	}
	return results, nil
}

type isoForest struct {
	trees       []*isoNode
	heightLimit int
	psi         int
}

type isoNode struct {
	feature   int
	threshold float64
	left      *isoNode
	right     *isoNode
	size      int // leaf nodes only
}

func (n *isoNode) isLeaf() bool { return n.left == nil }

func fitIsolationForest(X [][]float64, nTrees int, seed int64) *isoForest {
	n := len(X)
	psi := n
	if psi > maxSubsample {
		psi = maxSubsample
	}
	heightLimit := int(math.Ceil(math.Log2(math.Max(float64(psi), 2))))

	rng := rand.New(rand.NewSource(seed))
	f := &isoForest{heightLimit: heightLimit, psi: psi}
	for t := 0; t < nTrees; t++ {
		idx := rng.Perm(n)[:psi]
		f.trees = append(f.trees, buildIsoTree(X, idx, 0, heightLimit, rng))
	}
	return f
}

func buildIsoTree(X [][]float64, idx []int, depth, heightLimit int, rng *rand.Rand) *isoNode {
	if len(idx) <= 1 || depth >= heightLimit {
		return &isoNode{size: len(idx)}
	}

	nFeatures := len(X[0])
	// Try a few random features before conceding the partition is constant.
	for attempt := 0; attempt < nFeatures; attempt++ {
		feat := rng.Intn(nFeatures)
		lo, hi := X[idx[0]][feat], X[idx[0]][feat]
		for _, i := range idx[1:] {
			v := X[i][feat]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if lo == hi {
			continue
		}

		threshold := lo + rng.Float64()*(hi-lo)
		var left, right []int
		for _, i := range idx {
			if X[i][feat] < threshold {
				left = append(left, i)
			} else {
				right = append(right, i)
			}
		}
		if len(left) == 0 || len(right) == 0 {
			continue
		}
		return &isoNode{
			feature:   feat,
			threshold: threshold,
			left:      buildIsoTree(X, left, depth+1, heightLimit, rng),
			right:     buildIsoTree(X, right, depth+1, heightLimit, rng),
		}
	}
	return &isoNode{size: len(idx)}
}

// scoreSamples returns scores in [-1, 0] where lower means more anomalous.
func (f *isoForest) scoreSamples(X [][]float64) []float64 {
	norm := avgPathLength(float64(f.psi))
	scores := make([]float64, len(X))
	for i, row := range X {
		sum := 0.0
		for _, tree := range f.trees {
			sum += pathLength(tree, row, 0)
		}
		mean := sum / float64(len(f.trees))
		scores[i] = -math.Pow(2, -mean/norm)
	}
	return scores
}

func pathLength(node *isoNode, row []float64, depth int) float64 {
	for !node.isLeaf() {
		if row[node.feature] < node.threshold {
			node = node.left
		} else {
			node = node.right
		}
		depth++
	}
	return float64(depth) + avgPathLength(float64(node.size))
}

// avgPathLength is the expected path length of an unsuccessful BST search,
// the standard isolation forest normalizer.
func avgPathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	return 2*(math.Log(n-1)+eulerMascheroni) - 2*(n-1)/n
}

// percentile computes the linearly interpolated p-th percentile.
func percentile(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
