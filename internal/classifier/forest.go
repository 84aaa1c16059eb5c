package classifier

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// forestModel is a bagged ensemble of CART trees with Gini splits and
// per-tree random feature subsets. Probabilities are the average of the
// leaf class distributions across trees.
type forestModel struct {
	nEstimators     int
	maxDepth        int // 0 means unlimited
	minSamplesSplit int
	seed            int64

	classes    []int
	classIndex map[int]int
	nFeatures  int
	trees      []*treeNode
}

type treeNode struct {
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
	dist      []float64 // class distribution, leaf nodes only
}

func (n *treeNode) isLeaf() bool { return n.left == nil }

func newForest(params Params) *forestModel {
	return &forestModel{
		nEstimators:     params.Int("n_estimators", 100),
		maxDepth:        params.Int("max_depth", 0),
		minSamplesSplit: params.Int("min_samples_split", 2),
		seed:            int64(params.Int("random_state", 42)),
	}
}

func (f *forestModel) Classes() []int { return f.classes }

func (f *forestModel) Train(X [][]float64, y []int) error {
	nFeatures, err := validateTrainingData(X, y)
	if err != nil {
		return fmt.Errorf("forest train: %w", err)
	}
	if f.nEstimators <= 0 {
		return fmt.Errorf("forest train: n_estimators must be positive, got %d", f.nEstimators)
	}

	f.nFeatures = nFeatures
	f.classes = classesOf(y)
	f.classIndex = classIndexOf(f.classes)

	n := len(X)
	mtry := int(math.Sqrt(float64(nFeatures)))
	if mtry < 1 {
		mtry = 1
	}

	rng := rand.New(rand.NewSource(f.seed))
	f.trees = make([]*treeNode, 0, f.nEstimators)
	for t := 0; t < f.nEstimators; t++ {
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.Intn(n)
		}
		f.trees = append(f.trees, f.buildTree(X, y, sample, 0, mtry, rng))
	}
	return nil
}

func (f *forestModel) buildTree(X [][]float64, y, idx []int, depth, mtry int, rng *rand.Rand) *treeNode {
	counts := make([]float64, len(f.classes))
	for _, i := range idx {
		counts[f.classIndex[y[i]]]++
	}

	if len(idx) < f.minSamplesSplit || isPure(counts) || (f.maxDepth > 0 && depth >= f.maxDepth) {
		return leafNode(counts, len(idx))
	}

	feature, threshold, ok := f.bestSplit(X, y, idx, counts, mtry, rng)
	if !ok {
		return leafNode(counts, len(idx))
	}

	var left, right []int
	for _, i := range idx {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return leafNode(counts, len(idx))
	}

	return &treeNode{
		feature:   feature,
		threshold: threshold,
		left:      f.buildTree(X, y, left, depth+1, mtry, rng),
		right:     f.buildTree(X, y, right, depth+1, mtry, rng),
	}
}

// bestSplit scans a random feature subset for the threshold minimizing
// weighted Gini impurity. Thresholds are midpoints between consecutive
// distinct values.
func (f *forestModel) bestSplit(X [][]float64, y, idx []int, total []float64, mtry int, rng *rand.Rand) (int, float64, bool) {
	n := float64(len(idx))
	parentGini := gini(total, n)

	bestGain := 0.0
	bestFeature := -1
	bestThreshold := 0.0

	features := rng.Perm(f.nFeatures)[:mtry]
	sorted := make([]int, len(idx))
	leftCounts := make([]float64, len(f.classes))

	for _, feat := range features {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, b int) bool {
			return X[sorted[a]][feat] < X[sorted[b]][feat]
		})

		for i := range leftCounts {
			leftCounts[i] = 0
		}
		for pos := 0; pos < len(sorted)-1; pos++ {
			leftCounts[f.classIndex[y[sorted[pos]]]]++
			cur, next := X[sorted[pos]][feat], X[sorted[pos+1]][feat]
			if cur == next {
				continue
			}

			nLeft := float64(pos + 1)
			nRight := n - nLeft
			rightCounts := make([]float64, len(total))
			for i := range total {
				rightCounts[i] = total[i] - leftCounts[i]
			}
			weighted := (nLeft*gini(leftCounts, nLeft) + nRight*gini(rightCounts, nRight)) / n
			if gain := parentGini - weighted; gain > bestGain {
				bestGain = gain
				bestFeature = feat
				bestThreshold = (cur + next) / 2
			}
		}
	}

	if bestFeature < 0 {
		return 0, 0, false
	}
	return bestFeature, bestThreshold, true
}

func gini(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	impurity := 1.0
	for _, c := range counts {
		p := c / n
		impurity -= p * p
	}
	return impurity
}

func isPure(counts []float64) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

func leafNode(counts []float64, n int) *treeNode {
	dist := make([]float64, len(counts))
	for i, c := range counts {
		dist[i] = c / float64(n)
	}
	return &treeNode{dist: dist}
}

func (f *forestModel) Predict(X [][]float64) ([]int, error) {
	proba, err := f.PredictProba(X)
	if err != nil {
		return nil, err
	}
	preds := make([]int, len(proba))
	for i, row := range proba {
		preds[i] = f.classes[argmaxRow(row)]
	}
	return preds, nil
}

func (f *forestModel) PredictProba(X [][]float64) ([][]float64, error) {
	if len(f.trees) == 0 {
		return nil, errors.New("forest predict: model not trained")
	}
	if err := validateFeatures(X, f.nFeatures); err != nil {
		return nil, fmt.Errorf("forest predict: %w", err)
	}

	proba := make([][]float64, len(X))
	for i, row := range X {
		acc := make([]float64, len(f.classes))
		for _, tree := range f.trees {
			node := tree
			for !node.isLeaf() {
				if row[node.feature] <= node.threshold {
					node = node.left
				} else {
					node = node.right
				}
			}
			for k, p := range node.dist {
				acc[k] += p
			}
		}
		for k := range acc {
			acc[k] /= float64(len(f.trees))
		}
		proba[i] = acc
	}
	return proba, nil
}
