package classifier

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

// Evaluation holds held-out quality metrics. Precision, recall and F1 are
// support-weighted averages over classes, with zero substituted when a
// class has an undefined ratio.
type Evaluation struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

func Evaluate(yTrue, yPred []int) (Evaluation, error) {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return Evaluation{}, fmt.Errorf("evaluate: label length mismatch: %d vs %d", len(yTrue), len(yPred))
	}

	labels := map[int]struct{}{}
	for _, l := range yTrue {
		labels[l] = struct{}{}
	}
	for _, l := range yPred {
		labels[l] = struct{}{}
	}

	total := float64(len(yTrue))
	correct := 0.0
	tp := map[int]float64{}
	fp := map[int]float64{}
	fn := map[int]float64{}
	support := map[int]float64{}

	for i := range yTrue {
		support[yTrue[i]]++
		if yTrue[i] == yPred[i] {
			correct++
			tp[yTrue[i]]++
		} else {
			fp[yPred[i]]++
			fn[yTrue[i]]++
		}
	}

	var precision, recall, f1 float64
	for label := range labels {
		s := support[label]
		if s == 0 {
			continue
		}
		var p, r float64
		if d := tp[label] + fp[label]; d > 0 {
			p = tp[label] / d
		}
		if d := tp[label] + fn[label]; d > 0 {
			r = tp[label] / d
		}
		var f float64
		if p+r > 0 {
			f = 2 * p * r / (p + r)
		}
		w := s / total
		precision += w * p
		recall += w * r
		f1 += w * f
	}

	return Evaluation{
		Accuracy:  correct / total,
		Precision: precision,
		Recall:    recall,
		F1:        f1,
	}, nil
}

// ErrCannotStratify reports that at least one class is too small to place
// members on both sides of the split. Callers decide whether to fall back
// to an unstratified split.
var ErrCannotStratify = errors.New("cannot stratify split")

// Split partitions the data into train and test sets. With stratify set,
// each class contributes proportionally to the test set and the call fails
// with ErrCannotStratify when a class has fewer than two members.
func Split(X [][]float64, y []int, testSize float64, seed int64, stratify bool) (XTrain, XTest [][]float64, yTrain, yTest []int, err error) {
	if len(X) != len(y) {
		return nil, nil, nil, nil, fmt.Errorf("split: feature/label length mismatch: %d vs %d", len(X), len(y))
	}
	if len(X) < 2 {
		return nil, nil, nil, nil, fmt.Errorf("split: need at least 2 samples, got %d", len(X))
	}
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, nil, nil, fmt.Errorf("split: test size must be in (0, 1), got %f", testSize)
	}

	rng := rand.New(rand.NewSource(seed))
	var testIdx []int

	if stratify {
		groups := map[int][]int{}
		for i, label := range y {
			groups[label] = append(groups[label], i)
		}
		labels := make([]int, 0, len(groups))
		for label := range groups {
			labels = append(labels, label)
		}
		sort.Ints(labels)

		for _, label := range labels {
			group := groups[label]
			if len(group) < 2 {
				return nil, nil, nil, nil, fmt.Errorf("%w: class %d has %d sample(s)", ErrCannotStratify, label, len(group))
			}
			rng.Shuffle(len(group), func(a, b int) { group[a], group[b] = group[b], group[a] })
			nTest := clampSplit(int(float64(len(group))*testSize+0.5), len(group))
			testIdx = append(testIdx, group[:nTest]...)
		}
	} else {
		all := make([]int, len(X))
		for i := range all {
			all[i] = i
		}
		rng.Shuffle(len(all), func(a, b int) { all[a], all[b] = all[b], all[a] })
		nTest := clampSplit(int(float64(len(all))*testSize+0.5), len(all))
		testIdx = all[:nTest]
	}

	inTest := make(map[int]bool, len(testIdx))
	for _, i := range testIdx {
		inTest[i] = true
	}
	for i := range X {
		if inTest[i] {
			XTest = append(XTest, X[i])
			yTest = append(yTest, y[i])
		} else {
			XTrain = append(XTrain, X[i])
			yTrain = append(yTrain, y[i])
		}
	}
	return XTrain, XTest, yTrain, yTest, nil
}

// clampSplit keeps at least one sample on each side.
func clampSplit(nTest, n int) int {
	if nTest < 1 {
		return 1
	}
	if nTest > n-1 {
		return n - 1
	}
	return nTest
}
