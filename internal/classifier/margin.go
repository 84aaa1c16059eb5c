package classifier

import (
	"errors"
	"fmt"
	"math/rand"
)

// marginModel is a one-vs-rest linear max-margin classifier trained with
// hinge-loss SGD. Probabilities are a softmax over the per-class decision
// margins, which gives calibrated-enough scores for risk fusion.
type marginModel struct {
	epochs int
	lambda float64
	seed   int64

	classes    []int
	classIndex map[int]int
	nFeatures  int
	scaler     *scaler
	weights    [][]float64
	bias       []float64
}

func newMargin(params Params) *marginModel {
	return &marginModel{
		epochs: params.Int("max_iter", 200),
		lambda: params.Float("lambda", 1e-3),
		seed:   int64(params.Int("random_state", 42)),
	}
}

func (m *marginModel) Classes() []int { return m.classes }

func (m *marginModel) Train(X [][]float64, y []int) error {
	nFeatures, err := validateTrainingData(X, y)
	if err != nil {
		return fmt.Errorf("margin train: %w", err)
	}

	m.nFeatures = nFeatures
	m.classes = classesOf(y)
	m.classIndex = classIndexOf(m.classes)
	m.scaler = fitScaler(X, nFeatures)

	k := len(m.classes)
	m.weights = make([][]float64, k)
	for c := range m.weights {
		m.weights[c] = make([]float64, nFeatures)
	}
	m.bias = make([]float64, k)
	if k < 2 {
		return nil
	}

	scaled := m.scaler.transform(X)
	n := len(scaled)
	rng := rand.New(rand.NewSource(m.seed))
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	for c := 0; c < k; c++ {
		w := m.weights[c]
		b := 0.0
		t := 0
		for epoch := 0; epoch < m.epochs; epoch++ {
			rng.Shuffle(n, func(a, z int) { order[a], order[z] = order[z], order[a] })
			for _, i := range order {
				t++
				eta := 1.0 / (m.lambda * float64(t))
				target := -1.0
				if m.classIndex[y[i]] == c {
					target = 1.0
				}
				row := scaled[i]
				score := b
				for j, v := range row {
					score += w[j] * v
				}
				// Pegasos update: always shrink, add the example only
				// when it violates the margin.
				for j := range w {
					w[j] *= 1 - eta*m.lambda
				}
				if target*score < 1 {
					for j, v := range row {
						w[j] += eta * target * v
					}
					b += eta * target
				}
			}
		}
		m.bias[c] = b
	}
	return nil
}

func (m *marginModel) decision(row []float64) []float64 {
	scores := make([]float64, len(m.classes))
	for c := range scores {
		s := m.bias[c]
		for j, v := range row {
			s += m.weights[c][j] * v
		}
		scores[c] = s
	}
	return scores
}

func (m *marginModel) Predict(X [][]float64) ([]int, error) {
	proba, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	preds := make([]int, len(proba))
	for i, row := range proba {
		preds[i] = m.classes[argmaxRow(row)]
	}
	return preds, nil
}

func (m *marginModel) PredictProba(X [][]float64) ([][]float64, error) {
	if m.scaler == nil {
		return nil, errors.New("margin predict: model not trained")
	}
	if err := validateFeatures(X, m.nFeatures); err != nil {
		return nil, fmt.Errorf("margin predict: %w", err)
	}

	scaled := m.scaler.transform(X)
	proba := make([][]float64, len(scaled))
	for i, row := range scaled {
		if len(m.classes) < 2 {
			proba[i] = []float64{1}
			continue
		}
		proba[i] = softmax(m.decision(row))
	}
	return proba, nil
}
