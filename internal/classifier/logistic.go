package classifier

import (
	"errors"
	"fmt"
	"math"
)

// logisticModel is multinomial logistic regression trained by full-batch
// gradient descent on the softmax cross-entropy with L2 regularization.
// Features are standardized internally before fitting.
type logisticModel struct {
	maxIter      int
	learningRate float64
	l2           float64

	classes    []int
	classIndex map[int]int
	nFeatures  int
	scaler     *scaler
	weights    [][]float64 // one weight vector per class
	bias       []float64
}

const logisticMaxIterCap = 1000

func newLogistic(params Params) *logisticModel {
	maxIter := params.Int("max_iter", logisticMaxIterCap)
	if maxIter > logisticMaxIterCap {
		maxIter = logisticMaxIterCap
	}
	return &logisticModel{
		maxIter:      maxIter,
		learningRate: params.Float("learning_rate", 0.1),
		l2:           params.Float("l2", 1e-4),
	}
}

func (m *logisticModel) Classes() []int { return m.classes }

func (m *logisticModel) Train(X [][]float64, y []int) error {
	nFeatures, err := validateTrainingData(X, y)
	if err != nil {
		return fmt.Errorf("logistic train: %w", err)
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
		// Single-class training set, nothing to optimize.
		return nil
	}

	scaled := m.scaler.transform(X)
	n := float64(len(scaled))
	gradW := make([][]float64, k)
	for c := range gradW {
		gradW[c] = make([]float64, nFeatures)
	}
	gradB := make([]float64, k)

	for iter := 0; iter < m.maxIter; iter++ {
		for c := range gradW {
			for j := range gradW[c] {
				gradW[c][j] = 0
			}
			gradB[c] = 0
		}

		for i, row := range scaled {
			p := m.softmaxScores(row)
			target := m.classIndex[y[i]]
			for c := 0; c < k; c++ {
				diff := p[c]
				if c == target {
					diff -= 1
				}
				for j, v := range row {
					gradW[c][j] += diff * v
				}
				gradB[c] += diff
			}
		}

		for c := 0; c < k; c++ {
			for j := range m.weights[c] {
				m.weights[c][j] -= m.learningRate * (gradW[c][j]/n + m.l2*m.weights[c][j])
			}
			m.bias[c] -= m.learningRate * gradB[c] / n
		}
	}
	return nil
}

func (m *logisticModel) softmaxScores(row []float64) []float64 {
	scores := make([]float64, len(m.classes))
	for c := range scores {
		s := m.bias[c]
		for j, v := range row {
			s += m.weights[c][j] * v
		}
		scores[c] = s
	}
	return softmax(scores)
}

// softmax exponentiates after subtracting the row max for stability.
func softmax(scores []float64) []float64 {
	max := scores[0]
	for _, s := range scores[1:] {
		if s > max {
			max = s
		}
	}
	sum := 0.0
	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = math.Exp(s - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func (m *logisticModel) Predict(X [][]float64) ([]int, error) {
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

func (m *logisticModel) PredictProba(X [][]float64) ([][]float64, error) {
	if m.scaler == nil {
		return nil, errors.New("logistic predict: model not trained")
	}
	if err := validateFeatures(X, m.nFeatures); err != nil {
		return nil, fmt.Errorf("logistic predict: %w", err)
	}

	scaled := m.scaler.transform(X)
	proba := make([][]float64, len(scaled))
	for i, row := range scaled {
		if len(m.classes) < 2 {
			proba[i] = []float64{1}
			continue
		}
		proba[i] = m.softmaxScores(row)
	}
	return proba, nil
}
