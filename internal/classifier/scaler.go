package classifier

import "math"

// scaler standardizes features to zero mean and unit variance. Constant
// features get a unit scale so transformed values stay finite.
type scaler struct {
	mean  []float64
	scale []float64
}

func fitScaler(X [][]float64, nFeatures int) *scaler {
	n := float64(len(X))
	mean := make([]float64, nFeatures)
	for _, row := range X {
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= n
	}

	scale := make([]float64, nFeatures)
	for _, row := range X {
		for j, v := range row {
			d := v - mean[j]
			scale[j] += d * d
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / n)
		if scale[j] == 0 {
			scale[j] = 1
		}
	}
	return &scaler{mean: mean, scale: scale}
}

func (s *scaler) transform(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.mean[j]) / s.scale[j]
		}
		out[i] = scaled
	}
	return out
}
