package classifier

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

// separableData builds two well-separated Gaussian-ish clusters so any of
// the model families should classify them near-perfectly.
func separableData(n int) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(1))
	X := make([][]float64, 0, 2*n)
	y := make([]int, 0, 2*n)
	for i := 0; i < n; i++ {
		X = append(X, []float64{rng.Float64(), rng.Float64()})
		y = append(y, 0)
		X = append(X, []float64{5 + rng.Float64(), 5 + rng.Float64()})
		y = append(y, 1)
	}
	return X, y
}

func TestNewUnsupportedModel(t *testing.T) {
	t.Parallel()

	_, err := New("gradient_boost", nil)
	if !errors.Is(err, ErrUnsupportedModel) {
		t.Fatalf("expected ErrUnsupportedModel, got %v", err)
	}
}

func TestModelFamilies(t *testing.T) {
	t.Parallel()

	X, y := separableData(30)

	for _, name := range []string{"random_forest", "logistic", "svm"} {
		name := name
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			model, err := New(name, Params{"n_estimators": 50, "random_state": 42})
			if err != nil {
				t.Fatalf("New(%s) failed: %v", name, err)
			}
			if err := model.Train(X, y); err != nil {
				t.Fatalf("Train failed: %v", err)
			}

			classes := model.Classes()
			if len(classes) != 2 || classes[0] != 0 || classes[1] != 1 {
				t.Fatalf("unexpected classes: %v", classes)
			}

			preds, err := model.Predict(X)
			if err != nil {
				t.Fatalf("Predict failed: %v", err)
			}
			correct := 0
			for i := range preds {
				if preds[i] == y[i] {
					correct++
				}
			}
			if acc := float64(correct) / float64(len(y)); acc < 0.95 {
				t.Errorf("accuracy %f too low on separable data", acc)
			}

			proba, err := model.PredictProba(X)
			if err != nil {
				t.Fatalf("PredictProba failed: %v", err)
			}
			for i, row := range proba {
				if len(row) != len(classes) {
					t.Fatalf("row %d has %d probabilities, expected %d", i, len(row), len(classes))
				}
				sum := 0.0
				for _, p := range row {
					if p < 0 || p > 1 {
						t.Fatalf("row %d probability out of range: %f", i, p)
					}
					sum += p
				}
				if math.Abs(sum-1) > 1e-6 {
					t.Fatalf("row %d probabilities sum to %f", i, sum)
				}
			}
		})
	}
}

func TestTrainInputValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		X    [][]float64
		y    []int
	}{
		{"empty matrix", nil, nil},
		{"length mismatch", [][]float64{{1, 2}}, []int{0, 1}},
		{"ragged rows", [][]float64{{1, 2}, {1}}, []int{0, 1}},
		{"nan feature", [][]float64{{1, math.NaN()}, {1, 2}}, []int{0, 1}},
		{"inf feature", [][]float64{{1, math.Inf(1)}, {1, 2}}, []int{0, 1}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			model, err := New("random_forest", Params{"n_estimators": 5})
			if err != nil {
				t.Fatal(err)
			}
			if err := model.Train(tt.X, tt.y); err == nil {
				t.Errorf("expected training error for %s", tt.name)
			}
		})
	}
}

func TestPredictBeforeTrain(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"random_forest", "logistic", "svm"} {
		model, _ := New(name, nil)
		if _, err := model.Predict([][]float64{{1, 2}}); err == nil {
			t.Errorf("%s: expected error predicting before training", name)
		}
	}
}

func TestSingleClassTraining(t *testing.T) {
	t.Parallel()

	X := [][]float64{{1, 2}, {2, 3}, {3, 4}}
	y := []int{7, 7, 7}

	for _, name := range []string{"random_forest", "logistic", "svm"} {
		model, _ := New(name, Params{"n_estimators": 5})
		if err := model.Train(X, y); err != nil {
			t.Fatalf("%s: single-class train failed: %v", name, err)
		}
		preds, err := model.Predict(X)
		if err != nil {
			t.Fatalf("%s: predict failed: %v", name, err)
		}
		for _, p := range preds {
			if p != 7 {
				t.Errorf("%s: expected constant prediction 7, got %d", name, p)
			}
		}
	}
}

func TestForestDeterminism(t *testing.T) {
	t.Parallel()

	X, y := separableData(20)
	probe := [][]float64{{2.5, 2.5}, {0.2, 0.3}, {5.5, 5.1}}

	run := func() [][]float64 {
		model, _ := New("random_forest", Params{"n_estimators": 20, "random_state": 42})
		if err := model.Train(X, y); err != nil {
			t.Fatal(err)
		}
		proba, err := model.PredictProba(probe)
		if err != nil {
			t.Fatal(err)
		}
		return proba
	}

	first, second := run(), run()
	for i := range first {
		for j := range first[i] {
			if first[i][j] != second[i][j] {
				t.Fatalf("seeded training is not reproducible: %v vs %v", first[i], second[i])
			}
		}
	}
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	yTrue := []int{0, 0, 0, 1, 1, 1}
	yPred := []int{0, 0, 1, 1, 1, 0}

	ev, err := Evaluate(yTrue, yPred)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(ev.Accuracy-4.0/6.0) > 1e-9 {
		t.Errorf("accuracy = %f, want %f", ev.Accuracy, 4.0/6.0)
	}
	// Symmetric confusion: weighted precision/recall/F1 all equal accuracy.
	if math.Abs(ev.Precision-ev.Accuracy) > 1e-9 || math.Abs(ev.Recall-ev.Accuracy) > 1e-9 {
		t.Errorf("unexpected weighted metrics: %+v", ev)
	}

	perfect, err := Evaluate(yTrue, yTrue)
	if err != nil {
		t.Fatal(err)
	}
	if perfect.Accuracy != 1 || perfect.F1 != 1 {
		t.Errorf("perfect prediction should score 1.0: %+v", perfect)
	}

	if _, err := Evaluate([]int{0}, []int{0, 1}); err == nil {
		t.Error("expected error on length mismatch")
	}
}

func TestSplitStratified(t *testing.T) {
	t.Parallel()

	X := make([][]float64, 0, 40)
	y := make([]int, 0, 40)
	for i := 0; i < 30; i++ {
		X = append(X, []float64{float64(i)})
		y = append(y, 0)
	}
	for i := 0; i < 10; i++ {
		X = append(X, []float64{float64(100 + i)})
		y = append(y, 1)
	}

	XTrain, XTest, yTrain, yTest, err := Split(X, y, 0.2, 42, true)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(XTrain)+len(XTest) != 40 || len(yTrain)+len(yTest) != 40 {
		t.Fatalf("split lost samples: %d train, %d test", len(XTrain), len(XTest))
	}

	testCounts := map[int]int{}
	for _, label := range yTest {
		testCounts[label]++
	}
	if testCounts[0] != 6 || testCounts[1] != 2 {
		t.Errorf("stratification off: test counts %v", testCounts)
	}
}

func TestSplitStratifyFailsOnSingleton(t *testing.T) {
	t.Parallel()

	X := [][]float64{{1}, {2}, {3}, {4}}
	y := []int{0, 0, 0, 1}

	_, _, _, _, err := Split(X, y, 0.25, 42, true)
	if !errors.Is(err, ErrCannotStratify) {
		t.Fatalf("expected ErrCannotStratify, got %v", err)
	}

	// Unstratified fallback still works on the same data.
	XTrain, XTest, _, _, err := Split(X, y, 0.25, 42, false)
	if err != nil {
		t.Fatalf("unstratified split failed: %v", err)
	}
	if len(XTest) != 1 || len(XTrain) != 3 {
		t.Errorf("unexpected split sizes: %d train, %d test", len(XTrain), len(XTest))
	}
}
