// Package estimator maps facial feature vectors to screen coordinates.
//
// The model is ridge regression with a bias column, fit on calibration
// samples via the normal equations. Weights serialize to JSON so a trained
// calibration survives restarts.
package estimator

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// DefaultLambda is the ridge regularization strength.
const DefaultLambda = 1.0

// Sentinel errors for validation failures.
var (
	// ErrNoSamples is returned when Train receives an empty sample set.
	ErrNoSamples = errors.New("estimator: no training samples")

	// ErrDimensionMismatch is returned when feature dimensionality disagrees
	// with a prior fit or within the training matrix itself.
	ErrDimensionMismatch = errors.New("estimator: feature dimension mismatch")

	// ErrNotTrained is returned by Predict before any successful Train or Load.
	ErrNotTrained = errors.New("estimator: model not trained")
)

// Ridge is a 2-output ridge regression model.
type Ridge struct {
	mu      sync.RWMutex
	lambda  float64
	dim     int        // feature dimension of the fit (bias excluded)
	weights *mat.Dense // (dim+1) x 2, last row is the bias
}

// NewRidge creates an untrained model. Non-positive lambda falls back to the
// default.
func NewRidge(lambda float64) *Ridge {
	if lambda <= 0 {
		lambda = DefaultLambda
	}
	return &Ridge{lambda: lambda}
}

// Trained reports whether the model has weights.
func (r *Ridge) Trained() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.weights != nil
}

// Dim returns the feature dimension of the current fit, or 0 if untrained.
func (r *Ridge) Dim() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dim
}

// Train fits the model on N samples. Fails without mutating state when the
// sample set is empty, ragged, or disagrees with the dimensionality of a
// prior fit.
func (r *Ridge) Train(features [][]float64, targets [][2]float64) error {
	n := len(features)
	if n < 1 {
		return ErrNoSamples
	}
	if len(targets) != n {
		return fmt.Errorf("%w: %d feature rows vs %d targets", ErrDimensionMismatch, n, len(targets))
	}
	d := len(features[0])
	if d == 0 {
		return fmt.Errorf("%w: empty feature vector", ErrDimensionMismatch)
	}
	for i, row := range features {
		if len(row) != d {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrDimensionMismatch, i, len(row), d)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dim != 0 && r.dim != d {
		return fmt.Errorf("%w: got %d, prior fit used %d", ErrDimensionMismatch, d, r.dim)
	}

	// X is N x (d+1) with a trailing bias column.
	x := mat.NewDense(n, d+1, nil)
	y := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			x.Set(i, j, features[i][j])
		}
		x.Set(i, d, 1)
		y.Set(i, 0, targets[i][0])
		y.Set(i, 1, targets[i][1])
	}

	// Normal equations: (XᵀX + λI) W = XᵀY.
	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	for i := 0; i <= d; i++ {
		xtx.Set(i, i, xtx.At(i, i)+r.lambda)
	}
	var xty mat.Dense
	xty.Mul(x.T(), y)

	var w mat.Dense
	if err := w.Solve(&xtx, &xty); err != nil {
		return fmt.Errorf("estimator: solve normal equations: %w", err)
	}

	r.dim = d
	r.weights = &w
	return nil
}

// Predict maps one feature vector to a screen coordinate.
func (r *Ridge) Predict(features []float64) (float64, float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.weights == nil {
		return 0, 0, ErrNotTrained
	}
	if len(features) != r.dim {
		return 0, 0, fmt.Errorf("%w: got %d, model expects %d", ErrDimensionMismatch, len(features), r.dim)
	}

	var px, py float64
	for j := 0; j < r.dim; j++ {
		px += features[j] * r.weights.At(j, 0)
		py += features[j] * r.weights.At(j, 1)
	}
	px += r.weights.At(r.dim, 0)
	py += r.weights.At(r.dim, 1)
	return px, py, nil
}

// modelFile is the on-disk representation of a trained model.
type modelFile struct {
	Lambda  float64     `json:"lambda"`
	Dim     int         `json:"dim"`
	Weights [][]float64 `json:"weights"`
}

// Save writes the trained weights to path, creating parent directories.
func (r *Ridge) Save(path string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.weights == nil {
		return ErrNotTrained
	}

	rows := r.dim + 1
	out := modelFile{Lambda: r.lambda, Dim: r.dim, Weights: make([][]float64, rows)}
	for i := 0; i < rows; i++ {
		out.Weights[i] = []float64{r.weights.At(i, 0), r.weights.At(i, 1)}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("estimator: create model dir: %w", err)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("estimator: encode model: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("estimator: write model: %w", err)
	}
	return nil
}

// Load reads weights previously written by Save.
func (r *Ridge) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("estimator: read model: %w", err)
	}
	var in modelFile
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("estimator: decode model: %w", err)
	}
	if in.Dim < 1 || len(in.Weights) != in.Dim+1 {
		return fmt.Errorf("estimator: malformed model file %s", path)
	}

	w := mat.NewDense(in.Dim+1, 2, nil)
	for i, row := range in.Weights {
		if len(row) != 2 {
			return fmt.Errorf("estimator: malformed weight row %d in %s", i, path)
		}
		w.Set(i, 0, row[0])
		w.Set(i, 1, row[1])
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if in.Lambda > 0 {
		r.lambda = in.Lambda
	}
	r.dim = in.Dim
	r.weights = w
	return nil
}
