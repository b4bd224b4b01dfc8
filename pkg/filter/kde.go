package filter

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DefaultConfidence is the probability mass of the high-density region the
// KDE smoother reports from.
const DefaultConfidence = 0.95

// kdeWindow is the number of recent raw points the estimator keeps.
const kdeWindow = 30

// KDE smooths gaze by kernel density estimation over a rolling window of raw
// points. Each Step returns a density-weighted representative of the
// high-density region covering the configured confidence mass, clamped to the
// screen. It favors where the eye dwells, which makes it steadier than the
// Kalman filter during fixations but slower to follow saccades.
type KDE struct {
	screenW    int
	screenH    int
	confidence float64

	xs []float64
	ys []float64
}

// NewKDE builds a KDE smoother for the given screen.
func NewKDE(screenW, screenH int, confidence float64) *KDE {
	if confidence <= 0 || confidence > 1 {
		confidence = DefaultConfidence
	}
	return &KDE{
		screenW:    screenW,
		screenH:    screenH,
		confidence: confidence,
	}
}

// Step pushes a raw point into the window and returns the smoothed point.
func (k *KDE) Step(x, y int) (int, int) {
	k.xs = append(k.xs, float64(x))
	k.ys = append(k.ys, float64(y))
	if len(k.xs) > kdeWindow {
		k.xs = k.xs[1:]
		k.ys = k.ys[1:]
	}

	n := len(k.xs)
	if n < 3 {
		return k.clamp(x, y)
	}

	// Scott's rule per axis for a 2D kernel: h = σ · n^(-1/6).
	hx := bandwidth(k.xs)
	hy := bandwidth(k.ys)

	// Density at each sample point under a product Gaussian kernel.
	density := make([]float64, n)
	total := 0.0
	for i := 0; i < n; i++ {
		d := 0.0
		for j := 0; j < n; j++ {
			dx := (k.xs[i] - k.xs[j]) / hx
			dy := (k.ys[i] - k.ys[j]) / hy
			d += math.Exp(-0.5 * (dx*dx + dy*dy))
		}
		density[i] = d
		total += d
	}

	// Keep the smallest set of samples holding the confidence mass.
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return density[idx[a]] > density[idx[b]] })

	var mass, wx, wy, wsum float64
	for _, i := range idx {
		wx += k.xs[i] * density[i]
		wy += k.ys[i] * density[i]
		wsum += density[i]
		mass += density[i] / total
		if mass >= k.confidence {
			break
		}
	}
	if wsum == 0 {
		return k.clamp(x, y)
	}

	return k.clamp(int(math.Round(wx/wsum)), int(math.Round(wy/wsum)))
}

// Reset drops the rolling window.
func (k *KDE) Reset() {
	k.xs = k.xs[:0]
	k.ys = k.ys[:0]
}

func (k *KDE) clamp(x, y int) (int, int) {
	if x < 0 {
		x = 0
	}
	if k.screenW > 0 && x >= k.screenW {
		x = k.screenW - 1
	}
	if y < 0 {
		y = 0
	}
	if k.screenH > 0 && y >= k.screenH {
		y = k.screenH - 1
	}
	return x, y
}

func bandwidth(v []float64) float64 {
	sigma := stat.StdDev(v, nil)
	h := sigma * math.Pow(float64(len(v)), -1.0/6.0)
	if h < 1 {
		// Degenerate spread (fixated gaze): one pixel of bandwidth keeps the
		// kernel well-defined.
		h = 1
	}
	return h
}
