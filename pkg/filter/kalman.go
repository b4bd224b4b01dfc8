package filter

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// Default noise covariances for an untuned filter. Measurement noise is
// deliberately high so an uncalibrated setup leans on the motion model;
// auto-tuning replaces it with the empirically observed variance.
const (
	defaultProcessNoise     = 1e-2
	defaultMeasurementNoise = 16.0
)

// Params is a JSON-friendly view of the filter's covariance matrices.
type Params struct {
	MeasurementNoiseCov [][]float64 `json:"measurement_noise_cov"`
	ProcessNoiseCov     [][]float64 `json:"process_noise_cov"`
	ErrorCovPost        [][]float64 `json:"error_cov_post"`
}

// Kalman is a constant-velocity 2D filter over gaze points.
// State is [x y vx vy]; measurements are the raw predicted point.
type Kalman struct {
	mu sync.Mutex

	x *mat.VecDense // state estimate (4)
	f *mat.Dense    // transition (4x4), dt = one frame
	h *mat.Dense    // measurement (2x4)
	q *mat.Dense    // process noise (4x4)
	r *mat.Dense    // measurement noise (2x2)
	p *mat.Dense    // error covariance post (4x4)

	initialized bool
}

// NewKalman builds a filter with default noise covariances.
func NewKalman() *Kalman {
	k := &Kalman{
		x: mat.NewVecDense(4, nil),
		f: mat.NewDense(4, 4, []float64{
			1, 0, 1, 0,
			0, 1, 0, 1,
			0, 0, 1, 0,
			0, 0, 0, 1,
		}),
		h: mat.NewDense(2, 4, []float64{
			1, 0, 0, 0,
			0, 1, 0, 0,
		}),
		q: eye(4, defaultProcessNoise),
		r: eye(2, defaultMeasurementNoise),
		p: eye(4, 1),
	}
	return k
}

// Step runs one predict+update cycle and returns the filtered point.
// The first measurement seeds the state and is returned unchanged.
func (k *Kalman) Step(x, y int) (int, int) {
	k.mu.Lock()
	defer k.mu.Unlock()

	zx, zy := float64(x), float64(y)

	if !k.initialized {
		k.x.SetVec(0, zx)
		k.x.SetVec(1, zy)
		k.initialized = true
		return x, y
	}

	// Predict: x = F x, P = F P Fᵀ + Q
	var xp mat.VecDense
	xp.MulVec(k.f, k.x)

	var fp, pPred mat.Dense
	fp.Mul(k.f, k.p)
	pPred.Mul(&fp, k.f.T())
	pPred.Add(&pPred, k.q)

	// Innovation: y = z - H x
	var hx mat.VecDense
	hx.MulVec(k.h, &xp)
	innov := mat.NewVecDense(2, []float64{zx - hx.AtVec(0), zy - hx.AtVec(1)})

	// S = H P Hᵀ + R
	var hp, s mat.Dense
	hp.Mul(k.h, &pPred)
	s.Mul(&hp, k.h.T())
	s.Add(&s, k.r)

	// K = P Hᵀ S⁻¹
	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		// Degenerate covariance: skip the update, keep the prediction.
		k.x.CopyVec(&xp)
		k.p.Copy(&pPred)
		return int(math.Round(xp.AtVec(0))), int(math.Round(xp.AtVec(1)))
	}
	var pht, gain mat.Dense
	pht.Mul(&pPred, k.h.T())
	gain.Mul(&pht, &sInv)

	// x = x + K y
	var ky mat.VecDense
	ky.MulVec(&gain, innov)
	k.x.AddVec(&xp, &ky)

	// P = (I - K H) P
	var kh, ikh mat.Dense
	kh.Mul(&gain, k.h)
	ikh.Sub(eye(4, 1), &kh)
	k.p.Mul(&ikh, &pPred)

	return int(math.Round(k.x.AtVec(0))), int(math.Round(k.x.AtVec(1)))
}

// SetMeasurementNoise overwrites the measurement noise covariance with a
// diagonal matrix. Takes effect on the next Step call; no other state is
// touched.
func (k *Kalman) SetMeasurementNoise(varX, varY float64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.r = mat.NewDense(2, 2, []float64{
		varX, 0,
		0, varY,
	})
}

// Params returns a copy of the current covariance matrices.
func (k *Kalman) Params() Params {
	k.mu.Lock()
	defer k.mu.Unlock()
	return Params{
		MeasurementNoiseCov: toRows(k.r),
		ProcessNoiseCov:     toRows(k.q),
		ErrorCovPost:        toRows(k.p),
	}
}

func eye(n int, scale float64) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, scale)
	}
	return m
}

func toRows(m *mat.Dense) [][]float64 {
	r, c := m.Dims()
	rows := make([][]float64, r)
	for i := 0; i < r; i++ {
		rows[i] = make([]float64, c)
		for j := 0; j < c; j++ {
			rows[i][j] = m.At(i, j)
		}
	}
	return rows
}
