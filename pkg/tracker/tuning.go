package tracker

import (
	"context"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/gazehome/gazetrack/internal/log"
	"github.com/gazehome/gazetrack/pkg/filter"
)

// Auto-tune timing. Each fixation target gets a settle period for the user's
// eye to arrive, then a collection window of raw predictions.
const (
	tuneSettle  = 700 * time.Millisecond
	tuneCollect = 1200 * time.Millisecond

	// minTuneSamples is the minimum raw predictions per target for a usable
	// variance estimate.
	minTuneSamples = 10

	// minMeasurementVariance floors the derived covariance so a perfectly
	// still fixation cannot zero out the filter's measurement noise.
	minMeasurementVariance = 1.0
)

// SetMeasurementNoise overwrites the Kalman measurement noise covariance with
// the given diagonal. Takes effect on the next processed frame. Returns
// ErrFilterUnsupported when the active strategy is not Kalman.
func (t *Tracker) SetMeasurementNoise(varX, varY float64) error {
	k, ok := t.smoother.(*filter.Kalman)
	if !ok {
		return ErrFilterUnsupported
	}
	k.SetMeasurementNoise(varX, varY)
	log.Info("kalman measurement noise set", "var_x", varX, "var_y", varY)
	return nil
}

// KalmanParams returns the active filter's covariance matrices.
func (t *Tracker) KalmanParams() (filter.Params, error) {
	k, ok := t.smoother.(*filter.Kalman)
	if !ok {
		return filter.Params{}, ErrFilterUnsupported
	}
	return k.Params(), nil
}

// AutoTune derives a measurement-noise covariance from the empirical variance
// of raw predictions while the user fixates on a handful of on-screen
// targets. Blocking; call from a worker, not the tracking loop.
//
// Preconditions: the model is calibrated, the active strategy is Kalman, and
// the loop is running. Only one tuning pass may run at a time.
func (t *Tracker) AutoTune(ctx context.Context) error {
	k, ok := t.smoother.(*filter.Kalman)
	if !ok {
		return ErrFilterUnsupported
	}
	if !t.Calibrated() {
		return ErrNotCalibrated
	}
	if !t.Running() {
		return ErrNotRunning
	}
	if !t.tunerMu.TryLock() {
		return ErrTunerBusy
	}
	defer t.tunerMu.Unlock()

	targets := t.tunePoints()
	log.Info("kalman auto-tune started", "targets", len(targets))

	var varsX, varsY []float64
	for i, p := range targets {
		if t.OnTunePoint != nil {
			t.OnTunePoint(p.X, p.Y, i, len(targets))
		}
		if err := sleepCtx(ctx, tuneSettle); err != nil {
			return err
		}

		xs, ys, err := t.collectRawSamples(ctx, tuneCollect)
		if err != nil {
			return err
		}
		if len(xs) < minTuneSamples {
			return ErrTooFewSamples
		}
		varsX = append(varsX, stat.Variance(xs, nil))
		varsY = append(varsY, stat.Variance(ys, nil))
	}

	varX := stat.Mean(varsX, nil)
	varY := stat.Mean(varsY, nil)
	if varX < minMeasurementVariance {
		varX = minMeasurementVariance
	}
	if varY < minMeasurementVariance {
		varY = minMeasurementVariance
	}

	k.SetMeasurementNoise(varX, varY)
	log.Info("kalman auto-tune complete", "var_x", varX, "var_y", varY)
	return nil
}

// tunePoints returns the fixation targets: screen center flanked left and
// right along the horizontal midline.
func (t *Tracker) tunePoints() []Point {
	w, h := t.config.ScreenWidth, t.config.ScreenHeight
	return []Point{
		{X: w / 4, Y: h / 2},
		{X: w / 2, Y: h / 2},
		{X: 3 * w / 4, Y: h / 2},
	}
}

// collectRawSamples polls the published snapshot for the window's duration
// and gathers distinct raw predictions. Blink frames are skipped since no
// prediction is produced for them.
func (t *Tracker) collectRawSamples(ctx context.Context, window time.Duration) ([]float64, []float64, error) {
	deadline := time.Now().Add(window)
	ticker := time.NewTicker(t.config.FrameInterval)
	defer ticker.Stop()

	var xs, ys []float64
	var lastTS float64
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-ticker.C:
			s := t.State()
			if s.RawGaze == nil || s.Blink || s.Timestamp == lastTS {
				continue
			}
			lastTS = s.Timestamp
			xs = append(xs, float64(s.RawGaze.X))
			ys = append(ys, float64(s.RawGaze.Y))
		}
	}
	return xs, ys, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
