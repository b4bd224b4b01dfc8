package tracker

import (
	"context"
	"errors"
	"testing"

	"github.com/gazehome/gazetrack/pkg/filter"
)

func TestSetMeasurementNoise_RequiresKalman(t *testing.T) {
	trk := newTestTracker(t, filter.MethodNone, &fakeEstimator{})
	if err := trk.SetMeasurementNoise(25, 25); !errors.Is(err, ErrFilterUnsupported) {
		t.Errorf("err = %v, want ErrFilterUnsupported", err)
	}
}

func TestSetMeasurementNoise_UpdatesKalman(t *testing.T) {
	trk := newTestTracker(t, filter.MethodKalman, &fakeEstimator{})
	if err := trk.SetMeasurementNoise(25, 49); err != nil {
		t.Fatalf("SetMeasurementNoise: %v", err)
	}

	p, err := trk.KalmanParams()
	if err != nil {
		t.Fatalf("KalmanParams: %v", err)
	}
	if p.MeasurementNoiseCov[0][0] != 25 || p.MeasurementNoiseCov[1][1] != 49 {
		t.Errorf("measurement noise = %v, want diag(25, 49)", p.MeasurementNoiseCov)
	}
}

func TestKalmanParams_RequiresKalman(t *testing.T) {
	trk := newTestTracker(t, filter.MethodKDE, &fakeEstimator{})
	if _, err := trk.KalmanParams(); !errors.Is(err, ErrFilterUnsupported) {
		t.Errorf("err = %v, want ErrFilterUnsupported", err)
	}
}

func TestAutoTune_Preconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("filter not kalman", func(t *testing.T) {
		trk := newTestTracker(t, filter.MethodNone, &fakeEstimator{})
		if err := trk.AutoTune(ctx); !errors.Is(err, ErrFilterUnsupported) {
			t.Errorf("err = %v, want ErrFilterUnsupported", err)
		}
	})

	t.Run("not calibrated", func(t *testing.T) {
		trk := newTestTracker(t, filter.MethodKalman, &fakeEstimator{})
		if err := trk.AutoTune(ctx); !errors.Is(err, ErrNotCalibrated) {
			t.Errorf("err = %v, want ErrNotCalibrated", err)
		}
	})

	t.Run("loop not running", func(t *testing.T) {
		trk := newTestTracker(t, filter.MethodKalman, &fakeEstimator{})
		trk.SetCalibrated(true)
		if err := trk.AutoTune(ctx); !errors.Is(err, ErrNotRunning) {
			t.Errorf("err = %v, want ErrNotRunning", err)
		}
	})

	t.Run("tuner already held", func(t *testing.T) {
		trk := newTestTracker(t, filter.MethodKalman, &fakeEstimator{})
		trk.SetCalibrated(true)
		trk.mu.Lock()
		trk.running = true
		trk.mu.Unlock()

		trk.tunerMu.Lock()
		defer trk.tunerMu.Unlock()
		if err := trk.AutoTune(ctx); !errors.Is(err, ErrTunerBusy) {
			t.Errorf("err = %v, want ErrTunerBusy", err)
		}
	})
}

func TestAutoTune_CancelDuringSettle(t *testing.T) {
	trk := newTestTracker(t, filter.MethodKalman, &fakeEstimator{})
	trk.SetCalibrated(true)
	trk.mu.Lock()
	trk.running = true
	trk.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := trk.AutoTune(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestTunePoints_HorizontalMidline(t *testing.T) {
	trk := newTestTracker(t, filter.MethodKalman, &fakeEstimator{})
	pts := trk.tunePoints()
	if len(pts) != 3 {
		t.Fatalf("got %d tune points, want 3", len(pts))
	}
	want := []Point{{480, 540}, {960, 540}, {1440, 540}}
	for i, p := range pts {
		if p != want[i] {
			t.Errorf("point %d = %+v, want %+v", i, p, want[i])
		}
	}
}
