package tracker

import "errors"

// Sentinel errors for tracker operations.
var (
	// ErrNotCalibrated is returned when an operation needs a trained model.
	ErrNotCalibrated = errors.New("tracker: model not calibrated")

	// ErrFilterUnsupported is returned when a tuning operation is requested
	// on a smoothing strategy that does not support it.
	ErrFilterUnsupported = errors.New("tracker: active filter does not support this operation")

	// ErrTunerBusy is returned when auto-tuning is already in progress.
	ErrTunerBusy = errors.New("tracker: tuning already in progress")

	// ErrNotRunning is returned when an operation needs the tracking loop.
	ErrNotRunning = errors.New("tracker: tracking loop not running")

	// ErrTooFewSamples is returned when auto-tuning could not observe enough
	// raw predictions at a fixation target.
	ErrTooFewSamples = errors.New("tracker: too few samples collected during tuning")

	// ErrModelUnsupported is returned by LoadModel and SaveModel when the
	// estimator has no persistence surface.
	ErrModelUnsupported = errors.New("tracker: estimator does not persist models")
)
