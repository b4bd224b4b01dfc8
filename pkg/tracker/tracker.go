// Package tracker runs the real-time gaze pipeline.
//
// A single loop owns the camera: every iteration reads a frame, extracts
// facial features, updates blink timing, predicts and smooths the gaze point,
// and publishes a consistent GazeState snapshot. Everything else in the
// process is a reader.
package tracker

import (
	"context"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/gazehome/gazetrack/internal/log"
	"github.com/gazehome/gazetrack/pkg/blink"
	"github.com/gazehome/gazetrack/pkg/camera"
	"github.com/gazehome/gazetrack/pkg/filter"
)

// Extractor yields facial features and blink state for a frame.
// Implemented by vision.YuNetExtractor.
type Extractor interface {
	Extract(frame gocv.Mat) (features []float64, blink bool)
}

// Estimator predicts a screen coordinate from a feature vector.
// Implemented by estimator.Ridge.
type Estimator interface {
	Predict(features []float64) (x, y float64, err error)
}

// ModelStore is the optional persistence surface of an Estimator.
type ModelStore interface {
	Load(path string) error
	Save(path string) error
}

// Config holds the tracker's construction-time parameters.
type Config struct {
	ScreenWidth  int
	ScreenHeight int

	// FrameInterval is the loop's target cadence. Best effort, not hard
	// real-time.
	FrameInterval time.Duration

	// ProlongedBlinkThreshold is the eye-closure duration that counts as a
	// click.
	ProlongedBlinkThreshold time.Duration

	// Method selects the smoothing strategy, chosen once at construction.
	Method filter.Method
}

// DefaultConfig returns the recommended tracker configuration.
func DefaultConfig(screenW, screenH int) Config {
	return Config{
		ScreenWidth:             screenW,
		ScreenHeight:            screenH,
		FrameInterval:           16 * time.Millisecond, // ~60 FPS
		ProlongedBlinkThreshold: blink.DefaultProlongedThreshold,
		Method:                  filter.MethodKalman,
	}
}

// Tracker drives the per-frame gaze pipeline and publishes state snapshots.
type Tracker struct {
	config    Config
	source    camera.Source
	extractor Extractor
	estimator Estimator
	smoother  filter.Smoother
	blinks    *blink.Detector

	mu      sync.RWMutex
	state   GazeState
	running bool

	// tunerMu serializes exclusive-mode operations (Kalman auto-tune) so
	// they cannot interleave with one another.
	tunerMu sync.Mutex

	// OnTunePoint is invoked during auto-tuning to tell the UI where the
	// user should fixate. Optional.
	OnTunePoint func(x, y, index, total int)

	// OnObservation is invoked once per processed frame with the raw
	// extraction result. Used by the transport layer to stream features
	// during browser-driven calibration. Set before Run; optional.
	OnObservation func(features []float64, blink bool)
}

// New builds a tracker. The smoothing strategy is instantiated here and
// cannot be swapped at runtime.
func New(cfg Config, source camera.Source, extractor Extractor, est Estimator) (*Tracker, error) {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = 16 * time.Millisecond
	}
	smoother, err := filter.New(cfg.Method, cfg.ScreenWidth, cfg.ScreenHeight)
	if err != nil {
		return nil, err
	}
	return &Tracker{
		config:    cfg,
		source:    source,
		extractor: extractor,
		estimator: est,
		smoother:  smoother,
		blinks:    blink.NewDetector(cfg.ProlongedBlinkThreshold),
	}, nil
}

// Run drives the tracking loop until ctx is cancelled. The camera is
// released on every exit path.
func (t *Tracker) Run(ctx context.Context) {
	t.mu.Lock()
	t.running = true
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
		if err := t.source.Close(); err != nil {
			log.Warn("camera close failed", "error", err)
		}
	}()

	frame := gocv.NewMat()
	defer frame.Close()

	log.Info("gaze tracking started",
		"interval", t.config.FrameInterval,
		"filter", t.config.Method,
		"screen_width", t.config.ScreenWidth,
		"screen_height", t.config.ScreenHeight)

	ticker := time.NewTicker(t.config.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("gaze tracking stopped")
			return
		case <-ticker.C:
			if !t.source.Read(&frame) {
				// A single failed read is transient; the loop self-heals.
				log.Debug("frame read failed, skipping iteration")
				continue
			}
			features, blinkDetected := t.extractor.Extract(frame)
			t.processObservation(features, blinkDetected, time.Now())
		}
	}
}

// Running reports whether the loop is active.
func (t *Tracker) Running() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

// processObservation advances the pipeline one frame. Split from the frame
// read so the state machine is testable without a camera.
func (t *Tracker) processObservation(features []float64, blinkDetected bool, now time.Time) {
	if t.OnObservation != nil {
		t.OnObservation(features, blinkDetected)
	}

	snap := t.blinks.Update(blinkDetected, now)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.Blink = snap.Blinking
	t.state.BlinkDuration = snap.Duration.Seconds()
	t.state.ProlongedBlink = snap.Prolonged
	t.state.Timestamp = float64(now.UnixNano()) / 1e9

	switch {
	case features != nil && !blinkDetected && t.state.Calibrated:
		rx, ry, err := t.estimator.Predict(features)
		if err != nil {
			log.Warn("gaze prediction failed", "error", err)
			return
		}
		raw := Point{X: int(rx), Y: int(ry)}
		sx, sy := t.smoother.Step(raw.X, raw.Y)
		t.state.RawGaze = &raw
		t.state.Gaze = &Point{X: sx, Y: sy}

	case t.state.Gaze == nil:
		// Cold start: park the cursor at the screen center until the first
		// calibrated prediction arrives.
		center := Point{X: t.config.ScreenWidth / 2, Y: t.config.ScreenHeight / 2}
		t.state.Gaze = &center
		raw := center
		t.state.RawGaze = &raw
	}
}

// State returns a consistent copy of the latest snapshot.
func (t *Tracker) State() GazeState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.clone()
}

// Calibrated reports whether predictions are being produced.
func (t *Tracker) Calibrated() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Calibrated
}

// SetCalibrated flips the calibrated flag. Called by the calibration
// workflow after a successful train, or at startup when a saved model loads.
func (t *Tracker) SetCalibrated(calibrated bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Calibrated = calibrated
}

// LoadModel loads persisted estimator weights and marks the tracker
// calibrated. Returns ErrModelUnsupported when the estimator cannot persist.
func (t *Tracker) LoadModel(path string) error {
	store, ok := t.estimator.(ModelStore)
	if !ok {
		return ErrModelUnsupported
	}
	if err := store.Load(path); err != nil {
		return err
	}
	t.SetCalibrated(true)
	log.Info("calibration model loaded", "path", path)
	return nil
}

// SaveModel persists the estimator weights. The tracker must be calibrated;
// there is nothing worth saving before a successful train.
func (t *Tracker) SaveModel(path string) error {
	store, ok := t.estimator.(ModelStore)
	if !ok {
		return ErrModelUnsupported
	}
	if !t.Calibrated() {
		return ErrNotCalibrated
	}
	return store.Save(path)
}

// ScreenSize returns the configured screen dimensions.
func (t *Tracker) ScreenSize() (int, int) {
	return t.config.ScreenWidth, t.config.ScreenHeight
}
