// Package filter provides smoothing strategies for raw gaze points.
//
// A Smoother is a stateful per-frame filter: the tracker calls Step once per
// processed frame with the raw predicted point and renders the returned point.
// Three strategies are available: none (identity), a constant-velocity Kalman
// filter, and a KDE-windowed mode estimator.
package filter

import (
	"errors"
	"fmt"
)

// Method selects the smoothing strategy at construction time.
type Method string

const (
	MethodNone   Method = "none"
	MethodKalman Method = "kalman"
	MethodKDE    Method = "kde"
)

// ErrUnknownMethod is returned by New for an unrecognized method string.
var ErrUnknownMethod = errors.New("filter: unknown smoothing method")

// Smoother transforms a raw gaze point into a stabilized one.
// Implementations are stateful and not safe for concurrent use; the tracker
// loop is the sole caller.
type Smoother interface {
	// Step consumes one raw point and returns the smoothed point.
	Step(x, y int) (int, int)
}

// New constructs the smoother for the given method. Screen dimensions are
// used by the KDE strategy to clamp its output; the others ignore them.
func New(method Method, screenW, screenH int) (Smoother, error) {
	switch method {
	case MethodKalman:
		return NewKalman(), nil
	case MethodKDE:
		return NewKDE(screenW, screenH, DefaultConfidence), nil
	case MethodNone, "":
		return NoOp{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

// NoOp passes raw points through unchanged.
type NoOp struct{}

// Step returns the input point as-is.
func (NoOp) Step(x, y int) (int, int) {
	return x, y
}
