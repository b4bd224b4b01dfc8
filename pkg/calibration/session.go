// Package calibration implements the guided calibration workflow: a grid of
// fixation points, sample collection per point, and the training trigger that
// turns collected samples into a fitted gaze model.
package calibration

import (
	"errors"
	"fmt"
	"time"
)

// Method selects the point grid.
type Method string

const (
	FivePoint Method = "five_point" // center + four corners
	NinePoint Method = "nine_point" // full 3x3 grid
)

// Status is the session lifecycle state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusCapturing Status = "capturing"
	StatusPulsing   Status = "pulsing"
	StatusTraining  Status = "training"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// MinSamples is the cumulative sample count required before training.
const MinSamples = 5

// Margin bounds accepted by Start, as a fraction of the screen edge.
const (
	MinMarginRatio = 0.05
	MaxMarginRatio = 0.20
)

// bottomMarginRatio reserves the lower screen band for the on-screen status
// UI, independent of the configurable margin.
const bottomMarginRatio = 0.15

// Sentinel errors for calibration operations.
var (
	ErrUnknownMethod    = errors.New("calibration: unknown method")
	ErrBadMargin        = errors.New("calibration: margin ratio out of range")
	ErrSessionNotFound  = errors.New("calibration: session not found")
	ErrNoCurrentPoint   = errors.New("calibration: no current calibration point")
	ErrPointMismatch    = errors.New("calibration: submitted point does not match current point")
	ErrInsufficientData = errors.New("calibration: insufficient samples")
)

// Point is a single calibration target in absolute pixels.
type Point struct {
	X     int `json:"x"`
	Y     int `json:"y"`
	Index int `json:"index"`
	Total int `json:"total"`
}

// Session tracks one calibration run. All mutation goes through the Manager,
// which serializes access.
type Session struct {
	ID        string
	Method    Method
	CreatedAt time.Time

	// seq orders sessions by creation for LRU eviction; CreatedAt alone can
	// collide at millisecond resolution.
	seq uint64

	ScreenWidth  int
	ScreenHeight int
	MarginRatio  float64

	points       []Point
	currentIndex int

	// features and targets grow in lockstep: one target row per sample.
	features [][]float64
	targets  [][2]float64

	// samplesAtPoint counts samples collected at the current point; it
	// resets on every advance.
	samplesAtPoint int

	status  Status
	message string
}

// gridOrder returns the (row, col) visit order for a method. Row and column
// indices are in {0,1,2}; the center point always comes first.
func gridOrder(method Method) ([][2]int, error) {
	switch method {
	case FivePoint:
		return [][2]int{{1, 1}, {0, 0}, {2, 0}, {0, 2}, {2, 2}}, nil
	case NinePoint:
		return [][2]int{
			{1, 1},
			{0, 0}, {0, 1}, {0, 2},
			{1, 0}, {1, 2},
			{2, 0}, {2, 1}, {2, 2},
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

// generatePoints converts grid indices to absolute pixel coordinates.
//
// The usable area excludes a configurable margin on the left, right and top,
// and a fixed 15% band at the bottom. Per-axis step is usable/maxIndex, zero
// when the axis has a single distinct index. Pixel values truncate to int.
func generatePoints(method Method, screenW, screenH int, marginRatio float64) ([]Point, error) {
	order, err := gridOrder(method)
	if err != nil {
		return nil, err
	}

	maxR, maxC := 0, 0
	for _, rc := range order {
		if rc[0] > maxR {
			maxR = rc[0]
		}
		if rc[1] > maxC {
			maxC = rc[1]
		}
	}

	mx := int(float64(screenW) * marginRatio)
	myTop := int(float64(screenH) * marginRatio)
	myBottom := int(float64(screenH) * bottomMarginRatio)

	gw := screenW - 2*mx
	gh := screenH - myTop - myBottom

	var stepX, stepY float64
	if maxC > 0 {
		stepX = float64(gw) / float64(maxC)
	}
	if maxR > 0 {
		stepY = float64(gh) / float64(maxR)
	}

	points := make([]Point, len(order))
	for i, rc := range order {
		points[i] = Point{
			X:     mx + int(float64(rc[1])*stepX),
			Y:     myTop + int(float64(rc[0])*stepY),
			Index: i,
			Total: len(order),
		}
	}
	return points, nil
}

// Points returns a copy of the session's point sequence.
func (s *Session) Points() []Point {
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// currentPoint returns the active target, or nil when all points are done.
func (s *Session) currentPoint() *Point {
	if s.currentIndex >= 0 && s.currentIndex < len(s.points) {
		p := s.points[s.currentIndex]
		return &p
	}
	return nil
}

// addSample appends one (features, target) pair and bumps the per-point
// counter.
func (s *Session) addSample(features []float64, targetX, targetY int) {
	s.features = append(s.features, features)
	s.targets = append(s.targets, [2]float64{float64(targetX), float64(targetY)})
	s.samplesAtPoint++
}

// advance moves to the next point, resetting the per-point counter. Past the
// last point it is a no-op, keeping currentIndex within [0, len(points)] so
// progress can never exceed 1.0. Returns whether further points remain.
func (s *Session) advance() bool {
	if s.currentIndex < len(s.points) {
		s.currentIndex++
	}
	s.samplesAtPoint = 0
	return s.currentIndex < len(s.points)
}

// progress is currentIndex/len(points); exactly 1.0 only once every point has
// been advanced past.
func (s *Session) progress() float64 {
	if len(s.points) == 0 {
		return 0
	}
	return float64(s.currentIndex) / float64(len(s.points))
}

// State is a read-only snapshot of a session for transport.
type State struct {
	SessionID      string  `json:"session_id"`
	Status         Status  `json:"status"`
	CurrentPoint   *Point  `json:"current_point"`
	Progress       float64 `json:"progress"`
	Message        string  `json:"message"`
	SamplesAtPoint int     `json:"samples_at_point"`
	TotalSamples   int     `json:"total_samples"`
}

func (s *Session) state() State {
	return State{
		SessionID:      s.ID,
		Status:         s.status,
		CurrentPoint:   s.currentPoint(),
		Progress:       s.progress(),
		Message:        s.message,
		SamplesAtPoint: s.samplesAtPoint,
		TotalSamples:   len(s.features),
	}
}
