package calibration

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gazehome/gazetrack/internal/log"
)

// maxSessions bounds the number of retained sessions; the oldest is evicted
// first.
const maxSessions = 10

// Trainer fits and persists the gaze model. Implemented by estimator.Ridge.
type Trainer interface {
	Train(features [][]float64, targets [][2]float64) error
	Save(path string) error
}

// TrackerControl is the tracker surface the workflow needs.
// Implemented by tracker.Tracker.
type TrackerControl interface {
	SetCalibrated(calibrated bool)
}

// Manager owns calibration sessions and drives training on completion.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	nextSeq  uint64

	trainer  Trainer
	tracker  TrackerControl
	modelDir string
}

// NewManager creates a session manager. Trained models default to
// modelDir/default.json unless Complete is given an explicit path.
func NewManager(trainer Trainer, tracker TrackerControl, modelDir string) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		trainer:  trainer,
		tracker:  tracker,
		modelDir: modelDir,
	}
}

// Start creates a new session and returns it with its generated points.
func (m *Manager) Start(method Method, screenW, screenH int, marginRatio float64) (*Session, error) {
	if marginRatio == 0 {
		marginRatio = 0.10
	}
	if marginRatio < MinMarginRatio || marginRatio > MaxMarginRatio {
		return nil, fmt.Errorf("%w: %.3f", ErrBadMargin, marginRatio)
	}

	points, err := generatePoints(method, screenW, screenH, marginRatio)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:           uuid.NewString(),
		Method:       method,
		CreatedAt:    time.Now(),
		ScreenWidth:  screenW,
		ScreenHeight: screenH,
		MarginRatio:  marginRatio,
		points:       points,
		status:       StatusIdle,
		message:      "calibration session created",
	}

	m.mu.Lock()
	s.seq = m.nextSeq
	m.nextSeq++
	m.sessions[s.ID] = s
	m.evictLocked()
	m.mu.Unlock()

	log.Info("calibration session started",
		"session", s.ID, "method", method, "points", len(points))
	return s, nil
}

// evictLocked drops the oldest sessions beyond the retention bound.
func (m *Manager) evictLocked() {
	for len(m.sessions) > maxSessions {
		var oldest *Session
		for _, s := range m.sessions {
			if oldest == nil || s.seq < oldest.seq {
				oldest = s
			}
		}
		delete(m.sessions, oldest.ID)
		log.Debug("calibration session evicted", "session", oldest.ID)
	}
}

// State returns a snapshot of the session.
func (m *Manager) State(id string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return State{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s.state(), nil
}

// Collect adds one sample for the session's current point. The submitted
// coordinates must match the current point exactly; anything else means the
// client and server disagree about where the user is looking.
func (m *Manager) Collect(id string, features []float64, pointX, pointY int) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return State{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	cur := s.currentPoint()
	if cur == nil {
		return State{}, ErrNoCurrentPoint
	}
	if cur.X != pointX || cur.Y != pointY {
		return State{}, fmt.Errorf("%w: expected (%d, %d), got (%d, %d)",
			ErrPointMismatch, cur.X, cur.Y, pointX, pointY)
	}

	s.addSample(features, pointX, pointY)
	s.status = StatusCapturing
	s.message = fmt.Sprintf("collected %d samples at point %d", s.samplesAtPoint, cur.Index+1)
	return s.state(), nil
}

// AdvanceResult reports the outcome of moving to the next point.
type AdvanceResult struct {
	HasNext      bool   `json:"has_next"`
	CurrentPoint *Point `json:"current_point"`
	Status       Status `json:"status"`
}

// Advance moves the session to its next point. Once the last point is passed
// the session reports completed and is ready for training.
func (m *Manager) Advance(id string) (AdvanceResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return AdvanceResult{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	hasNext := s.advance()
	if hasNext {
		s.status = StatusPulsing
		s.message = fmt.Sprintf("moving to point %d/%d", s.currentIndex+1, len(s.points))
	} else {
		s.status = StatusCompleted
		s.message = "all points collected, ready to train"
	}
	return AdvanceResult{
		HasNext:      hasNext,
		CurrentPoint: s.currentPoint(),
		Status:       s.status,
	}, nil
}

// Complete trains the model on the session's cumulative samples, flips the
// tracker to calibrated, persists the model and disposes the session.
// Returns the path the model was saved to.
//
// The minimum is cumulative across all points, matching the collection
// semantics: clients decide how many samples each point gets.
func (m *Manager) Complete(id, savePath string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if len(s.features) < MinSamples {
		return "", fmt.Errorf("%w: need %d, got %d", ErrInsufficientData, MinSamples, len(s.features))
	}

	s.status = StatusTraining
	s.message = "training model"

	if err := m.trainer.Train(s.features, s.targets); err != nil {
		s.status = StatusError
		s.message = fmt.Sprintf("training failed: %v", err)
		return "", fmt.Errorf("calibration: train: %w", err)
	}

	m.tracker.SetCalibrated(true)

	if savePath == "" {
		savePath = filepath.Join(m.modelDir, "default.json")
	}
	if err := m.trainer.Save(savePath); err != nil {
		s.status = StatusError
		s.message = fmt.Sprintf("save failed: %v", err)
		return "", fmt.Errorf("calibration: save model: %w", err)
	}

	s.status = StatusCompleted
	s.message = "calibration complete"
	delete(m.sessions, id)

	log.Info("calibration complete",
		"session", id, "samples", len(s.features), "model", savePath)
	return savePath, nil
}

// Cancel removes a session without training.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(m.sessions, id)
	log.Info("calibration session cancelled", "session", id)
	return nil
}

// Len returns the number of retained sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
