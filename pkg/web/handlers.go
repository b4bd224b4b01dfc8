package web

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gazehome/gazetrack/pkg/calibration"
	"github.com/gazehome/gazetrack/pkg/tracker"
)

// handleHealth reports process liveness and whether the loop is running.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":         "ok",
		"tracker_active": s.tracker.Running(),
	})
}

// handleStatus returns the current gaze snapshot.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.tracker.State())
}

// CalibrationStartRequest is the body for POST /api/calibration/start.
type CalibrationStartRequest struct {
	Method       calibration.Method `json:"method"`
	ScreenWidth  int                `json:"screen_width"`
	ScreenHeight int                `json:"screen_height"`
	MarginRatio  float64            `json:"margin_ratio"`
}

func (s *Server) handleCalibrationStart(c *fiber.Ctx) error {
	req := CalibrationStartRequest{Method: calibration.FivePoint}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.ScreenWidth <= 0 || req.ScreenHeight <= 0 {
		w, h := s.tracker.ScreenSize()
		req.ScreenWidth, req.ScreenHeight = w, h
	}

	session, err := s.sessions.Start(req.Method, req.ScreenWidth, req.ScreenHeight, req.MarginRatio)
	if err != nil {
		return calibrationError(c, err)
	}

	points := session.Points()
	return c.JSON(fiber.Map{
		"session_id":   session.ID,
		"method":       session.Method,
		"points":       points,
		"total_points": len(points),
	})
}

func (s *Server) handleCalibrationState(c *fiber.Ctx) error {
	state, err := s.sessions.State(c.Params("id"))
	if err != nil {
		return calibrationError(c, err)
	}
	return c.JSON(state)
}

// CalibrationCollectRequest is the body for POST /api/calibration/collect.
type CalibrationCollectRequest struct {
	SessionID string    `json:"session_id"`
	Features  []float64 `json:"features"`
	PointX    int       `json:"point_x"`
	PointY    int       `json:"point_y"`
}

func (s *Server) handleCalibrationCollect(c *fiber.Ctx) error {
	var req CalibrationCollectRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if len(req.Features) == 0 {
		return badRequest(c, "features required")
	}

	state, err := s.sessions.Collect(req.SessionID, req.Features, req.PointX, req.PointY)
	if err != nil {
		return calibrationError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":          true,
		"samples_at_point": state.SamplesAtPoint,
		"total_samples":    state.TotalSamples,
		"message":          state.Message,
	})
}

// NextPointRequest is the body for POST /api/calibration/next-point.
type NextPointRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleCalibrationNext(c *fiber.Ctx) error {
	var req NextPointRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	result, err := s.sessions.Advance(req.SessionID)
	if err != nil {
		return calibrationError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":       true,
		"has_next":      result.HasNext,
		"current_point": result.CurrentPoint,
		"status":        result.Status,
	})
}

// CompleteRequest is the body for POST /api/calibration/complete.
type CompleteRequest struct {
	SessionID string `json:"session_id"`
	SavePath  string `json:"save_path"`
}

func (s *Server) handleCalibrationComplete(c *fiber.Ctx) error {
	var req CompleteRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	savePath, err := s.sessions.Complete(req.SessionID, req.SavePath)
	if err != nil {
		return calibrationError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"message":   "calibration complete, model saved",
		"save_path": savePath,
	})
}

func (s *Server) handleCalibrationCancel(c *fiber.Ctx) error {
	if err := s.sessions.Cancel(c.Params("id")); err != nil {
		return calibrationError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// handleCalibrationList lists saved model files, newest first.
func (s *Server) handleCalibrationList(c *fiber.Ctx) error {
	type modelInfo struct {
		Name     string `json:"name"`
		Path     string `json:"path"`
		Size     int64  `json:"size"`
		Modified int64  `json:"modified"`
	}

	var models []modelInfo
	entries, err := os.ReadDir(s.modelDir)
	if err == nil {
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			models = append(models, modelInfo{
				Name:     e.Name(),
				Path:     filepath.Join(s.modelDir, e.Name()),
				Size:     info.Size(),
				Modified: info.ModTime().Unix(),
			})
		}
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Modified > models[j].Modified })

	return c.JSON(fiber.Map{
		"calibrations": models,
		"directory":    s.modelDir,
	})
}

func (s *Server) handleKalmanParams(c *fiber.Ctx) error {
	params, err := s.tracker.KalmanParams()
	if err != nil {
		return tuningError(c, err)
	}
	return c.JSON(params)
}

// KalmanVarianceRequest is the body for POST /api/tuning/kalman/variance.
type KalmanVarianceRequest struct {
	VarianceX float64 `json:"variance_x"`
	VarianceY float64 `json:"variance_y"`
}

func (s *Server) handleKalmanVariance(c *fiber.Ctx) error {
	var req KalmanVarianceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.VarianceX <= 0 || req.VarianceY <= 0 {
		return badRequest(c, "variances must be positive")
	}

	if err := s.tracker.SetMeasurementNoise(req.VarianceX, req.VarianceY); err != nil {
		return tuningError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"variance_x": req.VarianceX,
		"variance_y": req.VarianceY,
	})
}

// handleKalmanAutoTune runs the blocking tuning pass. The fixation targets
// are pushed to /ws/gaze clients as tune_point messages while it runs.
func (s *Server) handleKalmanAutoTune(c *fiber.Ctx) error {
	if err := s.tracker.AutoTune(c.Context()); err != nil {
		return tuningError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "kalman filter tuned",
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// calibrationError maps workflow errors onto HTTP statuses.
func calibrationError(c *fiber.Ctx, err error) error {
	status := fiber.StatusBadRequest
	if errors.Is(err, calibration.ErrSessionNotFound) {
		status = fiber.StatusNotFound
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// tuningError maps tuning precondition failures onto HTTP statuses.
func tuningError(c *fiber.Ctx, err error) error {
	status := fiber.StatusBadRequest
	switch {
	case errors.Is(err, tracker.ErrTunerBusy):
		status = fiber.StatusConflict
	case errors.Is(err, tracker.ErrNotRunning):
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
