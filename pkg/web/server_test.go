package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gazehome/gazetrack/pkg/calibration"
	"github.com/gazehome/gazetrack/pkg/estimator"
	"github.com/gazehome/gazetrack/pkg/filter"
	"github.com/gazehome/gazetrack/pkg/hub"
	"github.com/gazehome/gazetrack/pkg/tracker"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := tracker.DefaultConfig(1920, 1080)
	cfg.Method = filter.MethodNone
	trk, err := tracker.New(cfg, nil, nil, estimator.NewRidge(0))
	if err != nil {
		t.Fatalf("tracker.New: %v", err)
	}
	modelDir := t.TempDir()
	sessions := calibration.NewManager(estimator.NewRidge(0), trk, modelDir)
	return NewServer("0", trk, sessions, modelDir)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	var out map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("%s %s: decode response: %v", method, path, err)
	}
	return resp, out
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	resp, body := doJSON(t, s, http.MethodGet, "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if string(body["status"]) != `"ok"` {
		t.Errorf("status field = %s", body["status"])
	}
	if string(body["tracker_active"]) != "false" {
		t.Errorf("tracker_active = %s, want false with no loop running", body["tracker_active"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t)
	resp, body := doJSON(t, s, http.MethodGet, "/api/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if string(body["calibrated"]) != "false" {
		t.Errorf("calibrated = %s, want false", body["calibrated"])
	}
}

func TestCalibrationRESTFlow(t *testing.T) {
	s := newTestServer(t)

	// Start a five-point session at the tracker's screen size.
	resp, body := doJSON(t, s, http.MethodPost, "/api/calibration/start",
		map[string]any{"method": "five_point"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	var sessionID string
	if err := json.Unmarshal(body["session_id"], &sessionID); err != nil || sessionID == "" {
		t.Fatalf("session_id = %s", body["session_id"])
	}
	var points []calibration.Point
	if err := json.Unmarshal(body["points"], &points); err != nil {
		t.Fatalf("points: %v", err)
	}
	if len(points) != 5 {
		t.Fatalf("got %d points, want 5", len(points))
	}

	// Collecting at the wrong coordinates is rejected.
	resp, _ = doJSON(t, s, http.MethodPost, "/api/calibration/collect", map[string]any{
		"session_id": sessionID,
		"features":   []float64{1, 2, 3},
		"point_x":    points[0].X + 5,
		"point_y":    points[0].Y,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("mismatched collect status = %d, want 400", resp.StatusCode)
	}

	// Collect a few samples per point, advancing through all five.
	for i, p := range points {
		for n := 0; n < 3; n++ {
			resp, _ = doJSON(t, s, http.MethodPost, "/api/calibration/collect", map[string]any{
				"session_id": sessionID,
				"features":   []float64{float64(p.X) / 1920, float64(p.Y) / 1080, float64(n)},
				"point_x":    p.X,
				"point_y":    p.Y,
			})
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("collect at point %d status = %d", i, resp.StatusCode)
			}
		}
		resp, _ = doJSON(t, s, http.MethodPost, "/api/calibration/next-point",
			map[string]any{"session_id": sessionID})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("next-point after %d status = %d", i, resp.StatusCode)
		}
	}

	// Complete trains the model and flips the tracker to calibrated.
	resp, body = doJSON(t, s, http.MethodPost, "/api/calibration/complete",
		map[string]any{"session_id": sessionID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete status = %d, body = %v", resp.StatusCode, body)
	}
	if !s.tracker.Calibrated() {
		t.Error("tracker not calibrated after completion")
	}

	// The saved model shows up in the list.
	resp, body = doJSON(t, s, http.MethodGet, "/api/calibration/list", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var models []map[string]any
	if err := json.Unmarshal(body["calibrations"], &models); err != nil {
		t.Fatalf("calibrations: %v", err)
	}
	if len(models) != 1 {
		t.Errorf("saved models = %d, want 1", len(models))
	}
}

func TestCalibrationUnknownSessionIs404(t *testing.T) {
	s := newTestServer(t)

	resp, _ := doJSON(t, s, http.MethodGet, "/api/calibration/state/does-not-exist", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("state status = %d, want 404", resp.StatusCode)
	}

	resp, _ = doJSON(t, s, http.MethodDelete, "/api/calibration/cancel/does-not-exist", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("cancel status = %d, want 404", resp.StatusCode)
	}
}

func TestCalibrationBadMarginIs400(t *testing.T) {
	s := newTestServer(t)
	resp, _ := doJSON(t, s, http.MethodPost, "/api/calibration/start",
		map[string]any{"method": "five_point", "margin_ratio": 0.5})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestTuningEndpointsRejectNonKalman(t *testing.T) {
	s := newTestServer(t)

	resp, _ := doJSON(t, s, http.MethodGet, "/api/tuning/kalman", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("params status = %d, want 400 under the none filter", resp.StatusCode)
	}

	resp, _ = doJSON(t, s, http.MethodPost, "/api/tuning/kalman/variance",
		map[string]any{"variance_x": 25.0, "variance_y": 25.0})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("variance status = %d, want 400 under the none filter", resp.StatusCode)
	}
}

func TestTuningVarianceValidation(t *testing.T) {
	s := newTestServer(t)
	for _, body := range []map[string]any{
		{"variance_x": 0.0, "variance_y": 25.0},
		{"variance_x": 25.0, "variance_y": -1.0},
	} {
		resp, _ := doJSON(t, s, http.MethodPost, "/api/tuning/kalman/variance", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("variance %v status = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestAutoTuneWhileStoppedIs503(t *testing.T) {
	cfg := tracker.DefaultConfig(1920, 1080)
	cfg.Method = filter.MethodKalman
	trk, err := tracker.New(cfg, nil, nil, estimator.NewRidge(0))
	if err != nil {
		t.Fatalf("tracker.New: %v", err)
	}
	trk.SetCalibrated(true)
	modelDir := t.TempDir()
	s := NewServer("0", trk, calibration.NewManager(estimator.NewRidge(0), trk, modelDir), modelDir)

	resp, _ := doJSON(t, s, http.MethodPost, "/api/tuning/kalman/auto", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 while the loop is stopped", resp.StatusCode)
	}
}

func (s *Server) lastFeatureSend() time.Time {
	s.featMu.Lock()
	defer s.featMu.Unlock()
	return s.featLastSent
}

func TestPublishFeaturesSkipsWithoutListeners(t *testing.T) {
	s := newTestServer(t)
	s.publishFeatures([]float64{1, 2, 3}, false)
	if !s.lastFeatureSend().IsZero() {
		t.Error("features published with no connected clients")
	}
}

func TestPublishFeaturesRateLimited(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.featureHub.Run(ctx)

	hub.NewClient(s.featureHub, nil)
	deadline := time.Now().Add(2 * time.Second)
	for s.featureHub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.featureHub.ClientCount() == 0 {
		t.Fatal("client never registered")
	}

	features := []float64{0.1, 0.2, 0.3}

	s.publishFeatures(features, false)
	first := s.lastFeatureSend()
	if first.IsZero() {
		t.Fatal("first frame was not published")
	}

	// A burst of frames inside one stream interval must all be dropped.
	for i := 0; i < 10; i++ {
		s.publishFeatures(features, false)
	}
	if got := s.lastFeatureSend(); !got.Equal(first) {
		t.Errorf("frame published %v after the previous send, inside the %v stream interval", got.Sub(first), streamInterval)
	}

	// After the interval elapses, frames flow again.
	time.Sleep(streamInterval + 10*time.Millisecond)
	s.publishFeatures(features, true)
	if got := s.lastFeatureSend(); !got.After(first) {
		t.Error("frame not published once the stream interval elapsed")
	}
}

func TestBroadcastGazeStopsOnCancel(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.broadcastGaze(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcaster did not stop on ctx cancellation")
	}
}

func TestWebsocketRoutesRequireUpgrade(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/ws/gaze", "/ws/features"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp, err := s.app.Test(req, -1)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusUpgradeRequired {
			t.Errorf("%s status = %d, want %d", path, resp.StatusCode, http.StatusUpgradeRequired)
		}
	}
}
