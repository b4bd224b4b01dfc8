// Package web exposes the gaze tracker over HTTP and websockets: a REST API
// for the calibration workflow and filter tuning, plus rate-limited realtime
// streams of gaze state and raw features.
package web

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/gazehome/gazetrack/internal/log"
	"github.com/gazehome/gazetrack/pkg/calibration"
	"github.com/gazehome/gazetrack/pkg/hub"
	"github.com/gazehome/gazetrack/pkg/tracker"
)

// streamInterval caps the websocket stream rate at ~30 Hz regardless of the
// tracker's own cadence, so slow consumers never see a firehose.
const streamInterval = time.Second / 30

// Server is the gazetrack web transport.
type Server struct {
	app  *fiber.App
	port string

	tracker  *tracker.Tracker
	sessions *calibration.Manager
	modelDir string

	gazeHub    *hub.Hub
	featureHub *hub.Hub

	// Feature stream rate limiting
	featMu       sync.Mutex
	featLastSent time.Time

	cancel context.CancelFunc
}

// NewServer wires the transport around an existing tracker and session
// manager. It registers itself as the tracker's observation and tune-point
// sink, so construct it before starting the tracking loop.
func NewServer(port string, trk *tracker.Tracker, sessions *calibration.Manager, modelDir string) *Server {
	s := &Server{
		port:       port,
		tracker:    trk,
		sessions:   sessions,
		modelDir:   modelDir,
		gazeHub:    hub.New("gaze"),
		featureHub: hub.New("features"),
	}

	trk.OnObservation = s.publishFeatures
	trk.OnTunePoint = s.publishTunePoint

	app := fiber.New(fiber.Config{
		AppName:               "gazetrack",
		DisableStartupMessage: true,
	})

	// CORS for the browser frontend
	app.Use(cors.New())

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)

	cal := api.Group("/calibration")
	cal.Post("/start", s.handleCalibrationStart)
	cal.Get("/state/:id", s.handleCalibrationState)
	cal.Post("/collect", s.handleCalibrationCollect)
	cal.Post("/next-point", s.handleCalibrationNext)
	cal.Post("/complete", s.handleCalibrationComplete)
	cal.Delete("/cancel/:id", s.handleCalibrationCancel)
	cal.Get("/list", s.handleCalibrationList)

	tuning := api.Group("/tuning")
	tuning.Get("/kalman", s.handleKalmanParams)
	tuning.Post("/kalman/variance", s.handleKalmanVariance)
	tuning.Post("/kalman/auto", s.handleKalmanAutoTune)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/gaze", websocket.New(s.handleGazeWS))
	app.Get("/ws/features", websocket.New(s.handleFeaturesWS))

	s.app = app
	return s
}

// Start runs the hubs, the gaze broadcaster and the HTTP listener. Blocks.
// The hubs share the broadcaster's ctx, so Shutdown disconnects every
// websocket client.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go s.gazeHub.Run(ctx)
	go s.featureHub.Run(ctx)
	go s.broadcastGaze(ctx)

	log.Info("web server listening", "port", s.port)
	return s.app.Listen(":" + s.port)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			log.Error("web server error", "error", err)
		}
	}()
}

// Shutdown stops the broadcaster and the HTTP listener.
func (s *Server) Shutdown() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.app.Shutdown()
}

// gazeMessage is the payload sent on /ws/gaze.
type gazeMessage struct {
	Type string `json:"type"`
	tracker.GazeState
}

// broadcastGaze polls the tracker snapshot and fans it out at most 30 Hz.
// An explicit goroutine with ctx cancellation: failures and shutdown are
// observable, nothing is fire-and-forget.
func (s *Server) broadcastGaze(ctx context.Context) {
	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()

	var lastTS float64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.gazeHub.ClientCount() == 0 {
				continue
			}
			state := s.tracker.State()
			if state.Timestamp == lastTS {
				continue
			}
			lastTS = state.Timestamp
			if err := s.gazeHub.BroadcastJSON(gazeMessage{Type: "gaze_update", GazeState: state}); err != nil {
				log.Warn("gaze broadcast failed", "error", err)
			}
		}
	}
}

// featureMessage is the payload sent on /ws/features.
type featureMessage struct {
	Type      string    `json:"type"`
	Timestamp float64   `json:"timestamp"`
	HasFace   bool      `json:"has_face"`
	Blink     bool      `json:"blink"`
	Features  []float64 `json:"features"`
}

// publishFeatures runs on the tracker loop for every frame; it must stay
// cheap. Drops frames beyond the 30 Hz stream budget or when nobody listens.
func (s *Server) publishFeatures(features []float64, blink bool) {
	if s.featureHub.ClientCount() == 0 {
		return
	}

	s.featMu.Lock()
	now := time.Now()
	if now.Sub(s.featLastSent) < streamInterval {
		s.featMu.Unlock()
		return
	}
	s.featLastSent = now
	s.featMu.Unlock()

	if err := s.featureHub.BroadcastJSON(featureMessage{
		Type:      "features",
		Timestamp: float64(now.UnixNano()) / 1e9,
		HasFace:   features != nil,
		Blink:     blink,
		Features:  features,
	}); err != nil {
		log.Warn("feature broadcast failed", "error", err)
	}
}

// tunePointMessage tells clients where the auto-tune fixation target is.
type tunePointMessage struct {
	Type  string `json:"type"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Index int    `json:"index"`
	Total int    `json:"total"`
}

func (s *Server) publishTunePoint(x, y, index, total int) {
	if err := s.gazeHub.BroadcastJSON(tunePointMessage{
		Type:  "tune_point",
		X:     x,
		Y:     y,
		Index: index,
		Total: total,
	}); err != nil {
		log.Warn("tune point broadcast failed", "error", err)
	}
}

// handleGazeWS registers the connection on the gaze hub.
func (s *Server) handleGazeWS(c *websocket.Conn) {
	// Initial calibration status so clients can render before the first
	// gaze update arrives.
	state := s.tracker.State()
	c.WriteJSON(fiber.Map{
		"type":       "calibration_status",
		"calibrated": state.Calibrated,
	})
	hub.NewClient(s.gazeHub, c).Run()
}

// handleFeaturesWS registers the connection on the feature hub.
func (s *Server) handleFeaturesWS(c *websocket.Conn) {
	hub.NewClient(s.featureHub, c).Run()
}
