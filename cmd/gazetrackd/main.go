// gazetrackd - webcam gaze tracking daemon.
// Runs the real-time gaze pipeline and serves the calibration workflow and
// gaze stream over HTTP/websocket.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gazehome/gazetrack/internal/config"
	"github.com/gazehome/gazetrack/internal/log"
	"github.com/gazehome/gazetrack/pkg/calibration"
	"github.com/gazehome/gazetrack/pkg/camera"
	"github.com/gazehome/gazetrack/pkg/estimator"
	"github.com/gazehome/gazetrack/pkg/filter"
	"github.com/gazehome/gazetrack/pkg/tracker"
	"github.com/gazehome/gazetrack/pkg/vision"
	"github.com/gazehome/gazetrack/pkg/web"
)

func main() {
	cfg := parseFlags()
	log.Init(cfg.LogLevel)

	// Camera failure is fatal: there is nothing to track without one.
	cam, err := camera.Open(cfg.CameraIndex)
	if err != nil {
		log.Error("camera open failed", "error", err)
		os.Exit(1)
	}

	visionCfg := vision.DefaultConfig()
	visionCfg.FaceModelPath = cfg.FaceModelPath
	visionCfg.EyeCascadePath = cfg.EyeCascadePath
	extractor, err := vision.NewYuNet(visionCfg)
	if err != nil {
		cam.Close()
		log.Error("extractor init failed", "error", err)
		os.Exit(1)
	}
	defer extractor.Close()

	model := estimator.NewRidge(estimator.DefaultLambda)

	trackerCfg := tracker.DefaultConfig(cfg.ScreenWidth, cfg.ScreenHeight)
	trackerCfg.Method = filter.Method(cfg.FilterMethod)
	trk, err := tracker.New(trackerCfg, cam, extractor, model)
	if err != nil {
		cam.Close()
		log.Error("tracker init failed", "error", err)
		os.Exit(1)
	}

	// Pick up a previous calibration if one exists.
	if path := cfg.DefaultModelPath(); fileExists(path) {
		if err := trk.LoadModel(path); err != nil {
			log.Warn("saved calibration load failed", "path", path, "error", err)
		}
	} else {
		log.Info("no saved calibration, calibration required")
	}

	sessions := calibration.NewManager(model, trk, cfg.CalibrationDir)
	server := web.NewServer(cfg.Port, trk, sessions, cfg.CalibrationDir)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	server.StartAsync()
	trk.Run(ctx) // blocks until signal; releases the camera on return

	if err := server.Shutdown(); err != nil {
		log.Warn("server shutdown", "error", err)
	}
	log.Info("gazetrackd stopped")
}

// parseFlags layers command line flags over environment configuration.
func parseFlags() config.Config {
	cfg := config.FromEnv()

	port := flag.String("port", cfg.Port, "HTTP listen port")
	cameraIndex := flag.Int("camera", cfg.CameraIndex, "Camera device index")
	screenW := flag.Int("screen-width", cfg.ScreenWidth, "Target screen width in pixels")
	screenH := flag.Int("screen-height", cfg.ScreenHeight, "Target screen height in pixels")
	method := flag.String("filter", cfg.FilterMethod, "Smoothing filter: kalman, kde or none")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flag.Parse()

	cfg.Port = *port
	cfg.CameraIndex = *cameraIndex
	cfg.ScreenWidth = *screenW
	cfg.ScreenHeight = *screenH
	cfg.FilterMethod = *method
	cfg.LogLevel = *logLevel
	return cfg
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
