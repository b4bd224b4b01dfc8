// Package config provides configuration helpers for gazetrack commands.
package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Defaults for the tracking daemon.
const (
	DefaultPort         = "8000"
	DefaultCameraIndex  = 0
	DefaultScreenWidth  = 1920
	DefaultScreenHeight = 1080
	DefaultFilterMethod = "kalman"
)

// Config holds the runtime configuration for the gazetrack daemon.
type Config struct {
	Port         string
	CameraIndex  int
	ScreenWidth  int
	ScreenHeight int
	FilterMethod string // "kalman", "kde" or "none"
	LogLevel     string

	// CalibrationDir is where trained models are stored.
	CalibrationDir string

	// FaceModelPath points at the YuNet ONNX model used for feature extraction.
	FaceModelPath string
	// EyeCascadePath points at the Haar cascade used for blink detection.
	EyeCascadePath string
}

// FromEnv builds a Config from environment variables, falling back to
// defaults for anything unset.
func FromEnv() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Port:           getString("PORT", DefaultPort),
		CameraIndex:    getInt("CAMERA_INDEX", DefaultCameraIndex),
		ScreenWidth:    getInt("SCREEN_WIDTH", DefaultScreenWidth),
		ScreenHeight:   getInt("SCREEN_HEIGHT", DefaultScreenHeight),
		FilterMethod:   getString("FILTER_METHOD", DefaultFilterMethod),
		LogLevel:       getString("LOG_LEVEL", "info"),
		CalibrationDir: getString("CALIBRATION_DIR", filepath.Join(home, ".gazehome", "calibrations")),
		FaceModelPath:  getString("FACE_MODEL_PATH", "models/face_detection_yunet.onnx"),
		EyeCascadePath: getString("EYE_CASCADE_PATH", "models/haarcascade_eye.xml"),
	}
}

// DefaultModelPath returns the path of the calibration model loaded at startup.
func (c Config) DefaultModelPath() string {
	return filepath.Join(c.CalibrationDir, "default.json")
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
