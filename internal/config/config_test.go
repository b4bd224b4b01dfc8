package config

import (
	"path/filepath"
	"testing"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "CAMERA_INDEX", "SCREEN_WIDTH", "SCREEN_HEIGHT", "FILTER_METHOD", "LOG_LEVEL", "CALIBRATION_DIR"} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %q, want %q", cfg.Port, DefaultPort)
	}
	if cfg.CameraIndex != DefaultCameraIndex {
		t.Errorf("CameraIndex = %d, want %d", cfg.CameraIndex, DefaultCameraIndex)
	}
	if cfg.ScreenWidth != DefaultScreenWidth || cfg.ScreenHeight != DefaultScreenHeight {
		t.Errorf("screen = %dx%d, want %dx%d", cfg.ScreenWidth, cfg.ScreenHeight, DefaultScreenWidth, DefaultScreenHeight)
	}
	if cfg.FilterMethod != DefaultFilterMethod {
		t.Errorf("FilterMethod = %q, want %q", cfg.FilterMethod, DefaultFilterMethod)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9100")
	t.Setenv("CAMERA_INDEX", "2")
	t.Setenv("SCREEN_WIDTH", "2560")
	t.Setenv("SCREEN_HEIGHT", "1440")
	t.Setenv("FILTER_METHOD", "kde")
	t.Setenv("CALIBRATION_DIR", "/data/cal")

	cfg := FromEnv()
	if cfg.Port != "9100" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.CameraIndex != 2 {
		t.Errorf("CameraIndex = %d", cfg.CameraIndex)
	}
	if cfg.ScreenWidth != 2560 || cfg.ScreenHeight != 1440 {
		t.Errorf("screen = %dx%d", cfg.ScreenWidth, cfg.ScreenHeight)
	}
	if cfg.FilterMethod != "kde" {
		t.Errorf("FilterMethod = %q", cfg.FilterMethod)
	}
	if got := cfg.DefaultModelPath(); got != filepath.Join("/data/cal", "default.json") {
		t.Errorf("DefaultModelPath() = %q", got)
	}
}

func TestFromEnvIgnoresMalformedInts(t *testing.T) {
	t.Setenv("CAMERA_INDEX", "not-a-number")
	cfg := FromEnv()
	if cfg.CameraIndex != DefaultCameraIndex {
		t.Errorf("CameraIndex = %d, want fallback %d", cfg.CameraIndex, DefaultCameraIndex)
	}
}
