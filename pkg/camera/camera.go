// Package camera owns the webcam used for gaze tracking.
// Exactly one Device is opened per process and it belongs to the tracker loop.
package camera

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Source delivers frames to the tracker loop. Implemented by Device and by
// test fakes.
type Source interface {
	// Read fills dst with the next frame. Returns false on a failed read.
	Read(dst *gocv.Mat) bool

	// Close releases the underlying capture device.
	Close() error
}

// Device wraps a gocv.VideoCapture with exclusive ownership semantics.
type Device struct {
	mu    sync.Mutex
	cap   *gocv.VideoCapture
	index int
}

// Open opens the webcam at the given index. Failure to open the device is
// fatal for the caller: there is nothing to track without a camera.
func Open(index int) (*Device, error) {
	cap, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("camera: open device %d: %w", index, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("camera: device %d did not open", index)
	}
	return &Device{cap: cap, index: index}, nil
}

// Read captures the next frame into dst. A false return means this frame
// failed; the device may still produce subsequent frames.
func (d *Device) Read(dst *gocv.Mat) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cap == nil {
		return false
	}
	return d.cap.Read(dst) && !dst.Empty()
}

// Index returns the device index this camera was opened with.
func (d *Device) Index() int {
	return d.index
}

// Close releases the capture device. Safe to call more than once.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cap == nil {
		return nil
	}
	err := d.cap.Close()
	d.cap = nil
	return err
}
