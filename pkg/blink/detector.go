// Package blink turns per-frame eye-closure observations into click gestures.
//
// A blink held past the prolonged threshold is a deliberate "click". The
// detector is a small edge-triggered state machine: Prolonged latches true at
// most once per unbroken blink episode and clears the first frame the eyes
// reopen.
package blink

import "time"

// DefaultProlongedThreshold is how long the eyes must stay closed before the
// blink counts as a click.
const DefaultProlongedThreshold = 1 * time.Second

// Snapshot is the blink state published with every processed frame.
type Snapshot struct {
	Blinking  bool          `json:"blink"`
	Duration  time.Duration `json:"blink_duration"`
	Prolonged bool          `json:"prolonged_blink"`
}

// Detector tracks blink timing across frames. Not safe for concurrent use;
// the tracker loop is the sole caller.
type Detector struct {
	threshold time.Duration

	start     time.Time
	active    bool
	prolonged bool
	fired     bool
}

// NewDetector creates a detector with the given prolonged-blink threshold.
// A non-positive threshold falls back to the default.
func NewDetector(threshold time.Duration) *Detector {
	if threshold <= 0 {
		threshold = DefaultProlongedThreshold
	}
	return &Detector{threshold: threshold}
}

// Update consumes one frame's blink observation and returns the new state.
func (d *Detector) Update(blinkDetected bool, now time.Time) Snapshot {
	if !blinkDetected {
		// Episode over: everything resets on the first open-eye frame.
		d.active = false
		d.prolonged = false
		d.fired = false
		d.start = time.Time{}
		return Snapshot{}
	}

	if !d.active {
		d.active = true
		d.start = now
		d.prolonged = false
	}

	duration := now.Sub(d.start)
	if !d.fired && duration >= d.threshold {
		// Fires exactly once per episode no matter how long the eyes stay
		// closed.
		d.prolonged = true
		d.fired = true
	}

	return Snapshot{
		Blinking:  true,
		Duration:  duration,
		Prolonged: d.prolonged,
	}
}
