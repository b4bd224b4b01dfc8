package tracker

// Point is a screen coordinate in pixels.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// GazeState is the per-frame snapshot published by the tracker loop.
// Consumers always receive a copy; the loop is the only writer.
type GazeState struct {
	// Gaze is the smoothed gaze point, nil until the first frame is
	// processed. Defaults to the screen center while uncalibrated.
	Gaze *Point `json:"gaze"`

	// RawGaze is the unsmoothed prediction straight from the estimator.
	RawGaze *Point `json:"raw_gaze"`

	Blink bool `json:"blink"`

	// BlinkDuration is how long the current blink has lasted, in seconds.
	BlinkDuration float64 `json:"blink_duration"`

	// ProlongedBlink latches true once a blink crosses the click threshold
	// and clears when the blink ends.
	ProlongedBlink bool `json:"prolonged_blink"`

	Calibrated bool `json:"calibrated"`

	// Timestamp is the wall-clock time of the processed frame in unix
	// seconds.
	Timestamp float64 `json:"timestamp"`
}

// clone deep-copies the snapshot so readers never share pointers with the
// loop's working state.
func (s GazeState) clone() GazeState {
	out := s
	if s.Gaze != nil {
		g := *s.Gaze
		out.Gaze = &g
	}
	if s.RawGaze != nil {
		r := *s.RawGaze
		out.RawGaze = &r
	}
	return out
}
