package filter

import "testing"

func TestKDE_ShortWindowPassesThrough(t *testing.T) {
	k := NewKDE(1920, 1080, DefaultConfidence)
	x, y := k.Step(300, 200)
	if x != 300 || y != 200 {
		t.Errorf("first Step = (%d, %d), want input back", x, y)
	}
	x, y = k.Step(310, 210)
	if x != 310 || y != 210 {
		t.Errorf("second Step = (%d, %d), want input back", x, y)
	}
}

func TestKDE_IgnoresOutliers(t *testing.T) {
	k := NewKDE(1920, 1080, DefaultConfidence)

	// A tight fixation cluster with a few wild mispredictions mixed in.
	var x, y int
	for i := 0; i < 20; i++ {
		x, y = k.Step(400+i%5, 400+(i*3)%7)
	}
	k.Step(1900, 1000)
	k.Step(1890, 990)
	x, y = k.Step(402, 403)

	if x < 380 || x > 430 || y < 380 || y > 430 {
		t.Errorf("smoothed point (%d, %d) pulled out of the fixation cluster", x, y)
	}
}

func TestKDE_ClampsToScreen(t *testing.T) {
	k := NewKDE(800, 600, DefaultConfidence)
	x, y := k.Step(-50, 700)
	if x != 0 {
		t.Errorf("x = %d, want clamped to 0", x)
	}
	if y != 599 {
		t.Errorf("y = %d, want clamped to 599", y)
	}
}

func TestKDE_StationaryClusterStaysPut(t *testing.T) {
	k := NewKDE(1920, 1080, DefaultConfidence)
	var x, y int
	for i := 0; i < 40; i++ {
		x, y = k.Step(960, 540)
	}
	if x != 960 || y != 540 {
		t.Errorf("stationary input drifted to (%d, %d)", x, y)
	}
}

func TestKDE_Reset(t *testing.T) {
	k := NewKDE(1920, 1080, DefaultConfidence)
	for i := 0; i < 10; i++ {
		k.Step(100, 100)
	}
	k.Reset()

	// After a reset the window is empty again: raw pass-through.
	x, y := k.Step(1500, 900)
	if x != 1500 || y != 900 {
		t.Errorf("Step after Reset = (%d, %d), want input back", x, y)
	}
}
