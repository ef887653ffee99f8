package wake

import "testing"

func loudFrame(n int) []int16 {
	frame := make([]int16, n)
	for i := range frame {
		if i%2 == 0 {
			frame[i] = 5000
		} else {
			frame[i] = -5000
		}
	}
	return frame
}

func TestEnergyDetectorFiresAfterBurst(t *testing.T) {
	d := NewEnergyDetector(0.02, 3)

	if d.Detect(loudFrame(2048)) != 0 {
		t.Fatalf("first loud frame must not fire")
	}
	if d.Detect(loudFrame(2048)) != 0 {
		t.Fatalf("second loud frame must not fire")
	}
	if d.Detect(loudFrame(2048)) <= 0 {
		t.Fatalf("third loud frame must fire")
	}
	// The run resets after firing.
	if d.Detect(loudFrame(2048)) != 0 {
		t.Fatalf("run must reset after a detection")
	}
}

func TestEnergyDetectorQuietFrameResetsRun(t *testing.T) {
	d := NewEnergyDetector(0.02, 3)
	d.Detect(loudFrame(2048))
	d.Detect(loudFrame(2048))
	d.Detect(make([]int16, 2048))
	if d.Detect(loudFrame(2048)) != 0 {
		t.Fatalf("quiet frame must reset the burst run")
	}
}

func TestEnergyDetectorDefaults(t *testing.T) {
	d := NewEnergyDetector(0, 0)
	if d.threshold != 0.02 || d.burstFrames != 3 {
		t.Fatalf("non-positive arguments must fall back to defaults")
	}
}

func TestEnergyDetectorReset(t *testing.T) {
	d := NewEnergyDetector(0.02, 3)
	d.Detect(loudFrame(2048))
	d.Detect(loudFrame(2048))
	d.Reset()
	if d.Detect(loudFrame(2048)) != 0 {
		t.Fatalf("reset must clear the burst run")
	}
}

func TestMockDetectorSchedule(t *testing.T) {
	d := &MockDetector{Scores: []float64{0, 1}}
	if d.Detect(nil) != 0 {
		t.Fatalf("first scheduled score must be 0")
	}
	if d.Detect(nil) != 1 {
		t.Fatalf("second scheduled score must be 1")
	}
	if d.Detect(nil) != 0 {
		t.Fatalf("exhausted schedule must return 0")
	}

	d.Reset()
	if d.Detect(nil) != 0 || d.Detect(nil) != 1 {
		t.Fatalf("reset must rewind the schedule")
	}
}
