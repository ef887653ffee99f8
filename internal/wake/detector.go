// Package wake provides wake-phrase detection for idle frames. The detector
// model itself is an external capability; this package ships an energy-burst
// detector usable without any model, and a mock for tests and development.
package wake

import (
	"math"

	"github.com/loqalabs/loqa-listen/internal/engine"
)

var (
	_ engine.WakeDetector = (*EnergyDetector)(nil)
	_ engine.WakeDetector = (*MockDetector)(nil)
)

// EnergyDetector activates on a sustained energy burst: a configurable run
// of consecutive frames above a normalized RMS threshold. It is a stand-in
// for a real keyword model, useful for push-to-talk style setups where any
// loud onset should open a session.
type EnergyDetector struct {
	threshold   float64
	burstFrames int

	run int
}

// NewEnergyDetector returns a detector that fires after burstFrames
// consecutive frames whose normalized RMS meets threshold. Non-positive
// arguments fall back to 0.02 and 3.
func NewEnergyDetector(threshold float64, burstFrames int) *EnergyDetector {
	if threshold <= 0 {
		threshold = 0.02
	}
	if burstFrames <= 0 {
		burstFrames = 3
	}
	return &EnergyDetector{threshold: threshold, burstFrames: burstFrames}
}

// Detect returns a positive score once the burst requirement is met, zero
// otherwise. The run resets on any quiet frame.
func (d *EnergyDetector) Detect(frame []int16) float64 {
	if normalizedRMS(frame) >= d.threshold {
		d.run++
	} else {
		d.run = 0
	}
	if d.run >= d.burstFrames {
		d.run = 0
		return 1
	}
	return 0
}

// Reset clears the burst run.
func (d *EnergyDetector) Reset() { d.run = 0 }

// MockDetector fires on a fixed schedule of Detect calls. Scores holds the
// value returned per call; once exhausted it returns zero forever.
type MockDetector struct {
	Scores []float64
	calls  int
}

// Detect returns the next scheduled score.
func (d *MockDetector) Detect(_ []int16) float64 {
	if d.calls >= len(d.Scores) {
		return 0
	}
	score := d.Scores[d.calls]
	d.calls++
	return score
}

// Reset rewinds the schedule.
func (d *MockDetector) Reset() { d.calls = 0 }

func normalizedRMS(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, sample := range frame {
		v := float64(sample) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}
