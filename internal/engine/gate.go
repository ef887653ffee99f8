package engine

import "math"

// ActivityGate decides whether a chunk carries enough signal energy to be
// worth a recognizer call. It is deliberately permissive: its only job is to
// skip obviously empty audio, real speech/silence classification belongs to
// the VAD collaborator. A false negative loses speech, a false positive costs
// one wasted recognizer call, so every threshold errs on the side of passing.
type ActivityGate struct {
	// MinRMS is the root-mean-square energy (on the ±32768 PCM scale) below
	// which a chunk counts as near-silence.
	MinRMS float64

	// ActivityFloor is the absolute sample value above which a sample counts
	// as active.
	ActivityFloor int16

	// MinActivityRatio is the minimum fraction of active samples required.
	MinActivityRatio float64
}

// DefaultGate returns the gate thresholds used in production: RMS 50,
// activity floor 200, 0.5% active samples.
func DefaultGate() ActivityGate {
	return ActivityGate{
		MinRMS:           50,
		ActivityFloor:    200,
		MinActivityRatio: 0.005,
	}
}

// HasSubstantialSpeech reports whether chunk should be sent for recognition.
// An empty chunk never passes.
func (g ActivityGate) HasSubstantialSpeech(chunk []int16) bool {
	if len(chunk) == 0 {
		return false
	}

	var sumSquares float64
	active := 0
	for _, sample := range chunk {
		v := float64(sample)
		sumSquares += v * v
		if sample > g.ActivityFloor || sample < -g.ActivityFloor {
			active++
		}
	}

	rms := math.Sqrt(sumSquares / float64(len(chunk)))
	if rms < g.MinRMS {
		return false
	}

	ratio := float64(active) / float64(len(chunk))
	return ratio >= g.MinActivityRatio
}
