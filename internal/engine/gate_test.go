package engine

import "testing"

func TestGateRejectsEmptyChunk(t *testing.T) {
	if DefaultGate().HasSubstantialSpeech(nil) {
		t.Fatalf("empty chunk must not pass the gate")
	}
	if DefaultGate().HasSubstantialSpeech([]int16{}) {
		t.Fatalf("zero-length chunk must not pass the gate")
	}
}

func TestGateRejectsNearSilence(t *testing.T) {
	// Constant amplitude 10 gives RMS 10, below the 50 floor.
	chunk := make([]int16, 48000)
	for i := range chunk {
		chunk[i] = 10
	}
	if DefaultGate().HasSubstantialSpeech(chunk) {
		t.Fatalf("near-silent chunk must not pass the gate")
	}
}

func TestGateRejectsLowActivityRatio(t *testing.T) {
	// A handful of very loud samples push RMS past the floor while the
	// active fraction stays below 0.5%.
	chunk := make([]int16, 48000)
	for i := 0; i < 100; i++ {
		chunk[i] = 30000
	}
	if DefaultGate().HasSubstantialSpeech(chunk) {
		t.Fatalf("sparse spikes must not pass the gate")
	}
}

func TestGateAcceptsSpeechLikeChunk(t *testing.T) {
	chunk := make([]int16, 48000)
	for i := range chunk {
		if i%2 == 0 {
			chunk[i] = 1000
		} else {
			chunk[i] = -1000
		}
	}
	if !DefaultGate().HasSubstantialSpeech(chunk) {
		t.Fatalf("speech-like chunk must pass the gate")
	}
}

func TestGateNegativeSamplesCountAsActive(t *testing.T) {
	chunk := make([]int16, 48000)
	for i := range chunk {
		chunk[i] = -1000
	}
	if !DefaultGate().HasSubstantialSpeech(chunk) {
		t.Fatalf("negative amplitude must count toward activity")
	}
}
