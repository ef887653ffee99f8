package vad

import "testing"

func loudFrame(n int) []int16 {
	frame := make([]int16, n)
	for i := range frame {
		if i%2 == 0 {
			frame[i] = 3000
		} else {
			frame[i] = -3000
		}
	}
	return frame
}

func quietFrame(n int) []int16 {
	return make([]int16, n)
}

func TestEnterSpeechAfterConsecutiveFrames(t *testing.T) {
	c := NewEnergyClassifier()

	if c.Classify(loudFrame(2048)) {
		t.Fatalf("one loud frame must not enter speech")
	}
	if c.Classify(loudFrame(2048)) {
		t.Fatalf("two loud frames must not enter speech")
	}
	if !c.Classify(loudFrame(2048)) {
		t.Fatalf("three loud frames must enter speech")
	}
}

func TestExitSpeechRequiresSustainedSilence(t *testing.T) {
	c := NewEnergyClassifier()
	for i := 0; i < 3; i++ {
		c.Classify(loudFrame(2048))
	}

	// Seven quiet frames are not enough to leave speech.
	for i := 0; i < 7; i++ {
		if !c.Classify(quietFrame(2048)) {
			t.Fatalf("left speech too early at quiet frame %d", i+1)
		}
	}
	if c.Classify(quietFrame(2048)) {
		t.Fatalf("eighth quiet frame must exit speech")
	}
}

func TestQuietInterruptionResetsExitCount(t *testing.T) {
	c := NewEnergyClassifier()
	for i := 0; i < 3; i++ {
		c.Classify(loudFrame(2048))
	}

	for i := 0; i < 5; i++ {
		c.Classify(quietFrame(2048))
	}
	// A loud frame resets the silence run.
	if !c.Classify(loudFrame(2048)) {
		t.Fatalf("still in speech after interruption")
	}
	for i := 0; i < 7; i++ {
		if !c.Classify(quietFrame(2048)) {
			t.Fatalf("exit count must restart after interruption")
		}
	}
	if c.Classify(quietFrame(2048)) {
		t.Fatalf("expected exit after a fresh run of eight quiet frames")
	}
}

func TestLoudInterruptionResetsEnterCount(t *testing.T) {
	c := NewEnergyClassifier()
	c.Classify(loudFrame(2048))
	c.Classify(loudFrame(2048))
	c.Classify(quietFrame(2048))
	if c.Classify(loudFrame(2048)) {
		t.Fatalf("enter count must restart after a quiet frame")
	}
}

func TestResetClearsState(t *testing.T) {
	c := NewEnergyClassifier()
	for i := 0; i < 3; i++ {
		c.Classify(loudFrame(2048))
	}
	c.Reset()
	if c.Classify(loudFrame(2048)) {
		t.Fatalf("reset must leave the classifier in silence")
	}
}

func TestCustomThresholds(t *testing.T) {
	c := NewEnergyClassifier(
		WithThresholds(0.5, 0.4),
		WithHysteresis(1, 1),
	)
	// Amplitude 3000 is ~0.09 normalized, below the raised threshold.
	if c.Classify(loudFrame(2048)) {
		t.Fatalf("frame below raised threshold must stay silence")
	}
}

func TestEmptyFrameIsSilence(t *testing.T) {
	c := NewEnergyClassifier(WithHysteresis(1, 1))
	if c.Classify(nil) {
		t.Fatalf("empty frame must classify as silence")
	}
}
