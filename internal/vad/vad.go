// Package vad provides voice activity classification for session frames.
// The built-in classifier is a pure-Go RMS detector with hysteresis; model
// based classifiers plug in behind the same interface.
package vad

import (
	"math"

	"github.com/loqalabs/loqa-listen/internal/engine"
)

var _ engine.VoiceClassifier = (*EnergyClassifier)(nil)

// EnergyClassifier classifies frames as speech or silence from RMS energy.
// Hysteresis (separate enter/exit thresholds plus consecutive-frame counts)
// keeps the classification from flickering at the boundary.
type EnergyClassifier struct {
	speechThreshold  float64 // normalized RMS level to start speech
	silenceThreshold float64 // normalized RMS level to end speech
	speechFrames     int     // consecutive speech frames needed to enter
	silenceFrames    int     // consecutive silence frames needed to exit

	inSpeech     bool
	speechCount  int
	silenceCount int
}

// Option customizes an EnergyClassifier.
type Option func(*EnergyClassifier)

// WithThresholds overrides the normalized (0..1) enter and exit RMS levels.
func WithThresholds(speech, silence float64) Option {
	return func(c *EnergyClassifier) {
		c.speechThreshold = speech
		c.silenceThreshold = silence
	}
}

// WithHysteresis overrides the consecutive-frame counts required to enter
// and exit the speech state.
func WithHysteresis(speechFrames, silenceFrames int) Option {
	return func(c *EnergyClassifier) {
		c.speechFrames = speechFrames
		c.silenceFrames = silenceFrames
	}
}

// NewEnergyClassifier returns a classifier tuned for 16 kHz frames: enter
// speech at normalized RMS 0.015 after 3 frames, leave below 0.008 after 8.
func NewEnergyClassifier(opts ...Option) *EnergyClassifier {
	c := &EnergyClassifier{
		speechThreshold:  0.015,
		silenceThreshold: 0.008,
		speechFrames:     3,
		silenceFrames:    8,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify reports whether frame is considered speech.
func (c *EnergyClassifier) Classify(frame []int16) bool {
	level := normalizedRMS(frame)

	if c.inSpeech {
		if level < c.silenceThreshold {
			c.silenceCount++
			c.speechCount = 0
			if c.silenceCount >= c.silenceFrames {
				c.inSpeech = false
				c.silenceCount = 0
			}
		} else {
			c.silenceCount = 0
		}
	} else {
		if level >= c.speechThreshold {
			c.speechCount++
			c.silenceCount = 0
			if c.speechCount >= c.speechFrames {
				c.inSpeech = true
				c.speechCount = 0
			}
		} else {
			c.speechCount = 0
		}
	}

	return c.inSpeech
}

// Reset clears internal state for a new session.
func (c *EnergyClassifier) Reset() {
	c.inSpeech = false
	c.speechCount = 0
	c.silenceCount = 0
}

// normalizedRMS returns the frame RMS scaled into 0..1.
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
