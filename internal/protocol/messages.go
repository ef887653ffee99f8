package protocol

import "time"

// AudioFrame represents PCM audio data streamed from capture devices.
// PCM is little-endian 16-bit mono samples.
type AudioFrame struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// Samples decodes the little-endian PCM payload into int16 samples.
func (f *AudioFrame) Samples() []int16 {
	samples := make([]int16, len(f.PCM)/2)
	for i := range samples {
		samples[i] = int16(f.PCM[2*i]) | int16(f.PCM[2*i+1])<<8
	}
	return samples
}

// EncodeSamples packs int16 samples into a little-endian PCM payload.
func EncodeSamples(samples []int16) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		pcm[2*i] = byte(s)
		pcm[2*i+1] = byte(uint16(s) >> 8)
	}
	return pcm
}

// SessionStatus announces listening-state transitions on the bus so UIs and
// downstream consumers can track when the engine is capturing.
type SessionStatus struct {
	NodeID    string    `json:"node_id"`
	SessionID string    `json:"session_id"`
	State     string    `json:"state"` // idle, listening
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Utterance is a finalized transcript broadcast on the bus.
type Utterance struct {
	NodeID    string    `json:"node_id"`
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Language  string    `json:"language"`
	Samples   int       `json:"samples"`
	Duration  float64   `json:"duration_seconds"`
	Words     int       `json:"words"`
	Chunks    int       `json:"chunks"`
	Timestamp time.Time `json:"timestamp"`
}

// NodeAnnouncement advertises a capture node and its listening capabilities.
type NodeAnnouncement struct {
	NodeID      string            `json:"node_id"`
	Role        string            `json:"role"`
	WakePhrase  string            `json:"wake_phrase"`
	Language    string            `json:"language"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	AnnouncedAt time.Time         `json:"announced_at"`
}

// NodeHeartbeat keeps an announced node alive in the registry.
type NodeHeartbeat struct {
	NodeID    string    `json:"node_id"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectAudioFramePrefix = "audio.frame"
	SubjectSessionStatus    = "listen.session.status"
	SubjectUtteranceFinal   = "listen.utterance.final"
	SubjectNodeAnnounce     = "listen.node.announce"
	SubjectNodeHeartbeat    = "listen.node.heartbeat"
)
