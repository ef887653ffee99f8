// Package engine implements the streaming segmentation and transcript
// assembly core: a single-owner session state machine that consumes fixed
// size PCM frames, waits for a wake phrase, chunks buffered audio for an
// external recognizer, filters known recognizer artifacts and assembles the
// accepted fragments into one normalized utterance.
package engine

import (
	"context"
	"fmt"
	"log/slog"
)

// WakeDetector ingests frames while the engine is idle and reports a graded
// detection signal. A score above zero activates a session. Implementations
// may be stateful; Reset is called when a session ends.
type WakeDetector interface {
	Detect(frame []int16) float64
	Reset()
}

// VoiceClassifier ingests frames during an active session and classifies
// each as speech or silence. Implementations may be stateful.
type VoiceClassifier interface {
	Classify(frame []int16) bool
	Reset()
}

// Recognizer transcribes a PCM buffer under a language hint and returns zero
// or more raw text segments. Every returned segment must pass through the
// hallucination filter before use.
type Recognizer interface {
	Transcribe(ctx context.Context, samples []int16, language string) ([]string, error)
}

// State identifies the session state machine position.
type State int

const (
	// StateIdle means the engine is feeding frames to the wake detector.
	StateIdle State = iota
	// StateListening means an active session is buffering and transcribing.
	StateListening
)

func (s State) String() string {
	if s == StateListening {
		return "listening"
	}
	return "idle"
}

// EventKind classifies notifier events. Events are observational: they feed
// status publications and metrics, never control flow.
type EventKind int

const (
	EventActivated EventKind = iota
	EventSilence
	EventTimeout
	EventStopped
	EventChunkAccepted
	EventChunkSkipped
	EventFragmentFiltered
	EventRecognitionFailed
)

// Event is a human-readable progress notification emitted on state
// transitions and chunk decisions.
type Event struct {
	Kind    EventKind
	Message string
}

// Notifier receives engine events. It is called synchronously from the
// processing goroutine and must not block.
type Notifier func(Event)

// Config carries the segmentation parameters. All sizes are in samples of
// 16 kHz mono 16-bit PCM unless stated otherwise.
type Config struct {
	// Language is the recognizer language hint, "auto" by default.
	Language string

	// SampleRate converts sample counts into durations.
	SampleRate int

	// ChunkSize is the fixed recognition window, 48,000 samples (3.0 s).
	ChunkSize int

	// MinSpeechSamples is the warm-up amount of speech required before
	// chunking starts, 8,000 samples (0.5 s).
	MinSpeechSamples int

	// TypicalFrameSize approximates the frame source block size and converts
	// MinSpeechSamples into a qualifying speech-frame count.
	TypicalFrameSize int

	// SilenceFrameLimit is the count of consecutive silence-classified frames
	// that finalizes the session (~2.0 s at ~65 ms per frame).
	SilenceFrameLimit int

	// MaxSessionSamples is the hard buffer ceiling; reaching it force
	// finalizes the session regardless of silence. 960,000 samples (60 s).
	MaxSessionSamples int

	// FinalMinSamples is the smallest remainder worth considering during
	// finalization, 8,000 samples (0.5 s).
	FinalMinSamples int
}

// DefaultConfig returns the production segmentation parameters.
func DefaultConfig() Config {
	return Config{
		Language:          "auto",
		SampleRate:        16000,
		ChunkSize:         48000,
		MinSpeechSamples:  8000,
		TypicalFrameSize:  2048,
		SilenceFrameLimit: 30,
		MaxSessionSamples: 960000,
		FinalMinSamples:   8000,
	}
}

// Engine is the session state machine. It owns all mutable session state and
// must be driven from a single goroutine; a recognizer call blocks that
// goroutine, which is why the caller feeds frames through a bounded queue
// rather than invoking ProcessFrame from the capture path.
type Engine struct {
	cfg      Config
	log      *slog.Logger
	detector WakeDetector
	vad      VoiceClassifier
	rec      Recognizer
	gate     ActivityGate
	filter   *HallucinationFilter
	notify   Notifier

	state         State
	buffer        []int16
	silenceFrames int
	speechFrames  int
	recorded      int
	chunkIndex    int
	started       bool
	transcript    string
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithNotifier sets the event notifier. Defaults to a no-op.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notify = n }
}

// WithGate overrides the default activity gate thresholds.
func WithGate(g ActivityGate) Option {
	return func(e *Engine) { e.gate = g }
}

// WithFilter overrides the default hallucination filter.
func WithFilter(f *HallucinationFilter) Option {
	return func(e *Engine) { e.filter = f }
}

// New builds an Engine from a validated Config and its three collaborators.
func New(cfg Config, detector WakeDetector, vad VoiceClassifier, rec Recognizer, opts ...Option) (*Engine, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("engine: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("engine: chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.TypicalFrameSize <= 0 {
		return nil, fmt.Errorf("engine: typical frame size must be positive, got %d", cfg.TypicalFrameSize)
	}
	if cfg.SilenceFrameLimit <= 0 {
		return nil, fmt.Errorf("engine: silence frame limit must be positive, got %d", cfg.SilenceFrameLimit)
	}
	if cfg.MaxSessionSamples < cfg.ChunkSize {
		return nil, fmt.Errorf("engine: session ceiling %d below chunk size %d", cfg.MaxSessionSamples, cfg.ChunkSize)
	}
	if detector == nil || vad == nil || rec == nil {
		return nil, fmt.Errorf("engine: detector, vad and recognizer are required")
	}
	if cfg.Language == "" {
		cfg.Language = "auto"
	}

	e := &Engine{
		cfg:      cfg,
		log:      slog.Default(),
		detector: detector,
		vad:      vad,
		rec:      rec,
		gate:     DefaultGate(),
		filter:   NewHallucinationFilter(),
		notify:   func(Event) {},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// State returns the current state machine position.
func (e *Engine) State() State { return e.state }

// ProcessFrame advances the state machine by one frame. While idle the frame
// goes to the wake detector; while listening it is buffered and classified.
// A non-nil Utterance is returned when this frame finalized a session that
// produced a transcript.
func (e *Engine) ProcessFrame(ctx context.Context, frame []int16) *Utterance {
	if e.state == StateIdle {
		if e.detector.Detect(frame) > 0 {
			e.beginSession()
		}
		return nil
	}

	e.buffer = append(e.buffer, frame...)
	e.recorded += len(frame)

	if e.vad.Classify(frame) {
		e.silenceFrames = 0
		e.speechFrames++
	} else {
		e.silenceFrames++
	}

	// Safety valve: never listen past the buffer ceiling, silent or not.
	// Checked before chunking so an oversized frame cannot smuggle the
	// session past the limit.
	if len(e.buffer) >= e.cfg.MaxSessionSamples {
		e.notify(Event{Kind: EventTimeout, Message: "maximum session length reached, finalizing session"})
		return e.finalize(ctx)
	}

	warmup := e.cfg.MinSpeechSamples / e.cfg.TypicalFrameSize
	if e.speechFrames > warmup || len(e.buffer) >= e.cfg.ChunkSize {
		e.processReady(ctx)
	}

	if e.silenceFrames >= e.cfg.SilenceFrameLimit {
		e.notify(Event{Kind: EventSilence, Message: "silence detected, finalizing session"})
		return e.finalize(ctx)
	}

	return nil
}

// Stop finalizes the active session on an external stop request. It returns
// the assembled utterance, or nil when idle or when no transcript started.
func (e *Engine) Stop(ctx context.Context) *Utterance {
	if e.state != StateListening {
		return nil
	}
	e.notify(Event{Kind: EventStopped, Message: "stop requested, finalizing session"})
	return e.finalize(ctx)
}

func (e *Engine) beginSession() {
	e.buffer = e.buffer[:0]
	e.silenceFrames = 0
	e.speechFrames = 0
	e.recorded = 0
	e.chunkIndex = 0
	e.started = false
	e.transcript = ""
	e.state = StateListening
	e.notify(Event{Kind: EventActivated, Message: "wake phrase detected, session started"})
}

// processReady cuts and transcribes full chunks from the buffer front.
// Skipped chunks retain 1/8 of the chunk so no content is silently lost;
// accepted chunks retain 1/32 for the first and 1/64 afterwards, shrinking
// the window re-fed to the recognizer once warm context exists.
func (e *Engine) processReady(ctx context.Context) {
	for len(e.buffer) >= e.cfg.ChunkSize {
		chunk := e.buffer[:e.cfg.ChunkSize]

		if !e.gate.HasSubstantialSpeech(chunk) {
			e.notify(Event{Kind: EventChunkSkipped, Message: "chunk skipped, insufficient activity"})
			e.dropFront(e.cfg.ChunkSize - e.cfg.ChunkSize/8)
			continue
		}

		e.transcribeInto(ctx, chunk)

		e.chunkIndex++
		overlap := e.cfg.ChunkSize / 32
		if e.chunkIndex >= 2 {
			overlap = e.cfg.ChunkSize / 64
		}
		e.notify(Event{Kind: EventChunkAccepted, Message: fmt.Sprintf("chunk %d processed, keeping %d samples overlap", e.chunkIndex, overlap)})
		e.dropFront(e.cfg.ChunkSize - overlap)
	}
}

// transcribeInto runs the recognizer over samples and appends every fragment
// that survives the hallucination filter. A recognizer failure is logged and
// treated as empty output; buffer bookkeeping is the caller's concern.
func (e *Engine) transcribeInto(ctx context.Context, samples []int16) {
	segments, err := e.rec.Transcribe(ctx, samples, e.cfg.Language)
	if err != nil {
		e.log.Warn("recognition failed", slog.String("error", err.Error()))
		e.notify(Event{Kind: EventRecognitionFailed, Message: "recognition failed, dropping chunk text"})
		return
	}
	for _, segment := range segments {
		text, ok := e.filter.Apply(segment)
		if !ok {
			if segment != "" {
				e.notify(Event{Kind: EventFragmentFiltered, Message: "filtered hallucination: " + segment})
			}
			continue
		}
		e.started = true
		e.transcript += text + " "
	}
}

// dropFront removes n samples from the buffer front in place.
func (e *Engine) dropFront(n int) {
	if n >= len(e.buffer) {
		e.buffer = e.buffer[:0]
		return
	}
	copy(e.buffer, e.buffer[n:])
	e.buffer = e.buffer[:len(e.buffer)-n]
}

// finalize transcribes a large-enough remainder, assembles the utterance and
// resets the session. Remainders shorter than half a chunk are discarded as
// too unreliable to transcribe; remainders below FinalMinSamples are never
// considered at all.
func (e *Engine) finalize(ctx context.Context) *Utterance {
	if len(e.buffer) > 0 && e.started && len(e.buffer) >= e.cfg.FinalMinSamples {
		if len(e.buffer) >= e.cfg.ChunkSize/2 {
			e.transcribeInto(ctx, e.buffer)
		}
	}

	var utt *Utterance
	if e.started {
		text := NormalizeTranscript(e.transcript)
		utt = &Utterance{
			Text:     text,
			Samples:  e.recorded,
			Duration: float64(e.recorded) / float64(e.cfg.SampleRate),
			Words:    WordCount(text),
			Chunks:   e.chunkIndex,
		}
	}

	e.buffer = e.buffer[:0]
	e.silenceFrames = 0
	e.speechFrames = 0
	e.recorded = 0
	e.chunkIndex = 0
	e.started = false
	e.transcript = ""
	e.state = StateIdle
	e.detector.Reset()
	e.vad.Reset()

	return utt
}
