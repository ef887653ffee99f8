// Package listener connects the bus to the segmentation engine. Frames
// arriving on audio.frame.* are decoded and pushed into a bounded queue; a
// single worker goroutine drains the queue and drives the engine, so a slow
// recognizer call can never stall frame delivery.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-listen/internal/bus"
	"github.com/loqalabs/loqa-listen/internal/config"
	"github.com/loqalabs/loqa-listen/internal/engine"
	"github.com/loqalabs/loqa-listen/internal/protocol"
	"github.com/loqalabs/loqa-listen/internal/transcriptstore"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type frameItem struct {
	sessionID string
	samples   []int16
	final     bool
}

type Service struct {
	cfg    config.ListenerConfig
	nodeID string
	bus    *bus.Client
	store  *transcriptstore.Store
	eng    *engine.Engine
	log    *slog.Logger

	frames chan frameItem
	sub    *nats.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup
	ready  bool

	// session ID of the most recently enqueued frame, read only by the
	// worker goroutine when stamping outbound messages.
	mu             sync.Mutex
	currentSession string

	framesTotal      metric.Int64Counter
	framesDropped    metric.Int64Counter
	utterancesTotal  metric.Int64Counter
	chunksAccepted   metric.Int64Counter
	chunksSkipped    metric.Int64Counter
	fragmentsDropped metric.Int64Counter
	recognizerErrors metric.Int64Counter
}

// NewService wires the engine's collaborators together. The detector, vad and
// recognizer are injected so tests and alternate backends share the wiring.
func NewService(cfg config.ListenerConfig, nodeID string, busClient *bus.Client, store *transcriptstore.Store,
	detector engine.WakeDetector, vad engine.VoiceClassifier, rec engine.Recognizer, log *slog.Logger) (*Service, error) {

	s := &Service{
		cfg:    cfg,
		nodeID: nodeID,
		bus:    busClient,
		store:  store,
		log:    log.With(slog.String("component", "listener")),
		frames: make(chan frameItem, cfg.FrameQueue),
	}
	s.initMetrics()

	engCfg := engine.Config{
		Language:          cfg.Language,
		SampleRate:        cfg.SampleRate,
		ChunkSize:         cfg.ChunkSamples,
		MinSpeechSamples:  cfg.MinSpeechSamples,
		TypicalFrameSize:  cfg.TypicalFrameSamples,
		SilenceFrameLimit: cfg.SilenceFrameLimit,
		MaxSessionSamples: cfg.MaxSessionSamples,
		FinalMinSamples:   cfg.FinalMinSamples,
	}
	gate := engine.ActivityGate{
		MinRMS:           cfg.GateMinRMS,
		ActivityFloor:    int16(cfg.GateActivityFloor),
		MinActivityRatio: cfg.GateActivityRatio,
	}
	eng, err := engine.New(engCfg, detector, vad, rec,
		engine.WithLogger(s.log),
		engine.WithGate(gate),
		engine.WithFilter(engine.NewHallucinationFilter(cfg.ExtraHallucinations...)),
		engine.WithNotifier(s.handleEvent),
	)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	s.eng = eng
	return s, nil
}

func (s *Service) initMetrics() {
	meter := otel.Meter("github.com/loqalabs/loqa-listen/listener")
	s.framesTotal, _ = meter.Int64Counter("loqa.listen.frames", metric.WithDescription("Audio frames received"))
	s.framesDropped, _ = meter.Int64Counter("loqa.listen.frames_dropped", metric.WithDescription("Audio frames dropped because the queue was full"))
	s.utterancesTotal, _ = meter.Int64Counter("loqa.listen.utterances", metric.WithDescription("Finalized utterances"))
	s.chunksAccepted, _ = meter.Int64Counter("loqa.listen.chunks_accepted", metric.WithDescription("Chunks sent to the recognizer"))
	s.chunksSkipped, _ = meter.Int64Counter("loqa.listen.chunks_skipped", metric.WithDescription("Chunks skipped by the activity gate"))
	s.fragmentsDropped, _ = meter.Int64Counter("loqa.listen.fragments_filtered", metric.WithDescription("Recognizer fragments dropped as hallucinations"))
	s.recognizerErrors, _ = meter.Int64Counter("loqa.listen.recognition_failures", metric.WithDescription("Recognizer calls that returned an error"))
}

// Start subscribes to the audio frame subjects and launches the worker.
func (s *Service) Start(parent context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel

	subject := protocol.SubjectAudioFramePrefix + ".>"
	sub, err := s.bus.Conn().Subscribe(subject, s.handleFrame)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe audio frames: %w", err)
	}
	s.sub = sub

	s.wg.Add(1)
	go s.run(ctx)

	s.ready = true
	s.log.Info("listener started", slog.String("subject", subject), slog.Int("queue", s.cfg.FrameQueue))
	return nil
}

// Close drains the subscription, finalizes any active session and stops the
// worker.
func (s *Service) Close() {
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || s.ready
}

// handleFrame runs on the NATS delivery goroutine. It must never block, so a
// full queue drops the frame and counts it instead of applying backpressure.
func (s *Service) handleFrame(msg *nats.Msg) {
	var frame protocol.AudioFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		s.log.Warn("failed to decode audio frame", slog.String("error", err.Error()))
		return
	}
	if frame.SampleRate != 0 && frame.SampleRate != s.cfg.SampleRate {
		s.log.Warn("unexpected sample rate, dropping frame",
			slog.Int("got", frame.SampleRate), slog.Int("want", s.cfg.SampleRate))
		return
	}
	s.framesTotal.Add(context.Background(), 1)

	item := frameItem{sessionID: frame.SessionID, samples: frame.Samples(), final: frame.Final}
	select {
	case s.frames <- item:
	default:
		s.framesDropped.Add(context.Background(), 1)
		s.log.Warn("frame queue full, dropping frame", slog.String("session", frame.SessionID))
	}
}

// run is the single goroutine that owns the engine.
func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			if utt := s.eng.Stop(context.Background()); utt != nil {
				s.emit(context.Background(), utt)
			}
			return
		case item := <-s.frames:
			s.setSession(item.sessionID)
			if utt := s.eng.ProcessFrame(ctx, item.samples); utt != nil {
				s.emit(ctx, utt)
			}
			if item.final {
				if utt := s.eng.Stop(ctx); utt != nil {
					s.emit(ctx, utt)
				}
			}
		}
	}
}

func (s *Service) setSession(id string) {
	s.mu.Lock()
	s.currentSession = id
	s.mu.Unlock()
}

func (s *Service) session() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSession
}

// emit publishes a finalized utterance and persists it. Failures on either
// path are logged and do not affect the session cycle.
func (s *Service) emit(ctx context.Context, utt *engine.Utterance) {
	s.utterancesTotal.Add(ctx, 1)

	msg := protocol.Utterance{
		NodeID:    s.nodeID,
		SessionID: s.session(),
		Text:      utt.Text,
		Language:  s.cfg.Language,
		Samples:   utt.Samples,
		Duration:  utt.Duration,
		Words:     utt.Words,
		Chunks:    utt.Chunks,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("failed to encode utterance", slog.String("error", err.Error()))
	} else if err := s.bus.Conn().Publish(protocol.SubjectUtteranceFinal, payload); err != nil {
		s.log.Error("failed to publish utterance", slog.String("error", err.Error()))
	}

	if s.store != nil {
		rec := transcriptstore.Record{
			NodeID:    msg.NodeID,
			SessionID: msg.SessionID,
			Text:      msg.Text,
			Language:  msg.Language,
			Samples:   msg.Samples,
			Duration:  msg.Duration,
			Words:     msg.Words,
			Chunks:    msg.Chunks,
		}
		if err := s.store.Append(ctx, rec); err != nil {
			s.log.Error("failed to persist utterance", slog.String("error", err.Error()))
		}
	}

	s.log.Info("utterance finalized",
		slog.String("session", msg.SessionID),
		slog.Int("words", msg.Words),
		slog.Float64("duration", msg.Duration))
}

// handleEvent receives engine notifications on the worker goroutine. Chunk
// decisions feed counters; state transitions additionally publish a session
// status unless quiet mode suppresses them.
func (s *Service) handleEvent(evt engine.Event) {
	ctx := context.Background()
	switch evt.Kind {
	case engine.EventChunkAccepted:
		s.chunksAccepted.Add(ctx, 1)
		return
	case engine.EventChunkSkipped:
		s.chunksSkipped.Add(ctx, 1)
		return
	case engine.EventFragmentFiltered:
		s.fragmentsDropped.Add(ctx, 1)
		s.log.Debug(evt.Message)
		return
	case engine.EventRecognitionFailed:
		s.recognizerErrors.Add(ctx, 1)
		return
	}

	// Finalizing events fire before the engine resets, so the state the
	// status should carry is the one the session is moving to.
	state := engine.StateIdle
	if evt.Kind == engine.EventActivated {
		state = engine.StateListening
	}
	if !s.cfg.Quiet {
		s.publishStatus(state, evt)
	}
	s.log.Info(evt.Message, slog.String("state", state.String()))
}

func (s *Service) publishStatus(state engine.State, evt engine.Event) {
	status := protocol.SessionStatus{
		NodeID:    s.nodeID,
		SessionID: s.session(),
		State:     state.String(),
		Reason:    evt.Message,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(status)
	if err != nil {
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectSessionStatus, payload); err != nil {
		s.log.Warn("failed to publish session status", slog.String("error", err.Error()))
	}
}
