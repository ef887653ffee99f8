// Package runtime assembles the loqa-listen process: telemetry, the bus
// (embedded or external), the transcript store, the capture-node registry,
// the listener service and the HTTP surface.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-listen/internal/bus"
	"github.com/loqalabs/loqa-listen/internal/capability"
	"github.com/loqalabs/loqa-listen/internal/config"
	"github.com/loqalabs/loqa-listen/internal/engine"
	"github.com/loqalabs/loqa-listen/internal/listener"
	"github.com/loqalabs/loqa-listen/internal/natsserver"
	"github.com/loqalabs/loqa-listen/internal/protocol"
	"github.com/loqalabs/loqa-listen/internal/stt"
	"github.com/loqalabs/loqa-listen/internal/transcriptstore"
	"github.com/loqalabs/loqa-listen/internal/vad"
	"github.com/loqalabs/loqa-listen/internal/wake"
	"golang.org/x/sync/errgroup"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	tracerClose func(context.Context) error
	ready       atomic.Bool

	busClient *bus.Client
	store     *transcriptstore.Store
	registry  *capability.Registry
	listener  *listener.Service
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings the process up and blocks until ctx is cancelled, then tears
// everything down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded NATS server: %w", err)
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.busClient = busClient
	defer busClient.Close()

	store, err := transcriptstore.Open(ctx, r.cfg.TranscriptStore, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open transcript store: %w", err)
	}
	r.store = store
	defer store.Close()

	recognizer, err := stt.NewRecognizer(r.cfg.STT)
	if err != nil {
		return fmt.Errorf("failed to build recognizer: %w", err)
	}
	if closer, ok := recognizer.(io.Closer); ok {
		defer closer.Close()
	}

	svc, err := listener.NewService(r.cfg.Listener, r.cfg.Node.ID, busClient, store,
		r.buildDetector(), r.buildClassifier(), recognizer, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build listener: %w", err)
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}
	r.listener = svc
	defer svc.Close()

	announce := protocol.NodeAnnouncement{
		WakePhrase: r.cfg.Wake.Phrase,
		Language:   r.cfg.Listener.Language,
		Attributes: map[string]string{"stt_mode": r.cfg.STT.Mode},
	}
	registry, err := capability.NewRegistry(ctx, r.cfg.Node, announce, busClient, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start capability registry: %w", err)
	}
	r.registry = registry
	defer registry.Close()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port),
		Handler:           r.buildMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	var metricsServer *http.Server
	if metricsHandler != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricsHandler)
		metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if metricsServer != nil {
		group.Go(func() error {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
			}
		}
		return nil
	})

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", httpServer.Addr),
		slog.String("node", r.cfg.Node.ID))

	err = group.Wait()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if r.tracerClose != nil {
		if terr := r.tracerClose(shutdownCtx); terr != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", terr.Error()))
		}
	}

	return err
}

func (r *Runtime) buildDetector() engine.WakeDetector {
	if r.cfg.Wake.Mode == "mock" {
		return &wake.MockDetector{Scores: []float64{1}}
	}
	return wake.NewEnergyDetector(r.cfg.Wake.Threshold, r.cfg.Wake.BurstFrames)
}

func (r *Runtime) buildClassifier() engine.VoiceClassifier {
	return vad.NewEnergyClassifier(
		vad.WithThresholds(r.cfg.VAD.SpeechThreshold, r.cfg.VAD.SilenceThreshold),
		vad.WithHysteresis(r.cfg.VAD.SpeechFrames, r.cfg.VAD.SilenceFrames),
	)
}

func (r *Runtime) buildMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/v1/transcripts", r.handleTranscripts)
	mux.HandleFunc("/v1/nodes", r.handleNodes)
	return mux
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busClient.Healthy() && r.listener.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

// handleTranscripts serves recent utterances, optionally scoped to one
// session via ?session= and capped via ?limit=.
func (r *Runtime) handleTranscripts(w http.ResponseWriter, req *http.Request) {
	limit := 50
	if raw := req.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	var (
		records []transcriptstore.Record
		err     error
	)
	if session := req.URL.Query().Get("session"); session != "" {
		records, err = r.store.ListSession(req.Context(), session, limit)
	} else {
		records, err = r.store.ListRecent(req.Context(), limit)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(records)
}

func (r *Runtime) handleNodes(w http.ResponseWriter, _ *http.Request) {
	nodes := r.registry.Query(nil)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(nodes)
}
