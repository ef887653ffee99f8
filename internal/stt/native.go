// This file contains the native recognizer backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH.

package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/loqalabs/loqa-listen/internal/config"
	"github.com/loqalabs/loqa-listen/internal/engine"
)

var _ engine.Recognizer = (*NativeRecognizer)(nil)

// NativeRecognizer runs whisper.cpp inference in process. The model is
// loaded once; each Transcribe call creates a fresh whisper context because
// contexts are not safe for reuse across concurrent calls.
type NativeRecognizer struct {
	model whisperlib.Model
	mu    sync.Mutex
}

// NewNativeRecognizer loads the ggml model at cfg.ModelPath.
func NewNativeRecognizer(cfg config.STTConfig) (*NativeRecognizer, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("stt: model_path must be set when mode=native")
	}
	model, err := whisperlib.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("stt: load model %q: %w", cfg.ModelPath, err)
	}
	return &NativeRecognizer{model: model}, nil
}

// Close releases the whisper model.
func (r *NativeRecognizer) Close() error {
	if r.model != nil {
		return r.model.Close()
	}
	return nil
}

// Transcribe runs inference over samples and returns the recognized
// segments in order.
func (r *NativeRecognizer) Transcribe(ctx context.Context, samples []int16, language string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	wctx, err := r.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("stt: create whisper context: %w", err)
	}
	if language != "" {
		if err := wctx.SetLanguage(language); err != nil {
			slog.Warn("stt: failed to set language, using model default",
				slog.String("language", language), slog.String("error", err.Error()))
		}
	}

	if err := wctx.Process(samplesToFloat32(samples), nil, nil, nil); err != nil {
		return nil, fmt.Errorf("stt: process audio: %w", err)
	}

	var segments []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("stt: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			segments = append(segments, text)
		}
	}
	return segments, nil
}
