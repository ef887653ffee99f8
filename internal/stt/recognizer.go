// Package stt provides speech recognizer backends for the listening engine.
// Four modes are supported: mock (development), exec (whisper-cli
// subprocess), server (whisper-server HTTP endpoint) and native (in-process
// whisper.cpp bindings).
package stt

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/loqalabs/loqa-listen/internal/config"
	"github.com/loqalabs/loqa-listen/internal/engine"
)

// NewRecognizer builds the recognizer selected by cfg.Mode. A positive
// cfg.TimeoutMS bounds every Transcribe call with a context deadline.
func NewRecognizer(cfg config.STTConfig) (engine.Recognizer, error) {
	rec, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.TimeoutMS > 0 {
		return &timeoutRecognizer{inner: rec, timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond}, nil
	}
	return rec, nil
}

func newBackend(cfg config.STTConfig) (engine.Recognizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockRecognizer(), nil
	case "exec":
		return NewExecRecognizer(cfg)
	case "server":
		return NewServerRecognizer(cfg)
	case "native":
		return NewNativeRecognizer(cfg)
	default:
		return nil, fmt.Errorf("stt: unknown mode %q", cfg.Mode)
	}
}

// timeoutRecognizer caps the duration of each recognition call. A deadline
// hit surfaces as a Transcribe error, which the engine already treats as
// "this chunk produced no text".
type timeoutRecognizer struct {
	inner   engine.Recognizer
	timeout time.Duration
}

func (r *timeoutRecognizer) Transcribe(ctx context.Context, samples []int16, language string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.inner.Transcribe(ctx, samples, language)
}

// Close forwards to the wrapped backend so model resources are still
// released through the wrapper.
func (r *timeoutRecognizer) Close() error {
	if closer, ok := r.inner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
