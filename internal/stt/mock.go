package stt

import (
	"context"
	"fmt"

	"github.com/loqalabs/loqa-listen/internal/engine"
)

var _ engine.Recognizer = (*MockRecognizer)(nil)

// MockRecognizer returns a synthetic segment describing the request. Useful
// for wiring tests and development without a model.
type MockRecognizer struct{}

// NewMockRecognizer returns a MockRecognizer.
func NewMockRecognizer() *MockRecognizer { return &MockRecognizer{} }

func (m *MockRecognizer) Transcribe(_ context.Context, samples []int16, language string) ([]string, error) {
	return []string{fmt.Sprintf("[mock lang=%s samples=%d]", language, len(samples))}, nil
}
