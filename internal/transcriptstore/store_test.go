package transcriptstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-listen/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.TranscriptStoreConfig{RetentionMode: "ephemeral"}
	s, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Ensure(); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	// Writes are silently dropped.
	if err := s.Append(ctx, Record{SessionID: "s1", Text: "hello"}); err != nil {
		t.Fatalf("ephemeral append: %v", err)
	}
	records, err := s.ListRecent(ctx, 10)
	if err != nil || records != nil {
		t.Fatalf("ephemeral store must return nothing, got %v (%v)", records, err)
	}
}

func TestAppendAndQuery(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.TranscriptStoreConfig{Path: filepath.Join(tmp, "transcripts.db"), RetentionMode: "session"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open transcript store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	rec := Record{
		NodeID:    "node-1",
		SessionID: "session-123",
		Text:      "turn on the lights",
		Language:  "en",
		Samples:   48000,
		Duration:  3.0,
		Words:     4,
		Chunks:    1,
	}
	if err := s.Append(context.Background(), rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	records, err := s.ListSession(context.Background(), "session-123", 10)
	if err != nil {
		t.Fatalf("list session: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	got := records[0]
	if got.Text != rec.Text || got.Words != 4 || got.Duration != 3.0 || got.Chunks != 1 {
		t.Fatalf("unexpected record: %+v", got)
	}

	recent, err := s.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected 1 recent record, got %d", len(recent))
	}
}

func TestPruneByDaysAndCount(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.TranscriptStoreConfig{
		Path:          filepath.Join(tmp, "transcripts.db"),
		RetentionMode: "persistent",
		RetentionDays: 1,
		MaxUtterances: 1,
	}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open transcript store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	s.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := s.Append(context.Background(), Record{SessionID: "old", Text: "old text"}); err != nil {
		t.Fatalf("append old: %v", err)
	}

	s.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := s.Append(context.Background(), Record{SessionID: "new", Text: "new text"}); err != nil {
		t.Fatalf("append new: %v", err)
	}
	if err := s.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	old, err := s.ListSession(context.Background(), "old", 10)
	if err != nil {
		t.Fatalf("list old: %v", err)
	}
	if len(old) != 0 {
		t.Fatalf("expected old utterance pruned")
	}
	recent, err := s.ListSession(context.Background(), "new", 10)
	if err != nil {
		t.Fatalf("list new: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected new utterance kept, got %d", len(recent))
	}
}
