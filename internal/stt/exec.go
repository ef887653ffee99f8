package stt

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/loqalabs/loqa-listen/internal/config"
	"github.com/loqalabs/loqa-listen/internal/engine"
	shellwords "github.com/mattn/go-shellwords"
)

var _ engine.Recognizer = (*execRecognizer)(nil)

// execRecognizer shells out to a whisper-cli binary per chunk. The chunk is
// written to a temporary WAV file, the command's stdout is parsed into text
// segments, and whisper's own diagnostic noise is dropped.
type execRecognizer struct {
	cmd []string
	cfg config.STTConfig
	mu  sync.Mutex
}

// NewExecRecognizer parses cfg.Command with shell quoting rules and returns
// a recognizer that invokes it per chunk.
func NewExecRecognizer(cfg config.STTConfig) (engine.Recognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	return &execRecognizer{cmd: args, cfg: cfg}, nil
}

func (r *execRecognizer) Transcribe(ctx context.Context, samples []int16, language string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.CreateTemp(os.TempDir(), "listen_chunk_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := writeWav(file, samples, r.cfg.SampleRate); err != nil {
		return nil, err
	}

	args := append([]string{}, r.cmd[1:]...)
	if language != "" {
		args = append(args, "-l", language)
	}
	if r.cfg.ModelPath != "" {
		args = append(args, "-m", r.cfg.ModelPath)
	}
	if r.cfg.GPULayers == 0 {
		args = append(args, "--no-gpu")
	} else if r.cfg.GPULayers > 0 {
		args = append(args, "-ngl", strconv.Itoa(r.cfg.GPULayers))
	}
	// Accuracy settings carried over from the whisper-cli defaults this
	// pipeline was tuned against.
	args = append(args,
		"--best-of", "5",
		"--beam-size", "5",
		"--no-speech-thold", "0.3",
		"--word-thold", "0.005",
		"-f", file.Name(),
	)

	command := exec.CommandContext(ctx, r.cmd[0], args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("stt command failed: %w: %s", err, stderr.String())
	}

	return parseCLIOutput(stdout.String()), nil
}

// noisePrefixes identify whisper-cli diagnostic lines that must never reach
// the transcript.
var noisePrefixes = []string{
	"system_info:", "whisper_print_timings:", "main:", "ggml:", "whisper:",
	"memcpy(", "AVX", "whisper_init_", "whisper_model_", "whisper_backend_",
	"whisper_full_", "load time", "fallbacks", "mel time", "sample time",
	"encode time", "decode time", "batchd time", "prompt time", "total time",
	"auto-detected language:", "processing '", "threads", "processors",
	"beams", "lang =", "task =", "timestamps =",
}

// parseCLIOutput extracts transcript segments from whisper-cli stdout.
// Timestamped lines ("[00:00.000 --> 00:03.000] text") contribute the text
// after the bracket; any other line survives unless it matches a known
// diagnostic prefix.
func parseCLIOutput(output string) []string {
	var segments []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line[0] == '[' {
			if rb := strings.IndexByte(line, ']'); rb >= 0 && rb+1 < len(line) {
				if text := strings.TrimSpace(line[rb+1:]); text != "" {
					segments = append(segments, text)
				}
				continue
			}
		}
		if isNoise(line) {
			continue
		}
		segments = append(segments, line)
	}
	return segments
}

func isNoise(line string) bool {
	for _, prefix := range noisePrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
