package stt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/loqa-listen/internal/config"
)

func TestParseCLIOutputTimestampedLines(t *testing.T) {
	output := `
[00:00:00.000 --> 00:00:03.000]   Turn on the lights
[00:00:03.000 --> 00:00:05.500]   in the kitchen
`
	segments := parseCLIOutput(output)
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d: %v", len(segments), segments)
	}
	if segments[0] != "Turn on the lights" || segments[1] != "in the kitchen" {
		t.Fatalf("unexpected segments: %v", segments)
	}
}

func TestParseCLIOutputDropsDiagnostics(t *testing.T) {
	output := `whisper_init_from_file_with_params_no_state: loading model
system_info: n_threads = 4
main: processing audio
whisper_print_timings: total time = 1234 ms
hello from plain stdout
`
	segments := parseCLIOutput(output)
	if len(segments) != 1 || segments[0] != "hello from plain stdout" {
		t.Fatalf("unexpected segments: %v", segments)
	}
}

func TestParseCLIOutputEmptyInput(t *testing.T) {
	if segments := parseCLIOutput(""); len(segments) != 0 {
		t.Fatalf("expected no segments, got %v", segments)
	}
	if segments := parseCLIOutput("\n\n  \n"); len(segments) != 0 {
		t.Fatalf("expected no segments for blank lines, got %v", segments)
	}
}

func TestIsNoise(t *testing.T) {
	if !isNoise("system_info: n_threads = 4") {
		t.Fatalf("diagnostic line must be noise")
	}
	if isNoise("open the garage door") {
		t.Fatalf("speech line must not be noise")
	}
}

func TestEncodeWavBytesHeader(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767}
	data := encodeWavBytes(samples, 16000)

	if len(data) != 44+len(samples)*2 {
		t.Fatalf("unexpected container size %d", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE markers")
	}
	if string(data[36:40]) != "data" {
		t.Fatalf("missing data chunk marker")
	}
	// Sample rate field.
	rate := int(data[24]) | int(data[25])<<8 | int(data[26])<<16 | int(data[27])<<24
	if rate != 16000 {
		t.Fatalf("expected sample rate 16000, got %d", rate)
	}
	// First PCM sample after the header, little endian.
	if data[44] != 0 || data[45] != 0 {
		t.Fatalf("unexpected first sample bytes")
	}
	second := int16(uint16(data[46]) | uint16(data[47])<<8)
	if second != 1000 {
		t.Fatalf("expected second sample 1000, got %d", second)
	}
}

func TestSamplesToFloat32(t *testing.T) {
	out := samplesToFloat32([]int16{0, 16384, -32768})
	if out[0] != 0 {
		t.Fatalf("expected 0, got %v", out[0])
	}
	if out[1] != 0.5 {
		t.Fatalf("expected 0.5, got %v", out[1])
	}
	if out[2] != -1.0 {
		t.Fatalf("expected -1.0, got %v", out[2])
	}
}

func TestSamplesToBytesLittleEndian(t *testing.T) {
	out := samplesToBytes([]int16{0x0102, -2})
	if out[0] != 0x02 || out[1] != 0x01 {
		t.Fatalf("unexpected encoding of positive sample: %v", out[:2])
	}
	if out[2] != 0xFE || out[3] != 0xFF {
		t.Fatalf("unexpected encoding of negative sample: %v", out[2:4])
	}
}

func TestWriteWavRoundTripFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunk.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = int16(i % 100)
	}
	if err := writeWav(f, samples, 16000); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	f.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() < int64(len(samples)*2) {
		t.Fatalf("wav file too small: %d bytes", info.Size())
	}
}

func TestMockRecognizer(t *testing.T) {
	rec := NewMockRecognizer()
	segments, err := rec.Transcribe(context.Background(), make([]int16, 42), "en")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("expected one segment, got %d", len(segments))
	}
	if !strings.Contains(segments[0], "lang=en") || !strings.Contains(segments[0], "samples=42") {
		t.Fatalf("unexpected segment %q", segments[0])
	}
}

func TestServerRecognizer(t *testing.T) {
	var gotLanguage string
	var gotFile []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		mr, err := r.MultipartReader()
		if err != nil {
			t.Errorf("multipart reader: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Errorf("next part: %v", err)
				break
			}
			data, _ := io.ReadAll(part)
			switch part.FormName() {
			case "file":
				gotFile = data
			case "language":
				gotLanguage = string(data)
			}
			_ = part.Close()
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "hello from server"})
	}))
	defer server.Close()

	rec, err := NewServerRecognizer(config.STTConfig{Mode: "server", ServerURL: server.URL, SampleRate: 16000})
	if err != nil {
		t.Fatalf("new recognizer: %v", err)
	}
	segments, err := rec.Transcribe(context.Background(), make([]int16, 1600), "en")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if len(segments) != 1 || segments[0] != "hello from server" {
		t.Fatalf("unexpected segments %v", segments)
	}
	if gotLanguage != "en" {
		t.Fatalf("expected language field, got %q", gotLanguage)
	}
	if len(gotFile) != 44+1600*2 {
		t.Fatalf("unexpected wav upload size %d", len(gotFile))
	}
}

func TestServerRecognizerHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	rec, err := NewServerRecognizer(config.STTConfig{Mode: "server", ServerURL: server.URL, SampleRate: 16000})
	if err != nil {
		t.Fatalf("new recognizer: %v", err)
	}
	if _, err := rec.Transcribe(context.Background(), make([]int16, 16), "auto"); err == nil {
		t.Fatalf("expected error on HTTP 500")
	}
}

// blockingRecognizer never returns until its context ends.
type blockingRecognizer struct{}

func (blockingRecognizer) Transcribe(ctx context.Context, _ []int16, _ string) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestTimeoutBoundsTranscription(t *testing.T) {
	rec := &timeoutRecognizer{inner: blockingRecognizer{}, timeout: 10 * time.Millisecond}

	start := time.Now()
	_, err := rec.Transcribe(context.Background(), make([]int16, 16), "auto")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("timeout did not bound the call")
	}
}

func TestNewRecognizerAppliesTimeout(t *testing.T) {
	rec, err := NewRecognizer(config.STTConfig{Mode: "mock", TimeoutMS: 45000})
	if err != nil {
		t.Fatalf("new recognizer: %v", err)
	}
	if _, ok := rec.(*timeoutRecognizer); !ok {
		t.Fatalf("expected a timeout-wrapped recognizer, got %T", rec)
	}

	// The wrapper must not get in the way of normal output.
	segments, err := rec.Transcribe(context.Background(), make([]int16, 8), "en")
	if err != nil || len(segments) != 1 {
		t.Fatalf("unexpected result through wrapper: %v (%v)", segments, err)
	}

	plain, err := NewRecognizer(config.STTConfig{Mode: "mock"})
	if err != nil {
		t.Fatalf("new recognizer: %v", err)
	}
	if _, ok := plain.(*timeoutRecognizer); ok {
		t.Fatalf("zero timeout must not wrap the recognizer")
	}
}

func TestNewRecognizerModes(t *testing.T) {
	if _, err := NewRecognizer(config.STTConfig{Mode: "mock"}); err != nil {
		t.Fatalf("mock mode: %v", err)
	}
	if _, err := NewRecognizer(config.STTConfig{Mode: "exec", Command: "whisper-cli --flash-attn"}); err != nil {
		t.Fatalf("exec mode: %v", err)
	}
	if _, err := NewRecognizer(config.STTConfig{Mode: "exec", Command: ""}); err == nil {
		t.Fatalf("empty exec command must fail")
	}
	if _, err := NewRecognizer(config.STTConfig{Mode: "telepathy"}); err == nil {
		t.Fatalf("unknown mode must fail")
	}
}
