package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/loqalabs/loqa-listen/internal/config"
	"github.com/loqalabs/loqa-listen/internal/engine"
)

var _ engine.Recognizer = (*serverRecognizer)(nil)

// serverRecognizer posts chunks to a whisper-server /inference endpoint as
// multipart WAV uploads.
type serverRecognizer struct {
	url    string
	cfg    config.STTConfig
	client *http.Client
}

// NewServerRecognizer returns a recognizer backed by the whisper-server HTTP
// API at cfg.ServerURL.
func NewServerRecognizer(cfg config.STTConfig) (engine.Recognizer, error) {
	if cfg.ServerURL == "" {
		return nil, errors.New("stt: server_url must be set when mode=server")
	}
	return &serverRecognizer{
		url:    cfg.ServerURL + "/inference",
		cfg:    cfg,
		client: &http.Client{},
	}, nil
}

func (r *serverRecognizer) Transcribe(ctx context.Context, samples []int16, language string) ([]string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("stt: create form file: %w", err)
	}
	if _, err := fw.Write(encodeWavBytes(samples, r.cfg.SampleRate)); err != nil {
		return nil, fmt.Errorf("stt: write wav data: %w", err)
	}
	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return nil, fmt.Errorf("stt: write language field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("stt: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, &body)
	if err != nil {
		return nil, fmt.Errorf("stt: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stt: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stt: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("stt: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("stt: parse JSON response: %w", err)
	}
	if result.Text == "" {
		return nil, nil
	}
	return []string{result.Text}, nil
}

// encodeWavBytes wraps samples in a RIFF/WAV container in memory, 16 kHz
// mono 16-bit unless sampleRate says otherwise.
func encodeWavBytes(samples []int16, sampleRate int) []byte {
	pcm := samplesToBytes(samples)
	byteRate := sampleRate * 2
	buf := make([]byte, 44+len(pcm))

	copy(buf[0:4], "RIFF")
	putUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	putUint32(buf[16:20], 16)
	putUint16(buf[20:22], 1) // PCM
	putUint16(buf[22:24], 1) // mono
	putUint32(buf[24:28], uint32(sampleRate))
	putUint32(buf[28:32], uint32(byteRate))
	putUint16(buf[32:34], 2)  // block align
	putUint16(buf[34:36], 16) // bits per sample
	copy(buf[36:40], "data")
	putUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[44:], pcm)

	return buf
}

func putUint16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
