// loqa-replay feeds a WAV file onto the bus as paced audio frames, emulating
// a capture node. Useful for exercising a running loqa-listend against
// recorded audio.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-audio/wav"
	"github.com/loqalabs/loqa-listen/internal/protocol"
	"github.com/nats-io/nats.go"
)

func main() {
	var (
		filePath  string
		servers   string
		sessionID string
		frameSize int
		realtime  bool
	)

	flag.StringVar(&filePath, "file", "", "Path to a 16 kHz mono 16-bit WAV file")
	flag.StringVar(&servers, "servers", nats.DefaultURL, "NATS server URL(s)")
	flag.StringVar(&sessionID, "session", fmt.Sprintf("replay-%d", time.Now().Unix()), "Session ID stamped on frames")
	flag.IntVar(&frameSize, "frame", 2048, "Samples per frame")
	flag.BoolVar(&realtime, "realtime", true, "Pace frames at capture speed")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if filePath == "" {
		logger.Error("missing required -file flag")
		os.Exit(1)
	}

	samples, sampleRate, err := readWav(filePath)
	if err != nil {
		logger.Error("failed to read wav", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("loaded audio",
		slog.String("file", filePath),
		slog.Int("samples", len(samples)),
		slog.Int("sample_rate", sampleRate))

	conn, err := nats.Connect(servers, nats.Name("loqa-replay"))
	if err != nil {
		logger.Error("failed to connect to nats", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer conn.Drain()

	subject := fmt.Sprintf("%s.%s", protocol.SubjectAudioFramePrefix, sessionID)
	frameInterval := time.Duration(frameSize) * time.Second / time.Duration(sampleRate)

	sequence := 0
	for offset := 0; offset < len(samples); offset += frameSize {
		end := offset + frameSize
		if end > len(samples) {
			end = len(samples)
		}
		frame := protocol.AudioFrame{
			SessionID:  sessionID,
			Sequence:   sequence,
			SampleRate: sampleRate,
			Channels:   1,
			PCM:        protocol.EncodeSamples(samples[offset:end]),
			Final:      end == len(samples),
		}
		payload, err := json.Marshal(frame)
		if err != nil {
			logger.Error("failed to encode frame", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := conn.Publish(subject, payload); err != nil {
			logger.Error("failed to publish frame", slog.String("error", err.Error()))
			os.Exit(1)
		}
		sequence++
		if realtime {
			time.Sleep(frameInterval)
		}
	}

	if err := conn.Flush(); err != nil {
		logger.Error("failed to flush", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("replay complete", slog.Int("frames", sequence), slog.String("session", sessionID))
}

// readWav decodes a PCM WAV file into int16 samples. Stereo input is
// downmixed by taking the first channel.
func readWav(path string) ([]int16, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	if buf.Format == nil {
		return nil, 0, fmt.Errorf("wav file has no format information")
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	samples := make([]int16, 0, len(buf.Data)/channels)
	for i := 0; i < len(buf.Data); i += channels {
		samples = append(samples, int16(buf.Data[i]))
	}
	return samples, buf.Format.SampleRate, nil
}
