package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type NodeConfig struct {
	ID                string `yaml:"id"`
	Role              string `yaml:"role"`
	HeartbeatInterval int    `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeout  int    `yaml:"heartbeat_timeout_ms"`
}

type TranscriptStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxUtterances int    `yaml:"max_utterances"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// ListenerConfig carries the segmentation parameters of the session engine
// plus the service-level knobs (frame queue depth, status verbosity).
type ListenerConfig struct {
	Enabled             bool     `yaml:"enabled"`
	Quiet               bool     `yaml:"quiet"`
	FrameQueue          int      `yaml:"frame_queue"`
	Language            string   `yaml:"language"`
	SampleRate          int      `yaml:"sample_rate"`
	ChunkSamples        int      `yaml:"chunk_samples"`
	MinSpeechSamples    int      `yaml:"min_speech_samples"`
	TypicalFrameSamples int      `yaml:"typical_frame_samples"`
	SilenceFrameLimit   int      `yaml:"silence_frame_limit"`
	MaxSessionSamples   int      `yaml:"max_session_samples"`
	FinalMinSamples     int      `yaml:"final_min_samples"`
	GateMinRMS          float64  `yaml:"gate_min_rms"`
	GateActivityFloor   int      `yaml:"gate_activity_floor"`
	GateActivityRatio   float64  `yaml:"gate_activity_ratio"`
	ExtraHallucinations []string `yaml:"extra_hallucinations"`
}

type WakeConfig struct {
	Mode        string  `yaml:"mode"` // energy, mock
	Phrase      string  `yaml:"phrase"`
	Threshold   float64 `yaml:"threshold"`
	BurstFrames int     `yaml:"burst_frames"`
}

type VADConfig struct {
	SpeechThreshold  float64 `yaml:"speech_threshold"`
	SilenceThreshold float64 `yaml:"silence_threshold"`
	SpeechFrames     int     `yaml:"speech_frames"`
	SilenceFrames    int     `yaml:"silence_frames"`
}

type STTConfig struct {
	Mode       string `yaml:"mode"` // mock, exec, server, native
	Command    string `yaml:"command"`
	ModelPath  string `yaml:"model_path"`
	ServerURL  string `yaml:"server_url"`
	SampleRate int    `yaml:"sample_rate"`
	GPULayers  int    `yaml:"gpu_layers"`
	TimeoutMS  int    `yaml:"timeout_ms"`
}

type Config struct {
	RuntimeName     string                `yaml:"runtime_name"`
	Environment     string                `yaml:"environment"`
	HTTP            HTTPConfig            `yaml:"http"`
	Telemetry       TelemetryConfig       `yaml:"telemetry"`
	Bus             BusConfig             `yaml:"bus"`
	Node            NodeConfig            `yaml:"node"`
	TranscriptStore TranscriptStoreConfig `yaml:"transcript_store"`
	Listener        ListenerConfig        `yaml:"listener"`
	Wake            WakeConfig            `yaml:"wake"`
	VAD             VADConfig             `yaml:"vad"`
	STT             STTConfig             `yaml:"stt"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-listen",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8081,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPInsecure:   true,
			PrometheusBind: ":9092",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Node: NodeConfig{
			ID:                "listen-node-1",
			Role:              "listener",
			HeartbeatInterval: 2000,
			HeartbeatTimeout:  6000,
		},
		TranscriptStore: TranscriptStoreConfig{
			Path:          "./data/listen-transcripts.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxUtterances: 10000,
		},
		Listener: ListenerConfig{
			Enabled:             true,
			FrameQueue:          64,
			Language:            "auto",
			SampleRate:          16000,
			ChunkSamples:        48000,
			MinSpeechSamples:    8000,
			TypicalFrameSamples: 2048,
			SilenceFrameLimit:   30,
			MaxSessionSamples:   960000,
			FinalMinSamples:     8000,
			GateMinRMS:          50,
			GateActivityFloor:   200,
			GateActivityRatio:   0.005,
		},
		Wake: WakeConfig{
			Mode:        "energy",
			Phrase:      "hey listen",
			Threshold:   0.02,
			BurstFrames: 3,
		},
		VAD: VADConfig{
			SpeechThreshold:  0.015,
			SilenceThreshold: 0.008,
			SpeechFrames:     3,
			SilenceFrames:    8,
		},
		STT: STTConfig{
			Mode:       "mock",
			SampleRate: 16000,
			GPULayers:  0,
			TimeoutMS:  45000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LISTEN_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LISTEN_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LISTEN_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LISTEN_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LISTEN_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LISTEN_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LISTEN_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LISTEN_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "LISTEN_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LISTEN_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "LISTEN_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "LISTEN_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LISTEN_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LISTEN_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LISTEN_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LISTEN_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LISTEN_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Node.ID, "LISTEN_NODE_ID")
	overrideString(&cfg.Node.Role, "LISTEN_NODE_ROLE")
	overrideInt(&cfg.Node.HeartbeatInterval, "LISTEN_NODE_HEARTBEAT_INTERVAL_MS")
	overrideInt(&cfg.Node.HeartbeatTimeout, "LISTEN_NODE_HEARTBEAT_TIMEOUT_MS")
	overrideString(&cfg.TranscriptStore.Path, "LISTEN_TRANSCRIPT_STORE_PATH")
	overrideString(&cfg.TranscriptStore.RetentionMode, "LISTEN_TRANSCRIPT_STORE_RETENTION_MODE")
	overrideInt(&cfg.TranscriptStore.RetentionDays, "LISTEN_TRANSCRIPT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.TranscriptStore.MaxUtterances, "LISTEN_TRANSCRIPT_STORE_MAX_UTTERANCES")
	overrideBool(&cfg.TranscriptStore.VacuumOnStart, "LISTEN_TRANSCRIPT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.Listener.Enabled, "LISTEN_LISTENER_ENABLED")
	overrideBool(&cfg.Listener.Quiet, "LISTEN_LISTENER_QUIET")
	overrideInt(&cfg.Listener.FrameQueue, "LISTEN_LISTENER_FRAME_QUEUE")
	overrideString(&cfg.Listener.Language, "LISTEN_LISTENER_LANGUAGE")
	overrideInt(&cfg.Listener.SampleRate, "LISTEN_LISTENER_SAMPLE_RATE")
	overrideInt(&cfg.Listener.ChunkSamples, "LISTEN_LISTENER_CHUNK_SAMPLES")
	overrideInt(&cfg.Listener.MinSpeechSamples, "LISTEN_LISTENER_MIN_SPEECH_SAMPLES")
	overrideInt(&cfg.Listener.TypicalFrameSamples, "LISTEN_LISTENER_TYPICAL_FRAME_SAMPLES")
	overrideInt(&cfg.Listener.SilenceFrameLimit, "LISTEN_LISTENER_SILENCE_FRAME_LIMIT")
	overrideInt(&cfg.Listener.MaxSessionSamples, "LISTEN_LISTENER_MAX_SESSION_SAMPLES")
	overrideInt(&cfg.Listener.FinalMinSamples, "LISTEN_LISTENER_FINAL_MIN_SAMPLES")
	overrideFloat(&cfg.Listener.GateMinRMS, "LISTEN_LISTENER_GATE_MIN_RMS")
	overrideInt(&cfg.Listener.GateActivityFloor, "LISTEN_LISTENER_GATE_ACTIVITY_FLOOR")
	overrideFloat(&cfg.Listener.GateActivityRatio, "LISTEN_LISTENER_GATE_ACTIVITY_RATIO")
	overrideString(&cfg.Wake.Mode, "LISTEN_WAKE_MODE")
	overrideString(&cfg.Wake.Phrase, "LISTEN_WAKE_PHRASE")
	overrideFloat(&cfg.Wake.Threshold, "LISTEN_WAKE_THRESHOLD")
	overrideInt(&cfg.Wake.BurstFrames, "LISTEN_WAKE_BURST_FRAMES")
	overrideFloat(&cfg.VAD.SpeechThreshold, "LISTEN_VAD_SPEECH_THRESHOLD")
	overrideFloat(&cfg.VAD.SilenceThreshold, "LISTEN_VAD_SILENCE_THRESHOLD")
	overrideInt(&cfg.VAD.SpeechFrames, "LISTEN_VAD_SPEECH_FRAMES")
	overrideInt(&cfg.VAD.SilenceFrames, "LISTEN_VAD_SILENCE_FRAMES")
	overrideString(&cfg.STT.Mode, "LISTEN_STT_MODE")
	overrideString(&cfg.STT.Command, "LISTEN_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "LISTEN_STT_MODEL_PATH")
	overrideString(&cfg.STT.ServerURL, "LISTEN_STT_SERVER_URL")
	overrideInt(&cfg.STT.SampleRate, "LISTEN_STT_SAMPLE_RATE")
	overrideInt(&cfg.STT.GPULayers, "LISTEN_STT_GPU_LAYERS")
	overrideInt(&cfg.STT.TimeoutMS, "LISTEN_STT_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else if len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when embedded mode is disabled")
	}
	if cfg.Node.ID == "" {
		return errors.New("node.id must not be empty")
	}
	if cfg.Node.HeartbeatInterval <= 0 {
		return errors.New("node.heartbeat_interval_ms must be positive")
	}
	if cfg.Node.HeartbeatTimeout <= cfg.Node.HeartbeatInterval {
		return errors.New("node.heartbeat_timeout_ms must be greater than heartbeat interval")
	}
	if cfg.TranscriptStore.Path == "" {
		return errors.New("transcript_store.path must not be empty")
	}
	switch cfg.TranscriptStore.RetentionMode {
	case "ephemeral", "session", "persistent":
	default:
		return errors.New("transcript_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.TranscriptStore.RetentionDays < 0 {
		return errors.New("transcript_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Listener.Enabled {
		if cfg.Listener.FrameQueue <= 0 {
			return errors.New("listener.frame_queue must be >= 1")
		}
		if cfg.Listener.SampleRate <= 0 {
			return errors.New("listener.sample_rate must be positive")
		}
		if cfg.Listener.ChunkSamples <= 0 {
			return errors.New("listener.chunk_samples must be positive")
		}
		if cfg.Listener.MaxSessionSamples < cfg.Listener.ChunkSamples {
			return errors.New("listener.max_session_samples must be >= listener.chunk_samples")
		}
		if cfg.Listener.SilenceFrameLimit <= 0 {
			return errors.New("listener.silence_frame_limit must be positive")
		}
	}
	switch cfg.Wake.Mode {
	case "energy", "mock":
	default:
		return errors.New("wake.mode must be one of energy|mock")
	}
	switch cfg.STT.Mode {
	case "mock", "exec", "server", "native":
	default:
		return errors.New("stt.mode must be one of mock|exec|server|native")
	}
	if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
		return errors.New("stt.command must be set when mode=exec")
	}
	if cfg.STT.Mode == "server" && cfg.STT.ServerURL == "" {
		return errors.New("stt.server_url must be set when mode=server")
	}
	if cfg.STT.Mode == "native" && cfg.STT.ModelPath == "" {
		return errors.New("stt.model_path must be set when mode=native")
	}
	if cfg.STT.SampleRate <= 0 {
		return errors.New("stt.sample_rate must be positive")
	}
	if cfg.STT.TimeoutMS < 0 {
		return errors.New("stt.timeout_ms must be >= 0")
	}
	return nil
}
