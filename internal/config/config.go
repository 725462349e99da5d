// Package config loads service configuration from the environment,
// optionally layered over a TOML file named by CONFIG_FILE.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
)

// Configuration is the root configuration for the encounter service,
// the recorder and the viewer.
type Configuration struct {
	Service       ServiceConfig       `toml:"service"`
	STT           STTConfig           `toml:"stt"`
	Capture       CaptureConfig       `toml:"capture"`
	Queue         QueueConfig         `toml:"queue"`
	Chunks        ChunkConfig         `toml:"chunks"`
	Encounter     EncounterConfig     `toml:"encounter"`
	Notes         NotesConfig         `toml:"notes"`
	Kafka         KafkaConfig         `toml:"kafka"`
	Observability ObservabilityConfig `toml:"observability"`
	Recorder      RecorderConfig      `toml:"recorder"`
}

type ServiceConfig struct {
	Principal   string `toml:"principal"`
	HTTPPort    string `toml:"http_port"`
	GRPCPort    string `toml:"grpc_port"`
	MetricsPort string `toml:"metrics_port"`
}

type STTConfig struct {
	Provider      string        `toml:"provider"` // mock, google, openai
	LanguageCode  string        `toml:"language_code"`
	SampleRateHz  int           `toml:"sample_rate_hz"`
	AudioEncoding string        `toml:"audio_encoding"`
	Timeout       time.Duration `toml:"timeout"`
	OpenAIAPIKey  string        `toml:"-"`
	OpenAIModel   string        `toml:"openai_model"`
}

// CaptureConfig controls segment emission during a chunk recording.
type CaptureConfig struct {
	SegmentInterval  time.Duration `toml:"segment_interval"`
	MaxChunkDuration time.Duration `toml:"max_chunk_duration"`
	SampleRateHz     int           `toml:"sample_rate_hz"`
	Channels         int           `toml:"channels"`
	AudioDir         string        `toml:"audio_dir"`
}

// QueueConfig controls the sequential transcription queue.
type QueueConfig struct {
	MaxAttempts int           `toml:"max_attempts"`
	RetryDelay  time.Duration `toml:"retry_delay"`
	Buffer      int           `toml:"buffer"`
}

// ChunkConfig controls the multi-chunk recording flow.
type ChunkConfig struct {
	MaxChunks         int           `toml:"max_chunks"`
	DrainPollInterval time.Duration `toml:"drain_poll_interval"`
	DrainTimeout      time.Duration `toml:"drain_timeout"`
	FinalizeDelay     time.Duration `toml:"finalize_delay"`
	// SaveTimeout bounds a chunk save; keep it above the server's combine
	// timeout since a threshold-crossing save waits for the combine.
	SaveTimeout time.Duration `toml:"save_timeout"`
}

// EncounterConfig controls duration accumulation and auto-combine.
type EncounterConfig struct {
	AutoCombineThreshold time.Duration `toml:"auto_combine_threshold"`
	DBPath               string        `toml:"db_path"`
	CombineURL           string        `toml:"combine_url"`
	CombineTimeout       time.Duration `toml:"combine_timeout"`
}

type NotesConfig struct {
	Provider string `toml:"provider"` // none, openai
	Model    string `toml:"model"`
}

type KafkaConfig struct {
	Enabled        bool     `toml:"enabled"`
	Brokers        []string `toml:"brokers"`
	TopicPartial   string   `toml:"topic_partial"`
	TopicFinal     string   `toml:"topic_final"`
	TopicEncounter string   `toml:"topic_encounter"`
	Principal      string   `toml:"principal"`
}

type ObservabilityConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

type RecorderConfig struct {
	ServerURL string `toml:"server_url"`
}

// Default returns the built-in configuration.
func Default() *Configuration {
	return &Configuration{
		Service: ServiceConfig{
			Principal:   "svc-encounter-scribe",
			HTTPPort:    "8080",
			GRPCPort:    "50051",
			MetricsPort: "9090",
		},
		STT: STTConfig{
			Provider:      "mock",
			LanguageCode:  "en-US",
			SampleRateHz:  16000,
			AudioEncoding: "LINEAR16",
			Timeout:       60 * time.Second,
			OpenAIModel:   "whisper-1",
		},
		Capture: CaptureConfig{
			SegmentInterval:  30 * time.Second,
			MaxChunkDuration: 900 * time.Second,
			SampleRateHz:     16000,
			Channels:         1,
		},
		Queue: QueueConfig{
			MaxAttempts: 2,
			RetryDelay:  1500 * time.Millisecond,
			Buffer:      64,
		},
		Chunks: ChunkConfig{
			MaxChunks:         4,
			DrainPollInterval: 500 * time.Millisecond,
			DrainTimeout:      120 * time.Second,
			FinalizeDelay:     2 * time.Second,
			SaveTimeout:       90 * time.Second,
		},
		Encounter: EncounterConfig{
			AutoCombineThreshold: 7200 * time.Second,
			DBPath:               "encounters.db",
			CombineTimeout:       60 * time.Second,
		},
		Notes: NotesConfig{
			Provider: "none",
			Model:    "gpt-4o-mini",
		},
		Kafka: KafkaConfig{
			TopicPartial:   "encounter.transcript.live",
			TopicFinal:     "encounter.transcript.chunk",
			TopicEncounter: "encounter.events",
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
		Recorder: RecorderConfig{
			ServerURL: "http://localhost:8080",
		},
	}
}

// Load builds the configuration from defaults, the optional CONFIG_FILE
// and then environment overrides.
func Load() *Configuration {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Ignoring config file")
		}
	}

	applyEnv(cfg)
	return cfg
}

// LoadFile decodes a TOML file over cfg. Keys absent from the file keep
// their current values.
func LoadFile(path string, cfg *Configuration) error {
	_, err := toml.DecodeFile(path, cfg)
	return err
}

func applyEnv(cfg *Configuration) {
	cfg.Service.Principal = envOrDefault("SERVICE_PRINCIPAL", cfg.Service.Principal)
	cfg.Service.HTTPPort = envOrDefault("HTTP_PORT", cfg.Service.HTTPPort)
	cfg.Service.GRPCPort = envOrDefault("GRPC_PORT", cfg.Service.GRPCPort)
	cfg.Service.MetricsPort = envOrDefault("METRICS_PORT", cfg.Service.MetricsPort)

	cfg.STT.Provider = envOrDefault("STT_PROVIDER", cfg.STT.Provider)
	cfg.STT.LanguageCode = envOrDefault("STT_LANGUAGE_CODE", cfg.STT.LanguageCode)
	cfg.STT.SampleRateHz = envOrDefaultInt("STT_SAMPLE_RATE_HZ", cfg.STT.SampleRateHz)
	cfg.STT.AudioEncoding = envOrDefault("STT_AUDIO_ENCODING", cfg.STT.AudioEncoding)
	cfg.STT.Timeout = envOrDefaultDuration("STT_TIMEOUT", cfg.STT.Timeout)
	cfg.STT.OpenAIAPIKey = envOrDefault("OPENAI_API_KEY", cfg.STT.OpenAIAPIKey)
	cfg.STT.OpenAIModel = envOrDefault("STT_OPENAI_MODEL", cfg.STT.OpenAIModel)

	cfg.Capture.SegmentInterval = envOrDefaultDuration("CAPTURE_SEGMENT_INTERVAL", cfg.Capture.SegmentInterval)
	cfg.Capture.MaxChunkDuration = envOrDefaultDuration("CAPTURE_MAX_CHUNK_DURATION", cfg.Capture.MaxChunkDuration)
	cfg.Capture.SampleRateHz = envOrDefaultInt("CAPTURE_SAMPLE_RATE_HZ", cfg.Capture.SampleRateHz)
	cfg.Capture.Channels = envOrDefaultInt("CAPTURE_CHANNELS", cfg.Capture.Channels)
	cfg.Capture.AudioDir = envOrDefault("CAPTURE_AUDIO_DIR", cfg.Capture.AudioDir)

	cfg.Queue.MaxAttempts = envOrDefaultInt("QUEUE_MAX_ATTEMPTS", cfg.Queue.MaxAttempts)
	cfg.Queue.RetryDelay = envOrDefaultDuration("QUEUE_RETRY_DELAY", cfg.Queue.RetryDelay)
	cfg.Queue.Buffer = envOrDefaultInt("QUEUE_BUFFER", cfg.Queue.Buffer)

	cfg.Chunks.MaxChunks = envOrDefaultInt("CHUNK_MAX_CHUNKS", cfg.Chunks.MaxChunks)
	cfg.Chunks.DrainPollInterval = envOrDefaultDuration("CHUNK_DRAIN_POLL_INTERVAL", cfg.Chunks.DrainPollInterval)
	cfg.Chunks.DrainTimeout = envOrDefaultDuration("CHUNK_DRAIN_TIMEOUT", cfg.Chunks.DrainTimeout)
	cfg.Chunks.FinalizeDelay = envOrDefaultDuration("CHUNK_FINALIZE_DELAY", cfg.Chunks.FinalizeDelay)
	cfg.Chunks.SaveTimeout = envOrDefaultDuration("CHUNK_SAVE_TIMEOUT", cfg.Chunks.SaveTimeout)

	cfg.Encounter.AutoCombineThreshold = envOrDefaultDuration("ENCOUNTER_AUTO_COMBINE_THRESHOLD", cfg.Encounter.AutoCombineThreshold)
	cfg.Encounter.DBPath = envOrDefault("ENCOUNTER_DB_PATH", cfg.Encounter.DBPath)
	cfg.Encounter.CombineURL = envOrDefault("COMBINE_URL", cfg.Encounter.CombineURL)
	cfg.Encounter.CombineTimeout = envOrDefaultDuration("COMBINE_TIMEOUT", cfg.Encounter.CombineTimeout)

	cfg.Notes.Provider = envOrDefault("NOTES_PROVIDER", cfg.Notes.Provider)
	cfg.Notes.Model = envOrDefault("NOTES_MODEL", cfg.Notes.Model)

	cfg.Kafka.Enabled = envOrDefaultBool("KAFKA_ENABLED", cfg.Kafka.Enabled)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
	}
	cfg.Kafka.TopicPartial = envOrDefault("KAFKA_TOPIC_PARTIAL", cfg.Kafka.TopicPartial)
	cfg.Kafka.TopicFinal = envOrDefault("KAFKA_TOPIC_FINAL", cfg.Kafka.TopicFinal)
	cfg.Kafka.TopicEncounter = envOrDefault("KAFKA_TOPIC_ENCOUNTER", cfg.Kafka.TopicEncounter)
	cfg.Kafka.Principal = envOrDefault("KAFKA_PRINCIPAL", cfg.Kafka.Principal)
	if cfg.Kafka.Principal == "" {
		cfg.Kafka.Principal = cfg.Service.Principal
	}

	cfg.Observability.LogLevel = envOrDefault("LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.LogFormat = envOrDefault("LOG_FORMAT", cfg.Observability.LogFormat)

	cfg.Recorder.ServerURL = envOrDefault("SCRIBE_SERVER_URL", cfg.Recorder.ServerURL)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
