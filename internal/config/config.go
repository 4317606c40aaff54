package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AudioConfig stores capture settings for the microphone pipeline.
type AudioConfig struct {
	// Input selects the capture backend: "stdin" for a raw little-endian
	// 16-bit PCM stream, otherwise a path to a WAV file replayed in real
	// time.
	Input      string  `yaml:"input"`
	SampleRate int     `yaml:"sample_rate"`
	FrameSize  int     `yaml:"frame_size"`
	Gain       float64 `yaml:"gain"`
}

// CallConfig stores the call transport and room API settings.
type CallConfig struct {
	WSURL           string `yaml:"ws_url"`
	APIURL          string `yaml:"api_url"`
	FlushIntervalMS int    `yaml:"flush_interval_ms"`
	// RoomID joins an existing room on startup; empty creates a new one.
	RoomID   string `yaml:"room_id"`
	RoomName string `yaml:"room_name"`
}

// AnalysisConfig stores the spoof/transcription service settings.
type AnalysisConfig struct {
	WSURL           string  `yaml:"ws_url"`
	FlushIntervalMS int     `yaml:"flush_interval_ms"`
	SpoofWindow     int     `yaml:"spoof_window"`
	SpoofThreshold  float64 `yaml:"spoof_threshold"`
	SpoofQuorum     int     `yaml:"spoof_quorum"`
}

// AIConfig stores the conversational risk classifier settings. When
// ServerURL is set the gateway backend is used; otherwise OpenAIAPIKey
// selects the direct chat-completions backend.
type AIConfig struct {
	ServerURL        string `yaml:"server_url"`
	Token            string `yaml:"token"`
	OpenAIAPIKey     string `yaml:"openai_api_key"`
	OpenAIModel      string `yaml:"openai_model"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	HistoryCacheSize int    `yaml:"history_cache_size"`
}

// Config stores the application configuration.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	UserID   string         `yaml:"user_id"`
	Audio    AudioConfig    `yaml:"audio"`
	Call     CallConfig     `yaml:"call"`
	Analysis AnalysisConfig `yaml:"analysis"`
	AI       AIConfig       `yaml:"ai"`
}

// Capture defaults: 48 kHz mono frames of 4096 samples with a 0.4 input
// gain.
const (
	DefaultSampleRate = 48000
	DefaultFrameSize  = 4096
	DefaultGain       = 0.4

	DefaultCallFlushIntervalMS     = 2000
	DefaultAnalysisFlushIntervalMS = 5000

	DefaultSpoofWindow    = 10
	DefaultSpoofThreshold = 0.5
	DefaultSpoofQuorum    = 4

	DefaultAITimeoutSeconds = 30
	DefaultHistoryCacheSize = 100
)

// LoadConfig loads the configuration from the given file path and applies
// defaults for unset fields.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills unset numeric fields with the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = DefaultSampleRate
	}
	if c.Audio.FrameSize <= 0 {
		c.Audio.FrameSize = DefaultFrameSize
	}
	if c.Audio.Gain <= 0 {
		c.Audio.Gain = DefaultGain
	}
	if c.Call.FlushIntervalMS <= 0 {
		c.Call.FlushIntervalMS = DefaultCallFlushIntervalMS
	}
	if c.Analysis.FlushIntervalMS <= 0 {
		c.Analysis.FlushIntervalMS = DefaultAnalysisFlushIntervalMS
	}
	if c.Analysis.SpoofWindow <= 0 {
		c.Analysis.SpoofWindow = DefaultSpoofWindow
	}
	if c.Analysis.SpoofThreshold <= 0 {
		c.Analysis.SpoofThreshold = DefaultSpoofThreshold
	}
	if c.Analysis.SpoofQuorum <= 0 {
		c.Analysis.SpoofQuorum = DefaultSpoofQuorum
	}
	if c.AI.TimeoutSeconds <= 0 {
		c.AI.TimeoutSeconds = DefaultAITimeoutSeconds
	}
	if c.AI.HistoryCacheSize <= 0 {
		c.AI.HistoryCacheSize = DefaultHistoryCacheSize
	}
}
