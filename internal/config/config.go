package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete recorder configuration
type Config struct {
	Logging    LoggingConfig    `toml:"logging" yaml:"logging"`
	Audio      AudioConfig      `toml:"audio" yaml:"audio"`
	Capture    CaptureConfig    `toml:"capture" yaml:"capture"`
	Encoder    EncoderConfig    `toml:"encoder" yaml:"encoder"`
	Recognizer RecognizerConfig `toml:"recognizer" yaml:"recognizer"`
	Memo       MemoConfig       `toml:"memo" yaml:"memo"`
	Index      IndexConfig      `toml:"index" yaml:"index"`
	Server     ServerConfig     `toml:"server" yaml:"server"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `toml:"level" yaml:"level"`
	Format     string `toml:"format" yaml:"format"`
	File       string `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
}

// AudioConfig describes the PCM format shared by capture, recognition and encoding
type AudioConfig struct {
	SampleRate int `toml:"sample_rate" yaml:"sample_rate"`
	Channels   int `toml:"channels" yaml:"channels"`
	FrameMs    int `toml:"frame_ms" yaml:"frame_ms"` // recognizer frame length
}

// CaptureConfig selects the microphone backend
type CaptureConfig struct {
	Device          string `toml:"device" yaml:"device"` // ffmpeg, arecord, portaudio
	InputFormat     string `toml:"input_format" yaml:"input_format"`
	InputDevice     string `toml:"input_device" yaml:"input_device"`
	FFmpegPath      string `toml:"ffmpeg_path" yaml:"ffmpeg_path"`
	ArecordPath     string `toml:"arecord_path" yaml:"arecord_path"`
	ReadBufferBytes int    `toml:"read_buffer_bytes" yaml:"read_buffer_bytes"`
	MaxPendingBytes int    `toml:"max_pending_bytes" yaml:"max_pending_bytes"`
}

// EncoderConfig selects how segments are encoded on write
type EncoderConfig struct {
	Type       string `toml:"type" yaml:"type"` // ffmpeg, raw
	FFmpegPath string `toml:"ffmpeg_path" yaml:"ffmpeg_path"`
	Bitrate    string `toml:"bitrate" yaml:"bitrate"`
}

// RecognizerConfig selects and tunes the speech recognizer
type RecognizerConfig struct {
	Backend   string `toml:"backend" yaml:"backend"` // vosk-server, vosk, openai
	ModelPath string `toml:"model_path" yaml:"model_path"`
	ServerURL string `toml:"server_url" yaml:"server_url"`

	OpenAIAPIKey   string `toml:"openai_api_key" yaml:"openai_api_key"`
	OpenAIModel    string `toml:"openai_model" yaml:"openai_model"`
	Language       string `toml:"language" yaml:"language"`
	TimeoutSeconds int    `toml:"timeout_seconds" yaml:"timeout_seconds"`

	VADThreshold   float64 `toml:"vad_threshold" yaml:"vad_threshold"` // RMS, 0..1
	SilenceMs      int     `toml:"silence_ms" yaml:"silence_ms"`
	MinSpeechMs    int     `toml:"min_speech_ms" yaml:"min_speech_ms"`
	MaxUtteranceMs int     `toml:"max_utterance_ms" yaml:"max_utterance_ms"`
}

// MemoConfig tunes the memo.html preamble
type MemoConfig struct {
	PlaybackRate    float64 `toml:"playback_rate" yaml:"playback_rate"`
	PlaybackDelayMs int     `toml:"playback_delay_ms" yaml:"playback_delay_ms"`
}

// IndexConfig controls the SQLite session index kept next to the memo
type IndexConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	File    string `toml:"file" yaml:"file"`
}

// ServerConfig controls the optional memo viewer
type ServerConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Address string `toml:"address" yaml:"address"`
	Metrics bool   `toml:"metrics" yaml:"metrics"`

	CORSAllowedOrigins []string `toml:"cors_allowed_origins" yaml:"cors_allowed_origins"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Audio: AudioConfig{
			SampleRate: 44100,
			Channels:   1,
			FrameMs:    100,
		},
		Capture: CaptureConfig{
			Device:          "ffmpeg",
			InputFormat:     "pulse",
			InputDevice:     "default",
			FFmpegPath:      "ffmpeg",
			ArecordPath:     "arecord",
			ReadBufferBytes: 8192,
		},
		Encoder: EncoderConfig{
			Type:       "ffmpeg",
			FFmpegPath: "ffmpeg",
			Bitrate:    "64k",
		},
		Recognizer: RecognizerConfig{
			Backend:        defaultBackend,
			ModelPath:      "model",
			ServerURL:      "ws://localhost:2700",
			OpenAIModel:    "whisper-1",
			Language:       "ja",
			TimeoutSeconds: 30,
			VADThreshold:   0.02,
			SilenceMs:      800,
			MinSpeechMs:    300,
			MaxUtteranceMs: 30000,
		},
		Memo: MemoConfig{
			PlaybackRate:    2,
			PlaybackDelayMs: 1000,
		},
		Index: IndexConfig{
			Enabled: true,
			File:    "memo.sqlite",
		},
		Server: ServerConfig{
			Address: "127.0.0.1:8080",
			Metrics: true,
		},
	}
}

// Load reads a TOML or YAML file on top of the defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		default:
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	if cfg.Recognizer.OpenAIAPIKey == "" {
		cfg.Recognizer.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}
	if err := c.Encoder.Validate(); err != nil {
		return fmt.Errorf("encoder config: %w", err)
	}
	if err := c.Recognizer.Validate(); err != nil {
		return fmt.Errorf("recognizer config: %w", err)
	}
	if err := c.Memo.Validate(); err != nil {
		return fmt.Errorf("memo config: %w", err)
	}
	if c.Index.Enabled && c.Index.File == "" {
		return fmt.Errorf("index config: file cannot be empty when enabled")
	}
	if c.Server.Enabled && c.Server.Address == "" {
		return fmt.Errorf("server config: address cannot be empty when enabled")
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level must be one of debug, info, warn, error, got %q", l.Level)
	}
	switch l.Format {
	case "json", "console":
	default:
		return fmt.Errorf("format must be json or console, got %q", l.Format)
	}
	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000, got %d", a.SampleRate)
	}
	if a.Channels < 1 || a.Channels > 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", a.Channels)
	}
	if a.FrameMs < 10 || a.FrameMs > 1000 {
		return fmt.Errorf("frame_ms must be between 10 and 1000, got %d", a.FrameMs)
	}
	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	switch c.Device {
	case "ffmpeg":
		if c.InputFormat == "" {
			return fmt.Errorf("input_format cannot be empty for ffmpeg capture")
		}
	case "arecord", "portaudio":
	default:
		return fmt.Errorf("device must be ffmpeg, arecord or portaudio, got %q", c.Device)
	}
	if c.ReadBufferBytes < 512 {
		return fmt.Errorf("read_buffer_bytes must be at least 512, got %d", c.ReadBufferBytes)
	}
	return nil
}

// Validate validates encoder configuration
func (e *EncoderConfig) Validate() error {
	switch e.Type {
	case "ffmpeg", "raw":
		return nil
	default:
		return fmt.Errorf("type must be ffmpeg or raw, got %q", e.Type)
	}
}

// Validate validates recognizer configuration
func (r *RecognizerConfig) Validate() error {
	switch r.Backend {
	case "vosk-server":
		if r.ServerURL == "" {
			return fmt.Errorf("server_url cannot be empty for vosk-server")
		}
	case "vosk":
		if r.ModelPath == "" {
			return fmt.Errorf("model_path cannot be empty for vosk")
		}
	case "openai":
		if r.OpenAIAPIKey == "" {
			return fmt.Errorf("openai_api_key (or OPENAI_API_KEY) is required for openai")
		}
		if r.VADThreshold <= 0 || r.VADThreshold >= 1 {
			return fmt.Errorf("vad_threshold must be between 0 and 1, got %f", r.VADThreshold)
		}
		if r.SilenceMs <= 0 || r.MaxUtteranceMs <= r.SilenceMs {
			return fmt.Errorf("silence_ms must be positive and below max_utterance_ms")
		}
	default:
		return fmt.Errorf("backend must be vosk-server, vosk or openai, got %q", r.Backend)
	}
	return nil
}

// Validate validates memo configuration
func (m *MemoConfig) Validate() error {
	if m.PlaybackRate <= 0 || m.PlaybackRate > 16 {
		return fmt.Errorf("playback_rate must be in (0, 16], got %f", m.PlaybackRate)
	}
	if m.PlaybackDelayMs < 0 {
		return fmt.Errorf("playback_delay_ms cannot be negative")
	}
	return nil
}

// NeedsModelDirectory reports whether the backend loads a local model
func (r *RecognizerConfig) NeedsModelDirectory() bool {
	return r.Backend == "vosk"
}
