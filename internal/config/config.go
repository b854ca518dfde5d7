package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings
const (
	EnvAPIKey                = "OPENAI_API_KEY"
	EnvTurnEndpoint          = "VOICELOOP_TURN_ENDPOINT"
	EnvTranscriptionEndpoint = "VOICELOOP_TRANSCRIPTION_ENDPOINT"
	EnvLogLevel              = "VOICELOOP_LOG_LEVEL"
)

// Capture sources
const (
	SourceMicrophone = "microphone"
	SourceNetMic     = "netmic"
)

// Config represents the complete client configuration
type Config struct {
	Turn          TurnConfig          `yaml:"turn"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Capture       CaptureConfig       `yaml:"capture"`
	NetMic        NetMicConfig        `yaml:"netmic"`
	VAD           VADConfig           `yaml:"vad"`
	Playback      PlaybackConfig      `yaml:"playback"`
	HTTP          HTTPConfig          `yaml:"http"`
	Logging       LoggingConfig       `yaml:"logging"`
	Archive       ArchiveConfig       `yaml:"archive"`
}

// TurnConfig contains the conversational service settings
type TurnConfig struct {
	Endpoint      string `yaml:"endpoint"`
	Timeout       int    `yaml:"timeout"`         // seconds
	MaxReplyBytes int64  `yaml:"max_reply_bytes"` // largest buffered reply
	UserAgent     string `yaml:"user_agent"`
}

// TranscriptionConfig contains speech recognition API configuration
type TranscriptionConfig struct {
	Endpoint string `yaml:"endpoint"` // OpenAI-compatible API root
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
	Prompt   string `yaml:"prompt"`
	Timeout  int    `yaml:"timeout"` // seconds
}

// CaptureConfig contains audio capture parameters
type CaptureConfig struct {
	Source        string  `yaml:"source"` // microphone or netmic
	SampleRate    int     `yaml:"sample_rate"`
	Channels      int     `yaml:"channels"`
	BitDepth      int     `yaml:"bit_depth"`
	FrameDuration int     `yaml:"frame_duration"` // milliseconds
	ListenTimeout float64 `yaml:"listen_timeout"` // seconds, 0 waits forever
	PhraseLimit   float64 `yaml:"phrase_limit"`   // seconds, 0 is unbounded
	Calibration   float64 `yaml:"calibration"`    // seconds of ambient audio, 0 skips
	PreRoll       float64 `yaml:"pre_roll"`       // seconds kept before speech onset
}

// NetMicConfig contains the UDP network microphone settings
type NetMicConfig struct {
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`
	BufferSize  int    `yaml:"buffer_size"`
	MaxGap      int    `yaml:"max_gap"`    // packets
	QueueSize   int    `yaml:"queue_size"` // chunks
}

// VADConfig contains energy voice activity detection configuration
type VADConfig struct {
	ThresholdMultiplier float64 `yaml:"threshold_multiplier"`
	MinEnergy           float64 `yaml:"min_energy"`
	Smoothing           float64 `yaml:"smoothing"`
	MinSpeech           float64 `yaml:"min_speech"` // seconds
	Silence             float64 `yaml:"silence"`    // seconds
}

// PlaybackConfig contains output settings
type PlaybackConfig struct {
	Grace           float64 `yaml:"grace"` // seconds added to the reply duration
	FramesPerBuffer int     `yaml:"frames_per_buffer"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ArchiveConfig enables saving replies to disk
type ArchiveConfig struct {
	Dir string `yaml:"dir"` // empty disables the archive
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Turn: TurnConfig{
			Endpoint:      "http://localhost:8000/chat",
			Timeout:       60,
			MaxReplyBytes: 32 << 20,
			UserAgent:     "voiceloop/1.0",
		},
		Transcription: TranscriptionConfig{
			Endpoint: "https://api.openai.com/v1",
			Model:    "whisper-1",
			Language: "en",
			Timeout:  30,
		},
		Capture: CaptureConfig{
			Source:        SourceMicrophone,
			SampleRate:    16000,
			Channels:      1,
			BitDepth:      16,
			FrameDuration: 30,
			ListenTimeout: 10,
			PhraseLimit:   30,
			Calibration:   5,
			PreRoll:       0.3,
		},
		NetMic: NetMicConfig{
			BindAddress: "0.0.0.0",
			Port:        4444,
			BufferSize:  65536,
			MaxGap:      50,
			QueueSize:   256,
		},
		VAD: VADConfig{
			ThresholdMultiplier: 1.5,
			MinEnergy:           300,
			Smoothing:           0.3,
			MinSpeech:           0.25,
			Silence:             0.8,
		},
		Playback: PlaybackConfig{
			Grace:           2,
			FramesPerBuffer: 1024,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads the configuration file, applies environment overrides and
// validates the result. A missing file leaves the defaults in place.
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// .env is optional; variables already set in the environment win
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	config.ApplyEnv(os.LookupEnv)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides settings from environment variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAPIKey); ok && v != "" {
		c.Transcription.APIKey = v
	}
	if v, ok := lookup(EnvTurnEndpoint); ok && v != "" {
		c.Turn.Endpoint = v
	}
	if v, ok := lookup(EnvTranscriptionEndpoint); ok && v != "" {
		c.Transcription.Endpoint = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Turn.Validate(); err != nil {
		return fmt.Errorf("turn config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if c.Capture.Source == SourceNetMic {
		if err := c.NetMic.Validate(); err != nil {
			return fmt.Errorf("netmic config: %w", err)
		}
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Playback.Validate(); err != nil {
		return fmt.Errorf("playback config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates turn service configuration
func (t *TurnConfig) Validate() error {
	if err := validateURL(t.Endpoint); err != nil {
		return fmt.Errorf("endpoint: %w", err)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxReplyBytes < 1024 {
		return fmt.Errorf("max_reply_bytes must be at least 1024, got %d", t.MaxReplyBytes)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if err := validateURL(t.Endpoint); err != nil {
		return fmt.Errorf("endpoint: %w", err)
	}

	if t.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty (set %s)", EnvAPIKey)
	}

	if t.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	if c.Source != SourceMicrophone && c.Source != SourceNetMic {
		return fmt.Errorf("source must be '%s' or '%s', got '%s'", SourceMicrophone, SourceNetMic, c.Source)
	}

	if c.SampleRate < 8000 || c.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", c.SampleRate)
	}

	if c.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", c.Channels)
	}

	if c.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", c.BitDepth)
	}

	if c.FrameDuration < 10 || c.FrameDuration > 100 {
		return fmt.Errorf("frame_duration must be between 10 and 100 ms, got %d", c.FrameDuration)
	}

	if c.ListenTimeout < 0 {
		return fmt.Errorf("listen_timeout cannot be negative, got %f", c.ListenTimeout)
	}

	if c.PhraseLimit < 0 {
		return fmt.Errorf("phrase_limit cannot be negative, got %f", c.PhraseLimit)
	}

	if c.Calibration < 0 {
		return fmt.Errorf("calibration cannot be negative, got %f", c.Calibration)
	}

	if c.PreRoll < 0 {
		return fmt.Errorf("pre_roll cannot be negative, got %f", c.PreRoll)
	}

	return nil
}

// Validate validates network microphone configuration
func (n *NetMicConfig) Validate() error {
	if n.Port < 1 || n.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", n.Port)
	}

	if n.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if n.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", n.BufferSize)
	}

	if n.MaxGap < 0 {
		return fmt.Errorf("max_gap cannot be negative, got %d", n.MaxGap)
	}

	if n.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", n.QueueSize)
	}

	return nil
}

// Validate validates VAD configuration
func (v *VADConfig) Validate() error {
	if v.ThresholdMultiplier < 1 {
		return fmt.Errorf("threshold_multiplier must be at least 1, got %f", v.ThresholdMultiplier)
	}

	if v.MinEnergy <= 0 {
		return fmt.Errorf("min_energy must be positive, got %f", v.MinEnergy)
	}

	if v.Smoothing < 0 || v.Smoothing >= 1 {
		return fmt.Errorf("smoothing must be between 0 and 1 (exclusive), got %f", v.Smoothing)
	}

	if v.MinSpeech < 0 {
		return fmt.Errorf("min_speech cannot be negative, got %f", v.MinSpeech)
	}

	if v.Silence <= 0 {
		return fmt.Errorf("silence must be positive, got %f", v.Silence)
	}

	return nil
}

// Validate validates playback configuration
func (p *PlaybackConfig) Validate() error {
	if p.Grace < 0 {
		return fmt.Errorf("grace cannot be negative, got %f", p.Grace)
	}

	if p.FramesPerBuffer < 64 {
		return fmt.Errorf("frames_per_buffer must be at least 64, got %d", p.FramesPerBuffer)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q must use http or https", raw)
	}

	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", raw)
	}

	return nil
}

// GetTimeoutDuration returns the turn timeout as a time.Duration
func (t *TurnConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetFrameDuration returns the segmentation frame length as a time.Duration
func (c *CaptureConfig) GetFrameDuration() time.Duration {
	return time.Duration(c.FrameDuration) * time.Millisecond
}

// GetListenTimeoutDuration returns the listen timeout as a time.Duration
func (c *CaptureConfig) GetListenTimeoutDuration() time.Duration {
	return seconds(c.ListenTimeout)
}

// GetPhraseLimitDuration returns the phrase limit as a time.Duration
func (c *CaptureConfig) GetPhraseLimitDuration() time.Duration {
	return seconds(c.PhraseLimit)
}

// GetCalibrationDuration returns the calibration window as a time.Duration
func (c *CaptureConfig) GetCalibrationDuration() time.Duration {
	return seconds(c.Calibration)
}

// GetPreRollDuration returns the pre-roll as a time.Duration
func (c *CaptureConfig) GetPreRollDuration() time.Duration {
	return seconds(c.PreRoll)
}

// GetMinSpeechDuration returns the minimum speech duration as a time.Duration
func (v *VADConfig) GetMinSpeechDuration() time.Duration {
	return seconds(v.MinSpeech)
}

// GetSilenceDuration returns the end-of-utterance silence as a time.Duration
func (v *VADConfig) GetSilenceDuration() time.Duration {
	return seconds(v.Silence)
}

// GetGraceDuration returns the playback grace as a time.Duration
func (p *PlaybackConfig) GetGraceDuration() time.Duration {
	return seconds(p.Grace)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
