// Package config loads the application configuration from a YAML file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig stores the voice service endpoint configuration.
type ServerConfig struct {
	// URL is the websocket endpoint of the voice service, e.g.
	// ws://localhost:8000/ws. One persistent connection is opened per
	// session.
	URL string `yaml:"url"`
}

// AudioConfig stores the capture and playback parameters. Sample rate and
// channel count are part of the wire contract and are not negotiated at
// runtime; they are configurable only so a matching backend change can be
// deployed without a rebuild.
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
	// FrameSize is the capture buffer length in samples; complete frames
	// of this size are sent as binary messages.
	FrameSize int `yaml:"frame_size"`
}

// SessionConfig stores session behavior tunables.
type SessionConfig struct {
	// PingIntervalSeconds controls the keepalive ping cadence; 0 disables.
	PingIntervalSeconds int `yaml:"ping_interval_seconds"`
	// EndpointSilenceMillis is the silence window after which the client
	// reports user_stopped_speaking; 0 disables client-side endpointing.
	EndpointSilenceMillis int `yaml:"endpoint_silence_millis"`
	// SpeechThreshold is the PCM16 peak amplitude treated as speech.
	SpeechThreshold int `yaml:"speech_threshold"`
	// MeterIntervalMillis is the level meter tick; best effort.
	MeterIntervalMillis int `yaml:"meter_interval_millis"`
	// TranscriptHistorySize bounds the in-memory transcript store.
	TranscriptHistorySize int `yaml:"transcript_history_size"`
}

// Config stores the application configuration.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Audio    AudioConfig   `yaml:"audio"`
	Session  SessionConfig `yaml:"session"`
	LogLevel string        `yaml:"log_level"`
}

// DefaultConfig returns the configuration used when the file omits values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL: "ws://localhost:8000/ws",
		},
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
			FrameSize:  4096,
		},
		Session: SessionConfig{
			PingIntervalSeconds:   15,
			EndpointSilenceMillis: 700,
			SpeechThreshold:       500,
			MeterIntervalMillis:   100,
			TranscriptHistorySize: 256,
		},
		LogLevel: "info",
	}
}

// LoadConfig loads the configuration from the given file path, applying
// defaults for anything the file leaves unset.
func LoadConfig(filePath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			// Running without a config file is fine; defaults apply.
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", filePath, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", filePath, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url must not be empty")
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels != 1 {
		return fmt.Errorf("audio.channels must be 1 (mono wire contract), got %d", c.Audio.Channels)
	}
	if c.Audio.FrameSize <= 0 {
		return fmt.Errorf("audio.frame_size must be positive, got %d", c.Audio.FrameSize)
	}
	if c.Session.TranscriptHistorySize <= 0 {
		return fmt.Errorf("session.transcript_history_size must be positive, got %d", c.Session.TranscriptHistorySize)
	}
	return nil
}
