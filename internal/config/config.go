package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the server configuration
type Config struct {
	Server struct {
		BindAddress string `yaml:"bind_address"`
		Debug       bool   `yaml:"debug"`
		LogLevel    string `yaml:"log_level"`  // debug, info, warn, error, fatal
		LogFormat   string `yaml:"log_format"` // text, json
	} `yaml:"server"`

	WebRTC struct {
		ICEServers []ICEServer `yaml:"ice_servers"`
	} `yaml:"webrtc"`

	Transcription struct {
		// ModelPath loads slot 0. Slot1ModelPath loads slot 1 for dual-worker
		// mode; leave empty to run single-threaded chunk processing.
		ModelPath      string `yaml:"model_path"`
		Slot1ModelPath string `yaml:"slot1_model_path"`
		Language       string `yaml:"language"`
		Translate      bool   `yaml:"translate"`
		Threads        int    `yaml:"threads"`
		UseGPU         bool   `yaml:"use_gpu"`
		EnableDebugWAV bool   `yaml:"enable_debug_wav"`
	} `yaml:"transcription"`

	// Stream holds the chunk scheduler tuning knobs that mirror
	// internal/stream.Config. File-mode and live-mode each have their own
	// presets (see internal/stream.DefaultConfig/LiveConfig); ApplyStream
	// treats a zero value here as "use the mode's preset unchanged." The
	// server binary does not call ApplyStream.
	Stream struct {
		MinChunkMs    int     `yaml:"min_chunk_ms"`
		ChunkExtendMs int     `yaml:"chunk_extend_ms"`
		OverlapMs     int     `yaml:"overlap_ms"`
		MinSilenceMs  int     `yaml:"min_silence_ms"`
		VADThreshold  float32 `yaml:"vad_threshold"`
	} `yaml:"stream"`

	NoiseSuppression struct {
		Enabled   bool   `yaml:"enabled"`
		ModelPath string `yaml:"model_path"`
	} `yaml:"noise_suppression"`
}

// ICEServer represents a WebRTC ICE server configuration
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Server.BindAddress == "" {
		cfg.Server.BindAddress = "localhost:8080"
	}
	if cfg.Transcription.Threads <= 0 {
		cfg.Transcription.Threads = 4
	}
	if cfg.Transcription.Language == "" {
		cfg.Transcription.Language = "auto"
	}

	return &cfg, nil
}

// Default returns a default configuration
func Default() *Config {
	cfg := &Config{}
	cfg.Server.BindAddress = "localhost:8080"
	cfg.Server.Debug = true
	cfg.Transcription.Threads = 4
	cfg.Transcription.Language = "auto"
	return cfg
}

// ApplyStream overlays any nonzero Stream fields onto base, returning the
// merged stream.Config-shaped values as plain scalars, without importing
// internal/stream; callers build the stream.Config literal themselves.
func (c *Config) ApplyStream(minChunkMs, chunkExtendMs, overlapMs, minSilenceMs int, vadThreshold float32) (int, int, int, int, float32) {
	if c.Stream.MinChunkMs > 0 {
		minChunkMs = c.Stream.MinChunkMs
	}
	if c.Stream.ChunkExtendMs > 0 {
		chunkExtendMs = c.Stream.ChunkExtendMs
	}
	if c.Stream.OverlapMs > 0 {
		overlapMs = c.Stream.OverlapMs
	}
	if c.Stream.MinSilenceMs > 0 {
		minSilenceMs = c.Stream.MinSilenceMs
	}
	if c.Stream.VADThreshold > 0 {
		vadThreshold = c.Stream.VADThreshold
	}
	return minChunkMs, chunkExtendMs, overlapMs, minSilenceMs, vadThreshold
}
