package tfllm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	defaults "github.com/tfllm/tfllm/default"
)

// Config represents the user's tfllm configuration.
type Config struct {
	Version   int             `json:"version"`
	Model     ModelConfig     `json:"model"`
	Daemon    DaemonConfig    `json:"daemon"`
	Retrieval RetrievalConfig `json:"retrieval"`
}

// ModelConfig holds settings for the locally hosted model.
type ModelConfig struct {
	// Quant selects the model artifact variant: "q8_0" (default, higher
	// quality) or "q4_k_m" (smaller, faster to load).
	Quant string `json:"quant"`
	// ServerBinary is the llama-server executable used to host the model.
	ServerBinary string `json:"server_binary"`
	// ContextSize is the model context window passed to the server.
	ContextSize int `json:"context_size,omitempty"`
	// LoadTimeoutSec bounds how long model load (server health) may take.
	LoadTimeoutSec int `json:"load_timeout_sec,omitempty"`
}

// DaemonConfig holds client/daemon timeout settings.
type DaemonConfig struct {
	// PingTimeoutSec bounds a liveness round trip.
	PingTimeoutSec int `json:"ping_timeout_sec,omitempty"`
	// GenerateTimeoutSec bounds an ask/fix round trip, generation included.
	GenerateTimeoutSec int `json:"generate_timeout_sec,omitempty"`
	// StopGraceSec is how long stop waits for the daemon to exit.
	StopGraceSec int `json:"stop_grace_sec,omitempty"`
}

// RetrievalConfig holds documentation retrieval settings.
type RetrievalConfig struct {
	// TopK is the number of snippets retrieved for an ask query.
	TopK int `json:"top_k,omitempty"`
	// TTLMinutes is how long a tool's snippet index stays cached.
	TTLMinutes int `json:"ttl_minutes,omitempty"`
	// Dimensions is the size of the snippet feature vectors.
	Dimensions int `json:"dimensions,omitempty"`
}

// PingTimeout returns the configured ping timeout as a duration.
func (c *Config) PingTimeout() time.Duration {
	return time.Duration(c.Daemon.PingTimeoutSec) * time.Second
}

// GenerateTimeout returns the configured generation timeout as a duration.
func (c *Config) GenerateTimeout() time.Duration {
	return time.Duration(c.Daemon.GenerateTimeoutSec) * time.Second
}

// StopGrace returns the configured stop grace period as a duration.
func (c *Config) StopGrace() time.Duration {
	return time.Duration(c.Daemon.StopGraceSec) * time.Second
}

// LoadTimeout returns the configured model load timeout as a duration.
func (c *Config) LoadTimeout() time.Duration {
	return time.Duration(c.Model.LoadTimeoutSec) * time.Second
}

// RetrievalTTL returns how long a tool's snippet index stays cached.
func (c *Config) RetrievalTTL() time.Duration {
	return time.Duration(c.Retrieval.TTLMinutes) * time.Minute
}

// ConfigDir returns the config directory path.
// Resolution order: $TFLLM_CONFIG_DIR > $XDG_CONFIG_HOME/tfllm > ~/.config/tfllm
func ConfigDir() string {
	if dir := os.Getenv("TFLLM_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "tfllm")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "tfllm-config")
	}
	return filepath.Join(home, ".config", "tfllm")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// DataDir returns the directory holding model artifacts and daemon logs.
// Resolution order: $TFLLM_DATA_DIR > $XDG_DATA_HOME/tfllm > ~/.local/share/tfllm
func DataDir() string {
	if dir := os.Getenv("TFLLM_DATA_DIR"); dir != "" {
		return dir
	}
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "tfllm")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "tfllm-data")
	}
	return filepath.Join(home, ".local", "share", "tfllm")
}

// SocketPath returns the daemon's Unix socket path.
// Resolution order: $TFLLM_SOCKET > $XDG_RUNTIME_DIR/tfllm.sock > /tmp/tfllm-$UID.sock
func SocketPath() string {
	if path := os.Getenv("TFLLM_SOCKET"); path != "" {
		return path
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "tfllm.sock")
	}
	return fmt.Sprintf("/tmp/tfllm-%d.sock", os.Getuid())
}

// RecordPath returns the path of the daemon record file used for discovery.
// It lives next to the socket and follows the same resolution order.
func RecordPath() string {
	if path := os.Getenv("TFLLM_DAEMON_RECORD"); path != "" {
		return path
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "tfllm-daemon.json")
	}
	return fmt.Sprintf("/tmp/tfllm-daemon-%d.json", os.Getuid())
}

// DefaultConfig returns the default configuration from the embedded default_config.json.
func DefaultConfig() *Config {
	var cfg Config
	if err := json.Unmarshal(defaults.DefaultConfigJSON, &cfg); err != nil {
		panic("tfllm: invalid embedded default_config.json: " + err.Error())
	}
	return &cfg
}

// LoadConfig loads config from disk or returns defaults if not found.
func LoadConfig() (*Config, error) {
	path := ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// Apply defaults for missing fields
	def := DefaultConfig()
	if cfg.Model.Quant == "" {
		cfg.Model.Quant = def.Model.Quant
	}
	if cfg.Model.ServerBinary == "" {
		cfg.Model.ServerBinary = def.Model.ServerBinary
	}
	if cfg.Model.ContextSize == 0 {
		cfg.Model.ContextSize = def.Model.ContextSize
	}
	if cfg.Model.LoadTimeoutSec == 0 {
		cfg.Model.LoadTimeoutSec = def.Model.LoadTimeoutSec
	}
	if cfg.Daemon.PingTimeoutSec == 0 {
		cfg.Daemon.PingTimeoutSec = def.Daemon.PingTimeoutSec
	}
	if cfg.Daemon.GenerateTimeoutSec == 0 {
		cfg.Daemon.GenerateTimeoutSec = def.Daemon.GenerateTimeoutSec
	}
	if cfg.Daemon.StopGraceSec == 0 {
		cfg.Daemon.StopGraceSec = def.Daemon.StopGraceSec
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = def.Retrieval.TopK
	}
	if cfg.Retrieval.TTLMinutes == 0 {
		cfg.Retrieval.TTLMinutes = def.Retrieval.TTLMinutes
	}
	if cfg.Retrieval.Dimensions == 0 {
		cfg.Retrieval.Dimensions = def.Retrieval.Dimensions
	}

	return &cfg, nil
}

// ResolveQuant returns the model quantization tag.
// Priority: $TFLLM_MODEL_QUANT env > config value.
func ResolveQuant(cfg *Config) string {
	if quant := os.Getenv("TFLLM_MODEL_QUANT"); quant != "" {
		return quant
	}
	if cfg != nil {
		return cfg.Model.Quant
	}
	return ""
}

// ResolveServerBinary returns the llama-server executable path.
// Priority: $TFLLM_SERVER_BINARY env > config value.
func ResolveServerBinary(cfg *Config) string {
	if bin := os.Getenv("TFLLM_SERVER_BINARY"); bin != "" {
		return bin
	}
	if cfg != nil {
		return cfg.Model.ServerBinary
	}
	return ""
}
