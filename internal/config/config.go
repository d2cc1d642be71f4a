package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Ingress IngressConfig `yaml:"ingress"`
	Reaper  ReaperConfig  `yaml:"reaper"`
	Focus   FocusConfig   `yaml:"focus"`
	Handoff HandoffConfig `yaml:"handoff"`
}

// ServerConfig covers both the UI subscription WebSocket port and the
// read-only HTTP port (spec §6).
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	HTTPPort       int      `yaml:"http_port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// IngressConfig is C1's Unix-domain socket endpoint.
type IngressConfig struct {
	SocketPath string `yaml:"socket_path"`
}

// ReaperConfig tunes the two independent removal timers (spec §4.2).
type ReaperConfig struct {
	StaleInterval   time.Duration `yaml:"stale_interval"`
	StaleThreshold  time.Duration `yaml:"stale_threshold"`
	ProcessInterval time.Duration `yaml:"process_interval"`
}

// FocusConfig tunes the focus-follows-terminal poll loop (spec §4.4).
type FocusConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// HandoffConfig is C8's watch target (spec §4.8). RelPath is opaque to the
// watcher itself; it is only meaningful here as a configuration value.
type HandoffConfig struct {
	RelPath  string        `yaml:"rel_path"`
	Debounce time.Duration `yaml:"debounce"`
}

func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads config from path, or returns the default config if
// the file does not exist (spec calls for no required on-disk config).
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return defaultConfig(), nil
	}
	return Load(path)
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     4242,
			HTTPPort: 4243,
		},
		Ingress: IngressConfig{
			SocketPath: filepath.Join(defaultStateDir(), "jacquesd", "ingress.sock"),
		},
		Reaper: ReaperConfig{
			StaleInterval:   5 * time.Minute,
			StaleThreshold:  5 * time.Minute,
			ProcessInterval: 30 * time.Second,
		},
		Focus: FocusConfig{
			PollInterval: 300 * time.Millisecond,
		},
		Handoff: HandoffConfig{
			RelPath:  filepath.Join(".jacques", "handoffs", "session.json"),
			Debounce: 2 * time.Second,
		},
	}
}

func defaultStateDir() string {
	if value := os.Getenv("XDG_STATE_HOME"); value != "" {
		return value
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".local", "state")
}

func defaultConfigDir() string {
	if value := os.Getenv("XDG_CONFIG_HOME"); value != "" {
		return value
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config")
}

// DefaultConfigPath returns the default XDG-compliant config file path.
func DefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "jacquesd", "config.yaml")
}

// DefaultNotificationSettingsPath is where notification preferences are
// persisted (spec §6: "JSON under the daemon's own config directory").
func DefaultNotificationSettingsPath() string {
	return filepath.Join(defaultConfigDir(), "jacquesd", "notifications.json")
}

// DefaultAutocompactSettingsPath is where the autoCompact flag lives (spec
// §6: "under the user's Claude settings directory"). Unknown keys in this
// file belong to the Claude CLI itself and must be preserved verbatim.
func DefaultAutocompactSettingsPath() string {
	return filepath.Join(defaultConfigDir(), "claude", "settings.json")
}

// Diff compares two configs and describes what changed, for the SIGHUP
// hot-reload path. Only fields safe to apply without a restart are
// compared; Server is not reloadable (listeners are already bound).
func Diff(old, new *Config) []string {
	var changes []string
	if old.Reaper != new.Reaper {
		changes = append(changes, "reaper: timings changed")
	}
	if old.Focus != new.Focus {
		changes = append(changes, "focus: poll_interval changed")
	}
	if old.Handoff != new.Handoff {
		changes = append(changes, "handoff: rel_path or debounce changed")
	}
	return changes
}
