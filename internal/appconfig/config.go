package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/codesync/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int            `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string         `mapstructure:"state_dir" yaml:"state_dir"`
	Server        ServerConfig   `mapstructure:"server" yaml:"server"`
	Channel       ChannelConfig  `mapstructure:"channel" yaml:"channel"`
	Dispatch      DispatchConfig `mapstructure:"dispatch" yaml:"dispatch"`
	Prefs         PrefsConfig    `mapstructure:"prefs" yaml:"prefs"`
	Metrics       MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// ServerConfig locates the room server.
type ServerConfig struct {
	BaseURL          string `mapstructure:"base_url" yaml:"base_url"`
	APIPrefix        string `mapstructure:"api_prefix" yaml:"api_prefix"`
	RequestTimeoutMS int    `mapstructure:"request_timeout_ms" yaml:"request_timeout_ms"`
}

// ChannelConfig controls the push channel.
type ChannelConfig struct {
	Transport        string `mapstructure:"transport" yaml:"transport"`
	ReconnectDelayMS int    `mapstructure:"reconnect_delay_ms" yaml:"reconnect_delay_ms"`
	// IdleTimeoutMS fails a silent stream; -1 disables the watchdog.
	IdleTimeoutMS int `mapstructure:"idle_timeout_ms" yaml:"idle_timeout_ms"`
}

// DispatchConfig controls outbound mutation pacing.
type DispatchConfig struct {
	CodeDebounceMS int `mapstructure:"code_debounce_ms" yaml:"code_debounce_ms"`
}

// PrefsConfig selects the local preference store.
type PrefsConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
}

// MetricsConfig configures the optional Prometheus listener. An empty address
// disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".codesync", "state"),
		Server: ServerConfig{
			BaseURL:          "http://localhost:8001",
			APIPrefix:        schema.DefaultAPIPrefix,
			RequestTimeoutMS: int(schema.DefaultRequestTimeout / time.Millisecond),
		},
		Channel: ChannelConfig{
			Transport:        schema.TransportSSE,
			ReconnectDelayMS: int(schema.DefaultReconnectDelay / time.Millisecond),
			IdleTimeoutMS:    int(schema.DefaultIdleTimeout / time.Millisecond),
		},
		Dispatch: DispatchConfig{
			CodeDebounceMS: int(schema.DefaultCodeDebounce / time.Millisecond),
		},
		Prefs: PrefsConfig{
			Backend: "file",
		},
		Metrics: MetricsConfig{
			Addr: "",
		},
	}, nil
}

// Session converts the config into session settings.
func (c Config) Session() (schema.SessionConfig, error) {
	return schema.NormalizeSessionConfig(schema.SessionConfig{
		BaseURL:        c.Server.BaseURL,
		APIPrefix:      c.Server.APIPrefix,
		Transport:      c.Channel.Transport,
		ReconnectDelay: time.Duration(c.Channel.ReconnectDelayMS) * time.Millisecond,
		IdleTimeout:    time.Duration(c.Channel.IdleTimeoutMS) * time.Millisecond,
		CodeDebounce:   time.Duration(c.Dispatch.CodeDebounceMS) * time.Millisecond,
		RequestTimeout: time.Duration(c.Server.RequestTimeoutMS) * time.Millisecond,
	})
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".codesync", "config.yaml"), nil
}
