package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CODESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("server.base_url", cfg.Server.BaseURL)
	v.SetDefault("server.api_prefix", cfg.Server.APIPrefix)
	v.SetDefault("server.request_timeout_ms", cfg.Server.RequestTimeoutMS)
	v.SetDefault("channel.transport", cfg.Channel.Transport)
	v.SetDefault("channel.reconnect_delay_ms", cfg.Channel.ReconnectDelayMS)
	v.SetDefault("channel.idle_timeout_ms", cfg.Channel.IdleTimeoutMS)
	v.SetDefault("dispatch.code_debounce_ms", cfg.Dispatch.CodeDebounceMS)
	v.SetDefault("prefs.backend", cfg.Prefs.Backend)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validateServerConfig(cfg.Server); err != nil {
		return Config{}, err
	}
	if err := validateChannelConfig(cfg.Channel); err != nil {
		return Config{}, err
	}
	switch cfg.Prefs.Backend {
	case "file", "bolt":
	default:
		return Config{}, fmt.Errorf("unsupported prefs.backend %q", cfg.Prefs.Backend)
	}
	return cfg, nil
}

func validateServerConfig(cfg ServerConfig) error {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("server.base_url must include scheme and host (e.g. https://example.com)")
	}
	prefix := strings.TrimSpace(cfg.APIPrefix)
	if prefix != "" {
		if strings.Contains(prefix, "://") {
			return fmt.Errorf("server.api_prefix must be a path prefix, not a URL")
		}
		if strings.ContainsAny(prefix, "?#") {
			return fmt.Errorf("server.api_prefix must not include query or fragment")
		}
	}
	if cfg.RequestTimeoutMS < 0 {
		return fmt.Errorf("server.request_timeout_ms must not be negative")
	}
	return nil
}

func validateChannelConfig(cfg ChannelConfig) error {
	switch strings.ToLower(cfg.Transport) {
	case "sse", "websocket", "ws":
	default:
		return fmt.Errorf("unsupported channel.transport %q", cfg.Transport)
	}
	if cfg.ReconnectDelayMS < 0 {
		return fmt.Errorf("channel.reconnect_delay_ms must not be negative")
	}
	if cfg.IdleTimeoutMS < -1 {
		return fmt.Errorf("channel.idle_timeout_ms must be -1 (disabled) or positive")
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Server.BaseURL = expandEnv(cfg.Server.BaseURL)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
