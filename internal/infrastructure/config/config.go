package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix     = "MAADOCTOR"
	configFileEnv = "MAADOCTOR_CONFIG_FILE"
)

// Source modes and layouts.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"

	LayoutFolder = "folder"
	LayoutIndex  = "index"
)

// Config is the resolved configuration. Precedence, lowest first: defaults,
// config file, MAADOCTOR_* environment variables, command-line overrides.
type Config struct {
	Source SourceConfig `mapstructure:"source"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Fetch  FetchConfig  `mapstructure:"fetch"`
	Engine EngineConfig `mapstructure:"engine"`
	Log    LogConfig    `mapstructure:"log"`
	Work   WorkConfig   `mapstructure:"work"`
	AI     AIConfig     `mapstructure:"ai"`

	// File is the config file that was read, empty when none was.
	File string `mapstructure:"-"`
}

type SourceConfig struct {
	Mode   string `mapstructure:"mode"`
	Layout string `mapstructure:"layout"`
	Path   string `mapstructure:"path"`
	URL    string `mapstructure:"url"`
}

type CacheConfig struct {
	Dir string `mapstructure:"dir"`
}

type FetchConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
}

type EngineConfig struct {
	Workers int           `mapstructure:"workers"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type WorkConfig struct {
	Dir string `mapstructure:"dir"`
}

// AIConfig points the ai-review builtin at an OpenAI-compatible chat
// completion endpoint. The review is off until a key is set.
type AIConfig struct {
	URL         string        `mapstructure:"url"`
	Key         string        `mapstructure:"key"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether both an endpoint and a key are configured.
func (c AIConfig) Enabled() bool {
	return c.URL != "" && c.Key != ""
}

// HomeDir is ~/.maadoctor.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".maadoctor"
	}
	return filepath.Join(home, ".maadoctor")
}

// DefaultPath is the config file read when none is given.
func DefaultPath() string {
	return filepath.Join(HomeDir(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.mode", ModeLocal)
	v.SetDefault("source.layout", LayoutFolder)
	v.SetDefault("source.path", filepath.Join(HomeDir(), "scripts"))
	v.SetDefault("source.url", "")
	v.SetDefault("cache.dir", filepath.Join(HomeDir(), "cache"))
	v.SetDefault("fetch.timeout", 10*time.Second)
	v.SetDefault("fetch.retries", 1)
	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("work.dir", filepath.Join(os.TempDir(), "maadoctor"))
	v.SetDefault("ai.url", "https://api.deepseek.com")
	v.SetDefault("ai.key", "")
	v.SetDefault("ai.model", "deepseek-chat")
	v.SetDefault("ai.max_tokens", 2000)
	v.SetDefault("ai.temperature", 0.1)
	v.SetDefault("ai.timeout", 30*time.Second)
}

// Load reads configuration. An empty path falls back to MAADOCTOR_CONFIG_FILE
// and then DefaultPath; only an explicitly named file has to exist. overrides
// are keyed like the config file ("source.mode") and win over everything else.
func Load(path string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		if env := os.Getenv(configFileEnv); env != "" {
			path, explicit = env, true
		} else {
			path = DefaultPath()
		}
	}
	path = ExpandPath(path)

	file := ""
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config failed: %w", err)
		}
		file = path
	} else if explicit || !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config failed: %w", err)
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}
	cfg.File = file
	cfg.Source.Mode = strings.ToLower(strings.TrimSpace(cfg.Source.Mode))
	cfg.Source.Layout = strings.ToLower(strings.TrimSpace(cfg.Source.Layout))
	cfg.Source.Path = ExpandPath(cfg.Source.Path)
	cfg.Cache.Dir = ExpandPath(cfg.Cache.Dir)
	cfg.Work.Dir = ExpandPath(cfg.Work.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and the fields each mode needs.
func (c *Config) Validate() error {
	switch c.Source.Mode {
	case ModeLocal:
		if c.Source.Path == "" {
			return fmt.Errorf("source.path is required in local mode")
		}
		if c.Source.Layout != LayoutFolder && c.Source.Layout != LayoutIndex {
			return fmt.Errorf("source.layout must be %q or %q, got %q", LayoutFolder, LayoutIndex, c.Source.Layout)
		}
	case ModeRemote:
		if c.Source.URL == "" {
			return fmt.Errorf("source.url is required in remote mode")
		}
	default:
		return fmt.Errorf("source.mode must be %q or %q, got %q", ModeLocal, ModeRemote, c.Source.Mode)
	}
	if c.Cache.Dir == "" {
		return fmt.Errorf("cache.dir is required")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive")
	}
	if c.Fetch.Retries < 0 || c.Fetch.Retries > 1 {
		return fmt.Errorf("fetch.retries must be 0 or 1, got %d", c.Fetch.Retries)
	}
	if c.Engine.Workers < 1 {
		return fmt.Errorf("engine.workers must be at least 1, got %d", c.Engine.Workers)
	}
	if c.Engine.Timeout <= 0 {
		return fmt.Errorf("engine.timeout must be positive")
	}
	if c.AI.Enabled() {
		if c.AI.Timeout <= 0 {
			return fmt.Errorf("ai.timeout must be positive")
		}
		if c.AI.MaxTokens < 1 {
			return fmt.Errorf("ai.max_tokens must be at least 1, got %d", c.AI.MaxTokens)
		}
	}
	return nil
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
