package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// AppName é o nome do aplicativo
	AppName = "CommitKit"

	// AppVersion é a versão atual
	AppVersion = "0.4.0"

	// ConfigDirName is the directory under the user config dir holding config.yaml.
	ConfigDirName = "commitkit"

	// Runtime event names shared by the Wails host and the frontend.
	EventRequest       = "commitkit:request"
	EventNotification  = "commitkit:notification"
	EventCommandResult = "commitkit:command_result"

	DefaultGitPath       = "git"
	DefaultReadTimeout   = 8 * time.Second
	DefaultWriteTimeout  = 12 * time.Second
	DefaultPushTimeout   = 2 * time.Minute
	DefaultWatchDebounce = 200 * time.Millisecond
	DefaultWatchMaxDirs  = 4000
	DefaultMaxDiffBytes  = 2 * 1024 * 1024
	DefaultListenAddr    = "127.0.0.1:7457"
)

// Config holds the runtime settings read from config.yaml and the environment.
type Config struct {
	GitPath       string        `yaml:"git_path"`
	Workspace     string        `yaml:"workspace"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	PushTimeout   time.Duration `yaml:"push_timeout"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
	WatchMaxDirs  int           `yaml:"watch_max_dirs"`
	MaxDiffBytes  int           `yaml:"max_diff_bytes"`
	ListenAddr    string        `yaml:"listen_addr"`
	Editor        string        `yaml:"editor"`
	ShowIgnored   bool          `yaml:"show_ignored"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		GitPath:       DefaultGitPath,
		ReadTimeout:   DefaultReadTimeout,
		WriteTimeout:  DefaultWriteTimeout,
		PushTimeout:   DefaultPushTimeout,
		WatchDebounce: DefaultWatchDebounce,
		WatchMaxDirs:  DefaultWatchMaxDirs,
		MaxDiffBytes:  DefaultMaxDiffBytes,
		ListenAddr:    DefaultListenAddr,
	}
}

// ConfigDir retorna o diretório de configuração do app
func ConfigDir() string {
	base, err := os.UserConfigDir()
	if err != nil || strings.TrimSpace(base) == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, ConfigDirName)
}

// Load reads config.yaml (or the explicit path), then applies COMMITKIT_* overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	paths := []string{path}
	if strings.TrimSpace(path) == "" {
		paths = []string{
			filepath.Join(ConfigDir(), "config.yaml"),
			filepath.Join(ConfigDir(), "config.yml"),
		}
	}

	for _, candidate := range paths {
		expanded, err := expandPath(candidate)
		if err != nil {
			return cfg, err
		}
		data, err := os.ReadFile(expanded)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return cfg, fmt.Errorf("read config %s: %w", expanded, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return Default(), fmt.Errorf("parse config %s: %w", expanded, err)
		}
		break
	}

	applyEnv(cfg)
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	defaults := Default()
	if strings.TrimSpace(c.GitPath) == "" {
		c.GitPath = defaults.GitPath
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaults.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaults.WriteTimeout
	}
	if c.PushTimeout <= 0 {
		c.PushTimeout = defaults.PushTimeout
	}
	if c.WatchDebounce <= 0 {
		c.WatchDebounce = defaults.WatchDebounce
	}
	if c.WatchMaxDirs <= 0 {
		c.WatchMaxDirs = defaults.WatchMaxDirs
	}
	if c.MaxDiffBytes <= 0 {
		c.MaxDiffBytes = defaults.MaxDiffBytes
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = defaults.ListenAddr
	}
	c.Workspace = strings.TrimSpace(c.Workspace)
	c.Editor = strings.TrimSpace(c.Editor)
}

// ResolveWorkspace returns the configured workspace, falling back to the working directory.
func (c *Config) ResolveWorkspace() (string, error) {
	if c.Workspace != "" {
		expanded, err := expandPath(c.Workspace)
		if err != nil {
			return "", err
		}
		return filepath.Abs(expanded)
	}
	return os.Getwd()
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("COMMITKIT_GIT_PATH")); v != "" {
		cfg.GitPath = v
	}
	if v := strings.TrimSpace(os.Getenv("COMMITKIT_WORKSPACE")); v != "" {
		cfg.Workspace = v
	}
	if v := strings.TrimSpace(os.Getenv("COMMITKIT_LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("COMMITKIT_EDITOR")); v != "" {
		cfg.Editor = v
	}
	if d, ok := readEnvDuration("COMMITKIT_READ_TIMEOUT"); ok {
		cfg.ReadTimeout = d
	}
	if d, ok := readEnvDuration("COMMITKIT_WRITE_TIMEOUT"); ok {
		cfg.WriteTimeout = d
	}
	if d, ok := readEnvDuration("COMMITKIT_PUSH_TIMEOUT"); ok {
		cfg.PushTimeout = d
	}
	if d, ok := readEnvDuration("COMMITKIT_WATCH_DEBOUNCE"); ok {
		cfg.WatchDebounce = d
	}
	if v := strings.TrimSpace(os.Getenv("COMMITKIT_MAX_DIFF_BYTES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxDiffBytes = n
		}
	}
	if _, ok := os.LookupEnv("COMMITKIT_SHOW_IGNORED"); ok {
		cfg.ShowIgnored = ReadEnvBool("COMMITKIT_SHOW_IGNORED")
	}
}

func readEnvDuration(key string) (time.Duration, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return 0, false
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, false
	}
	return d, true
}

// ReadEnvBool reports whether key is set to a truthy value.
func ReadEnvBool(key string) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return path, nil
}
