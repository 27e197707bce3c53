package config

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ProjectConfigFile is the name of the project-level config file.
	ProjectConfigFile = "maestro.yaml"
	// UserConfigDir is the directory for user-level config.
	UserConfigDir = ".config/maestro"
	// UserConfigFile is the name of the user-level config file.
	UserConfigFile = "config.yaml"
)

// Loader handles configuration loading with layered precedence.
type Loader struct {
	logger *slog.Logger
}

// NewLoader constructs a Loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// Load resolves configuration with layered precedence: defaults, then
// user config (~/.config/maestro/config.yaml), then project config
// (maestro.yaml in the current or an ancestor directory), then MAESTRO_*
// environment variables, in that order.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	// Layers decode onto an empty Config so Merge only applies keys a file sets.
	loadLayer := func(path string) (*Config, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		layer := &Config{}
		if err := yaml.Unmarshal(data, layer); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		return layer, nil
	}

	if userPath := l.userConfigPath(); userPath != "" {
		if userCfg, err := loadLayer(userPath); err == nil {
			l.logger.Debug("loaded user config", "path", userPath)
			cfg.Merge(userCfg)
		} else if !os.IsNotExist(err) {
			l.logger.Warn("failed to load user config", "path", userPath, "error", err)
		}
	}

	if projectPath := l.findProjectConfig(); projectPath != "" {
		if projectCfg, err := loadLayer(projectPath); err == nil {
			l.logger.Debug("loaded project config", "path", projectPath)
			cfg.Merge(projectCfg)
		} else {
			l.logger.Warn("failed to load project config", "path", projectPath, "error", err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.ProjectBase == "" {
		if gitRoot := l.detectGitRoot(); gitRoot != "" {
			cfg.ProjectBase = gitRoot
		} else if cwd, err := os.Getwd(); err == nil {
			cfg.ProjectBase = cwd
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads a Config from a YAML file, seeded with defaults so a
// partial file only overrides the keys it names.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return parseYAML(data)
}

func (l *Loader) userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

func (l *Loader) findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	dir := cwd
	for {
		candidate := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func (l *Loader) detectGitRoot() string {
	out, err := exec.Command("git", "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// applyEnvOverrides overlays MAESTRO_* environment variables onto cfg,
// covering the options an operator most often needs to flip per-deployment
// without editing a checked-in config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MAESTRO_TRANSPORT_TYPE"); v != "" {
		cfg.Transport.Type = v
	}
	if v := os.Getenv("MAESTRO_REDIS_URL"); v != "" {
		cfg.Transport.RedisURL = v
	}
	if v := os.Getenv("MAESTRO_REDIS_PASSWORD"); v != "" {
		cfg.Transport.RedisPassword = v
	}
	if v := os.Getenv("MAESTRO_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("MAESTRO_GIT_TOKEN"); v != "" {
		cfg.Git.Token = v
	}
	if v := os.Getenv("MAESTRO_DASHBOARD_BASE_URL"); v != "" {
		cfg.Dashboard.BaseURL = v
	}
	if v := os.Getenv("MAESTRO_ALLOW_WORKSPACE_GIT"); v == "true" || v == "1" {
		cfg.AllowWorkspaceGit = true
	}
	if v := os.Getenv("MAESTRO_WRITE_DIAGNOSTICS"); v == "true" || v == "1" {
		cfg.WriteDiagnostics = true
	}
	if v := os.Getenv("MAESTRO_HTTP_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.InformationRequests.HTTPTimeoutMS = ms
		}
	}
	if v := os.Getenv("MAESTRO_DASHBOARD_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Dashboard.RequestTimeout = d
		}
	}
}
