// Package config provides configuration loading and management for maestro.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete maestro configuration.
type Config struct {
	ProjectBase         string                    `yaml:"project_base"`
	Git                 GitConfig                 `yaml:"git"`
	AllowWorkspaceGit   bool                      `yaml:"allow_workspace_git"`
	BlockedExts         []string                  `yaml:"blocked_exts"`
	WriteDiagnostics    bool                      `yaml:"write_diagnostics"`
	Transport           TransportConfig           `yaml:"transport"`
	Log                 LogConfig                 `yaml:"log"`
	InformationRequests InformationRequestsConfig `yaml:"information_requests"`
	Dashboard           DashboardConfig           `yaml:"dashboard"`
	Workflows           map[string]string         `yaml:"workflows"` // task stage -> definition file path
	TaskLogKeep         int                       `yaml:"task_log_keep"`
}

// GitConfig configures how the Repo Mutator authenticates and commits.
type GitConfig struct {
	Token           string `yaml:"token"`
	Password        string `yaml:"password"`
	SSHKeyPath      string `yaml:"ssh_key_path"`
	Username        string `yaml:"username"`
	CredentialsPath string `yaml:"credentials_path"`
	DefaultBranch   string `yaml:"default_branch"`
}

// TransportConfig selects and configures the message transport.
type TransportConfig struct {
	Type           string `yaml:"type"` // "redis" | "local"
	RequestStream  string `yaml:"request_stream"`
	ResponseStream string `yaml:"response_stream"`
	RedisURL       string `yaml:"redis_url"`
	RedisPassword  string `yaml:"redis_password"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
	File    string `yaml:"file"`
}

// InformationRequestsConfig bounds the information-acquisition helpers.
type InformationRequestsConfig struct {
	MaxRequestsPerIteration int      `yaml:"max_requests_per_iteration"`
	MaxFileBytes            int64    `yaml:"max_file_bytes"`
	MaxHTTPBytes            int64    `yaml:"max_http_bytes"`
	MaxSnippetChars         int      `yaml:"max_snippet_chars"`
	HTTPTimeoutMS           int      `yaml:"http_timeout_ms"`
	DenyHosts               []string `yaml:"deny_hosts"`
	DenyHostsFile           string   `yaml:"deny_hosts_file"`
	ArtifactSubdir          string   `yaml:"artifact_subdir"`
}

// DashboardConfig configures the external task dashboard client.
type DashboardConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DefaultConfig returns a Config with sensible defaults, mirroring the
// defaults implied by spec.md §6's environment/configuration option table.
func DefaultConfig() *Config {
	return &Config{
		Git: GitConfig{
			DefaultBranch: "main",
		},
		BlockedExts: []string{".env", ".pem", ".key"},
		Transport: TransportConfig{
			Type:           "local",
			RequestStream:  "persona.request",
			ResponseStream: "persona.response",
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
		InformationRequests: InformationRequestsConfig{
			MaxRequestsPerIteration: 5,
			MaxFileBytes:            1 << 20,
			MaxHTTPBytes:            1 << 20,
			MaxSnippetChars:         4000,
			HTTPTimeoutMS:           10_000,
			ArtifactSubdir:          "acquisitions",
		},
		Dashboard: DashboardConfig{
			RequestTimeout: 30 * time.Second,
		},
		TaskLogKeep: 5,
	}
}

// Validate checks invariants the rest of the system assumes hold.
func (c *Config) Validate() error {
	switch c.Transport.Type {
	case "redis":
		if c.Transport.RedisURL == "" {
			return fmt.Errorf("transport.redis_url is required when transport.type=redis")
		}
	case "local":
	default:
		return fmt.Errorf("transport.type must be %q or %q, got %q", "redis", "local", c.Transport.Type)
	}
	if c.Transport.RequestStream == "" || c.Transport.ResponseStream == "" {
		return fmt.Errorf("transport.request_stream and transport.response_stream are required")
	}
	if c.TaskLogKeep <= 0 {
		return fmt.Errorf("task_log_keep must be positive")
	}
	return nil
}

// Merge overlays other onto c, field by field, for every non-zero value in
// other. Used to apply user config over defaults, then project config over
// that, per Loader.Load's layered precedence.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if other.ProjectBase != "" {
		c.ProjectBase = other.ProjectBase
	}
	if other.Git.Token != "" {
		c.Git.Token = other.Git.Token
	}
	if other.Git.Password != "" {
		c.Git.Password = other.Git.Password
	}
	if other.Git.SSHKeyPath != "" {
		c.Git.SSHKeyPath = other.Git.SSHKeyPath
	}
	if other.Git.Username != "" {
		c.Git.Username = other.Git.Username
	}
	if other.Git.CredentialsPath != "" {
		c.Git.CredentialsPath = other.Git.CredentialsPath
	}
	if other.Git.DefaultBranch != "" {
		c.Git.DefaultBranch = other.Git.DefaultBranch
	}
	if other.AllowWorkspaceGit {
		c.AllowWorkspaceGit = true
	}
	if len(other.BlockedExts) > 0 {
		c.BlockedExts = other.BlockedExts
	}
	if other.WriteDiagnostics {
		c.WriteDiagnostics = true
	}
	if other.Transport.Type != "" {
		c.Transport.Type = other.Transport.Type
	}
	if other.Transport.RequestStream != "" {
		c.Transport.RequestStream = other.Transport.RequestStream
	}
	if other.Transport.ResponseStream != "" {
		c.Transport.ResponseStream = other.Transport.ResponseStream
	}
	if other.Transport.RedisURL != "" {
		c.Transport.RedisURL = other.Transport.RedisURL
	}
	if other.Transport.RedisPassword != "" {
		c.Transport.RedisPassword = other.Transport.RedisPassword
	}
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.File != "" {
		c.Log.File = other.Log.File
	}
	if other.InformationRequests.MaxRequestsPerIteration != 0 {
		c.InformationRequests.MaxRequestsPerIteration = other.InformationRequests.MaxRequestsPerIteration
	}
	if other.InformationRequests.MaxFileBytes != 0 {
		c.InformationRequests.MaxFileBytes = other.InformationRequests.MaxFileBytes
	}
	if other.InformationRequests.MaxHTTPBytes != 0 {
		c.InformationRequests.MaxHTTPBytes = other.InformationRequests.MaxHTTPBytes
	}
	if other.InformationRequests.MaxSnippetChars != 0 {
		c.InformationRequests.MaxSnippetChars = other.InformationRequests.MaxSnippetChars
	}
	if other.InformationRequests.HTTPTimeoutMS != 0 {
		c.InformationRequests.HTTPTimeoutMS = other.InformationRequests.HTTPTimeoutMS
	}
	if len(other.InformationRequests.DenyHosts) > 0 {
		c.InformationRequests.DenyHosts = other.InformationRequests.DenyHosts
	}
	if other.InformationRequests.DenyHostsFile != "" {
		c.InformationRequests.DenyHostsFile = other.InformationRequests.DenyHostsFile
	}
	if other.InformationRequests.ArtifactSubdir != "" {
		c.InformationRequests.ArtifactSubdir = other.InformationRequests.ArtifactSubdir
	}
	if other.Dashboard.BaseURL != "" {
		c.Dashboard.BaseURL = other.Dashboard.BaseURL
	}
	if other.Dashboard.RequestTimeout != 0 {
		c.Dashboard.RequestTimeout = other.Dashboard.RequestTimeout
	}
	if len(other.Workflows) > 0 {
		if c.Workflows == nil {
			c.Workflows = map[string]string{}
		}
		for stage, path := range other.Workflows {
			c.Workflows[stage] = path
		}
	}
	if other.TaskLogKeep != 0 {
		c.TaskLogKeep = other.TaskLogKeep
	}
}

// parseYAML decodes a YAML document into a fresh Config seeded with
// defaults, so a partial file only overrides what it mentions.
func parseYAML(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
