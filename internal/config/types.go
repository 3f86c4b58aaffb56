package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cronhook/pkg/logx"
	"cronhook/pkg/workflow"
)

const (
	DefaultFile        = "cronhook.yaml"
	DefaultSecretEnv   = "CRON_SECRET"
	DefaultWorkflowDir = ".github/workflows"
	DefaultAddr        = ":8080"
	DefaultMetricsPath = "/metrics"
	DefaultDevTarget   = "http://127.0.0.1:8080"
	DefaultTokenEnv    = "TELEGRAM_BOT_TOKEN"
)

// Config is the project file (cronhook.yaml or cronhook.json).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Name string `json:"name,omitempty"`

	// SecretEnv names the environment variable holding the shared secret. The
	// same name is used for the GitHub Actions secret.
	SecretEnv string `json:"secret_env,omitempty"`

	BaseURL       string `json:"base_url,omitempty"`
	BaseURLEnv    string `json:"base_url_env,omitempty"`
	BaseURLSource string `json:"base_url_source,omitempty"`
	PathPrefix    string `json:"path_prefix,omitempty"`
	WorkflowDir   string `json:"workflow_dir,omitempty"`

	Server  ServerConfig  `json:"server"`
	Dev     DevConfig     `json:"dev"`
	Logging LoggingConfig `json:"logging"`
	Metrics MetricsConfig `json:"metrics"`
	Notify  NotifyConfig  `json:"notify"`
}

type ServerConfig struct {
	Addr            string `json:"addr,omitempty"`
	ReadTimeout     string `json:"read_timeout,omitempty"`
	WriteTimeout    string `json:"write_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
	// Pprof mounts net/http/pprof under /debug on the main listener.
	Pprof bool `json:"pprof"`
}

// DevConfig controls the local scheduler used by `cronhook dev`.
type DevConfig struct {
	// Target is the base URL the dev loop POSTs to. Defaults to the local server.
	Target         string  `json:"target,omitempty"`
	RatePerSec     float64 `json:"rate_per_sec,omitempty"`
	Burst          int     `json:"burst,omitempty"`
	RequestTimeout string  `json:"request_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

// TelegramConfig sends a message for every failed invocation.
type TelegramConfig struct {
	Enabled    bool    `json:"enabled"`
	TokenEnv   string  `json:"token_env,omitempty"`
	ChatID     int64   `json:"chat_id,omitempty"`
	ThreadID   int     `json:"thread_id,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	// DedupWindow suppresses repeat failures of one job inside the window.
	DedupWindow string `json:"dedup_window,omitempty"`
}

// Dedup parses DedupWindow; empty means no suppression.
func (t TelegramConfig) Dedup() (time.Duration, error) {
	return ParseDurationOrDefault("notify.telegram.dedup_window", t.DedupWindow, 0)
}

// Default returns the config used when no project file exists.
func Default() *Config {
	c := &Config{Logging: LoggingConfig{Level: "info", Console: true}}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills omitted fields in place.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Name) == "" {
		c.Name = workflow.DefaultName
	}
	if strings.TrimSpace(c.SecretEnv) == "" {
		c.SecretEnv = DefaultSecretEnv
	}
	if strings.TrimSpace(c.BaseURLSource) == "" {
		c.BaseURLSource = workflow.SourceVars
	}
	if strings.TrimSpace(c.PathPrefix) == "" {
		c.PathPrefix = workflow.DefaultPathPrefix
	}
	if strings.TrimSpace(c.WorkflowDir) == "" {
		c.WorkflowDir = DefaultWorkflowDir
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		c.Server.Addr = DefaultAddr
	}
	if strings.TrimSpace(c.Dev.Target) == "" {
		c.Dev.Target = DefaultDevTarget
	}
	if c.Dev.RatePerSec <= 0 {
		c.Dev.RatePerSec = 5
	}
	if c.Dev.Burst <= 0 {
		c.Dev.Burst = 1
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Metrics.Path) == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if strings.TrimSpace(c.Notify.Telegram.TokenEnv) == "" {
		c.Notify.Telegram.TokenEnv = DefaultTokenEnv
	}
	if c.Notify.Telegram.RatePerSec <= 0 {
		c.Notify.Telegram.RatePerSec = 1
	}
}

// Validate checks field values that decoding cannot.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(strings.TrimSpace(c.BaseURLSource)) {
	case "", workflow.SourceVars, workflow.SourceSecrets:
	default:
		errs = append(errs, fmt.Errorf("base_url_source: must be %q or %q", workflow.SourceVars, workflow.SourceSecrets))
	}
	if _, err := c.Server.Timeouts(); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("dev.request_timeout", c.Dev.RequestTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Notify.Telegram.Dedup(); err != nil {
		errs = append(errs, err)
	}
	if c.Notify.Telegram.Enabled && c.Notify.Telegram.ChatID == 0 {
		errs = append(errs, errors.New("notify.telegram.chat_id: required when enabled"))
	}
	if p := strings.TrimSpace(c.Metrics.Path); p != "" && !strings.HasPrefix(p, "/") {
		errs = append(errs, errors.New("metrics.path: must start with /"))
	}
	return errors.Join(errs...)
}

// Secret reads the shared secret from the configured environment variable.
func (c *Config) Secret() string {
	return strings.TrimSpace(os.Getenv(c.SecretEnv))
}

// Workflow projects the file into generator options.
func (c *Config) Workflow() workflow.Config {
	return workflow.Config{
		Name:          c.Name,
		BaseURL:       c.BaseURL,
		BaseURLEnv:    c.BaseURLEnv,
		BaseURLSource: c.BaseURLSource,
		PathPrefix:    c.PathPrefix,
		SecretName:    c.SecretEnv,
	}
}

// Log converts the logging section for logx.
func (l LoggingConfig) Log() logx.Config {
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
	}
}

// Timeouts are the parsed server durations.
type Timeouts struct {
	Read     time.Duration
	Write    time.Duration
	Shutdown time.Duration
}

func (s ServerConfig) Timeouts() (Timeouts, error) {
	var t Timeouts
	var err error
	if t.Read, err = ParseDurationOrDefault("server.read_timeout", s.ReadTimeout, 10*time.Second); err != nil {
		return t, err
	}
	// Handlers run inside the request, so the write deadline bounds the job.
	if t.Write, err = ParseDurationOrDefault("server.write_timeout", s.WriteTimeout, 15*time.Minute); err != nil {
		return t, err
	}
	if t.Shutdown, err = ParseDurationOrDefault("server.shutdown_timeout", s.ShutdownTimeout, 30*time.Second); err != nil {
		return t, err
	}
	return t, nil
}

// Env overrides applied after the file is read.
const (
	EnvAddr     = "CRONHOOK_ADDR"
	EnvBaseURL  = "CRONHOOK_BASE_URL"
	EnvLogLevel = "CRONHOOK_LOG_LEVEL"
)

// ApplyEnv overrides selected fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvAddr); ok && strings.TrimSpace(v) != "" {
		c.Server.Addr = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvBaseURL); ok && strings.TrimSpace(v) != "" {
		c.BaseURL = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvLogLevel); ok && strings.TrimSpace(v) != "" {
		c.Logging.Level = strings.TrimSpace(v)
	}
}
