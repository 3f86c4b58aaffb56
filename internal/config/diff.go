package config

import (
	"strings"

	"cronhook/pkg/logx"
)

// SummarizeChange lists the sections that differ between two configs, with
// log fields safe to print. Secrets are never included: only the names of
// the env vars that hold them.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)

	if oldCfg.Name != newCfg.Name || oldCfg.BaseURL != newCfg.BaseURL ||
		oldCfg.BaseURLEnv != newCfg.BaseURLEnv || oldCfg.BaseURLSource != newCfg.BaseURLSource ||
		oldCfg.PathPrefix != newCfg.PathPrefix || oldCfg.WorkflowDir != newCfg.WorkflowDir {
		changed = append(changed, "workflow")
		attrs = append(attrs,
			logx.String("workflow.name", newCfg.Name),
			logx.String("workflow.path_prefix", newCfg.PathPrefix),
		)
	}
	if oldCfg.SecretEnv != newCfg.SecretEnv {
		changed = append(changed, "secret_env")
		attrs = append(attrs, logx.String("secret_env", newCfg.SecretEnv))
	}
	if oldCfg.Server != newCfg.Server {
		changed = append(changed, "server")
		attrs = append(attrs, logx.String("server.addr", newCfg.Server.Addr))
	}
	if oldCfg.Dev != newCfg.Dev {
		changed = append(changed, "dev")
		attrs = append(attrs,
			logx.String("dev.target", newCfg.Dev.Target),
			logx.Any("dev.rate_per_sec", newCfg.Dev.RatePerSec),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs, logx.Bool("metrics.enabled", newCfg.Metrics.Enabled))
	}
	if oldCfg.Notify != newCfg.Notify {
		changed = append(changed, "notify")
		attrs = append(attrs,
			logx.Bool("notify.telegram.enabled", newCfg.Notify.Telegram.Enabled),
			logx.String("notify.telegram.token_env", newCfg.Notify.Telegram.TokenEnv),
		)
	}
	if len(changed) > 0 {
		attrs = append(attrs, logx.String("changed", strings.Join(changed, ",")))
	}
	return changed, attrs
}

// RestartRequired reports whether a change can only take effect by
// restarting the server. Logging is applied live.
func RestartRequired(changed []string) bool {
	for _, c := range changed {
		if c != "logging" {
			return true
		}
	}
	return false
}
