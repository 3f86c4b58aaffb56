package config

import (
	"bytes"
	"text/template"
)

var starterTmpl = template.Must(template.New("cronhook.yaml").Parse(`# cronhook project file.
name: {{ printf "%q" .Name }}

# Environment variable (and GitHub Actions secret) holding the shared secret.
secret_env: {{ .SecretEnv }}

# Where GitHub Actions should send triggers. Set base_url, or base_url_env to
# read it from a repository variable (base_url_source: vars) or secret.
base_url_env: {{ .BaseURLEnv }}
base_url_source: vars
path_prefix: /api/cron
workflow_dir: .github/workflows

server:
  addr: ":8080"
  write_timeout: 15m

dev:
  target: http://127.0.0.1:8080
  rate_per_sec: 5

logging:
  level: info
  console: true
  file:
    enabled: false

metrics:
  enabled: true
  path: /metrics

notify:
  telegram:
    enabled: false
    token_env: TELEGRAM_BOT_TOKEN
    chat_id: 0
`))

// StarterOptions fills the starter file.
type StarterOptions struct {
	Name       string
	SecretEnv  string
	BaseURLEnv string
}

// Starter renders the file written by `cronhook init`.
func Starter(opts StarterOptions) []byte {
	if opts.Name == "" {
		opts.Name = Default().Name
	}
	if opts.SecretEnv == "" {
		opts.SecretEnv = DefaultSecretEnv
	}
	if opts.BaseURLEnv == "" {
		opts.BaseURLEnv = "CRON_BASE_URL"
	}
	var buf bytes.Buffer
	_ = starterTmpl.Execute(&buf, opts)
	return buf.Bytes()
}
