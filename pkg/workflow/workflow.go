package workflow

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"cronhook/pkg/cronjob"
)

const (
	DefaultName       = "Cron Jobs"
	DefaultPathPrefix = "/api/cron"
	DefaultSecretName = "CRON_SECRET"
	DefaultRunsOn     = "ubuntu-latest"

	SourceVars    = "vars"
	SourceSecrets = "secrets"

	retryCount      = 3
	retryDelaySecs  = 10
	generatedHeader = "Generated by cronhook. Do not edit by hand; run `cronhook generate` instead."
)

// Config controls how the registry is projected into a workflow.
//
// Exactly one of BaseURL or BaseURLEnv must be usable; BaseURLEnv wins when
// both are set and is rendered as ${{ <BaseURLSource>.<BaseURLEnv> }}.
type Config struct {
	Name          string
	BaseURL       string
	BaseURLEnv    string
	BaseURLSource string // "vars" (default) or "secrets"
	PathPrefix    string
	SecretName    string
	RunsOn        string
}

func (c Config) withDefaults() Config {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		c.Name = DefaultName
	}
	c.BaseURLSource = strings.ToLower(strings.TrimSpace(c.BaseURLSource))
	if c.BaseURLSource == "" {
		c.BaseURLSource = SourceVars
	}
	c.PathPrefix = normalizePrefix(c.PathPrefix)
	if strings.TrimSpace(c.SecretName) == "" {
		c.SecretName = DefaultSecretName
	}
	if strings.TrimSpace(c.RunsOn) == "" {
		c.RunsOn = DefaultRunsOn
	}
	return c
}

func normalizePrefix(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return DefaultPathPrefix
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/")
}

// BaseURLExpr resolves the base URL as it should appear in the workflow.
func BaseURLExpr(cfg Config) (string, error) {
	cfg = cfg.withDefaults()
	if env := strings.TrimSpace(cfg.BaseURLEnv); env != "" {
		if cfg.BaseURLSource != SourceVars && cfg.BaseURLSource != SourceSecrets {
			return "", fmt.Errorf("base url source must be %q or %q, got %q", SourceVars, SourceSecrets, cfg.BaseURLSource)
		}
		return fmt.Sprintf("${{ %s.%s }}", cfg.BaseURLSource, env), nil
	}
	if u := strings.TrimSpace(cfg.BaseURL); u != "" {
		return strings.TrimRight(u, "/"), nil
	}
	return "", cronjob.NewError(cronjob.KindMissingBaseURL, "A base URL or base URL environment variable is required to generate the workflow")
}

// TriggerID names the workflow job for schedule index i of a job with n
// schedules: the bare job name when n == 1, "<job>-<i+1>" otherwise.
// Already-committed workflows depend on this naming.
func TriggerID(job string, i, n int) string {
	if n == 1 {
		return job
	}
	return job + "-" + strconv.Itoa(i+1)
}

// TimeoutMinutes converts an advisory timeout to whole minutes, rounding up.
// It returns 0 when no timeout is set.
func TimeoutMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}

// Generate renders the GitHub Actions workflow for entries. It is pure: the
// same entries and config always produce the same document.
func Generate(entries []cronjob.Entry, cfg Config) (string, error) {
	cfg = cfg.withDefaults()
	base, err := BaseURLExpr(cfg)
	if err != nil {
		return "", err
	}

	schedules := seq()
	jobs := mapping()
	for _, e := range entries {
		exprs := distinct(e.Definition.Schedule)
		for _, expr := range exprs {
			schedules.Content = append(schedules.Content, mapping(str("cron"), quoted(expr)))
		}

		url := base + cfg.PathPrefix + "/" + e.Name
		for i, expr := range exprs {
			jobs.Content = append(jobs.Content,
				str(TriggerID(e.Name, i, len(exprs))),
				triggerBlock(e, expr, url, i == 0, cfg),
			)
		}
	}

	on := mapping(
		str("schedule"), schedules,
		str("workflow_dispatch"), flowMapping(),
	)
	root := mapping(
		str("name"), str(cfg.Name),
		str("on"), on,
		str("jobs"), jobs,
	)
	doc := &yaml.Node{Kind: yaml.DocumentNode, HeadComment: generatedHeader, Content: []*yaml.Node{root}}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("encode workflow: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encode workflow: %w", err)
	}
	return buf.String(), nil
}

// distinct normalizes whitespace and drops repeated expressions, keeping
// first-seen order. Trigger indices are assigned over the result.
func distinct(schedule cronjob.Schedule) []string {
	out := make([]string, 0, len(schedule))
	seen := make(map[string]bool, len(schedule))
	for _, s := range schedule {
		expr := cronjob.NormalizeCron(s)
		if seen[expr] {
			continue
		}
		seen[expr] = true
		out = append(out, expr)
	}
	return out
}

// GenerateFromRegistry is Generate over reg.List().
func GenerateFromRegistry(reg *cronjob.Registry, cfg Config) (string, error) {
	return Generate(reg.List(), cfg)
}

// triggerBlock renders one workflow job. Only the first block of a job also
// runs on manual dispatch, so a manual run calls the job once.
func triggerBlock(e cronjob.Entry, expr, url string, manual bool, cfg Config) *yaml.Node {
	cond := fmt.Sprintf("github.event.schedule == '%s'", expr)
	if manual {
		cond = "github.event_name == 'workflow_dispatch' || " + cond
	}
	block := mapping(
		str("runs-on"), str(cfg.RunsOn),
		str("if"), str(cond),
	)
	if m := TimeoutMinutes(e.Definition.Timeout); m > 0 {
		block.Content = append(block.Content, str("timeout-minutes"), integer(m))
	}
	step := mapping(
		str("name"), str("Trigger "+e.Name),
		str("run"), literal(curlCommand(url, cfg.SecretName, e.Definition.RetryEnabled())),
	)
	block.Content = append(block.Content, str("steps"), seq(step))
	return block
}

func curlCommand(url, secretName string, retry bool) string {
	var b strings.Builder
	b.WriteString("curl -X POST -f -sS")
	if retry {
		fmt.Fprintf(&b, " --retry %d --retry-delay %d", retryCount, retryDelaySecs)
	}
	b.WriteString(" \\\n")
	fmt.Fprintf(&b, "  -H \"%s: ${{ secrets.%s }}\" \\\n", cronjob.SecretHeader, secretName)
	b.WriteString("  -H \"Content-Type: application/json\" \\\n")
	fmt.Fprintf(&b, "  \"%s\"\n", url)
	return b.String()
}

// FileName derives the workflow file name from the configured name,
// e.g. "Cron Jobs" -> "cron-jobs.yml".
func FileName(cfg Config) string {
	name := cfg.withDefaults().Name
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		slug = "cron-jobs"
	}
	return slug + ".yml"
}

// ---- yaml node helpers ----

func str(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func quoted(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Style: yaml.SingleQuotedStyle, Value: v}
}

func literal(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Style: yaml.LiteralStyle, Value: v}
}

func integer(v int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(v)}
}

func mapping(kv ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Content: kv}
}

func flowMapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Style: yaml.FlowStyle}
}

func seq(items ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Content: items}
}
