package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func noEnv(string) (string, bool) { return "", false }

func TestStarterParses(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "cronhook.yaml", string(Starter(StarterOptions{Name: "Billing Jobs"})))
	m := NewManager(p)
	m.lookupEnv = noEnv
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse starter: %v", err)
	}
	if cfg.Name != "Billing Jobs" || cfg.SecretEnv != DefaultSecretEnv || cfg.BaseURLEnv != "CRON_BASE_URL" {
		t.Fatalf("cfg = %+v", cfg)
	}
	tm, err := cfg.Server.Timeouts()
	if err != nil || tm.Write != 15*time.Minute || tm.Read != 10*time.Second {
		t.Fatalf("Timeouts = %+v, %v", tm, err)
	}
	wf := cfg.Workflow()
	if wf.SecretName != DefaultSecretEnv || wf.PathPrefix != "/api/cron" {
		t.Fatalf("Workflow = %+v", wf)
	}
}

func TestParseStrict(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{name: "unknown yaml field", file: "c.yaml", content: "name: x\nbogus: 1\n", wantErr: "bogus"},
		{name: "unknown nested field", file: "c.yaml", content: "server:\n  port: 80\n", wantErr: "port"},
		{name: "trailing json", file: "c.json", content: `{"name":"x"}{"name":"y"}`, wantErr: "trailing"},
		{name: "bad duration", file: "c.yaml", content: "server:\n  read_timeout: soon\n", wantErr: "server.read_timeout"},
		{name: "bad source", file: "c.yaml", content: "base_url_source: env\n", wantErr: "base_url_source"},
		{name: "telegram without chat", file: "c.yaml", content: "notify:\n  telegram:\n    enabled: true\n", wantErr: "chat_id"},
		{name: "bad dedup window", file: "c.yaml", content: "notify:\n  telegram:\n    dedup_window: often\n", wantErr: "notify.telegram.dedup_window"},
		{name: "ok json", file: "c.json", content: `{"base_url":"https://x.test"}`},
		{name: "ok pprof", file: "c.yaml", content: "server:\n  pprof: true\n  shutdown_timeout: 5s\n"},
		{name: "empty yaml", file: "c.yaml", content: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewManager(writeFile(t, t.TempDir(), tt.file, tt.content))
			m.lookupEnv = noEnv
			_, err := m.Parse()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Parse: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Parse err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	m := NewManager(filepath.Join(t.TempDir(), "nope.yaml"))
	m.lookupEnv = noEnv
	cfg, err := m.Load()
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Load err = %v, want ErrNotExist", err)
	}
	if cfg == nil || m.Get() != cfg || cfg.Server.Addr != DefaultAddr {
		t.Fatalf("Load did not commit defaults: %+v", cfg)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()
	env := map[string]string{EnvAddr: ":9999", EnvBaseURL: "https://env.test", EnvLogLevel: "debug"}
	cfg := Default()
	cfg.ApplyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	if cfg.Server.Addr != ":9999" || cfg.BaseURL != "https://env.test" || cfg.Logging.Level != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestApplyEnvFile(t *testing.T) {
	key := "CRONHOOK_TEST_ENVFILE_KEY"
	kept := "CRONHOOK_TEST_ENVFILE_KEPT"
	t.Setenv(kept, "original")
	os.Unsetenv(key)
	t.Cleanup(func() { os.Unsetenv(key) })

	n := applyEnv("# comment\n\nexport " + key + "=\"a\\nb\"\n" + kept + "=override\nbroken\n=novalue\n")
	if n != 1 {
		t.Fatalf("applyEnv = %d, want 1", n)
	}
	if got := os.Getenv(key); got != "a\nb" {
		t.Fatalf("%s = %q", key, got)
	}
	if got := os.Getenv(kept); got != "original" {
		t.Fatalf("existing env overwritten: %q", got)
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	a := Default()
	b := Default()
	if changed, _ := SummarizeChange(a, b); len(changed) != 0 {
		t.Fatalf("changed = %v, want none", changed)
	}
	b.Logging.Level = "debug"
	changed, _ := SummarizeChange(a, b)
	if len(changed) != 1 || changed[0] != "logging" || RestartRequired(changed) {
		t.Fatalf("changed = %v", changed)
	}
	b.Server.Addr = ":1"
	changed, _ = SummarizeChange(a, b)
	if !RestartRequired(changed) {
		t.Fatalf("server change should need restart: %v", changed)
	}
}

func TestWatchPublishesValidEdits(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "cronhook.yaml", "logging:\n  level: info\n")
	m := NewManager(p)
	m.lookupEnv = noEnv
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.SetValidator(func(ctx context.Context, cfg *Config) error {
		if cfg.Logging.Level == "trace" {
			return errors.New("no trace in tests")
		}
		return nil
	})
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	writeFile(t, dir, "cronhook.yaml", "logging:\n  level: trace\n")
	time.Sleep(200 * time.Millisecond)
	writeFile(t, dir, "cronhook.yaml", "logging:\n  level: debug\n")

	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("published level = %q, want debug", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}
	if m.Get().Logging.Level != "debug" {
		t.Fatalf("committed level = %q", m.Get().Logging.Level)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch = %v", err)
	}
	m.Unsubscribe(sub)
	if _, ok := <-sub; ok {
		t.Fatal("subscriber channel not closed")
	}
}
