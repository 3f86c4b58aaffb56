package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cronhook/pkg/cronjob"
)

const secretEnv = "CRONHOOK_TEST_SECRET"

func testRegistry() *cronjob.Registry {
	reg := cronjob.NewRegistry()
	reg.MustRegister("cleanup", cronjob.Definition{
		Schedule:    cronjob.Every("0 3 * * *"),
		Description: "remove expired sessions",
		Timeout:     90 * time.Second,
		Handler: func(context.Context, cronjob.JobContext) (any, error) {
			return map[string]int{"removed": 7}, nil
		},
	})
	reg.MustRegister("report", cronjob.Definition{
		Schedule: cronjob.Every("0 9 * * 1", "0 17 * * 5"),
		Retry:    cronjob.Bool(false),
		Handler: func(context.Context, cronjob.JobContext) (any, error) {
			return nil, errors.New("smtp down")
		},
	})
	return reg
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cronhook.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func run(reg *cronjob.Registry, args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	err := Execute(context.Background(), reg, Options{Args: args, Stdout: &out, Stderr: &errOut})
	return out.String(), errOut.String(), err
}

const baseConfig = `secret_env: CRONHOOK_TEST_SECRET
base_url: https://app.example.com
logging:
  level: error
`

func TestInit(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cronhook.yaml")

	if _, _, err := run(testRegistry(), "init", "--config", path); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("project file: %v", err)
	}
	if fi, err := os.Stat(filepath.Join(filepath.Dir(path), ".github", "workflows")); err != nil || !fi.IsDir() {
		t.Fatalf("workflow dir: %v", err)
	}
	if _, _, err := run(testRegistry(), "init", "--config", path); err == nil {
		t.Fatal("second init without --force should fail")
	}
	if _, _, err := run(testRegistry(), "init", "--config", path, "--force", "--name", "Nightly"); err != nil {
		t.Fatalf("init --force: %v", err)
	}
	b, _ := os.ReadFile(path)
	if !strings.Contains(string(b), `name: "Nightly"`) {
		t.Fatalf("starter file = %s", b)
	}
}

func TestGenerate(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, baseConfig)

	stdout, _, err := run(testRegistry(), "generate", "--config", path, "--out", "-")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, want := range []string{"cleanup", "report-1", "report-2", "https://app.example.com/api/cron/cleanup"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("workflow missing %q:\n%s", want, stdout)
		}
	}

	if _, _, err := run(testRegistry(), "generate", "--config", path); err != nil {
		t.Fatalf("generate to file: %v", err)
	}
	written := filepath.Join(filepath.Dir(path), ".github", "workflows", "cron-jobs.yml")
	b, err := os.ReadFile(written)
	if err != nil {
		t.Fatalf("read workflow: %v", err)
	}
	if string(b) != stdout {
		t.Fatal("file and stdout output differ")
	}

	if _, _, err := run(testRegistry(), "generate", "--config", path, "--check"); err != nil {
		t.Fatalf("check on fresh file: %v", err)
	}
	reg := testRegistry()
	reg.MustRegister("extra", cronjob.Definition{Schedule: cronjob.Every("*/5 * * * *"), Handler: func(context.Context, cronjob.JobContext) (any, error) { return nil, nil }})
	_, stderr, err := run(reg, "generate", "--config", path, "--check")
	var exit *ExitError
	if !errors.As(err, &exit) || exit.Code != 1 {
		t.Fatalf("check on stale file = %v, want exit 1", err)
	}
	if !strings.Contains(stderr, "out of date") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestGenerateErrors(t *testing.T) {
	t.Parallel()
	reg := cronjob.NewRegistry()
	reg.MustRegister("bad", cronjob.Definition{Schedule: cronjob.Every("75 * * * *"), Handler: func(context.Context, cronjob.JobContext) (any, error) { return nil, nil }})
	path := writeConfig(t, baseConfig)

	if _, _, err := run(reg, "generate", "--config", path, "--out", "-"); err != nil {
		t.Fatalf("non-strict generate: %v", err)
	}
	_, _, err := run(reg, "generate", "--config", path, "--out", "-", "--strict")
	if !cronjob.IsKind(err, cronjob.KindInvalidCronExpression) {
		t.Fatalf("strict err = %v, want %s", err, cronjob.KindInvalidCronExpression)
	}

	noURL := writeConfig(t, "logging:\n  level: error\n")
	_, _, err = run(testRegistry(), "generate", "--config", noURL, "--out", "-")
	if !cronjob.IsKind(err, cronjob.KindMissingBaseURL) {
		t.Fatalf("err = %v, want %s", err, cronjob.KindMissingBaseURL)
	}

	unknown := writeConfig(t, "nmae: typo\n")
	if _, _, err := run(testRegistry(), "generate", "--config", unknown, "--out", "-"); err == nil {
		t.Fatal("expected error for unknown config field")
	}
}

func TestList(t *testing.T) {
	t.Parallel()
	stdout, _, err := run(testRegistry(), "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, want := range []string{"JOB", "cleanup", "0 9 * * 1, 0 17 * * 5", "1m30s", "remove expired sessions"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("list output missing %q:\n%s", want, stdout)
		}
	}

	stdout, _, err = run(testRegistry(), "list", "--json")
	if err != nil {
		t.Fatalf("list --json: %v", err)
	}
	var jobs []jobRow
	if err := json.Unmarshal([]byte(stdout), &jobs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(jobs) != 2 || jobs[0].Name != "cleanup" || jobs[1].Retry {
		t.Fatalf("jobs = %+v", jobs)
	}
	if jobs[0].Next.Hour() != 3 {
		t.Fatalf("cleanup next = %v, want 03:00", jobs[0].Next)
	}
}

func TestRowsNextIsSoonest(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC) // a Friday
	got := rows(testRegistry().List(), now)
	want := time.Date(2026, 3, 6, 17, 0, 0, 0, time.UTC)
	if !got[1].Next.Equal(want) {
		t.Fatalf("report next = %v, want %v", got[1].Next, want)
	}
}

// The test command reads the secret from the environment, so these cases
// cannot run in parallel.
func TestTestCommand(t *testing.T) {
	t.Setenv(secretEnv, "hunter2")
	path := writeConfig(t, baseConfig)

	tests := []struct {
		name       string
		args       []string
		wantStatus int
		wantExit   bool
	}{
		{"success", []string{"test", "cleanup"}, 200, false},
		{"handler error", []string{"test", "report"}, 500, true},
		{"wrong secret", []string{"test", "cleanup", "--secret", "nope"}, 403, true},
		{"no secret", []string{"test", "cleanup", "--secret", ""}, 401, true},
		{"unknown job", []string{"test", "missing"}, 404, true},
	}
	for _, tt := range tests {
		args := append(tt.args, "--config", path)
		stdout, _, err := run(testRegistry(), args...)
		var exit *ExitError
		if got := errors.As(err, &exit); got != tt.wantExit {
			t.Fatalf("%s: err = %v, want exit %v", tt.name, err, tt.wantExit)
		}
		var out testOutput
		if err := json.Unmarshal([]byte(stdout), &out); err != nil {
			t.Fatalf("%s: decode %q: %v", tt.name, stdout, err)
		}
		if out.Status != tt.wantStatus {
			t.Fatalf("%s: status = %d, want %d", tt.name, out.Status, tt.wantStatus)
		}
	}
}

func TestMainExitCodes(t *testing.T) {
	t.Parallel()
	if code := Main(context.Background(), testRegistry(), Options{Args: []string{"list"}, Stdout: &bytes.Buffer{}}); code != 0 {
		t.Fatalf("list exit = %d, want 0", code)
	}
	var errOut bytes.Buffer
	if code := Main(context.Background(), testRegistry(), Options{Args: []string{"nope"}, Stdout: &bytes.Buffer{}, Stderr: &errOut}); code != 1 {
		t.Fatalf("unknown command exit = %d, want 1", code)
	}
	if !strings.Contains(errOut.String(), "unknown command") {
		t.Fatalf("stderr = %q", errOut.String())
	}
}

func TestLocalTarget(t *testing.T) {
	t.Parallel()
	tests := []struct {
		addr string
		want string
	}{
		{":8080", "http://127.0.0.1:8080"},
		{"0.0.0.0:9000", "http://127.0.0.1:9000"},
		{"localhost:3000", "http://localhost:3000"},
		{"[::]:8081", "http://127.0.0.1:8081"},
		{"garbage", "http://127.0.0.1:8080"},
	}
	for _, tt := range tests {
		if got := localTarget(tt.addr); got != tt.want {
			t.Fatalf("localTarget(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}
