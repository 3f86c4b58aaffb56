package cronjob

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestJobContextLifecycle(t *testing.T) {
	t.Parallel()
	headers := http.Header{"X-Cron-Secret": {"s"}}
	meta := map[string]any{"source": "test"}
	start := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)

	base := newJobContextAt("report", headers, meta, start)
	if base.InvocationID == "" {
		t.Fatal("InvocationID is empty")
	}
	if base.Completed() || base.Failed() {
		t.Fatal("base context should be neither completed nor failed")
	}

	// Base context owns its copies.
	headers.Set("X-Cron-Secret", "changed")
	meta["source"] = "changed"
	if base.Headers.Get("X-Cron-Secret") != "s" || base.Metadata["source"] != "test" {
		t.Fatalf("base context aliases caller maps: %+v", base)
	}

	done := completeAt(base, 42, start, start.Add(1500*time.Millisecond))
	if !done.Completed() || done.Failed() {
		t.Fatal("completed context state wrong")
	}
	if done.Result != 42 || done.Err != nil {
		t.Fatalf("done = %+v", done)
	}
	if done.DurationMillis() != 1500 {
		t.Fatalf("DurationMillis = %d, want 1500", done.DurationMillis())
	}
	if base.Duration != 0 || base.Result != nil {
		t.Fatal("completeAt mutated base")
	}

	boom := errors.New("boom")
	failed := failAt(base, boom, start, start.Add(time.Second))
	if !failed.Failed() || failed.Completed() {
		t.Fatal("failed context state wrong")
	}
	if failed.Result != nil || !errors.Is(failed.Err, boom) {
		t.Fatalf("failed = %+v", failed)
	}
	if failed.InvocationID != base.InvocationID || !failed.StartedAt.Equal(start) {
		t.Fatal("failAt lost base fields")
	}
}

func TestNewJobContextNilHeaders(t *testing.T) {
	t.Parallel()
	jc := NewJobContext("x", nil, nil)
	if jc.Headers == nil {
		t.Fatal("Headers should never be nil")
	}
	if jc.Metadata != nil {
		t.Fatal("Metadata should stay nil when not given")
	}
	if time.Since(jc.StartedAt) > time.Minute {
		t.Fatalf("StartedAt = %v, want ~now", jc.StartedAt)
	}
}

func TestCompleteUsesWallClock(t *testing.T) {
	t.Parallel()
	start := time.Now()
	base := NewJobContext("x", nil, nil)
	time.Sleep(20 * time.Millisecond)
	done := Complete(base, nil, start)
	if done.Duration < 20*time.Millisecond {
		t.Fatalf("Duration = %v, want >= 20ms", done.Duration)
	}
	failed := Fail(base, errors.New("x"), start)
	if failed.Duration < 20*time.Millisecond {
		t.Fatalf("Duration = %v, want >= 20ms", failed.Duration)
	}
}
