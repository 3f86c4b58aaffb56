package unitcheck

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"cronhook/pkg/cronjob"
	"cronhook/pkg/logx"
)

type fakeProber struct {
	states     map[string]UnitState
	restartErr error
	restarted  []string
}

func (f *fakeProber) Status(_ context.Context, unit string) (UnitState, error) {
	st, ok := f.states[unit]
	if !ok {
		return UnitState{}, errors.New("dbus timeout")
	}
	return st, nil
}

func (f *fakeProber) Restart(_ context.Context, unit string) error {
	if f.restartErr != nil {
		return f.restartErr
	}
	f.restarted = append(f.restarted, unit)
	return nil
}

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func states() map[string]UnitState {
	return map[string]UnitState{
		"nginx":  {Name: "nginx", Active: "active", SubState: "running", LoadState: "loaded"},
		"worker": {Name: "worker", Active: "failed", SubState: "failed", LoadState: "loaded", DownSince: now.Add(-time.Minute)},
		"flaky":  {Name: "flaky", Active: "inactive", SubState: "dead", LoadState: "loaded", DownSince: now.Add(-time.Second)},
		"ghost":  {Name: "ghost", Active: "unknown", SubState: "not-found", LoadState: "not-found"},
	}
}

func TestCheck(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name          string
		cfg           Config
		restartErr    error
		wantHealthy   []string
		wantDown      int
		wantRestarted []string
		wantErr       string
	}{
		{
			name:        "all healthy",
			cfg:         Config{Units: []string{"nginx.service", " nginx "}},
			wantHealthy: []string{"nginx", "nginx"},
		},
		{
			name:        "down without recover",
			cfg:         Config{Units: []string{"nginx", "worker", "ghost"}},
			wantHealthy: []string{"nginx"},
			wantDown:    1,
			wantErr:     "units down: worker (failed)",
		},
		{
			name:          "recover respects min down",
			cfg:           Config{Units: []string{"worker", "flaky"}, Recover: true, MinDown: 10 * time.Second},
			wantHealthy:   []string{},
			wantDown:      1,
			wantRestarted: []string{"worker"},
			wantErr:       "units down: flaky (inactive)",
		},
		{
			name:        "restart failure",
			cfg:         Config{Units: []string{"worker"}, Recover: true},
			restartErr:  errors.New("access denied"),
			wantHealthy: []string{},
			wantDown:    1,
			wantErr:     "worker: restart: access denied",
		},
		{
			name:        "probe error",
			cfg:         Config{Units: []string{"unknown-to-fake"}},
			wantHealthy: []string{},
			wantErr:     "dbus timeout",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &fakeProber{states: states(), restartErr: tt.restartErr}
			rep, err := Check(context.Background(), p, tt.cfg, now)
			if !reflect.DeepEqual(rep.Healthy, tt.wantHealthy) {
				t.Fatalf("Healthy = %v, want %v", rep.Healthy, tt.wantHealthy)
			}
			if len(rep.Down) != tt.wantDown {
				t.Fatalf("Down = %v, want %d", rep.Down, tt.wantDown)
			}
			if !reflect.DeepEqual(rep.Restarted, tt.wantRestarted) {
				t.Fatalf("Restarted = %v, want %v", rep.Restarted, tt.wantRestarted)
			}
			switch {
			case tt.wantErr == "" && err != nil:
				t.Fatalf("err = %v, want nil", err)
			case tt.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tt.wantErr)):
				t.Fatalf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestMissingUnitsAreReported(t *testing.T) {
	t.Parallel()
	rep, err := Check(context.Background(), &fakeProber{states: states()}, Config{Units: []string{"ghost"}}, now)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if !reflect.DeepEqual(rep.Missing, []string{"ghost"}) || rep.Checked != 1 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestHandler(t *testing.T) {
	t.Parallel()
	closed := 0
	connect := func(context.Context) (Prober, func(), error) {
		return &fakeProber{states: states()}, func() { closed++ }, nil
	}
	units := []string{"nginx"}
	h := Handler(connect, func() Config { return Config{Units: units} }, logx.Nop())

	res, err := h(context.Background(), cronjob.NewJobContext("units", nil, nil))
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if rep := res.(Report); rep.Checked != 1 || closed != 1 {
		t.Fatalf("report = %+v, closed = %d", rep, closed)
	}

	units = nil
	if _, err := h(context.Background(), cronjob.NewJobContext("units", nil, nil)); err != nil || closed != 1 {
		t.Fatalf("empty units: err = %v, closed = %d", err, closed)
	}

	failing := Handler(func(context.Context) (Prober, func(), error) {
		return nil, nil, errors.New("no bus")
	}, func() Config { return Config{Units: []string{"x"}} }, logx.Nop())
	if _, err := failing(context.Background(), cronjob.NewJobContext("units", nil, nil)); err == nil {
		t.Fatal("expected connect error")
	}
}

func TestParseUnits(t *testing.T) {
	t.Parallel()
	got := ParseUnits("nginx, worker  postgres,\n")
	if want := []string{"nginx", "worker", "postgres"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseUnits = %v, want %v", got, want)
	}
	if got := ParseUnits(""); len(got) != 0 {
		t.Fatalf("ParseUnits(\"\") = %v", got)
	}
}
