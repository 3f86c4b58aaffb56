// Package unitcheck is a ready-made cron job that reports systemd units that
// are not active and can restart the ones that have been down long enough.
package unitcheck

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cronhook/pkg/cronjob"
	"cronhook/pkg/logx"
)

// UnitState is the subset of unit properties the check looks at.
type UnitState struct {
	Name        string    `json:"name"`
	Active      string    `json:"active"` // active, inactive, failed, ...
	SubState    string    `json:"sub_state"`
	LoadState   string    `json:"load_state"`
	Description string    `json:"description,omitempty"`
	DownSince   time.Time `json:"down_since,omitempty"`
}

func (s UnitState) Missing() bool {
	return s.LoadState == "not-found" || s.SubState == "not-found"
}

func (s UnitState) Healthy() bool { return s.Active == "active" }

// Prober reads and restarts units. Unit names omit the ".service" suffix.
type Prober interface {
	Status(ctx context.Context, unit string) (UnitState, error)
	Restart(ctx context.Context, unit string) error
}

type Config struct {
	Units []string

	// Recover restarts units that have been down for at least MinDown.
	Recover        bool
	MinDown        time.Duration
	RestartTimeout time.Duration
}

// Report is the job result.
type Report struct {
	Checked   int         `json:"checked"`
	Healthy   []string    `json:"healthy"`
	Down      []UnitState `json:"down,omitempty"`
	Missing   []string    `json:"missing,omitempty"`
	Restarted []string    `json:"restarted,omitempty"`
}

// Check probes every unit once. It fails when any unit is still down
// afterwards; missing units are reported but do not fail the check.
func Check(ctx context.Context, p Prober, cfg Config, now time.Time) (Report, error) {
	if cfg.RestartTimeout <= 0 {
		cfg.RestartTimeout = 15 * time.Second
	}
	rep := Report{Healthy: []string{}}
	var errs []error
	for _, raw := range cfg.Units {
		u := strings.TrimSuffix(strings.TrimSpace(raw), ".service")
		if u == "" {
			continue
		}
		rep.Checked++
		st, err := p.Status(ctx, u)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u, err))
			continue
		}
		switch {
		case st.Missing():
			rep.Missing = append(rep.Missing, u)
			continue
		case st.Healthy():
			rep.Healthy = append(rep.Healthy, u)
			continue
		}

		if cfg.Recover && downLongEnough(st, cfg.MinDown, now) {
			rctx, cancel := context.WithTimeout(ctx, cfg.RestartTimeout)
			err := p.Restart(rctx, u)
			cancel()
			if err == nil {
				rep.Restarted = append(rep.Restarted, u)
				continue
			}
			errs = append(errs, fmt.Errorf("%s: restart: %w", u, err))
		}
		rep.Down = append(rep.Down, st)
	}
	if len(rep.Down) > 0 {
		names := make([]string, 0, len(rep.Down))
		for _, d := range rep.Down {
			names = append(names, d.Name+" ("+d.Active+")")
		}
		errs = append([]error{fmt.Errorf("units down: %s", strings.Join(names, ", "))}, errs...)
	}
	return rep, errors.Join(errs...)
}

// downLongEnough treats an unknown down-since time as long enough.
func downLongEnough(st UnitState, minDown time.Duration, now time.Time) bool {
	if minDown <= 0 || st.DownSince.IsZero() {
		return true
	}
	return now.Sub(st.DownSince) >= minDown
}

// Handler adapts Check to a job handler. connect is called per invocation
// so the job holds no connection between runs.
func Handler(connect func(ctx context.Context) (Prober, func(), error), cfg func() Config, log logx.Logger) cronjob.Handler {
	return func(ctx context.Context, jc cronjob.JobContext) (any, error) {
		c := cfg()
		if len(c.Units) == 0 {
			return Report{Healthy: []string{}}, nil
		}
		p, closeFn, err := connect(ctx)
		if err != nil {
			return nil, err
		}
		defer closeFn()

		rep, err := Check(ctx, p, c, time.Now())
		for _, u := range rep.Restarted {
			log.Warn("unit restarted", logx.String("unit", u), logx.String("invocation_id", jc.InvocationID))
		}
		for _, u := range rep.Missing {
			log.Warn("unit not found", logx.String("unit", u))
		}
		if err != nil {
			return nil, err
		}
		return rep, nil
	}
}

// ParseUnits splits a comma or space separated unit list.
func ParseUnits(s string) []string {
	f := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\n' || r == '\t' })
	out := f[:0]
	for _, u := range f {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// DBus is the connect func for Handler backed by the system D-Bus.
func DBus(ctx context.Context) (Prober, func(), error) {
	p, err := NewDBusProber(ctx)
	if err != nil {
		return nil, nil, err
	}
	return p, p.Close, nil
}
