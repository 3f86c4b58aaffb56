//go:build linux

package unitcheck

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
)

// DBusProber talks to the system manager over D-Bus.
type DBusProber struct {
	conn *dbus.Conn
}

func NewDBusProber(ctx context.Context) (*DBusProber, error) {
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to systemd: %w", err)
	}
	return &DBusProber{conn: conn}, nil
}

func (p *DBusProber) Close() { p.conn.Close() }

func (p *DBusProber) Status(ctx context.Context, unit string) (UnitState, error) {
	name := unit + ".service"
	units, err := p.conn.ListUnitsByPatternsContext(ctx, nil, []string{name})
	if err == nil && len(units) > 0 {
		u := units[0]
		for _, x := range units {
			if x.Name == name {
				u = x
				break
			}
		}
		st := UnitState{
			Name:        unit,
			Active:      u.ActiveState,
			SubState:    u.SubState,
			LoadState:   u.LoadState,
			Description: u.Description,
		}
		if st.Missing() || st.Healthy() {
			return st, nil
		}
		if props, perr := p.conn.GetUnitPropertiesContext(ctx, name); perr == nil {
			st.DownSince = downSince(props)
		}
		return st, nil
	}

	props, err := p.conn.GetUnitPropertiesContext(ctx, name)
	if err != nil {
		if strings.Contains(err.Error(), "NoSuchUnit") {
			return UnitState{Name: unit, Active: "unknown", SubState: "not-found", LoadState: "not-found"}, nil
		}
		return UnitState{}, fmt.Errorf("status %s: %w", name, err)
	}
	st := UnitState{
		Name:        unit,
		Active:      stringProp(props, "ActiveState"),
		SubState:    stringProp(props, "SubState"),
		LoadState:   stringProp(props, "LoadState"),
		Description: stringProp(props, "Description"),
	}
	if !st.Healthy() {
		st.DownSince = downSince(props)
	}
	return st, nil
}

// Restart queues a restart and waits for the job result.
func (p *DBusProber) Restart(ctx context.Context, unit string) error {
	done := make(chan string, 1)
	if _, err := p.conn.RestartUnitContext(ctx, unit+".service", "replace", done); err != nil {
		return err
	}
	select {
	case res := <-done:
		if res != "done" {
			return errors.New("restart job " + res)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func downSince(props map[string]interface{}) time.Time {
	for _, k := range []string{"InactiveEnterTimestamp", "ActiveExitTimestamp", "StateChangeTimestamp"} {
		if ts, ok := props[k].(uint64); ok && ts > 0 {
			// microseconds since the epoch
			return time.Unix(int64(ts/1_000_000), 0)
		}
	}
	return time.Time{}
}

func stringProp(props map[string]interface{}, key string) string {
	v, _ := props[key].(string)
	return v
}
