//go:build !linux

package unitcheck

import (
	"context"
	"errors"
)

var ErrUnsupported = errors.New("unitcheck: systemd is linux only")

type DBusProber struct{}

func NewDBusProber(context.Context) (*DBusProber, error) { return nil, ErrUnsupported }

func (p *DBusProber) Close() {}

func (p *DBusProber) Status(context.Context, string) (UnitState, error) {
	return UnitState{}, ErrUnsupported
}

func (p *DBusProber) Restart(context.Context, string) error { return ErrUnsupported }
