package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"cronhook/pkg/cronjob"
	"cronhook/pkg/jobs/unitcheck"
	"cronhook/pkg/logx"
)

var startedAt = time.Now()

func register(reg *cronjob.Registry) {
	log := logx.NewConsole(os.Getenv("CRONHOOK_LOG_LEVEL")).With(logx.String("comp", "jobs"))

	reg.MustRegister("heartbeat", cronjob.Definition{
		Schedule:    cronjob.Every("*/15 * * * *"),
		Description: "report process uptime and memory",
		Timeout:     time.Minute,
		Retry:       cronjob.Bool(false),
		Handler:     heartbeat,
	})
	reg.MustRegister("tmp-cleanup", cronjob.Definition{
		Schedule:    cronjob.Every("30 3 * * *"),
		Description: "delete scratch files older than a week",
		Timeout:     10 * time.Minute,
		Handler: func(ctx context.Context, _ cronjob.JobContext) (any, error) {
			dir := os.Getenv("CRONHOOK_SCRATCH_DIR")
			if dir == "" {
				dir = filepath.Join(os.TempDir(), "cronhook")
			}
			return cleanup(ctx, dir, 7*24*time.Hour, time.Now())
		},
	})
	reg.MustRegister("unit-check", cronjob.Definition{
		Schedule:    cronjob.Every("*/10 * * * *", "0 6 * * *"),
		Description: "check (and optionally restart) systemd units in $CRONHOOK_UNITS",
		Timeout:     2 * time.Minute,
		Handler: unitcheck.Handler(unitcheck.DBus, func() unitcheck.Config {
			return unitcheck.Config{
				Units:   unitcheck.ParseUnits(os.Getenv("CRONHOOK_UNITS")),
				Recover: os.Getenv("CRONHOOK_UNITS_RECOVER") == "1",
				MinDown: 30 * time.Second,
			}
		}, log),
	})
}

type heartbeatResult struct {
	Uptime     string `json:"uptime"`
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc_bytes"`
	Sys        uint64 `json:"sys_bytes"`
	NumGC      uint32 `json:"num_gc"`
}

func heartbeat(_ context.Context, _ cronjob.JobContext) (any, error) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return heartbeatResult{
		Uptime:     time.Since(startedAt).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  m.HeapAlloc,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
	}, nil
}

type cleanupResult struct {
	Dir     string `json:"dir"`
	Removed int    `json:"removed"`
	Kept    int    `json:"kept"`
}

// cleanup removes regular files under dir last modified before now-maxAge.
// A missing dir is not an error.
func cleanup(ctx context.Context, dir string, maxAge time.Duration, now time.Time) (cleanupResult, error) {
	res := cleanupResult{Dir: dir}
	cutoff := now.Add(-maxAge)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return fs.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				return err
			}
			res.Removed++
			return nil
		}
		res.Kept++
		return nil
	})
	return res, err
}
