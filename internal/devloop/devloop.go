// Package devloop replays the GitHub Actions schedule locally: every
// (job, schedule) pair is put on a robfig/cron scheduler, and each fire
// POSTs to the trigger endpoint exactly as the generated workflow would.
package devloop

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"cronhook/internal/eventbus"
	"cronhook/pkg/cronjob"
	"cronhook/pkg/logx"
	"cronhook/pkg/workflow"
)

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses one expression with the dev scheduler's parser.
// Unlike registration it checks value ranges.
func ParseSchedule(expr string) (cron.Schedule, error) {
	return parser.Parse(strings.TrimSpace(expr))
}

// CheckSchedules parses every schedule of every entry and reports all
// failures at once.
func CheckSchedules(entries []cronjob.Entry) error {
	var errs []error
	for _, e := range entries {
		for _, s := range e.Definition.Schedule {
			if _, err := ParseSchedule(s); err != nil {
				errs = append(errs, cronjob.NewError(cronjob.KindInvalidCronExpression, "Job %q: invalid cron expression %q: %v", e.Name, s, err))
			}
		}
	}
	return errors.Join(errs...)
}

type Config struct {
	Target         string // base URL of the running app
	PathPrefix     string
	Secret         string
	RatePerSec     float64
	Burst          int
	RequestTimeout time.Duration
	// Location defaults to UTC, the zone GitHub Actions evaluates schedules in.
	Location *time.Location
}

// Trigger is the outcome of one POST.
type Trigger struct {
	Job      string               `json:"job"`
	Schedule string               `json:"schedule,omitempty"`
	Status   int                  `json:"status"`
	Duration time.Duration        `json:"duration"`
	Body     cronjob.ResponseBody `json:"body"`
	Err      string               `json:"error,omitempty"`
}

// Upcoming is the next fire time of one (job, schedule) pair.
type Upcoming struct {
	Job      string
	Schedule string
	Next     time.Time
}

type Option func(*Loop)

func WithLogger(log logx.Logger) Option { return func(l *Loop) { l.log = log } }

func WithBus(b eventbus.Bus) Option { return func(l *Loop) { l.bus = b } }

func WithHTTPClient(c *http.Client) Option { return func(l *Loop) { l.client = c } }

type pair struct {
	job   string
	expr  string
	sched cron.Schedule
}

type Loop struct {
	cfg     Config
	pairs   []pair
	jobs    map[string]bool
	client  *http.Client
	limiter *rate.Limiter
	log     logx.Logger
	bus     eventbus.Bus

	mu     sync.Mutex
	runCtx context.Context
}

// New validates every schedule up front; the loop never starts with a
// schedule it cannot fire.
func New(entries []cronjob.Entry, cfg Config, opts ...Option) (*Loop, error) {
	if strings.TrimSpace(cfg.Target) == "" {
		return nil, errors.New("devloop: target is required")
	}
	if err := CheckSchedules(entries); err != nil {
		return nil, err
	}
	cfg.Target = strings.TrimRight(strings.TrimSpace(cfg.Target), "/")
	if strings.TrimSpace(cfg.PathPrefix) == "" {
		cfg.PathPrefix = workflow.DefaultPathPrefix
	}
	cfg.PathPrefix = "/" + strings.Trim(cfg.PathPrefix, "/")
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	l := &Loop{
		cfg:     cfg,
		jobs:    map[string]bool{},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		log:     logx.Nop(),
	}
	for _, e := range entries {
		l.jobs[e.Name] = true
		for _, s := range e.Definition.Schedule {
			sched, _ := ParseSchedule(s)
			l.pairs = append(l.pairs, pair{job: e.Name, expr: strings.TrimSpace(s), sched: sched})
		}
	}
	for _, o := range opts {
		o(l)
	}
	if l.client == nil {
		l.client = &http.Client{Timeout: cfg.RequestTimeout}
	}
	l.log = l.log.With(logx.String("comp", "devloop"))
	return l, nil
}

// Next lists the next fire time of every pair after now, soonest first.
func (l *Loop) Next(now time.Time) []Upcoming {
	now = now.In(l.cfg.Location)
	out := make([]Upcoming, 0, len(l.pairs))
	for _, p := range l.pairs {
		out = append(out, Upcoming{Job: p.job, Schedule: p.expr, Next: p.sched.Next(now)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Next.Before(out[j].Next) })
	return out
}

// Run schedules every pair and blocks until ctx is done. Fires still in
// flight are waited for.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	l.runCtx = ctx
	l.mu.Unlock()

	c := cron.New(cron.WithParser(parser), cron.WithLocation(l.cfg.Location))
	for _, p := range l.pairs {
		p := p
		c.Schedule(p.sched, cron.FuncJob(func() { l.fire(p.job, p.expr) }))
	}
	c.Start()
	l.log.Info("dev scheduler started", logx.Int("schedules", len(l.pairs)), logx.String("target", l.cfg.Target))

	<-ctx.Done()
	<-c.Stop().Done()
	l.log.Info("dev scheduler stopped")
	return nil
}

func (l *Loop) fire(job, expr string) {
	l.mu.Lock()
	ctx := l.runCtx
	l.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	_, _ = l.trigger(ctx, job, expr)
}

// TriggerNow fires job once, outside its schedule.
func (l *Loop) TriggerNow(ctx context.Context, job string) (Trigger, error) {
	if !l.jobs[job] {
		return Trigger{Job: job}, cronjob.NewError(cronjob.KindJobNotFound, "Job %q not found", job)
	}
	return l.trigger(ctx, job, "")
}

func (l *Loop) trigger(ctx context.Context, job, expr string) (Trigger, error) {
	t := Trigger{Job: job, Schedule: expr}
	if err := l.limiter.Wait(ctx); err != nil {
		return t, err
	}

	start := time.Now()
	err := l.post(ctx, job, &t)
	t.Duration = time.Since(start)
	if err != nil {
		t.Err = err.Error()
		l.log.Warn("trigger failed", logx.String("job", job), logx.String("schedule", expr), logx.Err(err))
	} else {
		fields := []logx.Field{
			logx.String("job", job),
			logx.String("schedule", expr),
			logx.Int("status", t.Status),
			logx.Duration("took", t.Duration),
		}
		if t.Status == http.StatusOK {
			l.log.Info("triggered", fields...)
		} else {
			l.log.Warn("trigger rejected", append(fields, logx.String("error", t.Body.Error))...)
		}
	}
	if l.bus != nil {
		l.bus.Publish(eventbus.Event{Type: eventbus.TypeDevTrigger, Data: t})
	}
	return t, err
}

func (l *Loop) post(ctx context.Context, job string, t *Trigger) error {
	url := l.cfg.Target + l.cfg.PathPrefix + "/" + job
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte("{}")))
	if err != nil {
		return err
	}
	req.Header.Set(cronjob.SecretHeader, l.cfg.Secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	t.Status = resp.StatusCode

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(raw, &t.Body); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}
